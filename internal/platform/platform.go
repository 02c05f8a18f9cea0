// Package platform is the narrow view the modules have of Discord.
package platform

import (
	"github.com/bwmarrin/discordgo"
)

// Platform is implemented by Discord for production and by
// platformtest.Fake in tests. Every error is already classified with
// common.Classify
type Platform interface {
	AddRole(guildID string, userID string, roleID string) error
	RemoveRole(guildID string, userID string, roleID string) error
	Member(guildID string, userID string) (*discordgo.Member, error)
	Role(guildID string, roleID string) (*discordgo.Role, error)
	Channel(channelID string) (*discordgo.Channel, error)
	MembersWithRole(guildID string, roleID string) ([]*discordgo.Member, error)
	Send(channelID string, message *discordgo.MessageSend) (*discordgo.Message, error)
	EditEmbeds(channelID string, messageID string, embeds []*discordgo.MessageEmbed) error
	SendDirect(userID string, message *discordgo.MessageSend) error
	IsAdmin(guildID string, userID string, channelID string) (bool, error)
}

func HasRole(member *discordgo.Member, roleID string) bool {
	for _, id := range member.Roles {
		if id == roleID {
			return true
		}
	}
	return false
}

func Mention(userID string) string {
	return "<@" + userID + ">"
}
