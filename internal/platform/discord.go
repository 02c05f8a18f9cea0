package platform

import (
	"fmt"

	"guildkeeper/internal/common"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

// Size of a page when listing guild members
const membersPage = 1000

var _ Platform = (*Discord)(nil)

type Discord struct {
	session *discordgo.Session
}

func NewDiscord(session *discordgo.Session) *Discord {
	return &Discord{session: session}
}

func (d *Discord) AddRole(guildID string, userID string, roleID string) error {
	return common.Classify(d.session.GuildMemberRoleAdd(guildID, userID, roleID))
}

func (d *Discord) RemoveRole(guildID string, userID string, roleID string) error {
	return common.Classify(d.session.GuildMemberRoleRemove(guildID, userID, roleID))
}

func (d *Discord) Member(guildID string, userID string) (*discordgo.Member, error) {

	// Check cache
	if member, err := d.session.State.Member(guildID, userID); err == nil {
		return member, nil
	}
	member, err := d.session.GuildMember(guildID, userID)
	return member, common.Classify(err)
}

func (d *Discord) Role(guildID string, roleID string) (*discordgo.Role, error) {

	if role, err := d.session.State.Role(guildID, roleID); err == nil {
		return role, nil
	}
	roles, err := d.session.GuildRoles(guildID)
	if err != nil {
		return nil, common.Classify(err)
	}
	for _, role := range roles {
		if role.ID == roleID {
			return role, nil
		}
	}
	return nil, fmt.Errorf("role %s in guild %s: %w", roleID, guildID, common.ErrNotFound)
}

func (d *Discord) Channel(channelID string) (*discordgo.Channel, error) {

	if channel, err := d.session.State.Channel(channelID); err == nil {
		return channel, nil
	}
	channel, err := d.session.Channel(channelID)
	return channel, common.Classify(err)
}

func (d *Discord) MembersWithRole(guildID string, roleID string) ([]*discordgo.Member, error) {

	result := []*discordgo.Member{}
	after := ""
	for {
		members, err := d.session.GuildMembers(guildID, after, membersPage)
		if err != nil {
			return nil, common.Classify(err)
		}
		for _, member := range members {
			if HasRole(member, roleID) {
				result = append(result, member)
			}
		}
		if len(members) < membersPage {
			break
		}
		after = members[len(members)-1].User.ID
	}
	log.Debug().Msg(fmt.Sprintf("Found %d members with role %s in guild %s", len(result), roleID, guildID))
	return result, nil
}

func (d *Discord) Send(channelID string, message *discordgo.MessageSend) (*discordgo.Message, error) {
	sent, err := d.session.ChannelMessageSendComplex(channelID, message)
	return sent, common.Classify(err)
}

func (d *Discord) EditEmbeds(channelID string, messageID string, embeds []*discordgo.MessageEmbed) error {
	_, err := d.session.ChannelMessageEditComplex(discordgo.NewMessageEdit(channelID, messageID).SetEmbeds(embeds))
	return common.Classify(err)
}

func (d *Discord) SendDirect(userID string, message *discordgo.MessageSend) error {

	channel, err := d.session.UserChannelCreate(userID)
	if err != nil {
		return common.Classify(err)
	}
	_, err = d.session.ChannelMessageSendComplex(channel.ID, message)
	return common.Classify(err)
}

func (d *Discord) IsAdmin(guildID string, userID string, channelID string) (bool, error) {

	permissions, err := d.session.UserChannelPermissions(userID, channelID)
	if err != nil {
		return false, common.Classify(err)
	}
	return permissions&discordgo.PermissionAdministrator != 0, nil
}
