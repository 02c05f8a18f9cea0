// Package announce sends custom embeds to members by direct message.
package announce

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"guildkeeper/internal/common"
	"guildkeeper/internal/platform"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

// Discord "blue"
const color int = 0x3498db

type Announcer struct {
	platform platform.Platform
	limiter  *common.RateLimiter
}

func New(p platform.Platform, limiter *common.RateLimiter) *Announcer {
	return &Announcer{platform: p, limiter: limiter}
}

// ParseContent splits "Title | Body". Without a separator everything is the title
func ParseContent(content string) (string, string) {
	title, body, _ := strings.Cut(content, "|")
	return strings.TrimSpace(title), strings.TrimSpace(body)
}

func BuildEmbed(content string, imageURL string) (*discordgo.MessageEmbed, error) {

	title, body := ParseContent(content)
	if title == "" && body == "" && imageURL == "" {
		return nil, errors.New("the embed would be empty")
	}
	embed := &discordgo.MessageEmbed{Title: title, Description: body, Color: color}
	if imageURL != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: imageURL}
	}
	return embed, nil
}

// DirectMessage sends the embed to every user, one DM each
func (a *Announcer) DirectMessage(ctx context.Context, users []*discordgo.User, content string, imageURL string) []platform.Response {

	embed, err := BuildEmbed(content, imageURL)
	if err != nil {
		return Usage()
	}

	responses := []platform.Response{}
	for _, user := range users {
		if err := a.send(ctx, user.ID, embed); err != nil {
			responses = append(responses, Failed(user.Username, err))
			continue
		}
		responses = append(responses, Sent(user.Username))
	}
	return responses
}

// RoleMessage sends the embed to every member holding the role
func (a *Announcer) RoleMessage(ctx context.Context, guildID string, roleID string, content string, imageURL string) []platform.Response {

	embed, err := BuildEmbed(content, imageURL)
	if err != nil {
		return Usage()
	}
	role, err := a.platform.Role(guildID, roleID)
	if err != nil {
		return []platform.Response{platform.Text("No role found with ID %s.", roleID)}
	}
	members, err := a.platform.MembersWithRole(guildID, roleID)
	if err != nil {
		log.Error().Err(err).Msg(fmt.Sprintf("Could not list members of role %s", roleID))
		return []platform.Response{platform.Text("Could not list the members of %s. Please try again later.", role.Name)}
	}

	sent := 0
	unreachable := []string{}
	for _, member := range members {
		if member.User == nil || member.User.Bot {
			continue
		}
		if err := a.send(ctx, member.User.ID, embed); err != nil {
			unreachable = append(unreachable, member.User.Username)
			continue
		}
		sent++
	}
	return []platform.Response{RoleSummary(role.Name, sent, unreachable)}
}

func (a *Announcer) send(ctx context.Context, userID string, embed *discordgo.MessageEmbed) error {

	if !a.limiter.Allowed(ctx) {
		return fmt.Errorf("waiting for the rate limiter: %w", common.ErrTransientIO)
	}
	err := a.platform.SendDirect(userID, &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}})
	if err != nil {
		log.Warn().Err(err).Msg(fmt.Sprintf("Could not send DM to %s", userID))
		return err
	}
	log.Info().Msg(fmt.Sprintf("Embed sent to %s", userID))
	return nil
}
