package circle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"guildkeeper/internal/common"
	"guildkeeper/internal/platform"
	"guildkeeper/internal/settings"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func (c *Circle) SetRole(ctx context.Context, guildID string, roleID string) []platform.Response {

	role, err := c.platform.Role(guildID, roleID)
	if err != nil {
		return RoleNotFound(roleID)
	}
	if err := c.settings.Update(ctx, guildID, func(g *settings.Guild) { g.CircleRoleID = roleID }); err != nil {
		log.Error().Err(err).Msg("Could not store champions role")
		return TryAgain()
	}
	return RoleSet(role)
}

// SetChannel sets the channel where the join button lives
func (c *Circle) SetChannel(ctx context.Context, guildID string, channelID string) []platform.Response {
	return c.setChannel(ctx, guildID, channelID, "join", func(g *settings.Guild) { g.CircleChannelID = channelID })
}

// SetReviewChannel sets the channel where admins review applications
func (c *Circle) SetReviewChannel(ctx context.Context, guildID string, channelID string) []platform.Response {
	return c.setChannel(ctx, guildID, channelID, "review", func(g *settings.Guild) { g.CircleReviewChannelID = channelID })
}

func (c *Circle) setChannel(ctx context.Context, guildID string, channelID string, kind string, set func(g *settings.Guild)) []platform.Response {

	channel, err := c.platform.Channel(channelID)
	if err != nil || channel.GuildID != guildID {
		return ChannelNotFound(channelID)
	}
	if err := c.settings.Update(ctx, guildID, set); err != nil {
		log.Error().Err(err).Msg("Could not store champions channel")
		return TryAgain()
	}
	log.Info().Msg(fmt.Sprintf("Champions Circle %s channel of %s set to %s", kind, guildID, channelID))
	return ChannelSet(kind, channel)
}

// Setup posts the join message with the roster in the circle channel and
// remembers it so that it can be refreshed later
func (c *Circle) Setup(ctx context.Context, guildID string, channelID string) []platform.Response {

	guild, err := c.settings.Guild(ctx, guildID)
	if err != nil {
		return TryAgain()
	}
	if guild.CircleChannelID == "" || guild.CircleChannelID != channelID {
		return WrongChannel()
	}

	applications, err := c.List(ctx, guildID)
	if err != nil {
		return TryAgain()
	}
	champions := []Champion{}
	for _, a := range applications {
		if a.Status == StatusApproved {
			champions = append(champions, Champion{ID: a.Subject, Name: platform.Mention(a.Subject)})
		}
	}

	message, err := c.platform.Send(channelID, JoinMessage(champions).Message())
	if err != nil {
		log.Error().Err(err).Msg("Could not post the join message")
		return TryAgain()
	}
	err = c.settings.Update(ctx, guildID, func(g *settings.Guild) {
		g.CircleRosterChannelID = channelID
		g.CircleRosterMessageID = message.ID
	})
	if err != nil {
		log.Error().Err(err).Msg("Could not store the roster message")
	}
	return nil
}

// PressApply answers the join button: the form if the member can apply,
// an explanation otherwise
func (c *Circle) PressApply(ctx context.Context, guildID string, userID string) *discordgo.InteractionResponse {

	refuse := func(response platform.ResponseString) *discordgo.InteractionResponse {
		return &discordgo.InteractionResponse{Type: discordgo.InteractionResponseChannelMessageWithSource, Data: response.InteractionData()}
	}

	guild, err := c.settings.Guild(ctx, guildID)
	if err != nil {
		return refuse(platform.Private("An error occurred. Please try again later."))
	}
	if guild.CircleRoleID == "" {
		return refuse(platform.Private("Error: Champions role not found."))
	}

	existing, found, err := c.Lookup(ctx, guildID, userID)
	if err != nil {
		return refuse(platform.Private("An error occurred. Please try again later."))
	}
	if found && !existing.expired(c.now()) {
		switch existing.Status {
		case StatusApproved:
			return refuse(platform.Private("You are already part of the Champions Circle."))
		case StatusActive:
			return refuse(platform.Private("Your application is already waiting for a decision."))
		}
	}
	return AnswersModal()
}

// SubmitAnswers creates the application from the submitted form and posts
// it for review
func (c *Circle) SubmitAnswers(ctx context.Context, guildID string, userID string, answers string) platform.Response {

	application, err := c.Apply(ctx, guildID, userID, strings.TrimSpace(answers))
	if err != nil {
		if errors.Is(err, common.ErrAlreadyActive) {
			return platform.Private("You already have an application or are already part of the Champions Circle.")
		}
		log.Error().Err(err).Msg(fmt.Sprintf("Could not store application of %s", userID))
		return platform.Private("An error occurred. Please try again later.")
	}

	guild, err := c.settings.Guild(ctx, guildID)
	if err == nil && guild.CircleReviewChannelID != "" {
		if _, err := c.platform.Send(guild.CircleReviewChannelID, ReviewMessage(application).Message()); err != nil {
			log.Error().Err(err).Msg("Could not post application for review")
		}
	} else {
		log.Warn().Msg(fmt.Sprintf("No review channel in guild %s, application of %s only visible with the list command", guildID, userID))
	}
	return platform.Private("Your application has been submitted. You will get a message once it has been reviewed.")
}

func (c *Circle) PressCancel(ctx context.Context, guildID string, userID string) platform.Response {

	application, err := c.Cancel(ctx, guildID, userID, userID)
	if err != nil && application.ID == uuid.Nil {
		if errors.Is(err, common.ErrNotFound) {
			return platform.Private("You have no Champions Circle application.")
		}
		return platform.Private("An error occurred. Please try again later.")
	}
	if err != nil {
		// Cancelled, only the role is left behind
		return platform.Private("Your application was cancelled but I could not remove your role. An admin will take care of it.")
	}
	return platform.Private("Your Champions Circle application has been cancelled.")
}

// Review handles the approve and deny buttons of a review message. The
// buttons carry the id of the application they were posted for
func (c *Circle) Review(ctx context.Context, guildID string, adminID string, customID string) platform.Response {

	approve := true
	rawID, ok := strings.CutPrefix(customID, ButtonApprove)
	if !ok {
		approve = false
		rawID, ok = strings.CutPrefix(customID, ButtonDeny)
	}
	id, err := uuid.Parse(rawID)
	if !ok || err != nil {
		return platform.Private("Unknown action.")
	}

	application, found, err := c.LookupApplication(ctx, guildID, id)
	if err != nil {
		return platform.Private("An error occurred. Please try again later.")
	}
	if !found {
		return platform.Private("This application has already been closed.")
	}
	if approve {
		return c.approve(ctx, guildID, adminID, application.Subject, selector{id: id})
	}
	return c.deny(ctx, guildID, adminID, application.Subject, selector{id: id})
}

func (c *Circle) approve(ctx context.Context, guildID string, adminID string, subject string, sel selector) platform.Response {

	_, err := c.approveSelected(ctx, guildID, sel, adminID)
	switch {
	case err == nil:
		c.tellApplicant(subject, "Welcome to the Champions Circle! Your application has been approved.")
		return platform.Text("Application of %s approved by %s.", platform.Mention(subject), platform.Mention(adminID))
	case errors.Is(err, common.ErrUnknownMember):
		return platform.Private("%s is not a member of this server anymore, the application was dropped.", platform.Mention(subject))
	default:
		return decisionError(subject, err)
	}
}

func (c *Circle) deny(ctx context.Context, guildID string, adminID string, subject string, sel selector) platform.Response {

	_, err := c.denySelected(ctx, guildID, sel, adminID)
	if err != nil {
		return decisionError(subject, err)
	}
	c.tellApplicant(subject, "Your Champions Circle application has been denied.")
	return platform.Text("Application of %s denied by %s.", platform.Mention(subject), platform.Mention(adminID))
}

func decisionError(subject string, err error) platform.Response {
	switch {
	case errors.Is(err, common.ErrExpired):
		return platform.Private("The application of %s has expired.", platform.Mention(subject))
	case errors.Is(err, common.ErrNotFound):
		return platform.Private("%s has no application.", platform.Mention(subject))
	case errors.Is(err, common.ErrInvalidTransition):
		return platform.Private("The application of %s has already been decided.", platform.Mention(subject))
	case errors.Is(err, common.ErrNotConfigured):
		return platform.Private("Error: Champions role not found.")
	case errors.Is(err, common.ErrPermissionDenied):
		return platform.Private("Error: I don't have permission to assign roles.")
	default:
		log.Error().Err(err).Msg(fmt.Sprintf("Could not decide application of %s", subject))
		return platform.Private("An error occurred while assigning the role. Please try again later.")
	}
}

// DMs may be disabled or the member may have left: log, never retry
func (c *Circle) tellApplicant(userID string, content string) {
	if err := c.platform.SendDirect(userID, &discordgo.MessageSend{Content: content}); err != nil {
		log.Warn().Err(err).Msg(fmt.Sprintf("Could not tell %s about their application", userID))
	}
}

func (c *Circle) ApproveCommand(ctx context.Context, guildID string, adminID string, subject string) []platform.Response {
	return []platform.Response{c.approve(ctx, guildID, adminID, subject, selector{subject: subject})}
}

func (c *Circle) DenyCommand(ctx context.Context, guildID string, adminID string, subject string) []platform.Response {
	return []platform.Response{c.deny(ctx, guildID, adminID, subject, selector{subject: subject})}
}

func (c *Circle) CancelCommand(ctx context.Context, guildID string, adminID string, subject string) []platform.Response {

	application, err := c.Cancel(ctx, guildID, subject, adminID)
	switch {
	case err == nil:
		return []platform.Response{platform.Text("Application of %s cancelled.", platform.Mention(subject))}
	case application.ID != uuid.Nil:
		return []platform.Response{platform.Text("Application of %s cancelled, but I could not remove the champions role.", platform.Mention(subject))}
	default:
		return []platform.Response{decisionError(subject, err)}
	}
}

func (c *Circle) ListCommand(ctx context.Context, guildID string) []platform.Response {

	applications, err := c.List(ctx, guildID)
	if err != nil {
		return TryAgain()
	}
	return []platform.Response{ApplicationsEmbed(applications)}
}

func (c *Circle) EndCommand(ctx context.Context, guildID string, adminID string) []platform.Response {

	removed, err := c.EndTournament(ctx, guildID, adminID)
	if err != nil {
		log.Error().Err(err).Msg("Could not end the tournament")
		return TryAgain()
	}
	return []platform.Response{platform.Text("The tournament has ended. The champions role was removed from %d members and all applications were closed.", removed)}
}

// AssignCommand gives the role directly, to check the bot can manage it
func (c *Circle) AssignCommand(ctx context.Context, guildID string, subject string) []platform.Response {

	err := c.AssignRole(ctx, guildID, subject)
	switch {
	case err == nil:
		return []platform.Response{platform.Text("Successfully assigned the champions role to %s", platform.Mention(subject))}
	case errors.Is(err, common.ErrNotConfigured):
		return NotConfigured()
	case errors.Is(err, common.ErrPermissionDenied):
		return NoPermission()
	default:
		return []platform.Response{platform.Text("An error occurred: %s", err)}
	}
}

// Expire cancels the pending applications past their expiry and lets the
// reviewers know. Called periodically
func (c *Circle) Expire(ctx context.Context) {

	expired, err := c.ExpirePending(ctx, c.now())
	if err != nil {
		log.Error().Err(err).Msg("Application expiry incomplete")
	}
	for _, a := range expired {
		guild, err := c.settings.Guild(ctx, a.Scope)
		if err != nil || guild.CircleReviewChannelID == "" {
			continue
		}
		content := fmt.Sprintf("The application of %s expired without a decision.", platform.Mention(a.Subject))
		if _, err := c.platform.Send(guild.CircleReviewChannelID, &discordgo.MessageSend{Content: content}); err != nil {
			log.Error().Err(err).Msg("Could not announce expired application")
		}
	}
}
