// Package daypass gives members a role for a limited number of hours.
package daypass

import (
	"context"
	"errors"
	"fmt"
	"time"

	"guildkeeper/internal/common"
	"guildkeeper/internal/grant"
	"guildkeeper/internal/platform"
	"guildkeeper/internal/settings"
	"guildkeeper/internal/store"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

const namespace = "daypass"

type DayPass struct {
	platform platform.Platform
	settings *settings.Database
	tracker  *grant.Tracker
	now      func() time.Time
}

func New(p platform.Platform, db *settings.Database, s store.Store, now func() time.Time) *DayPass {

	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	daypass := &DayPass{platform: p, settings: db, now: now}
	daypass.tracker = grant.NewTracker(namespace, s, grant.RevokerFunc(daypass.revoke),
		grant.WithNotifier(grant.NotifierFunc(daypass.notify)),
		grant.WithClock(now))
	return daypass
}

func (d *DayPass) SetRole(ctx context.Context, guildID string, roleID string) []platform.Response {

	role, err := d.platform.Role(guildID, roleID)
	if err != nil {
		log.Info().Msg(fmt.Sprintf("Role %s not found in guild %s", roleID, guildID))
		return RoleNotFound(roleID)
	}
	if err := d.settings.Update(ctx, guildID, func(g *settings.Guild) { g.DayPassRoleID = roleID }); err != nil {
		log.Error().Err(err).Msg("Could not store daypass role")
		return TryAgain()
	}
	log.Info().Msg(fmt.Sprintf("DayPass role of guild %s set to %s", guildID, roleID))
	return RoleSet(role)
}

func (d *DayPass) SetChannel(ctx context.Context, guildID string, channelID string) []platform.Response {

	channel, err := d.platform.Channel(channelID)
	if err != nil || channel.GuildID != guildID {
		log.Info().Msg(fmt.Sprintf("Channel %s not found in guild %s", channelID, guildID))
		return ChannelNotFound(channelID)
	}
	if err := d.settings.Update(ctx, guildID, func(g *settings.Guild) { g.DayPassChannelID = channelID }); err != nil {
		log.Error().Err(err).Msg("Could not store daypass channel")
		return TryAgain()
	}
	log.Info().Msg(fmt.Sprintf("DayPass channel of guild %s set to %s", guildID, channelID))
	return ChannelSet(channel)
}

// Grant records the pass first and only then gives the role, so that no
// role is ever handed out without a tracked expiry
func (d *DayPass) Grant(ctx context.Context, guildID string, userID string, duration time.Duration) []platform.Response {

	guild, err := d.settings.Guild(ctx, guildID)
	if err != nil {
		log.Error().Err(err).Msg("Could not read settings")
		return TryAgain()
	}
	if !guild.DayPassConfigured() {
		return NotConfigured()
	}
	if _, err := d.platform.Role(guildID, guild.DayPassRoleID); err != nil {
		return SettingsBroken()
	}
	if _, err := d.platform.Channel(guild.DayPassChannelID); err != nil {
		return SettingsBroken()
	}
	if _, err := d.platform.Member(guildID, userID); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return MemberNotFound(userID)
		}
		return TryAgain()
	}

	if _, err := d.tracker.Grant(ctx, userID, guildID, duration, nil); err != nil {
		if errors.Is(err, common.ErrAlreadyActive) {
			existing, _, _ := d.tracker.Lookup(ctx, userID, guildID)
			return AlreadyActive(userID, existing.Expiry)
		}
		log.Error().Err(err).Msg(fmt.Sprintf("Could not record DayPass of %s", userID))
		return TryAgain()
	}

	if err := d.platform.AddRole(guildID, userID, guild.DayPassRoleID); err != nil {
		log.Error().Err(err).Msg(fmt.Sprintf("Could not give DayPass role to %s in guild %s", userID, guildID))
		if discardErr := d.tracker.Discard(ctx, userID, guildID); discardErr != nil {
			log.Error().Err(discardErr).Msg("Could not roll back DayPass")
		}
		switch {
		case errors.Is(err, common.ErrPermissionDenied):
			return NoPermission()
		case errors.Is(err, common.ErrNotFound):
			return MemberNotFound(userID)
		default:
			return TryAgain()
		}
	}

	return Granted(userID, duration)
}

func (d *DayPass) Revoke(ctx context.Context, guildID string, userID string) []platform.Response {

	_, found, err := d.tracker.Lookup(ctx, userID, guildID)
	if err != nil {
		return TryAgain()
	}
	if !found {
		return NoPass(userID)
	}

	if err := d.tracker.Revoke(ctx, userID, guildID); err != nil {
		switch {
		case errors.Is(err, common.ErrPermissionDenied):
			return NoPermission()
		case errors.Is(err, common.ErrNotFound):
			// Role or member gone, the pass is over anyway
			return Revoked(userID)
		default:
			return TryAgain()
		}
	}
	return Revoked(userID)
}

func (d *DayPass) List(ctx context.Context, guildID string) []platform.Response {

	grants, err := d.tracker.ListActive(ctx, guildID)
	if err != nil {
		log.Error().Err(err).Msg("Could not list daypasses")
		return TryAgain()
	}
	if len(grants) == 0 {
		return NoActivePasses()
	}

	// Members that cannot be found are left out
	names := map[string]string{}
	for _, g := range grants {
		member, err := d.platform.Member(guildID, g.Subject)
		if err != nil {
			continue
		}
		names[g.Subject] = member.User.Username
	}
	return ActivePasses(grants, names)
}

// OnMemberUpdate detects the DayPass role being removed by someone else
func (d *DayPass) OnMemberUpdate(ctx context.Context, before *discordgo.Member, after *discordgo.Member) {

	if before == nil || after == nil || after.User == nil {
		return
	}
	guild, err := d.settings.Guild(ctx, after.GuildID)
	if err != nil || !guild.DayPassConfigured() {
		return
	}
	if !platform.HasRole(before, guild.DayPassRoleID) || platform.HasRole(after, guild.DayPassRoleID) {
		return
	}

	// When the bot itself removed the role the pass is not tracked anymore,
	// so this is a no-op
	if _, err := d.tracker.ReconcileExternalRemoval(ctx, after.User.ID, after.GuildID); err != nil {
		log.Error().Err(err).Msg(fmt.Sprintf("Could not reconcile DayPass of %s", after.User.ID))
	}
}

func (d *DayPass) OnMemberRemove(ctx context.Context, guildID string, userID string) {
	if _, err := d.tracker.OnSubjectDeparture(ctx, userID, guildID); err != nil {
		log.Error().Err(err).Msg(fmt.Sprintf("Could not drop DayPass of departed member %s", userID))
	}
}

// Sweep removes every expired DayPass. Called periodically
func (d *DayPass) Sweep(ctx context.Context) {
	if _, err := d.tracker.SweepExpired(ctx, d.now()); err != nil {
		log.Error().Err(err).Msg("DayPass sweep incomplete")
	}
}

func (d *DayPass) revoke(ctx context.Context, g grant.Grant) error {

	guild, err := d.settings.Guild(ctx, g.Scope)
	if err != nil {
		return err
	}
	if guild.DayPassRoleID == "" {
		return fmt.Errorf("daypass role of guild %s: %w", g.Scope, common.ErrNotConfigured)
	}

	member, err := d.platform.Member(g.Scope, g.Subject)
	if err != nil {
		return err
	}
	if !platform.HasRole(member, guild.DayPassRoleID) {
		return fmt.Errorf("daypass role of %s: %w", g.Subject, grant.ErrNotHeld)
	}
	return d.platform.RemoveRole(g.Scope, g.Subject, guild.DayPassRoleID)
}

func (d *DayPass) notify(ctx context.Context, event grant.Event) {

	var content string
	switch event.Kind {
	case grant.EventExpired:
		content = ExpiredMessage(event.Grant.Subject)
	case grant.EventManuallyRemoved:
		content = ManuallyRemovedMessage(event.Grant.Subject)
	default:
		// Revocations are answered by the command itself
		return
	}

	guild, err := d.settings.Guild(ctx, event.Grant.Scope)
	if err != nil || guild.DayPassChannelID == "" {
		log.Warn().Msg(fmt.Sprintf("No DayPass channel to announce that %s", content))
		return
	}
	if _, err := d.platform.Send(guild.DayPassChannelID, &discordgo.MessageSend{Content: content}); err != nil {
		log.Error().Err(err).Msg(fmt.Sprintf("Could not announce %s DayPass", event.Kind))
	}
}
