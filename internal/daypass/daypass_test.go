package daypass

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"guildkeeper/internal/common"
	"guildkeeper/internal/platform"
	"guildkeeper/internal/platform/platformtest"
	"guildkeeper/internal/settings"
	"guildkeeper/internal/store"

	"github.com/bwmarrin/discordgo"
)

const (
	guildID   = "7"
	roleID    = "r-daypass"
	channelID = "c-daypass"
	userID    = "42"
)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func setup(t *testing.T) (*DayPass, *platformtest.Fake, *testClock) {
	t.Helper()
	fake := platformtest.New()
	fake.AddRoleDefinition(guildID, roleID, "DayPass")
	fake.AddChannel(guildID, channelID, "daypass")
	fake.AddMember(guildID, userID)

	clock := &testClock{now: time.Date(2024, 8, 24, 12, 0, 0, 0, time.UTC)}
	d := New(fake, settings.NewDatabase(store.NewMemory()), store.NewMemory(), clock.Now)
	ctx := context.Background()
	d.SetRole(ctx, guildID, roleID)
	d.SetChannel(ctx, guildID, channelID)
	return d, fake, clock
}

func content(responses []platform.Response) string {
	parts := []string{}
	for _, response := range responses {
		parts = append(parts, response.Message().Content)
	}
	return strings.Join(parts, "\n")
}

func TestSetRole_UnknownRole(t *testing.T) {
	d, _, _ := setup(t)
	got := content(d.SetRole(context.Background(), guildID, "nope"))
	if !strings.Contains(got, "No role found with ID nope") {
		t.Fatalf("unexpected answer %q", got)
	}
}

func TestSetChannel_OtherGuildIsRejected(t *testing.T) {
	d, fake, _ := setup(t)
	fake.AddChannel("other", "c-other", "elsewhere")
	got := content(d.SetChannel(context.Background(), guildID, "c-other"))
	if !strings.Contains(got, "No channel found") {
		t.Fatalf("unexpected answer %q", got)
	}
}

func TestGrant_RequiresSettings(t *testing.T) {
	fake := platformtest.New()
	fake.AddMember(guildID, userID)
	d := New(fake, settings.NewDatabase(store.NewMemory()), store.NewMemory(), nil)

	got := content(d.Grant(context.Background(), guildID, userID, time.Hour))
	if !strings.Contains(got, "has not been set") {
		t.Fatalf("unexpected answer %q", got)
	}
	if len(fake.RoleChanges) != 0 {
		t.Fatalf("no role should be given without settings")
	}
}

func TestGrant_GivesRoleAndLists(t *testing.T) {
	ctx := context.Background()
	d, fake, _ := setup(t)

	got := content(d.Grant(ctx, guildID, userID, 2*time.Hour))
	if got != "DayPass granted to <@42> for 2 hours." {
		t.Fatalf("unexpected answer %q", got)
	}
	if len(fake.RoleChanges) != 1 || !fake.RoleChanges[0].Added || fake.RoleChanges[0].RoleID != roleID {
		t.Fatalf("expected the daypass role to be given, got %+v", fake.RoleChanges)
	}

	list := d.List(ctx, guildID)
	embed := list[0].Message().Embeds[0]
	if len(embed.Fields) != 1 || embed.Fields[0].Name != "user42" || embed.Fields[0].Value != "Expires: 2024-08-24 14:00:00 UTC" {
		t.Fatalf("unexpected list %+v", embed.Fields)
	}
}

func TestGrant_Twice(t *testing.T) {
	ctx := context.Background()
	d, fake, _ := setup(t)
	d.Grant(ctx, guildID, userID, time.Hour)

	got := content(d.Grant(ctx, guildID, userID, time.Hour))
	if !strings.Contains(got, "already has an active DayPass until 2024-08-24 13:00:00 UTC") {
		t.Fatalf("unexpected answer %q", got)
	}
	if len(fake.RoleChanges) != 1 {
		t.Fatalf("role given twice: %+v", fake.RoleChanges)
	}
}

func TestGrant_RoleFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	d, fake, _ := setup(t)
	fake.AddRoleErr = fmt.Errorf("%w: hierarchy", common.ErrPermissionDenied)

	got := content(d.Grant(ctx, guildID, userID, time.Hour))
	if !strings.Contains(got, "don't have permission") {
		t.Fatalf("unexpected answer %q", got)
	}
	if got := content(d.List(ctx, guildID)); got != "There are no active DayPasses." {
		t.Fatalf("pass should have been rolled back, got %q", got)
	}

	fake.AddRoleErr = fmt.Errorf("%w: 502", common.ErrTransientIO)
	if got := content(d.Grant(ctx, guildID, userID, time.Hour)); !strings.Contains(got, "try again later") {
		t.Fatalf("transient failures should be surfaced, got %q", got)
	}
}

func TestGrant_UnknownMember(t *testing.T) {
	d, _, _ := setup(t)
	got := content(d.Grant(context.Background(), guildID, "999", time.Hour))
	if !strings.Contains(got, "is not a member") {
		t.Fatalf("unexpected answer %q", got)
	}
}

func TestSweep_RemovesRoleAndAnnounces(t *testing.T) {
	ctx := context.Background()
	d, fake, clock := setup(t)
	d.Grant(ctx, guildID, userID, 2*time.Hour)

	clock.now = clock.now.Add(time.Hour)
	d.Sweep(ctx)
	if len(fake.RoleChanges) != 1 {
		t.Fatalf("role removed too early")
	}

	clock.now = clock.now.Add(time.Hour + time.Second)
	d.Sweep(ctx)
	if len(fake.RoleChanges) != 2 || fake.RoleChanges[1].Added {
		t.Fatalf("expected the role to be removed, got %+v", fake.RoleChanges)
	}
	sent := fake.SentTo(channelID)
	if len(sent) != 1 || sent[0] != "<@42>'s DayPass has expired." {
		t.Fatalf("unexpected announcements %v", sent)
	}
}

func TestSweep_DepartedMemberIsSilent(t *testing.T) {
	ctx := context.Background()
	d, fake, clock := setup(t)
	d.Grant(ctx, guildID, userID, time.Hour)
	fake.RemoveMember(guildID, userID)

	clock.now = clock.now.Add(2 * time.Hour)
	d.Sweep(ctx)
	if len(fake.SentTo(channelID)) != 0 {
		t.Fatalf("departed members must not be announced")
	}
	if got := content(d.List(ctx, guildID)); got != "There are no active DayPasses." {
		t.Fatalf("expired pass still tracked: %q", got)
	}
}

func TestSweep_RoleAlreadyGoneIsSilent(t *testing.T) {
	ctx := context.Background()
	d, fake, clock := setup(t)
	d.Grant(ctx, guildID, userID, time.Hour)
	// Removed while the update event was missed
	fake.RemoveRole(guildID, userID, roleID)

	clock.now = clock.now.Add(2 * time.Hour)
	d.Sweep(ctx)
	if len(fake.RoleChanges) != 2 {
		t.Fatalf("nothing left to remove, got %+v", fake.RoleChanges)
	}
	if sent := fake.SentTo(channelID); len(sent) != 0 {
		t.Fatalf("a pass without its role must not be announced, got %v", sent)
	}
	if got := content(d.List(ctx, guildID)); got != "There are no active DayPasses." {
		t.Fatalf("expired pass still tracked: %q", got)
	}
}

func TestOnMemberUpdate_ManualRemoval(t *testing.T) {
	ctx := context.Background()
	d, fake, _ := setup(t)
	d.Grant(ctx, guildID, userID, time.Hour)

	before := &discordgo.Member{GuildID: guildID, User: &discordgo.User{ID: userID}, Roles: []string{roleID}}
	after := &discordgo.Member{GuildID: guildID, User: &discordgo.User{ID: userID}, Roles: []string{}}
	d.OnMemberUpdate(ctx, before, after)

	sent := fake.SentTo(channelID)
	if len(sent) != 1 || sent[0] != "<@42>'s DayPass has been manually removed." {
		t.Fatalf("unexpected announcements %v", sent)
	}
	if len(fake.RoleChanges) != 1 {
		t.Fatalf("reconciliation must not touch roles, got %+v", fake.RoleChanges)
	}

	// The same event again has nothing to reconcile
	d.OnMemberUpdate(ctx, before, after)
	if len(fake.SentTo(channelID)) != 1 {
		t.Fatalf("announced twice")
	}
}

func TestOnMemberUpdate_UnrelatedChange(t *testing.T) {
	ctx := context.Background()
	d, fake, _ := setup(t)
	d.Grant(ctx, guildID, userID, time.Hour)

	before := &discordgo.Member{GuildID: guildID, User: &discordgo.User{ID: userID}, Roles: []string{roleID}}
	after := &discordgo.Member{GuildID: guildID, User: &discordgo.User{ID: userID}, Roles: []string{roleID, "other"}}
	d.OnMemberUpdate(ctx, before, after)
	d.OnMemberUpdate(ctx, nil, after)

	if len(fake.SentTo(channelID)) != 0 {
		t.Fatalf("no removal should be detected")
	}
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	d, fake, _ := setup(t)

	if got := content(d.Revoke(ctx, guildID, userID)); got != "<@42> has no active DayPass." {
		t.Fatalf("unexpected answer %q", got)
	}

	d.Grant(ctx, guildID, userID, time.Hour)
	if got := content(d.Revoke(ctx, guildID, userID)); got != "DayPass of <@42> has been revoked." {
		t.Fatalf("unexpected answer %q", got)
	}
	if len(fake.RoleChanges) != 2 || fake.RoleChanges[1].Added {
		t.Fatalf("expected role removal, got %+v", fake.RoleChanges)
	}
	if len(fake.SentTo(channelID)) != 0 {
		t.Fatalf("revocations are not announced in the channel")
	}
}

func TestOnMemberRemove(t *testing.T) {
	ctx := context.Background()
	d, fake, _ := setup(t)
	d.Grant(ctx, guildID, userID, time.Hour)
	d.OnMemberRemove(ctx, guildID, userID)

	if got := content(d.List(ctx, guildID)); got != "There are no active DayPasses." {
		t.Fatalf("pass of departed member still tracked: %q", got)
	}
	if len(fake.SentTo(channelID)) != 0 {
		t.Fatalf("departures are silent")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := map[time.Duration]string{
		time.Hour:        "1 hour",
		3 * time.Hour:    "3 hours",
		90 * time.Minute: "90 minutes",
		time.Minute:      "1 minute",
	}
	for duration, want := range tests {
		if got := FormatDuration(duration); got != want {
			t.Fatalf("FormatDuration(%s) = %q, want %q", duration, got, want)
		}
	}
}
