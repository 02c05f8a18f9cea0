package announce

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"guildkeeper/internal/common"
	"guildkeeper/internal/platform"
	"guildkeeper/internal/platform/platformtest"

	"github.com/bwmarrin/discordgo"
)

func unlimited() *common.RateLimiter {
	return common.NewRateLimiter([]common.Restriction{{Requests: 1000, Duration: time.Second}})
}

func TestParseContent(t *testing.T) {
	tests := []struct {
		content, title, body string
	}{
		{"Title | Body", "Title", "Body"},
		{"Only title", "Only title", ""},
		{"Title | Body | with pipe", "Title", "Body | with pipe"},
		{"| Body", "", "Body"},
	}
	for _, tt := range tests {
		title, body := ParseContent(tt.content)
		if title != tt.title || body != tt.body {
			t.Fatalf("ParseContent(%q) = %q, %q", tt.content, title, body)
		}
	}
}

func TestBuildEmbed(t *testing.T) {
	embed, err := BuildEmbed("Hello | World", "https://cdn/img.png")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if embed.Title != "Hello" || embed.Description != "World" || embed.Image == nil || embed.Image.URL != "https://cdn/img.png" {
		t.Fatalf("unexpected embed %+v", embed)
	}
	if _, err := BuildEmbed("  |  ", ""); err == nil {
		t.Fatalf("expected empty embeds to be refused")
	}
}

func joined(responses []platform.Response) string {
	parts := []string{}
	for _, response := range responses {
		parts = append(parts, response.Message().Content)
	}
	return strings.Join(parts, "\n")
}

func TestDirectMessage(t *testing.T) {
	fake := platformtest.New()
	fake.FailDirect["2"] = fmt.Errorf("%w: cannot send messages to this user", common.ErrPermissionDenied)
	a := New(fake, unlimited())

	users := []*discordgo.User{{ID: "1", Username: "alice"}, {ID: "2", Username: "bob"}}
	got := joined(a.DirectMessage(context.Background(), users, "News | Tournament tonight", ""))

	if !strings.Contains(got, "Embed sent to alice via DM.") {
		t.Fatalf("missing success for alice: %q", got)
	}
	if !strings.Contains(got, "Unable to send DM to bob. They may have DMs disabled.") {
		t.Fatalf("missing failure for bob: %q", got)
	}
	if len(fake.Direct) != 1 || fake.Direct[0].Message.Embeds[0].Title != "News" {
		t.Fatalf("unexpected DMs %+v", fake.Direct)
	}
}

func TestDirectMessage_RateLimited(t *testing.T) {
	fake := platformtest.New()
	a := New(fake, common.NewRateLimiter([]common.Restriction{{Requests: 1, Duration: time.Hour}}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	users := []*discordgo.User{{ID: "1", Username: "alice"}, {ID: "2", Username: "bob"}}
	got := joined(a.DirectMessage(ctx, users, "News", ""))

	if len(fake.Direct) != 1 {
		t.Fatalf("expected only one DM through the limiter, got %d", len(fake.Direct))
	}
	if !strings.Contains(got, "Could not send DM to bob") {
		t.Fatalf("unexpected answer %q", got)
	}
}

func TestRoleMessage(t *testing.T) {
	fake := platformtest.New()
	fake.AddRoleDefinition("g", "r", "Champions")
	fake.AddMember("g", "1", "r")
	fake.AddMember("g", "2", "r")
	fake.AddMember("g", "3")
	fake.FailDirect["2"] = common.ErrPermissionDenied
	a := New(fake, unlimited())

	got := joined(a.RoleMessage(context.Background(), "g", "r", "Hi | there", ""))
	if !strings.Contains(got, "Embed sent to 1 members of Champions via DM.") || !strings.Contains(got, "user2") {
		t.Fatalf("unexpected summary %q", got)
	}
	if len(fake.Direct) != 1 || fake.Direct[0].ChannelID != "1" {
		t.Fatalf("only members with the role should get a DM, got %+v", fake.Direct)
	}

	if got := joined(a.RoleMessage(context.Background(), "g", "missing", "Hi", "")); !strings.Contains(got, "No role found") {
		t.Fatalf("unexpected answer %q", got)
	}
}
