package daypass

import (
	"fmt"
	"time"

	"guildkeeper/internal/grant"
	"guildkeeper/internal/platform"

	"github.com/bwmarrin/discordgo"
)

// Discord "blue"
const color int = 0x3498db

const expiryLayout = "2006-01-02 15:04:05 UTC"

func RoleNotFound(roleID string) []platform.Response {
	return []platform.Response{platform.Text("No role found with ID %s. Please check the ID and try again.", roleID)}
}

func RoleSet(role *discordgo.Role) []platform.Response {
	return []platform.Response{platform.Text("DayPass role set to %s (ID: %s)", role.Name, role.ID)}
}

func ChannelNotFound(channelID string) []platform.Response {
	return []platform.Response{platform.Text("No channel found with ID %s. Please check the ID and try again.", channelID)}
}

func ChannelSet(channel *discordgo.Channel) []platform.Response {
	return []platform.Response{platform.Text("DayPass channel set to %s (ID: %s)", channel.Name, channel.ID)}
}

func NotConfigured() []platform.Response {
	return []platform.Response{platform.Text("DayPass role or channel has not been set. Please set them first.")}
}

func SettingsBroken() []platform.Response {
	return []platform.Response{platform.Text("DayPass role or channel not found. Please check the settings.")}
}

func MemberNotFound(userID string) []platform.Response {
	return []platform.Response{platform.Text("%s is not a member of this server.", platform.Mention(userID))}
}

func AlreadyActive(userID string, expiry time.Time) []platform.Response {
	return []platform.Response{platform.Text("%s already has an active DayPass until %s.", platform.Mention(userID), expiry.Format(expiryLayout))}
}

func Granted(userID string, duration time.Duration) []platform.Response {
	return []platform.Response{platform.Text("DayPass granted to %s for %s.", platform.Mention(userID), FormatDuration(duration))}
}

func NoPermission() []platform.Response {
	return []platform.Response{platform.Text("Error: I don't have permission to manage the DayPass role. Check that my role is above it.")}
}

func TryAgain() []platform.Response {
	return []platform.Response{platform.Text("An error occurred while talking to Discord. Please try again later.")}
}

func NoPass(userID string) []platform.Response {
	return []platform.Response{platform.Text("%s has no active DayPass.", platform.Mention(userID))}
}

func Revoked(userID string) []platform.Response {
	return []platform.Response{platform.Text("DayPass of %s has been revoked.", platform.Mention(userID))}
}

func NoActivePasses() []platform.Response {
	return []platform.Response{platform.Text("There are no active DayPasses.")}
}

func ActivePasses(grants []grant.Grant, names map[string]string) []platform.Response {

	embed := discordgo.MessageEmbed{Title: "Active DayPasses", Color: color}
	for _, g := range grants {
		name, ok := names[g.Subject]
		if !ok {
			continue
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   name,
			Value:  fmt.Sprintf("Expires: %s", g.Expiry.UTC().Format(expiryLayout)),
			Inline: false,
		})
	}
	return []platform.Response{platform.ResponseEmbed{Embed: &embed}}
}

func ExpiredMessage(userID string) string {
	return fmt.Sprintf("%s's DayPass has expired.", platform.Mention(userID))
}

func ManuallyRemovedMessage(userID string) string {
	return fmt.Sprintf("%s's DayPass has been manually removed.", platform.Mention(userID))
}

// "2 hours", "1 hour", "90 minutes"...
func FormatDuration(duration time.Duration) string {
	plural := func(n int64, unit string) string {
		if n == 1 {
			return fmt.Sprintf("1 %s", unit)
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}
	if duration%time.Hour == 0 {
		return plural(int64(duration/time.Hour), "hour")
	}
	return plural(int64(duration.Round(time.Minute)/time.Minute), "minute")
}
