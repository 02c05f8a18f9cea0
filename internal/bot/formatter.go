package bot

import (
	"fmt"

	"guildkeeper/internal/platform"

	"github.com/bwmarrin/discordgo"
)

// Use "teal" color for the bot
const color int = 0x008080

type usage struct {
	command     string
	description string
}

var commandUsages = []usage{
	{"daypass setrole <role>", "Set the role handed out with a DayPass"},
	{"daypass setchannel <channel>", "Set the channel where DayPass expirations are announced"},
	{"daypass grant <member> <hours>", "Give a member the DayPass role for some hours (`90m` also works)"},
	{"daypass revoke <member>", "Remove a DayPass before it expires"},
	{"daypass list", "Print the active DayPasses"},
	{"circle setrole <role>", "Set the Champions Circle role"},
	{"circle setchannel <channel>", "Set the channel where the join message lives"},
	{"circle setreview <channel>", "Set the channel where applications are reviewed"},
	{"circle setup", "Post the join message in the Champions Circle channel"},
	{"circle list", "Print the applications and their status"},
	{"circle approve <member>", "Approve a pending application"},
	{"circle deny <member>", "Deny a pending application"},
	{"circle cancel <member>", "Cancel an application, removing the role if it was approved"},
	{"circle end", "End the tournament: remove the role from every champion and close all applications"},
	{"circle assign <member>", "Give the champions role directly, to check the bot can manage it"},
	{"dm <member> [<member>...] Title | Content", "Send an embed to the members by DM. The first attachment becomes the image"},
	{"dmrole <role> Title | Content", "Send an embed by DM to every member with the role"},
	{"help", "Print the usage of the different commands"},
}

func InputNotValid(errorMessage string) []platform.Response {
	return []platform.Response{platform.Text("Input not valid: \n> %s", errorMessage)}
}

func AdminOnly() []platform.Response {
	return []platform.Response{platform.Text("You need the Administrator permission to use this command.")}
}

func PrivateMessage() []platform.Response {
	return []platform.Response{platform.Text("For the time being, I am ignoring private messages")}
}

func HelpMessage(prefix string) []platform.Response {

	embed := discordgo.MessageEmbed{Title: "Commands available", Color: color}
	for _, u := range commandUsages {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   fmt.Sprintf("`%s%s`", prefix, u.command),
			Value:  u.description,
			Inline: false,
		})
	}
	return []platform.Response{platform.ResponseEmbed{Embed: &embed}}
}
