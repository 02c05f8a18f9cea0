package circle

import (
	"fmt"
	"strings"
	"time"

	"guildkeeper/internal/platform"

	"github.com/bwmarrin/discordgo"
)

// Use "green" color for the circle
const color int = 0x00ff00

// Discord refuses embeds with more fields
const maxEmbedFields = 25

// Custom ids of the interactive components
const (
	ButtonApply   = "circle:apply"
	ButtonCancel  = "circle:cancel"
	ModalAnswers  = "circle:answers"
	InputAnswers  = "circle:answers:text"
	ButtonApprove = "circle:approve:"
	ButtonDeny    = "circle:deny:"
)

type Champion struct {
	ID   string
	Name string
}

func RosterEmbeds(champions []Champion) []*discordgo.MessageEmbed {

	embed := discordgo.MessageEmbed{Title: "Champions Circle", Description: "A list of our esteemed champions.", Color: color}
	for i, champion := range champions {
		if i == maxEmbedFields {
			embed.Footer = &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("and %d more", len(champions)-maxEmbedFields)}
			break
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   champion.Name,
			Value:  fmt.Sprintf("ID: %s", champion.ID),
			Inline: false,
		})
	}
	return []*discordgo.MessageEmbed{&embed}
}

func JoinMessage(champions []Champion) platform.ResponseComponents {
	return platform.ResponseComponents{
		Content: "Click the button to join the Champions Circle!",
		Embeds:  RosterEmbeds(champions),
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{Label: "Join the Champions Circle", Style: discordgo.SuccessButton, CustomID: ButtonApply},
				discordgo.Button{Label: "Cancel my application", Style: discordgo.SecondaryButton, CustomID: ButtonCancel},
			}},
		},
	}
}

// Form shown when a member presses the join button
func AnswersModal() *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: ModalAnswers,
			Title:    "Join the Champions Circle",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:    InputAnswers,
						Label:       "Why do you want to join?",
						Style:       discordgo.TextInputParagraph,
						Placeholder: "Tell the admins about yourself",
						Required:    true,
						MaxLength:   1000,
					},
				}},
			},
		},
	}
}

func ReviewMessage(a Application) platform.ResponseComponents {

	embed := discordgo.MessageEmbed{
		Title:       "New Champions Circle application",
		Description: fmt.Sprintf("From %s", platform.Mention(a.Subject)),
		Color:       color,
		Timestamp:   a.Submitted.Format(time.RFC3339),
	}
	answers := a.Answers
	if answers == "" {
		answers = "(no answer)"
	}
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Answers", Value: answers})
	if !a.Expiry.IsZero() {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Expires", Value: fmt.Sprintf("<t:%d:R>", a.Expiry.Unix())})
	}

	return platform.ResponseComponents{
		Embeds: []*discordgo.MessageEmbed{&embed},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{Label: "Approve", Style: discordgo.SuccessButton, CustomID: ButtonApprove + a.ID.String()},
				discordgo.Button{Label: "Deny", Style: discordgo.DangerButton, CustomID: ButtonDeny + a.ID.String()},
			}},
		},
	}
}

func ApplicationsEmbed(applications []Application) platform.Response {

	if len(applications) == 0 {
		return platform.Text("There are no Champions Circle applications.")
	}
	embed := discordgo.MessageEmbed{Title: "Champions Circle applications", Color: color}
	for _, status := range []Status{StatusActive, StatusApproved, StatusDenied} {
		mentions := []string{}
		for _, a := range applications {
			if a.Status == status {
				mentions = append(mentions, platform.Mention(a.Subject))
			}
		}
		if len(mentions) == 0 {
			continue
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("%s (%d)", strings.ToUpper(string(status[:1]))+string(status[1:]), len(mentions)),
			Value: truncate(strings.Join(mentions, " "), 1024),
		})
	}
	return platform.ResponseEmbed{Embed: &embed}
}

func truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	cut := strings.LastIndex(text[:max-3], " ")
	if cut < 0 {
		cut = max - 3
	}
	return text[:cut] + "..."
}

func RoleSet(role *discordgo.Role) []platform.Response {
	return []platform.Response{platform.Text("Champions role set to %s (ID: %s)", role.Name, role.ID)}
}

func RoleNotFound(roleID string) []platform.Response {
	return []platform.Response{platform.Text("No role found with ID %s. Please check the ID and try again.", roleID)}
}

func ChannelSet(kind string, channel *discordgo.Channel) []platform.Response {
	return []platform.Response{platform.Text("Champions Circle %s channel set to %s (ID: %s)", kind, channel.Name, channel.ID)}
}

func ChannelNotFound(channelID string) []platform.Response {
	return []platform.Response{platform.Text("No channel found with ID %s. Please check the ID and try again.", channelID)}
}

func WrongChannel() []platform.Response {
	return []platform.Response{platform.Text("This command can only be used in the Champions Circle channel.")}
}

func NotConfigured() []platform.Response {
	return []platform.Response{platform.Text("Error: Champions role not found. Please set it first.")}
}

func NoPermission() []platform.Response {
	return []platform.Response{platform.Text("Error: I don't have permission to assign roles.")}
}

func TryAgain() []platform.Response {
	return []platform.Response{platform.Text("An error occurred while assigning the role. Please try again later.")}
}
