package platform

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

type ResponseString struct {
	Content   string
	Ephemeral bool
}

type ResponseEmbed struct {
	Embed     *discordgo.MessageEmbed
	Ephemeral bool
}

// Message with buttons or other components
type ResponseComponents struct {
	Content    string
	Embeds     []*discordgo.MessageEmbed
	Components []discordgo.MessageComponent
}

// A response can either be sent to a channel or used to answer an interaction
type Response interface {
	Message() *discordgo.MessageSend
	InteractionData() *discordgo.InteractionResponseData
}

func Text(format string, args ...any) ResponseString {
	return ResponseString{Content: fmt.Sprintf(format, args...)}
}

// Only visible to the user answering the interaction
func Private(format string, args ...any) ResponseString {
	return ResponseString{Content: fmt.Sprintf(format, args...), Ephemeral: true}
}

func (response ResponseString) Message() *discordgo.MessageSend {
	return &discordgo.MessageSend{Content: response.Content}
}

func (response ResponseString) InteractionData() *discordgo.InteractionResponseData {
	return &discordgo.InteractionResponseData{Content: response.Content, Flags: flags(response.Ephemeral)}
}

func (response ResponseEmbed) Message() *discordgo.MessageSend {
	return &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{response.Embed}}
}

func (response ResponseEmbed) InteractionData() *discordgo.InteractionResponseData {
	return &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{response.Embed}, Flags: flags(response.Ephemeral)}
}

func (response ResponseComponents) Message() *discordgo.MessageSend {
	return &discordgo.MessageSend{Content: response.Content, Embeds: response.Embeds, Components: response.Components}
}

func (response ResponseComponents) InteractionData() *discordgo.InteractionResponseData {
	return &discordgo.InteractionResponseData{Content: response.Content, Embeds: response.Embeds, Components: response.Components}
}

func flags(ephemeral bool) discordgo.MessageFlags {
	if ephemeral {
		return discordgo.MessageFlagsEphemeral
	}
	return 0
}

// Send all the responses to a channel, logging the ones that fail
func SendResponses(p Platform, channelID string, responses []Response) {
	for _, response := range responses {
		if _, err := p.Send(channelID, response.Message()); err != nil {
			log.Error().Err(err).Msg(fmt.Sprintf("Could not send response to channel %s", channelID))
		}
	}
}
