package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"guildkeeper/internal/announce"
	"guildkeeper/internal/circle"
	"guildkeeper/internal/common"
	"guildkeeper/internal/config"
	"guildkeeper/internal/daypass"
	"guildkeeper/internal/platform"
	"guildkeeper/internal/settings"
	"guildkeeper/internal/store"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

const intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsMessageContent

type Bot struct {
	session       *discordgo.Session
	prefix        string
	sweepInterval time.Duration
	platform      platform.Platform
	daypass       *daypass.DayPass
	circle        *circle.Circle
	announcer     *announce.Announcer
}

func CreateBot(cfg config.Config, s store.Store) (*Bot, error) {

	// Create session
	discord, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("could not create discord session: %w", err)
	}
	discord.Identify.Intents = intents

	bot := newBot(cfg, platform.NewDiscord(discord), s, nil)
	bot.session = discord
	return bot, nil
}

func newBot(cfg config.Config, p platform.Platform, s store.Store, now func() time.Time) *Bot {

	db := settings.NewDatabase(s)
	return &Bot{
		prefix:        cfg.Prefix,
		sweepInterval: cfg.SweepInterval,
		platform:      p,
		daypass:       daypass.New(p, db, s, now),
		circle:        circle.New(p, db, s, cfg.ApplicationTTL, now),
		announcer:     announce.New(p, common.NewRateLimiter(cfg.DMRestrictions)),
	}
}

// Run opens the session and blocks until the context is done
func (bot *Bot) Run(ctx context.Context) error {

	discord := bot.session

	// Event handlers
	discord.AddHandler(bot.Ready)
	discord.AddHandler(bot.GuildCreate)
	discord.AddHandler(bot.Receive)
	discord.AddHandler(bot.Interact)
	discord.AddHandler(bot.MemberUpdate)
	discord.AddHandler(bot.MemberRemove)

	// Open session
	if err := discord.Open(); err != nil {
		return fmt.Errorf("could not open discord session: %w", err)
	}
	defer discord.Close()

	// Passes and applications that expired while the bot was down
	bot.housekeeping()
	scheduler, err := bot.startHousekeeping()
	if err != nil {
		return err
	}

	log.Info().Msg("Bot running, waiting for a termination signal")
	<-ctx.Done()

	log.Info().Msg("Stopping housekeeping")
	<-scheduler.Stop().Done()
	return nil
}

func (bot *Bot) Ready(discord *discordgo.Session, ready *discordgo.Ready) {
	log.Info().Msg(fmt.Sprintf("Logged in as %s, present in %d guilds", ready.User.Username, len(ready.Guilds)))
}

// Ask for the member list of every guild so that the state cache knows the
// roles a member had before an update
func (bot *Bot) GuildCreate(discord *discordgo.Session, guild *discordgo.GuildCreate) {
	if err := discord.RequestGuildMembers(guild.ID, "", 0, "", false); err != nil {
		log.Warn().Err(err).Msg(fmt.Sprintf("Could not request members of guild %s", guild.ID))
	}
}

func (bot *Bot) Receive(discord *discordgo.Session, message *discordgo.MessageCreate) {

	// Reject my own messages and the ones of other bots
	if message.Author == nil || message.Author.Bot || message.Author.ID == discord.State.User.ID {
		return
	}
	responses := bot.handleMessage(context.Background(), message.Message)
	platform.SendResponses(bot.platform, message.ChannelID, responses)
}

func (bot *Bot) handleMessage(ctx context.Context, message *discordgo.Message) []platform.Response {

	// Parse the input provided and call the appropriate function
	parseResult := Parse(bot.prefix, message.Content)
	switch parseResult.parseid {
	case PARSEID_NO_BOT_PREFIX:
		return nil
	case PARSEID_OK:
	default:
		// The command is invalid input, so it contains an error message
		errorMessage := parseResult.errorMessage
		log.Info().Msg(fmt.Sprintf("Wrong input: '%s'. Reason: %s", message.Content, errorMessage))
		return InputNotValid(errorMessage)
	}

	// Ignore messages from private channels
	if message.GuildID == "" {
		log.Info().Msg("Ignoring private message")
		return PrivateMessage()
	}

	if parseResult.command != COMMAND_HELP {
		admin, err := bot.platform.IsAdmin(message.GuildID, message.Author.ID, message.ChannelID)
		if err != nil {
			log.Error().Err(err).Msg(fmt.Sprintf("Could not check permissions of %s", message.Author.ID))
			return daypass.TryAgain()
		}
		if !admin {
			log.Info().Msg(fmt.Sprintf("Rejecting command of non admin %s", message.Author.ID))
			return AdminOnly()
		}
	}

	log.Info().Msg(fmt.Sprintf("Command understood: %s", message.Content))
	guildID := message.GuildID
	authorID := message.Author.ID
	switch parseResult.command {
	case COMMAND_DAYPASS_SETROLE:
		return bot.daypass.SetRole(ctx, guildID, idArgument(parseResult))
	case COMMAND_DAYPASS_SETCHANNEL:
		return bot.daypass.SetChannel(ctx, guildID, idArgument(parseResult))
	case COMMAND_DAYPASS_GRANT:
		switch args := parseResult.arguments.(type) {
		default:
			panic(fmt.Sprintf("unexpected type of grant arguments %T", args))
		case GrantArguments:
			return bot.daypass.Grant(ctx, guildID, args.UserID, args.Duration)
		}
	case COMMAND_DAYPASS_REVOKE:
		return bot.daypass.Revoke(ctx, guildID, idArgument(parseResult))
	case COMMAND_DAYPASS_LIST:
		return bot.daypass.List(ctx, guildID)
	case COMMAND_CIRCLE_SETROLE:
		return bot.circle.SetRole(ctx, guildID, idArgument(parseResult))
	case COMMAND_CIRCLE_SETCHANNEL:
		return bot.circle.SetChannel(ctx, guildID, idArgument(parseResult))
	case COMMAND_CIRCLE_SETREVIEW:
		return bot.circle.SetReviewChannel(ctx, guildID, idArgument(parseResult))
	case COMMAND_CIRCLE_SETUP:
		return bot.circle.Setup(ctx, guildID, message.ChannelID)
	case COMMAND_CIRCLE_LIST:
		return bot.circle.ListCommand(ctx, guildID)
	case COMMAND_CIRCLE_APPROVE:
		return bot.circle.ApproveCommand(ctx, guildID, authorID, idArgument(parseResult))
	case COMMAND_CIRCLE_DENY:
		return bot.circle.DenyCommand(ctx, guildID, authorID, idArgument(parseResult))
	case COMMAND_CIRCLE_CANCEL:
		return bot.circle.CancelCommand(ctx, guildID, authorID, idArgument(parseResult))
	case COMMAND_CIRCLE_END:
		return bot.circle.EndCommand(ctx, guildID, authorID)
	case COMMAND_CIRCLE_ASSIGN:
		return bot.circle.AssignCommand(ctx, guildID, idArgument(parseResult))
	case COMMAND_DM:
		switch args := parseResult.arguments.(type) {
		default:
			panic(fmt.Sprintf("unexpected type of dm arguments %T", args))
		case MessageArguments:
			return bot.announcer.DirectMessage(ctx, mentionedUsers(message, args.UserIDs), args.Content, imageURL(message))
		}
	case COMMAND_DMROLE:
		switch args := parseResult.arguments.(type) {
		default:
			panic(fmt.Sprintf("unexpected type of dmrole arguments %T", args))
		case RoleMessageArguments:
			return bot.announcer.RoleMessage(ctx, guildID, args.RoleID, args.Content, imageURL(message))
		}
	case COMMAND_HELP:
		return HelpMessage(bot.prefix)
	default:
		panic(fmt.Sprintf("Command %d is not one of the possible ones", parseResult.command))
	}
}

func (bot *Bot) Interact(discord *discordgo.Session, interaction *discordgo.InteractionCreate) {

	response := bot.handleInteraction(context.Background(), interaction.Interaction)
	if response == nil {
		return
	}
	if err := discord.InteractionRespond(interaction.Interaction, response); err != nil {
		log.Error().Err(err).Msg("Could not answer interaction")
	}
}

// Components and modals are routed by their custom id
func (bot *Bot) handleInteraction(ctx context.Context, interaction *discordgo.Interaction) *discordgo.InteractionResponse {

	if interaction.GuildID == "" || interaction.Member == nil || interaction.Member.User == nil {
		return nil
	}
	guildID := interaction.GuildID
	userID := interaction.Member.User.ID

	switch interaction.Type {
	case discordgo.InteractionMessageComponent:
		customID := interaction.MessageComponentData().CustomID
		switch {
		case customID == circle.ButtonApply:
			return bot.circle.PressApply(ctx, guildID, userID)
		case customID == circle.ButtonCancel:
			return reply(bot.circle.PressCancel(ctx, guildID, userID))
		case strings.HasPrefix(customID, circle.ButtonApprove), strings.HasPrefix(customID, circle.ButtonDeny):
			if interaction.Member.Permissions&discordgo.PermissionAdministrator == 0 {
				return reply(platform.Private("Only administrators can review applications."))
			}
			return reply(bot.circle.Review(ctx, guildID, userID, customID))
		}
		log.Debug().Msg(fmt.Sprintf("Ignoring component %s", customID))
	case discordgo.InteractionModalSubmit:
		data := interaction.ModalSubmitData()
		if data.CustomID == circle.ModalAnswers {
			return reply(bot.circle.SubmitAnswers(ctx, guildID, userID, modalValue(data, circle.InputAnswers)))
		}
		log.Debug().Msg(fmt.Sprintf("Ignoring modal %s", data.CustomID))
	}
	return nil
}

func (bot *Bot) MemberUpdate(discord *discordgo.Session, update *discordgo.GuildMemberUpdate) {
	bot.daypass.OnMemberUpdate(context.Background(), update.BeforeUpdate, update.Member)
}

func (bot *Bot) MemberRemove(discord *discordgo.Session, remove *discordgo.GuildMemberRemove) {
	if remove.Member == nil || remove.User == nil {
		return
	}
	ctx := context.Background()
	log.Info().Msg(fmt.Sprintf("Member %s left guild %s", remove.User.ID, remove.GuildID))
	bot.daypass.OnMemberRemove(ctx, remove.GuildID, remove.User.ID)
	bot.circle.OnMemberRemove(ctx, remove.GuildID, remove.User.ID)
}

func reply(response platform.Response) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: response.InteractionData(),
	}
}

func idArgument(parseResult ParseResult) string {
	switch id := parseResult.arguments.(type) {
	default:
		panic(fmt.Sprintf("unexpected type of id %T", id))
	case string:
		return id
	}
}

// Users named in the command, with their names when they were mentioned
func mentionedUsers(message *discordgo.Message, ids []string) []*discordgo.User {
	known := map[string]*discordgo.User{}
	for _, user := range message.Mentions {
		known[user.ID] = user
	}
	users := []*discordgo.User{}
	for _, id := range ids {
		if user, ok := known[id]; ok {
			users = append(users, user)
			continue
		}
		users = append(users, &discordgo.User{ID: id, Username: id})
	}
	return users
}

// The first attachment becomes the image of the embed
func imageURL(message *discordgo.Message) string {
	if len(message.Attachments) == 0 {
		return ""
	}
	return message.Attachments[0].URL
}

func modalValue(data discordgo.ModalSubmitInteractionData, customID string) string {
	for _, component := range data.Components {
		var row discordgo.ActionsRow
		switch c := component.(type) {
		case *discordgo.ActionsRow:
			row = *c
		case discordgo.ActionsRow:
			row = c
		default:
			continue
		}
		for _, inner := range row.Components {
			switch input := inner.(type) {
			case *discordgo.TextInput:
				if input.CustomID == customID {
					return input.Value
				}
			case discordgo.TextInput:
				if input.CustomID == customID {
					return input.Value
				}
			}
		}
	}
	return ""
}
