package bot

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog/log"
)

const (
	COMMAND_DAYPASS_SETROLE    = iota
	COMMAND_DAYPASS_SETCHANNEL = iota
	COMMAND_DAYPASS_GRANT      = iota
	COMMAND_DAYPASS_REVOKE     = iota
	COMMAND_DAYPASS_LIST       = iota
	COMMAND_CIRCLE_SETROLE     = iota
	COMMAND_CIRCLE_SETCHANNEL  = iota
	COMMAND_CIRCLE_SETREVIEW   = iota
	COMMAND_CIRCLE_SETUP       = iota
	COMMAND_CIRCLE_LIST        = iota
	COMMAND_CIRCLE_APPROVE     = iota
	COMMAND_CIRCLE_DENY        = iota
	COMMAND_CIRCLE_CANCEL      = iota
	COMMAND_CIRCLE_END         = iota
	COMMAND_CIRCLE_ASSIGN      = iota
	COMMAND_DM                 = iota
	COMMAND_DMROLE             = iota
	COMMAND_HELP               = iota
)

const (
	PARSEID_OK                     = iota
	PARSEID_NO_BOT_PREFIX          = iota
	PARSEID_NO_COMMAND             = iota
	PARSEID_COMMAND_NOT_RECOGNISED = iota
	PARSEID_NO_SUBCOMMAND          = iota
	PARSEID_NO_INPUT               = iota
	PARSEID_NOT_AN_ID              = iota
	PARSEID_NOT_A_DURATION         = iota
	PARSEID_NO_CONTENT             = iota
)

var errorMessages map[int]string = map[int]string{
	PARSEID_NO_COMMAND:             "No command provided",
	PARSEID_COMMAND_NOT_RECOGNISED: "Command `%s` not recognised",
	PARSEID_NO_SUBCOMMAND:          "Command `%s` needs one of: %s",
	PARSEID_NO_INPUT:               "Command `%s` requires an argument",
	PARSEID_NOT_AN_ID:              "Input `%s` is not a mention nor an id",
	PARSEID_NOT_A_DURATION:         "Input `%s` is not a duration (number of hours, or something like `90m`)",
	PARSEID_NO_CONTENT:             "Command `%s` needs a message: `Title | Content`",
}

var subcommands = map[string]map[string]int{
	"daypass": {
		"setrole":    COMMAND_DAYPASS_SETROLE,
		"setchannel": COMMAND_DAYPASS_SETCHANNEL,
		"grant":      COMMAND_DAYPASS_GRANT,
		"revoke":     COMMAND_DAYPASS_REVOKE,
		"list":       COMMAND_DAYPASS_LIST,
	},
	"circle": {
		"setrole":    COMMAND_CIRCLE_SETROLE,
		"setchannel": COMMAND_CIRCLE_SETCHANNEL,
		"setreview":  COMMAND_CIRCLE_SETREVIEW,
		"setup":      COMMAND_CIRCLE_SETUP,
		"list":       COMMAND_CIRCLE_LIST,
		"approve":    COMMAND_CIRCLE_APPROVE,
		"deny":       COMMAND_CIRCLE_DENY,
		"cancel":     COMMAND_CIRCLE_CANCEL,
		"end":        COMMAND_CIRCLE_END,
		"assign":     COMMAND_CIRCLE_ASSIGN,
	},
}

// Commands whose only argument is a user, role or channel
var idCommands = map[int]bool{
	COMMAND_DAYPASS_SETROLE:    true,
	COMMAND_DAYPASS_SETCHANNEL: true,
	COMMAND_DAYPASS_REVOKE:     true,
	COMMAND_CIRCLE_SETROLE:     true,
	COMMAND_CIRCLE_SETCHANNEL:  true,
	COMMAND_CIRCLE_SETREVIEW:   true,
	COMMAND_CIRCLE_APPROVE:     true,
	COMMAND_CIRCLE_DENY:        true,
	COMMAND_CIRCLE_CANCEL:      true,
	COMMAND_CIRCLE_ASSIGN:      true,
}

// <@id>, <@!id>, <@&id> or <#id>
var mentionPattern = regexp.MustCompile(`^<(?:@!?|@&|#)(\d+)>$`)

type ParseResult struct {
	command      int
	parseid      int
	errorMessage string
	arguments    interface{}
}

type GrantArguments struct {
	UserID   string
	Duration time.Duration
}

type MessageArguments struct {
	UserIDs []string
	Content string
}

type RoleMessageArguments struct {
	RoleID  string
	Content string
}

func Parse(prefix string, message string) ParseResult {

	noInput := func(command int, commandString string) ParseResult {
		parseid := PARSEID_NO_INPUT
		return ParseResult{command: command, parseid: parseid, errorMessage: fmt.Sprintf(errorMessages[parseid], commandString)}
	}

	// The message has to start with the bot prefix
	if !strings.HasPrefix(message, prefix) {
		log.Debug().Msg("Reject message not intended for the bot")
		return ParseResult{parseid: PARSEID_NO_BOT_PREFIX}
	}

	// Get the command if valid
	commandString, rest := cutWord(message[len(prefix):])
	if commandString == "" {
		parseid := PARSEID_NO_COMMAND
		return ParseResult{parseid: parseid, errorMessage: errorMessages[parseid]}
	}
	commandString = strings.ToLower(commandString)

	switch commandString {
	case "daypass", "circle":
		subcommandString, rest := cutWord(rest)
		command, ok := subcommands[commandString][strings.ToLower(subcommandString)]
		if !ok {
			parseid := PARSEID_NO_SUBCOMMAND
			return ParseResult{parseid: parseid, errorMessage: fmt.Sprintf(errorMessages[parseid], commandString, subcommandNames(commandString))}
		}
		fullCommand := commandString + " " + strings.ToLower(subcommandString)

		switch {
		case idCommands[command]:
			// daypass revoke <member>, circle setrole <role>...
			word, _ := cutWord(rest)
			if word == "" {
				return noInput(command, fullCommand)
			}
			return parseId(command, word)
		case command == COMMAND_DAYPASS_GRANT:
			// daypass grant <member> <hours>
			return parseGrant(command, fullCommand, rest)
		default:
			// daypass list, circle setup, circle list, circle end
			return ParseResult{command: command, parseid: PARSEID_OK}
		}
	case "dm":
		// dm <member> [<member>...] Title | Content
		command := COMMAND_DM
		ids := []string{}
		for {
			word, remainder := cutWord(rest)
			id, ok := extractId(word)
			if !ok {
				break
			}
			ids = append(ids, id)
			rest = remainder
		}
		if len(ids) == 0 {
			word, _ := cutWord(rest)
			if word == "" {
				return noInput(command, commandString)
			}
			parseid := PARSEID_NOT_AN_ID
			return ParseResult{command: command, parseid: parseid, errorMessage: fmt.Sprintf(errorMessages[parseid], word)}
		}
		return parseContent(command, commandString, rest, MessageArguments{UserIDs: ids})
	case "dmrole":
		// dmrole <role> Title | Content
		command := COMMAND_DMROLE
		word, remainder := cutWord(rest)
		if word == "" {
			return noInput(command, commandString)
		}
		id, ok := extractId(word)
		if !ok {
			parseid := PARSEID_NOT_AN_ID
			return ParseResult{command: command, parseid: parseid, errorMessage: fmt.Sprintf(errorMessages[parseid], word)}
		}
		return parseContent(command, commandString, remainder, RoleMessageArguments{RoleID: id})
	case "help":
		return ParseResult{command: COMMAND_HELP, parseid: PARSEID_OK}
	default:
		parseid := PARSEID_COMMAND_NOT_RECOGNISED
		return ParseResult{parseid: parseid, errorMessage: fmt.Sprintf(errorMessages[parseid], commandString)}
	}
}

func parseId(command int, word string) ParseResult {
	id, ok := extractId(word)
	if !ok {
		parseid := PARSEID_NOT_AN_ID
		return ParseResult{command: command, parseid: parseid, errorMessage: fmt.Sprintf(errorMessages[parseid], word)}
	}
	return ParseResult{command: command, parseid: PARSEID_OK, arguments: id}
}

func parseGrant(command int, commandString string, rest string) ParseResult {

	member, rest := cutWord(rest)
	hours, _ := cutWord(rest)
	if member == "" || hours == "" {
		parseid := PARSEID_NO_INPUT
		return ParseResult{command: command, parseid: parseid, errorMessage: fmt.Sprintf(errorMessages[parseid], commandString)}
	}
	id, ok := extractId(member)
	if !ok {
		parseid := PARSEID_NOT_AN_ID
		return ParseResult{command: command, parseid: parseid, errorMessage: fmt.Sprintf(errorMessages[parseid], member)}
	}
	duration, ok := parseDuration(hours)
	if !ok {
		parseid := PARSEID_NOT_A_DURATION
		return ParseResult{command: command, parseid: parseid, errorMessage: fmt.Sprintf(errorMessages[parseid], hours)}
	}
	return ParseResult{command: command, parseid: PARSEID_OK, arguments: GrantArguments{UserID: id, Duration: duration}}
}

func parseContent(command int, commandString string, content string, arguments interface{}) ParseResult {

	content = strings.TrimSpace(content)
	if content == "" {
		parseid := PARSEID_NO_CONTENT
		return ParseResult{command: command, parseid: parseid, errorMessage: fmt.Sprintf(errorMessages[parseid], commandString)}
	}
	switch args := arguments.(type) {
	case MessageArguments:
		args.Content = content
		arguments = args
	case RoleMessageArguments:
		args.Content = content
		arguments = args
	}
	return ParseResult{command: command, parseid: PARSEID_OK, arguments: arguments}
}

// Largest number of hours a time.Duration can hold
const maxHours = math.MaxInt64 / int64(time.Hour)

// A plain number is a number of hours
func parseDuration(word string) (time.Duration, bool) {
	if hours, err := strconv.ParseInt(word, 10, 64); err == nil {
		if hours <= 0 || hours > maxHours {
			return 0, false
		}
		return time.Duration(hours) * time.Hour, true
	}
	duration, err := time.ParseDuration(word)
	if err != nil || duration <= 0 {
		return 0, false
	}
	return duration, true
}

func extractId(word string) (string, bool) {
	if match := mentionPattern.FindStringSubmatch(word); match != nil {
		return match[1], true
	}
	if word == "" {
		return "", false
	}
	for _, r := range word {
		if !unicode.IsDigit(r) {
			return "", false
		}
	}
	return word, true
}

// Split the first word from the rest of the text, keeping the rest untouched
func cutWord(text string) (string, string) {
	text = strings.TrimLeftFunc(text, unicode.IsSpace)
	end := strings.IndexFunc(text, unicode.IsSpace)
	if end == -1 {
		return text, ""
	}
	return text[:end], text[end:]
}

func subcommandNames(command string) string {
	names := []string{}
	for _, name := range []string{"setrole", "setchannel", "setreview", "setup", "grant", "revoke", "list", "approve", "deny", "cancel", "end", "assign"} {
		if _, ok := subcommands[command][name]; ok {
			names = append(names, "`"+name+"`")
		}
	}
	return strings.Join(names, ", ")
}
