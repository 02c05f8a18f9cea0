package common

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

const (
	UNAUTHORIZED          int = 401
	FORBIDDEN             int = 403
	DATA_NOT_FOUND        int = 404
	RATE_LIMIT_EXCEEDED   int = 429
	INTERNAL_SERVER_ERROR int = 500
)

var messages = map[int]string{
	UNAUTHORIZED:          "Unauthorized",
	FORBIDDEN:             "Forbidden",
	DATA_NOT_FOUND:        "Data not found",
	RATE_LIMIT_EXCEEDED:   "Rate limit exceeded",
	INTERNAL_SERVER_ERROR: "Internal server error",
}

func statusMessage(code int) string {
	if message, ok := messages[code]; ok {
		return message
	}
	if code > INTERNAL_SERVER_ERROR {
		return "Server error"
	}
	return "Unknown status"
}

// Classify maps an error returned by the Discord API onto the error
// taxonomy of this module. The original error stays in the chain, so
// callers can still inspect it with errors.As.
// Errors that do not come from the API are returned untouched
func Classify(err error) error {

	if err == nil {
		return nil
	}

	// Already classified
	for _, known := range []error{ErrPermissionDenied, ErrTransientIO, ErrNotFound} {
		if errors.Is(err, known) {
			return err
		}
	}

	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		code := restErr.Response.StatusCode
		status := fmt.Sprintf("discord answered %d %s", code, statusMessage(code))
		log.Debug().Msg(status)

		switch {
		case code == DATA_NOT_FOUND:
			if restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeUnknownMember {
				return fmt.Errorf("%w: %s: %w", ErrUnknownMember, status, err)
			}
			return fmt.Errorf("%w: %s: %w", ErrNotFound, status, err)
		case code == UNAUTHORIZED || code == FORBIDDEN:
			return fmt.Errorf("%w: %s: %w", ErrPermissionDenied, status, err)
		case code == RATE_LIMIT_EXCEEDED || code >= INTERNAL_SERVER_ERROR:
			return fmt.Errorf("%w: %s: %w", ErrTransientIO, status, err)
		default:
			return err
		}
	}

	var rateLimitErr *discordgo.RateLimitError
	if errors.As(err, &rateLimitErr) {
		return fmt.Errorf("%w: %w", ErrTransientIO, err)
	}

	// Network level problems and timeouts
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTransientIO, err)
	}

	return err
}
