package common

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// RateLimiter combines several restrictions. A request is only allowed
// when every restriction allows it
type RateLimiter struct {
	limiters []*rate.Limiter
}

func NewRateLimiter(restrictions []Restriction) *RateLimiter {
	rl := &RateLimiter{}
	for _, restriction := range restrictions {
		if restriction.Requests <= 0 || restriction.Duration <= 0 {
			log.Warn().Msg(fmt.Sprintf("Ignoring invalid restriction %s", restriction))
			continue
		}
		rl.limiters = append(rl.limiters, restriction.limiter())
	}
	return rl
}

// Decide if request is allowed.
// Execution blocks here until every restriction allows the request
// or the context is done
func (rl *RateLimiter) Allowed(ctx context.Context) bool {
	for _, limiter := range rl.limiters {
		if err := limiter.Wait(ctx); err != nil {
			log.Warn().Msg(fmt.Sprintf("Request abandoned while waiting: %s", err))
			return false
		}
	}
	return true
}
