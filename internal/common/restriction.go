package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// A restriction means that only the specified number of requests
// are allowed for a specific time duration
type Restriction struct {
	Requests int
	Duration time.Duration
}

// Parse a restriction written as "<requests>/<duration>", for example "5/10s"
func ParseRestriction(text string) (Restriction, error) {

	requests, duration, found := strings.Cut(strings.TrimSpace(text), "/")
	if !found {
		return Restriction{}, fmt.Errorf("restriction %q is not of the form <requests>/<duration>", text)
	}
	count, err := strconv.Atoi(requests)
	if err != nil || count <= 0 {
		return Restriction{}, fmt.Errorf("restriction %q has an invalid number of requests", text)
	}
	window, err := time.ParseDuration(duration)
	if err != nil || window <= 0 {
		return Restriction{}, fmt.Errorf("restriction %q has an invalid duration", text)
	}
	return Restriction{Requests: count, Duration: window}, nil
}

// Token bucket equivalent: the bucket refills one request every
// Duration/Requests and holds at most Requests
func (rest Restriction) limiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(rest.Duration/time.Duration(rest.Requests)), rest.Requests)
}

func (rest Restriction) String() string {
	return fmt.Sprintf("%d/%s", rest.Requests, rest.Duration)
}
