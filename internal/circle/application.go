package circle

import (
	"fmt"
	"time"

	"guildkeeper/internal/common"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusApproved  Status = "approved"
	StatusDenied    Status = "denied"
	StatusCancelled Status = "cancelled"
)

// Allowed transitions. Cancelled is terminal
var transitions = map[Status][]Status{
	StatusActive:   {StatusApproved, StatusDenied, StatusCancelled},
	StatusApproved: {StatusCancelled},
	StatusDenied:   {StatusCancelled},
}

func (status Status) CanTransition(to Status) bool {
	for _, allowed := range transitions[status] {
		if allowed == to {
			return true
		}
	}
	return false
}

type Application struct {
	ID        uuid.UUID `json:"id"`
	Subject   string    `json:"subject"`
	Scope     string    `json:"scope"`
	Status    Status    `json:"status"`
	Answers   string    `json:"answers,omitempty"`
	Submitted time.Time `json:"submitted"`
	// Zero when applications never expire
	Expiry    time.Time `json:"expiry,omitempty"`
	Decided   time.Time `json:"decided,omitempty"`
	DecidedBy string    `json:"decided_by,omitempty"`
}

func (a *Application) transition(to Status, now time.Time, by string) error {
	if !a.Status.CanTransition(to) {
		return fmt.Errorf("application of %s from %s to %s: %w", a.Subject, a.Status, to, common.ErrInvalidTransition)
	}
	a.Status = to
	a.Decided = now
	a.DecidedBy = by
	return nil
}

func (a *Application) expired(now time.Time) bool {
	return a.Status == StatusActive && !a.Expiry.IsZero() && !now.Before(a.Expiry)
}

// Document stored per guild. Cancelled applications are never stored
type roster struct {
	Applications []Application `json:"applications"`
}

func (r *roster) find(subject string) int {
	for i, a := range r.Applications {
		if a.Subject == subject {
			return i
		}
	}
	return -1
}

func (r *roster) findID(id uuid.UUID) int {
	for i, a := range r.Applications {
		if a.ID == id {
			return i
		}
	}
	return -1
}

// An application is picked by id when one is given, by subject otherwise
type selector struct {
	subject string
	id      uuid.UUID
}

func (sel selector) String() string {
	if sel.id != uuid.Nil {
		return sel.id.String()
	}
	return "of " + sel.subject
}

func (r *roster) lookup(sel selector) int {
	if sel.id != uuid.Nil {
		return r.findID(sel.id)
	}
	return r.find(sel.subject)
}

func (r *roster) remove(i int) {
	r.Applications = append(r.Applications[:i], r.Applications[i+1:]...)
}

func (r *roster) withStatus(status Status) []Application {
	result := []Application{}
	for _, a := range r.Applications {
		if a.Status == status {
			result = append(result, a)
		}
	}
	return result
}
