// Package grant tracks time bounded privileges (a role given for a few
// hours, for example) per subject and scope.
//
// The store is the single source of truth. Whoever removes a grant from the
// store is the only one allowed to act on its removal, which keeps revokes
// from happening twice when a sweep and a command race each other.
package grant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"guildkeeper/internal/common"
	"guildkeeper/internal/store"

	"github.com/rs/zerolog/log"
)

type Grant struct {
	Subject string          `json:"subject"`
	Scope   string          `json:"scope"`
	Granted time.Time       `json:"granted"`
	Expiry  time.Time       `json:"expiry"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// A grant is expired from the very instant of its expiry
func (g Grant) Expired(now time.Time) bool {
	return !now.Before(g.Expiry)
}

// Document stored per scope. Grants are kept in insertion order
type grantSet struct {
	Grants []Grant `json:"grants"`
}

func (set *grantSet) find(subject string) int {
	for i, g := range set.Grants {
		if g.Subject == subject {
			return i
		}
	}
	return -1
}

func (set *grantSet) remove(i int) Grant {
	g := set.Grants[i]
	set.Grants = append(set.Grants[:i], set.Grants[i+1:]...)
	return g
}

// ErrNotHeld is returned by a Revoker when the subject had already lost the
// privilege. The grant is dropped without any event
var ErrNotHeld = errors.New("privilege no longer held")

type EventKind int

const (
	EventExpired EventKind = iota
	EventManuallyRemoved
	EventRevoked
)

func (kind EventKind) String() string {
	switch kind {
	case EventExpired:
		return "expired"
	case EventManuallyRemoved:
		return "manually removed"
	case EventRevoked:
		return "revoked"
	default:
		return fmt.Sprintf("event(%d)", int(kind))
	}
}

type Event struct {
	Kind  EventKind
	Grant Grant
}

// Revoker removes the external privilege of a grant (the role, usually)
type Revoker interface {
	Revoke(ctx context.Context, g Grant) error
}

type Notifier interface {
	Notify(ctx context.Context, event Event)
}

type RevokerFunc func(ctx context.Context, g Grant) error

func (f RevokerFunc) Revoke(ctx context.Context, g Grant) error {
	return f(ctx, g)
}

type NotifierFunc func(ctx context.Context, event Event)

func (f NotifierFunc) Notify(ctx context.Context, event Event) {
	f(ctx, event)
}

type Tracker struct {
	namespace string
	store     store.Store
	revoker   Revoker
	notifier  Notifier
	now       func() time.Time
}

type Option func(*Tracker)

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func WithNotifier(notifier Notifier) Option {
	return func(t *Tracker) { t.notifier = notifier }
}

func NewTracker(namespace string, s store.Store, revoker Revoker, opts ...Option) *Tracker {
	t := &Tracker{
		namespace: namespace,
		store:     s,
		revoker:   revoker,
		notifier:  NotifierFunc(func(context.Context, Event) {}),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Grant starts tracking a new grant expiring duration from now.
// It fails with common.ErrAlreadyActive if the subject still holds a grant
// that has not expired. The caller applies the external privilege only
// after this call succeeds
func (t *Tracker) Grant(ctx context.Context, subject string, scope string, duration time.Duration, payload json.RawMessage) (Grant, error) {

	if duration <= 0 {
		return Grant{}, fmt.Errorf("grant duration must be positive, got %s", duration)
	}

	var granted Grant
	err := store.Mutate(ctx, t.store, t.namespace, scope, func(set *grantSet) error {
		now := t.now()
		if i := set.find(subject); i >= 0 {
			if !set.Grants[i].Expired(now) {
				return fmt.Errorf("subject %s in scope %s: %w", subject, scope, common.ErrAlreadyActive)
			}
			// Expired but not swept yet: the new grant takes its place
			set.remove(i)
		}
		granted = Grant{Subject: subject, Scope: scope, Granted: now, Expiry: now.Add(duration), Payload: payload}
		set.Grants = append(set.Grants, granted)
		return nil
	})
	if err != nil {
		return Grant{}, err
	}

	log.Info().Msg(fmt.Sprintf("Granted %s to %s in %s until %s", t.namespace, subject, scope, granted.Expiry.Format(time.RFC3339)))
	return granted, nil
}

// Revoke ends a grant before its expiry and removes the external privilege.
// Revoking a grant that does not exist is not an error.
// The record is gone even if the external revoke fails
func (t *Tracker) Revoke(ctx context.Context, subject string, scope string) error {

	g, removed, err := t.take(ctx, subject, scope)
	if err != nil || !removed {
		return err
	}

	if err := t.revoker.Revoke(ctx, g); err != nil {
		if errors.Is(err, ErrNotHeld) {
			log.Info().Msg(fmt.Sprintf("%s of %s in %s was no longer held", t.namespace, subject, scope))
			return nil
		}
		err = common.Classify(err)
		log.Error().Err(err).Msg(fmt.Sprintf("Could not revoke %s of %s in %s", t.namespace, subject, scope))
		return err
	}
	log.Info().Msg(fmt.Sprintf("Revoked %s of %s in %s", t.namespace, subject, scope))
	t.notifier.Notify(ctx, Event{Kind: EventRevoked, Grant: g})
	return nil
}

// ListActive returns the grants tracked in the scope, in insertion order
func (t *Tracker) ListActive(ctx context.Context, scope string) ([]Grant, error) {

	set, err := store.Load[grantSet](ctx, t.store, t.namespace, scope)
	if err != nil {
		return nil, err
	}
	return set.Grants, nil
}

// Lookup returns the grant of the subject, if any
func (t *Tracker) Lookup(ctx context.Context, subject string, scope string) (Grant, bool, error) {

	set, err := store.Load[grantSet](ctx, t.store, t.namespace, scope)
	if err != nil {
		return Grant{}, false, err
	}
	if i := set.find(subject); i >= 0 {
		return set.Grants[i], true, nil
	}
	return Grant{}, false, nil
}

// SweepExpired removes every grant, in every scope, whose expiry is not
// after now. For each one the external privilege is revoked and an expired
// event is emitted. Failures are logged per subject and never stop the
// sweep; the grant stays removed either way.
// Returns the number of grants removed
func (t *Tracker) SweepExpired(ctx context.Context, now time.Time) (int, error) {

	scopes, err := t.store.Scopes(ctx, t.namespace)
	if err != nil {
		return 0, fmt.Errorf("listing %s scopes: %w", t.namespace, err)
	}

	var errs []error
	removed := 0
	for _, scope := range scopes {

		var expired []Grant
		err := store.Mutate(ctx, t.store, t.namespace, scope, func(set *grantSet) error {
			// The update may be retried, start over every time
			expired = nil
			kept := set.Grants[:0]
			for _, g := range set.Grants {
				if g.Expired(now) {
					expired = append(expired, g)
				} else {
					kept = append(kept, g)
				}
			}
			set.Grants = kept
			return nil
		})
		if err != nil {
			log.Error().Err(err).Msg(fmt.Sprintf("Could not sweep %s of scope %s", t.namespace, scope))
			errs = append(errs, err)
			continue
		}

		for _, g := range expired {
			removed++
			t.expire(ctx, g)
		}
	}

	if removed > 0 {
		log.Info().Msg(fmt.Sprintf("Swept %d expired %s grants", removed, t.namespace))
	}
	return removed, errors.Join(errs...)
}

func (t *Tracker) expire(ctx context.Context, g Grant) {

	if err := t.revoker.Revoke(ctx, g); err != nil {
		if errors.Is(err, ErrNotHeld) {
			log.Info().Msg(fmt.Sprintf("Expired %s of %s in %s was no longer held", t.namespace, g.Subject, g.Scope))
			return
		}
		err = common.Classify(err)
		if errors.Is(err, common.ErrUnknownMember) {
			// Left the guild, nobody to tell
			log.Debug().Msg(fmt.Sprintf("Expired %s of %s in %s belonged to a departed member", t.namespace, g.Subject, g.Scope))
			return
		}
		log.Error().Err(err).Msg(fmt.Sprintf("Could not revoke expired %s of %s in %s", t.namespace, g.Subject, g.Scope))
		return
	}
	log.Info().Msg(fmt.Sprintf("%s of %s in %s expired", t.namespace, g.Subject, g.Scope))
	t.notifier.Notify(ctx, Event{Kind: EventExpired, Grant: g})
}

// ReconcileExternalRemoval is called when the privilege was removed by
// someone else. The record is dropped without revoking anything and a
// manually removed event is emitted.
// Reports whether a grant was being tracked
func (t *Tracker) ReconcileExternalRemoval(ctx context.Context, subject string, scope string) (bool, error) {

	g, removed, err := t.take(ctx, subject, scope)
	if err != nil || !removed {
		return false, err
	}
	log.Info().Msg(fmt.Sprintf("%s of %s in %s was removed manually", t.namespace, subject, scope))
	t.notifier.Notify(ctx, Event{Kind: EventManuallyRemoved, Grant: g})
	return true, nil
}

// OnSubjectDeparture drops the grant of a subject that left the scope.
// Nothing is revoked and nobody is notified
func (t *Tracker) OnSubjectDeparture(ctx context.Context, subject string, scope string) (bool, error) {

	_, removed, err := t.take(ctx, subject, scope)
	if removed {
		log.Info().Msg(fmt.Sprintf("Dropped %s of %s, no longer in %s", t.namespace, subject, scope))
	}
	return removed, err
}

// Discard drops a grant with no side effect at all. Used to roll back a
// grant whose privilege could not be applied
func (t *Tracker) Discard(ctx context.Context, subject string, scope string) error {
	_, _, err := t.take(ctx, subject, scope)
	return err
}

func (t *Tracker) take(ctx context.Context, subject string, scope string) (Grant, bool, error) {

	var taken Grant
	var found bool
	err := store.Mutate(ctx, t.store, t.namespace, scope, func(set *grantSet) error {
		found = false
		if i := set.find(subject); i >= 0 {
			taken = set.remove(i)
			found = true
		}
		return nil
	})
	if err != nil {
		return Grant{}, false, err
	}
	return taken, found, nil
}
