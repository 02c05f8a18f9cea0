// Package circle runs the Champions Circle: members apply, admins approve
// or deny, approved members get the champions role until the tournament ends.
package circle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"guildkeeper/internal/common"
	"guildkeeper/internal/platform"
	"guildkeeper/internal/settings"
	"guildkeeper/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const namespace = "circle"

type Circle struct {
	platform platform.Platform
	settings *settings.Database
	store    store.Store
	ttl      time.Duration
	now      func() time.Time
}

// New creates the circle. Pending applications expire after ttl, or never
// if ttl is not positive
func New(p platform.Platform, db *settings.Database, s store.Store, ttl time.Duration, now func() time.Time) *Circle {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Circle{platform: p, settings: db, store: s, ttl: ttl, now: now}
}

// Apply creates an active application. Fails with common.ErrAlreadyActive if
// the subject has a pending application or is already a champion. A previous
// denied application is cancelled
func (c *Circle) Apply(ctx context.Context, scope string, subject string, answers string) (Application, error) {

	var created Application
	err := store.Mutate(ctx, c.store, namespace, scope, func(r *roster) error {
		now := c.now()
		if i := r.find(subject); i >= 0 {
			existing := &r.Applications[i]
			switch {
			case existing.expired(now):
				// Waiting for the sweep, the new application replaces it
			case existing.Status == StatusActive || existing.Status == StatusApproved:
				return fmt.Errorf("application of %s is %s: %w", subject, existing.Status, common.ErrAlreadyActive)
			}
			if err := existing.transition(StatusCancelled, now, subject); err != nil {
				return err
			}
			r.remove(i)
		}
		created = Application{
			ID:        uuid.New(),
			Subject:   subject,
			Scope:     scope,
			Status:    StatusActive,
			Answers:   answers,
			Submitted: now,
		}
		if c.ttl > 0 {
			created.Expiry = now.Add(c.ttl)
		}
		r.Applications = append(r.Applications, created)
		return nil
	})
	if err != nil {
		return Application{}, err
	}
	log.Info().Msg(fmt.Sprintf("New Champions Circle application %s from %s in %s", created.ID, subject, scope))
	return created, nil
}

// Approve moves the pending application of the subject to approved and then
// gives the champions role. If the role cannot be given the application goes
// back to active, or is dropped when the subject left the guild
func (c *Circle) Approve(ctx context.Context, scope string, subject string, admin string) (Application, error) {
	return c.approveSelected(ctx, scope, selector{subject: subject}, admin)
}

// ApproveApplication approves the application with the given id only, so a
// decision taken on an old review message never applies to a newer one
func (c *Circle) ApproveApplication(ctx context.Context, scope string, id uuid.UUID, admin string) (Application, error) {
	return c.approveSelected(ctx, scope, selector{id: id}, admin)
}

func (c *Circle) Deny(ctx context.Context, scope string, subject string, admin string) (Application, error) {
	return c.denySelected(ctx, scope, selector{subject: subject}, admin)
}

func (c *Circle) DenyApplication(ctx context.Context, scope string, id uuid.UUID, admin string) (Application, error) {
	return c.denySelected(ctx, scope, selector{id: id}, admin)
}

func (c *Circle) approveSelected(ctx context.Context, scope string, sel selector, admin string) (Application, error) {

	guild, err := c.settings.Guild(ctx, scope)
	if err != nil {
		return Application{}, err
	}
	if guild.CircleRoleID == "" {
		return Application{}, fmt.Errorf("champions role of guild %s: %w", scope, common.ErrNotConfigured)
	}

	approved, err := c.decide(ctx, scope, sel, StatusApproved, admin)
	if err != nil {
		return Application{}, err
	}
	subject := approved.Subject

	if err := c.platform.AddRole(scope, subject, guild.CircleRoleID); err != nil {
		departed := errors.Is(err, common.ErrUnknownMember)
		if departed {
			log.Info().Msg(fmt.Sprintf("%s left before being approved, dropping the application", subject))
		} else {
			log.Error().Err(err).Msg(fmt.Sprintf("Could not give champions role to %s, application back to active", subject))
		}
		rollback := store.Mutate(ctx, c.store, namespace, scope, func(r *roster) error {
			i := r.findID(approved.ID)
			if i < 0 {
				return nil
			}
			if departed {
				r.remove(i)
				return nil
			}
			r.Applications[i].Status = StatusActive
			r.Applications[i].Decided = time.Time{}
			r.Applications[i].DecidedBy = ""
			return nil
		})
		if rollback != nil {
			log.Error().Err(rollback).Msg("Could not roll back approval")
		}
		return Application{}, err
	}

	log.Info().Msg(fmt.Sprintf("Application of %s in %s approved by %s", subject, scope, admin))
	c.refreshRoster(ctx, scope)
	return approved, nil
}

func (c *Circle) denySelected(ctx context.Context, scope string, sel selector, admin string) (Application, error) {

	denied, err := c.decide(ctx, scope, sel, StatusDenied, admin)
	if err != nil {
		return Application{}, err
	}
	log.Info().Msg(fmt.Sprintf("Application of %s in %s denied by %s", denied.Subject, scope, admin))
	return denied, nil
}

// An active application past its expiry is waiting for the sweep and can
// no longer be decided
func (c *Circle) decide(ctx context.Context, scope string, sel selector, to Status, admin string) (Application, error) {

	var decided Application
	err := store.Mutate(ctx, c.store, namespace, scope, func(r *roster) error {
		i := r.lookup(sel)
		if i < 0 {
			return fmt.Errorf("application %s: %w", sel, common.ErrNotFound)
		}
		now := c.now()
		if r.Applications[i].expired(now) {
			return fmt.Errorf("application %s: %w", sel, common.ErrExpired)
		}
		if err := r.Applications[i].transition(to, now, admin); err != nil {
			return err
		}
		decided = r.Applications[i]
		return nil
	})
	return decided, err
}

// Cancel ends the application of the subject whatever its status. The
// champions role is removed if it had been approved. The record is gone
// even if removing the role fails
func (c *Circle) Cancel(ctx context.Context, scope string, subject string, by string) (Application, error) {

	var cancelled Application
	var previous Status
	err := store.Mutate(ctx, c.store, namespace, scope, func(r *roster) error {
		i := r.find(subject)
		if i < 0 {
			return fmt.Errorf("application of %s: %w", subject, common.ErrNotFound)
		}
		previous = r.Applications[i].Status
		if err := r.Applications[i].transition(StatusCancelled, c.now(), by); err != nil {
			return err
		}
		cancelled = r.Applications[i]
		r.remove(i)
		return nil
	})
	if err != nil {
		return Application{}, err
	}
	log.Info().Msg(fmt.Sprintf("Application of %s in %s cancelled by %s", subject, scope, by))

	if previous != StatusApproved {
		return cancelled, nil
	}
	defer c.refreshRoster(ctx, scope)
	if err := c.removeRole(ctx, scope, subject); err != nil {
		return cancelled, err
	}
	return cancelled, nil
}

// List returns the applications of the scope in submission order
func (c *Circle) List(ctx context.Context, scope string) ([]Application, error) {

	r, err := store.Load[roster](ctx, c.store, namespace, scope)
	if err != nil {
		return nil, err
	}
	return r.Applications, nil
}

func (c *Circle) Lookup(ctx context.Context, scope string, subject string) (Application, bool, error) {

	r, err := store.Load[roster](ctx, c.store, namespace, scope)
	if err != nil {
		return Application{}, false, err
	}
	if i := r.find(subject); i >= 0 {
		return r.Applications[i], true, nil
	}
	return Application{}, false, nil
}

func (c *Circle) LookupApplication(ctx context.Context, scope string, id uuid.UUID) (Application, bool, error) {

	r, err := store.Load[roster](ctx, c.store, namespace, scope)
	if err != nil {
		return Application{}, false, err
	}
	if i := r.findID(id); i >= 0 {
		return r.Applications[i], true, nil
	}
	return Application{}, false, nil
}

// EndTournament cancels every application of the scope and takes the
// champions role back from every approved member. Role failures are logged
// and skipped. Returns the number of champions whose role was removed
func (c *Circle) EndTournament(ctx context.Context, scope string, admin string) (int, error) {

	var champions []Application
	err := store.Mutate(ctx, c.store, namespace, scope, func(r *roster) error {
		champions = r.withStatus(StatusApproved)
		r.Applications = nil
		return nil
	})
	if err != nil {
		return 0, err
	}
	log.Info().Msg(fmt.Sprintf("Tournament ended in %s by %s, %d champions", scope, admin, len(champions)))

	removed := 0
	for _, champion := range champions {
		if err := c.removeRole(ctx, scope, champion.Subject); err != nil {
			log.Error().Err(err).Msg(fmt.Sprintf("Could not remove champions role from %s", champion.Subject))
			continue
		}
		removed++
	}
	c.refreshRoster(ctx, scope)
	return removed, nil
}

// ExpirePending cancels every active application, in every scope, whose
// expiry is not after now. Returns the expired applications
func (c *Circle) ExpirePending(ctx context.Context, now time.Time) ([]Application, error) {

	scopes, err := c.store.Scopes(ctx, namespace)
	if err != nil {
		return nil, err
	}

	var errs []error
	all := []Application{}
	for _, scope := range scopes {
		var expired []Application
		err := store.Mutate(ctx, c.store, namespace, scope, func(r *roster) error {
			expired = nil
			kept := r.Applications[:0]
			for _, a := range r.Applications {
				if a.expired(now) {
					a.transition(StatusCancelled, now, "")
					expired = append(expired, a)
					continue
				}
				kept = append(kept, a)
			}
			r.Applications = kept
			return nil
		})
		if err != nil {
			log.Error().Err(err).Msg(fmt.Sprintf("Could not expire applications of %s", scope))
			errs = append(errs, err)
			continue
		}
		all = append(all, expired...)
	}
	if len(all) > 0 {
		log.Info().Msg(fmt.Sprintf("%d Champions Circle applications expired", len(all)))
	}
	return all, errors.Join(errs...)
}

// OnMemberRemove drops whatever the departed member had in the circle.
// The role is moot and nobody is told
func (c *Circle) OnMemberRemove(ctx context.Context, scope string, subject string) {

	var wasChampion bool
	var found bool
	err := store.Mutate(ctx, c.store, namespace, scope, func(r *roster) error {
		found, wasChampion = false, false
		if i := r.find(subject); i >= 0 {
			found = true
			wasChampion = r.Applications[i].Status == StatusApproved
			r.remove(i)
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg(fmt.Sprintf("Could not drop application of departed member %s", subject))
		return
	}
	if found {
		log.Info().Msg(fmt.Sprintf("Dropped application of %s, no longer in %s", subject, scope))
	}
	if wasChampion {
		c.refreshRoster(ctx, scope)
	}
}

// AssignRole gives the champions role directly, without any application
func (c *Circle) AssignRole(ctx context.Context, scope string, subject string) error {

	guild, err := c.settings.Guild(ctx, scope)
	if err != nil {
		return err
	}
	if guild.CircleRoleID == "" {
		return fmt.Errorf("champions role of guild %s: %w", scope, common.ErrNotConfigured)
	}
	return c.platform.AddRole(scope, subject, guild.CircleRoleID)
}

func (c *Circle) removeRole(ctx context.Context, scope string, subject string) error {

	guild, err := c.settings.Guild(ctx, scope)
	if err != nil {
		return err
	}
	if guild.CircleRoleID == "" {
		return fmt.Errorf("champions role of guild %s: %w", scope, common.ErrNotConfigured)
	}
	err = c.platform.RemoveRole(scope, subject, guild.CircleRoleID)
	if errors.Is(err, common.ErrUnknownMember) {
		return nil
	}
	return err
}

// Edit the roster message, if any, so that it lists the current champions
func (c *Circle) refreshRoster(ctx context.Context, scope string) {

	guild, err := c.settings.Guild(ctx, scope)
	if err != nil || guild.CircleRosterMessageID == "" {
		return
	}
	applications, err := c.List(ctx, scope)
	if err != nil {
		log.Error().Err(err).Msg("Could not read the roster")
		return
	}

	champions := []Champion{}
	for _, a := range applications {
		if a.Status != StatusApproved {
			continue
		}
		name := platform.Mention(a.Subject)
		if member, err := c.platform.Member(scope, a.Subject); err == nil && member.User != nil {
			name = member.User.Username
		}
		champions = append(champions, Champion{ID: a.Subject, Name: name})
	}

	if err := c.platform.EditEmbeds(guild.CircleRosterChannelID, guild.CircleRosterMessageID, RosterEmbeds(champions)); err != nil {
		log.Error().Err(err).Msg(fmt.Sprintf("Could not update the roster of %s", scope))
	}
}
