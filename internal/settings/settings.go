// Package settings stores the per guild configuration set by admins with
// the setrole / setchannel commands.
package settings

import (
	"context"

	"guildkeeper/internal/store"
)

const namespace = "settings"

type Guild struct {
	DayPassRoleID    string `json:"daypass_role_id,omitempty"`
	DayPassChannelID string `json:"daypass_channel_id,omitempty"`

	CircleRoleID          string `json:"circle_role_id,omitempty"`
	CircleChannelID       string `json:"circle_channel_id,omitempty"`
	CircleReviewChannelID string `json:"circle_review_channel_id,omitempty"`
	// Message holding the join button and the list of champions
	CircleRosterChannelID string `json:"circle_roster_channel_id,omitempty"`
	CircleRosterMessageID string `json:"circle_roster_message_id,omitempty"`
}

func (g Guild) DayPassConfigured() bool {
	return g.DayPassRoleID != "" && g.DayPassChannelID != ""
}

type Database struct {
	store store.Store
}

func NewDatabase(s store.Store) *Database {
	return &Database{store: s}
}

func (db *Database) Guild(ctx context.Context, guildID string) (Guild, error) {
	return store.Load[Guild](ctx, db.store, namespace, guildID)
}

func (db *Database) Update(ctx context.Context, guildID string, fn func(guild *Guild)) error {
	return store.Mutate(ctx, db.store, namespace, guildID, func(guild *Guild) error {
		fn(guild)
		return nil
	})
}
