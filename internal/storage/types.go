package storage

import (
	"context"
	"errors"
	"time"

	"relaybot/internal/model"
)

// ErrNotFound is returned when a lookup by id matches nothing the caller
// is allowed to touch.
var ErrNotFound = errors.New("not found")

// Config configures storage. See config.StorageConfig for driver values.
type Config struct {
	Driver      string
	URI         string
	Database    string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence API used by the engine, the conversation
// flows, and the command surface. Implementations provide atomic
// per-document operations; there are no cross-entity transactions.
type Store interface {
	// Posts. Deletion is owner-scoped: deleting someone else's post
	// reports ErrNotFound.
	SavePost(ctx context.Context, p *model.Post) error
	PostsByOwner(ctx context.Context, ownerID int64) ([]model.Post, error)
	// PostsByIDs resolves ids to posts, silently dropping missing ones.
	// Result order follows the input ids.
	PostsByIDs(ctx context.Context, ids []string) ([]model.Post, error)
	DeletePost(ctx context.Context, id string, ownerID int64) error

	// Schedules.
	SaveSchedule(ctx context.Context, s *model.Schedule) error
	SchedulesByOwner(ctx context.Context, ownerID int64) ([]model.Schedule, error)
	ActiveSchedules(ctx context.Context) ([]model.Schedule, error)
	SetLastExecuted(ctx context.Context, id string, at time.Time) error
	// ToggleSchedule flips is_active and returns the new value.
	ToggleSchedule(ctx context.Context, id string, ownerID int64) (bool, error)
	DeleteSchedule(ctx context.Context, id string, ownerID int64) error

	// Conversation states, keyed by owner. Put overwrites any prior state.
	PutState(ctx context.Context, st *model.ConvState) error
	GetState(ctx context.Context, ownerID int64) (*model.ConvState, error)
	ClearState(ctx context.Context, ownerID int64) error
	// DeleteIdleStates evicts states idle since before the cutoff and
	// returns how many were removed.
	DeleteIdleStates(ctx context.Context, cutoff time.Time) (int, error)

	// Destinations (process-wide, administrator-owned).
	AddDestination(ctx context.Context, id int64) error
	RemoveDestination(ctx context.Context, id int64) error
	Destinations(ctx context.Context) ([]model.Destination, error)

	// Footer singleton. An absent footer reads as "".
	Footer(ctx context.Context) (string, error)
	SetFooter(ctx context.Context, text string) error

	Close(ctx context.Context) error
}
