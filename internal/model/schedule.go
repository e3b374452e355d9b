package model

import (
	"time"

	"github.com/google/uuid"
)

// Schedule defines a recurring firing: at every listed HH:MM the engine
// sends PostsPerFiring randomly chosen posts from PostPool to every
// destination.
//
// PostsPerFiring <= len(PostPool) holds at creation time but can be
// violated later when posts are deleted; the engine then sends whatever
// remains instead of failing.
type Schedule struct {
	ID      string `bson:"_id" json:"id"`
	OwnerID int64  `bson:"owner_id" json:"owner_id"`

	// FiringTimes are zero-padded 24-hour "HH:MM" strings, unique,
	// in the scheduler's civil timezone.
	FiringTimes []string `bson:"firing_times" json:"firing_times"`

	PostPool       []string `bson:"post_pool" json:"post_pool"`
	PostsPerFiring int      `bson:"posts_per_firing" json:"posts_per_firing"`
	IsActive       bool     `bson:"is_active" json:"is_active"`

	CreatedAt      time.Time  `bson:"created_at" json:"created_at"`
	LastExecutedAt *time.Time `bson:"last_executed_at,omitempty" json:"last_executed_at,omitempty"`
}

func NewScheduleID() string { return uuid.NewString() }

// FiresAt reports whether the schedule matches the given "HH:MM" tick.
// Matching is exact string equality, never a range.
func (s *Schedule) FiresAt(hhmm string) bool {
	for _, t := range s.FiringTimes {
		if t == hhmm {
			return true
		}
	}
	return false
}
