package model

import "time"

// Destination is a channel the bot delivers content to. The core stores
// only the opaque chat id; delivery permission is the transport's concern.
type Destination struct {
	ID      int64     `bson:"_id" json:"id"`
	AddedAt time.Time `bson:"added_at" json:"added_at"`
}

// Footer is the singleton text appended to every forwarded post.
type Footer struct {
	Text      string    `bson:"text" json:"text"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
