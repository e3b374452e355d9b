package model

import (
	"time"

	"github.com/google/uuid"
)

// Kind discriminates the content type of a saved post. It matches the
// set of media the chat transport can re-send.
type Kind string

const (
	KindText      Kind = "text"
	KindPhoto     Kind = "photo"
	KindVideo     Kind = "video"
	KindDocument  Kind = "document"
	KindAudio     Kind = "audio"
	KindVoice     Kind = "voice"
	KindAnimation Kind = "animation"
)

// ValidKind reports whether k names a supported post kind.
func ValidKind(k Kind) bool {
	switch k {
	case KindText, KindPhoto, KindVideo, KindDocument, KindAudio, KindVoice, KindAnimation:
		return true
	}
	return false
}

// HasCaption reports whether the transport supports a caption for this kind.
// Voice notes do not; text posts carry their payload in Body instead.
func (k Kind) HasCaption() bool {
	switch k {
	case KindPhoto, KindVideo, KindDocument, KindAudio, KindAnimation:
		return true
	}
	return false
}

// Post is an immutable piece of saved content. It is only ever created
// and deleted, never edited.
type Post struct {
	ID       string `bson:"_id" json:"id"`
	OwnerID  int64  `bson:"owner_id" json:"owner_id"`
	Kind     Kind   `bson:"kind" json:"kind"`
	Body     string `bson:"body,omitempty" json:"body,omitempty"`
	MediaRef string `bson:"media_ref,omitempty" json:"media_ref,omitempty"`
	Caption  string `bson:"caption,omitempty" json:"caption,omitempty"`
	Title    string `bson:"title" json:"title"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

func NewPostID() string { return uuid.NewString() }

const titleMax = 50

// DeriveTitle builds the short human label shown in post lists,
// the way the original bot labels saved content.
func DeriveTitle(kind Kind, body, caption, filename string) string {
	switch kind {
	case KindText:
		return clip(body, titleMax)
	case KindPhoto:
		return labelWithCaption("Photo", caption)
	case KindVideo:
		return labelWithCaption("Video", caption)
	case KindDocument:
		if filename != "" {
			return "Document - " + clip(filename, titleMax)
		}
		return "Document"
	case KindAudio:
		return labelWithCaption("Audio", caption)
	case KindVoice:
		return "Voice Message"
	case KindAnimation:
		return labelWithCaption("GIF", caption)
	default:
		return string(kind)
	}
}

func labelWithCaption(label, caption string) string {
	if caption == "" {
		return label
	}
	return label + " - " + clip(caption, 30)
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
