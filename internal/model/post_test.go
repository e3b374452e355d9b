package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name     string
		kind     Kind
		body     string
		caption  string
		filename string
		want     string
	}{
		{"short text", KindText, "hello world", "", "", "hello world"},
		{"long text clipped", KindText, strings.Repeat("a", 60), "", "", strings.Repeat("a", 50) + "..."},
		{"photo no caption", KindPhoto, "", "", "", "Photo"},
		{"photo with caption", KindPhoto, "", "sunset over the bay", "", "Photo - sunset over the bay"},
		{"photo long caption", KindPhoto, "", strings.Repeat("x", 40), "", "Photo - " + strings.Repeat("x", 30) + "..."},
		{"video", KindVideo, "", "clip", "", "Video - clip"},
		{"document with filename", KindDocument, "", "", "report.pdf", "Document - report.pdf"},
		{"document without filename", KindDocument, "", "", "", "Document"},
		{"audio", KindAudio, "", "", "", "Audio"},
		{"voice", KindVoice, "", "ignored", "", "Voice Message"},
		{"animation", KindAnimation, "", "funny", "", "GIF - funny"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveTitle(tt.kind, tt.body, tt.caption, tt.filename))
		})
	}
}

func TestValidKind(t *testing.T) {
	for _, k := range []Kind{KindText, KindPhoto, KindVideo, KindDocument, KindAudio, KindVoice, KindAnimation} {
		assert.True(t, ValidKind(k))
	}
	assert.False(t, ValidKind("sticker"))
	assert.False(t, ValidKind(""))
}

func TestHasCaption(t *testing.T) {
	assert.True(t, KindPhoto.HasCaption())
	assert.True(t, KindAnimation.HasCaption())
	assert.False(t, KindVoice.HasCaption())
	assert.False(t, KindText.HasCaption())
}

func TestScheduleFiresAtExactMatch(t *testing.T) {
	sc := Schedule{FiringTimes: []string{"09:30", "18:00"}}
	assert.True(t, sc.FiresAt("09:30"))
	assert.True(t, sc.FiresAt("18:00"))
	assert.False(t, sc.FiresAt("9:30"))
	assert.False(t, sc.FiresAt("09:31"))
	assert.False(t, sc.FiresAt(""))
}
