package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHHMM(t *testing.T) {
	assert.Equal(t, "09:05", HHMM(time.Date(2026, 8, 28, 9, 5, 59, 0, time.UTC)))
	assert.Equal(t, "00:00", HHMM(time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "23:59", HHMM(time.Date(2026, 8, 28, 23, 59, 0, 0, time.UTC)))
}

func TestNewNilLocationDefaultsUTC(t *testing.T) {
	c := New(nil)
	assert.Equal(t, time.UTC, c.Location())
}

func TestNewUsesGivenLocation(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	c := New(loc)
	assert.Equal(t, loc, c.Location())
	assert.Equal(t, loc, c.Now().Location())
}

func TestFixed(t *testing.T) {
	f := Fixed{T: time.Date(2026, 8, 28, 18, 30, 12, 0, time.UTC)}
	assert.Equal(t, "18:30", f.NowHHMM())
	assert.Equal(t, f.T, f.Now())
}
