package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandArgText(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", "/footer see you there", "see you there"},
		{"bot mention stripped", "/footer@relay_bot see you there", "see you there"},
		{"no args", "/footer", ""},
		{"mention only", "/footer@relay_bot", ""},
		{"inner spacing kept", "/footer a  b", "a  b"},
		{"surrounding space", "  /footer hi  ", "hi"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, commandArgText(tc.raw))
		})
	}
}

func TestParseChannelID(t *testing.T) {
	id, ok := parseChannelID("-1001234567890")
	assert.True(t, ok)
	assert.Equal(t, int64(-1001234567890), id)

	for _, raw := range []string{"1234567890", "-999", "-100abc", ""} {
		_, ok := parseChannelID(raw)
		assert.False(t, ok, raw)
	}
}
