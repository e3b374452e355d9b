package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseHHMM(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"9:30", "09:30", true},
		{"14:30", "14:30", true},
		{"0:00", "00:00", true},
		{"00:00", "00:00", true},
		{"23:59", "23:59", true},
		{"8 AM", "", false},
		{"1430", "", false},
		{"25:00", "", false},
		{"12:60", "", false},
		{"12:5", "", false},
		{"12:005", "", false},
		{"-1:30", "", false},
		{"12:30:00", "", false},
		{"", "", false},
		{":30", "", false},
		{"12:", "", false},
		{"ab:cd", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseHHMM(tt.in)
		assert.Equal(t, tt.ok, ok, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}
