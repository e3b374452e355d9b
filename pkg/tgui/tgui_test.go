package tgui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallbackDataRoundTrip(t *testing.T) {
	tests := []struct {
		area, action, payload string
		want                  string
	}{
		{"post", "show", "abc-123", "post:show:abc-123"},
		{"menu", "main", "", "menu:main"},
		{"sch", "del", "id:with:colons", "sch:del:id:with:colons"},
	}
	for _, tt := range tests {
		data := Data(tt.area, tt.action, tt.payload)
		assert.Equal(t, tt.want, data)

		area, action, payload := Parse(data)
		assert.Equal(t, tt.area, area)
		assert.Equal(t, tt.action, action)
		assert.Equal(t, tt.payload, payload)
	}
}

func TestParseDegenerate(t *testing.T) {
	area, action, payload := Parse("justarea")
	assert.Equal(t, "justarea", area)
	assert.Empty(t, action)
	assert.Empty(t, payload)
}

func TestCheckData(t *testing.T) {
	require.NoError(t, CheckData(Data("post", "show", strings.Repeat("x", 36))))
	err := CheckData(strings.Repeat("x", 65))
	assert.ErrorIs(t, err, ErrCallbackDataTooLong)
}

func TestTruncRunes(t *testing.T) {
	assert.Equal(t, "hello", TruncRunes("hello", 10))
	assert.Equal(t, "hel…", TruncRunes("hello", 3))
	assert.Equal(t, "héllo", TruncRunes("héllo", 5))
	assert.Equal(t, "", TruncRunes("hello", 0))
}

func TestPaginateSlice(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7}

	sub, prev, next := PaginateSlice(items, 0, 3)
	assert.Equal(t, []int{1, 2, 3}, sub)
	assert.False(t, prev)
	assert.True(t, next)

	sub, prev, next = PaginateSlice(items, 1, 3)
	assert.Equal(t, []int{4, 5, 6}, sub)
	assert.True(t, prev)
	assert.True(t, next)

	sub, prev, next = PaginateSlice(items, 2, 3)
	assert.Equal(t, []int{7}, sub)
	assert.True(t, prev)
	assert.False(t, next)

	sub, _, next = PaginateSlice(items, 9, 3)
	assert.Empty(t, sub)
	assert.False(t, next)
}

func TestPageLabel(t *testing.T) {
	assert.Equal(t, "Page 1/3 • 1-3 of 7", PageLabel(0, 3, 7))
	assert.Equal(t, "Page 3/3 • 7-7 of 7", PageLabel(2, 3, 7))
	assert.Equal(t, "Page 1/1", PageLabel(0, 8, 0))
}

func TestEscAndWrappers(t *testing.T) {
	assert.Equal(t, "a &lt;b&gt;", Esc("a <b>").String())
	assert.Equal(t, "<b>x</b>", B("x").String())
	assert.Equal(t, "<code>1 &amp; 2</code>", Code("1 & 2").String())
}

func TestInlineBuilder(t *testing.T) {
	kb := NewInline().
		Row(Btn("A", "m:a"), Btn("B", "m:b")).
		Row(Btn("C", "m:c"))
	rm := kb.Markup()
	require.Len(t, rm.InlineKeyboard, 2)
	assert.Len(t, rm.InlineKeyboard[0], 2)
	assert.Equal(t, "A", rm.InlineKeyboard[0][0].Text)
	assert.Equal(t, "m:c", rm.InlineKeyboard[1][0].Data)
}
