package util

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTime(t *testing.T) {
	want := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	cases := []string{
		"2024-10-10T10:10:10Z",
		"2024-10-10T12:10:10+02:00",
		"2024-10-10T10:10:10",
		"2024-10-10 10:10:10",
		strconv.FormatInt(want.Unix(), 10),
		strconv.FormatInt(want.UnixMilli(), 10),
	}
	for _, s := range cases {
		got, ok := ParseTime(s)
		require.True(t, ok, s)
		assert.True(t, got.Equal(want), "%s -> %v", s, got)
		assert.Equal(t, time.UTC, got.Location())
	}

	got, ok := ParseTime("2024-10-10T10:10:10.250")
	require.True(t, ok)
	assert.Equal(t, 250*time.Millisecond, got.Sub(want))

	got, ok = ParseTime("2024-10-10")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC), got)
}

func TestParseTimeRejects(t *testing.T) {
	for _, s := range []string{"", "  ", "yesterday", "-5", "0"} {
		_, ok := ParseTime(s)
		assert.False(t, ok, s)
	}
}

func TestDefaults(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	assert.Equal(t, def, ParseTimeDefault("nope", def))
	assert.Equal(t, 7, ParseIntDefault("", 7))
	assert.Equal(t, 7, ParseIntDefault("x", 7))
	assert.Equal(t, 42, ParseIntDefault(" 42 ", 7))
}
