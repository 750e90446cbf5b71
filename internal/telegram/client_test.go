package telegram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitByBytes(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitByBytes("short", 10))

	parts := splitByBytes(strings.Repeat("ab", 5), 4)
	assert.Equal(t, []string{"abab", "abab", "ab"}, parts)

	// Multi-byte runes are never cut.
	parts = splitByBytes("ééé", 3)
	assert.Equal(t, []string{"é", "é", "é"}, parts)
}

func TestTruncateByBytes(t *testing.T) {
	assert.Equal(t, "abc", truncateByBytes("abc", 5))
	assert.Equal(t, "ab", truncateByBytes("abc", 2))
	assert.Equal(t, "é", truncateByBytes("éé", 3))
}

func TestParseDataURL(t *testing.T) {
	mimeType, data, err := parseDataURL("data:image/png;base64,AAAA")
	require.NoError(t, err)
	assert.Equal(t, "image/png", mimeType)
	assert.Equal(t, "AAAA", data)

	mimeType, data, err = parseDataURL("BBBB")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mimeType)
	assert.Equal(t, "BBBB", data)

	_, _, err = parseDataURL("data:image/png")
	assert.Error(t, err)

	_, _, err = parseDataURL("  ")
	assert.Error(t, err)
}
