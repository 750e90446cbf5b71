package engine

import (
	"strings"

	"nai-prompt-bot/internal/preset"
)

const (
	EmphasisOpen  = "{"
	EmphasisClose = "}"
)

// Emphasize wraps text in n nested emphasis pairs. Empty text and n == 0
// return text unchanged.
func Emphasize(text string, n int) string {
	if n <= 0 || text == "" {
		return text
	}
	return strings.Repeat(EmphasisOpen, n) + text + strings.Repeat(EmphasisClose, n)
}

// bracketCount draws the emphasis count for one node instance. A fixed range
// draws nothing.
func bracketCount(rng *RNG, br preset.BracketRange) int {
	if br.IsZero() || br.Max < br.Min {
		return 0
	}
	if br.Min == br.Max {
		return int(br.Min)
	}
	return int(br.Min) + rng.IntN(int(br.Max-br.Min)+1)
}
