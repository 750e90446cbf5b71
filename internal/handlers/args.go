package handlers

import (
	"fmt"
	"strconv"
	"strings"

	"nai-prompt-bot/internal/compose"
	"nai-prompt-bot/internal/engine"
	"nai-prompt-bot/internal/preset"
)

// parseSeed reads an optional decimal seed; an empty argument draws one.
func parseSeed(args string, draw func() uint64) (uint64, error) {
	args = strings.TrimSpace(args)
	if args == "" {
		return draw(), nil
	}
	seed, err := strconv.ParseUint(strings.Fields(args)[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("seed must be a non-negative integer, got %q", args)
	}
	return seed, nil
}

func parseGender(args string) (preset.Gender, error) {
	switch strings.ToLower(strings.TrimSpace(args)) {
	case "female", "f", "girl":
		return preset.GenderFemale, nil
	case "male", "m", "boy":
		return preset.GenderMale, nil
	case "other", "o":
		return preset.GenderOther, nil
	case "none", "any", "":
		return preset.GenderNone, nil
	}
	return "", fmt.Errorf("unknown gender %q (female, male, other, none)", args)
}

func parseScope(args string) (preset.Scope, error) {
	switch strings.ToLower(strings.TrimSpace(args)) {
	case "all", "":
		return preset.ScopeAll, nil
	case "character", "char":
		return preset.ScopeCharacter, nil
	case "scene":
		return preset.ScopeScene, nil
	}
	return "", fmt.Errorf("unknown scope %q (all, character, scene)", args)
}

func genderLabel(g preset.Gender) string {
	if g == preset.GenderNone {
		return "none"
	}
	return string(g)
}

func presetLabel(p *preset.Preset) string {
	if strings.TrimSpace(p.Name) != "" {
		return p.Name
	}
	return p.ID
}

func displayText(text string) string {
	if text == "" {
		return "(empty)"
	}
	return text
}

func resultSummary(res engine.Result) string {
	summary := fmt.Sprintf("seed %d · %d decisions", res.Seed, len(res.Trace))
	if w := len(res.Trace.Warnings()); w > 0 {
		summary += fmt.Sprintf(" · ⚠️ %d warning(s), see /trace", w)
	}
	return summary
}

func formatTrace(t engine.Trace) string {
	if len(t) == 0 {
		return "(no decisions)"
	}

	var b strings.Builder
	for i, e := range t {
		if i > 0 {
			b.WriteByte('\n')
		}
		marker := "·"
		switch {
		case e.Decision.IsWarning():
			marker = "!"
		case e.Decision.IsIncluded():
			marker = "+"
		}
		fmt.Fprintf(&b, "%s %s %s: %s", marker, e.Kind, e.NodeID, e.Decision)
		if len(e.Chosen) > 0 {
			fmt.Fprintf(&b, " [%s]", strings.Join(e.Chosen, ", "))
		}
		if e.Detail != "" {
			fmt.Fprintf(&b, " (%s)", e.Detail)
		}
	}
	return b.String()
}

func formatComposition(c compose.Composition) string {
	var b strings.Builder
	fmt.Fprintf(&b, "seed %d · %s\n\n", c.Seed, c.CountCategory)
	b.WriteString(displayText(c.Main.Text))
	for _, ch := range c.Characters {
		fmt.Fprintf(&b, "\n\nCharacter %d (%s):\n%s", ch.Slot, genderLabel(ch.Gender), displayText(ch.Result.Text))
	}
	return b.String()
}
