package engine

import (
	"fmt"

	"nai-prompt-bot/internal/preset"
)

// Context is the per-call generation context. It is never modified during an
// expansion.
type Context struct {
	TargetGender   preset.Gender `json:"target_gender,omitempty" yaml:"target_gender,omitempty"`
	RequestedScope preset.Scope  `json:"requested_scope,omitempty" yaml:"requested_scope,omitempty"`
}

// normalized returns c with an empty scope read as ScopeAll, or an error for
// values outside the closed sets.
func (c Context) normalized() (Context, error) {
	switch c.RequestedScope {
	case "":
		c.RequestedScope = preset.ScopeAll
	case preset.ScopeAll, preset.ScopeCharacter, preset.ScopeScene:
	default:
		return c, fmt.Errorf("%w: scope %q", ErrInvalidContext, c.RequestedScope)
	}
	switch c.TargetGender {
	case preset.GenderNone, preset.GenderFemale, preset.GenderMale, preset.GenderOther:
	default:
		return c, fmt.Errorf("%w: gender %q", ErrInvalidContext, c.TargetGender)
	}
	return c, nil
}

// Eligible is the single constraint check for categories and groups. A node
// scoped to anything other than ScopeAll must match the requested scope, and
// an enabled gender restriction must list the target gender; an unknown
// target gender never satisfies a restriction.
func Eligible(scope preset.Scope, restriction *preset.GenderRestriction, c Context) (bool, Decision) {
	if scope != "" && scope != preset.ScopeAll && scope != c.RequestedScope {
		return false, SkippedByScope
	}
	if !restriction.Allows(c.TargetGender) {
		return false, SkippedByGender
	}
	return true, Included
}
