package engine

import (
	"fmt"
	"regexp"

	"nai-prompt-bot/internal/preset"
)

var variablePattern = regexp.MustCompile(`__([A-Za-z0-9][A-Za-z0-9_]*?)__`)

// Variables returns the distinct variable names referenced in text, in order
// of first appearance.
func Variables(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, m := range variablePattern.FindAllStringSubmatch(text, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		out = append(out, m[1])
	}
	return out
}

// resolveVariables replaces every __name__ token in text with a fresh sample
// of the pool bound to name, then resolves tokens inside the replacement.
// Failures are recorded and never abort the expansion.
func (x *expansion) resolveVariables(text string, depth int) string {
	return variablePattern.ReplaceAllStringFunc(text, func(token string) string {
		name := variablePattern.FindStringSubmatch(token)[1]

		if _, active := x.vars[name]; active {
			x.record(name, KindVariable, CyclicVariable, nil, fmt.Sprintf("%v: %s", ErrCyclicVariable, name))
			return ""
		}
		if depth >= x.e.maxVarDepth {
			x.record(name, KindVariable, MaxDepthExceeded, nil,
				fmt.Sprintf("%v: variable nesting deeper than %d", ErrMaxDepthExceeded, x.e.maxVarDepth))
			return ""
		}

		sample, ok := x.variableSource(name)
		if !ok {
			x.record(name, KindVariable, UnresolvedVariable, nil, fmt.Sprintf("%v: %s", ErrUnresolvedVariable, name))
			return token
		}

		x.vars[name] = struct{}{}
		defer delete(x.vars, name)

		return x.resolveVariables(sample(), depth+1)
	})
}

// variableSource finds the pool bound to name: preset variables first, then
// a category keyed by name, then the global namespace. The Included entry is
// recorded before the pool is sampled so nested decisions follow it.
func (x *expansion) variableSource(name string) (func() string, bool) {
	if g := x.preset.Variables[name].For(x.gc.TargetGender); g != nil {
		return x.variableGroup(name, g), true
	}
	for i := range x.preset.Categories {
		c := &x.preset.Categories[i]
		if c.Key == name {
			return func() string {
				x.record(name, KindVariable, Included, []string{c.ID}, "")
				return x.category(c, false)
			}, true
		}
	}
	if g := x.e.namespace[name].For(x.gc.TargetGender); g != nil {
		return x.variableGroup(name, g), true
	}
	return nil, false
}

func (x *expansion) variableGroup(name string, g *preset.TagGroup) func() string {
	return func() string {
		x.record(name, KindVariable, Included, []string{g.ID}, "")
		return x.group(g)
	}
}
