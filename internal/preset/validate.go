package preset

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"regexp"
	"slices"

	"github.com/go-playground/validator/v10"
)

var (
	presetValidate = validator.New()

	identifierRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_]*$`)
)

// Validate checks a preset without modifying it. All problems are collected
// into a single *ValidationError; nil means the preset is safe to sample.
//
// Nested groups that point back at one of their own ancestors are rejected
// here, since only ID references may form cycles. Reference cycles are legal
// input and are handled while sampling.
func Validate(p *Preset) error {
	if p == nil {
		return &ValidationError{Problems: []string{"preset is nil"}}
	}

	w := walker{
		ids:    make(map[string]string),
		groups: make(map[string]struct{}),
		done:   make(map[*TagGroup]struct{}),
		stack:  make(map[*TagGroup]struct{}),
	}
	for i := range p.Categories {
		c := &p.Categories[i]
		w.claim(c.ID, fmt.Sprintf("categories[%d]", i))
		if c.Key != "" && !identifierRe.MatchString(c.Key) {
			w.addf("categories[%d]: key %q is not a valid variable name", i, c.Key)
		}
		for j := range c.Groups {
			w.group(&c.Groups[j], fmt.Sprintf("categories[%d].groups[%d]", i, j))
		}
	}
	for _, name := range sortedKeys(p.Variables) {
		v := p.Variables[name]
		where := "variables." + name
		if !identifierRe.MatchString(name) {
			w.addf("%s: not a valid variable name", where)
		}
		if v.Group == nil && len(v.Gendered) == 0 {
			w.addf("%s: no pool bound", where)
		}
		if v.Group != nil {
			w.group(v.Group, where+".group")
		}
		for g, grp := range v.Gendered {
			switch g {
			case GenderFemale, GenderMale, GenderOther:
			default:
				w.addf("%s.gendered: unknown gender %q", where, g)
			}
			if grp != nil {
				w.group(grp, fmt.Sprintf("%s.gendered.%s", where, g))
			}
		}
	}
	for _, r := range w.refs {
		if _, ok := w.groups[r.id]; !ok {
			w.addf("%s: ref %q does not name a group", r.where, r.id)
		}
	}

	if !w.cyclic {
		if err := presetValidate.Struct(p); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) {
				for _, fe := range verrs {
					w.add(describeFieldError(fe))
				}
			} else {
				w.add(err.Error())
			}
		}
	}

	if len(w.problems) > 0 {
		return &ValidationError{PresetID: p.ID, Problems: w.problems}
	}
	return nil
}

type pendingRef struct {
	id    string
	where string
}

type walker struct {
	problems []string
	ids      map[string]string
	groups   map[string]struct{}
	refs     []pendingRef
	done     map[*TagGroup]struct{}
	stack    map[*TagGroup]struct{}
	cyclic   bool
}

func (w *walker) add(msg string) {
	w.problems = append(w.problems, msg)
}

func (w *walker) addf(format string, args ...any) {
	w.add(fmt.Sprintf(format, args...))
}

func (w *walker) claim(id, where string) {
	if id == "" {
		return
	}
	if prev, ok := w.ids[id]; ok {
		w.addf("%s: duplicate id %q (also used at %s)", where, id, prev)
		return
	}
	w.ids[id] = where
}

func (w *walker) group(g *TagGroup, where string) {
	if _, ok := w.stack[g]; ok {
		w.cyclic = true
		w.addf("%s: group %q contains itself; use ref to reuse a group", where, g.ID)
		return
	}
	if _, ok := w.done[g]; ok {
		return
	}
	w.stack[g] = struct{}{}
	defer func() {
		delete(w.stack, g)
		w.done[g] = struct{}{}
	}()

	w.claim(g.ID, where)
	if g.ID != "" {
		w.groups[g.ID] = struct{}{}
	}

	refTargets := make(map[string]struct{})
	for k := range g.Children {
		child := &g.Children[k]
		childWhere := fmt.Sprintf("%s.children[%d]", where, k)

		set := 0
		if child.Tag != nil {
			set++
		}
		if child.Group != nil {
			set++
		}
		if child.Ref != "" {
			set++
		}
		if set != 1 {
			w.addf("%s: exactly one of tag, group or ref must be set", childWhere)
			continue
		}

		switch {
		case child.Tag != nil:
			t := child.Tag
			w.claim(t.ID, childWhere)
			if t.Text == "" {
				w.addf("%s: tag text is empty", childWhere)
			}
			if math.IsNaN(t.Weight) || math.IsInf(t.Weight, 0) {
				w.addf("%s: weight must be finite", childWhere)
			}
		case child.Group != nil:
			w.group(child.Group, childWhere)
		default:
			if _, dup := refTargets[child.Ref]; dup {
				w.addf("%s: group %q refs %q more than once", childWhere, g.ID, child.Ref)
				continue
			}
			refTargets[child.Ref] = struct{}{}
			w.refs = append(w.refs, pendingRef{id: child.Ref, where: childWhere})
		}
	}
}

func describeFieldError(fe validator.FieldError) string {
	if fe.Param() != "" {
		return fmt.Sprintf("%s: failed %s=%s (value %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value())
	}
	return fmt.Sprintf("%s: failed %s (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
