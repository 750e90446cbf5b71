package preset

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Normalize fills omitted fields in place: enum defaults, a MultipleNum of 1
// for multiple-mode groups, and stable IDs for nodes that have none. IDs are
// derived from the preset ID and the node's position, so reloading the same
// document yields the same IDs.
func Normalize(p *Preset) {
	if p == nil {
		return
	}
	p.ID = strings.TrimSpace(p.ID)
	if p.ID == "" && strings.TrimSpace(p.Name) != "" {
		p.ID = derivedID("preset", strings.TrimSpace(p.Name))
	}

	n := normalizer{presetID: p.ID, seen: make(map[*TagGroup]struct{})}
	for i := range p.Categories {
		c := &p.Categories[i]
		path := "c" + strconv.Itoa(i)
		if c.ID == "" {
			c.ID = n.id(path)
		}
		if c.GroupSelectionMode == "" {
			c.GroupSelectionMode = SelectSingle
		}
		if c.Scope == "" {
			c.Scope = ScopeAll
		}
		for j := range c.Groups {
			n.group(&c.Groups[j], path+".g"+strconv.Itoa(j))
		}
	}

	for name, v := range p.Variables {
		base := "var:" + name
		if v.Group != nil {
			n.group(v.Group, base)
		}
		for g, grp := range v.Gendered {
			if grp != nil {
				n.group(grp, base+"@"+string(g))
			}
		}
	}

	if cc := p.Algorithm.CharacterCount; cc != nil {
		for i := range cc.Categories {
			cat := &cc.Categories[i]
			if cat.ID == "" {
				cat.ID = n.id("cc" + strconv.Itoa(i))
			}
			for j := range cat.TagOptions {
				opt := &cat.TagOptions[j]
				if opt.ID == "" {
					opt.ID = n.id("cc" + strconv.Itoa(i) + ".o" + strconv.Itoa(j))
				}
				if opt.Weight == 0 {
					opt.Weight = 1
				}
			}
		}
	}
}

type normalizer struct {
	presetID string
	seen     map[*TagGroup]struct{}
}

func (n *normalizer) id(path string) string {
	return derivedID(n.presetID, path)
}

func (n *normalizer) group(g *TagGroup, path string) {
	if _, ok := n.seen[g]; ok {
		return
	}
	n.seen[g] = struct{}{}

	if g.ID == "" {
		g.ID = n.id(path)
	}
	if g.SelectionMode == "" {
		g.SelectionMode = SelectSingle
	}
	if g.SelectionMode == SelectMultiple && g.MultipleNum == 0 {
		g.MultipleNum = 1
	}
	if g.Scope == "" {
		g.Scope = ScopeAll
	}
	if g.SourceType == "" {
		g.SourceType = SourceCustom
	}

	for k := range g.Children {
		child := &g.Children[k]
		childPath := path + "." + strconv.Itoa(k)
		switch {
		case child.Tag != nil:
			if child.Tag.ID == "" {
				child.Tag.ID = n.id(childPath)
			}
		case child.Group != nil:
			n.group(child.Group, childPath)
		}
	}
}

func derivedID(presetID, path string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("preset:"+presetID+"/"+path)).String()
}
