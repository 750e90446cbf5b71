// Package preset holds the randomized prompt preset tree: presets, categories,
// tag groups and tag entries, plus loading, validation and the preset library.
package preset

type SelectionMode string

const (
	SelectSingle   SelectionMode = "single"
	SelectMultiple SelectionMode = "multiple"
)

type Scope string

const (
	ScopeAll       Scope = "all"
	ScopeCharacter Scope = "character"
	ScopeScene     Scope = "scene"
)

// Gender is used to restrict nodes and to pick gendered variable pools.
// The zero value means no gender is known.
type Gender string

const (
	GenderNone   Gender = ""
	GenderFemale Gender = "female"
	GenderMale   Gender = "male"
	GenderOther  Gender = "other"
)

type SourceType string

const (
	SourceCustom SourceType = "custom"
	SourcePool   SourceType = "pool"
)

// BracketRange is the inclusive range of emphasis wrappers drawn for a node.
// The zero range applies no emphasis.
type BracketRange struct {
	Min uint32 `yaml:"min" json:"min" validate:"ltefield=Max"`
	Max uint32 `yaml:"max" json:"max"`
}

func (b BracketRange) IsZero() bool {
	return b.Min == 0 && b.Max == 0
}

type GenderRestriction struct {
	Enabled           bool     `yaml:"enabled" json:"enabled"`
	ApplicableGenders []Gender `yaml:"applicable_genders" json:"applicable_genders" validate:"dive,oneof=female male other"`
}

// Allows reports whether g satisfies the restriction. An unknown gender never
// satisfies an enabled restriction.
func (r *GenderRestriction) Allows(g Gender) bool {
	if r == nil || !r.Enabled {
		return true
	}
	if g == GenderNone {
		return false
	}
	for _, a := range r.ApplicableGenders {
		if a == g {
			return true
		}
	}
	return false
}

type Preset struct {
	ID         string                  `yaml:"id" json:"id" validate:"required"`
	Name       string                  `yaml:"name" json:"name"`
	Categories []Category              `yaml:"categories" json:"categories" validate:"dive"`
	Variables  map[string]VariablePool `yaml:"variables,omitempty" json:"variables,omitempty" validate:"dive"`
	Algorithm  AlgorithmConfig         `yaml:"algorithm,omitempty" json:"algorithm,omitempty"`
}

type Category struct {
	ID                 string             `yaml:"id" json:"id" validate:"required"`
	Name               string             `yaml:"name" json:"name"`
	Key                string             `yaml:"key,omitempty" json:"key,omitempty"`
	GroupSelectionMode SelectionMode      `yaml:"group_selection_mode" json:"group_selection_mode" validate:"omitempty,oneof=single multiple"`
	Probability        float64            `yaml:"probability" json:"probability" validate:"gte=0,lte=1"`
	Shuffle            bool               `yaml:"shuffle,omitempty" json:"shuffle,omitempty"`
	Scope              Scope              `yaml:"scope" json:"scope" validate:"omitempty,oneof=all character scene"`
	GenderRestriction  *GenderRestriction `yaml:"gender_restriction,omitempty" json:"gender_restriction,omitempty"`
	Bracket            BracketRange       `yaml:"bracket,omitempty" json:"bracket,omitempty"`
	Groups             []TagGroup         `yaml:"groups" json:"groups" validate:"dive"`
}

type TagGroup struct {
	ID                string             `yaml:"id" json:"id" validate:"required"`
	Name              string             `yaml:"name" json:"name"`
	SelectionMode     SelectionMode      `yaml:"selection_mode" json:"selection_mode" validate:"omitempty,oneof=single multiple"`
	Probability       float64            `yaml:"probability" json:"probability" validate:"gte=0,lte=1"`
	MultipleNum       uint32             `yaml:"multiple_num,omitempty" json:"multiple_num,omitempty"`
	Shuffle           bool               `yaml:"shuffle,omitempty" json:"shuffle,omitempty"`
	Bracket           BracketRange       `yaml:"bracket,omitempty" json:"bracket,omitempty"`
	Scope             Scope              `yaml:"scope" json:"scope" validate:"omitempty,oneof=all character scene"`
	GenderRestriction *GenderRestriction `yaml:"gender_restriction,omitempty" json:"gender_restriction,omitempty"`
	SourceType        SourceType         `yaml:"source_type" json:"source_type" validate:"omitempty,oneof=custom pool"`
	PoolID            string             `yaml:"pool_id,omitempty" json:"pool_id,omitempty" validate:"required_if=SourceType pool"`
	Children          []Child            `yaml:"children" json:"children" validate:"dive"`
}

// Child is one element of a group's ordered children. Exactly one field is set.
// Ref names another group of the same preset by ID.
type Child struct {
	Tag   *TagEntry `yaml:"tag,omitempty" json:"tag,omitempty"`
	Group *TagGroup `yaml:"group,omitempty" json:"group,omitempty"`
	Ref   string    `yaml:"ref,omitempty" json:"ref,omitempty"`
}

type TagEntry struct {
	ID      string       `yaml:"id" json:"id"`
	Text    string       `yaml:"text" json:"text"`
	Weight  float64      `yaml:"weight" json:"weight" validate:"gte=0"`
	Bracket BracketRange `yaml:"bracket,omitempty" json:"bracket,omitempty"`
}

// VariablePool binds a variable name to a pool. Gendered variants take
// precedence when the generation context names a gender that has one.
type VariablePool struct {
	Group    *TagGroup            `yaml:"group" json:"group"`
	Gendered map[Gender]*TagGroup `yaml:"gendered,omitempty" json:"gendered,omitempty" validate:"dive"`
}

// For returns the pool bound for gender g, or nil if none is bound.
func (v VariablePool) For(g Gender) *TagGroup {
	if g != GenderNone {
		if grp, ok := v.Gendered[g]; ok && grp != nil {
			return grp
		}
	}
	return v.Group
}

// Namespace is a global set of variable pools shared across presets.
type Namespace map[string]VariablePool

type AlgorithmConfig struct {
	CharacterCount *CharacterCountConfig `yaml:"character_count,omitempty" json:"character_count,omitempty"`
}

type CharacterCountConfig struct {
	Categories []CharacterCountCategory `yaml:"categories" json:"categories" validate:"dive"`
}

type CharacterCountCategory struct {
	ID         string               `yaml:"id" json:"id" validate:"required"`
	Name       string               `yaml:"name" json:"name"`
	Count      int                  `yaml:"count" json:"count" validate:"gte=0"`
	Weight     int                  `yaml:"weight" json:"weight" validate:"gte=0,lte=100"`
	TagOptions []CharacterTagOption `yaml:"tag_options" json:"tag_options" validate:"dive"`
}

type CharacterTagOption struct {
	ID      string   `yaml:"id" json:"id" validate:"required"`
	Tag     string   `yaml:"tag" json:"tag"`
	Weight  int      `yaml:"weight" json:"weight" validate:"gte=1,lte=100"`
	Enabled bool     `yaml:"enabled" json:"enabled"`
	Slots   []Gender `yaml:"slots,omitempty" json:"slots,omitempty" validate:"dive,oneof=female male other"`
}
