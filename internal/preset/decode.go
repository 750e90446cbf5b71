package preset

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Decode reads one preset document (YAML or JSON), fills defaults and
// validates it. Any problem is reported as an error wrapping ErrInvalidPreset.
func Decode(r io.Reader) (*Preset, error) {
	var p Preset
	if err := yaml.NewDecoder(r).Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ValidationError{Problems: []string{"empty document"}}
		}
		return nil, &ValidationError{Problems: []string{err.Error()}}
	}

	Normalize(&p)
	if err := Validate(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

func Parse(data []byte) (*Preset, error) {
	return Decode(bytes.NewReader(data))
}

func LoadFile(path string) (*Preset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	p, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return p, nil
}

// LoadNamespace reads a global variable namespace document of the form
// `variables: {name: {group: ...}}`.
func LoadNamespace(path string) (Namespace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc struct {
		Variables Namespace `yaml:"variables"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ValidationError{PresetID: path, Problems: []string{err.Error()}}
	}

	holder := Preset{ID: "namespace:" + path, Variables: doc.Variables}
	Normalize(&holder)
	if err := Validate(&holder); err != nil {
		return nil, err
	}
	return holder.Variables, nil
}

func (c *Category) UnmarshalYAML(value *yaml.Node) error {
	type plain Category
	raw := plain{Probability: 1}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*c = Category(raw)
	return nil
}

func (g *TagGroup) UnmarshalYAML(value *yaml.Node) error {
	type plain TagGroup
	raw := plain{Probability: 1}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*g = TagGroup(raw)
	return nil
}

// UnmarshalYAML accepts either a bare scalar (`- red hair`) or a mapping.
// Weight defaults to 1 when omitted.
func (t *TagEntry) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*t = TagEntry{Text: value.Value, Weight: 1}
		return nil
	}

	type plain TagEntry
	raw := plain{Weight: 1}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*t = TagEntry(raw)
	return nil
}

// UnmarshalYAML accepts the explicit union form (`tag:`, `group:` or `ref:`)
// and two shorthands: a bare scalar and a mapping with a `text` key, both of
// which decode as a tag.
func (c *Child) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var t TagEntry
		if err := value.Decode(&t); err != nil {
			return err
		}
		*c = Child{Tag: &t}
		return nil
	case yaml.MappingNode:
		if mappingHasKey(value, "text") {
			var t TagEntry
			if err := value.Decode(&t); err != nil {
				return err
			}
			*c = Child{Tag: &t}
			return nil
		}
	}

	type plain Child
	var raw plain
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*c = Child(raw)
	return nil
}

func mappingHasKey(node *yaml.Node, key string) bool {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return true
		}
	}
	return false
}
