package preset

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidPreset marks a preset rejected at load time.
	ErrInvalidPreset = errors.New("preset: invalid preset")
	// ErrNotFound indicates the library holds no preset with the requested ID or name.
	ErrNotFound = errors.New("preset: not found")
)

// ValidationError lists every problem found in one preset.
// It unwraps to ErrInvalidPreset.
type ValidationError struct {
	PresetID string
	Problems []string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(ErrInvalidPreset.Error())
	if e.PresetID != "" {
		b.WriteString(" ")
		b.WriteString(e.PresetID)
	}
	b.WriteString(": ")
	b.WriteString(strings.Join(e.Problems, "; "))
	return b.String()
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidPreset
}
