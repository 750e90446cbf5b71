package preset

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

type LibraryOptions struct {
	Dir       string
	Namespace Namespace
	Logger    *slog.Logger
}

// Library is the in-memory set of loaded presets. Presets handed out by the
// library are shared and must be treated as read-only.
type Library struct {
	mu        sync.RWMutex
	dir       string
	presets   map[string]*Preset
	sources   map[string]string
	namespace Namespace
	logger    *slog.Logger
}

func NewLibrary(opts LibraryOptions) *Library {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Library{
		dir:       opts.Dir,
		presets:   make(map[string]*Preset),
		sources:   make(map[string]string),
		namespace: opts.Namespace,
		logger:    logger,
	}
}

func (l *Library) Dir() string {
	return l.dir
}

// Namespace returns the global variable namespace shared by all presets.
func (l *Library) Namespace() Namespace {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.namespace
}

func (l *Library) SetNamespace(ns Namespace) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.namespace = ns
}

// LoadDir walks the library directory and loads every preset file. Files
// that fail to load are logged and skipped; the count of loaded presets is
// returned.
func (l *Library) LoadDir() (int, error) {
	if strings.TrimSpace(l.dir) == "" {
		return 0, errors.New("preset directory is empty")
	}

	loaded := 0
	err := filepath.WalkDir(l.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !IsPresetFile(path) {
			return nil
		}

		if _, loadErr := l.LoadFile(path); loadErr != nil {
			l.logger.Warn("preset load failed", "path", path, "err", loadErr)
			return nil
		}
		loaded++
		return nil
	})
	if err != nil {
		return loaded, fmt.Errorf("walk %s: %w", l.dir, err)
	}

	l.logger.Info("presets loaded", "dir", l.dir, "count", loaded)
	return loaded, nil
}

// LoadFile loads one preset file and replaces any preset previously loaded
// from the same path or carrying the same ID.
func (l *Library) LoadFile(path string) (*Preset, error) {
	p, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if oldID, ok := l.sources[path]; ok && oldID != p.ID {
		delete(l.presets, oldID)
	}
	l.presets[p.ID] = p
	l.sources[path] = p.ID
	return p, nil
}

// RemoveFile drops the preset that was loaded from path, if any.
func (l *Library) RemoveFile(path string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	id, ok := l.sources[path]
	if !ok {
		return false
	}
	delete(l.sources, path)
	delete(l.presets, id)
	return true
}

// Put validates p and stores it under its ID.
func (l *Library) Put(p *Preset) error {
	if err := Validate(p); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.presets[p.ID] = p
	return nil
}

// Get looks a preset up by ID, then by case-insensitive name.
func (l *Library) Get(idOrName string) (*Preset, error) {
	key := strings.TrimSpace(idOrName)

	l.mu.RLock()
	defer l.mu.RUnlock()

	if p, ok := l.presets[key]; ok {
		return p, nil
	}
	for _, p := range l.presets {
		if strings.EqualFold(p.Name, key) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrNotFound, idOrName)
}

// List returns all presets ordered by name, then ID.
func (l *Library) List() []*Preset {
	l.mu.RLock()
	out := make([]*Preset, 0, len(l.presets))
	for _, p := range l.presets {
		out = append(out, p)
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.presets)
}

func IsPresetFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
