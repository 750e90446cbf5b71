// Package pool adapts external tag pools (community tag lists addressed by
// ID) into candidate strings for pool-backed tag groups.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	ErrSourceUnavailable = errors.New("pool: source unavailable")
	ErrPoolNotFound      = errors.New("pool: not found")
	ErrEmptyPool         = errors.New("pool: no usable tags")
)

// Resolver returns the full candidate list of a pool.
type Resolver interface {
	Resolve(ctx context.Context, poolID string) ([]string, error)
}

// Previewer returns at most limit tags of a pool for display.
type Previewer interface {
	Preview(ctx context.Context, poolID string, limit int) ([]string, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, poolID string) ([]string, error)

func (f ResolverFunc) Resolve(ctx context.Context, poolID string) ([]string, error) {
	return f(ctx, poolID)
}

// Static is an in-memory pool source, used for presets that ship their own
// pools and in tests.
type Static struct {
	mu    sync.RWMutex
	pools map[string][]string
}

func NewStatic(pools map[string][]string) *Static {
	s := &Static{pools: make(map[string][]string, len(pools))}
	for id, tags := range pools {
		s.pools[id] = append([]string(nil), tags...)
	}
	return s
}

func (s *Static) Set(poolID string, tags []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools[poolID] = append([]string(nil), tags...)
}

func (s *Static) Resolve(ctx context.Context, poolID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	tags, ok := s.pools[poolID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPoolNotFound, poolID)
	}
	return append([]string(nil), tags...), nil
}

func (s *Static) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.pools))
	for id := range s.pools {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Verify cleans a raw tag list: tags are trimmed, empty and duplicate tags
// are dropped, and tags containing a comma or a variable token are rejected
// since they would change the shape of the assembled prompt. The first
// occurrence order is kept.
func Verify(raw []string) ([]string, error) {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, tag := range raw {
		tag = strings.TrimSpace(tag)
		if tag == "" || strings.Contains(tag, ",") || strings.Contains(tag, "__") {
			continue
		}
		key := strings.ToLower(tag)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, tag)
	}
	if len(out) == 0 {
		return nil, ErrEmptyPool
	}
	return out, nil
}
