// Package app wires the preset library, tag pools and engines shared by the
// bot, the web API and the CLI.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"slices"

	"nai-prompt-bot/internal/compose"
	"nai-prompt-bot/internal/config"
	"nai-prompt-bot/internal/engine"
	"nai-prompt-bot/internal/pool"
	"nai-prompt-bot/internal/preset"
)

type Stack struct {
	Library  *preset.Library
	Engine   *engine.Engine
	Composer *compose.Composer
	// Pools is nil when no pool service is configured.
	Pools   *pool.Cache
	watcher *preset.Watcher
}

// Build loads presets and the global namespace from cfg and starts the
// directory watcher when enabled. Call Close to stop it.
func Build(ctx context.Context, cfg config.Config, httpClient *http.Client, logger *slog.Logger) (*Stack, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var ns preset.Namespace
	if cfg.GlobalVariablesFile != "" {
		loaded, err := preset.LoadNamespace(cfg.GlobalVariablesFile)
		if err != nil {
			return nil, fmt.Errorf("global variables: %w", err)
		}
		ns = loaded
	}

	lib := preset.NewLibrary(preset.LibraryOptions{
		Dir:       cfg.PresetDir,
		Namespace: ns,
		Logger:    logger,
	})
	if _, err := lib.LoadDir(); err != nil {
		return nil, fmt.Errorf("load presets: %w", err)
	}

	s := &Stack{Library: lib}

	var resolver pool.Resolver
	if cfg.PoolBaseURL != "" {
		src, err := pool.NewHTTPSource(pool.HTTPOptions{
			BaseURL:       cfg.PoolBaseURL,
			Client:        httpClient,
			RatePerSecond: cfg.PoolRatePerSecond,
			Attempts:      uint(cfg.PoolRetryAttempts),
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
		s.Pools = pool.NewCache(src, pool.CacheOptions{TTL: cfg.PoolCacheTTL, Logger: logger})
		resolver = s.Pools
	}

	s.Engine = engine.New(engine.Options{
		Pools:            resolver,
		PoolTimeout:      cfg.PoolTimeout,
		Namespace:        ns,
		MaxVariableDepth: cfg.MaxVariableDepth,
		Logger:           logger,
	})
	s.Composer = compose.New(compose.Options{
		Engine:      s.Engine,
		MaxParallel: cfg.MaxConcurrent,
		Logger:      logger,
	})

	if s.Pools != nil {
		if ids := PoolIDs(lib.List()); len(ids) > 0 {
			if err := s.Pools.Warm(ctx, ids); err != nil {
				logger.Warn("pool warmup incomplete", "err", err)
			}
		}
	}

	if cfg.WatchPresets {
		w, err := preset.NewWatcher(lib, preset.WatcherOptions{
			Debounce: cfg.WatchDebounce,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		if err := w.Start(ctx); err != nil {
			w.Stop()
			return nil, err
		}
		s.watcher = w
	}

	return s, nil
}

func (s *Stack) Close() {
	if s.watcher != nil {
		s.watcher.Stop()
	}
}

// PoolIDs lists the distinct pool IDs referenced by presets, in order.
func PoolIDs(presets []*preset.Preset) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(g *preset.TagGroup) {
		if g == nil || g.SourceType != preset.SourcePool || g.PoolID == "" {
			return
		}
		if _, ok := seen[g.PoolID]; ok {
			return
		}
		seen[g.PoolID] = struct{}{}
		out = append(out, g.PoolID)
	}

	var walk func(g *preset.TagGroup)
	walk = func(g *preset.TagGroup) {
		add(g)
		for _, c := range g.Children {
			if c.Group != nil {
				walk(c.Group)
			}
		}
	}

	for _, p := range presets {
		for i := range p.Categories {
			for j := range p.Categories[i].Groups {
				walk(&p.Categories[i].Groups[j])
			}
		}
		for _, name := range slices.Sorted(maps.Keys(p.Variables)) {
			v := p.Variables[name]
			if v.Group != nil {
				walk(v.Group)
			}
			for _, g := range slices.Sorted(maps.Keys(v.Gendered)) {
				if v.Gendered[g] != nil {
					walk(v.Gendered[g])
				}
			}
		}
	}
	return out
}
