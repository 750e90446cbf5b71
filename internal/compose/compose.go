// Package compose builds multi-character prompts: it draws how many
// characters appear, then expands the preset once for the scene and once per
// character slot.
package compose

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"nai-prompt-bot/internal/engine"
	"nai-prompt-bot/internal/preset"
)

var ErrNoCountCategory = errors.New("compose: no eligible character count category")

type Options struct {
	Engine *engine.Engine
	// MaxParallel bounds concurrent character expansions.
	MaxParallel int
	Logger      *slog.Logger
}

type Composer struct {
	engine      *engine.Engine
	maxParallel int
	logger      *slog.Logger
}

func New(opts Options) *Composer {
	eng := opts.Engine
	if eng == nil {
		eng = engine.New(engine.Options{})
	}
	maxParallel := opts.MaxParallel
	if maxParallel <= 0 {
		maxParallel = 4
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Composer{engine: eng, maxParallel: maxParallel, logger: logger}
}

type Character struct {
	Slot   int           `json:"slot" yaml:"slot"`
	Gender preset.Gender `json:"gender,omitempty" yaml:"gender,omitempty"`
	Result engine.Result `json:"result" yaml:"result"`
}

// Composition is the outcome of one Compose call. Main holds the scene
// expansion; CountTag is already prepended to Main.Text.
type Composition struct {
	PresetID      string        `json:"preset_id" yaml:"preset_id"`
	Seed          uint64        `json:"seed" yaml:"seed"`
	CountCategory string        `json:"count_category" yaml:"count_category"`
	CountOption   string        `json:"count_option,omitempty" yaml:"count_option,omitempty"`
	CountTag      string        `json:"count_tag,omitempty" yaml:"count_tag,omitempty"`
	Main          engine.Result `json:"main" yaml:"main"`
	Characters    []Character   `json:"characters,omitempty" yaml:"characters,omitempty"`
}

// Prompt flattens the composition into one line: the main prompt followed by
// each character prompt, separated by " | ".
func (c Composition) Prompt() string {
	parts := []string{c.Main.Text}
	for _, ch := range c.Characters {
		if ch.Result.Text != "" {
			parts = append(parts, ch.Result.Text)
		}
	}
	return strings.Join(parts, " | ")
}

// Compose draws a character count from the preset's configuration (or
// DefaultConfig when it has none) using a stream derived from seed, then
// expands the preset in scene scope and once per slot in character scope.
// Slot expansions run in parallel, each on its own derived seed, so the
// result depends only on the inputs.
func (c *Composer) Compose(ctx context.Context, p *preset.Preset, seed uint64) (Composition, error) {
	cfg := p.Algorithm.CharacterCount
	if cfg == nil {
		cfg = DefaultConfig()
	}

	pick, err := Pick(cfg, engine.NewRNG(engine.DeriveSeed(seed, 0)))
	if err != nil {
		return Composition{}, err
	}

	main, err := c.engine.Expand(ctx, p, engine.Context{RequestedScope: preset.ScopeScene}, engine.DeriveSeed(seed, 1))
	if err != nil {
		return Composition{}, err
	}
	main.Text = joinNonEmpty(pick.Tag, main.Text)

	chars := make([]Character, len(pick.Slots))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxParallel)
	for i, gender := range pick.Slots {
		g.Go(func() error {
			gc := engine.Context{TargetGender: gender, RequestedScope: preset.ScopeCharacter}
			res, err := c.engine.Expand(gctx, p, gc, engine.DeriveSeed(seed, uint64(i)+2))
			if err != nil {
				return fmt.Errorf("character %d: %w", i+1, err)
			}
			chars[i] = Character{Slot: i + 1, Gender: gender, Result: res}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Composition{}, err
	}

	c.logger.Debug("composition built",
		"preset", p.ID,
		"seed", seed,
		"count_category", pick.Category,
		"characters", len(chars),
	)

	return Composition{
		PresetID:      p.ID,
		Seed:          seed,
		CountCategory: pick.Category,
		CountOption:   pick.Option,
		CountTag:      pick.Tag,
		Main:          main,
		Characters:    chars,
	}, nil
}

func joinNonEmpty(parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}
