package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"regexp"
	"slices"
	"strings"
	"time"

	"nai-prompt-bot/internal/pool"
	"nai-prompt-bot/internal/preset"
)

const (
	DefaultMaxVariableDepth = 8
	DefaultMaxNestingDepth  = 64
	DefaultMaxGroupVisits   = 10000
	DefaultPoolTimeout      = 5 * time.Second

	fragmentSeparator = ", "
)

type Options struct {
	// Pools backs groups with SourceType pool. Without it those groups are
	// skipped as unavailable.
	Pools       pool.Resolver
	PoolTimeout time.Duration
	// Namespace is consulted for variables the preset does not define.
	Namespace        preset.Namespace
	MaxVariableDepth int
	MaxNestingDepth  int
	// MaxGroupVisits bounds how many group expansions one call may perform.
	// Groups reused through refs are expanded once per visit.
	MaxGroupVisits int
	Logger         *slog.Logger
}

// Engine holds configuration only; it keeps no state between calls and is
// safe for concurrent use.
type Engine struct {
	pools       pool.Resolver
	poolTimeout time.Duration
	namespace   preset.Namespace
	maxVarDepth int
	maxNesting  int
	maxVisits   int
	logger      *slog.Logger
}

func New(opts Options) *Engine {
	poolTimeout := opts.PoolTimeout
	if poolTimeout <= 0 {
		poolTimeout = DefaultPoolTimeout
	}
	maxVarDepth := opts.MaxVariableDepth
	if maxVarDepth <= 0 {
		maxVarDepth = DefaultMaxVariableDepth
	}
	maxNesting := opts.MaxNestingDepth
	if maxNesting <= 0 {
		maxNesting = DefaultMaxNestingDepth
	}
	maxVisits := opts.MaxGroupVisits
	if maxVisits <= 0 {
		maxVisits = DefaultMaxGroupVisits
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Engine{
		pools:       opts.Pools,
		poolTimeout: poolTimeout,
		namespace:   opts.Namespace,
		maxVarDepth: maxVarDepth,
		maxNesting:  maxNesting,
		maxVisits:   maxVisits,
		logger:      logger,
	}
}

// Expand runs one expansion with a default engine.
func Expand(ctx context.Context, p *preset.Preset, gc Context, seed uint64) (Result, error) {
	return New(Options{}).Expand(ctx, p, gc, seed)
}

// Expand validates p and gc, then samples p with a fresh stream seeded by
// seed. Only validation failures are returned as errors; everything that
// goes wrong while sampling is recorded in the trace. ctx bounds pool
// lookups only.
func (e *Engine) Expand(ctx context.Context, p *preset.Preset, gc Context, seed uint64) (Result, error) {
	if err := preset.Validate(p); err != nil {
		return Result{}, err
	}
	gc, err := gc.normalized()
	if err != nil {
		return Result{}, err
	}

	x := &expansion{
		e:      e,
		ctx:    ctx,
		preset: p,
		gc:     gc,
		rng:    NewRNG(seed),
		groups: indexGroups(p, e.namespace),
		path:   make(map[string]struct{}),
		vars:   make(map[string]struct{}),
	}

	parts := make([]string, 0, len(p.Categories))
	for i := range p.Categories {
		if text := x.category(&p.Categories[i], true); text != "" {
			parts = append(parts, text)
		}
	}
	text := strings.Join(parts, fragmentSeparator)
	text = tidy(x.resolveVariables(text, 0))

	e.logger.Debug("preset expanded",
		"preset", p.ID,
		"seed", seed,
		"trace_entries", len(x.trace),
		"draws", x.rng.Position(),
		"warnings", len(x.trace.Warnings()),
	)

	return Result{
		PresetID: p.ID,
		Seed:     seed,
		Text:     text,
		Trace:    x.trace,
	}, nil
}

// expansion is the mutable state of one Expand call.
type expansion struct {
	e      *Engine
	ctx    context.Context
	preset *preset.Preset
	gc     Context
	rng    *RNG
	trace  Trace
	groups map[string]*preset.TagGroup
	// path holds the IDs of groups on the current recursion path.
	path map[string]struct{}
	// vars holds the variable names currently being resolved.
	vars map[string]struct{}
	// visits counts group expansions; once it reaches the engine budget
	// every further group contributes nothing.
	visits int
}

type candidate struct {
	id     string
	weight float64
	entry  *preset.TagEntry
	group  *preset.TagGroup
}

func (x *expansion) record(id string, kind NodeKind, d Decision, chosen []string, detail string) {
	x.trace = append(x.trace, TraceEntry{
		NodeID:   id,
		Kind:     kind,
		Decision: d,
		Chosen:   chosen,
		Detail:   detail,
	})
}

// passes draws the node's single probability roll.
func (x *expansion) passes(probability float64) bool {
	return x.rng.Float64() < probability
}

func (x *expansion) category(c *preset.Category, gated bool) string {
	if ok, d := Eligible(c.Scope, c.GenderRestriction, x.gc); !ok {
		x.record(c.ID, KindCategory, d, nil, "")
		return ""
	}
	if gated && !x.passes(c.Probability) {
		x.record(c.ID, KindCategory, SkippedByProbability, nil, "")
		return ""
	}

	var eligible []*preset.TagGroup
	var skipped []TraceEntry
	for i := range c.Groups {
		g := &c.Groups[i]
		if ok, d := Eligible(g.Scope, g.GenderRestriction, x.gc); ok {
			eligible = append(eligible, g)
		} else {
			skipped = append(skipped, TraceEntry{NodeID: g.ID, Kind: KindGroup, Decision: d})
		}
	}

	var chosen []int
	if c.GroupSelectionMode == preset.SelectMultiple {
		chosen = pickWithoutReplacement(x.rng, uniformWeights(len(eligible)), len(eligible))
	} else if len(eligible) > 0 {
		chosen = []int{x.rng.WeightedIndex(uniformWeights(len(eligible)))}
	}
	if c.Shuffle && len(chosen) > 1 {
		shuffleInts(x.rng, chosen)
	}

	ids := make([]string, 0, len(chosen))
	for _, i := range chosen {
		ids = append(ids, eligible[i].ID)
	}
	x.record(c.ID, KindCategory, Included, ids, "")
	x.trace = append(x.trace, skipped...)

	parts := make([]string, 0, len(chosen))
	for _, i := range chosen {
		if text := x.group(eligible[i]); text != "" {
			parts = append(parts, text)
		}
	}
	return Emphasize(strings.Join(parts, fragmentSeparator), bracketCount(x.rng, c.Bracket))
}

func (x *expansion) group(g *preset.TagGroup) string {
	if ok, d := Eligible(g.Scope, g.GenderRestriction, x.gc); !ok {
		x.record(g.ID, KindGroup, d, nil, "")
		return ""
	}
	if _, onPath := x.path[g.ID]; onPath {
		x.record(g.ID, KindGroup, CyclicReference, nil, fmt.Sprintf("%v: %s", ErrCyclicReference, g.ID))
		return ""
	}
	if len(x.path) >= x.e.maxNesting {
		x.record(g.ID, KindGroup, MaxDepthExceeded, nil, fmt.Sprintf("%v: nesting deeper than %d", ErrMaxDepthExceeded, x.e.maxNesting))
		return ""
	}
	if x.visits >= x.e.maxVisits {
		// Recorded once; later groups are dropped silently.
		if x.visits == x.e.maxVisits {
			x.record(g.ID, KindGroup, MaxDepthExceeded, nil, fmt.Sprintf("%v: more than %d group expansions", ErrMaxDepthExceeded, x.e.maxVisits))
			x.visits++
		}
		return ""
	}
	x.visits++
	if !x.passes(g.Probability) {
		x.record(g.ID, KindGroup, SkippedByProbability, nil, "")
		return ""
	}

	x.path[g.ID] = struct{}{}
	defer delete(x.path, g.ID)

	candidates, skipped, err := x.children(g)
	if err != nil {
		x.record(g.ID, KindGroup, SkippedBySourceUnavailable, nil, err.Error())
		return ""
	}

	weights := make([]float64, len(candidates))
	for i, c := range candidates {
		weights[i] = c.weight
	}

	decision := Included
	detail := ""
	var chosen []int
	if g.SelectionMode == preset.SelectMultiple {
		k := int(g.MultipleNum)
		if k < 1 {
			k = 1
		}
		if k > len(candidates) {
			decision = SaturatedSelection
			detail = fmt.Sprintf("multiple_num %d exceeds %d eligible", k, len(candidates))
		}
		chosen = pickWithoutReplacement(x.rng, weights, k)
	} else if len(candidates) > 0 {
		chosen = []int{x.rng.WeightedIndex(weights)}
	}
	if g.Shuffle && len(chosen) > 1 {
		shuffleInts(x.rng, chosen)
	}

	ids := make([]string, 0, len(chosen))
	for _, i := range chosen {
		ids = append(ids, candidates[i].id)
	}
	x.record(g.ID, KindGroup, decision, ids, detail)
	x.trace = append(x.trace, skipped...)

	parts := make([]string, 0, len(chosen))
	for _, i := range chosen {
		c := candidates[i]
		var text string
		if c.entry != nil {
			text = Emphasize(c.entry.Text, bracketCount(x.rng, c.entry.Bracket))
		} else {
			text = x.group(c.group)
		}
		if text != "" {
			parts = append(parts, text)
		}
	}
	return Emphasize(strings.Join(parts, fragmentSeparator), bracketCount(x.rng, g.Bracket))
}

// children lists the sampling candidates of g. Ineligible nested groups and
// refs that would re-enter the current path are returned as trace entries
// instead. Pool-backed groups take their candidates from the pool resolver.
func (x *expansion) children(g *preset.TagGroup) ([]candidate, []TraceEntry, error) {
	if g.SourceType == preset.SourcePool {
		tags, err := x.poolTags(g.PoolID)
		if err != nil {
			return nil, nil, err
		}
		out := make([]candidate, len(tags))
		for i, tag := range tags {
			out[i] = candidate{
				id:     fmt.Sprintf("%s#%d", g.ID, i),
				weight: 1,
				entry:  &preset.TagEntry{Text: tag, Weight: 1},
			}
		}
		return out, nil, nil
	}

	out := make([]candidate, 0, len(g.Children))
	var skipped []TraceEntry
	for k := range g.Children {
		child := &g.Children[k]
		switch {
		case child.Tag != nil:
			out = append(out, candidate{id: child.Tag.ID, weight: child.Tag.Weight, entry: child.Tag})
			continue
		case child.Group != nil:
			out, skipped = x.appendGroupCandidate(out, skipped, child.Group)
		case child.Ref != "":
			target, ok := x.groups[child.Ref]
			if !ok {
				skipped = append(skipped, TraceEntry{
					NodeID:   child.Ref,
					Kind:     KindGroup,
					Decision: SkippedBySourceUnavailable,
					Detail:   "ref does not name a group",
				})
				continue
			}
			if _, onPath := x.path[target.ID]; onPath {
				skipped = append(skipped, TraceEntry{
					NodeID:   target.ID,
					Kind:     KindGroup,
					Decision: CyclicReference,
					Detail:   fmt.Sprintf("%v: %s -> %s", ErrCyclicReference, g.ID, target.ID),
				})
				continue
			}
			out, skipped = x.appendGroupCandidate(out, skipped, target)
		}
	}
	return out, skipped, nil
}

func (x *expansion) appendGroupCandidate(out []candidate, skipped []TraceEntry, g *preset.TagGroup) ([]candidate, []TraceEntry) {
	if ok, d := Eligible(g.Scope, g.GenderRestriction, x.gc); !ok {
		return out, append(skipped, TraceEntry{NodeID: g.ID, Kind: KindGroup, Decision: d})
	}
	return append(out, candidate{id: g.ID, weight: 1, group: g}), skipped
}

func (x *expansion) poolTags(poolID string) ([]string, error) {
	if x.e.pools == nil {
		return nil, fmt.Errorf("%w: no pool resolver configured for %q", pool.ErrSourceUnavailable, poolID)
	}

	ctx := x.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, x.e.poolTimeout)
	defer cancel()

	tags, err := x.e.pools.Resolve(ctx, poolID)
	if err != nil {
		return nil, fmt.Errorf("pool %q: %w", poolID, err)
	}
	return tags, nil
}

// indexGroups builds the ID arena used to resolve refs. Preset groups shadow
// namespace groups with the same ID.
func indexGroups(p *preset.Preset, ns preset.Namespace) map[string]*preset.TagGroup {
	idx := make(map[string]*preset.TagGroup)
	seen := make(map[*preset.TagGroup]struct{})

	var walk func(g *preset.TagGroup, override bool)
	walk = func(g *preset.TagGroup, override bool) {
		if g == nil {
			return
		}
		if _, ok := seen[g]; ok {
			return
		}
		seen[g] = struct{}{}
		if _, exists := idx[g.ID]; override || !exists {
			idx[g.ID] = g
		}
		for k := range g.Children {
			walk(g.Children[k].Group, override)
		}
	}

	walkPools := func(pools map[string]preset.VariablePool, override bool) {
		for _, name := range slices.Sorted(maps.Keys(pools)) {
			v := pools[name]
			walk(v.Group, override)
			for _, gender := range slices.Sorted(maps.Keys(v.Gendered)) {
				walk(v.Gendered[gender], override)
			}
		}
	}
	walkPools(ns, false)
	walkPools(p.Variables, true)
	for i := range p.Categories {
		for j := range p.Categories[i].Groups {
			walk(&p.Categories[i].Groups[j], true)
		}
	}
	return idx
}

var (
	emptyEmphasis   = regexp.MustCompile(`\{[\s,]*\}`)
	emphasisLeading = regexp.MustCompile(`\{[\s,]+`)
	emphasisTrailer = regexp.MustCompile(`[\s,]+\}`)
)

// tidy drops comma-separated segments left empty by skipped nodes and empty
// variable substitutions. Emphasis braces that end up wrapping nothing are
// removed, and stray separators just inside braces are trimmed.
func tidy(text string) string {
	for {
		next := emptyEmphasis.ReplaceAllString(text, "")
		if next == text {
			break
		}
		text = next
	}
	text = emphasisLeading.ReplaceAllString(text, "{")
	text = emphasisTrailer.ReplaceAllString(text, "}")

	segments := strings.Split(text, ",")
	out := segments[:0]
	for _, s := range segments {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, fragmentSeparator)
}
