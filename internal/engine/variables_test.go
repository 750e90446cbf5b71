package engine_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nai-prompt-bot/internal/engine"
	"nai-prompt-bot/internal/preset"
)

func TestVariables_RoundTrip(t *testing.T) {
	p := mustParse(t, `
id: vars
categories:
  - id: C
    groups:
      - id: G
        children: [wearing __x__]
variables:
  x:
    group:
      id: x_pool
      children: [straw hat]
`)
	for seed := uint64(0); seed < 100; seed++ {
		res := expand(t, p, engine.Context{}, seed)
		require.Equal(t, "wearing straw hat", res.Text)
		require.NotContains(t, res.Text, "__x__")
	}

	res := expand(t, p, engine.Context{}, 1)
	v, ok := res.Trace.Find("x")
	require.True(t, ok)
	assert.Equal(t, engine.KindVariable, v.Kind)
	assert.Equal(t, engine.Included, v.Decision)
	assert.Equal(t, []string{"x_pool"}, v.Chosen)
}

func TestVariables_NestedAndRepeated(t *testing.T) {
	p := mustParse(t, `
id: nested
categories:
  - id: C
    groups:
      - id: G
        children: [__outfit__, __color__ gloves]
        selection_mode: multiple
        multiple_num: 2
variables:
  outfit:
    group:
      id: outfit
      children: [__color__ dress]
  color:
    group:
      id: color
      children: [red]
`)
	res := expand(t, p, engine.Context{}, 3)
	assert.Equal(t, "red dress, red gloves", res.Text)
	assert.Len(t, res.Trace.Decisions("color"), 4)
}

func TestVariables_CycleTerminates(t *testing.T) {
	p := mustParse(t, `
id: cycle
categories:
  - id: C
    groups:
      - id: G
        children: [__a__]
variables:
  a:
    group:
      id: a_pool
      children: [__b__]
  b:
    group:
      id: b_pool
      children: [__a__]
`)
	res := expand(t, p, engine.Context{}, 1)

	assert.Equal(t, "", res.Text)
	assert.Equal(t, []engine.Decision{engine.Included, engine.CyclicVariable}, res.Trace.Decisions("a"))
	assert.Equal(t, []engine.Decision{engine.Included}, res.Trace.Decisions("b"))

	warnings := res.Trace.Warnings()
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Detail, engine.ErrCyclicVariable.Error())
}

func TestVariables_MaxDepth(t *testing.T) {
	doc := `
id: chain
categories:
  - id: C
    groups:
      - id: G
        children: [__v0__]
variables:
`
	for i := 0; i < 10; i++ {
		next := "end"
		if i < 9 {
			next = "__v" + string(rune('0'+i+1)) + "__"
		}
		doc += "  v" + string(rune('0'+i)) + ":\n    group:\n      children: [\"" + next + "\"]\n"
	}
	p := mustParse(t, doc)

	res := expand(t, p, engine.Context{}, 1)
	assert.Equal(t, "", res.Text)
	assert.Equal(t, []engine.Decision{engine.MaxDepthExceeded}, res.Trace.Decisions("v8"))
	assert.Empty(t, res.Trace.Decisions("v9"))

	deep, err := engine.New(engine.Options{MaxVariableDepth: 16}).Expand(context.Background(), p, engine.Context{}, 1)
	require.NoError(t, err)
	assert.Equal(t, "end", deep.Text)
}

func TestVariables_Unresolved(t *testing.T) {
	p := mustParse(t, `
id: missing
categories:
  - id: C
    groups:
      - id: G
        children: [__nowhere__ hat]
`)
	res := expand(t, p, engine.Context{}, 1)
	assert.Equal(t, "__nowhere__ hat", res.Text)
	assert.Equal(t, []engine.Decision{engine.UnresolvedVariable}, res.Trace.Decisions("nowhere"))
}

func TestVariables_GenderedPool(t *testing.T) {
	p := mustParse(t, `
id: gendered
categories:
  - id: C
    groups:
      - id: G
        children: [__outfit__]
variables:
  outfit:
    group:
      id: outfit_any
      children: [hoodie]
    gendered:
      female:
        id: outfit_f
        children: [sundress]
`)
	assert.Equal(t, "sundress", expand(t, p, engine.Context{TargetGender: preset.GenderFemale}, 1).Text)
	assert.Equal(t, "hoodie", expand(t, p, engine.Context{TargetGender: preset.GenderMale}, 1).Text)
	assert.Equal(t, "hoodie", expand(t, p, engine.Context{}, 1).Text)
}

func TestVariables_CategoryKey(t *testing.T) {
	p := mustParse(t, `
id: keyed
categories:
  - id: C
    groups:
      - id: G
        children: [__weather__ sky]
  - id: W
    key: weather
    probability: 0
    groups:
      - id: weather_group
        children: [cloudy]
`)
	res := expand(t, p, engine.Context{}, 2)
	assert.Equal(t, "cloudy sky", res.Text)

	v, ok := res.Trace.Find("weather")
	require.True(t, ok)
	assert.Equal(t, []string{"W"}, v.Chosen)
}

func TestVariables_GlobalNamespace(t *testing.T) {
	p := mustParse(t, `
id: global
categories:
  - id: C
    groups:
      - id: G
        children: [__style__]
`)
	ns := preset.Namespace{
		"style": {Group: &preset.TagGroup{
			ID:          "style",
			Probability: 1,
			Children:    []preset.Child{{Tag: &preset.TagEntry{Text: "watercolor", Weight: 1}}},
		}},
	}
	res, err := engine.New(engine.Options{Namespace: ns}).Expand(context.Background(), p, engine.Context{}, 1)
	require.NoError(t, err)
	assert.Equal(t, "watercolor", res.Text)
}

func TestVariables_EmptySubstitutionIsTidied(t *testing.T) {
	p := mustParse(t, `
id: tidy
categories:
  - id: C
    group_selection_mode: multiple
    groups:
      - id: A
        children: [__gone__]
      - id: B
        children: [smile]
variables:
  gone:
    group:
      id: gone
      probability: 0
      children: [never]
`)
	res := expand(t, p, engine.Context{}, 1)
	assert.Equal(t, "smile", res.Text)
	assert.False(t, strings.HasPrefix(res.Text, ","))

	t.Run("emphasized variable resolving to nothing", func(t *testing.T) {
		p := mustParse(t, `
id: braces
categories:
  - id: C
    group_selection_mode: multiple
    groups:
      - id: A
        bracket: {min: 2, max: 2}
        children: [__loop__]
      - id: B
        children: [smile]
variables:
  loop:
    group:
      id: loop_pool
      children: [__loop__]
`)
		res := expand(t, p, engine.Context{}, 1)
		assert.Equal(t, "smile", res.Text)
		assert.Contains(t, res.Trace.Decisions("loop"), engine.CyclicVariable)
	})
}
