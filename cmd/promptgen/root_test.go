package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"nai-prompt-bot/internal/compose"
	"nai-prompt-bot/internal/engine"
)

const catDog = `
id: scenario
categories:
  - id: C
    groups:
      - id: G
        children:
          - {id: cat, text: cat, weight: 1}
          - {id: dog, text: dog, weight: 3}
`

const withSources = `
id: sources
categories:
  - id: hair
    groups:
      - id: hair_pool
        source_type: pool
        pool_id: hair
  - id: subject
    groups:
      - id: subject_group
        children: ["__animal__ in the snow"]
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestExpand_Text(t *testing.T) {
	path := writeFile(t, t.TempDir(), "p.yaml", catDog)

	out, err := run(t, "expand", path, "--seed", "42")
	require.NoError(t, err)
	assert.Equal(t, "dog\n", out)
}

func TestExpand_TextWithTrace(t *testing.T) {
	path := writeFile(t, t.TempDir(), "p.yaml", catDog)

	out, err := run(t, "expand", path, "--seed", "42", "--trace")
	require.NoError(t, err)
	assert.Contains(t, out, "# seed 42\ndog\n")
	assert.Contains(t, out, "group")
	assert.Contains(t, out, "[dog]")
}

func TestExpand_JSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "p.yaml", catDog)

	out, err := run(t, "expand", path, "--seed", "42", "-o", "json")
	require.NoError(t, err)

	var res engine.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "dog", res.Text)
	assert.Equal(t, uint64(42), res.Seed)
	assert.Len(t, res.Trace, 2)
}

func TestExpand_YAMLMany(t *testing.T) {
	path := writeFile(t, t.TempDir(), "p.yaml", catDog)

	out, err := run(t, "expand", path, "--seed", "42", "-n", "3", "-o", "yaml")
	require.NoError(t, err)

	var results []engine.Result
	require.NoError(t, yaml.Unmarshal([]byte(out), &results))
	require.Len(t, results, 3)
	for i, res := range results {
		assert.Equal(t, uint64(42+i), res.Seed)
	}
	assert.Equal(t, "dog", results[0].Text)
}

func TestExpand_PoolsAndVars(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "p.yaml", withSources)
	pools := writeFile(t, dir, "pools.yaml", "hair: [silver hair]\n")
	vars := writeFile(t, dir, "vars.yaml", "variables:\n  animal:\n    group:\n      id: animals\n      children: [fox]\n")

	out, err := run(t, "expand", path, "--seed", "1", "--pools", pools, "--vars", vars)
	require.NoError(t, err)
	assert.Equal(t, "silver hair, fox in the snow\n", out)

	out, err = run(t, "expand", path, "--seed", "1")
	require.NoError(t, err)
	assert.Equal(t, "__animal__ in the snow\n", out)
}

func TestExpand_Errors(t *testing.T) {
	path := writeFile(t, t.TempDir(), "p.yaml", catDog)

	_, err := run(t, "expand", path, "-o", "xml")
	assert.ErrorContains(t, err, "unknown output format")

	_, err = run(t, "expand", path, "--gender", "robot")
	assert.ErrorIs(t, err, engine.ErrInvalidContext)

	_, err = run(t, "expand", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = run(t, "expand", path, "--count", "0")
	assert.Error(t, err)
}

func TestCompose_JSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "p.yaml", catDog)

	out, err := run(t, "compose", path, "--seed", "7", "-o", "json")
	require.NoError(t, err)

	var comp compose.Composition
	require.NoError(t, json.Unmarshal([]byte(out), &comp))
	assert.Equal(t, "scenario", comp.PresetID)
	assert.Equal(t, uint64(7), comp.Seed)
	assert.NotEmpty(t, comp.CountCategory)

	text, err := run(t, "compose", path, "--seed", "7")
	require.NoError(t, err)
	assert.Equal(t, comp.Prompt()+"\n", text)
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "good.yaml", withSources)
	writeFile(t, dir, "bad.yaml", "id: bad\ncategories:\n  - id: c\n    probability: 2\n")
	writeFile(t, dir, "notes.txt", "ignored")

	out, err := run(t, "validate", dir)
	assert.ErrorIs(t, err, errInvalidFiles)
	assert.Contains(t, out, "FAIL "+filepath.Join(dir, "bad.yaml"))
	assert.Contains(t, out, "ok   "+filepath.Join(dir, "good.yaml")+" (sources)")
	assert.Contains(t, out, "variables: [animal]")
	assert.NotContains(t, out, "notes.txt")

	out, err = run(t, "validate", filepath.Join(dir, "good.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "ok")
}
