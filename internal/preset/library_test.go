package preset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePreset(t *testing.T, dir, file, id, name string) string {
	t.Helper()
	path := filepath.Join(dir, file)
	doc := "id: " + id + "\nname: " + name + "\ncategories:\n  - groups:\n      - children: [a]\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func TestLibrary_LoadDir(t *testing.T) {
	dir := t.TempDir()
	writePreset(t, dir, "b.yaml", "beta", "Beta")
	writePreset(t, dir, "a.yml", "alpha", "Alpha")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	writePreset(t, filepath.Join(dir, "nested"), "c.json", "gamma", "Gamma")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("id: [\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	lib := NewLibrary(LibraryOptions{Dir: dir})
	n, err := lib.LoadDir()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, lib.Len())

	var names []string
	for _, p := range lib.List() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"Alpha", "Beta", "Gamma"}, names)
}

func TestLibrary_LoadDirRequiresDir(t *testing.T) {
	_, err := NewLibrary(LibraryOptions{}).LoadDir()
	assert.Error(t, err)
}

func TestLibrary_Get(t *testing.T) {
	dir := t.TempDir()
	writePreset(t, dir, "a.yaml", "alpha", "Alpha Portraits")
	lib := NewLibrary(LibraryOptions{Dir: dir})
	_, err := lib.LoadDir()
	require.NoError(t, err)

	p, err := lib.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", p.ID)

	p, err = lib.Get("  alpha portraits ")
	require.NoError(t, err)
	assert.Equal(t, "alpha", p.ID)

	_, err = lib.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLibrary_ReloadReplacesByPath(t *testing.T) {
	dir := t.TempDir()
	path := writePreset(t, dir, "a.yaml", "first", "First")
	lib := NewLibrary(LibraryOptions{Dir: dir})

	_, err := lib.LoadFile(path)
	require.NoError(t, err)

	writePreset(t, dir, "a.yaml", "renamed", "Renamed")
	_, err = lib.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 1, lib.Len())
	_, err = lib.Get("first")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.True(t, lib.RemoveFile(path))
	assert.False(t, lib.RemoveFile(path))
	assert.Zero(t, lib.Len())
}

func TestLibrary_Put(t *testing.T) {
	lib := NewLibrary(LibraryOptions{})
	assert.ErrorIs(t, lib.Put(&Preset{}), ErrInvalidPreset)

	require.NoError(t, lib.Put(&Preset{ID: "manual", Name: "Manual"}))
	p, err := lib.Get("manual")
	require.NoError(t, err)
	assert.Equal(t, "Manual", p.Name)
}

func TestLibrary_Namespace(t *testing.T) {
	lib := NewLibrary(LibraryOptions{Namespace: Namespace{"a": {}}})
	assert.Contains(t, lib.Namespace(), "a")
	lib.SetNamespace(nil)
	assert.Nil(t, lib.Namespace())
}

func TestIsPresetFile(t *testing.T) {
	assert.True(t, IsPresetFile("x.YAML"))
	assert.True(t, IsPresetFile("dir/x.json"))
	assert.False(t, IsPresetFile("x.txt"))
	assert.False(t, IsPresetFile("yaml"))
}
