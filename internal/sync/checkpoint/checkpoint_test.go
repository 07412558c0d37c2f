package checkpoint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "checkpoint.json")
}

func TestLoad_FreshWhenFileMissing(t *testing.T) {
	m := New(tempPath(t))
	resumed, err := m.Load()
	require.NoError(t, err)
	assert.False(t, resumed)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := tempPath(t)

	m := New(path)
	m.MarkPage("contacts", 3)
	m.MarkPage("responses", 12)
	m.MarkProcessed("contacts", "ext-1")
	m.MarkProcessed("contacts", "ext-2")
	require.NoError(t, m.Save())

	resumed := New(path)
	ok, err := resumed.Load()
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, 3, resumed.LastPage("contacts"))
	assert.Equal(t, 12, resumed.LastPage("responses"))
	assert.Zero(t, resumed.LastPage("institutions"))
	assert.True(t, resumed.IsProcessed("contacts", "ext-1"))
	assert.True(t, resumed.IsProcessed("contacts", "ext-2"))
	assert.False(t, resumed.IsProcessed("contacts", "ext-3"))
	assert.False(t, resumed.IsProcessed("responses", "ext-1"))
	assert.Equal(t, m.RunStartedAt().Unix(), resumed.RunStartedAt().Unix())
}

func TestLoad_DiscardsForeignSchemaVersion(t *testing.T) {
	path := tempPath(t)
	raw, err := json.Marshal(State{SchemaVersion: 99, Pages: map[string]int{"contacts": 7}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	m := New(path)
	resumed, err := m.Load()
	require.NoError(t, err)
	assert.False(t, resumed)
	assert.Zero(t, m.LastPage("contacts"))
}

func TestLoad_DiscardsCorruptFile(t *testing.T) {
	path := tempPath(t)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	resumed, err := New(path).Load()
	require.NoError(t, err)
	assert.False(t, resumed)
}

func TestMarkPage_NeverMovesBackward(t *testing.T) {
	m := New(tempPath(t))
	m.MarkPage("contacts", 5)
	m.MarkPage("contacts", 2)
	assert.Equal(t, 5, m.LastPage("contacts"))
}

func TestClear_RemovesFile(t *testing.T) {
	path := tempPath(t)
	m := New(path)
	require.NoError(t, m.Save())
	require.NoError(t, m.Clear())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Clearing an already-clean path is not an error.
	require.NoError(t, m.Clear())
}
