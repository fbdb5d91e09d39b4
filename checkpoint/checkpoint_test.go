package checkpoint

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dselans/unflate/checkpoint/types"
)

var checksum = strings.Repeat("ab", 32)

func TestLoad(t *testing.T) {
	file := filepath.Join(t.TempDir(), "checkpoint.json")

	cp, err := Load(file, []string{"a.gz"})
	require.NoError(t, err)
	assert.FileExists(t, file)
	assert.Empty(t, cp.Entries)
	assert.False(t, cp.StartedAt.IsZero())

	cp.Set("a.gz", &types.Entry{
		Checksum:    checksum,
		OutputSize:  42,
		Location:    "out/a",
		CompletedAt: time.Now(),
	})
	cp.MarkCompleted()
	require.NoError(t, cp.Save(file))

	reloaded, err := Load(file, []string{"a.gz", "b.gz"})
	require.NoError(t, err)
	require.Contains(t, reloaded.Entries, "a.gz")
	assert.Equal(t, 42, reloaded.Entries["a.gz"].OutputSize)
	assert.Equal(t, []string{"a.gz", "b.gz"}, reloaded.SourceFiles)
	assert.Nil(t, reloaded.CompletedAt)
	assert.True(t, reloaded.Done("a.gz", checksum))
	assert.False(t, reloaded.Done("a.gz", strings.Repeat("cd", 32)))
	assert.False(t, reloaded.Done("b.gz", checksum))
}

func TestLoadInvalid(t *testing.T) {
	dir := t.TempDir()

	t.Run("garbage", func(t *testing.T) {
		file := filepath.Join(dir, "garbage.json")
		require.NoError(t, os.WriteFile(file, []byte("{"), 0644))

		_, err := Load(file, nil)
		assert.Error(t, err)
	})

	t.Run("bad entry", func(t *testing.T) {
		file := filepath.Join(dir, "bad.json")
		data := `{"started_at": "2024-01-01T00:00:00Z", "entries": {"a": {"checksum": "xyz", "location": "out/a"}}}`
		require.NoError(t, os.WriteFile(file, []byte(data), 0644))

		_, err := Load(file, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "entry 'a'")
	})
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "checkpoint.json")

	cp := types.New(nil)
	for i := 0; i < 3; i++ {
		require.NoError(t, cp.Save(file))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "checkpoint.json", entries[0].Name())
}
