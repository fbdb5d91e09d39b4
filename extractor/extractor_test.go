package extractor

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dselans/unflate/checkpoint/types"
	"github.com/dselans/unflate/config"
	"github.com/dselans/unflate/destination"
	"github.com/dselans/unflate/inflate"
)

type fixture struct {
	dir     string
	outDir  string
	cpFile  string
	files   map[string][]byte // name -> original content
	inputs  []string
	corrupt string
}

func compress(t *testing.T, kind string, data []byte) []byte {
	t.Helper()

	var buf bytes.Buffer

	var (
		w   io.WriteCloser
		err error
	)

	switch kind {
	case "gzip":
		w = gzip.NewWriter(&buf)
	case "zlib":
		w = zlib.NewWriter(&buf)
	default:
		w, err = flate.NewWriter(&buf, flate.DefaultCompression)
		require.NoError(t, err)
	}

	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	return buf.Bytes()
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := t.TempDir()
	f := &fixture{
		dir:    dir,
		outDir: filepath.Join(dir, "out"),
		cpFile: filepath.Join(dir, "checkpoint.json"),
		files:  make(map[string][]byte),
	}

	add := func(name, kind string, content []byte) {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, compress(t, kind, content), 0644))
		f.inputs = append(f.inputs, path)
		f.files[name] = content
	}

	add("a.gz", "gzip", []byte(strings.Repeat("alpha ", 500)))
	add("b.zz", "zlib", []byte(strings.Repeat("bravo ", 500)))
	add("c.deflate", "raw", []byte(strings.Repeat("charlie ", 500)))

	// Same bytes as a.gz
	dup := filepath.Join(dir, "dup.gz")
	data, err := os.ReadFile(filepath.Join(dir, "a.gz"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(dup, data, 0644))
	f.inputs = append(f.inputs, dup)

	f.corrupt = filepath.Join(dir, "bad.deflate")
	require.NoError(t, os.WriteFile(f.corrupt, []byte{0x07, 0x00}, 0644))
	f.inputs = append(f.inputs, f.corrupt)

	return f
}

func (f *fixture) config(t *testing.T, extra string) *config.Config {
	t.Helper()

	data := fmt.Sprintf(`
[config]
num_workers = 1
checkpoint_file = %q
checkpoint_interval = "1ms"
%s

[destination]
type = "file"
dir = %q
`, f.cpFile, extra, f.outDir)

	cfg, err := config.New([]byte(data))
	require.NoError(t, err)

	cfg.CLI.Quiet = true
	cfg.CLI.Extract.Files = f.inputs

	return cfg
}

func run(t *testing.T, cfg *config.Config) (*Report, error) {
	t.Helper()

	e, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer e.Close()

	return e.Run(context.Background())
}

func TestRun(t *testing.T) {
	f := newFixture(t)

	report, err := run(t, f.config(t, ""))
	require.NoError(t, err)

	assert.Equal(t, 3, report.Count(StatusExtracted))
	assert.Equal(t, 1, report.Count(StatusDuplicate))
	assert.Equal(t, 1, report.Count(StatusFailed))
	assert.False(t, report.Interrupted)

	failures := report.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, f.corrupt, failures[0].Path)
	assert.ErrorIs(t, failures[0].Err, inflate.ErrReservedBlockType)

	for name, want := range map[string][]byte{
		"a": f.files["a.gz"],
		"b": f.files["b.zz"],
		"c": f.files["c.deflate"],
	} {
		got, err := os.ReadFile(filepath.Join(f.outDir, name))
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	in, out := report.Bytes()
	assert.Positive(t, in)
	assert.Equal(t, int64(3000+3000+4000), out)

	// Results are sorted by path
	for i := 1; i < len(report.Results); i++ {
		assert.Less(t, report.Results[i-1].Path, report.Results[i].Path)
	}

	data, err := os.ReadFile(f.cpFile)
	require.NoError(t, err)

	cp := &types.Checkpoint{}
	require.NoError(t, json.Unmarshal(data, cp))
	assert.Len(t, cp.Entries, 3)
	assert.NotNil(t, cp.CompletedAt)
}

func TestRunResume(t *testing.T) {
	f := newFixture(t)

	_, err := run(t, f.config(t, ""))
	require.NoError(t, err)

	// Change one input; only it gets extracted again
	changed := []byte("changed content")
	require.NoError(t, os.WriteFile(f.inputs[1], compress(t, "zlib", changed), 0644))

	report, err := run(t, f.config(t, ""))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Count(StatusResumed))
	assert.Equal(t, 1, report.Count(StatusExtracted))
	assert.Equal(t, 1, report.Count(StatusDuplicate))

	got, err := os.ReadFile(filepath.Join(f.outDir, "b"))
	require.NoError(t, err)
	assert.Equal(t, changed, got)

	// Disabling resume extracts everything again
	cfg := f.config(t, "")
	cfg.CLI.Extract.DisableResume = true

	report, err = run(t, cfg)
	require.NoError(t, err)
	assert.Zero(t, report.Count(StatusResumed))
	assert.Equal(t, 3, report.Count(StatusExtracted))
}

func TestRunDisableDupecheck(t *testing.T) {
	f := newFixture(t)

	report, err := run(t, f.config(t, "disable_dupecheck = true"))
	require.NoError(t, err)
	assert.Equal(t, 4, report.Count(StatusExtracted))
	assert.Zero(t, report.Count(StatusDuplicate))
}

func TestRunFailFast(t *testing.T) {
	f := newFixture(t)

	cfg := f.config(t, "")
	cfg.CLI.Extract.FailFast = true
	cfg.CLI.Extract.Files = []string{f.corrupt}

	_, err := run(t, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, inflate.ErrReservedBlockType)
}

func TestRunDryRun(t *testing.T) {
	f := newFixture(t)

	cfg := f.config(t, "disable_checkpointing = true")
	cfg.CLI.Extract.DryRun = true

	report, err := run(t, cfg)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Count(StatusExtracted))

	for _, fr := range report.Results {
		if fr.Status == StatusExtracted {
			assert.True(t, strings.HasPrefix(fr.Location, "discard://"), fr.Location)
		}
	}

	assert.NoDirExists(t, f.outDir)
	assert.NoFileExists(t, f.cpFile)
}

func TestRunOutputLimit(t *testing.T) {
	f := newFixture(t)

	report, err := run(t, f.config(t, "max_output_size = 100"))
	require.NoError(t, err)
	assert.Zero(t, report.Count(StatusExtracted))

	for _, fr := range report.Failures() {
		if fr.Path != f.corrupt {
			assert.ErrorIs(t, fr.Err, inflate.ErrOutputLimit)
		}
	}
}

func TestRunCancelled(t *testing.T) {
	f := newFixture(t)

	e, err := New(context.Background(), f.config(t, ""))
	require.NoError(t, err)
	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := e.Run(ctx)
	require.NoError(t, err)
	assert.True(t, report.Interrupted)
}

// failingDestination rejects writes for one source path
type failingDestination struct {
	destination.Discard
	path string
}

func (f *failingDestination) Write(ctx context.Context, p *destination.Payload) (string, error) {
	if p.Source == f.path {
		return "", assert.AnError
	}

	return f.Discard.Write(ctx, p)
}

func TestRunDuplicateOfFailedWrite(t *testing.T) {
	f := newFixture(t)
	cfg := f.config(t, "disable_checkpointing = true")

	e, err := newExtractor(cfg, &failingDestination{path: f.inputs[0]})
	require.NoError(t, err)

	report, err := e.Run(context.Background())
	require.NoError(t, err)

	// a.gz fails to write, so dup.gz (same bytes) is not extracted either
	assert.Equal(t, 2, report.Count(StatusExtracted))
	assert.Zero(t, report.Count(StatusDuplicate))
	assert.Equal(t, 3, report.Count(StatusFailed))

	for _, fr := range report.Failures() {
		if fr.Path == f.corrupt {
			continue
		}

		assert.ErrorIs(t, fr.Err, assert.AnError, fr.Path)
	}

	var dup *FileResult
	for _, fr := range report.Results {
		if filepath.Base(fr.Path) == "dup.gz" {
			dup = fr
		}
	}

	require.NotNil(t, dup)
	assert.Equal(t, f.inputs[0], dup.DuplicateOf)
	assert.Contains(t, dup.Err.Error(), "which failed")
}
