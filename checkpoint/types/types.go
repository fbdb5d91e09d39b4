package types

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Checkpoint records which inputs of a batch have already been extracted
type Checkpoint struct {
	SourceFiles []string          `json:"source_files"`
	Entries     map[string]*Entry `json:"entries"`
	StartedAt   time.Time         `json:"started_at"`
	LastUpdated time.Time         `json:"last_updated"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`

	*sync.Mutex `json:"-"`
}

// Entry is the record of one successfully extracted input file
type Entry struct {
	Checksum    string    `json:"checksum"` // sha256 of the compressed input
	OutputSize  int       `json:"output_size"`
	Location    string    `json:"location"`
	CompletedAt time.Time `json:"completed_at"`
}

func New(sourceFiles []string) *Checkpoint {
	now := time.Now()

	return &Checkpoint{
		SourceFiles: sourceFiles,
		Entries:     make(map[string]*Entry),
		StartedAt:   now,
		LastUpdated: now,
		Mutex:       &sync.Mutex{},
	}
}

// Done reports whether path was already extracted from input with the given
// checksum.
func (cp *Checkpoint) Done(path, checksum string) bool {
	cp.Lock()
	defer cp.Unlock()

	e, ok := cp.Entries[path]

	return ok && e.Checksum == checksum
}

func (cp *Checkpoint) Set(path string, e *Entry) {
	cp.Lock()
	defer cp.Unlock()

	cp.Entries[path] = e
	cp.LastUpdated = time.Now()
}

func (cp *Checkpoint) MarkCompleted() {
	cp.Lock()
	defer cp.Unlock()

	now := time.Now()
	cp.CompletedAt = &now
	cp.LastUpdated = now
}

// Save writes the checkpoint next to checkpointFile and renames it into
// place so a crash never leaves a half-written file behind.
func (cp *Checkpoint) Save(checkpointFile string) error {
	cp.Lock()
	data, err := json.MarshalIndent(cp, "", "  ")
	cp.Unlock()

	if err != nil {
		return errors.Wrap(err, "unable to marshal checkpoint file")
	}

	tmp, err := os.CreateTemp(filepath.Dir(checkpointFile), filepath.Base(checkpointFile)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "unable to create temp checkpoint file")
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrap(err, "unable to write checkpoint file")
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "unable to close temp checkpoint file")
	}

	if err := os.Rename(tmp.Name(), checkpointFile); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "unable to move checkpoint file into place")
	}

	return nil
}

// Get returns the entry recorded for path, if any.
func (cp *Checkpoint) Get(path string) (*Entry, bool) {
	cp.Lock()
	defer cp.Unlock()

	e, ok := cp.Entries[path]

	return e, ok
}
