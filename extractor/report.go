package extractor

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
)

type Status string

const (
	StatusExtracted Status = "extracted"
	StatusResumed   Status = "resumed"
	StatusDuplicate Status = "duplicate"
	StatusFailed    Status = "failed"
)

// FileResult is the outcome for a single input file
type FileResult struct {
	Path       string
	Status     Status
	Format     string
	Blocks     int
	InputSize  int
	OutputSize int
	Location   string
	Err        error

	// DuplicateOf is the path first seen with the same content
	DuplicateOf string
}

// Report summarizes an extraction run
type Report struct {
	Results     []*FileResult
	Interrupted bool
	Duration    time.Duration

	mu sync.Mutex
}

func (r *Report) add(fr *FileResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Results = append(r.Results, fr)
}

// resolveDuplicates turns duplicates of a file that failed into failures
// themselves; nothing with that content was written.
func (r *Report) resolveDuplicates() {
	r.mu.Lock()
	defer r.mu.Unlock()

	byPath := make(map[string]*FileResult, len(r.Results))
	for _, fr := range r.Results {
		byPath[fr.Path] = fr
	}

	for _, fr := range r.Results {
		if fr.Status != StatusDuplicate {
			continue
		}

		first, ok := byPath[fr.DuplicateOf]
		if !ok || first.Status != StatusFailed {
			continue
		}

		fr.Status = StatusFailed
		fr.Err = errors.Wrapf(first.Err, "duplicate of '%s', which failed", first.Path)
	}
}

func (r *Report) sort() {
	r.mu.Lock()
	defer r.mu.Unlock()

	sort.Slice(r.Results, func(i, j int) bool {
		return r.Results[i].Path < r.Results[j].Path
	})
}

// Count returns the number of results with status s
func (r *Report) Count(s Status) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int

	for _, fr := range r.Results {
		if fr.Status == s {
			n++
		}
	}

	return n
}

// Failures returns the failed results
func (r *Report) Failures() []*FileResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	var failed []*FileResult

	for _, fr := range r.Results {
		if fr.Status == StatusFailed {
			failed = append(failed, fr)
		}
	}

	return failed
}

// Bytes returns total input and output bytes of extracted files
func (r *Report) Bytes() (in, out int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, fr := range r.Results {
		if fr.Status == StatusExtracted {
			in += int64(fr.InputSize)
			out += int64(fr.OutputSize)
		}
	}

	return in, out
}
