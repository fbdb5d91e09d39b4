package inflate

import (
	"github.com/pkg/errors"
)

const (
	windowSize = 1 << 15 // largest distance the format can express
	windowMask = windowSize - 1
)

// outputWindow keeps the last windowSize bytes in a ring for back-references
// and accumulates the full output in out.
type outputWindow struct {
	hist  [windowSize]byte
	pos   int // write cursor into hist
	out   []byte
	limit int // 0 means unbounded
}

func newOutputWindow(limit int) *outputWindow {
	return &outputWindow{
		out:   []byte{},
		limit: limit,
	}
}

func (w *outputWindow) emit(b byte) error {
	if w.limit > 0 && len(w.out) >= w.limit {
		return errors.Wrapf(ErrOutputLimit, "limit is %d bytes", w.limit)
	}

	w.hist[w.pos] = b
	w.pos = (w.pos + 1) & windowMask
	w.out = append(w.out, b)

	return nil
}

func (w *outputWindow) emitBytes(b []byte) error {
	for _, c := range b {
		if err := w.emit(c); err != nil {
			return err
		}
	}

	return nil
}

// copyBackReference appends length bytes, each taken distance bytes behind
// the write cursor. Bytes are copied one at a time so that a source range
// overlapping the bytes being written repeats them, as the format requires.
func (w *outputWindow) copyBackReference(length, distance int) error {
	if distance < 1 || distance > windowSize {
		return errors.Wrapf(ErrDanglingBackReference, "distance %d out of range", distance)
	}

	if distance > len(w.out) {
		return errors.Wrapf(ErrDanglingBackReference, "distance %d but only %d bytes emitted", distance, len(w.out))
	}

	for i := 0; i < length; i++ {
		if err := w.emit(w.hist[(w.pos-distance)&windowMask]); err != nil {
			return err
		}
	}

	return nil
}

func (w *outputWindow) size() int {
	return len(w.out)
}

func (w *outputWindow) bytes() []byte {
	return w.out
}
