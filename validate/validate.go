package validate

import (
	"encoding/hex"

	"github.com/pkg/errors"

	"github.com/dselans/unflate/checkpoint/types"
)

func Checkpoint(cp *types.Checkpoint) error {
	if cp == nil {
		return errors.New("checkpoint is nil")
	}

	if cp.StartedAt.IsZero() {
		return errors.New("checkpoint is missing started_at")
	}

	for path, e := range cp.Entries {
		if err := Entry(e); err != nil {
			return errors.Wrapf(err, "entry '%s'", path)
		}
	}

	return nil
}

func Entry(e *types.Entry) error {
	if e == nil {
		return errors.New("entry is nil")
	}

	if err := Checksum(e.Checksum); err != nil {
		return err
	}

	if e.OutputSize < 0 {
		return errors.Errorf("output_size %d cannot be negative", e.OutputSize)
	}

	if e.Location == "" {
		return errors.New("location cannot be empty")
	}

	return nil
}

// Checksum verifies s is a hex encoded sha256 digest.
func Checksum(s string) error {
	b, err := hex.DecodeString(s)
	if err != nil {
		return errors.Wrap(err, "checksum is not hex")
	}

	if len(b) != 32 {
		return errors.Errorf("checksum must be 32 bytes, got %d", len(b))
	}

	return nil
}
