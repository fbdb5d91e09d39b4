// Package destination contains the sinks decompressed payloads are written to.
package destination

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/dselans/unflate/config"
)

// Payload is one decompressed input ready to be stored
type Payload struct {
	Source   string // path of the compressed input
	Checksum string // sha256 of the compressed input, hex
	Format   string
	Data     []byte
}

// Name is the output name derived from the source path: the base name with
// one compression-ish extension stripped.
func (p *Payload) Name() string {
	name := filepath.Base(p.Source)

	switch strings.ToLower(filepath.Ext(name)) {
	case ".gz", ".gzip", ".z", ".zz", ".zlib", ".deflate", ".b64", ".gxt":
		name = strings.TrimSuffix(name, filepath.Ext(name))
	}

	if name == "" || name == "." || name == string(filepath.Separator) {
		name = p.Checksum
	}

	return name
}

type Destination interface {
	// Write stores p and returns where it ended up
	Write(ctx context.Context, p *Payload) (string, error)
	Close() error
}

// New returns the destination described by cfg. Dry runs always get a
// Discard destination.
func New(ctx context.Context, cfg *config.TOMLDestination, dryRun bool) (Destination, error) {
	if cfg == nil {
		return nil, errors.New("destination config cannot be nil")
	}

	if dryRun {
		return &Discard{}, nil
	}

	switch cfg.Type {
	case "file":
		return NewFile(cfg.Dir, cfg.Suffix)
	case "postgres", "mysql":
		return NewSQL(ctx, cfg.Type, cfg.DSN, cfg.Table)
	default:
		return nil, errors.Errorf("unsupported destination type '%s'", cfg.Type)
	}
}
