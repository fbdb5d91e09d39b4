package destination

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// File writes each payload to <dir>/<name><suffix>.
type File struct {
	dir    string
	suffix string
}

func NewFile(dir, suffix string) (*File, error) {
	if dir == "" {
		return nil, errors.New("dir cannot be empty")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "unable to create output dir '%s'", dir)
	}

	return &File{
		dir:    dir,
		suffix: suffix,
	}, nil
}

func (f *File) Write(ctx context.Context, p *Payload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	location := filepath.Join(f.dir, p.Name()+f.suffix)

	tmp, err := os.CreateTemp(f.dir, ".unflate-*")
	if err != nil {
		return "", errors.Wrap(err, "unable to create temp file")
	}

	if _, err := tmp.Write(p.Data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", errors.Wrapf(err, "unable to write '%s'", location)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", errors.Wrapf(err, "unable to close '%s'", location)
	}

	if err := os.Rename(tmp.Name(), location); err != nil {
		os.Remove(tmp.Name())
		return "", errors.Wrapf(err, "unable to move output into '%s'", location)
	}

	return location, nil
}

func (f *File) Close() error {
	return nil
}
