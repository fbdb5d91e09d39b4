// Package inflate decodes raw DEFLATE streams (RFC 1951) held in memory.
//
// The decoder reads stored, fixed-Huffman and dynamic-Huffman blocks until the
// final block and returns the decompressed bytes. It does not look at any
// container framing: callers strip zlib/gzip headers first and verify
// trailers afterwards (see Result.BytesRead).
package inflate

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Config holds optional decoder settings. The zero value is usable.
type Config struct {
	// MaxOutputSize caps the decompressed size; 0 means no cap.
	MaxOutputSize int

	// Log receives per-block debug entries. Defaults to the package logger.
	Log *logrus.Entry
}

// Result is the outcome of a successful decompression.
type Result struct {
	Data   []byte
	Blocks []BlockInfo

	// BytesRead is the number of input bytes consumed through the end of the
	// final block, including its partially used last byte.
	BytesRead int

	// BitsRead is the number of bits consumed, padding included.
	BitsRead int64
}

// Decompressor decodes DEFLATE streams. It holds configuration only and is
// safe for concurrent use.
type Decompressor struct {
	maxOutputSize int
	log           *logrus.Entry
}

func New(cfg *Config) *Decompressor {
	d := &Decompressor{
		log: logrus.WithField("pkg", "inflate"),
	}

	if cfg != nil {
		d.maxOutputSize = cfg.MaxOutputSize

		if cfg.Log != nil {
			d.log = cfg.Log
		}
	}

	return d
}

// Decompress decodes data from its first bit. On error no output is returned.
func (d *Decompressor) Decompress(data []byte) (*Result, error) {
	if d.maxOutputSize < 0 {
		return nil, errors.Errorf("inflate: invalid max output size %d", d.maxOutputSize)
	}

	dec := newDecoder(data, d.maxOutputSize, d.log)

	if err := dec.run(); err != nil {
		return nil, err
	}

	return &Result{
		Data:      dec.win.bytes(),
		Blocks:    dec.blocks,
		BytesRead: dec.br.offset(),
		BitsRead:  dec.br.bitsRead(),
	}, nil
}

// Decompress decodes a raw DEFLATE stream with default settings.
func Decompress(data []byte) ([]byte, error) {
	res, err := New(nil).Decompress(data)
	if err != nil {
		return nil, err
	}

	return res.Data, nil
}
