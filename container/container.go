// Package container strips the framing around a DEFLATE stream before it is
// handed to the inflate package, and verifies the trailer afterwards.
//
// Supported framings are zlib (RFC 1950) and a single gzip member (RFC 1952).
// Raw streams pass through untouched.
package container

import (
	"bytes"
	"encoding/binary"
	"hash/adler32"
	"hash/crc32"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/dselans/unflate/inflate"
)

// Format identifies the framing around a DEFLATE stream.
type Format string

const (
	FormatAuto Format = "auto"
	FormatRaw  Format = "raw"
	FormatZlib Format = "zlib"
	FormatGzip Format = "gzip"
)

const (
	gzipID1     = 0x1f
	gzipID2     = 0x8b
	gzipDeflate = 8
	flagText    = 1 << 0
	flagHdrCrc  = 1 << 1
	flagExtra   = 1 << 2
	flagName    = 1 << 3
	flagComment = 1 << 4

	zlibDeflate  = 8
	zlibMaxWBits = 7
	zlibFlagDict = 1 << 5
)

var (
	// ErrHeader is returned when a container header is malformed.
	ErrHeader = errors.New("container: invalid header")

	// ErrChecksum is returned when a trailer checksum or size does not match.
	ErrChecksum = errors.New("container: invalid checksum")

	// ErrTrailer is returned when the trailer is missing or truncated.
	ErrTrailer = errors.New("container: missing trailer")

	// ErrUnsupported is returned for valid framings this package cannot decode.
	ErrUnsupported = errors.New("container: unsupported")
)

var (
	le = binary.LittleEndian
	be = binary.BigEndian
)

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatAuto:
		return FormatAuto, nil
	case FormatRaw:
		return FormatRaw, nil
	case FormatZlib:
		return FormatZlib, nil
	case FormatGzip:
		return FormatGzip, nil
	default:
		return "", errors.Errorf("unknown container format '%s'", s)
	}
}

// Options control how a payload is unwrapped.
type Options struct {
	Encoding Encoding
	Format   Format

	// SkipBytes is a caller-owned preamble dropped before anything else is
	// looked at.
	SkipBytes int
}

// GzipHeader holds the metadata of a gzip member.
type GzipHeader struct {
	Name    string
	Comment string
	Extra   []byte
	ModTime time.Time
	OS      byte
	Text    bool
}

// Result is a decoded payload.
type Result struct {
	Data   []byte
	Format Format
	Gzip   *GzipHeader // set for gzip input
	Blocks []inflate.BlockInfo

	// Trailing is the number of input bytes left after the trailer.
	Trailing int
}

// Detect guesses the framing from the first bytes of data.
func Detect(data []byte) Format {
	if len(data) >= 2 && data[0] == gzipID1 && data[1] == gzipID2 {
		return FormatGzip
	}

	if len(data) >= 2 && validZlibHeader(data[0], data[1]) {
		return FormatZlib
	}

	return FormatRaw
}

func validZlibHeader(cmf, flg byte) bool {
	return cmf&0x0f == zlibDeflate && cmf>>4 <= zlibMaxWBits && (uint16(cmf)<<8|uint16(flg))%31 == 0
}

// Decode unwraps data according to opts, inflates it with dec and checks the
// trailer.
func Decode(data []byte, opts *Options, dec *inflate.Decompressor) (*Result, error) {
	if opts == nil {
		opts = &Options{}
	}

	if dec == nil {
		dec = inflate.New(nil)
	}

	data, err := DecodeInput(data, opts.Encoding)
	if err != nil {
		return nil, err
	}

	if opts.SkipBytes < 0 {
		return nil, errors.Errorf("invalid skip bytes %d", opts.SkipBytes)
	}

	if opts.SkipBytes > len(data) {
		return nil, errors.Wrapf(ErrHeader, "cannot skip %d bytes of a %d byte payload", opts.SkipBytes, len(data))
	}

	data = data[opts.SkipBytes:]

	format := opts.Format
	if format == "" || format == FormatAuto {
		format = Detect(data)
	}

	switch format {
	case FormatRaw:
		return decodeRaw(data, dec)
	case FormatZlib:
		return decodeZlib(data, dec)
	case FormatGzip:
		return decodeGzip(data, dec)
	default:
		return nil, errors.Errorf("unknown container format '%s'", format)
	}
}

func decodeRaw(data []byte, dec *inflate.Decompressor) (*Result, error) {
	res, err := dec.Decompress(data)
	if err != nil {
		return nil, errors.Wrap(err, "unable to inflate raw stream")
	}

	return &Result{
		Data:     res.Data,
		Format:   FormatRaw,
		Blocks:   res.Blocks,
		Trailing: len(data) - res.BytesRead,
	}, nil
}

func decodeZlib(data []byte, dec *inflate.Decompressor) (*Result, error) {
	if len(data) < 2 || !validZlibHeader(data[0], data[1]) {
		return nil, errors.Wrap(ErrHeader, "not a zlib stream")
	}

	if data[1]&zlibFlagDict != 0 {
		return nil, errors.Wrap(ErrUnsupported, "zlib preset dictionary")
	}

	body := data[2:]

	res, err := dec.Decompress(body)
	if err != nil {
		return nil, errors.Wrap(err, "unable to inflate zlib stream")
	}

	trailer := body[res.BytesRead:]
	if len(trailer) < 4 {
		return nil, errors.Wrapf(ErrTrailer, "zlib trailer needs 4 bytes, have %d", len(trailer))
	}

	if want, got := be.Uint32(trailer), adler32.Checksum(res.Data); want != got {
		return nil, errors.Wrapf(ErrChecksum, "adler-32 %08x, computed %08x", want, got)
	}

	return &Result{
		Data:     res.Data,
		Format:   FormatZlib,
		Blocks:   res.Blocks,
		Trailing: len(trailer) - 4,
	}, nil
}

func decodeGzip(data []byte, dec *inflate.Decompressor) (*Result, error) {
	hdr, n, err := readGzipHeader(data)
	if err != nil {
		return nil, err
	}

	body := data[n:]

	res, err := dec.Decompress(body)
	if err != nil {
		return nil, errors.Wrap(err, "unable to inflate gzip member")
	}

	trailer := body[res.BytesRead:]
	if len(trailer) < 8 {
		return nil, errors.Wrapf(ErrTrailer, "gzip trailer needs 8 bytes, have %d", len(trailer))
	}

	if want, got := le.Uint32(trailer[:4]), crc32.ChecksumIEEE(res.Data); want != got {
		return nil, errors.Wrapf(ErrChecksum, "crc-32 %08x, computed %08x", want, got)
	}

	if want, got := le.Uint32(trailer[4:8]), uint32(len(res.Data)); want != got {
		return nil, errors.Wrapf(ErrChecksum, "size %d, decoded %d", want, got)
	}

	return &Result{
		Data:     res.Data,
		Format:   FormatGzip,
		Gzip:     hdr,
		Blocks:   res.Blocks,
		Trailing: len(trailer) - 8,
	}, nil
}

// readGzipHeader parses a gzip member header and returns its length.
func readGzipHeader(data []byte) (*GzipHeader, int, error) {
	if len(data) < 10 {
		return nil, 0, errors.Wrap(ErrHeader, "gzip header truncated")
	}

	if data[0] != gzipID1 || data[1] != gzipID2 || data[2] != gzipDeflate {
		return nil, 0, errors.Wrap(ErrHeader, "bad gzip magic or method")
	}

	flg := data[3]
	hdr := &GzipHeader{
		OS:   data[9],
		Text: flg&flagText != 0,
	}

	if t := int64(le.Uint32(data[4:8])); t > 0 {
		hdr.ModTime = time.Unix(t, 0)
	}

	pos := 10

	if flg&flagExtra != 0 {
		if len(data) < pos+2 {
			return nil, 0, errors.Wrap(ErrHeader, "gzip extra length truncated")
		}

		n := int(le.Uint16(data[pos:]))
		pos += 2

		if len(data) < pos+n {
			return nil, 0, errors.Wrap(ErrHeader, "gzip extra field truncated")
		}

		hdr.Extra = append([]byte(nil), data[pos:pos+n]...)
		pos += n
	}

	if flg&flagName != 0 {
		s, n, err := readCString(data[pos:])
		if err != nil {
			return nil, 0, errors.Wrap(err, "gzip name")
		}

		hdr.Name = s
		pos += n
	}

	if flg&flagComment != 0 {
		s, n, err := readCString(data[pos:])
		if err != nil {
			return nil, 0, errors.Wrap(err, "gzip comment")
		}

		hdr.Comment = s
		pos += n
	}

	if flg&flagHdrCrc != 0 {
		if len(data) < pos+2 {
			return nil, 0, errors.Wrap(ErrHeader, "gzip header crc truncated")
		}

		want := le.Uint16(data[pos:])
		if got := uint16(crc32.ChecksumIEEE(data[:pos])); want != got {
			return nil, 0, errors.Wrapf(ErrChecksum, "gzip header crc %04x, computed %04x", want, got)
		}

		pos += 2
	}

	return hdr, pos, nil
}

// readCString reads a zero-terminated ISO 8859-1 string and returns it as
// UTF-8 along with the bytes consumed.
func readCString(data []byte) (string, int, error) {
	i := bytes.IndexByte(data, 0)
	if i < 0 {
		return "", 0, errors.Wrap(ErrHeader, "unterminated string")
	}

	runes := make([]rune, i)
	for j, b := range data[:i] {
		runes[j] = rune(b)
	}

	return string(runes), i + 1, nil
}
