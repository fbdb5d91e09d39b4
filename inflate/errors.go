package inflate

import (
	"github.com/pkg/errors"
)

var (
	// ErrUnexpectedEndOfInput is returned when a bit or byte read runs past the
	// end of the input buffer.
	ErrUnexpectedEndOfInput = errors.New("inflate: unexpected end of input")

	// ErrInvalidHuffmanTable is returned when a code-length table over- or
	// under-subscribes the code space.
	ErrInvalidHuffmanTable = errors.New("inflate: invalid huffman table")

	// ErrInvalidSymbol is returned when a decoded literal/length or distance
	// symbol falls outside the valid range for the active table.
	ErrInvalidSymbol = errors.New("inflate: invalid symbol")

	// ErrDanglingBackReference is returned when a copy references more history
	// than has been emitted.
	ErrDanglingBackReference = errors.New("inflate: dangling back-reference")

	// ErrChecksumMismatch is returned when a stored block's LEN/NLEN disagree.
	ErrChecksumMismatch = errors.New("inflate: stored block length checksum mismatch")

	// ErrReservedBlockType is returned for block type 3.
	ErrReservedBlockType = errors.New("inflate: reserved block type")

	// ErrRepeatCountOverflow is returned when a 16/17/18 repeat code in a dynamic
	// block header writes past HLIT+HDIST.
	ErrRepeatCountOverflow = errors.New("inflate: repeat count overflow")

	// ErrOutputLimit is returned when the output would exceed Config.MaxOutputSize.
	ErrOutputLimit = errors.New("inflate: output size limit exceeded")
)
