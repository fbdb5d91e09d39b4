package inflate

import (
	"math/bits"

	"github.com/pkg/errors"
)

// bitReader reads a DEFLATE bit stream out of an in-memory buffer.
//
// reg holds the unread bits of the most recently fetched byte, shifted down,
// with a sentinel bit above them. When only the sentinel remains (reg == 1)
// the next byte must be fetched.
type bitReader struct {
	data  []byte
	pos   int    // index of the next unread byte
	reg   uint32 // unread bits of data[pos-1] plus sentinel
	nbits int64  // bits consumed so far, diagnostic only
}

func newBitReader(data []byte) *bitReader {
	return &bitReader{
		data: data,
		reg:  1,
	}
}

// readBit returns the next bit in stream order: bits within a byte are
// consumed from the least-significant end. Huffman codes are matched one bit
// at a time with this, most-significant code bit first.
func (br *bitReader) readBit() (uint32, error) {
	if br.reg == 1 {
		if br.pos >= len(br.data) {
			return 0, errors.Wrapf(ErrUnexpectedEndOfInput, "reading bit at byte offset %d", br.pos)
		}

		br.reg = uint32(br.data[br.pos]) | 0x100
		br.pos++
	}

	bit := br.reg & 1
	br.reg >>= 1
	br.nbits++

	return bit, nil
}

// readBits reads n bits (n <= 16) with the first bit read landing in the
// least-significant position of the result. This is the convention used by
// header fields and length/distance extra bits.
func (br *bitReader) readBits(n uint) (uint32, error) {
	var v uint32

	for i := uint(0); i < n; i++ {
		bit, err := br.readBit()
		if err != nil {
			return 0, err
		}

		v |= bit << i
	}

	return v, nil
}

// byteAlign drops whatever is left of the current byte.
func (br *bitReader) byteAlign() {
	br.nbits += int64(bits.Len32(br.reg) - 1)
	br.reg = 1
}

// readAlignedBytes returns the next n whole bytes. The reader must be byte
// aligned.
func (br *bitReader) readAlignedBytes(n int) ([]byte, error) {
	if br.reg != 1 {
		return nil, errors.New("inflate: aligned read while mid-byte")
	}

	if n > len(br.data)-br.pos {
		return nil, errors.Wrapf(ErrUnexpectedEndOfInput, "need %d bytes at offset %d, have %d",
			n, br.pos, len(br.data)-br.pos)
	}

	b := br.data[br.pos : br.pos+n]
	br.pos += n
	br.nbits += int64(n) * 8

	return b, nil
}

// readUint16 reads a little-endian 16-bit value from an aligned position.
func (br *bitReader) readUint16() (uint16, error) {
	b, err := br.readAlignedBytes(2)
	if err != nil {
		return 0, err
	}

	return uint16(b[0]) | uint16(b[1])<<8, nil
}

// offset is the number of input bytes touched so far. A partially consumed
// byte counts as consumed.
func (br *bitReader) offset() int {
	return br.pos
}

// headerOffset is the index of the byte holding the next unread bit.
func (br *bitReader) headerOffset() int {
	if br.reg == 1 {
		return br.pos
	}

	return br.pos - 1
}

func (br *bitReader) bitsRead() int64 {
	return br.nbits
}
