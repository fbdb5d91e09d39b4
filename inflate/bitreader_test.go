package inflate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadBit(t *testing.T) {
	// 0xb4 = 10110100, consumed from the least-significant end
	br := newBitReader([]byte{0xb4, 0x01})

	expected := []uint32{0, 0, 1, 0, 1, 1, 0, 1, 1, 0, 0, 0, 0, 0, 0, 0}

	var got []uint32

	for range expected {
		bit, err := br.readBit()
		require.NoError(t, err)

		got = append(got, bit)
	}

	assert.Equal(t, expected, got)
	assert.Equal(t, 2, br.offset())
	assert.Equal(t, int64(16), br.bitsRead())

	_, err := br.readBit()
	assert.ErrorIs(t, err, ErrUnexpectedEndOfInput)
}

func TestReadBits(t *testing.T) {
	t.Run("LSBFirst", func(t *testing.T) {
		br := newBitReader([]byte{0xb4})

		v, err := br.readBits(3)
		require.NoError(t, err)
		assert.Equal(t, uint32(0x4), v)

		v, err = br.readBits(5)
		require.NoError(t, err)
		assert.Equal(t, uint32(0xb4>>3), v)
	})

	t.Run("AcrossBytes", func(t *testing.T) {
		br := newBitReader([]byte{0xff, 0x01})

		v, err := br.readBits(4)
		require.NoError(t, err)
		assert.Equal(t, uint32(15), v)

		v, err = br.readBits(6)
		require.NoError(t, err)
		assert.Equal(t, uint32(31), v)
	})

	t.Run("Zero", func(t *testing.T) {
		br := newBitReader(nil)

		v, err := br.readBits(0)
		require.NoError(t, err)
		assert.Zero(t, v)
	})

	t.Run("Truncated", func(t *testing.T) {
		br := newBitReader([]byte{0xff})

		_, err := br.readBits(9)
		assert.ErrorIs(t, err, ErrUnexpectedEndOfInput)
	})
}

func TestByteAlign(t *testing.T) {
	br := newBitReader([]byte{0x01, 0xab, 0x34, 0x12})

	bit, err := br.readBit()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), bit)

	br.byteAlign()
	assert.Equal(t, int64(8), br.bitsRead())

	v, err := br.readBits(8)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xab), v)

	// Already aligned: no-op.
	br.byteAlign()

	u, err := br.readUint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), u)
	assert.Equal(t, 4, br.offset())

	_, err = br.readAlignedBytes(1)
	assert.ErrorIs(t, err, ErrUnexpectedEndOfInput)
}
