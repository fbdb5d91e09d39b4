package inflate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// codes walks the tree and returns the bit path of every leaf.
func codes(t *huffmanTree) map[int][]string {
	out := map[int][]string{}

	var walk func(n int, prefix string)

	walk = func(n int, prefix string) {
		for bit, s := range t.nodes[n] {
			path := prefix + string(rune('0'+bit))

			switch s.kind {
			case slotLeaf:
				out[int(s.value)] = append(out[int(s.value)], path)
			case slotLink:
				walk(int(s.value), path)
			}
		}
	}

	walk(0, "")

	return out
}

func TestBuildHuffmanTree(t *testing.T) {
	t.Run("Canonical", func(t *testing.T) {
		tree, err := buildHuffmanTree([]uint8{2, 1, 3, 3}, maxCodeBits, false)
		require.NoError(t, err)

		assert.Equal(t, map[int][]string{
			0: {"10"},
			1: {"0"},
			2: {"110"},
			3: {"111"},
		}, codes(tree))

		// Full tree: n leaves need n-1 internal nodes.
		assert.Len(t, tree.nodes, 3)
	})

	t.Run("OverSubscribed", func(t *testing.T) {
		_, err := buildHuffmanTree([]uint8{1, 1, 1}, maxCodeBits, true)
		assert.ErrorIs(t, err, ErrInvalidHuffmanTable)
	})

	t.Run("UnderSubscribed", func(t *testing.T) {
		_, err := buildHuffmanTree([]uint8{2, 2, 2}, maxCodeBits, false)
		assert.ErrorIs(t, err, ErrInvalidHuffmanTable)

		_, err = buildHuffmanTree([]uint8{2, 2, 2}, maxCodeBits, true)
		assert.ErrorIs(t, err, ErrInvalidHuffmanTable)
	})

	t.Run("TooLong", func(t *testing.T) {
		_, err := buildHuffmanTree([]uint8{8, 1}, maxCodeLengthBits, false)
		assert.ErrorIs(t, err, ErrInvalidHuffmanTable)
	})

	t.Run("SingleCode", func(t *testing.T) {
		_, err := buildHuffmanTree([]uint8{0, 1}, maxCodeBits, false)
		assert.ErrorIs(t, err, ErrInvalidHuffmanTable)

		tree, err := buildHuffmanTree([]uint8{0, 1}, maxCodeBits, true)
		require.NoError(t, err)
		assert.Equal(t, map[int][]string{1: {"0"}}, codes(tree))

		// 0b10: a zero bit, then a one bit that has no code.
		br := newBitReader([]byte{0x02})

		sym, err := tree.decode(br)
		require.NoError(t, err)
		assert.Equal(t, 1, sym)

		_, err = tree.decode(br)
		assert.ErrorIs(t, err, ErrInvalidSymbol)
	})

	t.Run("Empty", func(t *testing.T) {
		tree, err := buildHuffmanTree(make([]uint8, 30), maxCodeBits, true)
		require.NoError(t, err)

		_, err = tree.decode(newBitReader([]byte{0x00}))
		assert.ErrorIs(t, err, ErrInvalidSymbol)
	})

	t.Run("Fixed", func(t *testing.T) {
		lit, err := buildHuffmanTree(fixedLitLenLengths(), maxCodeBits, false)
		require.NoError(t, err)

		litCodes := codes(lit)
		assert.Len(t, litCodes, numLitLenSymbols)
		assert.Equal(t, []string{"0000000"}, litCodes[endOfBlock])
		assert.Equal(t, []string{"00110000"}, litCodes[0])
		assert.Equal(t, []string{"110010000"}, litCodes[144])
		assert.Equal(t, []string{"11000111"}, litCodes[287])

		dist, err := buildHuffmanTree(fixedDistLengths(), maxCodeBits, false)
		require.NoError(t, err)
		assert.Equal(t, []string{"00011"}, codes(dist)[3])
	})
}

func TestHuffmanDecode(t *testing.T) {
	tree, err := buildHuffmanTree([]uint8{2, 1, 3, 3}, maxCodeBits, false)
	require.NoError(t, err)

	// Stream bits 1,1,1 (symbol 3), 0 (symbol 1), 1,0 (symbol 0), then 1,1 and EOF.
	br := newBitReader([]byte{0xd7})

	for _, want := range []int{3, 1, 0} {
		sym, err := tree.decode(br)
		require.NoError(t, err)
		assert.Equal(t, want, sym)
	}

	_, err = tree.decode(br)
	assert.ErrorIs(t, err, ErrUnexpectedEndOfInput)
}
