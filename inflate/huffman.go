package inflate

import (
	"github.com/pkg/errors"
)

const (
	maxCodeBits       = 15 // literal/length and distance alphabets
	maxCodeLengthBits = 7  // code-length alphabet
)

type slotKind uint8

const (
	slotEmpty slotKind = iota
	slotLeaf
	slotLink
)

// slot is one branch of a node: empty, a leaf holding a symbol, or a link to
// another node in the arena.
type slot struct {
	kind  slotKind
	value uint16 // symbol for leaves, node index for links
}

// huffmanNode holds the zero and one branches.
type huffmanNode [2]slot

// huffmanTree is a canonical Huffman decoding tree stored as a flat arena.
// Node 0 is the root. Trees are never modified after construction.
type huffmanTree struct {
	nodes []huffmanNode
}

// treeBuilder carries the per-length cursors used while growing the trie in
// pre-order.
type treeBuilder struct {
	lengths []uint8
	next    [maxCodeBits + 1]int
	maxBits int
	nodes   []huffmanNode
}

// buildHuffmanTree builds the canonical tree for lengths. Codes are assigned
// by increasing length and then by symbol index, which is the order in which a
// pre-order walk of the trie reaches free slots at each depth.
//
// An incomplete code is rejected unless allowIncomplete is set and the table
// is either empty or holds a single code of length 1; both shapes are legal
// for literal/length and distance tables. Decoding through the missing branch
// yields ErrInvalidSymbol.
func buildHuffmanTree(lengths []uint8, maxBits int, allowIncomplete bool) (*huffmanTree, error) {
	var count [maxCodeBits + 1]int

	total := 0

	for sym, l := range lengths {
		if int(l) > maxBits {
			return nil, errors.Wrapf(ErrInvalidHuffmanTable, "symbol %d has code length %d, max %d", sym, l, maxBits)
		}

		if l > 0 {
			count[l]++
			total++
		}
	}

	// Kraft accounting: left is the number of unused codes at the current length.
	left := 1

	for l := 1; l <= maxBits; l++ {
		left <<= 1
		left -= count[l]

		if left < 0 {
			return nil, errors.Wrapf(ErrInvalidHuffmanTable, "over-subscribed at code length %d", l)
		}
	}

	if left > 0 {
		switch {
		case !allowIncomplete:
			return nil, errors.Wrapf(ErrInvalidHuffmanTable, "incomplete code: %d of %d codes unused", left, 1<<uint(maxBits))
		case total == 0:
			return &huffmanTree{nodes: []huffmanNode{{}}}, nil
		case total == 1 && count[1] == 1:
			for sym, l := range lengths {
				if l == 1 {
					return &huffmanTree{nodes: []huffmanNode{{{kind: slotLeaf, value: uint16(sym)}}}}, nil
				}
			}
		default:
			return nil, errors.Wrapf(ErrInvalidHuffmanTable, "incomplete code: %d of %d codes unused", left, 1<<uint(maxBits))
		}
	}

	b := &treeBuilder{
		lengths: lengths,
		maxBits: maxBits,
		nodes:   make([]huffmanNode, 1, total),
	}

	if err := b.fill(0, 1); err != nil {
		return nil, err
	}

	// Every symbol with a code must have been placed.
	for l := 1; l <= maxBits; l++ {
		if b.nextSymbol(l) >= 0 {
			return nil, errors.Wrapf(ErrInvalidHuffmanTable, "unplaced symbols of length %d", l)
		}
	}

	return &huffmanTree{nodes: b.nodes}, nil
}

// nextSymbol returns the next unplaced symbol whose code length is length, or
// -1 when none remain.
func (b *treeBuilder) nextSymbol(length int) int {
	for b.next[length] < len(b.lengths) {
		sym := b.next[length]
		b.next[length]++

		if int(b.lengths[sym]) == length {
			return sym
		}
	}

	return -1
}

// fill populates both slots of node idx, whose slots sit at code length depth.
func (b *treeBuilder) fill(idx, depth int) error {
	if depth > b.maxBits {
		return errors.Wrapf(ErrInvalidHuffmanTable, "code deeper than %d bits", b.maxBits)
	}

	for bit := 0; bit < 2; bit++ {
		if sym := b.nextSymbol(depth); sym >= 0 {
			b.nodes[idx][bit] = slot{kind: slotLeaf, value: uint16(sym)}
			continue
		}

		child := len(b.nodes)
		b.nodes = append(b.nodes, huffmanNode{})
		b.nodes[idx][bit] = slot{kind: slotLink, value: uint16(child)}

		if err := b.fill(child, depth+1); err != nil {
			return err
		}
	}

	return nil
}

// decode reads one symbol from br.
func (t *huffmanTree) decode(br *bitReader) (int, error) {
	n := 0

	for {
		bit, err := br.readBit()
		if err != nil {
			return 0, err
		}

		s := t.nodes[n][bit]

		switch s.kind {
		case slotLeaf:
			return int(s.value), nil
		case slotLink:
			n = int(s.value)
		default:
			return 0, errors.Wrap(ErrInvalidSymbol, "code not present in table")
		}
	}
}
