package inflate

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// BlockType is the 2-bit BTYPE field of a block header.
type BlockType uint8

const (
	BlockStored BlockType = iota
	BlockFixed
	BlockDynamic
	BlockReserved
)

func (t BlockType) String() string {
	switch t {
	case BlockStored:
		return "stored"
	case BlockFixed:
		return "fixed"
	case BlockDynamic:
		return "dynamic"
	case BlockReserved:
		return "reserved"
	default:
		return "unknown"
	}
}

// BlockInfo describes one decoded block.
type BlockInfo struct {
	Type   BlockType
	Final  bool
	Offset int // input byte offset of the block header
	Size   int // bytes of output produced by the block
}

// decoder is the per-call block state machine. It owns the bit reader and
// the output window; nothing in it outlives a single Decompress call.
type decoder struct {
	br  *bitReader
	win *outputWindow
	log *logrus.Entry

	fixedLit  *huffmanTree
	fixedDist *huffmanTree

	blocks []BlockInfo
}

func newDecoder(data []byte, limit int, log *logrus.Entry) *decoder {
	return &decoder{
		br:  newBitReader(data),
		win: newOutputWindow(limit),
		log: log,
	}
}

// run decodes blocks until the final one completes.
func (d *decoder) run() error {
	for {
		final, err := d.readBlock()
		if err != nil {
			return errors.Wrapf(err, "block %d", len(d.blocks))
		}

		if final {
			return nil
		}
	}
}

func (d *decoder) readBlock() (bool, error) {
	offset := d.br.headerOffset()
	start := d.win.size()

	final, err := d.br.readBits(1)
	if err != nil {
		return false, err
	}

	bt, err := d.br.readBits(2)
	if err != nil {
		return false, err
	}

	blockType := BlockType(bt)

	switch blockType {
	case BlockStored:
		err = d.storedBlock()
	case BlockFixed:
		err = d.fixedBlock()
	case BlockDynamic:
		err = d.dynamicBlock()
	case BlockReserved:
		err = ErrReservedBlockType
	}

	if err != nil {
		return false, errors.Wrapf(err, "%s block at offset %d", blockType, offset)
	}

	info := BlockInfo{
		Type:   blockType,
		Final:  final == 1,
		Offset: offset,
		Size:   d.win.size() - start,
	}

	d.blocks = append(d.blocks, info)

	d.log.WithFields(logrus.Fields{
		"type":   info.Type,
		"final":  info.Final,
		"offset": info.Offset,
		"size":   info.Size,
	}).Debug("decoded block")

	return info.Final, nil
}

func (d *decoder) storedBlock() error {
	d.br.byteAlign()

	length, err := d.br.readUint16()
	if err != nil {
		return err
	}

	nlength, err := d.br.readUint16()
	if err != nil {
		return err
	}

	if length != ^nlength {
		return errors.Wrapf(ErrChecksumMismatch, "LEN %#04x, NLEN %#04x", length, nlength)
	}

	data, err := d.br.readAlignedBytes(int(length))
	if err != nil {
		return err
	}

	return d.win.emitBytes(data)
}

func (d *decoder) fixedBlock() error {
	if d.fixedLit == nil {
		lit, err := buildHuffmanTree(fixedLitLenLengths(), maxCodeBits, false)
		if err != nil {
			return errors.Wrap(err, "fixed literal/length table")
		}

		dist, err := buildHuffmanTree(fixedDistLengths(), maxCodeBits, false)
		if err != nil {
			return errors.Wrap(err, "fixed distance table")
		}

		d.fixedLit, d.fixedDist = lit, dist
	}

	return d.decodeSymbols(d.fixedLit, d.fixedDist)
}

func (d *decoder) dynamicBlock() error {
	hlit, err := d.br.readBits(5)
	if err != nil {
		return err
	}

	hdist, err := d.br.readBits(5)
	if err != nil {
		return err
	}

	hclen, err := d.br.readBits(4)
	if err != nil {
		return err
	}

	numLit := int(hlit) + 257
	numDist := int(hdist) + 1
	numCodeLen := int(hclen) + 4

	if numLit > maxLitLenCodes || numDist > maxDistCodes {
		return errors.Wrapf(ErrInvalidHuffmanTable, "HLIT %d, HDIST %d", numLit, numDist)
	}

	var codeLengths [numCodeLengths]uint8

	for i := 0; i < numCodeLen; i++ {
		v, err := d.br.readBits(3)
		if err != nil {
			return err
		}

		codeLengths[codeLengthOrder[i]] = uint8(v)
	}

	clTree, err := buildHuffmanTree(codeLengths[:], maxCodeLengthBits, false)
	if err != nil {
		return errors.Wrap(err, "code-length table")
	}

	lengths, err := d.readCodeLengths(clTree, numLit+numDist)
	if err != nil {
		return err
	}

	if lengths[endOfBlock] == 0 {
		return errors.Wrap(ErrInvalidHuffmanTable, "no code for end-of-block")
	}

	lit, err := buildHuffmanTree(lengths[:numLit], maxCodeBits, true)
	if err != nil {
		return errors.Wrap(err, "literal/length table")
	}

	dist, err := buildHuffmanTree(lengths[numLit:], maxCodeBits, true)
	if err != nil {
		return errors.Wrap(err, "distance table")
	}

	return d.decodeSymbols(lit, dist)
}

// readCodeLengths decodes n literal/length and distance code lengths using the
// code-length tree, expanding the 16/17/18 run codes.
func (d *decoder) readCodeLengths(clTree *huffmanTree, n int) ([]uint8, error) {
	lengths := make([]uint8, 0, n)

	for len(lengths) < n {
		sym, err := clTree.decode(d.br)
		if err != nil {
			return nil, err
		}

		if sym < 16 {
			lengths = append(lengths, uint8(sym))
			continue
		}

		var (
			repeat uint32
			value  uint8
		)

		switch sym {
		case 16:
			if len(lengths) == 0 {
				return nil, errors.Wrap(ErrInvalidHuffmanTable, "repeat code with no previous length")
			}

			value = lengths[len(lengths)-1]

			if repeat, err = d.br.readBits(2); err != nil {
				return nil, err
			}

			repeat += 3
		case 17:
			if repeat, err = d.br.readBits(3); err != nil {
				return nil, err
			}

			repeat += 3
		case 18:
			if repeat, err = d.br.readBits(7); err != nil {
				return nil, err
			}

			repeat += 11
		default:
			return nil, errors.Wrapf(ErrInvalidSymbol, "code-length symbol %d", sym)
		}

		if len(lengths)+int(repeat) > n {
			return nil, errors.Wrapf(ErrRepeatCountOverflow, "repeat of %d at %d of %d lengths", repeat, len(lengths), n)
		}

		for ; repeat > 0; repeat-- {
			lengths = append(lengths, value)
		}
	}

	return lengths, nil
}

// decodeSymbols is the literal/length loop shared by fixed and dynamic blocks.
func (d *decoder) decodeSymbols(lit, dist *huffmanTree) error {
	for {
		sym, err := lit.decode(d.br)
		if err != nil {
			return err
		}

		switch {
		case sym < endOfBlock:
			if err := d.win.emit(byte(sym)); err != nil {
				return err
			}

			continue
		case sym == endOfBlock:
			return nil
		case sym > endOfBlock+len(lengthBase):
			return errors.Wrapf(ErrInvalidSymbol, "literal/length symbol %d", sym)
		}

		idx := sym - endOfBlock - 1

		extra, err := d.br.readBits(uint(lengthExtra[idx]))
		if err != nil {
			return err
		}

		length := int(lengthBase[idx]) + int(extra)

		dsym, err := dist.decode(d.br)
		if err != nil {
			return err
		}

		if dsym >= len(distBase) {
			return errors.Wrapf(ErrInvalidSymbol, "distance symbol %d", dsym)
		}

		extra, err = d.br.readBits(uint(distExtra[dsym]))
		if err != nil {
			return err
		}

		distance := int(distBase[dsym]) + int(extra)

		if err := d.win.copyBackReference(length, distance); err != nil {
			return err
		}
	}
}
