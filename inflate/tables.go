package inflate

const (
	numLitLenSymbols = 288 // fixed table size, 286 and 287 never valid
	maxLitLenCodes   = 286 // HLIT upper bound
	numDistSymbols   = 32  // fixed table size, 30 and 31 never valid
	maxDistCodes     = 30  // HDIST upper bound
	numCodeLengths   = 19

	endOfBlock = 256
)

// Base values and extra-bit counts for length symbols 257..285.
var (
	lengthBase = [...]uint16{
		3, 4, 5, 6, 7, 8, 9, 10, 11, 13, 15, 17, 19, 23, 27, 31,
		35, 43, 51, 59, 67, 83, 99, 115, 131, 163, 195, 227, 258,
	}
	lengthExtra = [...]uint8{
		0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2,
		3, 3, 3, 3, 4, 4, 4, 4, 5, 5, 5, 5, 0,
	}
)

// Base values and extra-bit counts for distance symbols 0..29.
var (
	distBase = [...]uint16{
		1, 2, 3, 4, 5, 7, 9, 13, 17, 25, 33, 49, 65, 97, 129, 193,
		257, 385, 513, 769, 1025, 1537, 2049, 3073, 4097, 6145, 8193, 12289, 16385, 24577,
	}
	distExtra = [...]uint8{
		0, 0, 0, 0, 1, 1, 2, 2, 3, 3, 4, 4, 5, 5, 6, 6,
		7, 7, 8, 8, 9, 9, 10, 10, 11, 11, 12, 12, 13, 13,
	}
)

// codeLengthOrder is the order in which HCLEN 3-bit code lengths are stored.
var codeLengthOrder = [numCodeLengths]int{16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15}

func fixedLitLenLengths() []uint8 {
	lengths := make([]uint8, numLitLenSymbols)

	for i := range lengths {
		switch {
		case i < 144:
			lengths[i] = 8
		case i < 256:
			lengths[i] = 9
		case i < 280:
			lengths[i] = 7
		default:
			lengths[i] = 8
		}
	}

	return lengths
}

func fixedDistLengths() []uint8 {
	lengths := make([]uint8, numDistSymbols)
	for i := range lengths {
		lengths[i] = 5
	}

	return lengths
}
