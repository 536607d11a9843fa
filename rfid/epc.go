package rfid

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// EpcWordsToBytes widens the 16-bit word representation used by readers
// into a byte sequence, most significant byte first.
func EpcWordsToBytes(words []uint16) []byte {
	out := make([]byte, 2*len(words))
	for i, w := range words {
		binary.BigEndian.PutUint16(out[2*i:], w)
	}
	return out
}

// EpcBytesToWords is the inverse of EpcWordsToBytes. The input length must be even.
func EpcBytesToWords(b []byte) ([]uint16, error) {
	if len(b)%2 != 0 {
		return nil, fmt.Errorf("epc length %d is not a whole number of words", len(b))
	}
	words := make([]uint16, len(b)/2)
	for i := range words {
		words[i] = binary.BigEndian.Uint16(b[2*i:])
	}
	return words, nil
}

// FormatEpc renders an EPC as uppercase hex without separators.
func FormatEpc(epc []byte) string {
	return strings.ToUpper(hex.EncodeToString(epc))
}
