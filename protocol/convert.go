package protocol

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

var validHex = regexp.MustCompile(`^[0-9A-F]+$`)

// ParseEPC decodes an EPC given in hex.
// Supports: "3034257BF7D4", "30:34:25:7B", "3034 257B F7D4", "3034-257B-F7D4"
// The EPC must be a whole number of 16-bit words.
func ParseEPC(epc string) ([]byte, error) {
	if epc == "" {
		return nil, fmt.Errorf("empty EPC")
	}

	cleaned := strings.NewReplacer(":", "", " ", "", "-", "").Replace(epc)
	cleaned = strings.ToUpper(cleaned)
	cleaned = strings.TrimPrefix(cleaned, "0X")

	if !validHex.MatchString(cleaned) {
		return nil, fmt.Errorf("EPC contains invalid characters: %s", epc)
	}

	// Each word is four hex characters
	if len(cleaned)%4 != 0 {
		return nil, fmt.Errorf("EPC is not a whole number of words: %s", epc)
	}

	return hex.DecodeString(cleaned)
}
