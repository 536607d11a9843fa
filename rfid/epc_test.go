package rfid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEpcWordsToBytes(t *testing.T) {
	tests := []struct {
		name  string
		words []uint16
		want  []byte
	}{
		{"empty", nil, []byte{}},
		{"single word", []uint16{0x1234}, []byte{0x12, 0x34}},
		{"two words", []uint16{0x1234, 0xABCD}, []byte{0x12, 0x34, 0xAB, 0xCD}},
		{"zero word", []uint16{0x0000, 0x00FF}, []byte{0x00, 0x00, 0x00, 0xFF}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EpcWordsToBytes(tt.words)
			assert.Equal(t, tt.want, got)
			assert.Len(t, got, 2*len(tt.words))
		})
	}
}

func TestEpcBytesToWords(t *testing.T) {
	words, err := EpcBytesToWords([]byte{0x30, 0x00, 0xE2, 0x80})
	require.NoError(t, err)
	assert.Equal(t, []uint16{0x3000, 0xE280}, words)

	_, err = EpcBytesToWords([]byte{0x01, 0x02, 0x03})
	assert.Error(t, err)
}

func TestEpcConversionIsReversible(t *testing.T) {
	words := []uint16{0x3034, 0x257B, 0xF7D4, 0x0000, 0x0001, 0xFFFF}
	back, err := EpcBytesToWords(EpcWordsToBytes(words))
	require.NoError(t, err)
	assert.Equal(t, words, back)
}

func TestFormatEpc(t *testing.T) {
	assert.Equal(t, "1234ABCD", FormatEpc([]byte{0x12, 0x34, 0xab, 0xcd}))
	assert.Equal(t, "", FormatEpc(nil))
}
