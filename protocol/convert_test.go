package protocol

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotside-studios/rfid-agent/rfid"
)

func TestParseEPC(t *testing.T) {
	tests := []struct {
		in      string
		want    []byte
		wantErr bool
	}{
		{in: "3034257B", want: []byte{0x30, 0x34, 0x25, 0x7B}},
		{in: "30:34:25:7b", want: []byte{0x30, 0x34, 0x25, 0x7B}},
		{in: "3034 257B", want: []byte{0x30, 0x34, 0x25, 0x7B}},
		{in: "3034-257b", want: []byte{0x30, 0x34, 0x25, 0x7B}},
		{in: "0x3034", want: []byte{0x30, 0x34}},
		{in: "", wantErr: true},
		{in: "30G4", wantErr: true},
		{in: "303425", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEPC(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTagReportPayload_NullOptionals(t *testing.T) {
	port := uint16(3)
	report := rfid.TagReport{Epc: []byte{0xAB, 0xCD}, AntennaPortNumber: &port}
	payload := NewTagReportPayload(report, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"epc": "ABCD",
		"antennaPortNumber": 3,
		"channelInMhz": null,
		"peakRssiInDbm": null,
		"seenAt": "2024-05-01T12:00:00Z"
	}`, string(data))
}

func TestModePayload_Names(t *testing.T) {
	var p ModePayload
	req := WebSocketRequest{Payload: json.RawMessage(`{"readerMode":"DenseReaderM8","searchMode":"TagFocus","session":2}`)}
	require.NoError(t, req.Decode(&p))
	assert.Equal(t, rfid.ReaderModeDenseReaderM8, p.ReaderMode)
	assert.Equal(t, rfid.SearchModeTagFocus, p.SearchMode)
	assert.Equal(t, uint16(2), p.Session)

	bad := WebSocketRequest{Payload: json.RawMessage(`{"readerMode":"Warp"}`)}
	assert.Error(t, bad.Decode(&p))
}

func TestErrorCodeFor(t *testing.T) {
	assert.Equal(t, ErrCodeNotConnected, ErrorCodeFor(rfid.NewNotConnectedError("op")))
	assert.Equal(t, ErrCodeValidation, ErrorCodeFor(rfid.NewNoAntennaEnabledError("op")))
	assert.Equal(t, ErrCodeReader, ErrorCodeFor(rfid.NewSettingsApplyError("op", nil)))
	assert.Equal(t, ErrCodeInternalError, ErrorCodeFor(errors.New("x")))
	assert.Equal(t, "", ErrorCodeFor(nil))
}
