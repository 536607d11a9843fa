package console

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotside-studios/rfid-agent/capture"
	"github.com/dotside-studios/rfid-agent/rfid"
)

func newTestCommands(t *testing.T) (*Commands, *rfid.Session, *rfid.MockDriver) {
	t.Helper()
	mock := rfid.NewMockDriver(2)
	session := rfid.NewSession(mock, rfid.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	require.NoError(t, session.Connect(context.Background(), "10.1.2.3"))
	mock.ClearCallLog()
	return NewCommands(session, time.Second), session, mock
}

func exec(t *testing.T, c *Commands, line string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := c.Exec(context.Background(), &out, line)
	return out.String(), err
}

func TestExec_Info(t *testing.T) {
	c, session, _ := newTestCommands(t)

	out, err := exec(t, c, "info")
	require.NoError(t, err)
	assert.Contains(t, out, session.ID())
	assert.Contains(t, out, "10.1.2.3")
	assert.Contains(t, out, "Mock Reader")
	assert.Contains(t, out, "10.00 to 31.50 dBm")
}

func TestExec_Antennas(t *testing.T) {
	c, _, mock := newTestCommands(t)

	out, err := exec(t, c, "antennas 01")
	require.NoError(t, err)
	assert.Contains(t, out, "Antennas set to 01")
	assert.Equal(t, []uint16{2}, mock.Current.EnabledPorts())

	out, err = exec(t, c, "ant")
	require.NoError(t, err)
	assert.Contains(t, out, "Antennas: 01 (ports [2])")

	// all off is rejected before touching the reader
	mock.ClearCallLog()
	out, err = exec(t, c, "antennas 0 0")
	require.Error(t, err)
	assert.Contains(t, out, "Error:")
	assert.Empty(t, mock.GetCallLog())
}

func TestExec_Power(t *testing.T) {
	c, _, mock := newTestCommands(t)

	out, err := exec(t, c, "power 25.5")
	require.NoError(t, err)
	assert.Contains(t, out, "Tx power set to 25.50 dBm")
	for _, a := range mock.Current.Antennas {
		assert.Equal(t, 25.5, a.TxPowerInDbm)
	}

	out, err = exec(t, c, "power")
	require.NoError(t, err)
	assert.Contains(t, out, "antenna 1: 25.50 dBm")
	assert.Contains(t, out, "antenna 2: 25.50 dBm")

	out, err = exec(t, c, "power loud")
	require.Error(t, err)
	assert.Contains(t, out, `invalid power "loud"`)
}

func TestExec_ModeAndFlags(t *testing.T) {
	c, _, mock := newTestCommands(t)

	_, err := exec(t, c, "mode DenseReaderM8 singletarget 2")
	require.NoError(t, err)
	assert.Equal(t, rfid.ReaderModeDenseReaderM8, mock.Current.ReaderMode)
	assert.Equal(t, rfid.SearchModeSingleTarget, mock.Current.SearchMode)
	assert.Equal(t, uint16(2), mock.Current.Session)

	_, err = exec(t, c, "mode DenseReaderM8")
	assert.Error(t, err)

	out, err := exec(t, c, "flags true false 1")
	require.NoError(t, err)
	assert.Contains(t, out, "antenna=on channel=off rssi=on")
	assert.True(t, mock.Current.Report.IncludeAntennaPortNumber)
	assert.False(t, mock.Current.Report.IncludeChannel)
	assert.True(t, mock.Current.Report.IncludePeakRssi)
}

func TestExec_StartStop(t *testing.T) {
	c, session, _ := newTestCommands(t)

	out, err := exec(t, c, "start")
	require.NoError(t, err)
	assert.Contains(t, out, "Inventory started")
	assert.True(t, session.IsStreaming())

	out, err = exec(t, c, "stop")
	require.NoError(t, err)
	assert.Contains(t, out, "Inventory stopped")
	assert.False(t, session.IsStreaming())
}

func TestExec_Read(t *testing.T) {
	c, _, mock := newTestCommands(t)

	var got rfid.ReadRequest
	mock.ReadFunc = func(req rfid.ReadRequest) ([]byte, error) {
		got = req
		return []byte{0xE2, 0x80, 0x11, 0x60}, nil
	}

	out, err := exec(t, c, "read 3008:33B2 tid 0 2")
	require.NoError(t, err)
	assert.Contains(t, out, "300833B2 Tid[0:+2] = E2801160")
	assert.Equal(t, rfid.ReadRequest{TargetEpc: []byte{0x30, 0x08, 0x33, 0xB2}, Bank: rfid.MemoryBankTid, WordCount: 2}, got)

	_, err = exec(t, c, "read 3008 lockbits 0 2")
	assert.Error(t, err)
	_, err = exec(t, c, "read 3008")
	assert.Error(t, err)
}

func TestExec_Misc(t *testing.T) {
	c, _, _ := newTestCommands(t)

	out, err := exec(t, c, "   ")
	assert.NoError(t, err)
	assert.Empty(t, out)

	out, err = exec(t, c, "frobnicate")
	assert.NoError(t, err)
	assert.Contains(t, out, "Unknown command: frobnicate")

	out, err = exec(t, c, "help")
	assert.NoError(t, err)
	assert.Contains(t, out, "antennas [mask]")

	assert.False(t, c.Watching())
	out, _ = exec(t, c, "watch")
	assert.Contains(t, out, "Tag echo on")
	assert.True(t, c.Watching())

	_, err = exec(t, c, "quit")
	assert.ErrorIs(t, err, errQuit)
}

func TestExec_NotConnected(t *testing.T) {
	c, session, _ := newTestCommands(t)
	require.NoError(t, session.Disconnect(context.Background()))

	out, err := exec(t, c, "power 20")
	require.Error(t, err)
	assert.True(t, rfid.IsNotConnectedError(err))
	assert.Contains(t, out, "Error:")
}

func TestExec_Replay(t *testing.T) {
	c, _, mock := newTestCommands(t)

	path := filepath.Join(t.TempDir(), "tags.cbor")
	rec, err := capture.Open(path, "")
	require.NoError(t, err)
	port := uint16(2)
	require.NoError(t, rec.Record(rfid.TagReport{Epc: []byte{0x30, 0x08}, AntennaPortNumber: &port}))
	require.NoError(t, rec.Record(rfid.TagReport{Epc: []byte{0x30, 0x09}}))
	require.NoError(t, rec.Close())

	out, err := exec(t, c, "replay "+path)
	require.NoError(t, err)
	assert.Contains(t, out, "3008 ant=2\n3009\n")
	assert.Contains(t, out, "Replayed 2 reports")
	assert.Empty(t, mock.GetCallLog())

	out, err = exec(t, c, "replay "+filepath.Join(t.TempDir(), "absent.cbor"))
	assert.Error(t, err)
	assert.Contains(t, out, "Error:")

	_, err = exec(t, c, "replay")
	assert.Error(t, err)
}

func TestFormatReport(t *testing.T) {
	port := uint16(3)
	ch := 902.75
	rssi := -61.5

	assert.Equal(t, "3008", FormatReport(rfid.TagReport{Epc: []byte{0x30, 0x08}}))
	assert.Equal(t, "3008 ant=3 ch=902.75MHz rssi=-61.5dBm", FormatReport(rfid.TagReport{
		Epc:               []byte{0x30, 0x08},
		AntennaPortNumber: &port,
		ChannelInMhz:      &ch,
		PeakRssiInDbm:     &rssi,
	}))
}
