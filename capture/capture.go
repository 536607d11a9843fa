// Package capture records tag reports to CBOR files and replays them.
//
// A capture file is a plain concatenation of CBOR-encoded Records, so files
// can be appended to across agent restarts and read back as a stream.
package capture

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/dotside-studios/rfid-agent/rfid"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("capture: cbor encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("capture: cbor decoder mode: %v", err))
	}
}

// Record is one captured tag report. Integer keys keep files compact.
type Record struct {
	Timestamp         time.Time `cbor:"1,keyasint"`
	SessionID         string    `cbor:"2,keyasint,omitempty"`
	Epc               []byte    `cbor:"3,keyasint"`
	AntennaPortNumber *uint16   `cbor:"4,keyasint,omitempty"`
	ChannelInMhz      *float64  `cbor:"5,keyasint,omitempty"`
	PeakRssiInDbm     *float64  `cbor:"6,keyasint,omitempty"`
}

// NewRecord stamps report with at.
func NewRecord(sessionID string, report rfid.TagReport, at time.Time) Record {
	return Record{
		Timestamp:         at,
		SessionID:         sessionID,
		Epc:               report.Epc,
		AntennaPortNumber: report.AntennaPortNumber,
		ChannelInMhz:      report.ChannelInMhz,
		PeakRssiInDbm:     report.PeakRssiInDbm,
	}
}

// Report returns the tag report carried by r.
func (r Record) Report() rfid.TagReport {
	return rfid.TagReport{
		Epc:               r.Epc,
		AntennaPortNumber: r.AntennaPortNumber,
		ChannelInMhz:      r.ChannelInMhz,
		PeakRssiInDbm:     r.PeakRssiInDbm,
	}
}

// Recorder appends Records to a writer. It is safe for concurrent use.
type Recorder struct {
	sessionID string
	now       func() time.Time

	mu      sync.Mutex
	closer  io.Closer
	encoder *cbor.Encoder
	closed  bool
	count   uint64
}

// NewRecorder writes records to w. Close closes w when it is an io.Closer.
func NewRecorder(w io.Writer, sessionID string) *Recorder {
	r := &Recorder{
		sessionID: sessionID,
		now:       time.Now,
		encoder:   encMode.NewEncoder(w),
	}
	if c, ok := w.(io.Closer); ok {
		r.closer = c
	}
	return r
}

// Open creates or appends to the capture file at path.
func Open(path, sessionID string) (*Recorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open capture file: %w", err)
	}
	return NewRecorder(f, sessionID), nil
}

// Record appends report. Records after Close are discarded.
func (r *Recorder) Record(report rfid.TagReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	if err := r.encoder.Encode(NewRecord(r.sessionID, report, r.now())); err != nil {
		return fmt.Errorf("encode capture record: %w", err)
	}
	r.count++
	return nil
}

// Count returns the number of records written so far.
func (r *Recorder) Count() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Close stops recording. It is safe to call more than once.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// Reader streams Records from a capture.
type Reader struct {
	decoder *cbor.Decoder
	closer  io.Closer
}

// NewReader reads records from src.
func NewReader(src io.Reader) *Reader {
	r := &Reader{decoder: decMode.NewDecoder(src)}
	if c, ok := src.(io.Closer); ok {
		r.closer = c
	}
	return r
}

// OpenReader opens the capture file at path.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture file: %w", err)
	}
	return NewReader(f), nil
}

// Next returns the next record, or io.EOF at the end of the capture.
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.decoder.Decode(&rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Close closes the underlying file, if any.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// ReadAll loads every record in the capture file at path.
func ReadAll(path string) ([]Record, error) {
	r, err := OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var records []Record
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return records, fmt.Errorf("decode capture record %d: %w", len(records), err)
		}
		records = append(records, rec)
	}
}

// Replay feeds every record in the capture at path to observer in order.
func Replay(path string, observer rfid.Observer) (int, error) {
	records, err := ReadAll(path)
	for _, rec := range records {
		observer(rec.Report())
	}
	return len(records), err
}
