package main

import (
	"context"
	"sync"

	"github.com/dotside-studios/rfid-agent/rfid"
)

// serialReader serializes settings and streaming calls on a Session so the
// server's clients and the console never interleave reconcile cycles.
// Status queries go straight through; the session guards those itself.
type serialReader struct {
	mu      sync.Mutex
	session *rfid.Session
}

func newSerialReader(session *rfid.Session) *serialReader {
	return &serialReader{session: session}
}

func (r *serialReader) Status() rfid.Status {
	return r.session.Status()
}

func (r *serialReader) FeatureSet() (rfid.FeatureSet, bool) {
	return r.session.FeatureSet()
}

func (r *serialReader) DispatchStats() rfid.DispatchStats {
	return r.session.DispatchStats()
}

func (r *serialReader) Connect(ctx context.Context, address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.Connect(ctx, address)
}

func (r *serialReader) Disconnect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.Disconnect(ctx)
}

func (r *serialReader) ApplyProfile(ctx context.Context, p rfid.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.ApplyProfile(ctx, p)
}

func (r *serialReader) GetTxPower(ctx context.Context) ([]float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.GetTxPower(ctx)
}

func (r *serialReader) SetTxPower(ctx context.Context, dbm float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.SetTxPower(ctx, dbm)
}

func (r *serialReader) GetAntennaConfig(ctx context.Context) (rfid.AntennaMask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.GetAntennaConfig(ctx)
}

func (r *serialReader) SetAntennaConfig(ctx context.Context, mask rfid.AntennaMask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.SetAntennaConfig(ctx, mask)
}

func (r *serialReader) SetMode(ctx context.Context, readerMode rfid.ReaderMode, searchMode rfid.SearchMode, session uint16) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.SetMode(ctx, readerMode, searchMode, session)
}

func (r *serialReader) SetReportFlags(ctx context.Context, includeAntenna, includeChannel, includeRssi bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.SetReportFlags(ctx, includeAntenna, includeChannel, includeRssi)
}

func (r *serialReader) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.Start(ctx)
}

func (r *serialReader) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.Stop(ctx)
}

func (r *serialReader) Read(ctx context.Context, epcTarget []byte, bank rfid.MemoryBank, wordPointer, wordCount uint16) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.Read(ctx, epcTarget, bank, wordPointer, wordCount)
}
