package rfid

import (
	"fmt"
	"log/slog"
	"sync/atomic"
)

// Observer receives normalized tag reports. It runs inline on the driver's
// delivery goroutine, so it must return quickly.
type Observer func(report TagReport)

// DispatchStats counts what the dispatcher did with delivered records.
type DispatchStats struct {
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
	Failed    uint64 `json:"failed"`
}

// Dispatcher normalizes raw tag batches and forwards each record to the
// registered observer, in order, one record at a time.
type Dispatcher struct {
	observer atomic.Pointer[Observer]
	onError  atomic.Pointer[func(error)]
	logger   *slog.Logger

	delivered atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

// NewDispatcher creates a dispatcher with no observer registered.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{logger: logger}
}

// SetObserver replaces the observer. A nil observer unregisters.
func (d *Dispatcher) SetObserver(observer Observer) {
	if observer == nil {
		d.observer.Store(nil)
		return
	}
	d.observer.Store(&observer)
}

// HasObserver reports whether an observer is registered.
func (d *Dispatcher) HasObserver() bool {
	return d.observer.Load() != nil
}

// SetErrorHandler registers fn to receive observer failures. A nil fn
// unregisters; failures are then only logged.
func (d *Dispatcher) SetErrorHandler(fn func(error)) {
	if fn == nil {
		d.onError.Store(nil)
		return
	}
	d.onError.Store(&fn)
}

// Dispatch delivers batch. It is the TagsReportedHandler registered with the driver.
func (d *Dispatcher) Dispatch(batch []RawTag) {
	for _, raw := range batch {
		obs := d.observer.Load()
		if obs == nil {
			d.dropped.Add(1)
			continue
		}

		report := NormalizeTag(raw)
		if err := deliver(*obs, report); err != nil {
			d.failed.Add(1)
			dispatchErr := NewDispatchError(report.Epc, err)
			d.logger.Error("observer failed", "epc", report.EpcHex(), "error", err)
			if fn := d.onError.Load(); fn != nil {
				(*fn)(dispatchErr)
			}
			continue
		}
		d.delivered.Add(1)
	}
}

// Stats returns a snapshot of the dispatch counters.
func (d *Dispatcher) Stats() DispatchStats {
	return DispatchStats{
		Delivered: d.delivered.Load(),
		Dropped:   d.dropped.Load(),
		Failed:    d.failed.Load(),
	}
}

// deliver invokes obs, converting a panic into an error.
func deliver(obs Observer, report TagReport) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	obs(report)
	return nil
}

// NormalizeTag converts a raw record into a TagReport. Optional fields are
// only set when the driver marked them present.
func NormalizeTag(raw RawTag) TagReport {
	report := TagReport{Epc: EpcWordsToBytes(raw.Epc)}
	if raw.IsAntennaPortNumberPresent {
		port := raw.AntennaPortNumber
		report.AntennaPortNumber = &port
	}
	if raw.IsChannelInMhzPresent {
		channel := raw.ChannelInMhz
		report.ChannelInMhz = &channel
	}
	if raw.IsPeakRssiInDbmPresent {
		rssi := raw.PeakRssiInDbm
		report.PeakRssiInDbm = &rssi
	}
	return report
}
