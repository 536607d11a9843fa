package rfid

import (
	"context"
	"errors"
	"log/slog"
)

// Mutator changes the fields of a borrowed Settings copy that belong to one
// operation. Returning an error aborts the cycle before anything is applied.
type Mutator func(settings *Settings) error

// Reconciler runs read-modify-apply cycles against a Driver.
//
// Each Reconcile call queries the current settings, mutates a clone and
// applies the clone exactly once. Fields the mutator does not touch are sent
// back as they were read.
type Reconciler struct {
	driver Driver
	logger *slog.Logger
}

// NewReconciler creates a reconciler for driver.
func NewReconciler(driver Driver, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{driver: driver, logger: logger}
}

var errNoSettings = errors.New("driver returned no settings")

// fetchSettings runs query for op. A nil result without an error is a
// driver fault and is reported as a connection error like any other.
func fetchSettings(ctx context.Context, op string, logger *slog.Logger, query func(context.Context) (*Settings, error)) (*Settings, error) {
	settings, err := query(ctx)
	if err != nil {
		logger.Error("query settings failed", "op", op, "error", err)
		return nil, NewConnectionError(op, err)
	}
	if settings == nil {
		logger.Error("driver returned no settings", "op", op)
		return nil, NewConnectionError(op, errNoSettings)
	}
	return settings, nil
}

// querySettings reads the reader's current settings for op.
func (r *Reconciler) querySettings(ctx context.Context, op string) (*Settings, error) {
	return fetchSettings(ctx, op, r.logger, r.driver.QuerySettings)
}

// Reconcile performs one cycle for operation op.
func (r *Reconciler) Reconcile(ctx context.Context, op string, mutate Mutator) error {
	current, err := r.querySettings(ctx, op)
	if err != nil {
		return err
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		r.logger.Warn("settings change rejected before apply", "op", op, "error", err)
		var readerErr *ReaderError
		if errors.As(err, &readerErr) {
			return err
		}
		return &ReaderError{Code: ErrCodeSettingsApply, Op: op, Message: "settings change rejected", Cause: err}
	}

	if err := r.driver.ApplySettings(ctx, next); err != nil {
		r.logger.Error("apply settings failed", "op", op, "error", err)
		return NewSettingsApplyError(op, err)
	}

	r.logger.Debug("settings applied", "op", op)
	return nil
}
