package crawler

import (
	"context"
	"errors"
)

// MultiRecorder hands each outcome to every recorder in turn.
type MultiRecorder []Recorder

// Record implements Recorder. All recorders are called even if some fail.
func (m MultiRecorder) Record(ctx context.Context, outcome Outcome) error {
	var errs []error
	for _, rec := range m {
		if rec == nil {
			continue
		}
		if err := rec.Record(ctx, outcome); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecorderFunc adapts a function to the Recorder interface.
type RecorderFunc func(ctx context.Context, outcome Outcome) error

// Record calls f.
func (f RecorderFunc) Record(ctx context.Context, outcome Outcome) error {
	return f(ctx, outcome)
}
