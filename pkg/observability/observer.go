// Package observability carries the timing and warning side-channel of the
// query layer. Nothing on the query path depends on an observer for
// correctness; every component defaults to NopObserver.
package observability

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Observer receives timing and warning events.
type Observer interface {
	// Timing records how long an operation took and whether it failed.
	Timing(ctx context.Context, operation string, duration time.Duration, err error)
	// Warning records a recoverable anomaly such as a retried partial batch.
	Warning(ctx context.Context, event string, fields ...zap.Field)
}

// NopObserver discards every event.
type NopObserver struct{}

func (NopObserver) Timing(context.Context, string, time.Duration, error) {}
func (NopObserver) Warning(context.Context, string, ...zap.Field)       {}

// OrNop returns o, or a NopObserver when o is nil.
func OrNop(o Observer) Observer {
	if o == nil {
		return NopObserver{}
	}
	return o
}

// MultiObserver fans every event out to several observers.
type MultiObserver []Observer

// NewMultiObserver drops nil observers and flattens the rest.
func NewMultiObserver(observers ...Observer) Observer {
	var out MultiObserver
	for _, o := range observers {
		if o == nil {
			continue
		}
		if m, ok := o.(MultiObserver); ok {
			out = append(out, m...)
			continue
		}
		out = append(out, o)
	}
	switch len(out) {
	case 0:
		return NopObserver{}
	case 1:
		return out[0]
	}
	return out
}

func (m MultiObserver) Timing(ctx context.Context, operation string, duration time.Duration, err error) {
	for _, o := range m {
		o.Timing(ctx, operation, duration, err)
	}
}

func (m MultiObserver) Warning(ctx context.Context, event string, fields ...zap.Field) {
	for _, o := range m {
		o.Warning(ctx, event, fields...)
	}
}

// LoggingObserver writes events to a zap logger: timings at debug level,
// failures and warnings at warn level.
type LoggingObserver struct {
	logger *zap.Logger
}

// NewLoggingObserver creates a LoggingObserver.
func NewLoggingObserver(logger *zap.Logger) *LoggingObserver {
	return &LoggingObserver{logger: logger}
}

func (o *LoggingObserver) Timing(_ context.Context, operation string, duration time.Duration, err error) {
	if err != nil {
		o.logger.Warn("Operation failed",
			zap.String("operation", operation),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return
	}
	o.logger.Debug("Operation completed",
		zap.String("operation", operation),
		zap.Duration("duration", duration),
	)
}

func (o *LoggingObserver) Warning(_ context.Context, event string, fields ...zap.Field) {
	o.logger.Warn(event, fields...)
}

// Status returns the metric status label for an outcome.
func Status(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// Time runs fn and reports its duration to o.
func Time(ctx context.Context, o Observer, operation string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	o.Timing(ctx, operation, time.Since(start), err)
	return err
}
