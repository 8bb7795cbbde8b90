package report

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Mirror is a best-effort secondary destination such as a Redis stream or the
// local history store.
type Mirror struct {
	Name string
	Sink Sink
}

// Fanout sends every record to the collector and then to each mirror. The
// collector alone decides the outcome of Send; mirror failures are logged once
// per record and handed to OnMirrorError.
type Fanout struct {
	Collector Sink
	Mirrors   []Mirror
	// OnMirrorError is called for every failed mirror delivery.
	OnMirrorError func(mirror, source string, err error)

	logger *zap.Logger
}

// NewFanout creates a Fanout.
//
// Arguments:
//   - collector: The sink whose result is returned by Send.
//   - logger: The logger for mirror failures. Nil disables logging.
//   - mirrors: Optional secondary sinks.
//
// Returns:
//   - *Fanout: The sink.
func NewFanout(collector Sink, logger *zap.Logger, mirrors ...Mirror) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fanout{Collector: collector, Mirrors: mirrors, logger: logger}
}

// Send implements Sink. Mirrors receive the record even when the collector
// rejects it.
func (f *Fanout) Send(ctx context.Context, rec Record) error {
	err := f.Collector.Send(ctx, rec)

	var mirrorErr error
	for _, m := range f.Mirrors {
		if e := m.Sink.Send(ctx, rec); e != nil {
			if f.OnMirrorError != nil {
				f.OnMirrorError(m.Name, rec.Source, e)
			}
			mirrorErr = multierr.Append(mirrorErr, errors.Wrapf(e, "mirror %s", m.Name))
		}
	}
	if mirrorErr != nil {
		f.logger.Warn("mirror delivery failed",
			zap.String("source", rec.Source),
			zap.Int("failed_mirrors", len(multierr.Errors(mirrorErr))),
			zap.Error(mirrorErr),
		)
	}
	return err
}
