package telemetry

import (
	"context"
	"errors"
	"io"

	"github.com/rs/zerolog"
)

// Telemetry bundles the logger, tracer and metrics of one dynflow process.
type Telemetry struct {
	Logger  zerolog.Logger
	Tracer  *Tracer
	Metrics *Metrics
	Config  *Config

	logCloser io.Closer
}

// New creates a telemetry instance from configuration.
func New(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, closer, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	return &Telemetry{
		Logger:    logger,
		Tracer:    tracer,
		Metrics:   metrics,
		Config:    cfg,
		logCloser: closer,
	}, nil
}

// WithContext adds the logger to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	return WithLogger(ctx, t.Logger)
}

// Flush exports pending spans and writes the metrics textfile, if configured.
func (t *Telemetry) Flush(ctx context.Context) error {
	return errors.Join(
		t.Tracer.ForceFlush(ctx),
		t.Metrics.WriteTextfile(t.Config.Metrics.Textfile),
	)
}

// Shutdown flushes everything and releases the tracer and log file.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(
		t.Metrics.WriteTextfile(t.Config.Metrics.Textfile),
		t.Tracer.Shutdown(ctx),
		t.logCloser.Close(),
	)
}
