// Package composer builds one flat dataflow from a deployment descriptor.
//
// A composition renders the deployment as a template, appends its direct nodes
// and operators, resolves dynamic node references against other dataflow
// documents and finally splices in the rendered output of every component.
// Direct and dynamic entries always precede component entries, and each group
// keeps its declaration order. Paths are absolute while composing and relative
// to the command root in the result of Build.
//
// Composition is all-or-nothing: the first error aborts it and no partial
// dataflow is returned.
package composer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/openfroyo/dynflow/pkg/dataflow"
	"github.com/openfroyo/dynflow/pkg/engine"
	"github.com/openfroyo/dynflow/pkg/paths"
	"github.com/openfroyo/dynflow/pkg/telemetry"
	"github.com/openfroyo/dynflow/pkg/template"
)

// Composer composes deployments against one command root.
type Composer struct {
	resolver  *paths.Resolver
	renderer  *template.Renderer
	loader    *dataflow.Loader
	logger    zerolog.Logger
	tracer    trace.Tracer
	metrics   *telemetry.Metrics
	extraVars map[string]interface{}
}

// Option configures a Composer.
type Option func(*Composer)

// WithLogger sets the composer's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Composer) {
		c.logger = telemetry.ComponentLogger(logger, "composer")
	}
}

// WithTracer sets the tracer used for compose, render, load and component spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Composer) {
		c.tracer = tracer
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Composer) {
		c.metrics = m
	}
}

// WithExtraVars sets variables supplied from outside the deployment, such as
// --var flags. They override the deployment's own vars and are visible to
// every component, whose own vars still win.
func WithExtraVars(vars map[string]interface{}) Option {
	return func(c *Composer) {
		c.extraVars = template.Merge(vars)
	}
}

// New creates a composer.
func New(resolver *paths.Resolver, renderer *template.Renderer, opts ...Option) *Composer {
	c := &Composer{
		resolver:  resolver,
		renderer:  renderer,
		loader:    dataflow.NewLoader(resolver),
		logger:    zerolog.Nop(),
		tracer:    noop.NewTracerProvider().Tracer("dynflow"),
		extraVars: map[string]interface{}{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Result is the outcome of a successful build.
type Result struct {
	// RunID identifies the build in logs and spans.
	RunID string

	// Deployment is the resolved deployment path.
	Deployment string

	// Dataflow is the composed dataflow with paths relative to the command root.
	Dataflow *dataflow.Dataflow

	// Sources lists every file read, in reading order: the deployment, each
	// referenced dataflow and each component template.
	Sources []string
}

// Compose composes the deployment at path. Every path field of the result is
// absolute.
func (c *Composer) Compose(ctx context.Context, path string) (*dataflow.Dataflow, error) {
	s := c.newSession(path)
	if err := s.run(ctx); err != nil {
		return nil, err
	}
	return s.out, nil
}

// Build composes the deployment at path and relativizes the result to the
// command root.
func (c *Composer) Build(ctx context.Context, path string) (*Result, error) {
	res, _, err := c.build(ctx, path)
	return res, err
}

// build also returns the sources read so far when composition fails, so that
// watch mode can keep watching them.
func (c *Composer) build(ctx context.Context, path string) (*Result, []string, error) {
	runID := uuid.NewString()
	timer := telemetry.NewTimer()

	ctx, span := c.tracer.Start(ctx, telemetry.SpanCompose, trace.WithAttributes(
		telemetry.AttrRunID.String(runID),
		telemetry.AttrDeployment.String(path),
	))

	s := c.newSession(path)
	s.logger = s.logger.With().Str("run_id", runID).Logger()
	s.logger.Info().Str("deployment", s.deployment).Msg("Composing dataflow")

	err := s.run(ctx)
	if err != nil {
		c.recordFailure(span, err, timer.Duration())
		s.logger.Error().Err(err).Msg("Composition failed")
		return nil, s.sources, err
	}

	out := dataflow.Relativize(s.out, c.resolver)
	span.SetAttributes(telemetry.AttrNodeCount.Int(len(out.Nodes)))
	telemetry.End(span, nil)
	c.metrics.RecordComposition("success", timer.Duration(), len(out.Nodes))

	s.logger.Info().
		Int("nodes", len(out.Nodes)).
		Int("sources", len(s.sources)).
		Dur("duration", timer.Duration()).
		Msg("Dataflow composed")

	return &Result{
		RunID:      runID,
		Deployment: s.deployment,
		Dataflow:   out,
		Sources:    s.sources,
	}, s.sources, nil
}

func (c *Composer) recordFailure(span trace.Span, err error, d time.Duration) {
	var ee *engine.EngineError
	if errors.As(err, &ee) {
		span.SetAttributes(telemetry.AttrErrorClass.String(string(ee.Class)))
		c.metrics.RecordError(string(ee.Class))
	} else {
		c.metrics.RecordError("internal")
	}
	telemetry.End(span, err)
	c.metrics.RecordComposition("failure", d, 0)
}
