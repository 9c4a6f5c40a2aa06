// Package telemetry provides observability instrumentation for dynflow.
//
// It integrates structured logging (zerolog), tracing (OpenTelemetry) and
// metrics (Prometheus) behind one Telemetry value created at startup.
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = version
//
//	tel, err := telemetry.New(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// # Logging
//
// Logs go to stderr or a file, never to stdout, which carries the rendered
// dataflow. Components tag their logs with a component field:
//
//	logger := telemetry.ComponentLogger(tel.Logger, "composer")
//	logger.Info().Str("deployment", path).Msg("Composing dataflow")
//
// # Tracing
//
// Every composition produces a compose span with render, load and component
// children. Exporters: stdout (pretty JSON on stderr), otlp (gRPC) and none.
//
//	ctx, span := tel.Tracer.StartSpan(ctx, telemetry.SpanCompose,
//	    telemetry.AttrDeployment.String(path))
//	defer func() { telemetry.End(span, err) }()
//
// # Metrics
//
// Metrics live in a private registry. A CLI process has no scrape endpoint, so
// when metrics.textfile is set they are written in the Prometheus text format on
// shutdown, for node_exporter's textfile collector:
//
//	dynflow_compositions_total{status="success"} 1
//	dynflow_nodes_composed_total{source="component"} 2
//	dynflow_dynamic_nodes_unresolved_total 0
package telemetry
