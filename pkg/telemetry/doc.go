// Package telemetry provides logging, tracing and metrics for condaenv.
//
// Logging uses zerolog. Console output is chosen automatically when stderr is a terminal;
// otherwise logs are JSON lines. Standard output is never used for logs because it carries
// the command result.
//
// Tracing uses OpenTelemetry with a stdout (written to stderr) or OTLP gRPC exporter. Each
// run produces a "reconcile" span with one child span per package manager command:
//
//	ctx, span := tel.Tracer.StartReconcileSpan(ctx, runID, "envA", "", false)
//	defer span.End()
//
// Metrics use a private Prometheus registry. A one-shot run writes the registry to a
// textfile for the node_exporter textfile collector; the watch command can serve it over
// HTTP instead:
//
//	condaenv_runs_total{step="update",outcome="changed"} 1
//	condaenv_commands_total{subcommand="env update",status="ok"} 1
//
// All Metrics methods are safe on a nil or disabled *Metrics.
package telemetry
