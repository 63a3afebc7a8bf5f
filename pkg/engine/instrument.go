package engine

import (
	"context"
	"sync"

	"github.com/openfroyo/condaenv/pkg/conda"
	"github.com/openfroyo/condaenv/pkg/runner"
	"github.com/openfroyo/condaenv/pkg/telemetry"
)

// instrumentedRunner traces, measures and records every command of one run.
type instrumentedRunner struct {
	inner   runner.Runner
	tracer  *telemetry.Tracer
	metrics *telemetry.Metrics
	logger  *telemetry.Logger

	mu       sync.Mutex
	commands []CommandRecord
}

func newInstrumentedRunner(inner runner.Runner, tracer *telemetry.Tracer, metrics *telemetry.Metrics, logger *telemetry.Logger) *instrumentedRunner {
	return &instrumentedRunner{
		inner:   inner,
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
	}
}

func (i *instrumentedRunner) Run(ctx context.Context, argv []string) (*runner.ExecResult, error) {
	subcommand := conda.Subcommand(argv)
	ctx, span := i.tracer.StartCommandSpan(ctx, subcommand, argv)
	defer span.End()

	timer := telemetry.NewTimer()
	res, err := i.inner.Run(ctx, argv)

	record := CommandRecord{Argv: argv, Duration: timer.Duration()}
	status := "ok"
	switch {
	case err != nil:
		status = "launch_error"
		record.ReturnCode = -1
		record.LaunchError = err.Error()
		telemetry.RecordError(span, err)
	case res.ExitCode != 0:
		status = "nonzero"
		record.ReturnCode = res.ExitCode
		span.SetAttributes(telemetry.AttrExitCode.Int(res.ExitCode))
	default:
		span.SetAttributes(telemetry.AttrExitCode.Int(0))
		telemetry.RecordSuccess(span)
	}

	i.metrics.RecordCommand(subcommand, status, record.Duration)
	i.logger.Debug().
		Strs("argv", argv).
		Int("returncode", record.ReturnCode).
		Dur("duration", record.Duration).
		Str("status", status).
		Msg("command finished")

	i.mu.Lock()
	record.Seq = len(i.commands) + 1
	i.commands = append(i.commands, record)
	i.mu.Unlock()

	return res, err
}

func (i *instrumentedRunner) Stage(ctx context.Context, data []byte, pattern string) (string, error) {
	return i.inner.Stage(ctx, data, pattern)
}

func (i *instrumentedRunner) Remove(ctx context.Context, path string) error {
	return i.inner.Remove(ctx, path)
}

func (i *instrumentedRunner) Commands() []CommandRecord {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]CommandRecord(nil), i.commands...)
}
