package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/openfroyo/condaenv/pkg/conda"
	"github.com/openfroyo/condaenv/pkg/runner"
	"github.com/openfroyo/condaenv/pkg/telemetry"
)

// Reconciler converges one environment per call.
type Reconciler struct {
	runner   runner.Runner
	policy   PolicyGate
	recorder Recorder
	metrics  *telemetry.Metrics
	tracer   *telemetry.Tracer
	logger   *telemetry.Logger
	newRunID func() string
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithPolicy consults gate before every mutating step.
func WithPolicy(gate PolicyGate) Option {
	return func(r *Reconciler) { r.policy = gate }
}

// WithRecorder records every finished run.
func WithRecorder(recorder Recorder) Option {
	return func(r *Reconciler) { r.recorder = recorder }
}

// WithMetrics records run and command metrics.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(r *Reconciler) { r.metrics = metrics }
}

// WithTracer traces runs and commands.
func WithTracer(tracer *telemetry.Tracer) Option {
	return func(r *Reconciler) { r.tracer = tracer }
}

// WithLogger sets the logger. The default is the global zerolog logger.
func WithLogger(logger *telemetry.Logger) Option {
	return func(r *Reconciler) { r.logger = logger }
}

// WithRunIDGenerator replaces the uuid run id generator.
func WithRunIDGenerator(fn func() string) Option {
	return func(r *Reconciler) { r.newRunID = fn }
}

// NewReconciler returns a Reconciler that runs commands through rn.
func NewReconciler(rn runner.Runner, opts ...Option) *Reconciler {
	r := &Reconciler{
		runner:   rn,
		tracer:   telemetry.NewNoopTracer(),
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = telemetry.NewLoggerFrom(log.Logger)
	}
	r.logger = r.logger.NewComponentLogger("reconciler")
	return r
}

// Reconcile inspects the environment selected by p and converges it to p.Spec, or resolves
// its prefix when no spec is given. The returned Result is never nil. When the run fails the
// Result has Failed set, carries every field gathered so far and err describes the failure.
func (r *Reconciler) Reconcile(ctx context.Context, p Params) (res *Result, err error) {
	runID := r.newRunID()
	startedAt := time.Now()

	logger := r.logger.WithRunID(runID).WithEnvironment(p.Name, p.Prefix)
	ctx = logger.WithContext(ctx)
	ctx, span := r.tracer.StartReconcileSpan(ctx, runID, p.Name, p.Prefix, p.CheckOnly)
	defer span.End()

	inst := newInstrumentedRunner(r.runner, r.tracer, r.metrics, logger)
	client := conda.NewClient(inst, p.Executable)
	b := NewBuilder(runID)

	defer func() {
		if rec := recover(); rec != nil {
			err = NewInternalError(fmt.Sprintf("unexpected error: %v", rec), nil).WithCode(ErrCodePanic)
			res = b.Fail(err.Error()).Result()
		}

		span.SetAttributes(
			telemetry.AttrStep.String(string(res.Step)),
			telemetry.AttrChanged.Bool(res.Changed),
		)
		if err != nil {
			span.SetAttributes(telemetry.AttrErrorClass.String(string(ClassOf(err))))
			telemetry.RecordError(span, err)
		} else {
			telemetry.RecordSuccess(span)
		}

		r.finish(ctx, logger, &RunRecord{
			ID:          runID,
			Params:      p,
			Result:      res,
			ErrorClass:  ClassOf(err),
			Commands:    inst.Commands(),
			StartedAt:   startedAt,
			CompletedAt: time.Now(),
		})
	}()

	return r.reconcile(ctx, client, b, p, logger)
}

func (r *Reconciler) reconcile(ctx context.Context, client *conda.Client, b *Builder, p Params, logger *telemetry.Logger) (*Result, error) {
	id := p.Identity()
	if id.Name != "" && id.Prefix != "" {
		err := NewInputError("name and prefix are mutually exclusive", nil).WithCode(ErrCodeNameAndPrefix)
		return b.Fail(err.Message).Result(), err
	}

	snapshot, err := client.Inspect(ctx, id)
	if err != nil {
		return launchFailure(b, err)
	}
	b.ApplySnapshot(snapshot)

	step := Plan(p.SpecPresent(), snapshot.IsValid, id)
	b.SetStep(step)
	logger.Info().
		Str("step", string(step)).
		Bool("is_valid_env", snapshot.IsValid).
		Bool("check_only", p.CheckOnly).
		Msg("planned")

	switch step {
	case StepUpdate, StepCreate:
		return r.converge(ctx, client, b, p, step, snapshot.IsValid, logger)

	case StepPrefixGiven:
		return b.SetPrefix(id.Prefix).Result(), nil

	case StepProbePrefix:
		probe, err := client.ProbePrefix(ctx, id)
		if err != nil {
			return launchFailure(b, err)
		}
		if probe.Failed() || probe.Prefix == "" {
			msg := fmt.Sprintf("Failed to get prefix for otherwise valid environment '%s'! This is likely a bug.", id.Name)
			code := ErrCodePrefixProbe
			if !probe.Failed() {
				code = ErrCodePrefixUnresolved
			}
			err := NewInconsistentStateError(msg, nil).WithCode(code).WithCommand(probe.Cmd)
			return b.SetCommand(probe.Cmd).SetReturnCode(probe.ReturnCode).Fail(msg).Result(), err
		}
		return b.ApplyProbe(probe).Result(), nil

	default:
		outcome, err := client.DryRunCreate(ctx, id)
		if err != nil {
			return launchFailure(b, err)
		}
		b.ApplyPrefixDiscovery(outcome)
		if outcome.Prefix == "" {
			// Discovery never mutates anything, so an unknown prefix is reported, not failed.
			msg := fmt.Sprintf("could not discover prefix for environment %s", id)
			if outcome.Message != "" {
				msg += ": " + outcome.Message
			}
			logger.Warn().Int("returncode", outcome.ReturnCode).Msg(msg)
			b.SetMsg(msg)
		}
		return b.Result(), nil
	}
}

func (r *Reconciler) converge(ctx context.Context, client *conda.Client, b *Builder, p Params, step Step, isValid bool, logger *telemetry.Logger) (*Result, error) {
	id := p.Identity()

	if r.policy != nil && !p.CheckOnly {
		decision, err := r.policy.Evaluate(ctx, &PolicyInput{
			Action:     string(step),
			Name:       id.Name,
			Prefix:     id.Prefix,
			Executable: client.Executable(),
			IsValidEnv: isValid,
			CheckOnly:  p.CheckOnly,
			Spec:       p.Spec,
		})
		if err != nil {
			perr := NewPolicyError("policy evaluation failed", err).WithCode(ErrCodePolicyEval)
			return b.Fail(perr.Error()).Result(), perr
		}
		if !decision.Allowed {
			messages := make([]string, 0, len(decision.Violations))
			for _, v := range decision.Violations {
				messages = append(messages, v.Message)
			}
			msg := fmt.Sprintf("%s denied by policy: %s", step, strings.Join(messages, "; "))
			perr := NewPolicyError(msg, nil).WithCode(ErrCodePolicyDenied).WithDetail("violations", decision.Violations)
			return b.Fail(msg).Result(), perr
		}
	}

	specPath, err := client.WriteSpec(ctx, p.Spec)
	if err != nil {
		lerr := NewLaunchError("failed to stage spec file", err).WithCode(ErrCodeSpecWrite)
		return b.Fail(lerr.Error()).Result(), lerr
	}
	b.SetSpecFile(specPath)

	if !p.KeepSpecFile {
		defer func() {
			// The run may already be cancelled; cleanup still has to reach the host.
			if err := client.RemoveSpec(context.WithoutCancel(ctx), specPath); err != nil {
				logger.Warn().Err(err).Str("path", specPath).Msg("failed to remove spec file")
			}
		}()
	}

	outcome, err := client.EnvApply(ctx, step.EnvSubcommand(), specPath, id, p.CheckOnly)
	if err != nil {
		return launchFailure(b, err)
	}
	b.ApplyConvergence(outcome)
	if outcome.Prefix == "" && id.Prefix != "" {
		b.SetPrefix(id.Prefix)
	}

	if outcome.Failed() {
		msg := outcome.Message
		if msg == "" {
			msg = fmt.Sprintf("'%s' failed with return code %d", runner.CommandLine(outcome.Cmd), outcome.ReturnCode)
		}
		terr := NewToolError(msg, nil).WithCode(ErrCodeConvergence).WithCommand(outcome.Cmd)
		return b.Fail(msg).Result(), terr
	}

	return b.Result(), nil
}

// launchFailure converts a command that could not be started into a failed Result.
func launchFailure(b *Builder, err error) (*Result, error) {
	var launchErr *conda.LaunchError
	if errors.As(err, &launchErr) {
		b.SetCommand(launchErr.Argv)
	}
	lerr := NewLaunchError("failed to start package manager", err)
	return b.Fail(err.Error()).Result(), lerr
}

func (r *Reconciler) finish(ctx context.Context, logger *telemetry.Logger, run *RunRecord) {
	res := run.Result
	step := string(res.Step)
	if step == "" {
		step = "none"
	}

	r.metrics.RecordRun(step, res.Outcome(), run.CompletedAt.Sub(run.StartedAt))
	if run.ErrorClass != "" {
		r.metrics.RecordError(string(run.ErrorClass))
	}

	if r.recorder != nil {
		if err := r.recorder.RecordRun(context.WithoutCancel(ctx), run); err != nil {
			logger.Warn().Err(err).Msg("failed to record run")
		}
	}

	event := logger.Info()
	if res.Failed {
		event = logger.Error().Str("error_class", string(run.ErrorClass))
	}
	event.
		Str("step", step).
		Bool("changed", res.Changed).
		Bool("failed", res.Failed).
		Str("prefix", res.Prefix).
		Int("commands", len(run.Commands)).
		Dur("duration", run.CompletedAt.Sub(run.StartedAt)).
		Msg("reconcile finished")
}
