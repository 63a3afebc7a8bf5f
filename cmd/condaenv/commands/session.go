package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openfroyo/condaenv/pkg/config"
	"github.com/openfroyo/condaenv/pkg/engine"
	"github.com/openfroyo/condaenv/pkg/policy"
	"github.com/openfroyo/condaenv/pkg/runner"
	"github.com/openfroyo/condaenv/pkg/stores"
	"github.com/openfroyo/condaenv/pkg/telemetry"
	sshtransport "github.com/openfroyo/condaenv/pkg/transports/ssh"
)

// newLocalRunner builds the runner for runs without --host.
var newLocalRunner = func() runner.Runner {
	return runner.NewLocal()
}

// sessionOptions are the command line overrides for a session.
type sessionOptions struct {
	host        string
	ledgerPath  string
	metricsFile string
	metricsAddr string
	policies    []string
}

// session holds everything one command invocation shares across runs.
type session struct {
	settings *config.Settings
	tel      *telemetry.Telemetry
	runner   runner.Runner
	gate     *policy.Gate
	ledger   *stores.SQLiteStore
	closers  []func() error
}

func loadSettings() (*config.Settings, error) {
	settings, err := config.LoadSettings(settingsPath)
	if err != nil {
		return nil, usageError(err)
	}
	return settings, nil
}

func newSession(ctx context.Context, settings *config.Settings, version string, opts sessionOptions) (*session, error) {
	cfg := settings.TelemetryConfig(version)
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if opts.metricsFile != "" {
		cfg.Metrics.TextfilePath = opts.metricsFile
	}
	if opts.metricsAddr != "" {
		cfg.Metrics.ListenAddress = opts.metricsAddr
	}

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		return nil, usageError(fmt.Errorf("invalid telemetry configuration: %w", err))
	}

	// Components that log through the global logger share the session's level and format.
	log.Logger = tel.Logger.Zerolog()

	s := &session{settings: settings, tel: tel}
	if err := s.open(ctx, opts); err != nil {
		_ = s.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	return s, nil
}

func (s *session) open(ctx context.Context, opts sessionOptions) error {
	logger := s.tel.Logger.NewComponentLogger("cli")

	if opts.host != "" {
		sshCfg, err := s.settings.SSHConfig(opts.host)
		if err != nil {
			return usageError(err)
		}
		client, err := sshtransport.NewClient(sshCfg)
		if err != nil {
			return usageError(err)
		}
		if err := client.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect to %s: %w", opts.host, err)
		}
		s.closers = append(s.closers, client.Close)
		s.runner = client
		logger.Debug().Str("host", sshCfg.Address()).Msg("Connected to remote host")
	} else {
		s.runner = newLocalRunner()
	}

	refs := append(append([]string{}, s.settings.Policies...), opts.policies...)
	if len(refs) > 0 {
		policies, err := policy.NewLoader(logger.Zerolog()).Load(refs)
		if err != nil {
			return usageError(err)
		}
		gate, err := policy.NewGate(ctx, logger.Zerolog(), policies)
		if err != nil {
			return usageError(err)
		}
		s.gate = gate
	}

	ledgerPath := opts.ledgerPath
	if ledgerPath == "" {
		ledgerPath = s.settings.Ledger.Path
	}
	if ledgerPath != "" {
		ledger, err := openLedger(ctx, ledgerPath)
		if err != nil {
			return err
		}
		s.ledger = ledger
		s.closers = append(s.closers, ledger.Close)
	}

	return nil
}

func openLedger(ctx context.Context, path string) (*stores.SQLiteStore, error) {
	if path != stores.MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}
	ledger, err := stores.Open(ctx, stores.Config{Path: path})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger %s: %w", path, err)
	}
	if err := ledger.HealthCheck(ctx); err != nil {
		_ = ledger.Close()
		return nil, fmt.Errorf("ledger %s is unavailable: %w", path, err)
	}
	return ledger, nil
}

// reconciler builds a reconciler wired to this session.
func (s *session) reconciler() *engine.Reconciler {
	opts := []engine.Option{
		engine.WithLogger(s.tel.Logger),
		engine.WithMetrics(s.tel.Metrics),
		engine.WithTracer(s.tel.Tracer),
	}
	if s.gate != nil {
		opts = append(opts, engine.WithPolicy(s.gate))
	}
	if s.ledger != nil {
		opts = append(opts, engine.WithRecorder(s.ledger))
	}
	return engine.NewReconciler(s.runner, opts...)
}

// reconcile runs one reconciliation and flushes per-run outputs.
func (s *session) reconcile(ctx context.Context, p engine.Params) *engine.Result {
	res, _ := s.reconciler().Reconcile(ctx, p)
	s.afterRun(ctx)
	return res
}

func (s *session) afterRun(ctx context.Context) {
	logger := s.tel.Logger.NewComponentLogger("cli")

	if err := s.tel.Metrics.WriteTextfile(); err != nil {
		logger.Warn().Err(err).Msg("Failed to write metrics")
	}

	if s.ledger == nil || s.settings.Ledger.RetentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -s.settings.Ledger.RetentionDays)
	n, err := s.ledger.PruneRuns(context.WithoutCancel(ctx), cutoff)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to prune ledger")
		return
	}
	if n > 0 {
		logger.Debug().Int64("pruned", n).Msg("Pruned old runs from ledger")
	}
}

// Close releases the runner and ledger and flushes telemetry.
func (s *session) Close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.tel.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
