package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/condaenv/pkg/config"
)

func newWatchCommand(version string) *cobra.Command {
	var (
		flags       runFlags
		metricsAddr string
		delay       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Converge an environment every time its spec changes",
		Long: `Converge an environment once, then again after every change to the spec file.

Each run prints its JSON result. A failed run does not stop watching. With
--metrics-addr, Prometheus metrics are served on /metrics.`,
		Example: `  # Keep an environment in sync with a spec under development
  condaenv watch --name data --spec environment.yml --metrics-addr :9108`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flags.specFile == "" || flags.specFile == config.StdinSource {
				return usageError(fmt.Errorf("watch requires --spec with a file path"))
			}
			return runWatch(cmd, version, &flags, metricsAddr, delay)
		},
	}

	flags.register(cmd, true)
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics on this address")
	cmd.Flags().DurationVar(&delay, "debounce", config.DefaultWatchDelay, "wait this long after the last change before converging")

	return cmd
}

func runWatch(cmd *cobra.Command, version string, flags *runFlags, metricsAddr string, delay time.Duration) error {
	ctx := cmd.Context()

	settings, err := loadSettings()
	if err != nil {
		return err
	}
	params, err := flags.resolveParams(settings, nil)
	if err != nil {
		return err
	}

	opts := flags.sessionOptions()
	opts.host = params.Host
	opts.metricsAddr = metricsAddr

	s, err := newSession(ctx, settings, version, opts)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close(context.WithoutCancel(ctx)) }()

	logger := s.tel.Logger.NewComponentLogger("watch")

	if srv := s.tel.Metrics.NewMetricsServer(); srv != nil {
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.Info().Str("addr", srv.Addr).Msg("Serving metrics")
	}

	converge := func() {
		// Re-read the spec on every change; a broken edit skips the run.
		params, err := flags.resolveParams(settings, nil)
		if err != nil {
			logger.Error().Err(err).Msg("Skipping run")
			return
		}
		res := s.reconcile(ctx, params.Params)
		if err := printResult(cmd.OutOrStdout(), res); err != nil {
			logger.Error().Err(err).Msg("Failed to print result")
		}
	}

	converge()
	return config.NewWatcher(logger.Zerolog(), delay).Watch(ctx, flags.specFile, converge)
}
