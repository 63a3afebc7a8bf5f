package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openfroyo/condaenv/cmd/condaenv/commands"
	"github.com/openfroyo/condaenv/pkg/telemetry"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	// Setup structured logging
	setupLogging()

	// Create context that cancels on interrupt signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("Received interrupt signal, shutting down...")
		cancel()
	}()

	err := commands.Execute(ctx, Version, Commit, BuildDate)
	if err == nil {
		return
	}

	// A failed run has already printed its result.
	var exitErr *commands.ExitError
	if !errors.As(err, &exitErr) || exitErr.Err != nil {
		log.Error().Err(err).Msg("Command execution failed")
	}
	cancel()
	os.Exit(commands.ExitCode(err))
}

// setupLogging configures the global zerolog logger used until a command applies its
// settings. stdout is reserved for results.
func setupLogging() {
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	// Levels are set per logger so --log-level and the settings file can lower them.
	zerolog.SetGlobalLevel(zerolog.TraceLevel)

	level := os.Getenv("CONDAENV_LOG_LEVEL")
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	log.Logger = log.Logger.Level(telemetry.ParseLevel(strings.ToLower(level)))
}
