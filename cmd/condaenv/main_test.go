package main

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openfroyo/condaenv/pkg/telemetry"
)

func TestSetupLoggingLeavesLevelToLoggers(t *testing.T) {
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	tests := []struct {
		name string
		env  string
		want zerolog.Level
	}{
		{name: "default", want: zerolog.InfoLevel},
		{name: "from environment", env: "WARN", want: zerolog.WarnLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CONDAENV_LOG_LEVEL", tt.env)
			t.Setenv("LOG_LEVEL", "")

			setupLogging()

			if got := log.Logger.GetLevel(); got != tt.want {
				t.Errorf("logger level = %s, want %s", got, tt.want)
			}

			logger, err := telemetry.NewLogger(telemetry.LoggingConfig{Level: "debug", Format: "json"})
			if err != nil {
				t.Fatalf("NewLogger() error = %v", err)
			}
			zlog := logger.Zerolog()
			if !zlog.Debug().Enabled() {
				t.Error("a debug logger must emit debug events after setup")
			}
		})
	}
}
