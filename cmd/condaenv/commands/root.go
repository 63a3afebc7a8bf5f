package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	settingsPath string
	logLevel     string
	logFormat    string
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "condaenv",
		Short: "Converge conda environments to a declared spec",
		Long: `condaenv makes a conda environment match an environment spec.

Given a spec it creates the environment when it does not exist and updates it
otherwise. Without a spec it only inspects the environment. The result is printed
as JSON on stdout; logs go to stderr.

Any conda-compatible executable (conda, mamba, micromamba) can be used, locally or
on a remote host over SSH.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", "", "settings file (default $XDG_CONFIG_HOME/condaenv/settings.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (auto, console, json)")

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	// Add subcommands
	rootCmd.AddCommand(newEnsureCommand(version))
	rootCmd.AddCommand(newInspectCommand(version))
	rootCmd.AddCommand(newWatchCommand(version))
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newVersionCommand(version, commit, buildDate))

	return rootCmd
}
