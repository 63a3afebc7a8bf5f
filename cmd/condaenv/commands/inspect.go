package commands

import (
	"github.com/spf13/cobra"
)

func newInspectCommand(version string) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Report an environment without changing it",
		Long: `Report whether an environment exists, its packages and its prefix.

No spec is applied. When only a name is given, the prefix is resolved by running
a command inside the environment.`,
		Example: `  # Inspect a named environment
  condaenv inspect --name data

  # Inspect the active environment
  condaenv inspect`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd, version, &flags)
		},
	}

	flags.register(cmd, false)

	return cmd
}
