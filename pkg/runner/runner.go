// Package runner executes package-manager commands and stages the files they read.
//
// A Runner hides where a command runs. The local implementation uses os/exec on the
// current host; the ssh transport implements the same interface against a remote host.
// A command that starts and exits non-zero is reported through ExecResult.ExitCode and is
// never an error. Only a failure to start the command at all (missing executable,
// permission denied, broken connection) is returned as an error.
package runner

import (
	"context"
	"time"

	"github.com/kballard/go-shellquote"
)

// ExecResult is the outcome of one external command.
type ExecResult struct {
	// Argv is the argument vector that was executed.
	Argv []string

	// Stdout is the captured standard output.
	Stdout string

	// Stderr is the captured standard error.
	Stderr string

	// ExitCode is the process exit status.
	ExitCode int

	// Duration is the wall-clock execution time.
	Duration time.Duration
}

// Runner runs commands and manages staged files for them.
type Runner interface {
	// Run executes argv and blocks until it exits.
	Run(ctx context.Context, argv []string) (*ExecResult, error)

	// Stage writes data to a new uniquely named file visible to commands started by Run.
	// pattern follows os.CreateTemp conventions ("name-*.yaml").
	Stage(ctx context.Context, data []byte, pattern string) (string, error)

	// Remove deletes a file previously returned by Stage.
	Remove(ctx context.Context, path string) error
}

// CommandLine renders argv as a single shell-quoted string for diagnostics.
func CommandLine(argv []string) string {
	return shellquote.Join(argv...)
}
