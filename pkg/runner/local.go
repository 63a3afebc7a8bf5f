package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// Local runs commands on the current host.
type Local struct {
	// Dir is the working directory for commands. Empty means the current directory.
	Dir string

	// Env, when non-nil, replaces the process environment for commands.
	Env []string

	// TempDir is where staged files are created. Empty means os.TempDir().
	TempDir string
}

// NewLocal returns a Local runner with default settings.
func NewLocal() *Local {
	return &Local{}
}

// Run executes argv on the local host.
func (l *Local) Run(ctx context.Context, argv []string) (*ExecResult, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if l.Dir != "" {
		cmd.Dir = l.Dir
	}
	if l.Env != nil {
		cmd.Env = l.Env
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result := &ExecResult{
		Argv:     argv,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("failed to execute command: %w", err)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	return result, nil
}

// Stage writes data to a new temporary file on the local host.
func (l *Local) Stage(_ context.Context, data []byte, pattern string) (string, error) {
	f, err := os.CreateTemp(l.TempDir, pattern)
	if err != nil {
		return "", fmt.Errorf("failed to create staged file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("failed to write staged file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("failed to close staged file: %w", err)
	}

	return f.Name(), nil
}

// Remove deletes a staged file. A file that is already gone is not an error.
func (l *Local) Remove(_ context.Context, path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove staged file: %w", err)
	}
	return nil
}
