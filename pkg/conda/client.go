package conda

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/condaenv/pkg/runner"
)

// SpecFilePattern names staged spec files.
const SpecFilePattern = "condaenv-*.yaml"

// Client runs conda commands through a runner.Runner.
type Client struct {
	runner     runner.Runner
	executable string
	logger     zerolog.Logger
}

// NewClient returns a Client for executable. An empty executable means DefaultExecutable.
func NewClient(r runner.Runner, executable string) *Client {
	if executable == "" {
		executable = DefaultExecutable
	}
	return &Client{
		runner:     r,
		executable: executable,
		logger:     log.With().Str("component", "conda").Str("executable", executable).Logger(),
	}
}

// Executable returns the configured executable.
func (c *Client) Executable() string {
	return c.executable
}

// Inspect lists the packages of an environment. A non-zero exit or an empty list means the
// environment is not valid; neither is an error.
func (c *Client) Inspect(ctx context.Context, id Identity) (*Snapshot, error) {
	argv := ListArgs(c.executable, id)
	res, err := c.run(ctx, argv)
	if err != nil {
		return nil, err
	}

	snapshot := &Snapshot{
		Cmd:        argv,
		Packages:   []json.RawMessage{},
		ReturnCode: res.ExitCode,
	}
	if res.ExitCode == 0 {
		snapshot.Packages = ParsePackageList(res.Stdout)
		snapshot.IsValid = len(snapshot.Packages) > 0
	}

	c.logger.Debug().
		Str("identity", id.String()).
		Bool("is_valid_env", snapshot.IsValid).
		Int("packages", len(snapshot.Packages)).
		Msg("environment inspected")

	return snapshot, nil
}

// EnvApply runs env create or env update with a staged spec file.
func (c *Client) EnvApply(ctx context.Context, sub EnvSubcommand, specFile string, id Identity, dryRun bool) (*Outcome, error) {
	return c.converge(ctx, EnvApplyArgs(c.executable, sub, specFile, id, dryRun))
}

// DryRunCreate asks where a new environment for id would be placed.
func (c *Client) DryRunCreate(ctx context.Context, id Identity) (*Outcome, error) {
	return c.converge(ctx, CreateArgs(c.executable, id, true))
}

// ProbePrefix runs `env` inside the environment and reads its prefix variable.
func (c *Client) ProbePrefix(ctx context.Context, id Identity) (*Probe, error) {
	argv := RunEnvArgs(c.executable, id)
	res, err := c.run(ctx, argv)
	if err != nil {
		return nil, err
	}

	env := ParseEnvLines(res.Stdout)
	return &Probe{
		Cmd:        argv,
		ReturnCode: res.ExitCode,
		Prefix:     env[PrefixVariable],
		Env:        env,
	}, nil
}

// WriteSpec serializes spec as YAML into a freshly staged file and returns its path.
func (c *Client) WriteSpec(ctx context.Context, spec map[string]interface{}) (string, error) {
	data, err := yaml.Marshal(spec)
	if err != nil {
		return "", fmt.Errorf("failed to encode spec: %w", err)
	}

	path, err := c.runner.Stage(ctx, data, SpecFilePattern)
	if err != nil {
		return "", fmt.Errorf("failed to write spec file: %w", err)
	}

	c.logger.Debug().Str("path", path).Int("bytes", len(data)).Msg("spec file written")
	return path, nil
}

// RemoveSpec deletes a file returned by WriteSpec.
func (c *Client) RemoveSpec(ctx context.Context, path string) error {
	if err := c.runner.Remove(ctx, path); err != nil {
		return fmt.Errorf("failed to remove spec file %s: %w", path, err)
	}
	return nil
}

func (c *Client) converge(ctx context.Context, argv []string) (*Outcome, error) {
	res, err := c.run(ctx, argv)
	if err != nil {
		return nil, err
	}

	outcome := ParseOutcome(res.Stdout, res.ExitCode)
	outcome.Cmd = argv
	if outcome.Message == "" && outcome.Failed() {
		outcome.Message = lastLine(res.Stderr)
	}
	return outcome, nil
}

func (c *Client) run(ctx context.Context, argv []string) (*runner.ExecResult, error) {
	res, err := c.runner.Run(ctx, argv)
	if err != nil {
		return nil, &LaunchError{Argv: argv, Err: err}
	}
	return res, nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
