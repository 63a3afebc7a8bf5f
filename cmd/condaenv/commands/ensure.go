package commands

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/openfroyo/condaenv/pkg/config"
	"github.com/openfroyo/condaenv/pkg/engine"
)

// runFlags are shared by ensure, inspect and watch.
type runFlags struct {
	specFile     string
	paramsFile   string
	name         string
	prefix       string
	executable   string
	host         string
	check        bool
	keepSpecFile bool
	policies     []string
	ledger       string
	metricsFile  string
}

func (f *runFlags) register(cmd *cobra.Command, withSpec bool) {
	flags := cmd.Flags()
	if withSpec {
		flags.StringVarP(&f.specFile, "spec", "f", "", "environment spec file (.yml, .json, .cue; - for stdin)")
		flags.BoolVar(&f.check, "check", false, "report what would change without changing anything")
		flags.BoolVar(&f.keepSpecFile, "keep-spec-file", false, "leave the staged spec file in place")
		flags.StringArrayVar(&f.policies, "policy", nil, "Rego policy file, directory or builtin:<name> (repeatable)")
	}
	flags.StringVar(&f.paramsFile, "params", "", "YAML parameters file")
	flags.StringVarP(&f.name, "name", "n", "", "environment name")
	flags.StringVarP(&f.prefix, "prefix", "p", "", "environment prefix path")
	flags.StringVar(&f.executable, "executable", "", "conda-compatible executable (default conda)")
	flags.StringVar(&f.host, "host", "", "run on [user@]host[:port] over SSH")
	flags.StringVar(&f.ledger, "ledger", "", "record runs in this SQLite ledger")
	flags.StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile after each run")
}

func (f *runFlags) sessionOptions() sessionOptions {
	return sessionOptions{
		host:        f.host,
		ledgerPath:  f.ledger,
		metricsFile: f.metricsFile,
		policies:    f.policies,
	}
}

// resolveParams merges the parameters file, flags and settings and loads the spec.
func (f *runFlags) resolveParams(settings *config.Settings, stdin io.Reader) (*config.Params, error) {
	p := &config.Params{}
	if f.paramsFile != "" {
		loaded, err := config.LoadParams(f.paramsFile)
		if err != nil {
			return nil, usageError(err)
		}
		p = loaded
	}

	p.Override(config.Params{
		Params: engine.Params{
			Name:         f.name,
			Prefix:       f.prefix,
			Executable:   f.executable,
			CheckOnly:    f.check,
			KeepSpecFile: f.keepSpecFile,
		},
		SpecFile: f.specFile,
		Host:     f.host,
	})
	p.ApplySettings(settings)

	if err := p.Validate(); err != nil {
		return nil, usageError(err)
	}
	if err := p.Resolve(config.NewSpecLoader(stdin)); err != nil {
		return nil, usageError(err)
	}
	return p, nil
}

func newEnsureCommand(version string) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "ensure",
		Short: "Converge an environment to a spec",
		Long: `Converge a conda environment to the given spec.

This command:
  - Lists the environment's packages to decide whether it exists
  - Updates the environment from the spec when it exists, creates it otherwise
  - Without a spec, only reports the environment and its prefix
  - Prints the result as JSON

The exit code is 0 on success, 1 when the run failed (the JSON result is still
printed) and 2 on invalid usage.`,
		Example: `  # Create or update a named environment
  condaenv ensure --name data --spec environment.yml

  # Preview the changes without applying them
  condaenv ensure --prefix /opt/envs/data --spec environment.cue --check

  # Converge an environment on a remote host with mamba
  condaenv ensure --host deploy@build01 --executable mamba -n data -f environment.yml

  # Parameters handed over by an orchestrator
  condaenv ensure --params params.yml --ledger /var/lib/condaenv/ledger.db`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd, version, &flags)
		},
	}

	flags.register(cmd, true)

	return cmd
}

func runOnce(cmd *cobra.Command, version string, flags *runFlags) error {
	ctx := cmd.Context()

	settings, err := loadSettings()
	if err != nil {
		return err
	}
	params, err := flags.resolveParams(settings, cmd.InOrStdin())
	if err != nil {
		return err
	}

	opts := flags.sessionOptions()
	opts.host = params.Host

	s, err := newSession(ctx, settings, version, opts)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close(context.WithoutCancel(ctx)) }()

	res := s.reconcile(ctx, params.Params)
	if err := printResult(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	if res.Failed {
		return &ExitError{Code: ExitFailed}
	}
	return nil
}

func printResult(w io.Writer, res *engine.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
