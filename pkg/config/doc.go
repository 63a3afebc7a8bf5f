// Package config loads everything a run needs besides the live environment state.
//
// # Sources
//
// Parameters come from three places, lowest precedence first:
//
//   - the settings file (TOML, default $XDG_CONFIG_HOME/condaenv/settings.toml)
//   - a parameters file (YAML, the shape an orchestrator hands over)
//   - command line flags
//
// Params.Override and Params.ApplySettings merge them. Params.Validate rejects a
// name together with a prefix.
//
// # Spec documents
//
// SpecLoader reads the desired environment from YAML, JSON or CUE. CUE documents are
// evaluated and must be concrete. The decoded document is handed to the reconciler as is;
// the package manager decides whether its content is valid:
//
//	loader := config.NewSpecLoader(os.Stdin)
//	spec, err := loader.Load("environment.cue")
//
// # Settings
//
// A settings file looks like:
//
//	executable = "mamba"
//	policies = ["builtin:no-defaults-channel", "/etc/condaenv/policies"]
//
//	[log]
//	level = "debug"
//
//	[ledger]
//	path = "~/.local/state/condaenv/ledger.db"
//	retention_days = 90
//
//	[metrics]
//	textfile = "/var/lib/node_exporter/textfile/condaenv.prom"
//
//	[ssh]
//	user = "deploy"
//	key = "~/.ssh/id_ed25519"
//
// Unknown keys are rejected.
package config
