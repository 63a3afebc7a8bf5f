package conda

// ListArgs builds `list --json`.
func ListArgs(executable string, id Identity) []string {
	argv := []string{executable, "list", "--json"}
	return append(argv, id.Flags()...)
}

// EnvApplyArgs builds `env create|update` against a spec file.
func EnvApplyArgs(executable string, sub EnvSubcommand, specFile string, id Identity, dryRun bool) []string {
	argv := []string{executable, "env", string(sub), "-y", "--json", "--file", specFile}
	argv = append(argv, id.Flags()...)
	if dryRun {
		argv = append(argv, "--dry-run")
	}
	return argv
}

// CreateArgs builds `create` without packages.
func CreateArgs(executable string, id Identity, dryRun bool) []string {
	argv := []string{executable, "create", "-y", "--json"}
	argv = append(argv, id.Flags()...)
	if dryRun {
		argv = append(argv, "--dry-run")
	}
	return argv
}

// RunEnvArgs builds `run ... env`.
func RunEnvArgs(executable string, id Identity) []string {
	argv := []string{executable, "run"}
	argv = append(argv, id.Flags()...)
	return append(argv, "env")
}

// Subcommand names the operation an argv performs, e.g. "list" or "env update".
func Subcommand(argv []string) string {
	if len(argv) < 2 {
		return "unknown"
	}
	if argv[1] == "env" && len(argv) > 2 {
		return "env " + argv[2]
	}
	return argv[1]
}
