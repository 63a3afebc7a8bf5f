package policy

import (
	"fmt"
	"sort"
	"strings"
)

// BuiltinPrefix selects a built-in policy on the command line, e.g. "builtin:no-defaults-channel".
const BuiltinPrefix = "builtin:"

var builtinPolicies = map[string]Policy{
	"no-defaults-channel": {
		Name:        "no-defaults-channel",
		Description: "Denies specs that resolve packages from the Anaconda defaults channel",
		Severity:    SeverityError,
		Rego: `package condaenv.builtin.channels

deny contains msg if {
	some channel in input.spec.channels
	channel in {"defaults", "anaconda", "main"}
	msg := sprintf("channel '%s' is not allowed; use conda-forge", [channel])
}

deny contains msg if {
	not input.spec.channels
	msg := "spec must list its channels explicitly"
}
`,
	},
	"explicit-environment": {
		Name:        "explicit-environment",
		Description: "Denies changes to an environment that is selected by neither name nor prefix",
		Severity:    SeverityError,
		Rego: `package condaenv.builtin.identity

deny contains msg if {
	not input.name
	not input.prefix
	msg := sprintf("refusing to %s the default environment; give a name or prefix", [input.action])
}
`,
	},
	"pinned-python": {
		Name:        "pinned-python",
		Description: "Warns when python is not pinned to a version",
		Severity:    SeverityWarning,
		Rego: `package condaenv.builtin.python

deny contains msg if {
	some dep in input.spec.dependencies
	dep == "python"
	msg := "python should be pinned to a version"
}
`,
	},
}

// Builtin returns the built-in policy called name.
func Builtin(name string) (Policy, error) {
	p, ok := builtinPolicies[name]
	if !ok {
		return Policy{}, fmt.Errorf("unknown built-in policy %q (available: %s)", name, strings.Join(BuiltinNames(), ", "))
	}
	return p, nil
}

// BuiltinNames lists the built-in policies.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtinPolicies))
	for name := range builtinPolicies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
