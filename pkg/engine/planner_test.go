package engine

import (
	"testing"

	"github.com/openfroyo/condaenv/pkg/conda"
)

func TestPlan(t *testing.T) {
	tests := []struct {
		name        string
		specPresent bool
		isValid     bool
		id          conda.Identity
		want        Step
	}{
		{"spec on valid env updates", true, true, conda.Identity{Name: "envA"}, StepUpdate},
		{"spec on missing env creates", true, false, conda.Identity{Name: "envA"}, StepCreate},
		{"spec with prefix on missing env creates", true, false, conda.Identity{Prefix: "/opt/env/x"}, StepCreate},
		{"no spec with prefix", false, false, conda.Identity{Prefix: "/opt/env/x"}, StepPrefixGiven},
		{"no spec with prefix on valid env", false, true, conda.Identity{Prefix: "/opt/env/x"}, StepPrefixGiven},
		{"no spec, valid named env probes", false, true, conda.Identity{Name: "envA"}, StepProbePrefix},
		{"no spec, missing named env dry-runs", false, false, conda.Identity{Name: "envA"}, StepDryRunPrefix},
		{"no spec, nothing given, valid default env", false, true, conda.Identity{}, StepDryRunPrefix},
		{"no spec, nothing given", false, false, conda.Identity{}, StepDryRunPrefix},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Plan(tt.specPresent, tt.isValid, tt.id); got != tt.want {
				t.Errorf("Plan() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestStepMutating(t *testing.T) {
	for _, s := range []Step{StepUpdate, StepCreate} {
		if !s.Mutating() {
			t.Errorf("%s should be mutating", s)
		}
	}
	for _, s := range []Step{StepPrefixGiven, StepProbePrefix, StepDryRunPrefix} {
		if s.Mutating() {
			t.Errorf("%s should not be mutating", s)
		}
	}

	if StepUpdate.EnvSubcommand() != conda.EnvUpdate || StepCreate.EnvSubcommand() != conda.EnvCreate {
		t.Error("unexpected env subcommand mapping")
	}
}

func TestSpecPresent(t *testing.T) {
	tests := []struct {
		name string
		spec map[string]interface{}
		want bool
	}{
		{"nil", nil, false},
		{"empty map", map[string]interface{}{}, false},
		{"populated", map[string]interface{}{"dependencies": []interface{}{"python"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Params{Spec: tt.spec}
			if got := p.SpecPresent(); got != tt.want {
				t.Errorf("SpecPresent() = %v, want %v", got, tt.want)
			}
		})
	}
}
