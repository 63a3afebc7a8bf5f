package config

import (
	"path/filepath"
	"testing"

	"github.com/openfroyo/condaenv/pkg/conda"
	"github.com/openfroyo/condaenv/pkg/engine"
)

func TestLoadParams(t *testing.T) {
	path := writeFile(t, t.TempDir(), "params.yml", `name: envA
conda_exe: /opt/conda/bin/conda
check_mode: true
host: deploy@build01
spec:
  channels: [conda-forge]
  dependencies: [python=3.12]
`)

	p, err := LoadParams(path)
	if err != nil {
		t.Fatalf("LoadParams() error = %v", err)
	}

	if p.Name != "envA" || p.Executable != "/opt/conda/bin/conda" || !p.CheckOnly {
		t.Errorf("unexpected params: %+v", p)
	}
	if p.Host != "deploy@build01" {
		t.Errorf("Host = %q", p.Host)
	}
	if !p.SpecPresent() {
		t.Error("expected inline spec")
	}
}

func TestLoadParamsErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadParams(filepath.Join(dir, "missing.yml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := LoadParams(writeFile(t, dir, "bad.yml", "name: [\n")); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name     string
		params   Params
		wantErr  bool
		wantCode string
	}{
		{name: "empty", params: Params{}},
		{name: "name only", params: Params{Params: engine.Params{Name: "envA"}}},
		{name: "prefix only", params: Params{Params: engine.Params{Prefix: "/envs/x"}}},
		{
			name:     "name and prefix",
			params:   Params{Params: engine.Params{Name: "envA", Prefix: "/envs/x"}},
			wantErr:  true,
			wantCode: engine.ErrCodeNameAndPrefix,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			if !engine.IsInvalidInput(err) {
				t.Errorf("expected input class error, got %v", err)
			}
			ee := err.(*engine.EngineError)
			if ee.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", ee.Code, tt.wantCode)
			}
		})
	}
}

func TestParamsOverride(t *testing.T) {
	base := Params{
		Params: engine.Params{
			Name:       "fromfile",
			Executable: "mamba",
			Spec:       map[string]interface{}{"dependencies": []interface{}{"a"}},
		},
		Host: "build01",
	}

	base.Override(Params{
		Params:   engine.Params{Name: "fromflag", CheckOnly: true},
		SpecFile: "env.yml",
	})

	if base.Name != "fromflag" || base.Executable != "mamba" || base.Host != "build01" {
		t.Errorf("unexpected merge: %+v", base)
	}
	if !base.CheckOnly {
		t.Error("CheckOnly should be set by the override")
	}
	if base.Spec != nil || base.SpecFile != "env.yml" {
		t.Errorf("spec file flag should replace inline spec: spec=%v file=%q", base.Spec, base.SpecFile)
	}
}

func TestParamsApplySettings(t *testing.T) {
	p := Params{}
	p.ApplySettings(nil)
	if p.Executable != conda.DefaultExecutable {
		t.Errorf("Executable = %q, want default", p.Executable)
	}

	p = Params{}
	p.ApplySettings(&Settings{Executable: "micromamba"})
	if p.Executable != "micromamba" {
		t.Errorf("Executable = %q, want settings value", p.Executable)
	}

	p = Params{Params: engine.Params{Executable: "conda"}}
	p.ApplySettings(&Settings{Executable: "micromamba"})
	if p.Executable != "conda" {
		t.Errorf("explicit executable must win, got %q", p.Executable)
	}
}

func TestParamsResolve(t *testing.T) {
	dir := t.TempDir()
	loader := NewSpecLoader(nil)

	p := Params{SpecFile: writeFile(t, dir, "env.yml", "dependencies: [numpy]\n")}
	if err := p.Resolve(loader); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !p.SpecPresent() {
		t.Error("expected spec to be loaded")
	}

	inline := map[string]interface{}{"channels": []interface{}{"x"}}
	p = Params{Params: engine.Params{Spec: inline}, SpecFile: filepath.Join(dir, "missing.yml")}
	if err := p.Resolve(loader); err != nil {
		t.Fatalf("inline spec must win over spec file: %v", err)
	}

	p = Params{SpecFile: filepath.Join(dir, "missing.yml")}
	if err := p.Resolve(loader); err == nil {
		t.Error("expected error for missing spec file")
	}
}
