package engine

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/openfroyo/condaenv/pkg/conda"
)

func TestBuilderLastWriterWins(t *testing.T) {
	b := NewBuilder("run-1")

	b.ApplySnapshot(&conda.Snapshot{
		Cmd:        []string{"conda", "list", "--json", "--name", "envA"},
		Packages:   []json.RawMessage{json.RawMessage(`{"name":"python"}`)},
		IsValid:    true,
		ReturnCode: 0,
	})
	b.ApplyConvergence(&conda.Outcome{
		Cmd:        []string{"conda", "env", "update"},
		ReturnCode: 0,
		Actions:    json.RawMessage(`{"LINK":[{}]}`),
		Prefix:     "/envs/envA",
		Changed:    true,
		Success:    true,
	})

	res := b.Result()
	if !reflect.DeepEqual(res.Cmd, []string{"conda", "env", "update"}) {
		t.Errorf("Cmd = %q, want the convergence command", res.Cmd)
	}
	if !res.IsValidEnv || len(res.PackageList) != 1 {
		t.Error("inspection fields should survive later merges")
	}
	if !res.Changed || res.Failed || res.Prefix != "/envs/envA" {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.RunID != "run-1" {
		t.Errorf("RunID = %q", res.RunID)
	}
}

func TestBuilderPrefixDiscoveryNeverChanges(t *testing.T) {
	b := NewBuilder("run-1")
	b.ApplySnapshot(&conda.Snapshot{Cmd: []string{"conda", "list"}, Packages: []json.RawMessage{}, ReturnCode: 1})
	b.ApplyPrefixDiscovery(&conda.Outcome{
		Cmd:     []string{"conda", "create", "--dry-run"},
		Actions: json.RawMessage(`{"LINK":[{"name":"python"}]}`),
		Changed: true,
		Success: false,
		Prefix:  "/envs/new",
	})

	res := b.Result()
	if res.Changed || res.Failed {
		t.Errorf("prefix discovery must not set changed or failed: %+v", res)
	}
	if res.Actions != nil {
		t.Errorf("prefix discovery must not merge actions, got %s", res.Actions)
	}
	if res.Prefix != "/envs/new" || res.ReturnCode != 0 {
		t.Errorf("unexpected prefix/returncode: %q %d", res.Prefix, res.ReturnCode)
	}
}

func TestBuilderConvergenceKeepsPrefixWhenUnreported(t *testing.T) {
	b := NewBuilder("run-1").SetPrefix("/given")
	b.ApplyConvergence(&conda.Outcome{Cmd: []string{"conda"}, Success: true})

	if got := b.Result().Prefix; got != "/given" {
		t.Errorf("Prefix = %q, want /given", got)
	}
}

func TestBuilderFailKeepsFields(t *testing.T) {
	b := NewBuilder("run-1")
	b.ApplySnapshot(&conda.Snapshot{Cmd: []string{"conda", "list"}, Packages: []json.RawMessage{json.RawMessage(`{}`)}, IsValid: true})
	b.SetCommand([]string{"conda", "run", "env"}).SetReturnCode(1).Fail("boom")

	res := b.Result()
	if !res.Failed || res.Msg != "boom" {
		t.Errorf("expected failure with message, got %+v", res)
	}
	if !res.IsValidEnv || len(res.PackageList) != 1 || res.ReturnCode != 1 {
		t.Errorf("accumulated fields lost: %+v", res)
	}
}

func TestResultJSONShape(t *testing.T) {
	res := NewBuilder("run-1").Result()

	data, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	for _, key := range []string{"changed", "failed", "is_valid_env", "cmd", "package_list", "actions", "prefix", "returncode"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("missing key %q in %s", key, data)
		}
	}
	for _, key := range []string{"spec_file_path", "msg", "RunID", "Step"} {
		if _, ok := fields[key]; ok {
			t.Errorf("unexpected key %q in %s", key, data)
		}
	}
	if string(fields["actions"]) != "null" {
		t.Errorf("actions = %s, want null", fields["actions"])
	}
	if string(fields["package_list"]) != "[]" || string(fields["cmd"]) != "[]" {
		t.Errorf("empty lists should encode as [], got %s", data)
	}
}
