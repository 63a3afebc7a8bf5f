package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openfroyo/condaenv/pkg/runner"
	"github.com/openfroyo/condaenv/pkg/runner/runnertest"
)

const listedPython = `[{"name": "python", "version": "3.12.1", "channel": "conda-forge"}]`

// useFake routes local runs through fake for the duration of the test.
func useFake(t *testing.T, fake *runnertest.Fake) {
	t.Helper()
	prev := newLocalRunner
	newLocalRunner = func() runner.Runner { return fake }
	t.Cleanup(func() { newLocalRunner = prev })
}

// execute runs the CLI with an empty settings file and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	settings := filepath.Join(t.TempDir(), "settings.toml")
	if err := os.WriteFile(settings, nil, 0644); err != nil {
		t.Fatalf("failed to write settings: %v", err)
	}

	var out bytes.Buffer
	cmd := newRootCommand("1.0.0", "abc123", "2026-10-01")
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(append([]string{"--settings", settings, "--log-level", "error"}, args...))

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeSpec(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "environment.yml")
	content := "channels: [conda-forge]\ndependencies: [python=3.12]\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write spec: %v", err)
	}
	return path
}

func decodeResult(t *testing.T, out string) map[string]interface{} {
	t.Helper()
	var res map[string]interface{}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("stdout is not a JSON result: %v\n%s", err, out)
	}
	return res
}

func TestEnsureUpdatesExistingEnvironment(t *testing.T) {
	fake := runnertest.New().
		On("conda list --json --name envA", runnertest.Reply{Stdout: listedPython}).
		On("conda env update -y --json --file /stage/condaenv-1.yaml --name envA", runnertest.Reply{
			Stdout: `{"success": true, "prefix": "/opt/conda/envs/envA", "actions": {"LINK": [{"name": "numpy"}]}}`,
		})
	useFake(t, fake)

	out, err := execute(t, "ensure", "--name", "envA", "--spec", writeSpec(t))
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}

	res := decodeResult(t, out)
	if res["changed"] != true || res["failed"] != false || res["is_valid_env"] != true {
		t.Errorf("unexpected result: %v", res)
	}
	if res["prefix"] != "/opt/conda/envs/envA" {
		t.Errorf("prefix = %v", res["prefix"])
	}
	if res["spec_file_path"] != "/stage/condaenv-1.yaml" {
		t.Errorf("spec_file_path = %v", res["spec_file_path"])
	}
	if removed := fake.Removed(); len(removed) != 1 {
		t.Errorf("staged spec should be removed, got %v", removed)
	}
}

func TestEnsureCheckModeUsesDryRun(t *testing.T) {
	fake := runnertest.New().
		On("conda list --json --prefix /opt/envs/x", runnertest.Reply{ExitCode: 1}).
		On("conda env create -y --json --file /stage/condaenv-1.yaml --prefix /opt/envs/x --dry-run", runnertest.Reply{
			Stdout: `{"success": true, "actions": {"LINK": [{}]}, "dry_run": true}`,
		})
	useFake(t, fake)

	out, err := execute(t, "ensure", "--prefix", "/opt/envs/x", "--spec", writeSpec(t), "--check")
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if res := decodeResult(t, out); res["changed"] != true {
		t.Errorf("dry run with actions should report changed: %v", res)
	}
}

func TestEnsureFailureExitCode(t *testing.T) {
	fake := runnertest.New().
		On("conda list --json --name envA", runnertest.Reply{Stdout: listedPython}).
		On("conda env update -y --json --file /stage/condaenv-1.yaml --name envA", runnertest.Reply{
			Stdout:   `{"success": false, "message": "UnsatisfiableError"}`,
			ExitCode: 1,
		})
	useFake(t, fake)

	out, err := execute(t, "ensure", "--name", "envA", "--spec", writeSpec(t))
	if ExitCode(err) != ExitFailed {
		t.Fatalf("exit code = %d, want %d (err=%v)", ExitCode(err), ExitFailed, err)
	}

	res := decodeResult(t, out)
	if res["failed"] != true || res["msg"] != "UnsatisfiableError" {
		t.Errorf("unexpected result: %v", res)
	}
}

func TestEnsureUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "name and prefix", args: []string{"ensure", "--name", "a", "--prefix", "/b"}},
		{name: "unknown flag", args: []string{"ensure", "--bogus"}},
		{name: "missing spec file", args: []string{"ensure", "--name", "a", "--spec", "/nonexistent/env.yml"}},
		{name: "missing params file", args: []string{"ensure", "--params", "/nonexistent/params.yml"}},
		{name: "unexpected argument", args: []string{"ensure", "extra"}},
		{name: "watch without spec", args: []string{"watch", "--name", "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := runnertest.New()
			useFake(t, fake)

			out, err := execute(t, tt.args...)
			if ExitCode(err) != ExitUsage {
				t.Fatalf("exit code = %d, want %d (err=%v)", ExitCode(err), ExitUsage, err)
			}
			if out != "" {
				t.Errorf("usage errors must not print a result, got %q", out)
			}
			if calls := fake.Calls(); len(calls) != 0 {
				t.Errorf("no commands should run, got %v", calls)
			}
		})
	}
}

func TestEnsureParamsFile(t *testing.T) {
	dir := t.TempDir()
	params := filepath.Join(dir, "params.yml")
	content := "name: fromfile\nconda_exe: mamba\nspec:\n  dependencies: [numpy]\n"
	if err := os.WriteFile(params, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write params: %v", err)
	}

	fake := runnertest.New().
		On("mamba list --json --name fromflag", runnertest.Reply{ExitCode: 1}).
		On("mamba env create -y --json --file /stage/condaenv-1.yaml --name fromflag", runnertest.Reply{
			Stdout: `{"success": true, "actions": {"LINK": [{}]}, "prefix": "/envs/fromflag"}`,
		})
	useFake(t, fake)

	out, err := execute(t, "ensure", "--params", params, "--name", "fromflag")
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if res := decodeResult(t, out); res["prefix"] != "/envs/fromflag" {
		t.Errorf("unexpected result: %v", res)
	}
}

func TestInspect(t *testing.T) {
	fake := runnertest.New().
		On("conda list --json --prefix /opt/envs/x", runnertest.Reply{Stdout: listedPython})
	useFake(t, fake)

	out, err := execute(t, "inspect", "--prefix", "/opt/envs/x")
	if err != nil {
		t.Fatalf("inspect failed: %v", err)
	}

	res := decodeResult(t, out)
	if res["changed"] != false || res["prefix"] != "/opt/envs/x" || res["is_valid_env"] != true {
		t.Errorf("unexpected result: %v", res)
	}
	if _, ok := res["spec_file_path"]; ok {
		t.Error("inspect must not report a spec file")
	}
	if pkgs, _ := res["package_list"].([]interface{}); len(pkgs) != 1 {
		t.Errorf("package_list = %v", res["package_list"])
	}
}

func TestInspectActiveEnvironment(t *testing.T) {
	fake := runnertest.New().
		On("conda list --json", runnertest.Reply{Stdout: listedPython}).
		On("conda create -y --json --dry-run", runnertest.Reply{
			Stdout:   `{"error": "ArgumentError: one of the arguments -n/--name -p/--prefix is required"}`,
			ExitCode: 1,
		})
	useFake(t, fake)

	out, err := execute(t, "inspect")
	if err != nil {
		t.Fatalf("inspect failed: %v", err)
	}

	res := decodeResult(t, out)
	if res["failed"] != false || res["is_valid_env"] != true || res["prefix"] != "" {
		t.Errorf("unexpected result: %v", res)
	}
	if msg, _ := res["msg"].(string); !strings.Contains(msg, "could not discover prefix") {
		t.Errorf("msg = %q", msg)
	}
}

func TestLogLevelFlagReachesGlobalLogger(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })

	fake := runnertest.New().
		On("conda list --json --prefix /opt/envs/x", runnertest.Reply{Stdout: listedPython})
	useFake(t, fake)

	if _, err := execute(t, "--log-level", "debug", "--log-format", "json", "inspect", "--prefix", "/opt/envs/x"); err != nil {
		t.Fatalf("inspect failed: %v", err)
	}

	if got := log.Logger.GetLevel(); got != zerolog.DebugLevel {
		t.Errorf("global logger level = %s, want debug", got)
	}
}

func TestEnsureRecordsHistory(t *testing.T) {
	ledger := filepath.Join(t.TempDir(), "state", "ledger.db")

	fake := runnertest.New().
		On("conda list --json --name envA", runnertest.Reply{Stdout: listedPython}).
		On("conda run --name envA env", runnertest.Reply{Stdout: "CONDA_PREFIX=/opt/conda/envs/envA\n"})
	useFake(t, fake)

	if _, err := execute(t, "inspect", "--name", "envA", "--ledger", ledger); err != nil {
		t.Fatalf("inspect failed: %v", err)
	}

	out, err := execute(t, "history", "--ledger", ledger, "--json")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	var runs []map[string]interface{}
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatalf("history output is not JSON: %v\n%s", err, out)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0]["name"] != "envA" || runs[0]["step"] != "probe-prefix" {
		t.Errorf("unexpected run: %v", runs[0])
	}

	id, _ := runs[0]["id"].(string)
	out, err = execute(t, "history", "--ledger", ledger, "--run", id)
	if err != nil {
		t.Fatalf("history --run failed: %v", err)
	}
	for _, want := range []string{"Environment: envA", "/opt/conda/envs/envA", "conda list --json --name envA", "conda run --name envA env"} {
		if !strings.Contains(out, want) {
			t.Errorf("run detail missing %q:\n%s", want, out)
		}
	}

	out, err = execute(t, "history", "--ledger", ledger)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if !strings.Contains(out, "probe-prefix") || !strings.Contains(out, "ok") {
		t.Errorf("unexpected table:\n%s", out)
	}
}

func TestHistoryRequiresLedger(t *testing.T) {
	_, err := execute(t, "history")
	if ExitCode(err) != ExitUsage {
		t.Fatalf("exit code = %d, want %d", ExitCode(err), ExitUsage)
	}

	_, err = execute(t, "history", "--ledger", filepath.Join(t.TempDir(), "missing.db"))
	if ExitCode(err) != ExitUsage {
		t.Fatalf("exit code = %d, want %d", ExitCode(err), ExitUsage)
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out, "condaenv 1.0.0") || !strings.Contains(out, "abc123") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: ExitOK},
		{name: "failed run", err: &ExitError{Code: ExitFailed}, want: ExitFailed},
		{name: "usage", err: usageError(os.ErrNotExist), want: ExitUsage},
		{name: "other", err: os.ErrPermission, want: ExitFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestOpenLedger(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{name: "creates parent directories", path: filepath.Join(dir, "state", "nested", "ledger.db")},
		{name: "in memory", path: ":memory:"},
		{name: "parent is a file", path: filepath.Join(blocker, "ledger.db"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger, err := openLedger(context.Background(), tt.path)
			if tt.wantErr {
				if err == nil {
					_ = ledger.Close()
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("openLedger() error = %v", err)
			}
			defer ledger.Close()
			if err := ledger.HealthCheck(context.Background()); err != nil {
				t.Errorf("HealthCheck() error = %v", err)
			}
		})
	}
}
