package main

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mattjoyce/elasticd/internal/journal"
)

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stdout failed: %v", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stderr failed: %v", err)
	}

	os.Stdout = stdoutW
	os.Stderr = stderrW

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	stdoutBytes, _ := io.ReadAll(stdoutR)
	stderrBytes, _ := io.ReadAll(stderrR)

	_ = stdoutR.Close()
	_ = stderrR.Close()

	return code, string(stdoutBytes), string(stderrBytes)
}

func captureCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	return captureOutputWithExitCode(t, func() int { return runCLI(args) })
}

func setVersionMetadataForTest(t *testing.T, v, commit, built string) {
	t.Helper()

	origVersion := version
	origCommit := gitCommit
	origBuildDate := buildDate

	version = v
	gitCommit = commit
	buildDate = built

	t.Cleanup(func() {
		version = origVersion
		gitCommit = origCommit
		buildDate = origBuildDate
	})
}

// pluginScript answers can-handle with canHandle and every other operation with ok.
func pluginScript(canHandle bool) string {
	verdict := "false"
	if canHandle {
		verdict = "true"
	}
	return `#!/bin/sh
req=$(cat)
case "$req" in
  *'"operation":"can-handle"'*) echo '{"status":"ok","result":` + verdict + `}' ;;
  *) echo '{"status":"ok"}' ;;
esac
`
}

func createTestPlugin(t *testing.T, pluginsDir, id, extensions, script string) {
	t.Helper()
	dir := filepath.Join(pluginsDir, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	manifest := `manifest_spec: elasticd.plugin
manifest_version: 1
id: ` + id + `
version: 1.0.0
protocol: 1
entrypoint: run.sh
extensions: ` + extensions + `
`
	if err := os.WriteFile(filepath.Join(dir, "manifest.yaml"), []byte(manifest), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "run.sh"), []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
}

// writeConfigFixture writes config.yaml using ./plugins and ./data under dir.
func writeConfigFixture(t *testing.T, dir string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(dir, "plugins"), 0755); err != nil {
		t.Fatal(err)
	}
	configPath := filepath.Join(dir, "config.yaml")
	configYAML := `service:
  log_level: error
state:
  path: ./data/elasticd.db
plugin_roots:
  - ./plugins
`
	if err := os.WriteFile(configPath, []byte(configYAML), 0644); err != nil {
		t.Fatal(err)
	}
	return configPath
}

func TestRunCLIUnknownCommand(t *testing.T) {
	code, _, stderr := captureCLI(t, "frobnicate")
	if code != 1 {
		t.Fatalf("code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "Unknown command: frobnicate") {
		t.Fatalf("stderr = %q", stderr)
	}
}

func TestPrintUsageUsesActionTerminology(t *testing.T) {
	code, stdout, _ := captureCLI(t, "help")
	if code != 0 {
		t.Fatalf("code = %d", code)
	}
	for _, want := range []string{"system start", "plugin list", "agent create", "journal tail", "config lock"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("usage missing %q", want)
		}
	}
}

func TestRunNounActionHelp(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{args: []string{"system", "start", "--help"}, want: "elasticd system start"},
		{args: []string{"system", "status", "-h"}, want: "Exit codes"},
		{args: []string{"config", "lock", "--help"}, want: ".checksums"},
		{args: []string{"plugin", "list", "--help"}, want: "load order"},
		{args: []string{"agent", "create", "--help"}, want: "No plugin matched"},
		{args: []string{"journal", "tail", "--help"}, want: "oldest first"},
		{args: []string{"agent", "help"}, want: "Actions: create"},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			code, stdout, stderr := captureCLI(t, tt.args...)
			if code != 0 {
				t.Fatalf("code = %d, stderr: %s", code, stderr)
			}
			if !strings.Contains(stdout, tt.want) {
				t.Fatalf("stdout missing %q: %s", tt.want, stdout)
			}
		})
	}
}

func TestRunNounUnknownAction(t *testing.T) {
	code, _, stderr := captureCLI(t, "plugin", "run")
	if code != 1 || !strings.Contains(stderr, "Unknown plugin action: run") {
		t.Fatalf("code = %d, stderr = %q", code, stderr)
	}

	code, _, _ = captureCLI(t, "journal")
	if code != 1 {
		t.Fatalf("bare noun code = %d, want 1", code)
	}
}

func TestRunVersionJSONOutputIncludesMetadata(t *testing.T) {
	setVersionMetadataForTest(t, "1.2.3", "0123456789abcdef", "2026-01-02T03:04:05+10:00")

	code, stdout, stderr := captureCLI(t, "version", "--json")
	if code != 0 {
		t.Fatalf("code = %d, stderr: %s", code, stderr)
	}

	var info versionInfo
	if err := json.Unmarshal([]byte(stdout), &info); err != nil {
		t.Fatalf("invalid JSON %q: %v", stdout, err)
	}
	if info.Version != "1.2.3" || info.Commit != "0123456789ab" || info.BuildTime != "2026-01-01T17:04:05Z" {
		t.Fatalf("unexpected version info: %+v", info)
	}
}

func TestRunConfigCheckAndLock(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfigFixture(t, dir)
	createTestPlugin(t, filepath.Join(dir, "plugins"), "docker", "[elastic-agent]", pluginScript(true))
	createTestPlugin(t, filepath.Join(dir, "plugins"), "notifier", "[]", pluginScript(true))

	code, stdout, stderr := captureCLI(t, "config", "check", "--config", configPath)
	if code != 0 {
		t.Fatalf("check code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Plugins discovered: 2 (1 elastic agent)") {
		t.Fatalf("stdout = %s", stdout)
	}
	if !strings.Contains(stdout, "Integrity: not locked") {
		t.Fatalf("stdout = %s", stdout)
	}

	code, stdout, stderr = captureCLI(t, "config", "lock", "--config", dir)
	if code != 0 {
		t.Fatalf("lock code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "HASH config.yaml:") {
		t.Fatalf("stdout = %s", stdout)
	}

	code, stdout, _ = captureCLI(t, "config", "check", "--config", configPath)
	if code != 0 || !strings.Contains(stdout, "Integrity: locked") {
		t.Fatalf("code = %d, stdout = %s", code, stdout)
	}

	f, err := os.OpenFile(configPath, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString("rescan_interval: 1m\n")
	_ = f.Close()

	code, _, stderr = captureCLI(t, "config", "check", "--config", configPath)
	if code != 1 || !strings.Contains(stderr, "hash mismatch") {
		t.Fatalf("tampered check code = %d, stderr = %s", code, stderr)
	}
}

func TestRunConfigLockRefusesBrokenYAML(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("service: ["), 0644); err != nil {
		t.Fatal(err)
	}

	code, _, stderr := captureCLI(t, "config", "lock", "--config", configPath)
	if code != 1 || !strings.Contains(stderr, "Refusing to lock") {
		t.Fatalf("code = %d, stderr = %s", code, stderr)
	}
	if _, err := os.Stat(filepath.Join(dir, ".checksums")); !os.IsNotExist(err) {
		t.Fatalf("checksums should not be written, stat err = %v", err)
	}
}

func TestRunPluginListJSON(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfigFixture(t, dir)
	createTestPlugin(t, filepath.Join(dir, "plugins"), "docker", "[elastic-agent]", pluginScript(true))
	createTestPlugin(t, filepath.Join(dir, "plugins"), "notifier", "[]", pluginScript(true))

	code, stdout, stderr := captureCLI(t, "plugin", "list", "--config", configPath, "--json")
	if code != 0 {
		t.Fatalf("code = %d, stderr: %s", code, stderr)
	}

	var entries []pluginListEntry
	if err := json.Unmarshal([]byte(stdout), &entries); err != nil {
		t.Fatalf("invalid JSON %q: %v", stdout, err)
	}
	got := map[string]bool{}
	for _, e := range entries {
		got[e.ID] = e.ElasticAgent
	}
	if len(got) != 2 || !got["docker"] || got["notifier"] {
		t.Fatalf("unexpected plugin list: %+v", entries)
	}
}

func TestRunAgentCreateJournalsOutcome(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfigFixture(t, dir)
	createTestPlugin(t, filepath.Join(dir, "plugins"), "docker", "[elastic-agent]", pluginScript(true))

	code, stdout, stderr := captureCLI(t, "agent", "create", "--config", configPath, "--resources", "linux, gpu", "--env", "prod", "--json")
	if code != 0 {
		t.Fatalf("create code = %d, stderr: %s", code, stderr)
	}
	var result agentCreateResult
	if err := json.Unmarshal([]byte(stdout), &result); err != nil {
		t.Fatalf("invalid JSON %q: %v", stdout, err)
	}
	if !result.Matched || result.PluginID != "docker" || result.Error != "" {
		t.Fatalf("unexpected result: %+v", result)
	}

	code, stdout, stderr = captureCLI(t, "journal", "tail", "--config", configPath, "--json")
	if code != 0 {
		t.Fatalf("tail code = %d, stderr: %s", code, stderr)
	}
	var entries []journal.Entry
	if err := json.Unmarshal([]byte(stdout), &entries); err != nil {
		t.Fatalf("invalid JSON %q: %v", stdout, err)
	}
	if len(entries) != 1 {
		t.Fatalf("want only the provisioning entry, got %+v", entries)
	}
	if entries[0].Kind != journal.KindProvision || entries[0].PluginID != "docker" {
		t.Fatalf("unexpected entry: %+v", entries[0])
	}
	if !strings.Contains(string(entries[0].Detail), `"gpu"`) {
		t.Fatalf("detail missing resources: %s", entries[0].Detail)
	}
}

func TestRunAgentCreateUnmatched(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfigFixture(t, dir)
	createTestPlugin(t, filepath.Join(dir, "plugins"), "docker", "[elastic-agent]", pluginScript(false))

	code, _, stderr := captureCLI(t, "agent", "create", "--config", configPath, "--resources", "gpu")
	if code != exitUnmatched {
		t.Fatalf("code = %d, want %d (stderr: %s)", code, exitUnmatched, stderr)
	}
	if !strings.Contains(stderr, "No plugin can handle") {
		t.Fatalf("stderr = %s", stderr)
	}
}

func TestRunSystemStatusJSONHealthy(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfigFixture(t, dir)

	code, stdout, stderr := captureCLI(t, "system", "status", "--config", configPath, "--json")
	if code != 0 {
		t.Fatalf("code = %d, stdout: %s, stderr: %s", code, stdout, stderr)
	}

	var report statusReport
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("invalid JSON %q: %v", stdout, err)
	}
	if !report.Healthy || report.Running {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(report.Checks) != 3 {
		t.Fatalf("want config, journal and pid_lock checks, got %+v", report.Checks)
	}
}

func TestRunSystemStatusConfigLoadFailure(t *testing.T) {
	code, stdout, _ := captureCLI(t, "system", "status", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	if code != 1 {
		t.Fatalf("code = %d, want 1", code)
	}
	if !strings.Contains(stdout, "[FAIL] config") {
		t.Fatalf("stdout = %s", stdout)
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" linux, gpu ,,arm64 ")
	want := []string{"linux", "gpu", "arm64"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("splitList = %q, want %q", got, want)
	}
	if splitList("") != nil {
		t.Fatal("empty input should yield nil")
	}
}
