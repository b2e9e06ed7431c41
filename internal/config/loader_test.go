package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr bool
		checkFn func(t *testing.T, dir string, cfg *Config)
	}{
		{
			name: "empty config uses defaults",
			yaml: ``,
			checkFn: func(t *testing.T, dir string, cfg *Config) {
				if cfg.Service.Name != "elasticd" {
					t.Errorf("service.name = %q", cfg.Service.Name)
				}
				if cfg.RescanInterval != 30*time.Second {
					t.Errorf("rescan_interval = %v", cfg.RescanInterval)
				}
				if cfg.Extension.Timeouts.CreateAgent != 60*time.Second {
					t.Errorf("create_agent timeout = %v", cfg.Extension.Timeouts.CreateAgent)
				}
				if len(cfg.PluginRoots) != 1 || cfg.PluginRoots[0] != filepath.Join(dir, "plugins") {
					t.Errorf("plugin_roots = %v, want resolved against config dir", cfg.PluginRoots)
				}
			},
		},
		{
			name: "full config",
			yaml: `
service:
  name: ci-elastic
  log_level: debug
  log_format: text
state:
  path: /var/lib/elasticd/journal.db
plugin_roots:
  - /opt/elastic-plugins
  - ./local-plugins
rescan_interval: 0s
extension:
  timeouts:
    create_agent: 2m
  grace_period: 1s
ping:
  interval: 15s
  jitter: 0s
  concurrency: 8
api:
  enabled: true
  listen: 0.0.0.0:9090
  auth:
    tokens:
      - token: reader
        scopes: ["plugins:ro"]
`,
			checkFn: func(t *testing.T, dir string, cfg *Config) {
				if cfg.Service.Name != "ci-elastic" || cfg.Service.LogFormat != "text" {
					t.Errorf("service not parsed: %+v", cfg.Service)
				}
				if cfg.State.Path != "/var/lib/elasticd/journal.db" {
					t.Errorf("state.path = %q", cfg.State.Path)
				}
				if cfg.State.JournalRetention != 7*24*time.Hour {
					t.Errorf("unset journal_retention should keep default, got %v", cfg.State.JournalRetention)
				}
				want := []string{"/opt/elastic-plugins", filepath.Join(dir, "local-plugins")}
				if len(cfg.PluginRoots) != 2 || cfg.PluginRoots[0] != want[0] || cfg.PluginRoots[1] != want[1] {
					t.Errorf("plugin_roots = %v, want %v", cfg.PluginRoots, want)
				}
				if cfg.RescanInterval != 0 {
					t.Errorf("explicit rescan_interval 0 should disable rescans, got %v", cfg.RescanInterval)
				}
				if cfg.Extension.Timeouts.CreateAgent != 2*time.Minute {
					t.Errorf("create_agent = %v", cfg.Extension.Timeouts.CreateAgent)
				}
				if cfg.Extension.Timeouts.ServerPing != 30*time.Second {
					t.Errorf("unset server_ping should keep default, got %v", cfg.Extension.Timeouts.ServerPing)
				}
				if cfg.Ping.Interval != 15*time.Second || cfg.Ping.Jitter != 0 || cfg.Ping.Concurrency != 8 {
					t.Errorf("ping = %+v", cfg.Ping)
				}
				if !cfg.API.Enabled || cfg.API.Listen != "0.0.0.0:9090" || len(cfg.API.Auth.Tokens) != 1 {
					t.Errorf("api = %+v", cfg.API)
				}
			},
		},
		{
			name: "env var interpolation",
			yaml: `
state:
  path: ${ELASTICD_TEST_DB}
api:
  enabled: true
  auth:
    api_key: ${ELASTICD_TEST_KEY}
`,
			env: map[string]string{
				"ELASTICD_TEST_DB":  "/tmp/test.db",
				"ELASTICD_TEST_KEY": "secret123",
			},
			checkFn: func(t *testing.T, dir string, cfg *Config) {
				if cfg.State.Path != "/tmp/test.db" {
					t.Errorf("env var not interpolated in state.path: %s", cfg.State.Path)
				}
				if cfg.API.Auth.APIKey != "secret123" {
					t.Error("env var not interpolated in api key")
				}
			},
		},
		{
			name: "missing env var fails validation",
			yaml: `
api:
  enabled: true
  auth:
    api_key: ${ELASTICD_TEST_MISSING}
`,
			wantErr: true,
		},
		{
			name: "invalid log level",
			yaml: `
service:
  log_level: invalid
`,
			wantErr: true,
		},
		{
			name: "api enabled without credentials",
			yaml: `
api:
  enabled: true
`,
			wantErr: true,
		},
		{
			name: "token without scopes",
			yaml: `
api:
  enabled: true
  auth:
    tokens:
      - token: abc
`,
			wantErr: true,
		},
		{
			name: "token with unknown scope",
			yaml: `
api:
  enabled: true
  auth:
    tokens:
      - token: abc
        scopes: ["jobs:rw"]
`,
			wantErr: true,
		},
		{
			name: "negative timeout",
			yaml: `
extension:
  timeouts:
    notify: -1s
`,
			wantErr: true,
		},
		{
			name:    "malformed yaml",
			yaml:    "service: [",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.yaml), 0644); err != nil {
				t.Fatalf("failed to write test config: %v", err)
			}

			cfg, err := Load(configPath)

			if (err != nil) != tt.wantErr {
				t.Errorf("Load() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if !tt.wantErr && tt.checkFn != nil {
				tt.checkFn(t, tmpDir, cfg)
			}
		})
	}
}

func TestLoadDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte("service:\n  name: from-dir\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load(dir) failed: %v", err)
	}
	if cfg.Service.Name != "from-dir" {
		t.Errorf("service.name = %q", cfg.Service.Name)
	}
	if cfg.SourcePath != filepath.Join(tmpDir, "config.yaml") {
		t.Errorf("source path = %q", cfg.SourcePath)
	}

	if _, err := Load(t.TempDir()); err == nil {
		t.Error("expected error for directory without config.yaml")
	}
}

func TestResolve(t *testing.T) {
	t.Run("explicit wins", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "/from/env.yaml")
		got, err := Resolve("/explicit.yaml")
		if err != nil || got != "/explicit.yaml" {
			t.Errorf("Resolve() = %q, %v", got, err)
		}
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "/from/env.yaml")
		got, err := Resolve("")
		if err != nil || got != "/from/env.yaml" {
			t.Errorf("Resolve() = %q, %v", got, err)
		}
	})

	t.Run("working directory", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "")
		dir := t.TempDir()
		t.Chdir(dir)

		if _, err := Resolve(""); err == nil {
			t.Fatal("expected error with no config present")
		}

		if err := os.WriteFile(filepath.Join(dir, "config.yaml"), nil, 0644); err != nil {
			t.Fatal(err)
		}
		got, err := Resolve("")
		if err != nil || got != "config.yaml" {
			t.Errorf("Resolve() = %q, %v", got, err)
		}
	})
}

func TestInterpolateEnv(t *testing.T) {
	tests := []struct {
		name  string
		input string
		env   map[string]string
		want  string
	}{
		{
			name:  "simple replacement",
			input: "path: ${ELASTICD_TEST_HOME}/data",
			env:   map[string]string{"ELASTICD_TEST_HOME": "/users/test"},
			want:  "path: /users/test/data",
		},
		{
			name:  "multiple vars",
			input: "${ELASTICD_TEST_USER}:${ELASTICD_TEST_PASS}",
			env: map[string]string{
				"ELASTICD_TEST_USER": "admin",
				"ELASTICD_TEST_PASS": "secret",
			},
			want: "admin:secret",
		},
		{
			name:  "undefined var unchanged",
			input: "key: ${ELASTICD_TEST_UNDEFINED}",
			want:  "key: ${ELASTICD_TEST_UNDEFINED}",
		},
		{
			name:  "no vars",
			input: "plain text",
			want:  "plain text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			got := interpolateEnv(tt.input)
			if got != tt.want {
				t.Errorf("interpolateEnv() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(c *Config) {}},
		{name: "missing state path", mutate: func(c *Config) { c.State.Path = "" }, wantErr: true},
		{name: "no plugin roots", mutate: func(c *Config) { c.PluginRoots = nil }, wantErr: true},
		{name: "blank plugin root", mutate: func(c *Config) { c.PluginRoots = []string{" "} }, wantErr: true},
		{name: "negative rescan", mutate: func(c *Config) { c.RescanInterval = -time.Second }, wantErr: true},
		{name: "negative journal retention", mutate: func(c *Config) { c.State.JournalRetention = -time.Hour }, wantErr: true},
		{name: "negative ping jitter", mutate: func(c *Config) { c.Ping.Jitter = -time.Second }, wantErr: true},
		{name: "negative ping concurrency", mutate: func(c *Config) { c.Ping.Concurrency = -1 }, wantErr: true},
		{name: "bad log format", mutate: func(c *Config) { c.Service.LogFormat = "xml" }, wantErr: true},
		{name: "uppercase log level accepted", mutate: func(c *Config) { c.Service.LogLevel = "WARN" }},
		{
			name: "api with legacy key",
			mutate: func(c *Config) {
				c.API.Enabled = true
				c.API.Auth.APIKey = "k"
			},
		},
		{
			name: "api without listen",
			mutate: func(c *Config) {
				c.API.Enabled = true
				c.API.Listen = ""
				c.API.Auth.APIKey = "k"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
