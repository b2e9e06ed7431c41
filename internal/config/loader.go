package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/elasticd/internal/auth"
)

// EnvConfigPath names the environment variable consulted by Resolve.
const EnvConfigPath = "ELASTICD_CONFIG"

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Resolve picks the config file to load.
// Priority order: explicit path (--config), $ELASTICD_CONFIG, ./config.yaml.
func Resolve(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p, nil
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml", nil
	}
	return "", fmt.Errorf("no config found (checked: --config, $%s, ./config.yaml)", EnvConfigPath)
}

// Load reads, verifies and validates configuration from a file. A directory
// is accepted and must contain config.yaml. Relative plugin roots and the state
// path are resolved against the directory holding the file.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	if err := verifyChecksums(absPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.SourcePath = absPath
	resolvePaths(cfg, filepath.Dir(absPath))

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Parse interpolates environment variables and decodes data over Defaults().
// Keys absent from data keep their default value; explicit zero values are kept.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	interpolated := interpolateEnv(string(data))
	if err := yaml.Unmarshal([]byte(interpolated), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return cfg, nil
}

func resolvePaths(cfg *Config, baseDir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(baseDir, p)
	}
	for i, root := range cfg.PluginRoots {
		cfg.PluginRoots[i] = abs(root)
	}
	cfg.State.Path = abs(cfg.State.Path)
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// Left in place so validation can name the missing variable.
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.Service.LogLevel)] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if f := cfg.Service.LogFormat; f != "json" && f != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", f)
	}

	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}
	if cfg.State.JournalRetention < 0 {
		return fmt.Errorf("state.journal_retention must not be negative")
	}

	if len(cfg.PluginRoots) == 0 {
		return fmt.Errorf("plugin_roots is required")
	}
	for i, root := range cfg.PluginRoots {
		if strings.TrimSpace(root) == "" {
			return fmt.Errorf("plugin_roots[%d] is empty", i)
		}
	}

	if cfg.RescanInterval < 0 {
		return fmt.Errorf("rescan_interval must not be negative")
	}

	t := cfg.Extension.Timeouts
	for name, d := range map[string]time.Duration{
		"capability":         t.Capability,
		"create_agent":       t.CreateAgent,
		"server_ping":        t.ServerPing,
		"should_assign_work": t.ShouldAssignWork,
		"notify":             t.Notify,
	} {
		if d < 0 {
			return fmt.Errorf("extension.timeouts.%s must not be negative", name)
		}
	}
	if cfg.Extension.GracePeriod < 0 {
		return fmt.Errorf("extension.grace_period must not be negative")
	}

	if cfg.Ping.Interval < 0 {
		return fmt.Errorf("ping.interval must not be negative")
	}
	if cfg.Ping.Jitter < 0 {
		return fmt.Errorf("ping.jitter must not be negative")
	}
	if cfg.Ping.Concurrency < 0 {
		return fmt.Errorf("ping.concurrency must not be negative")
	}

	if cfg.API.Enabled {
		if cfg.API.Listen == "" {
			return fmt.Errorf("api.listen is required when the API is enabled")
		}
		if err := unresolved("api.auth.api_key", cfg.API.Auth.APIKey); err != nil {
			return err
		}
		if cfg.API.Auth.APIKey == "" && len(cfg.API.Auth.Tokens) == 0 {
			return errors.New("api.auth: api_key or tokens is required when the API is enabled")
		}
		for i, tok := range cfg.API.Auth.Tokens {
			field := fmt.Sprintf("api.auth.tokens[%d].token", i)
			if tok.Token == "" {
				return fmt.Errorf("%s is required", field)
			}
			if err := unresolved(field, tok.Token); err != nil {
				return err
			}
			if len(tok.Scopes) == 0 {
				return fmt.Errorf("api.auth.tokens[%d].scopes must be non-empty", i)
			}
			if err := auth.ValidateScopes(tok.Scopes); err != nil {
				return fmt.Errorf("api.auth.tokens[%d].scopes: %w", i, err)
			}
		}
	}

	return nil
}

// unresolved reports a ${VAR} placeholder left in value after interpolation.
func unresolved(field, value string) error {
	matches := envVarPattern.FindStringSubmatch(value)
	if len(matches) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
	}
	return nil
}
