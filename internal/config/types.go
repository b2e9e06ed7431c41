package config

import "time"

// Config represents the complete elasticd configuration.
type Config struct {
	Service        ServiceConfig   `yaml:"service"`
	State          StateConfig     `yaml:"state"`
	PluginRoots    []string        `yaml:"plugin_roots"`
	RescanInterval time.Duration   `yaml:"rescan_interval"`
	Extension      ExtensionConfig `yaml:"extension"`
	Ping           PingConfig      `yaml:"ping"`
	API            APIConfig       `yaml:"api,omitempty"`

	// SourcePath is the absolute path the config was loaded from.
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// StateConfig defines state storage settings. The journal database lives at
// Path and the PID lock next to it. Journal entries older than
// JournalRetention are pruned by the scheduler; 0 keeps them forever.
type StateConfig struct {
	Path             string        `yaml:"path"`
	JournalRetention time.Duration `yaml:"journal_retention"`
}

// ExtensionConfig defines how plugin calls are bounded.
type ExtensionConfig struct {
	Timeouts    TimeoutsConfig `yaml:"timeouts"`
	GracePeriod time.Duration  `yaml:"grace_period"`
}

// TimeoutsConfig defines per-operation timeouts.
type TimeoutsConfig struct {
	Capability       time.Duration `yaml:"capability"`
	CreateAgent      time.Duration `yaml:"create_agent"`
	ServerPing       time.Duration `yaml:"server_ping"`
	ShouldAssignWork time.Duration `yaml:"should_assign_work"`
	Notify           time.Duration `yaml:"notify"`
}

// PingConfig controls the periodic server ping. Interval 0 disables it.
type PingConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Jitter      time.Duration `yaml:"jitter"`
	Concurrency int           `yaml:"concurrency"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	// APIKey is the legacy single bearer token (admin/full access).
	// Prefer Tokens for scoped access.
	APIKey string     `yaml:"api_key"`
	Tokens []APIToken `yaml:"tokens,omitempty"`
}

// APIToken defines a bearer token and its scopes.
type APIToken struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// ChecksumManifest is the on-disk format of .checksums.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "elasticd",
			LogLevel:  "info",
			LogFormat: "json",
		},
		State: StateConfig{
			Path:             "./data/elasticd.db",
			JournalRetention: 7 * 24 * time.Hour,
		},
		PluginRoots:    []string{"./plugins"},
		RescanInterval: 30 * time.Second,
		Extension: ExtensionConfig{
			Timeouts: TimeoutsConfig{
				Capability:       10 * time.Second,
				CreateAgent:      60 * time.Second,
				ServerPing:       30 * time.Second,
				ShouldAssignWork: 10 * time.Second,
				Notify:           10 * time.Second,
			},
			GracePeriod: 5 * time.Second,
		},
		Ping: PingConfig{
			Interval:    time.Minute,
			Jitter:      5 * time.Second,
			Concurrency: 4,
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8080",
		},
	}
}
