package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/zfsync/zfsync/internal/retention"
)

// DatasetPair maps a local source dataset to its replica on the remote
// host. Pairs are processed in configuration order.
type DatasetPair struct {
	Source string `yaml:"source"`
	Target string `yaml:"target"`
}

// Remote identifies the replica host. Host is handed to the remote shell
// verbatim, so a user@host form works. SSHOptions are inserted before the
// host on every invocation.
type Remote struct {
	Host       string   `yaml:"host"`
	SSHOptions []string `yaml:"ssh_options,omitempty"`
}

// Logging controls log output.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Daemon configures scheduled operation. Schedule is a cron expression;
// MetricsAddr exposes Prometheus metrics when non-empty.
type Daemon struct {
	Schedule    string `yaml:"schedule"`
	MetricsAddr string `yaml:"metrics_addr,omitempty"`
}

type Config struct {
	Remote    Remote           `yaml:"remote"`
	Retention retention.Policy `yaml:"retention"`
	Datasets  []DatasetPair    `yaml:"datasets"`
	Logging   Logging          `yaml:"logging"`
	Daemon    Daemon           `yaml:"daemon"`
}

func DefaultConfig() *Config {
	return &Config{
		Retention: retention.Policy{
			Monthly: 6,
			Weekly:  5,
			Daily:   7,
		},
		Logging: Logging{
			Level:  "info",
			Format: "console",
		},
		Daemon: Daemon{
			Schedule:    "0 2 * * *",
			MetricsAddr: ":2112",
		},
	}
}

func ConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".zfsync", "config.yaml")
}

// envPattern matches $(VAR_NAME) placeholders in the raw config text.
var envPattern = regexp.MustCompile(`\$\(([A-Za-z0-9_]+)\)`)

func expandEnvVars(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(m string) string {
		return os.Getenv(envPattern.FindStringSubmatch(m)[1])
	})
}

// Load reads the config file at path, or ConfigPath() when path is empty.
// A missing file yields the defaults. $(ENV_VAR) placeholders in the raw
// text are expanded before parsing, so secrets can stay out of the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = ConfigPath()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes the config to path, or ConfigPath() when path is empty,
// creating the directory if needed.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate checks that the config describes a runnable replication batch.
// Commands that only read state work on partial configs and skip this.
func (c *Config) Validate() error {
	if c.Remote.Host == "" {
		return fmt.Errorf("remote.host is required")
	}
	if err := c.Retention.Validate(); err != nil {
		return err
	}
	if len(c.Datasets) == 0 {
		return fmt.Errorf("no dataset pairs configured")
	}
	seen := make(map[string]bool)
	for i, pair := range c.Datasets {
		if pair.Source == "" || pair.Target == "" {
			return fmt.Errorf("dataset pair %d: source and target are required", i)
		}
		if seen[pair.Source] {
			return fmt.Errorf("dataset %s is configured twice", pair.Source)
		}
		seen[pair.Source] = true
	}
	return nil
}
