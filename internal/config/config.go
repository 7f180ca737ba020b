// Package config loads the optional YAML file carrying host/port and
// timeout defaults for an invocation, overridden by CLI flags and the
// invocation JSON itself.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level cdpskill configuration.
type Config struct {
	Chrome  ChromeConfig  `yaml:"chrome"`
	Step    StepConfig    `yaml:"step"`
	Storage StorageConfig `yaml:"storage"`
}

// ChromeConfig locates the CDP debugging endpoint.
type ChromeConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StepConfig carries defaults applied to every step unless the invocation
// or the step itself overrides them.
type StepConfig struct {
	Timeout        time.Duration `yaml:"timeout"`
	InlineLimit    int           `yaml:"inline_limit"`
	SPAPollWindow  time.Duration `yaml:"spa_poll_window"`
	MaxDiffItems   int           `yaml:"max_diff_items"`
}

// StorageConfig locates the directories cdpskill writes artifacts to.
type StorageConfig struct {
	TmpDir      string `yaml:"tmp_dir"`
	ProfilesDir string `yaml:"profiles_dir"`
}

// LoadFile reads a YAML configuration file and applies defaults to every
// field the file left unset.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a Config with every field at its default value, for
// callers that run without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Chrome.Host == "" {
		c.Chrome.Host = "localhost"
	}
	if c.Chrome.Port <= 0 {
		c.Chrome.Port = 9222
	}
	if c.Step.Timeout <= 0 {
		c.Step.Timeout = 5 * time.Second
	}
	if c.Step.InlineLimit <= 0 {
		c.Step.InlineLimit = 9000
	}
	if c.Step.SPAPollWindow <= 0 {
		c.Step.SPAPollWindow = 500 * time.Millisecond
	}
	if c.Step.MaxDiffItems <= 0 {
		c.Step.MaxDiffItems = 50
	}
	if c.Storage.TmpDir == "" {
		c.Storage.TmpDir = os.TempDir()
	}
	if c.Storage.ProfilesDir == "" {
		c.Storage.ProfilesDir = c.Storage.TmpDir
	}
}
