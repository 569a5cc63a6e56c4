package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Casetree CasetreeConfig `yaml:"casetree"`
}

// CasetreeConfig is the project configuration.
type CasetreeConfig struct {
	Store   StoreConfig   `yaml:"store"`
	Signals SignalsConfig `yaml:"signals"`
	API     APIConfig     `yaml:"api"`
	Logging LoggingConfig `yaml:"logging"`
}

// StoreConfig selects and tunes the persistence backend.
type StoreConfig struct {
	Mode  string      `yaml:"mode"` // redis|file
	Redis RedisConfig `yaml:"redis"`
	File  FileConfig  `yaml:"file"`
}

// RedisConfig controls the Redis backend.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// FileConfig controls the file backend.
type FileConfig struct {
	Dir          string        `yaml:"dir"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// SignalsConfig controls signal ledger behavior.
type SignalsConfig struct {
	CascadeDelete *bool `yaml:"cascade_delete"`
}

// APIConfig controls the HTTP surface.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
