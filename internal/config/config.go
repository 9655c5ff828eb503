package config

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the external configuration surface. Locating the program binary
// is the caller's problem: Program must arrive already resolved, optionally
// with a working directory and the relative-invocation hint for programs
// that find their sibling files only through the working directory.
type Config struct {
	Port     int    `yaml:"port"`
	Token    string `yaml:"token"`
	Program  string `yaml:"program"`
	WorkDir  string `yaml:"workdir,omitempty"`
	Relative bool   `yaml:"relative,omitempty"`
	Shell    string `yaml:"shell,omitempty"`
	DBPath   string `yaml:"db,omitempty"`
	Coalesce bool   `yaml:"coalesce,omitempty"`

	ConfigPath string `yaml:"-"`
}

func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	cfg := &Config{
		Port:       8766,
		DBPath:     filepath.Join(homeDir, ".config", "termbridge", "termbridge.db"),
		ConfigPath: filepath.Join(homeDir, ".config", "termbridge", "config.yaml"),
	}

	if err := cfg.loadFromFile(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	flag.IntVar(&cfg.Port, "port", cfg.Port, "server port (1-65535)")
	flag.StringVar(&cfg.Token, "token", cfg.Token, "authentication token (auto-generated if empty)")
	flag.StringVar(&cfg.Program, "program", cfg.Program, "resolved path of the program to bridge")
	flag.StringVar(&cfg.WorkDir, "workdir", cfg.WorkDir, "working directory for the program (optional)")
	flag.BoolVar(&cfg.Relative, "relative", cfg.Relative, "invoke the program by relative name inside workdir")
	flag.StringVar(&cfg.Shell, "shell", cfg.Shell, "shell hosting the program (default $SHELL, then /bin/sh)")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "run log database path (empty disables recording)")
	flag.BoolVar(&cfg.Coalesce, "coalesce", cfg.Coalesce, "batch output chunks before broadcasting")
	flag.Parse()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.Token == "" {
		token, err := generateToken()
		if err != nil {
			return nil, fmt.Errorf("failed to generate token: %w", err)
		}
		cfg.Token = token
		if err := cfg.saveToFile(); err != nil {
			return nil, fmt.Errorf("failed to save config file: %w", err)
		}
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", c.Port)
	}
	if c.Program == "" {
		return fmt.Errorf("program is required: pass -program or set it in %s", c.ConfigPath)
	}
	if c.Relative && c.WorkDir == "" {
		return fmt.Errorf("relative invocation requires a workdir")
	}
	return nil
}

func (c *Config) loadFromFile() error {
	data, err := os.ReadFile(c.ConfigPath)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("invalid YAML in %s: %w", c.ConfigPath, err)
	}
	return nil
}

func (c *Config) saveToFile() error {
	dir := filepath.Dir(c.ConfigPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(c.ConfigPath, data, 0o600)
}

func generateToken() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
