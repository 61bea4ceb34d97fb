package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

type Config struct {
	ClaudeRoot   string `toml:"claude_root"`
	DBPath       string `toml:"db_path"`
	Workers      int    `toml:"workers"`
	MaxLineBytes int    `toml:"max_line_bytes"`
	LogLevel     string `toml:"log_level"`
}

// Path returns the config file location.
func Path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "aist", "config.toml"), nil
}

// Load reads the config file if present and fills defaults. AIST_CLAUDE_ROOT
// and AIST_DB override the file.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ClaudeRoot: filepath.Join(home, ".claude", "projects"),
		DBPath:     filepath.Join(home, ".config", "aist", "aist.db"),
		LogLevel:   "info",
	}

	cfgPath := filepath.Join(home, ".config", "aist", "config.toml")
	if _, err := os.Stat(cfgPath); err == nil {
		md, err := toml.DecodeFile(cfgPath, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config %s: %w", cfgPath, err)
		}
		if undec := md.Undecoded(); len(undec) > 0 {
			return nil, fmt.Errorf("parse config %s: unknown key %q", cfgPath, undec[0].String())
		}
	}

	if v := os.Getenv("AIST_CLAUDE_ROOT"); v != "" {
		cfg.ClaudeRoot = v
	}
	if v := os.Getenv("AIST_DB"); v != "" {
		cfg.DBPath = v
	}

	if cfg.Workers < 0 {
		return nil, fmt.Errorf("config: workers must be >= 0, got %d", cfg.Workers)
	}
	if cfg.MaxLineBytes < 0 {
		return nil, fmt.Errorf("config: max_line_bytes must be >= 0, got %d", cfg.MaxLineBytes)
	}

	cfg.ClaudeRoot = expandHome(cfg.ClaudeRoot, home)
	cfg.DBPath = expandHome(cfg.DBPath, home)
	return cfg, nil
}

func expandHome(path, home string) string {
	if path == "~" {
		return home
	}
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		return filepath.Join(home, path[2:])
	}
	return path
}
