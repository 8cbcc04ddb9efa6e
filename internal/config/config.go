// Package config loads the dh5 command configuration from a TOML file and
// DH5_* environment variables. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// Config holds the settings shared by all dh5 subcommands.
type Config struct {
	Operator string   // recorded in new operations; empty means the OS user
	Tool     string   // recorded in new operations
	LogLevel string   // zerolog level name
	Strict   bool     // treat validation warnings as errors
	Catalog  string   // SQLite catalog path
	Boards   []string // BOARDS written by create
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Tool:     "dh5io",
		LogLevel: "info",
		Catalog:  filepath.Join(dataDir(), "dh5io", "catalog.db"),
	}
}

// DefaultPath returns ~/.config/dh5io/config.toml, or the equivalent of the
// platform.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "dh5io.toml")
	}
	return filepath.Join(dir, "dh5io", "config.toml")
}

func dataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share")
	}
	return "."
}

type fileConfig struct {
	Operator string   `toml:"operator"`
	Tool     string   `toml:"tool"`
	LogLevel string   `toml:"log_level"`
	Strict   bool     `toml:"strict"`
	Catalog  string   `toml:"catalog"`
	Boards   []string `toml:"boards"`
}

type envConfig struct {
	Operator *string `env:"DH5_OPERATOR"`
	Tool     *string `env:"DH5_TOOL"`
	LogLevel *string `env:"DH5_LOG_LEVEL"`
	Strict   *bool   `env:"DH5_STRICT"`
	Catalog  *string `env:"DH5_CATALOG"`
}

// Load reads the configuration. An empty path selects DefaultPath, which may
// be absent; an explicit path must exist. environ replaces the process
// environment when non-nil.
func Load(path string, environ map[string]string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if err := loadFile(path, &cfg); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg, environ); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}

	if meta.IsDefined("operator") {
		cfg.Operator = strings.TrimSpace(raw.Operator)
	}
	if meta.IsDefined("tool") {
		if tool := strings.TrimSpace(raw.Tool); tool != "" {
			cfg.Tool = tool
		}
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("strict") {
		cfg.Strict = raw.Strict
	}
	if meta.IsDefined("catalog") {
		cfg.Catalog = expandHome(strings.TrimSpace(raw.Catalog))
	}
	if meta.IsDefined("boards") {
		cfg.Boards = normalizeBoards(raw.Boards)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config %s: unknown key %q", path, undecoded[0].String())
	}
	return nil
}

func applyEnv(cfg *Config, environ map[string]string) error {
	var e envConfig
	if err := env.ParseWithOptions(&e, env.Options{Environment: environ}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if e.Operator != nil {
		cfg.Operator = strings.TrimSpace(*e.Operator)
	}
	if e.Tool != nil && strings.TrimSpace(*e.Tool) != "" {
		cfg.Tool = strings.TrimSpace(*e.Tool)
	}
	if e.LogLevel != nil {
		cfg.LogLevel = strings.TrimSpace(*e.LogLevel)
	}
	if e.Strict != nil {
		cfg.Strict = *e.Strict
	}
	if e.Catalog != nil {
		cfg.Catalog = expandHome(strings.TrimSpace(*e.Catalog))
	}
	return nil
}

func expandHome(path string) string {
	rest, ok := strings.CutPrefix(path, "~/")
	if !ok {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, rest)
}

func normalizeBoards(in []string) []string {
	out := make([]string, 0, len(in))
	for _, b := range in {
		if v := strings.TrimSpace(b); v != "" {
			out = append(out, v)
		}
	}
	return out
}
