package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
operator = " alice "
tool = "recorder"
log_level = "debug"
strict = true
catalog = "/tmp/cat.db"
boards = ["Board A", " ", "Board B"]
`)
	cfg, err := Load(path, map[string]string{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := Config{
		Operator: "alice",
		Tool:     "recorder",
		LogLevel: "debug",
		Strict:   true,
		Catalog:  "/tmp/cat.db",
		Boards:   []string{"Board A", "Board B"},
	}
	if !reflect.DeepEqual(cfg, want) {
		t.Errorf("Load() = %+v, want %+v", cfg, want)
	}
}

func TestLoadKeepsDefaultsForUnsetKeys(t *testing.T) {
	path := writeConfig(t, `operator = "bob"`)
	cfg, err := Load(path, map[string]string{})
	if err != nil {
		t.Fatal(err)
	}
	def := Default()
	if cfg.Operator != "bob" || cfg.Tool != def.Tool || cfg.LogLevel != def.LogLevel || cfg.Catalog != def.Catalog {
		t.Errorf("Load() = %+v", cfg)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
operator = "alice"
strict = true
`)
	cfg, err := Load(path, map[string]string{
		"DH5_OPERATOR":  "carol",
		"DH5_STRICT":    "false",
		"DH5_LOG_LEVEL": "warn",
		"DH5_TOOL":      "  ",
		"DH5_CATALOG":   "/data/catalog.db",
	})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Operator != "carol" || cfg.Strict || cfg.LogLevel != "warn" || cfg.Catalog != "/data/catalog.db" {
		t.Errorf("Load() = %+v", cfg)
	}
	if cfg.Tool != "dh5io" {
		t.Errorf("blank DH5_TOOL replaced the tool: %q", cfg.Tool)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml"), map[string]string{}); err == nil {
		t.Error("missing explicit config accepted")
	}

	path := writeConfig(t, `operater = "typo"`)
	_, err := Load(path, map[string]string{})
	if err == nil || !strings.Contains(err.Error(), "operater") {
		t.Errorf("unknown key err = %v", err)
	}

	path = writeConfig(t, `strict = true`)
	if _, err := Load(path, map[string]string{"DH5_STRICT": "maybe"}); err == nil {
		t.Error("invalid DH5_STRICT accepted")
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := expandHome("~/x/catalog.db"); got != filepath.Join(home, "x", "catalog.db") {
		t.Errorf("expandHome = %q", got)
	}
	if got := expandHome("/abs"); got != "/abs" {
		t.Errorf("expandHome(/abs) = %q", got)
	}
}
