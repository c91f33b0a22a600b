package cmd

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigFallsBackToDefaultsWhenFileMissing(t *testing.T) {
	orig := configPath
	defer func() { configPath = orig }()

	configPath = filepath.Join(t.TempDir(), "does-not-exist.yaml")

	cfg := loadConfig()
	if cfg.Server.Port == 0 {
		t.Fatal("expected defaulted config to have a non-zero server port")
	}
}

func TestLoadConfigFallsBackToDefaultsOnParseFailure(t *testing.T) {
	orig := configPath
	defer func() { configPath = orig }()

	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("not: [valid: yaml"), 0o644); err != nil {
		t.Fatalf("failed to write broken config: %v", err)
	}
	configPath = path

	cfg := loadConfig()
	if cfg.Server.Port == 0 {
		t.Fatal("expected defaulted config to have a non-zero server port")
	}
}

func TestLoadConfigReadsValidFile(t *testing.T) {
	orig := configPath
	defer func() { configPath = orig }()

	path := filepath.Join(t.TempDir(), "helixfactory.yaml")
	contents := `
server:
  port: 9999
  nats_port: 4333
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	configPath = path

	cfg := loadConfig()
	if cfg.Server.Port != 9999 {
		t.Errorf("expected server port 9999 from file, got %d", cfg.Server.Port)
	}
}
