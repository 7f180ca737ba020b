package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFile_AppliesDefaultsForUnsetFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cdpskill.yaml")
	contents := "chrome:\n  port: 9333\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Chrome.Port != 9333 {
		t.Fatalf("expected configured port to survive, got %d", cfg.Chrome.Port)
	}
	if cfg.Chrome.Host != "localhost" {
		t.Fatalf("expected default host, got %q", cfg.Chrome.Host)
	}
	if cfg.Step.Timeout != 5*time.Second {
		t.Fatalf("expected default step timeout, got %v", cfg.Step.Timeout)
	}
	if cfg.Step.InlineLimit != 9000 {
		t.Fatalf("expected default inline limit, got %d", cfg.Step.InlineLimit)
	}
}

func TestLoadFile_MissingFileReturnsError(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestDefault_NeverReturnsZeroValues(t *testing.T) {
	cfg := Default()
	if cfg.Chrome.Port == 0 || cfg.Step.Timeout == 0 || cfg.Storage.TmpDir == "" {
		t.Fatalf("expected Default() to populate every field, got %+v", cfg)
	}
}
