package config

import (
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Port != DefaultPort {
		t.Errorf("expected default port %d, got %d", DefaultPort, cfg.Port)
	}
	if cfg.DebounceMs != 150 {
		t.Errorf("expected 150ms debounce, got %d", cfg.DebounceMs)
	}
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	m := NewManagerAt(filepath.Join(t.TempDir(), "config.json"))
	if err := m.Load(); err != nil {
		t.Fatalf("Load with missing file: %v", err)
	}
	if m.Get().Port != DefaultPort {
		t.Errorf("defaults lost: port %d", m.Get().Port)
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	m := NewManagerAt(path)
	cfg := DefaultConfig()
	cfg.Port = 9999
	cfg.BindingsPath = "/tmp/bindings.yaml"
	cfg.DisableTray = true
	m.Set(cfg)
	if err := m.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	m2 := NewManagerAt(path)
	if err := m2.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := m2.Get()
	if got.Port != 9999 || got.BindingsPath != "/tmp/bindings.yaml" || !got.DisableTray {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("WHOOSHPAD_PORT", "9001")
	t.Setenv("WHOOSHPAD_LOG_LEVEL", "debug")
	t.Setenv("WHOOSHPAD_DEBOUNCE_MS", "not-a-number")

	m := NewManagerAt(filepath.Join(t.TempDir(), "config.json"))
	m.ApplyEnv()

	cfg := m.Get()
	if cfg.Port != 9001 {
		t.Errorf("env port not applied: %d", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("env log level not applied: %s", cfg.LogLevel)
	}
	if cfg.DebounceMs != 150 {
		t.Errorf("invalid env debounce should be ignored, got %d", cfg.DebounceMs)
	}
}
