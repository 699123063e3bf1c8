package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRelayPresetsDefaultsWhenPathEmpty(t *testing.T) {
	presets, err := LoadRelayPresets("")
	if err != nil {
		t.Fatalf("LoadRelayPresets: %v", err)
	}
	if len(presets.Resolve("popular")) == 0 {
		t.Fatal("expected a default 'popular' preset")
	}
}

func TestLoadRelayPresetsFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "presets.yaml")
	content := "custom:\n  - wss://custom.example\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	presets, err := LoadRelayPresets(path)
	if err != nil {
		t.Fatalf("LoadRelayPresets: %v", err)
	}
	got := presets.Resolve("custom")
	if len(got) != 1 || got[0] != "wss://custom.example" {
		t.Fatalf("Resolve(custom) = %v", got)
	}
}

func TestLoadRelayPresetsMissingFileFallsBack(t *testing.T) {
	presets, err := LoadRelayPresets(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadRelayPresets: %v", err)
	}
	if len(presets.Resolve("dvms")) == 0 {
		t.Fatal("expected fallback to default presets")
	}
}
