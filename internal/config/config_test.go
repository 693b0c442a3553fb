package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := Validate(cfg); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if len(cfg.Relays.Bootstrap) == 0 {
		t.Fatal("default config must carry a bootstrap relay list")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("missing config file should not error: %v", err)
	}
	if len(cfg.Relays.Bootstrap) == 0 {
		t.Fatal("expected default bootstrap relays")
	}
}

func TestLoadAppliesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ngit.yaml")
	contents := []byte("identity:\n  npub: npub1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq\nrelays:\n  bootstrap:\n    - wss://relay.example.com\n")
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(cfg.Relays.Bootstrap) != 1 || cfg.Relays.Bootstrap[0] != "wss://relay.example.com" {
		t.Fatalf("expected overridden bootstrap relay, got %v", cfg.Relays.Bootstrap)
	}
	if cfg.Relays.Policy.ConnectTimeoutMs != 3000 {
		t.Fatalf("expected default connect timeout to fill in, got %d", cfg.Relays.Policy.ConnectTimeoutMs)
	}
}

func TestValidateRejectsBadNpub(t *testing.T) {
	cfg := Default()
	cfg.Identity.Npub = "not-an-npub"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for malformed npub")
	}
}

func TestValidateRejectsEmptyBootstrap(t *testing.T) {
	cfg := Default()
	cfg.Relays.Bootstrap = nil
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for empty bootstrap list")
	}
}

func TestIsTestModeReflectsEnv(t *testing.T) {
	os.Unsetenv("NGITTEST")
	if IsTestMode() {
		t.Fatal("expected test mode off when NGITTEST unset")
	}
	os.Setenv("NGITTEST", "1")
	defer os.Unsetenv("NGITTEST")
	if !IsTestMode() {
		t.Fatal("expected test mode on when NGITTEST set")
	}
}

func TestLocalCachePath(t *testing.T) {
	cfg := Default()
	got := LocalCachePath(cfg, "/repo/.git")
	want := "/repo/.git/nostr-cache.sqlite"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestGlobalCachePathTestMode(t *testing.T) {
	os.Setenv("NGITTEST", "1")
	defer os.Unsetenv("NGITTEST")
	cfg := Default()
	got, err := GlobalCachePath(cfg, "/repo/.git")
	if err != nil {
		t.Fatal(err)
	}
	want := "/repo/.git/test-global-cache.sqlite"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
