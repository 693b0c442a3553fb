// Package config loads the ngit remote helper's configuration: signer
// material, relay bootstrap lists, cache directory overrides and transport
// preferences.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete ngit configuration.
type Config struct {
	Identity  Identity  `yaml:"identity"`
	Relays    Relays    `yaml:"relays"`
	Cache     Cache     `yaml:"cache"`
	Transport Transport `yaml:"transport"`
	Logging   Logging   `yaml:"logging"`
}

// Identity contains the user's Nostr key material or remote-signer reference.
// Nsec is never read from the config file itself; it is read from the
// NGIT_NSEC environment variable if set, or left empty to trigger a
// remote-signer (NIP-46) flow.
type Identity struct {
	Npub      string `yaml:"npub"`
	Nsec      string `yaml:"-"`
	Bunker    string `yaml:"bunker"` // NIP-46 bunker:// connection string
	RelayHint string `yaml:"relay_hint"`
}

// Relays contains bootstrap relay and connection-policy settings.
type Relays struct {
	Bootstrap []string    `yaml:"bootstrap"`
	Policy    RelayPolicy `yaml:"policy"`
}

// RelayPolicy mirrors the C2 contract's timeouts and fanout limits.
type RelayPolicy struct {
	ConnectTimeoutMs  int `yaml:"connect_timeout_ms"`
	EventsTimeoutMs   int `yaml:"events_timeout_ms"`
	MaxConcurrentSubs int `yaml:"max_concurrent_subs"`
}

// Cache contains local/global event cache path overrides.
type Cache struct {
	GlobalPath string `yaml:"global_path"` // empty means <config-dir>/cache.sqlite
	LocalName  string `yaml:"local_name"`  // filename under .git/, default nostr-cache.sqlite
}

// Transport contains per-protocol transport preferences.
type Transport struct {
	SSHKeyPath  string   `yaml:"ssh_key_path"`
	PreferOrder []string `yaml:"prefer_order"` // overrides default candidate ordering, read candidates first
}

// Logging mirrors the ambient logging stack's config shape.
type Logging struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // text|json
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
var validLogFormats = map[string]bool{"text": true, "json": true}

// DefaultBootstrapRelays is the built-in fallback list used when neither a
// config file nor a repository announcement supplies relay hints, and when
// NGITTEST is unset. Grounded on the original's hardcoded `default()` relay
// lists (client.rs), trimmed to well-known public relays.
var DefaultBootstrapRelays = []string{
	"wss://relay.damus.io",
	"wss://relay.nostr.band",
	"wss://nos.lol",
	"wss://purplepag.es",
}

// TestBootstrapRelays is used instead of DefaultBootstrapRelays when
// NGITTEST is set, per §6.
var TestBootstrapRelays = []string{
	"ws://localhost:7777",
}

// IsTestMode reports whether NGITTEST is set, switching relay bootstrap and
// global cache placement per §6.
func IsTestMode() bool {
	_, ok := os.LookupEnv("NGITTEST")
	return ok
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	bootstrap := DefaultBootstrapRelays
	if IsTestMode() {
		bootstrap = TestBootstrapRelays
	}
	return &Config{
		Relays: Relays{
			Bootstrap: bootstrap,
			Policy: RelayPolicy{
				ConnectTimeoutMs:  3000,
				EventsTimeoutMs:   7000,
				MaxConcurrentSubs: 15,
			},
		},
		Cache: Cache{
			LocalName: "nostr-cache.sqlite",
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads and parses a configuration file at path. A missing file is not
// an error: defaults are returned instead, since git remote helpers must
// work with no configuration present.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return finishLoad(cfg)
			}
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		if len(cfg.Relays.Bootstrap) == 0 {
			cfg.Relays.Bootstrap = Default().Relays.Bootstrap
		}
		if cfg.Relays.Policy.ConnectTimeoutMs == 0 {
			cfg.Relays.Policy.ConnectTimeoutMs = Default().Relays.Policy.ConnectTimeoutMs
		}
		if cfg.Relays.Policy.EventsTimeoutMs == 0 {
			cfg.Relays.Policy.EventsTimeoutMs = Default().Relays.Policy.EventsTimeoutMs
		}
		if cfg.Relays.Policy.MaxConcurrentSubs == 0 {
			cfg.Relays.Policy.MaxConcurrentSubs = Default().Relays.Policy.MaxConcurrentSubs
		}
		if cfg.Cache.LocalName == "" {
			cfg.Cache.LocalName = Default().Cache.LocalName
		}
		if cfg.Logging.Level == "" {
			cfg.Logging.Level = Default().Logging.Level
		}
		if cfg.Logging.Format == "" {
			cfg.Logging.Format = Default().Logging.Format
		}
	}

	return finishLoad(cfg)
}

func finishLoad(cfg *Config) (*Config, error) {
	applyEnvOverrides(cfg)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to config.
// NGIT_NSEC carries key material and is never read from disk config.
func applyEnvOverrides(cfg *Config) {
	if nsec := os.Getenv("NGIT_NSEC"); nsec != "" {
		cfg.Identity.Nsec = nsec
	}
	if bunker := os.Getenv("NGIT_BUNKER"); bunker != "" {
		cfg.Identity.Bunker = bunker
	}
}

// Validate checks a configuration for internal consistency.
func Validate(cfg *Config) error {
	if cfg.Identity.Npub != "" && !strings.HasPrefix(cfg.Identity.Npub, "npub1") {
		return fmt.Errorf("identity.npub must start with 'npub1'")
	}
	if len(cfg.Relays.Bootstrap) == 0 {
		return fmt.Errorf("at least one bootstrap relay is required")
	}
	for _, seed := range cfg.Relays.Bootstrap {
		if !strings.HasPrefix(seed, "wss://") && !strings.HasPrefix(seed, "ws://") {
			return fmt.Errorf("bootstrap relay must start with ws:// or wss://: %s", seed)
		}
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", cfg.Logging.Level)
	}
	if !validLogFormats[cfg.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be one of: text, json)", cfg.Logging.Format)
	}
	return nil
}

// GlobalCachePath resolves the global cache database path, honoring an
// explicit override, NGITTEST redirection under gitDir, or the user's
// configuration directory.
func GlobalCachePath(cfg *Config, gitDir string) (string, error) {
	if cfg.Cache.GlobalPath != "" {
		return cfg.Cache.GlobalPath, nil
	}
	if IsTestMode() {
		return filepath.Join(gitDir, "test-global-cache.sqlite"), nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "ngit", "cache.sqlite"), nil
}

// LocalCachePath resolves the per-repository cache database path.
func LocalCachePath(cfg *Config, gitDir string) string {
	name := cfg.Cache.LocalName
	if name == "" {
		name = "nostr-cache.sqlite"
	}
	return filepath.Join(gitDir, name)
}
