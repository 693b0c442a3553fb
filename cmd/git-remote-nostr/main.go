// Command git-remote-nostr is the git remote-helper git invokes for any
// remote URL using the nostr:// scheme: `git-remote-nostr <remote-name>
// <url>`, speaking the line protocol described in §6 over stdin/stdout.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nostrgit/ngit/internal/cache"
	"github.com/nostrgit/ngit/internal/config"
	"github.com/nostrgit/ngit/internal/fetch"
	"github.com/nostrgit/ngit/internal/identity"
	"github.com/nostrgit/ngit/internal/nostrurl"
	"github.com/nostrgit/ngit/internal/ops"
	"github.com/nostrgit/ngit/internal/proposal"
	"github.com/nostrgit/ngit/internal/relaypool"
	"github.com/nostrgit/ngit/internal/remotehelper"
	"github.com/nostrgit/ngit/internal/signer"
	"github.com/nostrgit/ngit/internal/vcsadapter"
)

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) != 3 {
		fmt.Fprintln(os.Stderr, "usage: git-remote-nostr <remote-name> <url>")
		return 1
	}
	rawURL := os.Args[2]

	cfg, err := config.Load(configPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "git-remote-nostr: %v\n", err)
		return 1
	}
	log := ops.NewLogger(&cfg.Logging)
	ops.SetDefault(log)

	repoURL, err := nostrurl.Parse(rawURL)
	if err != nil {
		log.Error("failed to parse repository url", "error", err)
		return 1
	}

	vcs, err := vcsadapter.Open(".", log)
	if err != nil {
		log.Error("failed to open working repository", "error", err)
		return 1
	}

	globalPath, err := config.GlobalCachePath(cfg, vcs.GitDir())
	if err != nil {
		log.Error("failed to resolve global cache path", "error", err)
		return 1
	}
	caches, err := cache.Open(config.LocalCachePath(cfg, vcs.GitDir()), globalPath)
	if err != nil {
		log.Error("failed to open event cache", "error", err)
		return 1
	}
	defer caches.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connectTimeout := time.Duration(cfg.Relays.Policy.ConnectTimeoutMs) * time.Millisecond
	eventsTimeout := time.Duration(cfg.Relays.Policy.EventsTimeoutMs) * time.Millisecond
	pool := relaypool.New(ctx, connectTimeout, eventsTimeout)
	defer pool.Disconnect()

	orchestrator := fetch.New(pool, caches, log)
	resolver := identity.New(orchestrator, caches, cfg.Relays.Bootstrap, log)
	proposals := proposal.New(caches, pool)

	var sign proposal.Signer
	if s, err := signer.NewLocal(cfg.Identity.Nsec); err == nil {
		sign = s
	} else if err != signer.ErrNoKeyMaterial {
		log.Error("failed to initialize signer", "error", err)
		return 1
	}
	// A nil signer is tolerated here: fetch and list never sign anything;
	// push only needs one once a publish is actually attempted, at which
	// point the driver reports a SignerError rather than crashing here.

	driver := remotehelper.New(os.Stdin, os.Stdout, log, resolver, proposals, vcs, caches, sign, cfg.Transport.SSHKeyPath, cfg.Relays.Bootstrap, cfg.Transport.PreferOrder)

	if err := driver.Run(ctx, repoURL); err != nil {
		log.Error("remote helper terminated with an error", "error", err)
		return 1
	}
	return 0
}

// configPath resolves the configuration file location: NGIT_CONFIG
// overrides it, otherwise it defaults to <user-config-dir>/ngit/config.yaml.
// A missing file is not an error (config.Load falls back to defaults).
func configPath() string {
	if p := os.Getenv("NGIT_CONFIG"); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "ngit", "config.yaml")
}
