// Package identity implements the C4 repository identity resolver:
// resolving a decentralized repository URL to a RepoRef via the fetch
// orchestrator and the event cache (§4.4).
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/nostrgit/ngit/internal/cache"
	"github.com/nostrgit/ngit/internal/fetch"
	"github.com/nostrgit/ngit/internal/nostrevent"
	"github.com/nostrgit/ngit/internal/nostrurl"
	"github.com/nostrgit/ngit/internal/ops"
)

// ErrRepoNotFound is returned when the cache holds no RepoAnnouncement
// matching the resolved seed coordinate, fatal to the operation (§7).
var ErrRepoNotFound = errors.New("identity: no repo announcement found")

// Resolver resolves a decoded repository URL to a RepoRef.
type Resolver struct {
	orchestrator    *fetch.Orchestrator
	caches          *cache.Caches
	bootstrapRelays []string
	log             *ops.Logger
}

// New returns a Resolver. bootstrapRelays is the built-in fallback relay
// list used when the URL carries no relay hints and no author hint
// resolves to one via a cached RelayList (§4.4 step 2). log receives the
// fetch-summary line after each sync (§3, §4.3); it may be nil.
func New(orchestrator *fetch.Orchestrator, caches *cache.Caches, bootstrapRelays []string, log *ops.Logger) *Resolver {
	return &Resolver{orchestrator: orchestrator, caches: caches, bootstrapRelays: bootstrapRelays, log: log}
}

// Resolve implements §4.4's algorithm: seed from the URL's author hint
// (if present), run the fixpoint fetch over hinted-or-bootstrap relays,
// then materialize a RepoRef from the cache.
func (r *Resolver) Resolve(ctx context.Context, url *nostrurl.RepoURL) (*nostrevent.RepoRef, error) {
	var seed []nostrevent.Coordinate
	if url.Author != "" {
		seed = append(seed, nostrevent.RepoCoordinate(url.Author, url.Identifier))
	}

	relays := url.RelayHints
	if len(relays) == 0 {
		relays = r.bootstrapRelays
	}

	if len(seed) > 0 {
		start := time.Now()
		report := r.orchestrator.Run(ctx, seed, relays, nil)
		if r.log != nil {
			r.log.LogFetchReport(report.String(), time.Since(start))
		}
	}

	ref, err := r.buildRepoRef(ctx, url.Identifier, url.Author)
	if err != nil {
		return nil, err
	}
	if len(ref.Announcements) == 0 {
		return nil, fmt.Errorf("%w: identifier %q", ErrRepoNotFound, url.Identifier)
	}

	// The resolved RepoRef's own relay list becomes authoritative for
	// subsequent operations (§4.4 step 4); if the URL supplied explicit
	// server overrides, they augment (not replace) the discovered set.
	for _, server := range url.ServerURLs {
		ref.CloneURLs[server] = true
	}

	return ref, nil
}

// buildRepoRef rematerializes a RepoRef from whatever RepoAnnouncement
// events the cache holds for identifier, optionally seeded by a known
// author (§4.4 step 3).
func (r *Resolver) buildRepoRef(ctx context.Context, identifier, author string) (*nostrevent.RepoRef, error) {
	filter := nostr.Filter{Kinds: []int{nostrevent.KindRepoAnnouncement}, Tags: nostr.TagMap{"d": []string{identifier}}}
	if author != "" {
		filter.Authors = []string{author}
	}

	events, err := r.caches.Local.Query(ctx, []nostr.Filter{filter})
	if err != nil {
		return nil, fmt.Errorf("identity: query cache: %w", err)
	}

	// Include every maintainer discovered via other announcements too,
	// even if the filter above was author-scoped: re-query without the
	// author restriction once maintainers are known, to pick up their
	// own announcements for the same identifier.
	ref := nostrevent.NewRepoRef(identifier)
	for _, evt := range events {
		ann, err := nostrevent.ParseRepoAnnouncement(evt)
		if err != nil {
			continue
		}
		ref.Merge(ann)
	}

	if author == "" || len(ref.MaintainerList()) == 0 {
		return ref, nil
	}

	broadened, err := r.caches.Local.Query(ctx, []nostr.Filter{{
		Kinds:   []int{nostrevent.KindRepoAnnouncement},
		Authors: ref.MaintainerList(),
		Tags:    nostr.TagMap{"d": []string{identifier}},
	}})
	if err != nil {
		return ref, nil
	}
	for _, evt := range broadened {
		ann, err := nostrevent.ParseRepoAnnouncement(evt)
		if err != nil {
			continue
		}
		ref.Merge(ann)
	}

	return ref, nil
}
