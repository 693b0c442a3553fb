// Package fetch implements the C3 fetch orchestrator: an iterative
// fixpoint fetch, run independently per relay under bounded concurrency,
// that drives relay fanout until no new coordinates or proposal roots are
// discovered, writing everything it learns into the event cache (§4.3).
package fetch

import (
	"context"
	"sync"

	"github.com/nbd-wtf/go-nostr"

	"github.com/nostrgit/ngit/internal/cache"
	"github.com/nostrgit/ngit/internal/nostrevent"
	"github.com/nostrgit/ngit/internal/ops"
)

// MaxConcurrentRelays bounds the fanout of per-relay fixpoint tasks, per
// §5's "bounded-concurrency group (limit 15 in flight)".
const MaxConcurrentRelays = 15

// RelayClient is the slice of the C2 contract the fetch orchestrator
// consumes: connect and bounded filter queries. Defining it here (rather
// than depending on *relaypool.Pool directly) lets tests supply a replay
// double keyed by filter, per the Design Notes' trait-and-mock guidance;
// *relaypool.Pool satisfies it unmodified.
type RelayClient interface {
	Connect(ctx context.Context, url string) error
	GetEvents(ctx context.Context, relay string, filters []nostr.Filter) ([]*nostr.Event, error)
}

// Orchestrator drives C3 over a relay pool and into an event cache.
type Orchestrator struct {
	pool   RelayClient
	caches *cache.Caches
	log    *ops.Logger
}

// New returns an Orchestrator.
func New(pool RelayClient, caches *cache.Caches, log *ops.Logger) *Orchestrator {
	return &Orchestrator{pool: pool, caches: caches, log: log}
}

// relayState is the per-relay fixpoint loop's working set: every
// coordinate, proposal root id and profile author known so far, used to
// build each round's filters (§4.3 step 1).
type relayState struct {
	coords  map[string]nostrevent.Coordinate
	roots   map[string]bool
	authors map[string]bool

	latestAnnTS map[string]int64 // author -> latest RepoAnnouncement created_at seen
}

func newRelayState(seedCoords []nostrevent.Coordinate, profileAuthors []string) *relayState {
	s := &relayState{
		coords:      map[string]nostrevent.Coordinate{},
		roots:       map[string]bool{},
		authors:     map[string]bool{},
		latestAnnTS: map[string]int64{},
	}
	for _, c := range seedCoords {
		s.coords[c.String()] = c
	}
	for _, a := range profileAuthors {
		s.authors[a] = true
	}
	return s
}

// buildFilters constructs the union of filters §4.3 step 1 describes from
// the current known state.
func (s *relayState) buildFilters() []nostr.Filter {
	var filters []nostr.Filter

	var repoAuthors, identifiers, coordStrings, rootIDs []string
	for _, c := range s.coords {
		if c.Kind == nostrevent.KindRepoAnnouncement {
			repoAuthors = append(repoAuthors, c.Author)
			identifiers = append(identifiers, c.Identifier)
		}
		coordStrings = append(coordStrings, c.String())
	}
	for id := range s.roots {
		rootIDs = append(rootIDs, id)
	}
	var authors []string
	for a := range s.authors {
		authors = append(authors, a)
	}

	if len(repoAuthors) > 0 {
		filters = append(filters, nostr.Filter{
			Kinds:   []int{nostrevent.KindRepoAnnouncement},
			Authors: repoAuthors,
			Tags:    nostr.TagMap{"d": identifiers},
		})
	}
	if len(coordStrings) > 0 {
		filters = append(filters, nostr.Filter{
			Kinds: []int{nostrevent.KindPatch, nostrevent.KindEventDeletion},
			Tags:  nostr.TagMap{"a": coordStrings},
		})
	}
	if len(rootIDs) > 0 {
		statusAndPatchKinds := append([]int{nostrevent.KindPatch, nostrevent.KindEventDeletion}, nostrevent.StatusKinds...)
		filters = append(filters, nostr.Filter{
			Kinds: statusAndPatchKinds,
			Tags:  nostr.TagMap{"e": rootIDs},
		})
	}
	if len(authors) > 0 {
		filters = append(filters, nostr.Filter{
			Kinds:   []int{nostrevent.KindMetadata, nostrevent.KindRelayList},
			Authors: authors,
		})
	}
	return filters
}

// runRelay executes the sequential fixpoint loop for a single relay (O3):
// repeatedly query, classify, persist, until a round discovers no fresh
// coordinate or proposal root.
func (o *Orchestrator) runRelay(ctx context.Context, relay string, state *relayState) *nostrevent.FetchReport {
	report := nostrevent.NewFetchReport()

	if err := o.pool.Connect(ctx, relay); err != nil {
		report.RelayErrors[relay] = err.Error()
		if o.log != nil {
			o.log.LogRelayConnection(relay, false, err)
		}
		return report
	}
	if o.log != nil {
		o.log.LogRelayConnection(relay, true, nil)
	}

	excluded, err := o.excludedIDs(ctx, state)
	if err != nil && o.log != nil {
		o.log.Warn("negentropy exclusion query failed", "relay", relay, "error", err)
	}

	for {
		filters := state.buildFilters()
		if len(filters) == 0 {
			break
		}

		events, err := o.pool.GetEvents(ctx, relay, filters)
		if err != nil {
			report.RelayErrors[relay] = err.Error()
			break
		}

		freshCoords := false
		freshRoots := false

		for _, evt := range events {
			if excluded[evt.ID] {
				continue
			}
			excluded[evt.ID] = true

			isNew, classified := o.classify(ctx, evt, state, report)
			_ = isNew
			if classified == classifyNewCoord {
				freshCoords = true
			}
			if classified == classifyNewRoot {
				freshRoots = true
			}
		}

		if !freshCoords && !freshRoots {
			break
		}
	}

	return report
}

func (o *Orchestrator) excludedIDs(ctx context.Context, state *relayState) (map[string]bool, error) {
	ids := map[string]bool{}
	filters := state.buildFilters()
	for _, f := range filters {
		got, err := o.caches.Local.NegentropyItems(ctx, f)
		if err != nil {
			return ids, err
		}
		for id := range got {
			ids[id] = true
		}
	}
	return ids, nil
}

type classification int

const (
	classifyNone classification = iota
	classifyNewCoord
	classifyNewRoot
)

// classify persists evt and folds it into state/report per §4.3 step 2.
func (o *Orchestrator) classify(ctx context.Context, evt *nostr.Event, state *relayState, report *nostrevent.FetchReport) (bool, classification) {
	isNew, err := o.caches.SaveLocal(ctx, evt)
	if err != nil {
		if o.log != nil {
			o.log.Warn("failed to save event", "id", evt.ID, "error", err)
		}
		return false, classifyNone
	}
	if o.log != nil {
		o.log.LogCacheOperation("save", "local", isNew)
	}

	result := classifyNone

	switch {
	case evt.Kind == nostrevent.KindRepoAnnouncement:
		ann, err := nostrevent.ParseRepoAnnouncement(evt)
		if err != nil {
			return isNew, classifyNone
		}
		if prev, ok := state.latestAnnTS[ann.Author]; !ok || int64(ann.Event.CreatedAt) > prev {
			if ok {
				report.UpdatedAnnouncements[ann.Author] = int64(ann.Event.CreatedAt)
			}
			state.latestAnnTS[ann.Author] = int64(ann.Event.CreatedAt)
		}
		for _, maintainer := range ann.Maintainers {
			coord := nostrevent.RepoCoordinate(maintainer, ann.Identifier)
			key := coord.String()
			if _, known := state.coords[key]; !known {
				state.coords[key] = coord
				report.NewMaintainerCoords = append(report.NewMaintainerCoords, coord)
				result = classifyNewCoord
			}
		}
		selfCoord := ann.Coordinate()
		if _, known := state.coords[selfCoord.String()]; !known {
			state.coords[selfCoord.String()] = selfCoord
			report.NewMaintainerCoords = append(report.NewMaintainerCoords, selfCoord)
			result = classifyNewCoord
		}

	case evt.Kind == nostrevent.KindPatch:
		patch, err := nostrevent.ParsePatch(evt)
		if err != nil {
			return isNew, classifyNone
		}
		if patch.IsRoot {
			if !state.roots[evt.ID] {
				state.roots[evt.ID] = true
				report.NewProposalRoots = append(report.NewProposalRoots, evt.ID)
				result = classifyNewRoot
			}
		} else if state.roots[patch.RootOrOwnID()] {
			report.NewPatches = append(report.NewPatches, evt.ID)
		}

	case nostrevent.IsStatusKind(evt.Kind):
		report.NewStatuses = append(report.NewStatuses, evt.ID)

	case evt.Kind == nostrevent.KindMetadata:
		report.NewProfiles = append(report.NewProfiles, evt.ID)
		if _, err := o.caches.SaveGlobal(ctx, evt); err != nil && o.log != nil {
			o.log.Warn("failed to mirror metadata to global cache", "id", evt.ID, "error", err)
		}

	case evt.Kind == nostrevent.KindRelayList:
		report.NewProfiles = append(report.NewProfiles, evt.ID)

	case evt.Kind == nostrevent.KindEventDeletion:
		// Stored above; consumers interpret deletions, core never mutates (§3).
	}

	return isNew, result
}

// Run drives the fixpoint fetch across every relay in relays concurrently
// (bounded to MaxConcurrentRelays in flight, per §5), consolidating their
// per-relay FetchReports per §4.3's Consolidation rule. A relay failure is
// recorded in the report but never aborts the others (O2).
func (o *Orchestrator) Run(ctx context.Context, seedCoords []nostrevent.Coordinate, relays []string, profileAuthors []string) *nostrevent.FetchReport {
	reports := make([]*nostrevent.FetchReport, len(relays))

	sem := make(chan struct{}, MaxConcurrentRelays)
	var wg sync.WaitGroup

	for i, relay := range relays {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, relay string) {
			defer wg.Done()
			defer func() { <-sem }()
			state := newRelayState(seedCoords, profileAuthors)
			reports[i] = o.runRelay(ctx, relay, state)
		}(i, relay)
	}
	wg.Wait()

	return nostrevent.Consolidate(reports)
}
