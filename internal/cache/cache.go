// Package cache implements the C1 event cache: a durable, append-only
// store of signed events queryable by filter, split into a per-repo
// "local" store and a process-wide "global" store (§4.1, §3's I3).
package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/fiatjaf/eventstore/sqlite3"
	"github.com/nbd-wtf/go-nostr"

	"github.com/nostrgit/ngit/internal/nostrevent"
)

// ErrCacheOpen is returned when the backing sqlite store cannot be opened.
var ErrCacheOpen = errors.New("cache: failed to open store")

// IntegrityError reports a signature or id mismatch at save time (I1).
type IntegrityError struct {
	EventID string
	Reason  string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("cache: event %s failed integrity check: %s", e.EventID, e.Reason)
}

// globalMirroredKinds lists kinds mirrored from the local store into the
// global store regardless of which store Save was called on (I3):
// RepoAnnouncement. Metadata is mirrored too, but explicitly, via
// SaveGlobal, in the fetch orchestrator's per-kind classification (§4.3
// step 2's "Metadata -> mirror to global cache" bullet) rather than here.
var globalMirroredKinds = map[int]bool{
	nostrevent.KindRepoAnnouncement: true,
}

// Store is one scope's backing event store: either the per-repo local
// cache or the process-wide global cache.
type Store struct {
	backend *sqlite3.SQLite3Backend
	path    string
}

// OpenStore opens (creating if necessary) a sqlite-backed event store at path.
func OpenStore(path string) (*Store, error) {
	backend := &sqlite3.SQLite3Backend{DatabaseURL: path}
	if err := backend.Init(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCacheOpen, path, err)
	}
	return &Store{backend: backend, path: path}, nil
}

// Close releases the backing store's resources.
func (s *Store) Close() {
	if s != nil && s.backend != nil {
		s.backend.Close()
	}
}

// verify checks I1: a valid signature against the event's author, and that
// the event's id correctly hashes its canonical encoding. go-nostr's
// CheckSignature performs both (it recomputes GetID() internally before
// verifying the schnorr signature).
func verify(event *nostr.Event) error {
	if event.ID != event.GetID() {
		return &IntegrityError{EventID: event.ID, Reason: "id does not hash canonical encoding"}
	}
	ok, err := event.CheckSignature()
	if err != nil {
		return &IntegrityError{EventID: event.ID, Reason: fmt.Sprintf("signature check failed: %v", err)}
	}
	if !ok {
		return &IntegrityError{EventID: event.ID, Reason: "signature does not verify against author"}
	}
	return nil
}

// Save stores event if it is not already present, returning true if this
// call persisted a new event (false if it was already there). Fails with
// an *IntegrityError if the event does not satisfy I1. Save is idempotent
// on id (I2).
func (s *Store) Save(ctx context.Context, event *nostr.Event) (bool, error) {
	if err := verify(event); err != nil {
		return false, err
	}

	existing, err := s.backend.QueryEvents(ctx, nostr.Filter{IDs: []string{event.ID}, Limit: 1})
	if err != nil {
		return false, fmt.Errorf("cache: query-before-save failed: %w", err)
	}
	for range existing {
		return false, nil
	}

	if isReplaceableKind(event.Kind) {
		if err := s.backend.ReplaceEvent(ctx, event); err != nil {
			return false, fmt.Errorf("cache: replace failed: %w", err)
		}
		return true, nil
	}
	if err := s.backend.SaveEvent(ctx, event); err != nil {
		return false, fmt.Errorf("cache: save failed: %w", err)
	}
	return true, nil
}

func isReplaceableKind(kind int) bool {
	switch kind {
	case nostrevent.KindMetadata, nostrevent.KindRelayList, nostrevent.KindRepoAnnouncement:
		return true
	default:
		return kind >= 10000 && kind < 20000 || kind >= 30000 && kind < 40000
	}
}

// Query returns every event matching any of filters, in ascending
// created_at order, per C1's contract.
func (s *Store) Query(ctx context.Context, filters []nostr.Filter) ([]*nostr.Event, error) {
	seen := map[string]bool{}
	var out []*nostr.Event
	for _, f := range filters {
		ch, err := s.backend.QueryEvents(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("cache: query failed: %w", err)
		}
		for evt := range ch {
			if seen[evt.ID] {
				continue
			}
			seen[evt.ID] = true
			out = append(out, evt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

// NegentropyItems returns the set of event ids already in the store for
// filter, without loading their payloads — a cheap "already have" check
// (§4.1) used to exclude already-known ids from a relay's next round
// (SPEC_FULL.md §9's fixpoint-seed supplement).
func (s *Store) NegentropyItems(ctx context.Context, filter nostr.Filter) (map[string]bool, error) {
	ch, err := s.backend.QueryEvents(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("cache: negentropy-items query failed: %w", err)
	}
	ids := map[string]bool{}
	for evt := range ch {
		ids[evt.ID] = true
	}
	return ids, nil
}

// Caches bundles the local (per-repo) and global (process-wide) stores
// C1 specifies, and implements the I3 mirroring rule: RepoAnnouncement and
// Metadata events saved to either store are mirrored into the global one.
type Caches struct {
	Local  *Store
	Global *Store
}

// Open opens both the local and global stores at the given paths.
func Open(localPath, globalPath string) (*Caches, error) {
	local, err := OpenStore(localPath)
	if err != nil {
		return nil, err
	}
	global, err := OpenStore(globalPath)
	if err != nil {
		local.Close()
		return nil, err
	}
	return &Caches{Local: local, Global: global}, nil
}

// Close closes both stores.
func (c *Caches) Close() {
	if c == nil {
		return
	}
	c.Local.Close()
	c.Global.Close()
}

// SaveLocal stores event in the local (per-repo) store, mirroring it into
// the global store too if its kind is one of the mirrored kinds (I3).
func (c *Caches) SaveLocal(ctx context.Context, event *nostr.Event) (bool, error) {
	isNew, err := c.Local.Save(ctx, event)
	if err != nil {
		return false, err
	}
	if globalMirroredKinds[event.Kind] {
		if _, err := c.Global.Save(ctx, event); err != nil {
			return isNew, fmt.Errorf("cache: global mirror failed: %w", err)
		}
	}
	return isNew, nil
}

// SaveGlobal stores event directly in the global store (used for profile
// data fetched independent of any one repo).
func (c *Caches) SaveGlobal(ctx context.Context, event *nostr.Event) (bool, error) {
	return c.Global.Save(ctx, event)
}
