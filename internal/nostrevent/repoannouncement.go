package nostrevent

import (
	"fmt"

	"github.com/nbd-wtf/go-nostr"
)

// RepoAnnouncement is the parsed view of a KindRepoAnnouncement event: an
// identifier, a maintainer set, a relay set and a clone-URL set, per §3.
type RepoAnnouncement struct {
	Event       *nostr.Event
	Author      string
	Identifier  string
	Name        string
	Maintainers []string
	Relays      []string
	CloneURLs   []string
}

// Coordinate returns the announcement's own coordinate.
func (r *RepoAnnouncement) Coordinate() Coordinate {
	return RepoCoordinate(r.Author, r.Identifier)
}

// ParseRepoAnnouncement extracts a RepoAnnouncement from a raw event,
// failing if the event is not a RepoAnnouncement or lacks an identifier.
func ParseRepoAnnouncement(event *nostr.Event) (*RepoAnnouncement, error) {
	if event.Kind != KindRepoAnnouncement {
		return nil, fmt.Errorf("event %s is kind %d, not RepoAnnouncement", event.ID, event.Kind)
	}
	identifier := firstValue(event.Tags, TagIdentifier)
	if identifier == "" {
		return nil, fmt.Errorf("RepoAnnouncement %s missing identifier tag", event.ID)
	}
	return &RepoAnnouncement{
		Event:       event,
		Author:      event.PubKey,
		Identifier:  identifier,
		Name:        firstValue(event.Tags, TagName),
		Maintainers: allValues(event.Tags, TagMaintainers),
		Relays:      allValues(event.Tags, TagRelays),
		CloneURLs:   allValues(event.Tags, TagClone),
	}, nil
}

// BuildRepoAnnouncement constructs the event tags for announcing a repo.
// The caller signs and publishes the resulting event.
func BuildRepoAnnouncement(identifier, name string, maintainers, relays, cloneURLs []string) nostr.Tags {
	tags := nostr.Tags{
		{TagIdentifier, identifier},
	}
	if name != "" {
		tags = append(tags, nostr.Tag{TagName, name})
	}
	if len(maintainers) > 0 {
		tags = append(tags, append(nostr.Tag{TagMaintainers}, maintainers...))
	}
	if len(relays) > 0 {
		tags = append(tags, append(nostr.Tag{TagRelays}, relays...))
	}
	if len(cloneURLs) > 0 {
		tags = append(tags, append(nostr.Tag{TagClone}, cloneURLs...))
	}
	return tags
}

// RepoRef is the materialized view over every RepoAnnouncement for one
// repo: the union of maintainer sets (recursively discovered), the union
// of relay and VCS server URL sets, and each maintainer's latest
// announcement, per §3.
type RepoRef struct {
	Identifier    string
	Maintainers   map[string]bool
	Relays        map[string]bool
	CloneURLs     map[string]bool
	Announcements map[string]*RepoAnnouncement // author -> latest announcement
}

// NewRepoRef returns an empty RepoRef for the given identifier.
func NewRepoRef(identifier string) *RepoRef {
	return &RepoRef{
		Identifier:    identifier,
		Maintainers:   map[string]bool{},
		Relays:        map[string]bool{},
		CloneURLs:     map[string]bool{},
		Announcements: map[string]*RepoAnnouncement{},
	}
}

// Merge folds a single RepoAnnouncement into the RepoRef, keeping only the
// latest announcement per author (by created_at) and unioning maintainers,
// relays and clone URLs across every announcement seen.
func (r *RepoRef) Merge(ann *RepoAnnouncement) {
	if existing, ok := r.Announcements[ann.Author]; ok {
		if existing.Event.CreatedAt >= ann.Event.CreatedAt {
			return
		}
	}
	r.Announcements[ann.Author] = ann
	r.Maintainers[ann.Author] = true
	for _, m := range ann.Maintainers {
		r.Maintainers[m] = true
	}
	for _, u := range ann.Relays {
		r.Relays[u] = true
	}
	for _, u := range ann.CloneURLs {
		r.CloneURLs[u] = true
	}
}

// MaintainerList returns the maintainer set as a sorted-free slice.
func (r *RepoRef) MaintainerList() []string {
	return keys(r.Maintainers)
}

// RelayList returns the relay set as a slice.
func (r *RepoRef) RelayList() []string {
	return keys(r.Relays)
}

// CloneURLList returns the clone URL set as a slice.
func (r *RepoRef) CloneURLList() []string {
	return keys(r.CloneURLs)
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
