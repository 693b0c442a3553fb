package nostrevent

import (
	"fmt"
	"strings"
)

// FetchReport is the observable outcome of one fetch round: counts and ids
// of newly discovered maintainer coordinates, updated announcements, new
// proposal roots, new patches, new statuses, new profiles, per §3. It
// drives fixpoint iteration (§4.3) and the user-visible summary.
type FetchReport struct {
	NewMaintainerCoords []Coordinate
	UpdatedAnnouncements map[string]int64 // author -> newest created_at seen this round
	NewProposalRoots    []string
	NewPatches          []string
	NewStatuses         []string
	NewProfiles         []string
	RelayErrors         map[string]string // relay url -> error message
}

// NewFetchReport returns an empty report.
func NewFetchReport() *FetchReport {
	return &FetchReport{UpdatedAnnouncements: map[string]int64{}, RelayErrors: map[string]string{}}
}

// IsEmpty reports whether the round discovered nothing new, the condition
// P3 requires once a relay set has reached fixpoint.
func (r *FetchReport) IsEmpty() bool {
	return len(r.NewMaintainerCoords) == 0 &&
		len(r.UpdatedAnnouncements) == 0 &&
		len(r.NewProposalRoots) == 0 &&
		len(r.NewPatches) == 0 &&
		len(r.NewStatuses) == 0 &&
		len(r.NewProfiles) == 0
}

// HasFreshCoordinatesOrRoots reports whether this round's findings should
// trigger another fixpoint loop iteration (§4.3 step 3): a non-empty fresh
// coordinate set or fresh proposal root set.
func (r *FetchReport) HasFreshCoordinatesOrRoots() bool {
	return len(r.NewMaintainerCoords) > 0 || len(r.NewProposalRoots) > 0
}

// Consolidate merges per-relay FetchReports by set union, with
// "updated announcement" entries merged by max(timestamp) per coordinate
// author, per §4.3's Consolidation rule. Relay errors are recorded, never
// abort the merge.
func Consolidate(reports []*FetchReport) *FetchReport {
	out := NewFetchReport()
	seenCoord := map[string]bool{}
	seenRoot := map[string]bool{}
	seenPatch := map[string]bool{}
	seenStatus := map[string]bool{}
	seenProfile := map[string]bool{}

	for _, r := range reports {
		if r == nil {
			continue
		}
		for _, c := range r.NewMaintainerCoords {
			key := c.String()
			if !seenCoord[key] {
				seenCoord[key] = true
				out.NewMaintainerCoords = append(out.NewMaintainerCoords, c)
			}
		}
		for author, ts := range r.UpdatedAnnouncements {
			if existing, ok := out.UpdatedAnnouncements[author]; !ok || ts > existing {
				out.UpdatedAnnouncements[author] = ts
			}
		}
		for _, id := range r.NewProposalRoots {
			if !seenRoot[id] {
				seenRoot[id] = true
				out.NewProposalRoots = append(out.NewProposalRoots, id)
			}
		}
		for _, id := range r.NewPatches {
			if !seenPatch[id] {
				seenPatch[id] = true
				out.NewPatches = append(out.NewPatches, id)
			}
		}
		for _, id := range r.NewStatuses {
			if !seenStatus[id] {
				seenStatus[id] = true
				out.NewStatuses = append(out.NewStatuses, id)
			}
		}
		for _, id := range r.NewProfiles {
			if !seenProfile[id] {
				seenProfile[id] = true
				out.NewProfiles = append(out.NewProfiles, id)
			}
		}
		for url, msg := range r.RelayErrors {
			out.RelayErrors[url] = msg
		}
	}

	return out
}

// String renders a human-readable summary of the report, grounded on the
// original's join_with_and-style FetchReport Display impl, for the stderr
// line the protocol driver prints after fetch/list.
func (r *FetchReport) String() string {
	var parts []string
	if n := len(r.NewMaintainerCoords); n > 0 {
		parts = append(parts, fmt.Sprintf("%d new maintainer%s", n, plural(n)))
	}
	if n := len(r.UpdatedAnnouncements); n > 0 {
		parts = append(parts, fmt.Sprintf("%d updated announcement%s", n, plural(n)))
	}
	if n := len(r.NewProposalRoots); n > 0 {
		parts = append(parts, fmt.Sprintf("%d new proposal%s", n, plural(n)))
	}
	if n := len(r.NewPatches); n > 0 {
		parts = append(parts, fmt.Sprintf("%d new patch%s", n, pluralEs(n)))
	}
	if n := len(r.NewStatuses); n > 0 {
		parts = append(parts, fmt.Sprintf("%d new status%s", n, pluralEs(n)))
	}
	if n := len(r.NewProfiles); n > 0 {
		parts = append(parts, fmt.Sprintf("%d new profile%s", n, plural(n)))
	}
	if len(r.RelayErrors) > 0 {
		parts = append(parts, fmt.Sprintf("%d relay error%s", len(r.RelayErrors), plural(len(r.RelayErrors))))
	}
	if len(parts) == 0 {
		return "nothing new"
	}
	return joinWithAnd(parts)
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func pluralEs(n int) string {
	if n == 1 {
		return ""
	}
	return "es"
}

// joinWithAnd joins items as "a, b and c", matching the original
// utils.rs join_with_and helper's output shape.
func joinWithAnd(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
	}
}
