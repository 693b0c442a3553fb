package nostrevent

import "github.com/nbd-wtf/go-nostr"

// Tag names used by this bridge's event kinds. "a" and "e" follow the
// standard addressable-event and event-reference tag conventions; the rest
// are specific to the git-over-nostr kinds above.
const (
	TagIdentifier   = "d"
	TagName         = "name"
	TagClone        = "clone"
	TagRelays       = "relays"
	TagMaintainers  = "maintainers"
	TagCommit       = "commit"
	TagParentCommit = "parent-commit"
	TagCoverLetter  = "cover-letter"
	TagRevisionRoot = "revision-root"
	TagBranchName   = "branch-name"
	TagRepoCoord    = "a"
	TagEventRef     = "e"

	MarkerRoot  = "root"
	MarkerReply = "reply"
)

// firstValue returns the first value of the first tag named name, or "".
func firstValue(tags nostr.Tags, name string) string {
	for _, t := range tags {
		if len(t) >= 2 && t[0] == name {
			return t[1]
		}
	}
	return ""
}

// allValues returns every value (positions 1..) across every tag named name.
func allValues(tags nostr.Tags, name string) []string {
	var out []string
	for _, t := range tags {
		if len(t) >= 2 && t[0] == name {
			out = append(out, t[1:]...)
		}
	}
	return out
}

// hasTag reports whether any tag named name is present.
func hasTag(tags nostr.Tags, name string) bool {
	for _, t := range tags {
		if len(t) >= 1 && t[0] == name {
			return true
		}
	}
	return false
}

// markedEventRef finds an "e"-style tag whose marker (position 3, the
// standard NIP-01 ["e", id, relay, marker] shape) equals marker, and
// returns the referenced event id.
func markedEventRef(tags nostr.Tags, name, marker string) (string, bool) {
	for _, t := range tags {
		if len(t) >= 4 && t[0] == name && t[3] == marker {
			return t[1], true
		}
	}
	return "", false
}

// newMarkedEventTag builds an ["e", id, "", marker] tag.
func newMarkedEventTag(name, id, marker string) nostr.Tag {
	return nostr.Tag{name, id, "", marker}
}
