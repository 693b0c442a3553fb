// Package nostrevent defines the signed-event data model this bridge reads
// and writes: repo announcements, patch chains, proposal status, and the
// coordinate/fetch-report types the fetch orchestrator and cache operate on.
package nostrevent

// Event kinds this bridge understands. Values follow the NIP-34 git-over-
// nostr convention the retrieved corpus and original_source both target.
const (
	KindMetadata         = 0
	KindRelayList        = 10002
	KindEventDeletion    = 5
	KindRepoAnnouncement = 30617
	KindPatch            = 1617
	KindStatusOpen       = 1630
	KindStatusApplied    = 1631
	KindStatusClosed     = 1632
	KindStatusDraft      = 1633
)

// StatusKinds enumerates every kind representing a proposal lifecycle
// transition, latest created_at wins among them.
var StatusKinds = []int{KindStatusOpen, KindStatusApplied, KindStatusClosed, KindStatusDraft}

// IsStatusKind reports whether kind is one of the Status lifecycle kinds.
func IsStatusKind(kind int) bool {
	for _, k := range StatusKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// IsTerminalStatus reports whether kind marks a proposal as no longer open.
func IsTerminalStatus(kind int) bool {
	return kind == KindStatusApplied || kind == KindStatusClosed
}
