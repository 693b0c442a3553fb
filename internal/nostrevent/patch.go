package nostrevent

import (
	"fmt"

	"github.com/nbd-wtf/go-nostr"
)

// Patch is the parsed view of a KindPatch event: one commit's patch text
// plus the tags linking it into a proposal chain, per §3.
type Patch struct {
	Event        *nostr.Event
	Commit       string
	ParentCommit string
	RepoCoord    *Coordinate
	RootID       string // PatchSetRoot id this patch belongs to; "" if this event is itself the root
	ReplyToID    string // previous patch id in the same publication batch, if any
	IsRoot       bool
	CoverLetter  string
	RevisionOf   string // prior root id, if this root is a revision
}

// ParsePatch extracts a Patch from a raw event.
func ParsePatch(event *nostr.Event) (*Patch, error) {
	if event.Kind != KindPatch {
		return nil, fmt.Errorf("event %s is kind %d, not Patch", event.ID, event.Kind)
	}
	commit := firstValue(event.Tags, TagCommit)
	if commit == "" {
		return nil, fmt.Errorf("patch %s missing commit tag", event.ID)
	}

	p := &Patch{
		Event:        event,
		Commit:       commit,
		ParentCommit: firstValue(event.Tags, TagParentCommit),
	}

	if coords := CoordinatesFromTags(event.Tags); len(coords) > 0 {
		p.RepoCoord = &coords[0]
	}

	if coverLetter, ok := findTagValue(event.Tags, TagCoverLetter); ok {
		p.IsRoot = true
		p.CoverLetter = coverLetter
		p.RevisionOf = firstValue(event.Tags, TagRevisionRoot)
	}

	if rootID, ok := markedEventRef(event.Tags, TagEventRef, MarkerRoot); ok {
		p.RootID = rootID
	}
	if replyID, ok := markedEventRef(event.Tags, TagEventRef, MarkerReply); ok {
		p.ReplyToID = replyID
	}

	return p, nil
}

// findTagValue returns the first value of the first tag named name and
// whether such a tag exists at all (distinguishing "absent" from "present
// with empty value").
func findTagValue(tags nostr.Tags, name string) (string, bool) {
	for _, t := range tags {
		if len(t) >= 1 && t[0] == name {
			if len(t) >= 2 {
				return t[1], true
			}
			return "", true
		}
	}
	return "", false
}

// IsRevisionRoot reports whether this Patch is itself a PatchSetRoot that
// supersedes a prior root (the event_is_revision_root predicate of §9).
func (p *Patch) IsRevisionRoot() bool {
	return p.IsRoot && p.RevisionOf != ""
}

// RootOrOwnID returns the proposal root id this patch belongs to: its own
// id if it is itself a root, otherwise its RootID tag value.
func (p *Patch) RootOrOwnID() string {
	if p.IsRoot {
		return p.Event.ID
	}
	return p.RootID
}

// BuildPatchTags builds the tags for one Patch event in a publication
// batch. rootID is the PatchSetRoot id ("" if this patch IS the root,
// i.e. carries a cover-letter instead). prevPatchID is the previous
// patch's id in the same batch, if any.
func BuildPatchTags(commit, parentCommit string, coord Coordinate, rootID, prevPatchID string) nostr.Tags {
	tags := nostr.Tags{
		{TagCommit, commit},
		{TagParentCommit, parentCommit},
		coord.Tag(),
	}
	if rootID != "" {
		tags = append(tags, newMarkedEventTag(TagEventRef, rootID, MarkerRoot))
	}
	if prevPatchID != "" {
		tags = append(tags, newMarkedEventTag(TagEventRef, prevPatchID, MarkerReply))
	}
	return tags
}

// BuildPatchSetRootTags builds the tags for a PatchSetRoot event (a Patch
// event that additionally carries a cover-letter). revisionOf is the id of
// the prior root this supersedes, or "" for a fresh proposal.
func BuildPatchSetRootTags(commit, parentCommit string, coord Coordinate, coverLetter, revisionOf string) nostr.Tags {
	tags := nostr.Tags{
		{TagCommit, commit},
		{TagParentCommit, parentCommit},
		coord.Tag(),
		{TagCoverLetter, coverLetter},
	}
	if revisionOf != "" {
		tags = append(tags, nostr.Tag{TagRevisionRoot, revisionOf})
	}
	return tags
}
