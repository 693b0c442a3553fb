package nostrevent

import (
	"fmt"
	"strings"

	"github.com/nbd-wtf/go-nostr"
)

// ProposalStatus is the derived lifecycle state of a proposal.
type ProposalStatus int

const (
	StatusOpen ProposalStatus = iota
	StatusApplied
	StatusClosed
	StatusDraft
)

func (s ProposalStatus) String() string {
	switch s {
	case StatusApplied:
		return "applied"
	case StatusClosed:
		return "closed"
	case StatusDraft:
		return "draft"
	default:
		return "open"
	}
}

// statusFromKind maps a Status event kind to a ProposalStatus.
func statusFromKind(kind int) ProposalStatus {
	switch kind {
	case KindStatusApplied:
		return StatusApplied
	case KindStatusClosed:
		return StatusClosed
	case KindStatusDraft:
		return StatusDraft
	default:
		return StatusOpen
	}
}

// Proposal is {root, ordered patch chain, derived status}, per §3.
type Proposal struct {
	Root    *Patch // IsRoot == true
	Patches []*Patch
	Status  ProposalStatus
}

// ErrProposalInconsistent reports a broken parent-commit chain, a missing
// tag, or any other structural defect in a proposal's patch set (§7's
// ProposalInconsistent).
type ErrProposalInconsistent struct {
	RootID string
	Reason string
}

func (e *ErrProposalInconsistent) Error() string {
	return fmt.Sprintf("proposal %s inconsistent: %s", e.RootID, e.Reason)
}

// BuildChain reconstructs the linear patch chain for a proposal root given
// every Patch event tagged to it (excluding the root itself). Per §4.5,
// reconstruction starts at the tip (the patch with no descendant
// referencing it as a parent-commit) and walks parent-commit links
// backward. Returns patches ordered tip-first, matching scenario 3's
// expected [p2, p1] ordering.
func BuildChain(root *Patch, members []*Patch) ([]*Patch, error) {
	if len(members) == 0 {
		return nil, nil
	}

	byParentCommit := make(map[string]*Patch, len(members))
	byCommit := make(map[string]*Patch, len(members))
	for _, p := range members {
		if existing, ok := byParentCommit[p.ParentCommit]; ok && existing != p {
			return nil, &ErrProposalInconsistent{RootID: root.Event.ID, Reason: "multiple patches share a parent-commit"}
		}
		byParentCommit[p.ParentCommit] = p
		if _, ok := byCommit[p.Commit]; ok {
			return nil, &ErrProposalInconsistent{RootID: root.Event.ID, Reason: "duplicate commit in patch set"}
		}
		byCommit[p.Commit] = p
	}

	// the tip is the patch whose commit is not anyone else's parent-commit.
	var tip *Patch
	for _, p := range members {
		if _, hasChild := byParentCommit[p.Commit]; !hasChild {
			if tip != nil {
				return nil, &ErrProposalInconsistent{RootID: root.Event.ID, Reason: "ambiguous chain tip"}
			}
			tip = p
		}
	}
	if tip == nil {
		return nil, &ErrProposalInconsistent{RootID: root.Event.ID, Reason: "no chain tip found (cycle or disconnected set)"}
	}

	chain := make([]*Patch, 0, len(members))
	seen := make(map[string]bool, len(members))
	cur := tip
	for {
		if seen[cur.Event.ID] {
			return nil, &ErrProposalInconsistent{RootID: root.Event.ID, Reason: "cycle in parent-commit chain"}
		}
		seen[cur.Event.ID] = true
		chain = append(chain, cur)
		next, ok := byCommit[cur.ParentCommit]
		if !ok {
			break
		}
		cur = next
	}
	if len(chain) != len(members) {
		return nil, &ErrProposalInconsistent{RootID: root.Event.ID, Reason: "chain does not cover every patch in the set"}
	}
	return chain, nil
}

// TipCommit returns the chain's tip commit (the most recent commit, chain[0]).
func (p *Proposal) TipCommit() string {
	if len(p.Patches) == 0 {
		return p.Root.Commit
	}
	return p.Patches[0].Commit
}

// BaseCommit returns the proposal's base commit: the root's parent-commit.
func (p *Proposal) BaseCommit() string {
	return p.Root.ParentCommit
}

// TipEventID returns the event id of the chain's tip patch (chain[0], or
// the root if the proposal has no non-root patches yet).
func (p *Proposal) TipEventID() string {
	if len(p.Patches) == 0 {
		return p.Root.Event.ID
	}
	return p.Patches[0].Event.ID
}

// BranchName derives the public branch name for this proposal from its
// cover-letter's first line, matching the "derivable human branch name"
// requirement of §3. viewerIsAuthor selects the author's own chosen name
// (stored on the "branch-name" tag) when the viewer is the proposal's
// author, per P6.
func (p *Proposal) BranchName(viewerPubkey string) string {
	if viewerPubkey != "" && viewerPubkey == p.Root.Event.PubKey {
		if own := firstValue(p.Root.Event.Tags, TagBranchName); own != "" {
			return own
		}
	}
	return derivePublicBranchName(p.Root.CoverLetter, p.Root.Event.ID)
}

// derivePublicBranchName turns a cover-letter's first line into a
// slug, falling back to a short id-derived name if the letter is empty.
func derivePublicBranchName(coverLetter, rootID string) string {
	firstLine := coverLetter
	if idx := strings.IndexByte(coverLetter, '\n'); idx >= 0 {
		firstLine = coverLetter[:idx]
	}
	firstLine = strings.TrimSpace(firstLine)
	if firstLine == "" {
		if len(rootID) >= 8 {
			return "pr-" + rootID[:8]
		}
		return "pr-" + rootID
	}
	return slugify(firstLine)
}

func slugify(s string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	out := strings.TrimRight(b.String(), "-")
	if out == "" {
		return "pr"
	}
	if len(out) > 60 {
		out = out[:60]
	}
	return out
}

// MatchBranch implements §4.5's match_branch: given a VCS-style reference
// string and the set of open proposals, find at most one matching
// proposal by comparing the stripped ref against each proposal's branch
// name for currentUser.
func MatchBranch(refstr string, proposals map[string]*Proposal, branchesPrefix, currentUser string) *Proposal {
	name := strings.TrimPrefix(refstr, branchesPrefix)
	for _, p := range proposals {
		if p.BranchName(currentUser) == name {
			return p
		}
	}
	return nil
}

// StatusFromEvent classifies a raw Status event's kind into a
// ProposalStatus and extracts the proposal root id it targets.
func StatusFromEvent(event *nostr.Event) (rootID string, status ProposalStatus, ok bool) {
	if !IsStatusKind(event.Kind) {
		return "", StatusOpen, false
	}
	rootID, found := markedEventRef(event.Tags, TagEventRef, MarkerRoot)
	if !found {
		return "", StatusOpen, false
	}
	return rootID, statusFromKind(event.Kind), true
}
