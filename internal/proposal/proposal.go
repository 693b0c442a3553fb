// Package proposal implements the C5 proposal engine: assembling,
// signing and publishing patch-set events, listing open proposals from
// the cache, and diffing a proposal's chain against the local branch tip
// (§4.5).
package proposal

import (
	"context"
	"fmt"

	"github.com/nbd-wtf/go-nostr"

	"github.com/nostrgit/ngit/internal/cache"
	"github.com/nostrgit/ngit/internal/nostrevent"
	"github.com/nostrgit/ngit/internal/vcsadapter"
)

// Signer abstracts key material or a remote-signer (NIP-46) session; the
// interactive unlock/dialog flow is an external collaborator per §1's
// scope note.
type Signer interface {
	PublicKey() string
	Sign(ctx context.Context, event *nostr.Event) error
}

// Sender abstracts the slice of C2 the engine needs to publish events.
type Sender interface {
	Send(ctx context.Context, relay string, event *nostr.Event) (string, error)
}

// Engine is the C5 proposal engine.
type Engine struct {
	caches *cache.Caches
	sender Sender
}

// New returns an Engine.
func New(caches *cache.Caches, sender Sender) *Engine {
	return &Engine{caches: caches, sender: sender}
}

// ListOpenProposals implements §4.5's list_open_proposals: fetch every
// PatchSetRoot tagged to repoRef's coordinates, drop superseded roots (a
// revision root's target, per the event_is_revision_root predicate of
// §9), determine status per remaining root, and reconstruct each open
// root's patch chain. A proposal that fails reconstruction is silently
// dropped from the result (§7's ProposalInconsistent, demoted on list).
func (e *Engine) ListOpenProposals(ctx context.Context, repoRef *nostrevent.RepoRef) (map[string]*nostrevent.Proposal, error) {
	coordStrings := make([]string, 0, len(repoRef.Maintainers))
	for maintainer := range repoRef.Maintainers {
		coordStrings = append(coordStrings, nostrevent.RepoCoordinate(maintainer, repoRef.Identifier).String())
	}
	if len(coordStrings) == 0 {
		return map[string]*nostrevent.Proposal{}, nil
	}

	events, err := e.caches.Local.Query(ctx, []nostr.Filter{{
		Kinds: []int{nostrevent.KindPatch},
		Tags:  nostr.TagMap{"a": coordStrings},
	}})
	if err != nil {
		return nil, fmt.Errorf("proposal: query patches: %w", err)
	}

	roots := map[string]*nostrevent.Patch{}
	membersByRoot := map[string][]*nostrevent.Patch{}
	superseded := map[string]bool{}

	for _, evt := range events {
		p, err := nostrevent.ParsePatch(evt)
		if err != nil {
			continue
		}
		if p.IsRoot {
			roots[evt.ID] = p
			if p.IsRevisionRoot() {
				superseded[p.RevisionOf] = true
			}
			continue
		}
		membersByRoot[p.RootOrOwnID()] = append(membersByRoot[p.RootOrOwnID()], p)
	}

	var rootIDs []string
	for id := range roots {
		if !superseded[id] {
			rootIDs = append(rootIDs, id)
		}
	}

	statusEvents, err := e.caches.Local.Query(ctx, []nostr.Filter{{
		Kinds: nostrevent.StatusKinds,
		Tags:  nostr.TagMap{"e": rootIDs},
	}})
	if err != nil {
		return nil, fmt.Errorf("proposal: query statuses: %w", err)
	}
	latestStatus := map[string]*nostr.Event{}
	for _, evt := range statusEvents {
		rootID, _, ok := nostrevent.StatusFromEvent(evt)
		if !ok {
			continue
		}
		if existing, ok := latestStatus[rootID]; !ok || evt.CreatedAt > existing.CreatedAt {
			latestStatus[rootID] = evt
		}
	}

	out := map[string]*nostrevent.Proposal{}
	for _, rootID := range rootIDs {
		root := roots[rootID]
		status := nostrevent.StatusOpen
		if statusEvt, ok := latestStatus[rootID]; ok {
			_, s, _ := nostrevent.StatusFromEvent(statusEvt)
			status = s
		}
		if status != nostrevent.StatusOpen {
			continue
		}
		chain, err := nostrevent.BuildChain(root, membersByRoot[rootID])
		if err != nil {
			continue // §7: demote ProposalInconsistent to a silent skip during listing
		}
		out[rootID] = &nostrevent.Proposal{Root: root, Patches: chain, Status: status}
	}

	return out, nil
}

// CommitInfo is the minimal shape PublishPatchSet needs per commit: its
// id, its parent's id, and the patch text to carry as the event content.
type CommitInfo struct {
	Commit       string
	ParentCommit string
	PatchText    string
}

// PublishPatchSet implements §4.5's publish_patch_set: builds one Patch
// event per commit (the first carrying a cover-letter and becoming the
// PatchSetRoot), tags each to reference every preceding patch in the same
// batch and to repoCoord, signs them in commit order (O4: each event's id
// must be known before the next references it), and publishes them to the
// union of relays. revisionOf, if non-empty, marks this publication as a
// revision of a prior root (force-push semantics, §9).
func (e *Engine) PublishPatchSet(ctx context.Context, commits []CommitInfo, base string, repoCoord nostrevent.Coordinate, coverLetter string, signer Signer, revisionOf string, relays []string) ([]*nostr.Event, error) {
	if len(commits) == 0 {
		return nil, fmt.Errorf("proposal: cannot publish an empty patch set")
	}

	events := make([]*nostr.Event, 0, len(commits))
	var rootID string

	for i, c := range commits {
		var tags nostr.Tags
		if i == 0 {
			tags = nostrevent.BuildPatchSetRootTags(c.Commit, base, repoCoord, coverLetter, revisionOf)
		} else {
			tags = nostrevent.BuildPatchTags(c.Commit, c.ParentCommit, repoCoord, rootID, events[i-1].ID)
		}

		evt := &nostr.Event{
			PubKey:    signer.PublicKey(),
			Kind:      nostrevent.KindPatch,
			Content:   c.PatchText,
			Tags:      tags,
			CreatedAt: nostr.Now(),
		}
		if err := signer.Sign(ctx, evt); err != nil {
			return nil, fmt.Errorf("proposal: sign patch %d: %w", i, err)
		}
		if i == 0 {
			rootID = evt.ID
		}
		events = append(events, evt)
	}

	if err := e.publishAll(ctx, events, relays); err != nil {
		return events, err
	}
	return events, nil
}

// publishAll sends every event to every relay in relays, collecting (not
// aborting on) per-send errors the way §4.3's consolidation does for
// fetch.
func (e *Engine) publishAll(ctx context.Context, events []*nostr.Event, relays []string) error {
	var firstErr error
	for _, evt := range events {
		for _, relay := range relays {
			if _, err := e.sender.Send(ctx, relay, evt); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// OutcomeKind enumerates push_update's exhaustive outcome set (§4.5, P7).
type OutcomeKind int

const (
	UpToDate OutcomeKind = iota
	LocalBehindProposal
	LocalDiverged
	AmendmentsRequireForce
	RebaseRequiresForce
	Published
)

// Outcome is push_update's result.
type Outcome struct {
	Kind   OutcomeKind
	Behind int
	Events []*nostr.Event
}

// PushUpdate implements §4.5's push_update algorithm exhaustively (P7):
// given the local branch tip and a proposal, classify into exactly one of
// the enumerated outcomes, publishing new Patch events for the "ahead"
// commits in the Published case.
func (e *Engine) PushUpdate(ctx context.Context, vcs *vcsadapter.Adapter, branchTip string, p *nostrevent.Proposal, repoCoord nostrevent.Coordinate, signer Signer, relays []string, commitsAhead func(base, tip string) ([]CommitInfo, error)) (Outcome, error) {
	chainTip := p.TipCommit()

	if branchTip == chainTip {
		return Outcome{Kind: UpToDate}, nil
	}

	if p.Root.ParentCommit == branchTip {
		return Outcome{Kind: LocalBehindProposal}, nil
	}
	for _, patch := range p.Patches {
		if patch.ParentCommit == branchTip {
			return Outcome{Kind: LocalBehindProposal}, nil
		}
	}

	ahead, behind, hasCommonAncestor, err := vcs.AheadBehind(branchTip, chainTip)
	if err != nil {
		return Outcome{}, fmt.Errorf("proposal: ahead/behind: %w", err)
	}

	if !hasCommonAncestor {
		baseIsAncestor, err := vcs.IsAncestor(p.BaseCommit(), branchTip)
		if err != nil {
			return Outcome{}, fmt.Errorf("proposal: ancestor check: %w", err)
		}
		if baseIsAncestor {
			// The Open Question resolution recorded in DESIGN.md: when
			// neither commit is reachable from the other, classify by
			// whether the proposal's base is an ancestor of the tip.
			return Outcome{Kind: AmendmentsRequireForce}, nil
		}
		return Outcome{Kind: RebaseRequiresForce}, nil
	}

	if behind > 0 {
		return Outcome{Kind: LocalDiverged, Behind: behind}, nil
	}

	commits, err := commitsAhead(chainTip, branchTip)
	if err != nil {
		return Outcome{}, fmt.Errorf("proposal: collect ahead commits: %w", err)
	}
	if len(commits) == 0 {
		return Outcome{Kind: UpToDate}, nil
	}
	_ = ahead // ahead count is informational; commitsAhead supplies the authoritative commit list

	events, err := e.publishChained(ctx, commits, p.Root.Event.ID, p.TipEventID(), repoCoord, signer, relays)
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{Kind: Published, Events: events}, nil
}

// publishChained signs and publishes commits as continuations of an
// existing proposal: every event (including the first) is a reply tagged
// to rootID, each referencing the previous event's id in turn.
func (e *Engine) publishChained(ctx context.Context, commits []CommitInfo, rootID, firstPrevID string, repoCoord nostrevent.Coordinate, signer Signer, relays []string) ([]*nostr.Event, error) {
	events := make([]*nostr.Event, 0, len(commits))
	prevID := firstPrevID
	for i, c := range commits {
		tags := nostrevent.BuildPatchTags(c.Commit, c.ParentCommit, repoCoord, rootID, prevID)
		evt := &nostr.Event{
			PubKey:    signer.PublicKey(),
			Kind:      nostrevent.KindPatch,
			Content:   c.PatchText,
			Tags:      tags,
			CreatedAt: nostr.Now(),
		}
		if err := signer.Sign(ctx, evt); err != nil {
			return nil, fmt.Errorf("proposal: sign chained patch %d: %w", i, err)
		}
		prevID = evt.ID
		events = append(events, evt)
	}
	if err := e.publishAll(ctx, events, relays); err != nil {
		return events, err
	}
	return events, nil
}
