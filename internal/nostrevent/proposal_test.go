package nostrevent

import (
	"testing"

	"github.com/nbd-wtf/go-nostr"
)

func rootWithLetter(author, coverLetter string) *Patch {
	return &Patch{
		Event:       &nostr.Event{ID: "root1", PubKey: author},
		IsRoot:      true,
		CoverLetter: coverLetter,
	}
}

func TestBranchNameDerivedForNonAuthor(t *testing.T) {
	root := rootWithLetter("author1", "Fix the frobnicator\n\nlonger body")
	p := &Proposal{Root: root}
	name := p.BranchName("someone-else")
	if name != "fix-the-frobnicator" {
		t.Fatalf("got %q", name)
	}
}

func TestBranchNamePrefersAuthorChosenName(t *testing.T) {
	root := rootWithLetter("author1", "Fix the frobnicator")
	root.Event.Tags = nostr.Tags{{TagBranchName, "my-fix-branch"}}
	p := &Proposal{Root: root}
	if got := p.BranchName("author1"); got != "my-fix-branch" {
		t.Fatalf("got %q, want own branch name", got)
	}
	if got := p.BranchName("someone-else"); got == "my-fix-branch" {
		t.Fatalf("non-author viewer should not see author's chosen name, got %q", got)
	}
}

func TestMatchBranchAtMostOne(t *testing.T) {
	root := rootWithLetter("author1", "Fix the frobnicator")
	proposals := map[string]*Proposal{
		"root1": {Root: root},
	}
	got := MatchBranch("refs/heads/fix-the-frobnicator", proposals, "refs/heads/", "viewer")
	if got == nil {
		t.Fatal("expected a match")
	}
	if MatchBranch("refs/heads/nonexistent", proposals, "refs/heads/", "viewer") != nil {
		t.Fatal("expected no match for unrelated ref")
	}
}

func TestStatusFromEvent(t *testing.T) {
	evt := &nostr.Event{
		Kind: KindStatusApplied,
		Tags: nostr.Tags{newMarkedEventTag(TagEventRef, "root1", MarkerRoot)},
	}
	rootID, status, ok := StatusFromEvent(evt)
	if !ok || rootID != "root1" || status != StatusApplied {
		t.Fatalf("got rootID=%q status=%v ok=%v", rootID, status, ok)
	}
}

func TestStatusFromEventIgnoresOtherKinds(t *testing.T) {
	evt := &nostr.Event{Kind: KindPatch}
	if _, _, ok := StatusFromEvent(evt); ok {
		t.Fatal("expected ok=false for non-status kind")
	}
}
