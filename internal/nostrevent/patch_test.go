package nostrevent

import (
	"testing"

	"github.com/nbd-wtf/go-nostr"
)

func patchWithCommit(id, commit, parent string) *Patch {
	return &Patch{
		Event:        &nostr.Event{ID: id},
		Commit:       commit,
		ParentCommit: parent,
	}
}

// TestBuildChainScenario3 mirrors spec scenario 3: root P (parent=base),
// p1 (parent=base, commit=c1), p2 (parent=c1, commit=c2). Expected chain
// order is tip-first: [p2, p1].
func TestBuildChainScenario3(t *testing.T) {
	root := patchWithCommit("P", "base", "")
	root.IsRoot = true
	p1 := patchWithCommit("p1", "c1", "base")
	p2 := patchWithCommit("p2", "c2", "c1")

	chain, err := BuildChain(root, []*Patch{p1, p2})
	if err != nil {
		t.Fatalf("BuildChain failed: %v", err)
	}
	if len(chain) != 2 || chain[0].Event.ID != "p2" || chain[1].Event.ID != "p1" {
		t.Fatalf("unexpected chain order: %+v", idsOf(chain))
	}
}

func TestBuildChainEmptyMembers(t *testing.T) {
	root := patchWithCommit("P", "base", "")
	chain, err := BuildChain(root, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chain != nil {
		t.Fatalf("expected nil chain, got %+v", chain)
	}
}

func TestBuildChainDetectsCycle(t *testing.T) {
	root := patchWithCommit("P", "base", "")
	a := patchWithCommit("a", "c1", "c2")
	b := patchWithCommit("b", "c2", "c1")
	if _, err := BuildChain(root, []*Patch{a, b}); err == nil {
		t.Fatal("expected inconsistency error for cyclic chain")
	}
}

func TestBuildChainDetectsDisconnectedSet(t *testing.T) {
	root := patchWithCommit("P", "base", "")
	a := patchWithCommit("a", "c1", "base")
	b := patchWithCommit("b", "c9", "c8") // disconnected from a's chain
	if _, err := BuildChain(root, []*Patch{a, b}); err == nil {
		t.Fatal("expected inconsistency error for disconnected patch set")
	}
}

func idsOf(patches []*Patch) []string {
	out := make([]string, len(patches))
	for i, p := range patches {
		out[i] = p.Event.ID
	}
	return out
}
