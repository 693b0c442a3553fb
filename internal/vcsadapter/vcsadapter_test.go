package vcsadapter

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// testRepo builds a linear three-commit history (base, middle, tip) in a
// throwaway working directory and returns the adapter plus each commit's
// hash.
func testRepo(t *testing.T) (a *Adapter, wt *git.Worktree, commit func(content string) string) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("init repo: %v", err)
	}
	w, err := repo.Worktree()
	if err != nil {
		t.Fatalf("worktree: %v", err)
	}
	n := 0
	commit = func(content string) string {
		n++
		name := filepath.Join(dir, "file.txt")
		if err := os.WriteFile(name, []byte(content), 0o644); err != nil {
			t.Fatalf("write file: %v", err)
		}
		if _, err := w.Add("file.txt"); err != nil {
			t.Fatalf("add: %v", err)
		}
		sig := &object.Signature{Name: "tester", Email: "tester@example.com", When: time.Unix(int64(n), 0)}
		h, err := w.Commit("commit "+content, &git.CommitOptions{Author: sig, Committer: sig})
		if err != nil {
			t.Fatalf("commit: %v", err)
		}
		return h.String()
	}

	a, err = Open(dir, nil)
	if err != nil {
		t.Fatalf("open adapter: %v", err)
	}
	return a, w, commit
}

func TestResolveAndSetRef(t *testing.T) {
	a, _, commit := testRepo(t)
	c1 := commit("one")

	got, err := a.ResolveRef("refs/heads/master")
	if err != nil {
		t.Fatalf("resolve master: %v", err)
	}
	if got != c1 {
		t.Fatalf("expected master to resolve to %s, got %s", c1, got)
	}

	if got, err := a.ResolveRef("refs/heads/does-not-exist"); err != nil || got != "" {
		t.Fatalf("expected empty string and no error for a missing ref, got %q, %v", got, err)
	}

	if err := a.SetRef("refs/ngit/fetched/"+c1, c1); err != nil {
		t.Fatalf("set ref: %v", err)
	}
	got, err = a.ResolveRef("refs/ngit/fetched/" + c1)
	if err != nil || got != c1 {
		t.Fatalf("expected the newly-set ref to resolve to %s, got %q, %v", c1, got, err)
	}
}

func TestIsAncestor(t *testing.T) {
	a, _, commit := testRepo(t)
	c1 := commit("one")
	c2 := commit("two")

	ok, err := a.IsAncestor(c1, c2)
	if err != nil {
		t.Fatalf("is ancestor: %v", err)
	}
	if !ok {
		t.Fatal("expected c1 to be an ancestor of c2")
	}

	ok, err = a.IsAncestor(c2, c1)
	if err != nil {
		t.Fatalf("is ancestor reversed: %v", err)
	}
	if ok {
		t.Fatal("expected c2 to not be an ancestor of c1")
	}

	ok, err = a.IsAncestor(c1, c1)
	if err != nil || !ok {
		t.Fatalf("expected a commit to be its own ancestor, got %v, %v", ok, err)
	}
}

func TestAheadBehindLinearHistory(t *testing.T) {
	a, _, commit := testRepo(t)
	c1 := commit("one")
	c2 := commit("two")

	ahead, behind, hasCommon, err := a.AheadBehind(c2, c1)
	if err != nil {
		t.Fatalf("ahead behind: %v", err)
	}
	if ahead != 1 || behind != 0 || !hasCommon {
		t.Fatalf("expected ahead=1 behind=0 hasCommon=true, got ahead=%d behind=%d hasCommon=%v", ahead, behind, hasCommon)
	}
}

func TestAheadBehindDiverged(t *testing.T) {
	a, w, commit := testRepo(t)
	base := commit("base")
	left := commit("left")

	if err := w.Checkout(&git.CheckoutOptions{Hash: plumbing.NewHash(base)}); err != nil {
		t.Fatalf("checkout base: %v", err)
	}
	name := filepath.Join(w.Filesystem.Root(), "sibling.txt")
	if err := os.WriteFile(name, []byte("right"), 0o644); err != nil {
		t.Fatalf("write sibling: %v", err)
	}
	if _, err := w.Add("sibling.txt"); err != nil {
		t.Fatalf("add sibling: %v", err)
	}
	sig := &object.Signature{Name: "tester", Email: "tester@example.com", When: time.Unix(99, 0)}
	rightHash, err := w.Commit("right", &git.CommitOptions{Author: sig, Committer: sig})
	if err != nil {
		t.Fatalf("commit sibling: %v", err)
	}
	right := rightHash.String()

	ahead, behind, hasCommon, err := a.AheadBehind(right, left)
	if err != nil {
		t.Fatalf("ahead behind: %v", err)
	}
	if ahead != 1 || behind != 1 || !hasCommon {
		t.Fatalf("expected ahead=1 behind=1 hasCommon=true, got ahead=%d behind=%d hasCommon=%v", ahead, behind, hasCommon)
	}
}

func TestCommitsAhead(t *testing.T) {
	a, _, commit := testRepo(t)
	base := commit("base")
	tip := commit("tip")

	data, err := a.CommitsAhead(base, tip)
	if err != nil {
		t.Fatalf("commits ahead: %v", err)
	}
	if len(data) != 1 {
		t.Fatalf("expected exactly 1 commit ahead of base, got %d", len(data))
	}
	if data[0].Commit != tip {
		t.Fatalf("expected the single commit to be %s, got %s", tip, data[0].Commit)
	}
	if data[0].ParentCommit != base {
		t.Fatalf("expected parent %s, got %s", base, data[0].ParentCommit)
	}
	if !strings.Contains(data[0].PatchText, "file.txt") {
		t.Fatalf("expected a unified diff mentioning file.txt, got %q", data[0].PatchText)
	}
}

func TestCommitsAheadMultiCommitOrdering(t *testing.T) {
	a, _, commit := testRepo(t)
	base := commit("base")
	mid := commit("mid")
	tip := commit("tip")

	data, err := a.CommitsAhead(base, tip)
	if err != nil {
		t.Fatalf("commits ahead: %v", err)
	}
	if len(data) != 2 {
		t.Fatalf("expected 2 commits ahead of base, got %d", len(data))
	}
	if data[0].Commit != mid || data[1].Commit != tip {
		t.Fatalf("expected base-to-tip order [mid, tip], got [%s, %s]", data[0].Commit, data[1].Commit)
	}
	if data[0].ParentCommit != base {
		t.Fatalf("expected first commit's parent to be base, got %s", data[0].ParentCommit)
	}
	if data[1].ParentCommit != mid {
		t.Fatalf("expected second commit's parent to be mid, got %s", data[1].ParentCommit)
	}
}
