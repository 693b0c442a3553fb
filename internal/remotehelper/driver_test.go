package remotehelper

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/nbd-wtf/go-nostr"

	"github.com/nostrgit/ngit/internal/config"
	"github.com/nostrgit/ngit/internal/nostrevent"
	"github.com/nostrgit/ngit/internal/nostrurl"
	"github.com/nostrgit/ngit/internal/ops"
	"github.com/nostrgit/ngit/internal/vcsadapter"
)

func newTestDriver(in, out *bytes.Buffer) *Driver {
	log := ops.NewLoggerWithWriter(&config.Logging{Level: "error", Format: "text"}, &bytes.Buffer{})
	return New(in, out, log, nil, nil, nil, nil, nil, "", nil, nil)
}

func TestWriteCapabilities(t *testing.T) {
	var out bytes.Buffer
	d := newTestDriver(&bytes.Buffer{}, &out)

	d.writeCapabilities()

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	want := []string{"fetch", "push", "option", ""}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d: %q", len(want), len(lines), out.String())
	}
	for i, w := range want {
		if lines[i] != w {
			t.Errorf("line %d: expected %q, got %q", i, w, lines[i])
		}
	}
}

func TestReadBatchAccumulatesUntilBlankLine(t *testing.T) {
	in := bytes.NewBufferString("fetch def 456\n\n")
	d := newTestDriver(in, &bytes.Buffer{})
	d.in = bufio.NewScanner(in)

	batch, err := d.readBatch("fetch abc 123")
	if err != nil {
		t.Fatalf("readBatch: %v", err)
	}
	want := []string{"fetch abc 123", "fetch def 456"}
	if len(batch) != len(want) || batch[0] != want[0] || batch[1] != want[1] {
		t.Fatalf("expected %v, got %v", want, batch)
	}
}

func TestHandleOptionAlwaysUnsupported(t *testing.T) {
	var out bytes.Buffer
	d := newTestDriver(&bytes.Buffer{}, &out)

	d.handleOption("option progress true")

	if got := strings.TrimSpace(out.String()); got != "unsupported" {
		t.Fatalf("expected \"unsupported\", got %q", got)
	}
}

func sk() (string, string) {
	priv := nostr.GeneratePrivateKey()
	pub, _ := nostr.GetPublicKey(priv)
	return priv, pub
}

func signedPatch(t *testing.T, priv string, coord nostrevent.Coordinate, commit, parent, coverLetter string) *nostrevent.Patch {
	t.Helper()
	evt := &nostr.Event{
		Kind:      nostrevent.KindPatch,
		CreatedAt: nostr.Timestamp(1),
		Tags:      nostrevent.BuildPatchSetRootTags(commit, parent, coord, coverLetter, ""),
	}
	if err := evt.Sign(priv); err != nil {
		t.Fatalf("sign: %v", err)
	}
	p, err := nostrevent.ParsePatch(evt)
	if err != nil {
		t.Fatalf("parse patch: %v", err)
	}
	return p
}

// TestHandleListMergesSyntheticProposalRefs covers scenario 3: a proposal
// with no reachable VCS server (CloneURLList empty, so no network call is
// ever attempted) still surfaces as a synthetic refs/heads/<branch> entry
// pointing at its tip commit.
func TestHandleListMergesSyntheticProposalRefs(t *testing.T) {
	priv, pub := sk()
	coord := nostrevent.RepoCoordinate(pub, "my-repo")
	root := signedPatch(t, priv, coord, "c1", "base", "Add widgets\n\nmore detail")

	var out bytes.Buffer
	d := newTestDriver(&bytes.Buffer{}, &out)
	d.repoRef = nostrevent.NewRepoRef("my-repo")
	d.openProps = map[string]*nostrevent.Proposal{
		root.Event.ID: {Root: root, Status: nostrevent.StatusOpen},
	}
	d.resolved = true

	if err := d.handleList(context.Background(), false); err != nil {
		t.Fatalf("handleList: %v", err)
	}

	output := out.String()
	wantRef := branchesPrefix + "add-widgets"
	if !strings.Contains(output, wantRef) {
		t.Fatalf("expected ref %q in output, got %q", wantRef, output)
	}
	if !strings.Contains(output, "c1 "+wantRef) {
		t.Fatalf("expected tip commit c1 mapped to %s, got %q", wantRef, output)
	}
	if !strings.HasSuffix(output, "\n\n") {
		t.Fatalf("expected list output to end with a blank line, got %q", output)
	}
}

// TestHandleListEmitsHeadSymref covers §4.6's "then @<sym> HEAD if
// applicable" list-assembly step: a repository whose HEAD is a symbolic
// ref advertises it after the ref lines.
func TestHandleListEmitsHeadSymref(t *testing.T) {
	dir := t.TempDir()
	if _, err := git.PlainInit(dir, false); err != nil {
		t.Fatalf("init repo: %v", err)
	}
	vcs, err := vcsadapter.Open(dir, nil)
	if err != nil {
		t.Fatalf("open adapter: %v", err)
	}

	var out bytes.Buffer
	d := newTestDriver(&bytes.Buffer{}, &out)
	d.vcs = vcs
	d.repoRef = nostrevent.NewRepoRef("my-repo")
	d.openProps = map[string]*nostrevent.Proposal{}
	d.resolved = true

	if err := d.handleList(context.Background(), false); err != nil {
		t.Fatalf("handleList: %v", err)
	}

	output := out.String()
	if !strings.Contains(output, "@refs/heads/master HEAD\n") {
		t.Fatalf("expected @refs/heads/master HEAD symref advertisement, got %q", output)
	}
	if !strings.HasSuffix(output, "\n\n") {
		t.Fatalf("expected list output to end with a blank line, got %q", output)
	}
}

func TestHandlePushMalformedRefspec(t *testing.T) {
	var out bytes.Buffer
	d := newTestDriver(&bytes.Buffer{}, &out)
	d.repoRef = nostrevent.NewRepoRef("my-repo")
	d.openProps = map[string]*nostrevent.Proposal{}

	d.handlePush(context.Background(), []string{"push no-colon-here"})

	if !strings.Contains(out.String(), "error no-colon-here malformed refspec") {
		t.Fatalf("expected malformed refspec error, got %q", out.String())
	}
}

func TestHandleFetchMalformedLine(t *testing.T) {
	var out bytes.Buffer
	d := newTestDriver(&bytes.Buffer{}, &out)
	d.repoRef = nostrevent.NewRepoRef("my-repo")

	d.handleFetch(context.Background(), []string{"fetch onlyoneword"})

	if strings.TrimSpace(out.String()) != "" {
		t.Fatalf("expected no fetch output for a malformed line (besides the trailing blank), got %q", out.String())
	}
}

func TestRunRejectsUnrecognizedCommand(t *testing.T) {
	in := bytes.NewBufferString("bogus-command\n")
	var out bytes.Buffer
	d := newTestDriver(in, &out)

	err := d.Run(context.Background(), &nostrurl.RepoURL{Identifier: "my-repo"})
	if err == nil {
		t.Fatal("expected an error for an unrecognized command")
	}
	if !strings.Contains(err.Error(), "protocol violation") {
		t.Fatalf("expected a protocol violation error, got %v", err)
	}
}
