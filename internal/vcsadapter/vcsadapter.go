// Package vcsadapter implements the C8 VCS adapter: the minimal contract
// the core consumes from the underlying version control library — remote
// add, reference read/write, object transfer and ahead/behind/ancestor
// queries — wrapping go-git/go-git/v5 (§4.8).
package vcsadapter

import (
	"context"
	"fmt"
	"io"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	sshtransport "github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"github.com/nostrgit/ngit/internal/ops"
)

// Adapter wraps one working repository's go-git handle.
type Adapter struct {
	repo   *git.Repository
	gitDir string
	log    *ops.Logger
}

// Open discovers the working repository the remote helper was invoked
// from (the CWD git sets for a remote-helper subprocess).
func Open(path string, log *ops.Logger) (*Adapter, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("vcsadapter: open %s: %w", path, err)
	}
	wt, err := repo.Worktree()
	gitDir := path
	if err == nil {
		gitDir = wt.Filesystem.Root() + "/.git"
	}
	return &Adapter{repo: repo, gitDir: gitDir, log: log}, nil
}

// GitDir returns the repository's .git directory, used to place the local
// event cache (§6).
func (a *Adapter) GitDir() string { return a.gitDir }

// ResolveRef resolves a reference name (e.g. "refs/heads/main") to a
// commit id, returning "" if the ref does not exist.
func (a *Adapter) ResolveRef(refstr string) (string, error) {
	ref, err := a.repo.Reference(plumbing.ReferenceName(refstr), true)
	if err == plumbing.ErrReferenceNotFound {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("vcsadapter: resolve %s: %w", refstr, err)
	}
	return ref.Hash().String(), nil
}

// SetRef writes refstr to point at commit, creating it if necessary.
func (a *Adapter) SetRef(refstr, commit string) error {
	ref := plumbing.NewHashReference(plumbing.ReferenceName(refstr), plumbing.NewHash(commit))
	if err := a.repo.Storer.SetReference(ref); err != nil {
		return fmt.Errorf("vcsadapter: set ref %s: %w", refstr, err)
	}
	return nil
}

// HeadSymbolic returns the branch name HEAD currently points at, if HEAD
// is a symbolic ref (used for the "@<sym> HEAD" advertisement in `list`).
func (a *Adapter) HeadSymbolic() (string, bool) {
	ref, err := a.repo.Reference(plumbing.HEAD, false)
	if err != nil || ref.Type() != plumbing.SymbolicReference {
		return "", false
	}
	return string(ref.Target()), true
}

func (a *Adapter) commit(id string) (*object.Commit, error) {
	commit, err := a.repo.CommitObject(plumbing.NewHash(id))
	if err != nil {
		return nil, fmt.Errorf("vcsadapter: load commit %s: %w", id, err)
	}
	return commit, nil
}

// IsAncestor reports whether ancestor is an ancestor of (or equal to)
// descendant.
func (a *Adapter) IsAncestor(ancestor, descendant string) (bool, error) {
	if ancestor == descendant {
		return true, nil
	}
	anc, err := a.commit(ancestor)
	if err != nil {
		return false, err
	}
	desc, err := a.commit(descendant)
	if err != nil {
		return false, err
	}
	return anc.IsAncestor(desc)
}

// AheadBehind computes, between a (local) and b (remote/proposal) commit
// ids, how many commits a has that b lacks (ahead) and vice versa
// (behind), per §4.5's push_update classification. hasCommonAncestor
// reports whether the two histories share any commit at all; when false,
// the caller falls back to the ancestry checks §4.5/§9 describe for the
// "no common ancestor" branches.
func (a *Adapter) AheadBehind(aID, bID string) (ahead, behind int, hasCommonAncestor bool, err error) {
	if aID == bID {
		return 0, 0, true, nil
	}
	aSet, aOrder, err := a.ancestorSet(aID)
	if err != nil {
		return 0, 0, false, err
	}
	bSet, bOrder, err := a.ancestorSet(bID)
	if err != nil {
		return 0, 0, false, err
	}

	for _, id := range aOrder {
		if !bSet[id] {
			ahead++
		} else {
			hasCommonAncestor = true
		}
	}
	for _, id := range bOrder {
		if !aSet[id] {
			behind++
		}
	}
	return ahead, behind, hasCommonAncestor, nil
}

// ancestorSet walks every commit reachable from start and returns the set
// of ids plus the order they were visited in (start first).
func (a *Adapter) ancestorSet(start string) (map[string]bool, []string, error) {
	set := map[string]bool{}
	var order []string
	queue := []string{start}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if set[id] {
			continue
		}
		set[id] = true
		order = append(order, id)
		commit, err := a.commit(id)
		if err != nil {
			return nil, nil, err
		}
		for _, parent := range commit.ParentHashes {
			queue = append(queue, parent.String())
		}
	}
	return set, order, nil
}

// CommitData is one commit's identity plus its unified diff against its
// parent, the shape internal/proposal needs to build Patch events for a
// push (§4.5's publish_patch_set / push_update).
type CommitData struct {
	Commit       string
	ParentCommit string
	PatchText    string
}

// CommitsAhead returns, in base-to-tip order, every commit reachable from
// tip but not from base, each carrying its unified diff against its
// parent (or, for a root commit with no parent, its commit message).
func (a *Adapter) CommitsAhead(base, tip string) ([]CommitData, error) {
	tipCommit, err := a.commit(tip)
	if err != nil {
		return nil, err
	}
	baseSet, _, err := a.ancestorSet(base)
	if err != nil {
		return nil, err
	}

	var chain []*object.Commit
	cur := tipCommit
	for {
		if baseSet[cur.Hash.String()] {
			break
		}
		chain = append(chain, cur)
		if cur.NumParents() == 0 {
			break
		}
		parent, err := cur.Parent(0)
		if err != nil {
			return nil, fmt.Errorf("vcsadapter: walk commit %s: %w", cur.Hash, err)
		}
		cur = parent
	}

	out := make([]CommitData, len(chain))
	for i, c := range chain {
		idx := len(chain) - 1 - i // reverse: chain was walked tip-to-base
		data := CommitData{Commit: c.Hash.String(), ParentCommit: base}
		if c.NumParents() > 0 {
			parent, err := c.Parent(0)
			if err != nil {
				return nil, fmt.Errorf("vcsadapter: load parent of %s: %w", c.Hash, err)
			}
			data.ParentCommit = parent.Hash.String()
			patch, err := parent.Patch(c)
			if err != nil {
				return nil, fmt.Errorf("vcsadapter: diff %s: %w", c.Hash, err)
			}
			data.PatchText = patch.String()
		} else {
			data.PatchText = c.Message
		}
		out[idx] = data
	}
	return out, nil
}

// ProgressWriter adapts go-git's sideband progress stream into the
// {direction, status} callback shape §4.8 specifies, forwarding every
// line it receives to the logger, per SPEC_FULL.md §9's supplemented
// progress-reporting feature.
type ProgressWriter struct {
	Log       *ops.Logger
	Direction ops.TransferDirection
}

func (w *ProgressWriter) Write(p []byte) (int, error) {
	if w.Log != nil {
		w.Log.LogTransferProgress(w.Direction, ops.TransferInProgress, string(p))
	}
	return len(p), nil
}

// transportAuth resolves the go-git AuthMethod for a chosen protocol
// candidate; unauth-http/unauth-https candidates pass no auth at all.
func transportAuth(sshKeyPath string) (transport.AuthMethod, error) {
	if sshKeyPath == "" {
		auth, err := sshtransport.NewSSHAgentAuth("git")
		if err != nil {
			return nil, fmt.Errorf("vcsadapter: ssh-agent unavailable: %w", err)
		}
		return auth, nil
	}
	auth, err := sshtransport.NewPublicKeysFromFile("git", sshKeyPath, "")
	if err != nil {
		return nil, fmt.Errorf("vcsadapter: load ssh key %s: %w", sshKeyPath, err)
	}
	return auth, nil
}

// FetchOptions configures a native fetch against a remote URL (§4.8).
type FetchOptions struct {
	URL      string
	RefSpecs []string
	Auth     transport.AuthMethod
	Progress io.Writer
}

// Fetch performs a native fetch against url, using a throwaway remote
// config so the caller doesn't need a persistent `git remote add`.
func (a *Adapter) Fetch(ctx context.Context, opts FetchOptions) error {
	remote := git.NewRemote(a.repo.Storer, &config.RemoteConfig{
		Name: "ngit-transient",
		URLs: []string{opts.URL},
	})

	specs := make([]config.RefSpec, 0, len(opts.RefSpecs))
	for _, s := range opts.RefSpecs {
		specs = append(specs, config.RefSpec(s))
	}

	err := remote.FetchContext(ctx, &git.FetchOptions{
		RefSpecs: specs,
		Auth:     opts.Auth,
		Progress: opts.Progress,
	})
	if err == git.NoErrAlreadyUpToDate {
		return nil
	}
	return err
}

// PushOptions configures a native push against a remote URL (§4.8).
type PushOptions struct {
	URL      string
	RefSpecs []string
	Auth     transport.AuthMethod
	Progress io.Writer
	Force    bool
}

// Push performs a native push against url.
func (a *Adapter) Push(ctx context.Context, opts PushOptions) error {
	remote := git.NewRemote(a.repo.Storer, &config.RemoteConfig{
		Name: "ngit-transient",
		URLs: []string{opts.URL},
	})

	specs := make([]config.RefSpec, 0, len(opts.RefSpecs))
	for _, s := range opts.RefSpecs {
		spec := s
		if opts.Force && len(spec) > 0 && spec[0] != '+' {
			spec = "+" + spec
		}
		specs = append(specs, config.RefSpec(spec))
	}

	err := remote.PushContext(ctx, &git.PushOptions{
		RefSpecs: specs,
		Auth:     opts.Auth,
		Progress: opts.Progress,
	})
	if err == git.NoErrAlreadyUpToDate {
		return nil
	}
	return err
}

// ListRemoteRefs lists every ref a remote server advertises, without
// fetching any objects — used by `list`/`list for-push` to enumerate the
// VCS server's refs (§4.6's List assembly).
func (a *Adapter) ListRemoteRefs(url string, auth transport.AuthMethod) (map[string]string, error) {
	remote := git.NewRemote(a.repo.Storer, &config.RemoteConfig{
		Name: "ngit-transient-list",
		URLs: []string{url},
	})
	refs, err := remote.List(&git.ListOptions{Auth: auth})
	if err != nil {
		return nil, fmt.Errorf("vcsadapter: list refs %s: %w", url, err)
	}
	out := make(map[string]string, len(refs))
	for _, ref := range refs {
		if ref.Type() != plumbing.HashReference {
			continue
		}
		out[string(ref.Name())] = ref.Hash().String()
	}
	return out, nil
}

// AuthForProtocol resolves a transport.AuthMethod for a chosen candidate
// protocol name; "unauth-*" protocols resolve to nil (no credentials), ssh
// resolves through the configured key path or ssh-agent.
func AuthForProtocol(protocol, sshKeyPath string) (transport.AuthMethod, error) {
	switch protocol {
	case "unauth-http", "unauth-https", "filesystem", "ftp":
		return nil, nil
	case "ssh":
		return transportAuth(sshKeyPath)
	default:
		return nil, nil
	}
}
