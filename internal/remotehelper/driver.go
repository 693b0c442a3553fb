// Package remotehelper implements the C6 remote-helper protocol driver:
// the line-protocol state machine git invokes as a remote-helper
// subprocess, wiring together identity resolution, the fetch
// orchestrator, the proposal engine, the transport selector and the VCS
// adapter (§4.6).
package remotehelper

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/nostrgit/ngit/internal/cache"
	"github.com/nostrgit/ngit/internal/identity"
	"github.com/nostrgit/ngit/internal/nostrevent"
	"github.com/nostrgit/ngit/internal/nostrurl"
	"github.com/nostrgit/ngit/internal/ops"
	"github.com/nostrgit/ngit/internal/proposal"
	"github.com/nostrgit/ngit/internal/transport"
	"github.com/nostrgit/ngit/internal/vcsadapter"
)

const branchesPrefix = "refs/heads/"

// Driver is the C6 state machine. One Driver serves one remote-helper
// invocation for one (remote-name, url) pair.
type Driver struct {
	in  *bufio.Scanner
	out io.Writer
	log *ops.Logger

	resolver  *identity.Resolver
	proposals *proposal.Engine
	vcs       *vcsadapter.Adapter
	caches    *cache.Caches

	sshKeyPath     string
	signer         proposal.Signer
	writeRelays    []string
	forcedProtocol transport.Protocol
	preferOrder    []string

	url       *nostrurl.RepoURL
	repoRef   *nostrevent.RepoRef
	openProps map[string]*nostrevent.Proposal
	resolved  bool
}

// New returns a Driver reading from in and writing protocol responses to
// out; log receives every diagnostic and progress line (stderr, never
// stdout, per §6).
func New(in io.Reader, out io.Writer, log *ops.Logger, resolver *identity.Resolver, proposals *proposal.Engine, vcs *vcsadapter.Adapter, caches *cache.Caches, signer proposal.Signer, sshKeyPath string, writeRelays []string, preferOrder []string) *Driver {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &Driver{
		in:          scanner,
		out:         out,
		log:         log,
		resolver:    resolver,
		proposals:   proposals,
		vcs:         vcs,
		caches:      caches,
		sshKeyPath:  sshKeyPath,
		signer:      signer,
		writeRelays: writeRelays,
		preferOrder: preferOrder,
	}
}

// Run drives the state machine to completion (EOF on stdin, or a fatal
// protocol violation).
func (d *Driver) Run(ctx context.Context, repoURL *nostrurl.RepoURL) error {
	d.url = repoURL
	if repoURL.ForcedProtocol != "" {
		d.forcedProtocol = transport.Protocol(repoURL.ForcedProtocol)
	}

	for d.in.Scan() {
		line := d.in.Text()
		switch {
		case line == "":
			continue
		case line == "capabilities":
			d.writeCapabilities()
		case strings.HasPrefix(line, "option "):
			d.handleOption(line)
		case line == "list" || line == "list for-push":
			if err := d.handleList(ctx, strings.HasSuffix(line, "for-push")); err != nil {
				d.log.Error("list failed", "error", err)
				return err
			}
		case strings.HasPrefix(line, "fetch "):
			batch, err := d.readBatch(line)
			if err != nil {
				return err
			}
			d.handleFetch(ctx, batch)
		case strings.HasPrefix(line, "push "):
			batch, err := d.readBatch(line)
			if err != nil {
				return err
			}
			d.handlePush(ctx, batch)
		default:
			return fmt.Errorf("remotehelper: protocol violation: unrecognized command %q", line)
		}
	}
	return d.in.Err()
}

// readBatch accumulates lines of the same command until a blank line,
// per §4.6's batch-accumulation rule.
func (d *Driver) readBatch(first string) ([]string, error) {
	batch := []string{first}
	for d.in.Scan() {
		line := d.in.Text()
		if line == "" {
			return batch, nil
		}
		batch = append(batch, line)
	}
	if err := d.in.Err(); err != nil {
		return nil, err
	}
	return batch, nil
}

func (d *Driver) writeCapabilities() {
	fmt.Fprintln(d.out, "fetch")
	fmt.Fprintln(d.out, "push")
	fmt.Fprintln(d.out, "option")
	fmt.Fprintln(d.out)
}

func (d *Driver) handleOption(line string) {
	// No option this driver honors changes its own behavior; respond
	// unsupported for all, which git tolerates for options it offered.
	fmt.Fprintln(d.out, "unsupported")
}

// ensureResolved resolves the repository identity and open proposals at
// most once per invocation (§4.4/§4.6's `list` control flow).
func (d *Driver) ensureResolved(ctx context.Context) error {
	if d.resolved {
		return nil
	}
	ref, err := d.resolver.Resolve(ctx, d.url)
	if err != nil {
		return fmt.Errorf("remotehelper: %w", err)
	}
	d.repoRef = ref

	props, err := d.proposals.ListOpenProposals(ctx, ref)
	if err != nil {
		return fmt.Errorf("remotehelper: list open proposals: %w", err)
	}
	d.openProps = props
	d.resolved = true
	return nil
}

// handleList implements §4.6's list assembly: the union of every
// candidate VCS server's refs (first authoritative server per refstr
// wins) and synthetic refs for each open proposal.
func (d *Driver) handleList(ctx context.Context, forPush bool) error {
	if err := d.ensureResolved(ctx); err != nil {
		return err
	}

	op := transport.OpRead
	if forPush {
		op = transport.OpWrite
	}

	merged := map[string]string{}
	for _, serverURL := range d.repoRef.CloneURLList() {
		refs, err := d.listRemoteRefs(serverURL, op)
		if err != nil {
			d.log.Warn("server refs unavailable", "server", serverURL, "error", err)
			continue
		}
		for name, oid := range refs {
			if _, exists := merged[name]; !exists {
				merged[name] = oid
			}
		}
	}

	currentUser := ""
	if d.signer != nil {
		currentUser = d.signer.PublicKey()
	}
	for _, p := range d.openProps {
		refName := branchesPrefix + p.BranchName(currentUser)
		merged[refName] = p.TipCommit()
	}

	for name, oid := range merged {
		fmt.Fprintf(d.out, "%s %s\n", oid, name)
	}
	if d.vcs != nil {
		if target, ok := d.vcs.HeadSymbolic(); ok {
			fmt.Fprintf(d.out, "@%s HEAD\n", target)
		}
	}
	fmt.Fprintln(d.out)
	return nil
}

// handleFetch implements §4.6's fetch execution: every requested oid is
// fetched from the first VCS server candidate that serves it, regardless
// of whether the ref resolved to a proposal's synthetic branch or a
// plain server ref — proposal branch tips are themselves commits the VCS
// server holds, the coordination benefit is in discovery/naming, not in
// bypassing object transfer.
func (d *Driver) handleFetch(ctx context.Context, batch []string) {
	for _, line := range batch {
		fields := strings.Fields(line)
		if len(fields) != 3 || fields[0] != "fetch" {
			d.log.Warn("malformed fetch line", "line", line)
			continue
		}
		oid := fields[1]
		if err := d.fetchObject(ctx, oid); err != nil {
			d.log.Error("fetch failed", "oid", oid, "error", err)
		}
	}
	fmt.Fprintln(d.out)
}

func (d *Driver) fetchObject(ctx context.Context, oid string) error {
	refspec := fmt.Sprintf("+%s:refs/ngit/fetched/%s", oid, oid)
	var lastErr error
	for _, serverURL := range d.repoRef.CloneURLList() {
		if err := d.fetchFrom(ctx, serverURL, []string{refspec}); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	if lastErr == nil {
		return fmt.Errorf("no VCS server candidates configured")
	}
	return lastErr
}

// handlePush implements §4.6's push execution: a destination matching an
// open proposal's branch name routes to the proposal engine; otherwise it
// routes straight to the VCS server.
func (d *Driver) handlePush(ctx context.Context, batch []string) {
	currentUser := ""
	if d.signer != nil {
		currentUser = d.signer.PublicKey()
	}

	for _, line := range batch {
		fields := strings.Fields(line)
		if len(fields) != 2 || fields[0] != "push" {
			d.log.Warn("malformed push line", "line", line)
			continue
		}
		spec := fields[1]
		force := strings.HasPrefix(spec, "+")
		spec = strings.TrimPrefix(spec, "+")
		parts := strings.SplitN(spec, ":", 2)
		if len(parts) != 2 {
			fmt.Fprintf(d.out, "error %s malformed refspec\n", spec)
			continue
		}
		src, dst := parts[0], parts[1]

		if match := nostrevent.MatchBranch(dst, d.openProps, branchesPrefix, currentUser); match != nil {
			d.pushProposal(ctx, src, dst, match, force)
			continue
		}
		d.pushServer(ctx, src, dst, force)
	}
	fmt.Fprintln(d.out)
}

func (d *Driver) pushProposal(ctx context.Context, src, dst string, p *nostrevent.Proposal, force bool) {
	if d.signer == nil {
		fmt.Fprintf(d.out, "error %s no signer configured\n", dst)
		return
	}
	branchTip, err := d.vcs.ResolveRef(src)
	if err != nil || branchTip == "" {
		fmt.Fprintf(d.out, "error %s cannot resolve %s\n", dst, src)
		return
	}

	coord := nostrevent.RepoCoordinate(d.signer.PublicKey(), d.repoRef.Identifier)
	relays := d.relayList()

	outcome, err := d.proposals.PushUpdate(ctx, d.vcs, branchTip, p, coord, d.signer, relays, func(base, tip string) ([]proposal.CommitInfo, error) {
		data, err := d.vcs.CommitsAhead(base, tip)
		if err != nil {
			return nil, err
		}
		out := make([]proposal.CommitInfo, len(data))
		for i, c := range data {
			out[i] = proposal.CommitInfo{Commit: c.Commit, ParentCommit: c.ParentCommit, PatchText: c.PatchText}
		}
		return out, nil
	})
	if err != nil {
		fmt.Fprintf(d.out, "error %s %s\n", dst, err)
		return
	}

	switch outcome.Kind {
	case proposal.UpToDate, proposal.Published:
		fmt.Fprintf(d.out, "ok %s\n", dst)
	case proposal.LocalBehindProposal:
		fmt.Fprintf(d.out, "error %s local branch is behind the proposal; pull first\n", dst)
	case proposal.LocalDiverged:
		fmt.Fprintf(d.out, "error %s local branch has diverged (%d behind); force required\n", dst, outcome.Behind)
	case proposal.AmendmentsRequireForce, proposal.RebaseRequiresForce:
		if !force {
			fmt.Fprintf(d.out, "error %s history rewritten; force-push required\n", dst)
			return
		}
		if _, err := d.proposals.PublishPatchSet(ctx, mustCommitsAhead(d.vcs, p.BaseCommit(), branchTip), p.BaseCommit(), coord, "", d.signer, p.Root.Event.ID, relays); err != nil {
			fmt.Fprintf(d.out, "error %s %s\n", dst, err)
			return
		}
		fmt.Fprintf(d.out, "ok %s\n", dst)
	default:
		fmt.Fprintf(d.out, "error %s unrecognized outcome\n", dst)
	}
}

func mustCommitsAhead(vcs *vcsadapter.Adapter, base, tip string) []proposal.CommitInfo {
	data, err := vcs.CommitsAhead(base, tip)
	if err != nil {
		return nil
	}
	out := make([]proposal.CommitInfo, len(data))
	for i, c := range data {
		out[i] = proposal.CommitInfo{Commit: c.Commit, ParentCommit: c.ParentCommit, PatchText: c.PatchText}
	}
	return out
}

func (d *Driver) pushServer(ctx context.Context, src, dst string, force bool) {
	commit, err := d.vcs.ResolveRef(src)
	if err != nil || commit == "" {
		fmt.Fprintf(d.out, "error %s cannot resolve %s\n", dst, src)
		return
	}
	refspec := fmt.Sprintf("%s:%s", src, dst)

	var lastErr error
	for _, serverURL := range d.repoRef.CloneURLList() {
		if err := d.pushTo(ctx, serverURL, []string{refspec}, force); err == nil {
			fmt.Fprintf(d.out, "ok %s\n", dst)
			return
		} else {
			lastErr = err
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no VCS server candidates configured")
	}
	fmt.Fprintf(d.out, "error %s %s\n", dst, lastErr)
}

func (d *Driver) relayList() []string {
	relays := append([]string{}, d.writeRelays...)
	relays = append(relays, d.repoRef.RelayList()...)
	return relays
}

// --- transport plumbing -----------------------------------------------

func schemeOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Scheme
}

// candidateURL reports whether rawURL can actually be dialed under
// protocol, and if so returns the URL to use. Only http(s) candidates
// reuse the same URL string (the unauth/auth distinction is purely about
// credentials); ssh and ftp candidates require a URL already in that
// scheme, since no corpus component rewrites one scheme into another.
func candidateURL(p transport.Protocol, rawURL string) (string, bool) {
	scheme := strings.ToLower(schemeOf(rawURL))
	switch p.BaseProtocol() {
	case transport.ProtoFilesystem:
		return rawURL, scheme == "" || scheme == "file"
	case transport.ProtoSSH:
		return rawURL, scheme == "ssh" || strings.Contains(rawURL, "@") && strings.Contains(rawURL, ":") && !strings.Contains(rawURL, "://")
	case transport.ProtoHTTP:
		return rawURL, scheme == "http"
	case transport.ProtoHTTPS:
		return rawURL, scheme == "https"
	case transport.ProtoFTP:
		return rawURL, scheme == "ftp"
	default:
		return "", false
	}
}

func (d *Driver) listRemoteRefs(serverURL string, op transport.Op) (map[string]string, error) {
	candidates := transport.Candidates(schemeOf(serverURL), op, d.forcedProtocol, d.preferOrder)
	sel := transport.NewSelector()
	var refs map[string]string
	err := sel.Attempt(candidates, func(p transport.Protocol) error {
		u, ok := candidateURL(p, serverURL)
		if !ok {
			return fmt.Errorf("no %s url available for %s", p, serverURL)
		}
		auth, err := vcsadapter.AuthForProtocol(string(p), d.sshKeyPath)
		if err != nil {
			return err
		}
		r, err := d.vcs.ListRemoteRefs(u, auth)
		if err != nil {
			return err
		}
		refs = r
		return nil
	})
	return refs, err
}

func (d *Driver) fetchFrom(ctx context.Context, serverURL string, refspecs []string) error {
	candidates := transport.Candidates(schemeOf(serverURL), transport.OpRead, d.forcedProtocol, d.preferOrder)
	sel := transport.NewSelector()
	return sel.Attempt(candidates, func(p transport.Protocol) error {
		u, ok := candidateURL(p, serverURL)
		if !ok {
			return fmt.Errorf("no %s url available for %s", p, serverURL)
		}
		auth, err := vcsadapter.AuthForProtocol(string(p), d.sshKeyPath)
		if err != nil {
			return err
		}
		return d.vcs.Fetch(ctx, vcsadapter.FetchOptions{
			URL:      u,
			RefSpecs: refspecs,
			Auth:     auth,
			Progress: &vcsadapter.ProgressWriter{Log: d.log, Direction: ops.TransferFetch},
		})
	})
}

func (d *Driver) pushTo(ctx context.Context, serverURL string, refspecs []string, force bool) error {
	candidates := transport.Candidates(schemeOf(serverURL), transport.OpWrite, d.forcedProtocol, d.preferOrder)
	sel := transport.NewSelector()
	return sel.Attempt(candidates, func(p transport.Protocol) error {
		u, ok := candidateURL(p, serverURL)
		if !ok {
			return fmt.Errorf("no %s url available for %s", p, serverURL)
		}
		auth, err := vcsadapter.AuthForProtocol(string(p), d.sshKeyPath)
		if err != nil {
			return err
		}
		return d.vcs.Push(ctx, vcsadapter.PushOptions{
			URL:      u,
			RefSpecs: refspecs,
			Auth:     auth,
			Progress: &vcsadapter.ProgressWriter{Log: d.log, Direction: ops.TransferPush},
			Force:    force,
		})
	})
}
