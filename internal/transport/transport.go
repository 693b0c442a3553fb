// Package transport implements the C7 transport selector: given a VCS
// server URL and an operation kind, it yields an ordered list of protocol
// candidates to attempt with authentication-aware fallthrough (§4.7).
package transport

import "strings"

// Op is the kind of operation a transport candidate list is chosen for.
type Op int

const (
	OpRead Op = iota
	OpWrite
)

// Protocol identifies one transport candidate.
type Protocol string

const (
	ProtoFilesystem  Protocol = "filesystem"
	ProtoSSH         Protocol = "ssh"
	ProtoHTTP        Protocol = "http"
	ProtoHTTPUnauth  Protocol = "unauth-http"
	ProtoHTTPS       Protocol = "https"
	ProtoHTTPSUnauth Protocol = "unauth-https"
	ProtoFTP         Protocol = "ftp"
)

// baseProtocol strips the "unauth-" prefix a candidate may carry, since
// the underlying wire protocol (http/https) is the same either way; only
// the presence of credentials differs (§4.8's "unauth vs authenticated
// attempts" note).
func (p Protocol) baseProtocol() Protocol {
	return Protocol(strings.TrimPrefix(string(p), "unauth-"))
}

// BaseProtocol is the exported form of baseProtocol, for callers outside
// this package that need to group a candidate by underlying wire
// protocol (e.g. choosing a URL form per candidate).
func (p Protocol) BaseProtocol() Protocol {
	return p.baseProtocol()
}

// Candidates returns the ordered candidate list for serverURL's scheme and
// op, per §4.7's table. forced, if non-empty, short-circuits to a single
// candidate regardless of scheme. preferOrder, if non-empty, overrides the
// table's default ordering (config.Transport.PreferOrder, §6): candidates
// named in preferOrder that are valid for this scheme/op move to the front
// in the order given, and every other valid candidate keeps following in
// its default relative order.
func Candidates(scheme string, op Op, forced Protocol, preferOrder []string) []Protocol {
	if forced != "" {
		return []Protocol{forced}
	}
	base := defaultCandidates(scheme, op)
	if len(preferOrder) == 0 {
		return base
	}
	return reorder(base, preferOrder)
}

func defaultCandidates(scheme string, op Op) []Protocol {
	switch strings.ToLower(scheme) {
	case "file", "filesystem", "":
		return []Protocol{ProtoFilesystem}
	case "http":
		if op == OpWrite {
			return []Protocol{ProtoSSH, ProtoHTTP}
		}
		return []Protocol{ProtoHTTPUnauth, ProtoSSH, ProtoHTTP}
	case "ftp":
		if op == OpWrite {
			return []Protocol{ProtoSSH, ProtoFTP}
		}
		return []Protocol{ProtoFTP, ProtoSSH}
	default: // https and anything else unrecognized, per the table's "any"/"other" row
		if op == OpWrite {
			return []Protocol{ProtoSSH, ProtoHTTPS}
		}
		return []Protocol{ProtoHTTPSUnauth, ProtoSSH, ProtoHTTPS}
	}
}

// reorder moves every candidate in base that's named in preferOrder to the
// front, in preferOrder's order, leaving the rest in their default relative
// order. A preferOrder entry naming a candidate not valid for this
// scheme/op (not present in base) is ignored.
func reorder(base []Protocol, preferOrder []string) []Protocol {
	valid := make(map[Protocol]bool, len(base))
	for _, p := range base {
		valid[p] = true
	}
	used := make(map[Protocol]bool, len(base))
	out := make([]Protocol, 0, len(base))
	for _, pref := range preferOrder {
		p := Protocol(pref)
		if valid[p] && !used[p] {
			out = append(out, p)
			used[p] = true
		}
	}
	for _, p := range base {
		if !used[p] {
			out = append(out, p)
		}
	}
	return out
}

// Selector drives the try-in-order/fallthrough loop of §4.7: advance to
// the next candidate only on a non-authentication error, and never fall
// forward to a weaker (unauthenticated) protocol once an SSH attempt has
// succeeded (§4.7's secondary "pin" rule).
type Selector struct {
	sshPinned bool
}

// NewSelector returns a Selector with no prior successful SSH session.
func NewSelector() *Selector { return &Selector{} }

// Attempt runs try against each candidate in order, stopping at the first
// success, the first authentication-related error (surfaced immediately,
// per P5), or after every candidate has failed. try is called with the
// chosen candidate protocol.
func (s *Selector) Attempt(candidates []Protocol, try func(Protocol) error) error {
	var lastErr error
	for _, candidate := range candidates {
		if s.sshPinned && isWeakerThanSSH(candidate) {
			continue
		}
		err := try(candidate)
		if err == nil {
			if candidate.baseProtocol() == ProtoSSH {
				s.sshPinned = true
			}
			return nil
		}
		if IsAuthRelated(err) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

// isWeakerThanSSH reports whether candidate is an unauthenticated http(s)
// attempt, which the pin rule forbids after a successful SSH session.
func isWeakerThanSSH(p Protocol) bool {
	return p == ProtoHTTPUnauth || p == ProtoHTTPSUnauth
}
