// Package nostrurl decodes the decentralized repository URL described in
// spec.md §6: scheme://[author@]relay-host[/...]?identifier=...&protocol=...&server=...
package nostrurl

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ImVexed/fasturl"
	"github.com/nbd-wtf/go-nostr/nip19"
)

// RepoURL is the decoded form of a decentralized repository URL: an
// identifier and either an author hint (resolved to a hex pubkey) or one
// or more relay hints, plus optional forced transport and server overrides.
type RepoURL struct {
	Scheme         string
	Author         string   // hex pubkey, "" if not present
	RelayHints     []string // explicit relay URLs, derived from the host when it isn't an npub
	Identifier     string
	ForcedProtocol string
	ServerURLs     []string
}

// Parse decodes raw per §6's grammar. The host segment is either an npub
// (author hint, relay discovered via C4) or a relay hostname (direct relay
// hint, no author).
func Parse(raw string) (*RepoURL, error) {
	u, err := fasturl.ParseURL(raw)
	if err != nil {
		return nil, fmt.Errorf("malformed repository url %q: %w", raw, err)
	}

	out := &RepoURL{Scheme: u.Scheme}

	host := u.Host
	author := u.Username
	if author == "" && strings.HasPrefix(host, "npub1") {
		author = host
		host = ""
	}

	if author != "" {
		prefix, value, err := nip19.Decode(author)
		if err != nil {
			return nil, fmt.Errorf("malformed author hint %q: %w", author, err)
		}
		if prefix != "npub" {
			return nil, fmt.Errorf("author hint %q is not an npub", author)
		}
		pubkey, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("author hint %q decoded to unexpected type", author)
		}
		out.Author = pubkey
	} else if host != "" {
		out.RelayHints = []string{hostToRelayURL(host, u.Port)}
	}

	query, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return nil, fmt.Errorf("malformed query in %q: %w", raw, err)
	}
	out.Identifier = query.Get("identifier")
	if out.Identifier == "" {
		return nil, fmt.Errorf("repository url %q missing identifier", raw)
	}
	out.ForcedProtocol = query.Get("protocol")
	if servers, ok := query["server"]; ok {
		out.ServerURLs = servers
	}
	if relays, ok := query["relay"]; ok {
		out.RelayHints = append(out.RelayHints, relays...)
	}

	return out, nil
}

// hostToRelayURL turns a bare relay-host segment into a wss:// URL, the
// scheme relays are assumed to speak unless the port suggests otherwise.
func hostToRelayURL(host, port string) string {
	scheme := "wss"
	if port == "80" || port == "7777" {
		scheme = "ws"
	}
	if port != "" {
		return fmt.Sprintf("%s://%s:%s", scheme, host, port)
	}
	return fmt.Sprintf("%s://%s", scheme, host)
}
