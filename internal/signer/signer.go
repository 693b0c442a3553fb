// Package signer implements the local-key Signer collaborator that
// internal/proposal consumes. Interactive key unlock and remote-signer
// (NIP-46 bunker) dialogs are deliberately out of scope per spec.md §1;
// this package only covers the directly-keyed case.
package signer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

// ErrNoKeyMaterial is a SignerError (§7): no nsec was configured and no
// remote-signer session is available.
var ErrNoKeyMaterial = errors.New("signer: no key material configured")

// Local signs events with an in-memory private key.
type Local struct {
	sk string
	pk string
}

// NewLocal builds a Local signer from either a raw hex private key or an
// nsec1-encoded one.
func NewLocal(nsecOrHex string) (*Local, error) {
	if nsecOrHex == "" {
		return nil, ErrNoKeyMaterial
	}
	sk := nsecOrHex
	if strings.HasPrefix(nsecOrHex, "nsec1") {
		prefix, data, err := nip19.Decode(nsecOrHex)
		if err != nil {
			return nil, fmt.Errorf("signer: decode nsec: %w", err)
		}
		if prefix != "nsec" {
			return nil, fmt.Errorf("signer: expected nsec, got %s", prefix)
		}
		sk = data.(string)
	}
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return nil, fmt.Errorf("signer: derive public key: %w", err)
	}
	return &Local{sk: sk, pk: pk}, nil
}

// PublicKey returns the signer's hex public key.
func (l *Local) PublicKey() string { return l.pk }

// Sign signs evt in place, setting its author to the signer's public key.
func (l *Local) Sign(ctx context.Context, evt *nostr.Event) error {
	evt.PubKey = l.pk
	return evt.Sign(l.sk)
}
