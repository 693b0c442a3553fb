package identity

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/nbd-wtf/go-nostr"

	"github.com/nostrgit/ngit/internal/cache"
	"github.com/nostrgit/ngit/internal/fetch"
	"github.com/nostrgit/ngit/internal/nostrevent"
	"github.com/nostrgit/ngit/internal/nostrurl"
)

type noopRelay struct{}

func (noopRelay) Connect(ctx context.Context, url string) error { return nil }
func (noopRelay) GetEvents(ctx context.Context, relay string, filters []nostr.Filter) ([]*nostr.Event, error) {
	return nil, nil
}

func openTestCaches(t *testing.T) *cache.Caches {
	t.Helper()
	dir := t.TempDir()
	c, err := cache.Open(filepath.Join(dir, "local.sqlite"), filepath.Join(dir, "global.sqlite"))
	if err != nil {
		t.Fatalf("open caches: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestResolveNotFound(t *testing.T) {
	caches := openTestCaches(t)
	orch := fetch.New(noopRelay{}, caches, nil)
	r := New(orch, caches, []string{"ws://localhost:7777"}, nil)

	url := &nostrurl.RepoURL{Author: "deadbeef", Identifier: "demo"}
	_, err := r.Resolve(context.Background(), url)
	if !errors.Is(err, ErrRepoNotFound) {
		t.Fatalf("expected ErrRepoNotFound, got %v", err)
	}
}

func TestResolveBuildsRepoRefFromCache(t *testing.T) {
	caches := openTestCaches(t)
	orch := fetch.New(noopRelay{}, caches, nil)
	r := New(orch, caches, []string{"ws://localhost:7777"}, nil)

	sk := nostr.GeneratePrivateKey()
	pk, _ := nostr.GetPublicKey(sk)
	ann := &nostr.Event{
		PubKey: pk,
		Kind:   nostrevent.KindRepoAnnouncement,
		Tags:   nostrevent.BuildRepoAnnouncement("demo", "Demo Repo", nil, []string{"wss://relay.one"}, []string{"https://git.example/demo.git"}),
	}
	if err := ann.Sign(sk); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := caches.SaveLocal(context.Background(), ann); err != nil {
		t.Fatalf("save: %v", err)
	}

	url := &nostrurl.RepoURL{Author: pk, Identifier: "demo"}
	ref, err := r.Resolve(context.Background(), url)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !ref.CloneURLs["https://git.example/demo.git"] {
		t.Fatalf("expected clone url in ref, got %+v", ref.CloneURLList())
	}
	if !ref.Relays["wss://relay.one"] {
		t.Fatalf("expected relay in ref, got %+v", ref.RelayList())
	}
}

func TestResolveAugmentsWithExplicitServerOverride(t *testing.T) {
	caches := openTestCaches(t)
	orch := fetch.New(noopRelay{}, caches, nil)
	r := New(orch, caches, []string{"ws://localhost:7777"}, nil)

	sk := nostr.GeneratePrivateKey()
	pk, _ := nostr.GetPublicKey(sk)
	ann := &nostr.Event{
		PubKey: pk,
		Kind:   nostrevent.KindRepoAnnouncement,
		Tags:   nostrevent.BuildRepoAnnouncement("demo", "Demo", nil, nil, nil),
	}
	if err := ann.Sign(sk); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := caches.SaveLocal(context.Background(), ann); err != nil {
		t.Fatalf("save: %v", err)
	}

	url := &nostrurl.RepoURL{Author: pk, Identifier: "demo", ServerURLs: []string{"ssh://override.example/demo.git"}}
	ref, err := r.Resolve(context.Background(), url)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !ref.CloneURLs["ssh://override.example/demo.git"] {
		t.Fatalf("expected override clone url present, got %+v", ref.CloneURLList())
	}
}
