package relaypool

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsAuthRequiredStructural(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", ErrAuthRequired)
	if !IsAuthRequired(err) {
		t.Fatal("expected structural match via errors.Is")
	}
}

func TestIsAuthRequiredSubstringFallback(t *testing.T) {
	cases := []string{
		"msg: auth-required: please authenticate",
		"this relay is restricted to members",
		"client not authenticated",
		"unauthorized request",
	}
	for _, c := range cases {
		if !IsAuthRequired(errors.New(c)) {
			t.Errorf("expected auth-related classification for %q", c)
		}
	}
}

func TestIsAuthRequiredFalseForUnrelatedErrors(t *testing.T) {
	if IsAuthRequired(errors.New("connection reset by peer")) {
		t.Fatal("unrelated error misclassified as auth-related")
	}
	if IsAuthRequired(nil) {
		t.Fatal("nil error must not classify as auth-related")
	}
}

func TestRelayErrorMessage(t *testing.T) {
	err := &RelayError{URL: "wss://relay.example.com", Message: "boom"}
	want := "relay wss://relay.example.com: boom"
	if err.Error() != want {
		t.Fatalf("got %q want %q", err.Error(), want)
	}
}
