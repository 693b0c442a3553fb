package relaypool

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConnectionTimeout is returned when a relay connection does not
// complete within the configured connect timeout (§4.2).
var ErrConnectionTimeout = errors.New("relay connection timed out")

// ErrAuthRequired is returned when a relay demands authentication (NIP-42)
// the pool has no credentials for.
var ErrAuthRequired = errors.New("relay requires authentication")

// RelayError wraps a relay-reported failure message (§4.2's RelayError{message}).
type RelayError struct {
	URL     string
	Message string
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("relay %s: %s", e.URL, e.Message)
}

// authSubstrings are message fragments relays are known to send when
// rejecting a request for lack of authentication, used as a fallback when
// the relay library surfaces only a string, never a typed error.
var authSubstrings = []string{"auth-required", "restricted", "not authenticated", "unauthorized"}

// IsAuthRequired reports whether err indicates the relay requires
// authentication, checking structurally first and falling back to
// substring matching for wrapped library errors.
func IsAuthRequired(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAuthRequired) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range authSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
