package transport

import (
	"errors"
	"strings"
)

// Typed errors for the transport layer (§7). Each is a distinct sentinel
// or type so §4.7's fallthrough rule can classify structurally rather
// than by message substring, per the Design Notes' explicit guidance;
// substring matching remains only as a fallback for errors that cross a
// go-git transport boundary unwrapped.
var (
	ErrAuthRequired    = errors.New("transport: authentication required")
	ErrHostKeyMismatch = errors.New("transport: host key mismatch")
	ErrNoKeysAvailable = errors.New("transport: no ssh keys available")
	ErrPermissionDenied = errors.New("transport: permission denied")
	ErrRepoNotVisible  = errors.New("transport: repository not visible")
)

// TransportError wraps a network/TLS/protocol-framing failure that should
// trigger the next transport candidate (§4.7, §7).
type TransportError struct {
	Protocol string
	Err      error
}

func (e *TransportError) Error() string {
	return "transport(" + e.Protocol + "): " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// authSubstrings are message fragments seen in wrapped go-git/ssh/http
// errors that indicate an authentication-related failure, used as a
// fallback when a structural classification isn't available (Design
// Notes: "Authentication-classification by substring").
var authSubstrings = []string{
	"authentication required",
	"authorization failed",
	"permission denied",
	"publickey",
	"403",
	"401",
	"invalid credentials",
	"could not read username",
}

// IsAuthRelated reports whether err represents one of the auth-related
// failure kinds §4.7 says must stop transport fallthrough: AuthRequired,
// HostKeyMismatch, NoKeysAvailable, PermissionDenied, RepoNotVisible.
func IsAuthRelated(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrAuthRequired),
		errors.Is(err, ErrHostKeyMismatch),
		errors.Is(err, ErrNoKeysAvailable),
		errors.Is(err, ErrPermissionDenied),
		errors.Is(err, ErrRepoNotVisible):
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
