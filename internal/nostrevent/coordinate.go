package nostrevent

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nbd-wtf/go-nostr"
)

// Coordinate is the stable address (kind, author, identifier) of a
// replaceable event, per §3.
type Coordinate struct {
	Kind       int
	Author     string
	Identifier string
}

// RepoCoordinate builds the coordinate for a RepoAnnouncement by a given
// author and identifier.
func RepoCoordinate(author, identifier string) Coordinate {
	return Coordinate{Kind: KindRepoAnnouncement, Author: author, Identifier: identifier}
}

// String renders the coordinate in "kind:author:identifier" form, the same
// shape used by the standard addressable-event "a" tag.
func (c Coordinate) String() string {
	return fmt.Sprintf("%d:%s:%s", c.Kind, c.Author, c.Identifier)
}

// Tag builds the ["a", "kind:author:identifier"] tag for c.
func (c Coordinate) Tag() nostr.Tag {
	return nostr.Tag{TagRepoCoord, c.String()}
}

// ParseCoordinate parses a "kind:author:identifier" string as produced by
// Coordinate.String or read off an "a" tag.
func ParseCoordinate(s string) (Coordinate, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return Coordinate{}, fmt.Errorf("malformed coordinate %q", s)
	}
	kind, err := strconv.Atoi(parts[0])
	if err != nil {
		return Coordinate{}, fmt.Errorf("malformed coordinate kind %q: %w", parts[0], err)
	}
	return Coordinate{Kind: kind, Author: parts[1], Identifier: parts[2]}, nil
}

// CoordinatesFromTags returns every "a" tag on the event parsed as a
// Coordinate, skipping any that fail to parse.
func CoordinatesFromTags(tags nostr.Tags) []Coordinate {
	var out []Coordinate
	for _, t := range tags {
		if len(t) < 2 || t[0] != TagRepoCoord {
			continue
		}
		if c, err := ParseCoordinate(t[1]); err == nil {
			out = append(out, c)
		}
	}
	return out
}
