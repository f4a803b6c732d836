package chat

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidChannelName is returned for input that cannot be a Twitch
// channel name. The caller's state is untouched.
var ErrInvalidChannelName = errors.New("invalid channel name (a-z, 0-9, underscore, max 25)")

// Twitch channel rules: letters, numbers, underscore, max 25.
var channelPattern = regexp.MustCompile(`^[a-z0-9_]{1,25}$`)

// NormalizeChannel strips a leading '#', lowercases, and validates the
// result. Empty (or whitespace-only) input normalizes to the empty string,
// meaning "no channel"; any other input failing the pattern is rejected.
func NormalizeChannel(input string) (string, error) {
	raw := strings.TrimSpace(input)
	raw = strings.TrimPrefix(raw, "#")
	raw = strings.ToLower(raw)
	if raw == "" {
		return "", nil
	}
	if !channelPattern.MatchString(raw) {
		return "", ErrInvalidChannelName
	}
	return raw, nil
}
