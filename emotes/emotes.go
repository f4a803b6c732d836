// Package emotes aggregates a channel's custom emote vocabulary from the
// FrankerFaceZ, BetterTTV, and 7TV APIs and caches the merged catalog per
// channel.
package emotes

// Emote describes one custom emote resolvable by its display token.
type Emote struct {
	Provider string `json:"provider"`
	ID       string `json:"id"`
	URL      string `json:"url"`
	Name     string `json:"name"`
}

// Catalog maps a case-sensitive display token to its emote. Catalogs are
// immutable once published; a refresh builds a new map.
type Catalog map[string]Emote
