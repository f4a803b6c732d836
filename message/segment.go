package message

import (
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"

	"github.com/ducchat/ducchat/emotes"
)

// twitchEmoteURL builds the v2 CDN URL for a native Twitch emote.
func twitchEmoteURL(id string) string {
	return "https://static-cdn.jtvnw.net/emoticons/v2/" + id + "/default/dark/4.0"
}

type nativeRange struct {
	start, end int // inclusive UTF-16 code-unit indices
	id         string
}

// parseRanges flattens the IRC emote tag form (id -> ["start-end", ...])
// into a list sorted by start index. Malformed, negative, or inverted
// ranges are discarded.
func parseRanges(tagEmotes map[string][]string) []nativeRange {
	var out []nativeRange
	for id, ranges := range tagEmotes {
		for _, r := range ranges {
			a, b, ok := strings.Cut(r, "-")
			if !ok {
				continue
			}
			start, err1 := strconv.Atoi(a)
			end, err2 := strconv.Atoi(b)
			if err1 != nil || err2 != nil || start < 0 || end < start {
				continue
			}
			out = append(out, nativeRange{start: start, end: end, id: id})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].start < out[j].start })
	return out
}

// Parse splits a chat line into typed segments. Native emote ranges are
// applied first (Twitch supplies them as UTF-16 code-unit indices), then
// every remaining text run is re-tokenized for mentions and custom emotes
// from the channel catalog. An empty catalog still yields mentions.
func Parse(msg string, tagEmotes map[string][]string, catalog emotes.Catalog) []Segment {
	var out []Segment
	for _, seg := range splitNative(msg, parseRanges(tagEmotes)) {
		if seg.Type == TypeText {
			out = append(out, splitText(seg.Text, catalog)...)
		} else {
			out = append(out, seg)
		}
	}
	if len(out) == 0 {
		out = []Segment{{Type: TypeText, Text: msg}}
	}
	return out
}

// splitNative walks the message left to right, emitting text gaps and emote
// segments for each range. Ranges are assumed non-overlapping; if one starts
// before the cursor its covered part is absorbed, and a range wholly behind
// the cursor is skipped.
func splitNative(msg string, ranges []nativeRange) []Segment {
	if len(ranges) == 0 {
		return []Segment{{Type: TypeText, Text: msg}}
	}
	units := utf16.Encode([]rune(msg))
	var segs []Segment
	i := 0
	for _, r := range ranges {
		start, end := r.start, r.end
		if end < i || start >= len(units) {
			continue
		}
		if start < i {
			start = i
		}
		if end >= len(units) {
			end = len(units) - 1
		}
		if start > i {
			segs = append(segs, Segment{Type: TypeText, Text: string(utf16.Decode(units[i:start]))})
		}
		name := string(utf16.Decode(units[start : end+1]))
		segs = append(segs, Segment{
			Type:     TypeEmote,
			Provider: "twitch",
			ID:       r.id,
			URL:      twitchEmoteURL(r.id),
			Name:     name,
		})
		i = end + 1
	}
	if i < len(units) {
		segs = append(segs, Segment{Type: TypeText, Text: string(utf16.Decode(units[i:]))})
	}
	return segs
}

const (
	leadingPunct  = "([{<\"'`.,!?"
	trailingPunct = ")]}>\"'`.,!?"
)

// splitText re-tokenizes a text run on whitespace, keeping whitespace runs
// as their own segments. Each token is checked (after stripping surrounding
// punctuation) for an @mention and then for a custom emote; anything else
// stays text, untrimmed.
func splitText(text string, catalog emotes.Catalog) []Segment {
	var segs []Segment
	for _, part := range splitKeepingSpace(text) {
		if isSpace(part) {
			segs = append(segs, Segment{Type: TypeText, Text: part})
			continue
		}

		lead := strings.TrimLeft(part, leadingPunct)
		trimmed := strings.TrimRight(lead, trailingPunct)
		pre := part[:len(part)-len(lead)]
		post := lead[len(trimmed):]

		switch {
		case strings.HasPrefix(trimmed, "@") && len(trimmed) > 1:
			segs = appendText(segs, pre)
			segs = append(segs, Segment{Type: TypeMention, Text: trimmed, Username: trimmed[1:]})
			segs = appendText(segs, post)
		case catalogHas(catalog, trimmed):
			em := catalog[trimmed]
			segs = appendText(segs, pre)
			segs = append(segs, Segment{Type: TypeEmote, Provider: em.Provider, ID: em.ID, URL: em.URL, Name: trimmed})
			segs = appendText(segs, post)
		default:
			// Not a mention, not an emote: keep the token as received.
			segs = append(segs, Segment{Type: TypeText, Text: part})
		}
	}
	return segs
}

func catalogHas(catalog emotes.Catalog, token string) bool {
	if token == "" {
		return false
	}
	_, ok := catalog[token]
	return ok
}

func appendText(segs []Segment, text string) []Segment {
	if text == "" {
		return segs
	}
	return append(segs, Segment{Type: TypeText, Text: text})
}

// splitKeepingSpace splits into alternating non-space and space runs.
func splitKeepingSpace(s string) []string {
	var parts []string
	start := 0
	inSpace := false
	for i, r := range s {
		sp := unicode.IsSpace(r)
		if i == 0 {
			inSpace = sp
			continue
		}
		if sp != inSpace {
			parts = append(parts, s[start:i])
			start = i
			inSpace = sp
		}
	}
	if start < len(s) {
		parts = append(parts, s[start:])
	}
	return parts
}

func isSpace(s string) bool {
	for _, r := range s {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return len(s) > 0
}
