package message

import (
	"reflect"
	"strings"
	"testing"

	"github.com/ducchat/ducchat/emotes"
)

func reconstruct(segs []Segment) string {
	var b strings.Builder
	for _, s := range segs {
		b.WriteString(s.Display())
	}
	return b.String()
}

func kinds(segs []Segment) []string {
	out := make([]string, len(segs))
	for i, s := range segs {
		out[i] = s.Type
	}
	return out
}

func TestPlainTextSingleSegment(t *testing.T) {
	segs := Parse("hello world", nil, nil)
	if len(segs) != 3 { // "hello", " ", "world"
		t.Fatalf("segments = %+v", segs)
	}
	if reconstruct(segs) != "hello world" {
		t.Errorf("reconstruct = %q", reconstruct(segs))
	}
}

func TestMentionDetectionWithEmptyCatalog(t *testing.T) {
	segs := Parse("hello @Bob how are you", nil, emotes.Catalog{})

	var mention *Segment
	for i := range segs {
		if segs[i].Type == TypeMention {
			mention = &segs[i]
		}
	}
	if mention == nil {
		t.Fatalf("no mention segment in %+v", segs)
	}
	if mention.Username != "Bob" {
		t.Errorf("mention username = %q, want Bob (no @)", mention.Username)
	}
	if mention.Text != "@Bob" {
		t.Errorf("mention text = %q, want @Bob", mention.Text)
	}
	if got := reconstruct(segs); got != "hello @Bob how are you" {
		t.Errorf("reconstruct = %q", got)
	}
	// Exact boundaries: everything before the mention is "hello ", after it
	// " how are you".
	var before, after strings.Builder
	seen := false
	for _, s := range segs {
		if s.Type == TypeMention {
			seen = true
			continue
		}
		if seen {
			after.WriteString(s.Display())
		} else {
			before.WriteString(s.Display())
		}
	}
	if before.String() != "hello " || after.String() != " how are you" {
		t.Errorf("boundaries = %q / %q", before.String(), after.String())
	}
}

func TestMentionWithPunctuation(t *testing.T) {
	segs := Parse("hi @Bob!", nil, nil)
	if got := reconstruct(segs); got != "hi @Bob!" {
		t.Errorf("reconstruct = %q", got)
	}
	found := false
	for _, s := range segs {
		if s.Type == TypeMention && s.Username == "Bob" {
			found = true
		}
	}
	if !found {
		t.Errorf("trailing punctuation should not defeat mention detection: %+v", segs)
	}
}

func TestBareAtIsText(t *testing.T) {
	segs := Parse("@ alone", nil, nil)
	if segs[0].Type != TypeText || segs[0].Text != "@" {
		t.Errorf("bare @ should stay text: %+v", segs[0])
	}
}

func TestCustomEmoteToken(t *testing.T) {
	catalog := emotes.Catalog{
		"catJAM": {Provider: "bttv", ID: "abc", URL: "https://cdn.betterttv.net/emote/abc/3x", Name: "catJAM"},
	}
	segs := Parse("nice catJAM indeed", nil, catalog)
	want := []string{TypeText, TypeText, TypeEmote, TypeText, TypeText}
	if !reflect.DeepEqual(kinds(segs), want) {
		t.Fatalf("kinds = %v, want %v (%+v)", kinds(segs), want, segs)
	}
	if segs[2].Name != "catJAM" || segs[2].Provider != "bttv" {
		t.Errorf("emote segment = %+v", segs[2])
	}
	if reconstruct(segs) != "nice catJAM indeed" {
		t.Errorf("reconstruct = %q", reconstruct(segs))
	}
}

func TestCustomEmoteIsCaseSensitive(t *testing.T) {
	catalog := emotes.Catalog{"catJAM": {Provider: "bttv", Name: "catJAM"}}
	segs := Parse("catjam", nil, catalog)
	if segs[0].Type != TypeText {
		t.Errorf("lookup must be case-sensitive: %+v", segs)
	}
}

func TestCustomEmoteWrappedInPunctuation(t *testing.T) {
	catalog := emotes.Catalog{"Kappa": {Provider: "ffz", ID: "1", Name: "Kappa"}}
	segs := Parse("(Kappa)", nil, catalog)
	want := []string{TypeText, TypeEmote, TypeText}
	if !reflect.DeepEqual(kinds(segs), want) {
		t.Fatalf("kinds = %v (%+v)", kinds(segs), segs)
	}
	if reconstruct(segs) != "(Kappa)" {
		t.Errorf("reconstruct = %q", reconstruct(segs))
	}
}

func TestNativeEmoteRanges(t *testing.T) {
	// "Kappa hi Kappa": Kappa at 0-4 and 9-13.
	segs := Parse("Kappa hi Kappa", map[string][]string{"25": {"0-4", "9-13"}}, nil)
	want := []string{TypeEmote, TypeText, TypeText, TypeText, TypeEmote}
	if !reflect.DeepEqual(kinds(segs), want) {
		t.Fatalf("kinds = %v (%+v)", kinds(segs), segs)
	}
	if segs[0].Name != "Kappa" || segs[0].ID != "25" || segs[0].Provider != "twitch" {
		t.Errorf("native emote segment = %+v", segs[0])
	}
	if segs[0].URL != "https://static-cdn.jtvnw.net/emoticons/v2/25/default/dark/4.0" {
		t.Errorf("native emote url = %q", segs[0].URL)
	}
	if reconstruct(segs) != "Kappa hi Kappa" {
		t.Errorf("reconstruct = %q", reconstruct(segs))
	}
}

func TestNativeRangesUseUTF16Units(t *testing.T) {
	// The astral emoji occupies two UTF-16 code units, so Twitch indexes
	// "Kappa" at 3-7.
	msg := "\U0001F600 Kappa"
	segs := Parse(msg, map[string][]string{"25": {"3-7"}}, nil)
	if got := reconstruct(segs); got != msg {
		t.Fatalf("reconstruct = %q, want %q (%+v)", got, msg, segs)
	}
	var emote *Segment
	for i := range segs {
		if segs[i].Type == TypeEmote {
			emote = &segs[i]
		}
	}
	if emote == nil || emote.Name != "Kappa" {
		t.Errorf("emote = %+v, want Kappa despite the astral prefix", emote)
	}
}

func TestMalformedRangesDiscarded(t *testing.T) {
	ranges := map[string][]string{
		"1": {"x-y", "5", "-3-4", "7-2"},
	}
	segs := Parse("hello there", ranges, nil)
	for _, s := range segs {
		if s.Type == TypeEmote {
			t.Fatalf("malformed range produced an emote: %+v", segs)
		}
	}
	if reconstruct(segs) != "hello there" {
		t.Errorf("reconstruct = %q", reconstruct(segs))
	}
}

func TestRangeBeyondMessageClamped(t *testing.T) {
	segs := Parse("hey", map[string][]string{"9": {"0-50"}}, nil)
	if reconstruct(segs) != "hey" {
		t.Errorf("reconstruct = %q (%+v)", reconstruct(segs), segs)
	}
}

func TestTextBetweenNativeEmotesGetsCustomPass(t *testing.T) {
	catalog := emotes.Catalog{"catJAM": {Provider: "bttv", ID: "c", Name: "catJAM"}}
	segs := Parse("Kappa catJAM @dude", map[string][]string{"25": {"0-4"}}, catalog)
	want := []string{TypeEmote, TypeText, TypeEmote, TypeText, TypeMention}
	if !reflect.DeepEqual(kinds(segs), want) {
		t.Fatalf("kinds = %v (%+v)", kinds(segs), segs)
	}
	if reconstruct(segs) != "Kappa catJAM @dude" {
		t.Errorf("reconstruct = %q", reconstruct(segs))
	}
}

func TestEmptyMessageYieldsOneSegment(t *testing.T) {
	segs := Parse("", nil, nil)
	if len(segs) != 1 || segs[0].Type != TypeText || segs[0].Text != "" {
		t.Errorf("segments = %+v", segs)
	}
}

func TestRoundTrip(t *testing.T) {
	catalog := emotes.Catalog{
		"catJAM":  {Provider: "bttv", ID: "a", Name: "catJAM"},
		"OMEGALUL": {Provider: "7tv", ID: "b", Name: "OMEGALUL"},
	}
	cases := []struct {
		name   string
		msg    string
		ranges map[string][]string
	}{
		{"plain", "just chatting over here", nil},
		{"punctuation storm", "wow!!! (really?) [yes]... @You're", nil},
		{"unicode", "héllo wörld ça va 日本語", nil},
		{"emoji", "\U0001F600\U0001F601 mixed \U0001F602 text", nil},
		{"custom emotes", "catJAM catJAM OMEGALUL", nil},
		{"native ranges", "Kappa mid Kappa", map[string][]string{"25": {"0-4", "10-14"}}},
		{"whitespace runs", "a   b\t\tc  ", nil},
		{"only spaces", "   ", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			segs := Parse(tc.msg, tc.ranges, catalog)
			if len(segs) == 0 {
				t.Fatal("segments must be non-empty")
			}
			if got := reconstruct(segs); got != tc.msg {
				t.Errorf("reconstruct = %q, want %q (%+v)", got, tc.msg, segs)
			}
		})
	}
}
