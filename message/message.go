// Package message turns a raw chat line plus emote metadata into an ordered
// sequence of typed segments (text, emote, mention). Concatenating the
// display content of all segments reconstructs the original line.
package message

// Segment is one typed unit of a parsed chat message.
type Segment struct {
	Type string `json:"type"` // "text" | "emote" | "mention"

	// Text carries the display content for text and mention segments
	// (mentions keep their leading '@').
	Text string `json:"text,omitempty"`

	// Emote fields.
	Provider string `json:"provider,omitempty"`
	ID       string `json:"id,omitempty"`
	URL      string `json:"url,omitempty"`
	Name     string `json:"name,omitempty"` // display token, the exact substring replaced

	// Mention handle, without the '@'.
	Username string `json:"username,omitempty"`
}

const (
	TypeText    = "text"
	TypeEmote   = "emote"
	TypeMention = "mention"
)

// Display returns the segment's contribution to the reconstructed line.
func (s Segment) Display() string {
	if s.Type == TypeEmote {
		return s.Name
	}
	return s.Text
}

// ChatMessage is one relayed chat line, ready for rendering.
type ChatMessage struct {
	Channel       string    `json:"channel"`
	User          string    `json:"user"`
	UserColor     string    `json:"userColor"`
	Message       string    `json:"message"`
	Segments      []Segment `json:"segments"`
	IsBroadcaster bool      `json:"isBroadcaster"`
	ID            string    `json:"id"`
	TS            int64     `json:"ts"` // unix milliseconds
}
