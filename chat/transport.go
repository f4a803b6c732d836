package chat

import (
	"strconv"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"
)

// Inbound is one chat line as delivered by the transport, before
// segmentation.
type Inbound struct {
	ID          string
	Login       string
	DisplayName string
	Color       string
	Badges      map[string]int
	Text        string
	// Emotes is the raw IRC tag form: emote id -> "start-end" ranges in
	// UTF-16 code units.
	Emotes map[string][]string
	Time   time.Time
}

// Hooks are the callbacks a transport fires. OnConnect may fire again after
// an automatic reconnect.
type Hooks struct {
	OnConnect   func()
	OnReconnect func()
	OnMessage   func(Inbound)
}

// Transport is one upstream connection attempt for a single channel.
// Connect blocks until the connection ends; the library behind it is
// expected to retry transient drops on its own.
type Transport interface {
	Join(channel string)
	Connect() error
	Disconnect() error
}

// TransportFactory builds a transport wired to the given hooks and reports
// the identity the transport speaks as (used for echo suppression).
type TransportFactory func(h Hooks) (Transport, string)

// anonymousLogin is the read-only nick go-twitch-irc uses for anonymous
// connections.
const anonymousLogin = "justinfan123123"

// NewIRCTransport returns the default factory: an anonymous go-twitch-irc
// client. Anonymous connections can read any channel and never require
// credentials; the library handles PING/PONG and reconnection internally.
func NewIRCTransport() TransportFactory {
	return func(h Hooks) (Transport, string) {
		c := twitch.NewAnonymousClient()
		if h.OnConnect != nil {
			c.OnConnect(h.OnConnect)
		}
		if h.OnReconnect != nil {
			c.OnReconnectMessage(func(twitch.ReconnectMessage) { h.OnReconnect() })
		}
		if h.OnMessage != nil {
			c.OnPrivateMessage(func(m twitch.PrivateMessage) { h.OnMessage(convertPrivateMessage(m)) })
		}
		return ircClient{c}, anonymousLogin
	}
}

// ircClient narrows the library's variadic Join to the Transport shape.
type ircClient struct {
	*twitch.Client
}

func (c ircClient) Join(channel string) { c.Client.Join(channel) }

func convertPrivateMessage(m twitch.PrivateMessage) Inbound {
	var emotes map[string][]string
	if len(m.Emotes) > 0 {
		emotes = make(map[string][]string, len(m.Emotes))
		for _, e := range m.Emotes {
			for _, p := range e.Positions {
				emotes[e.ID] = append(emotes[e.ID], strconv.Itoa(p.Start)+"-"+strconv.Itoa(p.End))
			}
		}
	}
	return Inbound{
		ID:          m.ID,
		Login:       m.User.Name,
		DisplayName: m.User.DisplayName,
		Color:       m.User.Color,
		Badges:      m.User.Badges,
		Text:        m.Message,
		Emotes:      emotes,
		Time:        m.Time,
	}
}
