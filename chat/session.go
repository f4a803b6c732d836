// Package chat owns the single upstream chat connection: channel name
// validation, the connect/disconnect/reconnect state machine, and the
// routing of inbound lines through segmentation to the event sink.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ducchat/ducchat/emotes"
	"github.com/ducchat/ducchat/message"
	"github.com/ducchat/ducchat/telemetry"
)

// State is the session's lifecycle position.
type State string

const (
	StateIdle          State = "idle"
	StateConnecting    State = "connecting"
	StateEmotesLoading State = "emotesLoading"
	StateConnected     State = "connected"
	StateReconnecting  State = "reconnecting"
	StateDisconnecting State = "disconnecting"
)

// Status is the event emitted on every transition.
type Status struct {
	State   string `json:"state"`
	Channel string `json:"channel"`
	Count   int    `json:"count,omitempty"` // emotesLoaded only
}

// Events receives everything the session produces. The broadcast hub
// implements it; tests substitute a recorder.
type Events interface {
	PublishStatus(Status)
	PublishMessage(message.ChatMessage)
}

// CatalogLoader yields the custom emote catalog for a channel. Loading
// never fails; at worst the catalog is empty.
type CatalogLoader interface {
	Load(ctx context.Context, channel string) emotes.Catalog
}

// errSuperseded reports that a newer connect or disconnect took over while
// this connect was still in flight.
var errSuperseded = errors.New("connect superseded by a newer operation")

// Session is the process-wide channel session. State is guarded by one
// mutex, but the mutex is never held across network I/O: Connect releases
// it around the catalog load and the transport wait and re-locks to commit
// each transition, with the generation counter deciding whether an
// in-flight connect is still current. Channel, State, and Disconnect stay
// responsive while a connect is underway.
type Session struct {
	events       Events
	catalogs     CatalogLoader
	newTransport TransportFactory

	mu        sync.Mutex
	state     State
	channel   string
	catalog   emotes.Catalog
	transport Transport
	selfLogin string
	gen       int // connection generation; stale transport callbacks are ignored
}

// NewSession builds an idle session. The factory defaults to the anonymous
// IRC transport.
func NewSession(events Events, catalogs CatalogLoader, factory TransportFactory) *Session {
	if factory == nil {
		factory = NewIRCTransport()
	}
	return &Session{
		events:       events,
		catalogs:     catalogs,
		newTransport: factory,
		state:        StateIdle,
	}
}

// Channel returns the currently connected (or connecting) channel, empty
// when idle.
func (s *Session) Channel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect normalizes the input and establishes the upstream connection.
// Invalid input fails with ErrInvalidChannelName and changes nothing.
// Empty input behaves as Disconnect. Connecting to the already-connected
// channel is a no-op. Any existing session is fully torn down first.
func (s *Session) Connect(ctx context.Context, input string) (string, error) {
	channel, err := NormalizeChannel(input)
	if err != nil {
		return "", err
	}
	if channel == "" {
		return "", s.Disconnect()
	}

	s.mu.Lock()
	if s.channel == channel && s.state != StateIdle && s.state != StateDisconnecting {
		s.mu.Unlock()
		return channel, nil
	}
	s.teardownLocked()
	s.gen++
	gen := s.gen
	s.channel = channel
	s.setStateLocked(StateConnecting, Status{State: "connecting", Channel: channel})
	s.state = StateEmotesLoading
	s.mu.Unlock()

	// Emote availability never gates chat availability: Load degrades to an
	// empty catalog on provider failure. It runs without the lock so the
	// control surface stays responsive during provider I/O.
	catalog := s.catalogs.Load(ctx, channel)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return "", errSuperseded
	}
	s.catalog = catalog
	s.publishStatus(Status{State: "emotesLoaded", Channel: channel, Count: len(catalog)})

	connected := make(chan struct{})
	var connectedOnce sync.Once
	tr, selfLogin := s.newTransport(Hooks{
		OnConnect: func() {
			connectedOnce.Do(func() { close(connected) })
			s.transportUp(gen)
		},
		OnReconnect: func() { s.transportRetrying(gen) },
		OnMessage:   func(m Inbound) { s.inbound(gen, m) },
	})
	s.transport = tr
	s.selfLogin = selfLogin
	s.mu.Unlock()

	tr.Join(channel)
	errc := make(chan error, 1)
	go func() {
		err := tr.Connect()
		select {
		case errc <- err:
		default:
		}
		s.transportDown(gen, err)
	}()

	// Wait without the lock; every outcome re-locks and re-checks the
	// generation before committing.
	select {
	case <-connected:
		s.mu.Lock()
		if gen != s.gen {
			s.mu.Unlock()
			return "", errSuperseded
		}
		s.setStateLocked(StateConnected, Status{State: "connected", Channel: channel})
		s.mu.Unlock()
		slog.Info("chat connected", slog.String("channel", channel), slog.Int("emotes", len(catalog)))
		return channel, nil
	case err := <-errc:
		// Transport failed before ever connecting; revert to idle.
		s.mu.Lock()
		if gen == s.gen {
			s.gen++
			s.transport = nil
			s.channel = ""
			s.catalog = nil
			s.selfLogin = ""
			s.setStateLocked(StateIdle, Status{State: "disconnected", Channel: channel})
		}
		s.mu.Unlock()
		slog.Warn("chat connect failed", slog.String("channel", channel), slog.Any("err", err))
		return "", err
	case <-ctx.Done():
		s.mu.Lock()
		if gen == s.gen {
			s.teardownLocked()
		}
		s.mu.Unlock()
		return "", ctx.Err()
	}
}

// Disconnect tears the session down. Idle sessions no-op. Teardown is
// best-effort: transport errors are swallowed, local state is always
// cleared.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
	return nil
}

func (s *Session) teardownLocked() {
	// Covers both a live transport and a connect still in flight (catalog
	// loading, no transport yet): either way the generation bump cancels it.
	if s.transport == nil && s.state == StateIdle {
		return
	}
	channel := s.channel
	s.setStateLocked(StateDisconnecting, Status{State: "disconnecting", Channel: channel})
	s.gen++ // invalidate callbacks from the old transport and in-flight connects
	if s.transport != nil {
		if err := s.transport.Disconnect(); err != nil {
			slog.Debug("transport teardown error ignored", slog.Any("err", err))
		}
	}
	s.transport = nil
	s.channel = ""
	s.catalog = nil
	s.selfLogin = ""
	s.setStateLocked(StateIdle, Status{State: "disconnected", Channel: channel})
}

// setStateLocked updates state and publishes the matching status event.
func (s *Session) setStateLocked(state State, st Status) {
	s.state = state
	s.publishStatus(st)
}

func (s *Session) publishStatus(st Status) {
	telemetry.RecordStatus(st.State)
	if s.events != nil {
		s.events.PublishStatus(st)
	}
}

// transportUp handles OnConnect signals after establishment: a successful
// automatic reconnect flips Reconnecting back to Connected.
func (s *Session) transportUp(gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.state != StateReconnecting {
		return
	}
	s.setStateLocked(StateConnected, Status{State: "connected", Channel: s.channel})
}

// transportRetrying marks an upstream-requested reconnect in progress.
func (s *Session) transportRetrying(gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.state != StateConnected {
		return
	}
	s.setStateLocked(StateReconnecting, Status{State: "reconnecting", Channel: s.channel})
}

// transportDown handles the transport goroutine ending. Caller-initiated
// teardown already advanced the generation, so only unsolicited exits get
// here with a matching gen.
func (s *Session) transportDown(gen int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.transport == nil {
		return
	}
	channel := s.channel
	s.gen++
	s.transport = nil
	s.channel = ""
	s.catalog = nil
	s.selfLogin = ""
	s.setStateLocked(StateIdle, Status{State: "disconnected", Channel: channel})
	if err != nil {
		slog.Warn("chat transport ended", slog.String("channel", channel), slog.Any("err", err))
	}
}

// inbound routes one delivered chat line through segmentation and out to
// the sink. Lines authored by the transport's own identity are dropped.
func (s *Session) inbound(gen int, m Inbound) {
	s.mu.Lock()
	if gen != s.gen || s.channel == "" {
		s.mu.Unlock()
		return
	}
	channel := s.channel
	catalog := s.catalog
	self := s.selfLogin
	s.mu.Unlock()

	if self != "" && strings.EqualFold(m.Login, self) {
		return
	}

	user := m.DisplayName
	if user == "" {
		user = m.Login
	}
	if user == "" {
		user = "unknown"
	}
	id := m.ID
	if id == "" {
		id = uuid.New().String()
	}
	ts := m.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	out := message.ChatMessage{
		Channel:       channel,
		User:          user,
		UserColor:     m.Color,
		Message:       m.Text,
		Segments:      message.Parse(m.Text, m.Emotes, catalog),
		IsBroadcaster: m.Badges["broadcaster"] > 0,
		ID:            id,
		TS:            ts.UnixMilli(),
	}
	if telemetry.MessagesRelayed != nil {
		telemetry.MessagesRelayed.Inc()
	}
	if s.events != nil {
		s.events.PublishMessage(out)
	}
}
