package server

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/ducchat/ducchat/chat"
	"github.com/ducchat/ducchat/message"
	"github.com/ducchat/ducchat/settings"
)

func recvEvent(t *testing.T, sub *subscriber) event {
	t.Helper()
	select {
	case ev, open := <-sub.ch:
		if !open {
			t.Fatal("subscriber channel closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return event{}
}

func TestSubscriberJoinMidStream(t *testing.T) {
	h := NewHub()

	// Broadcasts fired before registration must never reach the subscriber.
	for i := 0; i < 3; i++ {
		h.PublishMessage(message.ChatMessage{Message: fmt.Sprintf("early %d", i)})
	}
	h.PublishStatus(chat.Status{State: "connected", Channel: "somechannel"})

	sub := h.subscribe()
	defer h.unsubscribe(sub)

	first := recvEvent(t, sub)
	if first.name != "status" {
		t.Fatalf("first event = %q, want status", first.name)
	}
	var st chat.Status
	if err := json.Unmarshal(first.data, &st); err != nil {
		t.Fatal(err)
	}
	if st.State != "connected" || st.Channel != "somechannel" {
		t.Errorf("snapshot status = %+v", st)
	}

	second := recvEvent(t, sub)
	if second.name != "config" {
		t.Fatalf("second event = %q, want config", second.name)
	}

	h.PublishMessage(message.ChatMessage{Message: "after join"})
	third := recvEvent(t, sub)
	if third.name != "message" {
		t.Fatalf("third event = %q, want message", third.name)
	}
	var m message.ChatMessage
	if err := json.Unmarshal(third.data, &m); err != nil {
		t.Fatal(err)
	}
	if m.Message != "after join" {
		t.Errorf("message = %q, early broadcasts must not be replayed", m.Message)
	}
}

func TestConfigRetainedForLateJoiners(t *testing.T) {
	h := NewHub()
	h.PublishConfig(settings.PseudoConfig{Blocked: []string{"troll"}, Renames: map[string]string{}})

	sub := h.subscribe()
	defer h.unsubscribe(sub)

	recvEvent(t, sub) // status snapshot
	ev := recvEvent(t, sub)
	if ev.name != "config" {
		t.Fatalf("event = %q, want config", ev.name)
	}
	var cfg settings.PseudoConfig
	if err := json.Unmarshal(ev.data, &cfg); err != nil {
		t.Fatal(err)
	}
	if len(cfg.Blocked) != 1 || cfg.Blocked[0] != "troll" {
		t.Errorf("config snapshot = %+v", cfg)
	}
}

func TestSeedConfigDoesNotBroadcast(t *testing.T) {
	h := NewHub()
	sub := h.subscribe()
	defer h.unsubscribe(sub)
	recvEvent(t, sub)
	recvEvent(t, sub)

	h.SeedConfig(settings.PseudoConfig{Blocked: []string{"troll"}})
	select {
	case ev := <-sub.ch:
		t.Fatalf("seed broadcast an event: %q", ev.name)
	case <-time.After(50 * time.Millisecond):
	}
	_, cfg, _ := h.Snapshot()
	if len(cfg.Blocked) != 1 {
		t.Errorf("seeded config = %+v", cfg)
	}
}

func TestSlowSubscriberEvicted(t *testing.T) {
	h := NewHub()
	slow := h.subscribe()
	// Never drained: the snapshot already occupies 2 slots, so overflowing
	// the rest of the buffer must evict it.
	for i := 0; i < subscriberBuffer; i++ {
		h.PublishMessage(message.ChatMessage{Message: "flood"})
	}
	if _, _, n := h.Snapshot(); n != 0 {
		t.Fatalf("subscribers after flood = %d, want 0", n)
	}
	// Channel is closed so a reader terminates instead of hanging.
	for range slow.ch {
	}

	// A healthy subscriber registered afterwards still receives events.
	fresh := h.subscribe()
	defer h.unsubscribe(fresh)
	recvEvent(t, fresh)
	recvEvent(t, fresh)
	h.PublishMessage(message.ChatMessage{Message: "still flowing"})
	if ev := recvEvent(t, fresh); ev.name != "message" {
		t.Errorf("event = %q", ev.name)
	}
}

func TestUnsubscribeIdempotent(t *testing.T) {
	h := NewHub()
	sub := h.subscribe()
	h.unsubscribe(sub)
	h.unsubscribe(sub) // second call must not panic on the closed channel
	if _, _, n := h.Snapshot(); n != 0 {
		t.Errorf("subscribers = %d", n)
	}
}
