// Package settings persists the small user-facing configuration document:
// the last connected channel and the pseudo (username) display config.
// Reads tolerate a missing or corrupt file; writes rewrite the whole
// document.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// PseudoConfig controls how usernames are presented to overlay consumers:
// blocked logins are hidden, renames map a login to a display alias.
type PseudoConfig struct {
	Blocked []string          `json:"blocked"`
	Renames map[string]string `json:"renames"`
}

type document struct {
	TwitchChannel string        `json:"twitchChannel"`
	Pseudos       *PseudoConfig `json:"pseudos,omitempty"`
}

// Store reads and writes the settings document at a fixed path. All access
// serializes through one mutex so concurrent API calls never interleave a
// read-modify-write.
type Store struct {
	mu   sync.Mutex
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Channel returns the persisted channel, empty when unset or unreadable.
func (s *Store) Channel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked().TwitchChannel
}

// SetChannel persists the channel, leaving the rest of the document intact.
func (s *Store) SetChannel(channel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.readLocked()
	doc.TwitchChannel = channel
	return s.writeLocked(doc)
}

// PseudoConfig returns the persisted pseudo config, normalized. A missing
// or corrupt document yields the empty config.
func (s *Store) PseudoConfig() PseudoConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return normalize(s.readLocked().Pseudos)
}

// SetPseudoConfig normalizes and persists the given config, returning the
// normalized form. On write failure the error is surfaced and the file is
// left as it was; the returned config is still the normalized input so the
// caller can keep serving it from memory.
func (s *Store) SetPseudoConfig(cfg PseudoConfig) (PseudoConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := normalize(&cfg)
	doc := s.readLocked()
	doc.Pseudos = &next
	if err := s.writeLocked(doc); err != nil {
		return next, err
	}
	return next, nil
}

func (s *Store) readLocked() document {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return document{}
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return document{}
	}
	return doc
}

func (s *Store) writeLocked(doc document) error {
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	if err := os.WriteFile(s.path, payload, 0o644); err != nil {
		return fmt.Errorf("persist settings: %w", err)
	}
	return nil
}

// normalize lowercases and trims every login, drops empties, and dedupes
// the blocked list while preserving first-seen order. Rename values keep
// their case (they are display text) but empty aliases are dropped.
func normalize(cfg *PseudoConfig) PseudoConfig {
	out := PseudoConfig{Blocked: []string{}, Renames: map[string]string{}}
	if cfg == nil {
		return out
	}
	seen := make(map[string]bool, len(cfg.Blocked))
	for _, b := range cfg.Blocked {
		login := strings.ToLower(strings.TrimSpace(b))
		if login == "" || seen[login] {
			continue
		}
		seen[login] = true
		out.Blocked = append(out.Blocked, login)
	}
	for k, v := range cfg.Renames {
		login := strings.ToLower(strings.TrimSpace(k))
		alias := strings.TrimSpace(v)
		if login == "" || alias == "" {
			continue
		}
		out.Renames[login] = alias
	}
	return out
}
