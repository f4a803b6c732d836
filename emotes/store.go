package emotes

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ducchat/ducchat/telemetry"
)

// Store owns the per-channel catalog cache and runs the provider
// aggregation on miss. Provider order encodes precedence: a later provider
// overwrites an earlier one's entry for the same token.
type Store struct {
	ttl       time.Duration
	timeout   time.Duration
	clock     clockwork.Clock
	identity  IdentityResolver
	providers []Provider

	mu      sync.Mutex
	entries map[string]cacheEntry
	group   singleflight.Group
}

type cacheEntry struct {
	at      time.Time
	catalog Catalog
}

// Option configures a Store.
type Option func(*Store)

// WithClock substitutes the cache clock (tests use a fake).
func WithClock(c clockwork.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithIdentityResolver overrides the identity lookup.
func WithIdentityResolver(r IdentityResolver) Option {
	return func(s *Store) { s.identity = r }
}

// WithProviders overrides the provider list; order is precedence order.
func WithProviders(ps ...Provider) Option {
	return func(s *Store) { s.providers = ps }
}

// WithProviderTimeout bounds each provider and identity call.
func WithProviderTimeout(d time.Duration) Option {
	return func(s *Store) { s.timeout = d }
}

// NewStore builds a Store with the default provider chain
// (FFZ < BTTV < 7TV) and the given cache TTL.
func NewStore(ttl time.Duration, client *http.Client, opts ...Option) *Store {
	s := &Store{
		ttl:      ttl,
		timeout:  8 * time.Second,
		clock:    clockwork.NewRealClock(),
		identity: newCachingResolver(&IVRResolver{Client: client}),
		providers: []Provider{
			&FFZProvider{Client: client},
			&BTTVProvider{Client: client},
			&SevenTVProvider{Client: client},
		},
		entries: make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.identity == nil {
		s.identity = newCachingResolver(&IVRResolver{Client: client})
	}
	return s
}

// Load returns the custom emote catalog for a channel, from cache when the
// entry is younger than the TTL. Provider and identity failures degrade to
// empty contributions; Load itself never fails, at worst it returns an
// empty catalog. Concurrent loads for the same channel are coalesced.
func (s *Store) Load(ctx context.Context, channel string) Catalog {
	channel = strings.ToLower(strings.TrimSpace(channel))
	if channel == "" {
		return Catalog{}
	}

	if c, ok := s.cached(channel); ok {
		if telemetry.EmoteCacheHits != nil {
			telemetry.EmoteCacheHits.Inc()
		}
		return c
	}

	v, _, _ := s.group.Do(channel, func() (any, error) {
		// Re-check: another caller may have refreshed while we waited.
		if c, ok := s.cached(channel); ok {
			return c, nil
		}
		if telemetry.EmoteCacheMisses != nil {
			telemetry.EmoteCacheMisses.Inc()
		}
		c := s.fetch(ctx, channel)
		s.mu.Lock()
		s.entries[channel] = cacheEntry{at: s.clock.Now(), catalog: c}
		s.mu.Unlock()
		return c, nil
	})
	return v.(Catalog)
}

func (s *Store) cached(channel string) (Catalog, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[channel]
	if !ok || s.clock.Since(e.at) >= s.ttl {
		return nil, false
	}
	return e.catalog, true
}

// fetch resolves the channel identity, queries all providers concurrently,
// and merges the results in provider order (last write wins per token).
func (s *Store) fetch(ctx context.Context, channel string) Catalog {
	ctx, span := telemetry.StartSpan(ctx, "emotes", "catalog.load",
		attribute.String("channel", channel))
	defer span.End()
	start := time.Now()

	idCtx, cancel := context.WithTimeout(ctx, s.timeout)
	twitchID, err := s.identity.Resolve(idCtx, channel)
	cancel()
	if err != nil {
		// Non-fatal: FFZ works without the id.
		telemetry.RecordProviderFailure("identity")
		slog.Warn("channel identity lookup failed", slog.String("channel", channel), slog.Any("err", err))
		twitchID = ""
	}

	results := make([]Catalog, len(s.providers))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range s.providers {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(gctx, s.timeout)
			defer cancel()
			c, err := p.Fetch(pctx, channel, twitchID)
			if err != nil {
				// A failing provider contributes nothing; the rest still merge.
				telemetry.RecordProviderFailure(p.Name())
				slog.Warn("emote provider failed", slog.String("provider", p.Name()), slog.String("channel", channel), slog.Any("err", err))
				return nil
			}
			results[i] = c
			return nil
		})
	}
	_ = g.Wait()

	merged := Catalog{}
	for _, r := range results {
		for k, v := range r {
			merged[k] = v
		}
	}
	if telemetry.CatalogLoadDuration != nil {
		telemetry.CatalogLoadDuration.Observe(time.Since(start).Seconds())
	}
	slog.Debug("emote catalog loaded", slog.String("channel", channel), slog.Int("count", len(merged)))
	return merged
}
