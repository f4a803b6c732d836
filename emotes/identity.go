package emotes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// IdentityResolver turns a channel login into its numeric Twitch user id.
// Resolution failure is never fatal to catalog loading: FFZ resolves by
// login, so a missing id only degrades BTTV/7TV coverage.
type IdentityResolver interface {
	Resolve(ctx context.Context, login string) (string, error)
}

// IVRResolver uses the public ivr.fi endpoint, which needs no credentials.
type IVRResolver struct {
	BaseURL string
	Client  *http.Client
}

func (r *IVRResolver) base() string {
	if r.BaseURL != "" {
		return r.BaseURL
	}
	return "https://api.ivr.fi"
}

func (r *IVRResolver) Resolve(ctx context.Context, login string) (string, error) {
	var body struct {
		ID json.Number `json:"id"`
	}
	u := r.base() + "/v2/twitch/user?login=" + url.QueryEscape(login)
	if err := getJSON(ctx, r.Client, u, &body); err != nil {
		return "", err
	}
	if body.ID == "" {
		return "", errors.New("user not found")
	}
	return body.ID.String(), nil
}

// HelixResolver resolves logins through the Helix users endpoint with an app
// access token (client credentials). Used when the relay is configured with
// Twitch API credentials.
type HelixResolver struct {
	ClientID string
	BaseURL  string
	Client   *http.Client

	creds clientcredentials.Config
	once  sync.Once
	ts    oauth2.TokenSource
}

// NewHelixResolver builds a resolver holding a cached client-credentials
// token source for the given app credentials.
func NewHelixResolver(clientID, clientSecret string) *HelixResolver {
	return &HelixResolver{
		ClientID: clientID,
		creds: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     "https://id.twitch.tv/oauth2/token",
		},
	}
}

func (r *HelixResolver) base() string {
	if r.BaseURL != "" {
		return r.BaseURL
	}
	return "https://api.twitch.tv"
}

func (r *HelixResolver) Resolve(ctx context.Context, login string) (string, error) {
	if login == "" {
		return "", errors.New("login empty")
	}
	// The client-credentials token source refreshes and caches the app
	// token on its own.
	r.once.Do(func() { r.ts = r.creds.TokenSource(context.Background()) })
	tok, err := r.ts.Token()
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.base()+"/helix/users?login="+url.QueryEscape(login), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Client-Id", r.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	hc := r.Client
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if len(body.Data) == 0 {
		return "", errors.New("user not found")
	}
	return body.Data[0].ID, nil
}

// cachingResolver memoizes successful lookups; logins keep their id for the
// lifetime of the process.
type cachingResolver struct {
	next IdentityResolver

	mu  sync.Mutex
	ids map[string]string
}

func newCachingResolver(next IdentityResolver) *cachingResolver {
	return &cachingResolver{next: next, ids: make(map[string]string)}
}

func (c *cachingResolver) Resolve(ctx context.Context, login string) (string, error) {
	key := strings.ToLower(login)
	if key == "" {
		return "", nil
	}
	c.mu.Lock()
	if id, ok := c.ids[key]; ok {
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	id, err := c.next.Resolve(ctx, key)
	if err != nil {
		return "", err
	}
	if id != "" {
		c.mu.Lock()
		c.ids[key] = id
		c.mu.Unlock()
	}
	return id, nil
}
