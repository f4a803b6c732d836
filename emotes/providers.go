package emotes

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Provider fetches the emote set one service publishes for a channel.
// login is the channel name; twitchID is the channel's numeric identity and
// may be empty (FFZ resolves by login, BTTV and 7TV need the id).
type Provider interface {
	Name() string
	Fetch(ctx context.Context, login, twitchID string) (Catalog, error)
}

// ensureHTTPS upgrades protocol-relative CDN URLs ("//cdn...") to https.
func ensureHTTPS(u string) string {
	if strings.HasPrefix(u, "//") {
		return "https:" + u
	}
	return u
}

// FFZProvider reads FrankerFaceZ room emotes.
type FFZProvider struct {
	BaseURL string
	Client  *http.Client
}

func (p *FFZProvider) Name() string { return "ffz" }

func (p *FFZProvider) base() string {
	if p.BaseURL != "" {
		return p.BaseURL
	}
	return "https://api.frankerfacez.com"
}

func (p *FFZProvider) Fetch(ctx context.Context, login, _ string) (Catalog, error) {
	var body struct {
		Sets map[string]struct {
			Emoticons []struct {
				ID   int               `json:"id"`
				Name string            `json:"name"`
				URLs map[string]string `json:"urls"`
			} `json:"emoticons"`
		} `json:"sets"`
	}
	u := p.base() + "/v1/room/" + url.PathEscape(login)
	if err := getJSON(ctx, p.Client, u, &body); err != nil {
		return nil, err
	}
	out := Catalog{}
	for _, set := range body.Sets {
		for _, e := range set.Emoticons {
			u := pickFFZURL(e.URLs)
			if e.Name == "" || u == "" {
				continue
			}
			out[e.Name] = Emote{Provider: "ffz", ID: fmt.Sprintf("%d", e.ID), URL: u, Name: e.Name}
		}
	}
	return out, nil
}

// pickFFZURL prefers the highest-resolution asset; FFZ keys scales "1","2","4".
func pickFFZURL(urls map[string]string) string {
	for _, scale := range []string{"4", "2", "1"} {
		if u := urls[scale]; u != "" {
			return ensureHTTPS(u)
		}
	}
	return ""
}

// BTTVProvider reads BetterTTV channel and shared emotes.
type BTTVProvider struct {
	BaseURL string
	Client  *http.Client
}

func (p *BTTVProvider) Name() string { return "bttv" }

func (p *BTTVProvider) base() string {
	if p.BaseURL != "" {
		return p.BaseURL
	}
	return "https://api.betterttv.net"
}

func (p *BTTVProvider) Fetch(ctx context.Context, _, twitchID string) (Catalog, error) {
	if twitchID == "" {
		return Catalog{}, nil
	}
	var body struct {
		ChannelEmotes []bttvEmote `json:"channelEmotes"`
		SharedEmotes  []bttvEmote `json:"sharedEmotes"`
	}
	u := p.base() + "/3/cached/users/twitch/" + url.PathEscape(twitchID)
	if err := getJSON(ctx, p.Client, u, &body); err != nil {
		return nil, err
	}
	out := Catalog{}
	for _, e := range append(body.ChannelEmotes, body.SharedEmotes...) {
		if e.Code == "" || e.ID == "" {
			continue
		}
		// BTTV tops out at 3x.
		out[e.Code] = Emote{Provider: "bttv", ID: e.ID, URL: "https://cdn.betterttv.net/emote/" + e.ID + "/3x", Name: e.Code}
	}
	return out, nil
}

type bttvEmote struct {
	ID   string `json:"id"`
	Code string `json:"code"`
}

// SevenTVProvider reads the active 7TV emote set.
type SevenTVProvider struct {
	BaseURL string
	Client  *http.Client
}

func (p *SevenTVProvider) Name() string { return "7tv" }

func (p *SevenTVProvider) base() string {
	if p.BaseURL != "" {
		return p.BaseURL
	}
	return "https://7tv.io"
}

func (p *SevenTVProvider) Fetch(ctx context.Context, _, twitchID string) (Catalog, error) {
	if twitchID == "" {
		return Catalog{}, nil
	}
	var body struct {
		EmoteSet struct {
			Emotes []struct {
				ID   string `json:"id"`
				Name string `json:"name"`
				Data struct {
					Host struct {
						URL   string `json:"url"`
						Files []struct {
							Name string `json:"name"`
						} `json:"files"`
					} `json:"host"`
				} `json:"data"`
			} `json:"emotes"`
		} `json:"emote_set"`
	}
	u := p.base() + "/v3/users/twitch/" + url.PathEscape(twitchID)
	if err := getJSON(ctx, p.Client, u, &body); err != nil {
		return nil, err
	}
	out := Catalog{}
	for _, e := range body.EmoteSet.Emotes {
		base := e.Data.Host.URL
		if e.Name == "" || base == "" {
			continue
		}
		file := ""
		for _, want := range []string{"4x.webp", "3x.webp", "2x.webp", "1x.webp"} {
			for _, f := range e.Data.Host.Files {
				if f.Name == want {
					file = want
					break
				}
			}
			if file != "" {
				break
			}
		}
		if file == "" && len(e.Data.Host.Files) > 0 {
			file = e.Data.Host.Files[0].Name
		}
		if file == "" {
			continue
		}
		out[e.Name] = Emote{Provider: "7tv", ID: e.ID, URL: ensureHTTPS(base) + "/" + file, Name: e.Name}
	}
	return out, nil
}
