package emotes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const userAgent = "DucChat/1.0"

// getJSON issues a GET with the relay's User-Agent and decodes the JSON body
// into out. Non-2xx responses are errors. Deadlines come from ctx.
func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("HTTP %d for %s", resp.StatusCode, url)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
