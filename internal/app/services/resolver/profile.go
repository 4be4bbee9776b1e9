package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// ProfileClient fetches display handles from the profile service over
// HTTP. It implements ProfileLookup.
type ProfileClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewProfileClient creates a client for the profile service. apiKey may
// be empty.
func NewProfileClient(baseURL, apiKey string, timeout time.Duration) *ProfileClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ProfileClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *ProfileClient) DisplayHandle(ctx context.Context, address string) (string, error) {
	endpoint := fmt.Sprintf("%s/profiles/%s", c.baseURL, url.PathEscape(address))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build profile request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("profile request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("profile service returned status %d", resp.StatusCode)
	}

	var body struct {
		DisplayHandle string `json:"display_handle"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode profile response: %w", err)
	}
	return body.DisplayHandle, nil
}
