package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/stagepass/stagepass/pkg/authz"
)

// Client calls the claims-check endpoint on behalf of the state machine.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a claims client against baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// ResolveClaims fetches the caller's role and permissions. A 503 maps to
// authz.ErrProviderUnavailable so the state machine can degrade; a 401 maps
// to authz.ErrInvalidToken.
func (c *Client) ResolveClaims(ctx context.Context, token string) (*authz.Resolution, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/claims", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build claims request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("claims request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return nil, authz.ErrInvalidToken
	case http.StatusServiceUnavailable:
		return nil, authz.ErrProviderUnavailable
	default:
		return nil, fmt.Errorf("claims request returned status %d", resp.StatusCode)
	}

	var resolution authz.Resolution
	if err := json.NewDecoder(resp.Body).Decode(&resolution); err != nil {
		return nil, fmt.Errorf("failed to decode claims response: %w", err)
	}
	return &resolution, nil
}
