package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/stagepass/stagepass/pkg/authz"
)

// AdminClient talks to the identity provider's admin REST surface using a
// service-account client-credentials grant. All claim writes and user
// provisioning go through here.
type AdminClient struct {
	baseURL string
	http    *http.Client
}

// AdminConfig configures the admin client.
type AdminConfig struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// NewAdminClient builds an admin client authenticated via OAuth2 client
// credentials.
func NewAdminClient(config AdminConfig) (*AdminClient, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("admin base URL is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	httpClient := &http.Client{Timeout: config.Timeout}
	if config.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			TokenURL:     config.TokenURL,
		}
		httpClient = cc.Client(context.Background())
		httpClient.Timeout = config.Timeout
	}

	return &AdminClient{baseURL: config.BaseURL, http: httpClient}, nil
}

// GetUserByEmail looks up a principal by email.
func (c *AdminClient) GetUserByEmail(ctx context.Context, email string) (*UserInfo, error) {
	endpoint := c.baseURL + "/v1/users?email=" + url.QueryEscape(email)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", authz.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var user UserInfo
		if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
			return nil, fmt.Errorf("failed to decode user response: %w", err)
		}
		return &user, nil
	case http.StatusNotFound:
		return nil, authz.ErrNotFound
	default:
		return nil, fmt.Errorf("user lookup failed: status %d", resp.StatusCode)
	}
}

// CreateUser pre-provisions a principal for the given email.
func (c *AdminClient) CreateUser(ctx context.Context, email string) (*UserInfo, error) {
	body, _ := json.Marshal(map[string]string{"email": email})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/users", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", authz.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user creation failed: status %d", resp.StatusCode)
	}
	var user UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode user response: %w", err)
	}
	return &user, nil
}

// SetRoleClaims replaces the principal's custom claims for role. The claim
// document is written whole: superadmin gets the boolean claim, admin
// tiers get the role string, and stale fields from a previous role are
// dropped.
func (c *AdminClient) SetRoleClaims(ctx context.Context, userID string, role authz.Role) error {
	claims := map[string]interface{}{}
	switch role {
	case authz.RoleSuperAdmin:
		claims["superadmin"] = true
	case authz.RoleClientAdmin, authz.RoleEventAdmin:
		claims["role"] = string(role)
	default:
		return fmt.Errorf("cannot set claims for role %q", role)
	}
	return c.putClaims(ctx, userID, claims)
}

// ClearClaims removes all custom claims from the principal.
func (c *AdminClient) ClearClaims(ctx context.Context, userID string) error {
	return c.putClaims(ctx, userID, map[string]interface{}{})
}

func (c *AdminClient) putClaims(ctx context.Context, userID string, claims map[string]interface{}) error {
	body, _ := json.Marshal(map[string]interface{}{"claims": claims})
	endpoint := c.baseURL + "/v1/users/" + url.PathEscape(userID) + "/claims"
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", authz.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("claims update failed: status %d", resp.StatusCode)
	}
	return nil
}

// RevokeRefreshTokens invalidates the principal's refresh tokens so the
// next token refresh re-reads claims.
func (c *AdminClient) RevokeRefreshTokens(ctx context.Context, userID string) error {
	endpoint := c.baseURL + "/v1/users/" + url.PathEscape(userID) + "/revoke"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", authz.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("token revocation failed: status %d", resp.StatusCode)
	}
	return nil
}

// Healthy probes the admin surface. Failure maps to
// authz.ErrProviderUnavailable so the claims-check endpoint can answer 503.
func (c *AdminClient) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", authz.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", authz.ErrProviderUnavailable, resp.StatusCode)
	}
	return nil
}
