// Package whop is a small client for the Whop membership provider: OAuth
// sign-in, pass access checks and membership lookups.
package whop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const (
	DefaultAPIBaseURL      = "https://api.whop.com"
	DefaultAuthURL         = "https://whop.com/oauth"
	DefaultTokenURL        = "https://data.whop.com/oauth/token"
	DefaultCheckoutBaseURL = "https://whop.com/checkout"
)

// StatusError is returned when Whop answers with a non-200 status.
type StatusError struct {
	Endpoint   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("whop %s returned HTTP %d", e.Endpoint, e.StatusCode)
}

// Config holds the Whop application credentials and endpoints.
type Config struct {
	ClientID     string
	ClientSecret string

	// RedirectURL is the redirect URI registered for codes that arrive on the home page.
	RedirectURL string

	// APIKey authenticates server-side lookups such as memberships.
	APIKey string

	APIBaseURL      string
	AuthURL         string
	TokenURL        string
	CheckoutBaseURL string
}

func (c *Config) applyDefaults() {
	if c.APIBaseURL == "" {
		c.APIBaseURL = DefaultAPIBaseURL
	}
	if c.AuthURL == "" {
		c.AuthURL = DefaultAuthURL
	}
	if c.TokenURL == "" {
		c.TokenURL = DefaultTokenURL
	}
	if c.CheckoutBaseURL == "" {
		c.CheckoutBaseURL = DefaultCheckoutBaseURL
	}
}

// Client talks to the Whop API.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient validates the configuration and returns a client that sends all
// requests, including OAuth token exchanges, through httpClient.
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("whop client ID and client secret are required")
	}

	cfg.applyDefaults()

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{cfg: cfg, http: httpClient}, nil
}

// OAuthConfig returns the OAuth2 configuration for the given redirect URL.
func (c *Client) OAuthConfig(redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		RedirectURL:  redirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.cfg.AuthURL,
			TokenURL:  c.cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// AuthCodeURL returns the Whop authorize URL for the sign-in flow.
func (c *Client) AuthCodeURL(redirectURL, state string) string {
	return c.OAuthConfig(redirectURL).AuthCodeURL(state)
}

// Exchange trades an authorization code for a token.
func (c *Client) Exchange(ctx context.Context, redirectURL, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	return c.OAuthConfig(redirectURL).Exchange(ctx, code)
}

// ExchangeCode trades a code that arrived on the configured redirect URL for an
// access token. A code the provider rejects, or a token response without an
// access token, yields an empty token and no error. Only transport and context
// failures are returned.
func (c *Client) ExchangeCode(ctx context.Context, code string) (string, error) {
	token, err := c.Exchange(ctx, c.cfg.RedirectURL, code)
	if err != nil {
		if isTransportError(ctx, err) {
			return "", fmt.Errorf("failed to exchange code: %w", err)
		}

		evt := log.Debug().Err(err)
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			evt = evt.Int("status", retrieveErr.Response.StatusCode).Str("error_code", retrieveErr.ErrorCode)
		}
		evt.Msg("Whop rejected authorization code")
		return "", nil
	}

	return token.AccessToken, nil
}

// isTransportError reports whether err came from reaching the token endpoint
// rather than from its answer.
func isTransportError(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// HasAccess reports whether the user behind accessToken holds passID.
func (c *Client) HasAccess(ctx context.Context, accessToken, passID string) (bool, error) {
	var body struct {
		Valid *bool `json:"valid"`
	}

	if err := c.getJSON(ctx, "has_access", "/api/v2/me/has_access/"+url.PathEscape(passID), accessToken, &body); err != nil {
		return false, err
	}

	if body.Valid == nil {
		return false, errors.New("whop has_access response missing valid field")
	}

	return *body.Valid, nil
}

// MembershipPlan returns the plan id of a membership, looked up with the API key.
func (c *Client) MembershipPlan(ctx context.Context, membershipID string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", errors.New("whop API key is required for membership lookups")
	}

	var body struct {
		Plan string `json:"plan"`
	}

	if err := c.getJSON(ctx, "memberships", "/api/v2/memberships/"+url.PathEscape(membershipID), c.cfg.APIKey, &body); err != nil {
		return "", err
	}

	return body.Plan, nil
}

// User is the signed-in Whop user.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
}

// DisplayName returns the best available human readable name.
func (u *User) DisplayName() string {
	switch {
	case u.Name != "":
		return u.Name
	case u.Username != "":
		return u.Username
	default:
		return u.Email
	}
}

// Me returns the user that owns accessToken.
func (c *Client) Me(ctx context.Context, accessToken string) (*User, error) {
	var user User
	if err := c.getJSON(ctx, "me", "/api/v2/me", accessToken, &user); err != nil {
		return nil, err
	}

	if user.ID == "" {
		return nil, errors.New("whop me response missing id")
	}

	return &user, nil
}

// PurchaseLink returns the checkout URL for a plan.
func (c *Client) PurchaseLink(planID string) string {
	return strings.TrimSuffix(c.cfg.CheckoutBaseURL, "/") + "/" + url.PathEscape(planID) + "/"
}

func (c *Client) getJSON(ctx context.Context, endpoint, path, bearer string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(c.cfg.APIBaseURL, "/")+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", endpoint, err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call whop %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode whop %s response: %w", endpoint, err)
	}

	return nil
}
