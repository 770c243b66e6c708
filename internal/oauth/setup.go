// Package oauth implements the polling-based OAuth setup and refresh flow
// used to obtain P2P signaling credentials from the auth server.
package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nodeglow/rtcgateway/internal/credentials"
	"github.com/nodeglow/rtcgateway/internal/logging"
)

// ErrSetupExpired is returned when polling exceeds Config.Timeout without
// the session reaching a terminal state.
var ErrSetupExpired = errors.New("oauth: setup expired or cancelled")

// Config configures one setup/refresh flow.
type Config struct {
	AuthServerURL   string
	AppName         string
	PollInterval    time.Duration
	Timeout         time.Duration
	AutoOpenBrowser bool
}

// DefaultConfig returns the flow's default polling cadence: 2s interval,
// 300s (5 minute) overall timeout.
func DefaultConfig(authServerURL string) Config {
	return Config{
		AuthServerURL:   authServerURL,
		AppName:         "Gateway",
		PollInterval:    2 * time.Second,
		Timeout:         300 * time.Second,
		AutoOpenBrowser: true,
	}
}

type setupInitResponse struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

type setupPollResponse struct {
	Status       string `json:"status"`
	APIKey       string `json:"apiKey"`
	AppID        string `json:"appId"`
	RefreshToken string `json:"refreshToken"`
	Error        string `json:"error"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	APIKey       string `json:"apiKey"`
	AppID        string `json:"appId"`
	RefreshToken string `json:"refreshToken"`
}

// Client drives the setup/poll/refresh HTTP contract against the auth
// server.
type Client struct {
	cfg        Config
	httpClient *http.Client
	openURL    func(string) error
}

// New builds a Client with a 30s HTTP client timeout, matching the flow's
// per-request budget.
func New(cfg Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		openURL:    openBrowser,
	}
}

// Setup runs the full flow: initiate, optionally open the auth URL in a
// browser, then poll until the session completes, expires, or errors.
func (c *Client) Setup(ctx context.Context) (credentials.Credentials, error) {
	init, err := c.initiateSetup(ctx)
	if err != nil {
		return credentials.Credentials{}, err
	}

	logging.Logger().Sugar().Infow("oauth setup initiated, authenticate at", "url", init.URL)

	if c.cfg.AutoOpenBrowser {
		if err := c.openURL(init.URL); err != nil {
			logging.Logger().Sugar().Warnw("failed to open browser, open the URL manually", "error", err)
		}
	}

	creds, err := c.pollForCompletion(ctx, init.Token)
	if err != nil {
		return credentials.Credentials{}, err
	}

	logging.Logger().Sugar().Info("oauth setup completed successfully")
	return creds, nil
}

func (c *Client) initiateSetup(ctx context.Context) (setupInitResponse, error) {
	body, err := json.Marshal(map[string]string{"app_name": c.cfg.AppName})
	if err != nil {
		return setupInitResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthServerURL+"/setup/init", bytes.NewReader(body))
	if err != nil {
		return setupInitResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return setupInitResponse{}, fmt.Errorf("oauth: setup init request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return setupInitResponse{}, fmt.Errorf("oauth: setup failed: server returned %d: %s", resp.StatusCode, string(b))
	}

	var out setupInitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return setupInitResponse{}, fmt.Errorf("oauth: invalid setup response: %w", err)
	}
	return out, nil
}

func (c *Client) pollForCompletion(ctx context.Context, token string) (credentials.Credentials, error) {
	interval := c.cfg.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	timeout := c.cfg.Timeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	deadline := time.Now().Add(timeout)

	for {
		if time.Now().After(deadline) {
			return credentials.Credentials{}, ErrSetupExpired
		}

		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return credentials.Credentials{}, ctx.Err()
		}

		poll, err := c.pollOnce(ctx, token)
		if err != nil {
			// A single failed poll doesn't abort the flow; transient
			// network errors are retried until the deadline.
			logging.Logger().Sugar().Debugw("setup poll failed, retrying", "error", err)
			continue
		}

		switch poll.Status {
		case "pending":
			continue
		case "complete":
			if poll.APIKey == "" {
				return credentials.Credentials{}, errors.New("oauth: complete response missing api key")
			}
			return credentials.Credentials{APIKey: poll.APIKey, AppID: poll.AppID, RefreshToken: poll.RefreshToken}, nil
		case "expired":
			return credentials.Credentials{}, ErrSetupExpired
		case "error":
			msg := poll.Error
			if msg == "" {
				msg = "unknown error"
			}
			return credentials.Credentials{}, fmt.Errorf("oauth: setup failed: %s", msg)
		default:
			return credentials.Credentials{}, fmt.Errorf("oauth: unknown poll status: %s", poll.Status)
		}
	}
}

func (c *Client) pollOnce(ctx context.Context, token string) (setupPollResponse, error) {
	url := fmt.Sprintf("%s/setup/poll?token=%s", c.cfg.AuthServerURL, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return setupPollResponse{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return setupPollResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return setupPollResponse{}, fmt.Errorf("server returned %d", resp.StatusCode)
	}

	var out setupPollResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return setupPollResponse{}, fmt.Errorf("invalid poll response: %w", err)
	}
	return out, nil
}

// RefreshAPIKey exchanges a refresh token for a new API key/app ID pair.
func (c *Client) RefreshAPIKey(ctx context.Context, refreshToken string) (credentials.Credentials, error) {
	body, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return credentials.Credentials{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthServerURL+"/api/app/refresh", bytes.NewReader(body))
	if err != nil {
		return credentials.Credentials{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return credentials.Credentials{}, fmt.Errorf("oauth: refresh request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return credentials.Credentials{}, fmt.Errorf("oauth: refresh failed: server returned %d: %s", resp.StatusCode, string(b))
	}

	var out refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return credentials.Credentials{}, fmt.Errorf("oauth: invalid refresh response: %w", err)
	}
	return credentials.Credentials{APIKey: out.APIKey, AppID: out.AppID, RefreshToken: out.RefreshToken}, nil
}

// LoadOrSetup loads credentials from path, running the OAuth setup flow and
// persisting the result if the file does not exist yet.
func LoadOrSetup(ctx context.Context, path string, cfg Config) (credentials.Credentials, error) {
	creds, err := credentials.Load(path)
	if err == nil {
		logging.Logger().Sugar().Infow("loaded credentials", "path", path)
		return creds, nil
	}

	logging.Logger().Sugar().Info("credentials not found, starting OAuth setup")
	creds, err = New(cfg).Setup(ctx)
	if err != nil {
		return credentials.Credentials{}, err
	}

	if err := creds.Save(path); err != nil {
		return credentials.Credentials{}, err
	}
	logging.Logger().Sugar().Infow("credentials saved", "path", path)
	return creds, nil
}

// RefreshIfNeeded refreshes creds against authServerURL, if and only if a
// refresh token is present.
func RefreshIfNeeded(ctx context.Context, creds credentials.Credentials, authServerURL string) (credentials.Credentials, error) {
	if !creds.HasRefreshToken() {
		return credentials.Credentials{}, errors.New("oauth: no refresh token available")
	}
	return New(DefaultConfig(authServerURL)).RefreshAPIKey(ctx, creds.RefreshToken)
}
