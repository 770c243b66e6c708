// Package credentials loads and persists the P2P API key and refresh token
// the gateway uses to authenticate with the signaling server.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// ErrInvalidFormat is returned when an ENV-format credentials file has no
// API key line.
var ErrInvalidFormat = errors.New("credentials: invalid format")

// Credentials holds the API key and optional refresh token used to
// authenticate with the signaling server.
type Credentials struct {
	APIKey       string `json:"api_key"`
	AppID        string `json:"app_id,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// New builds credentials with only an API key set.
func New(apiKey string) Credentials {
	return Credentials{APIKey: apiKey}
}

// WithRefreshToken builds fully-populated credentials.
func WithRefreshToken(apiKey, appID, refreshToken string) Credentials {
	return Credentials{APIKey: apiKey, AppID: appID, RefreshToken: refreshToken}
}

// HasRefreshToken reports whether a refresh token is present.
func (c Credentials) HasRefreshToken() bool { return c.RefreshToken != "" }

// Load reads credentials from path, auto-detecting JSON (content starting
// with '{') vs ENV format.
func Load(path string) (Credentials, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return Credentials{}, fmt.Errorf("credentials file not found: %s", path)
		}
		return Credentials{}, err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, err
	}

	trimmed := strings.TrimSpace(string(content))
	if strings.HasPrefix(trimmed, "{") {
		var c Credentials
		if err := json.Unmarshal(content, &c); err != nil {
			return Credentials{}, fmt.Errorf("credentials: parse json: %w", err)
		}
		return c, nil
	}

	return parseEnvFormat(trimmed)
}

func parseEnvFormat(content string) (Credentials, error) {
	var c Credentials
	var apiKeySeen bool

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		switch key {
		case "P2P_API_KEY", "API_KEY":
			c.APIKey = value
			apiKeySeen = true
		case "P2P_APP_ID", "APP_ID":
			c.AppID = value
		case "P2P_REFRESH_TOKEN", "REFRESH_TOKEN":
			if value != "" {
				c.RefreshToken = value
			}
		}
	}

	if !apiKeySeen {
		return Credentials{}, ErrInvalidFormat
	}
	return c, nil
}

// Save writes credentials to path in ENV format, creating parent
// directories as needed.
func (c Credentials) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "P2P_API_KEY=%s\n", c.APIKey)
	if c.AppID != "" {
		fmt.Fprintf(&b, "P2P_APP_ID=%s\n", c.AppID)
	}
	if c.RefreshToken != "" {
		fmt.Fprintf(&b, "P2P_REFRESH_TOKEN=%s\n", c.RefreshToken)
	}

	return os.WriteFile(path, []byte(b.String()), 0o600)
}

// SaveJSON writes credentials to path as indented JSON, creating parent
// directories as needed.
func (c Credentials) SaveJSON(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// DefaultPath returns the service-compatible credentials path: C:\ProgramData\Gateway
// on Windows, /etc/gateway elsewhere.
func DefaultPath() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(`C:\ProgramData\Gateway`, "p2p_credentials.env")
	}
	return filepath.Join("/etc/gateway", "p2p_credentials.env")
}
