package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSetup_CompletesOnFirstPoll(t *testing.T) {
	polls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/setup/init":
			json.NewEncoder(w).Encode(setupInitResponse{Token: "tok-1", URL: "https://example.com/auth"})
		case "/setup/poll":
			polls++
			json.NewEncoder(w).Encode(setupPollResponse{Status: "complete", APIKey: "key-1", AppID: "app-1"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(Config{AuthServerURL: srv.URL, PollInterval: time.Millisecond, Timeout: time.Second})
	c.openURL = func(string) error { return nil }

	creds, err := c.Setup(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if creds.APIKey != "key-1" || creds.AppID != "app-1" {
		t.Fatalf("unexpected credentials: %+v", creds)
	}
	if polls == 0 {
		t.Fatal("expected at least one poll")
	}
}

func TestSetup_ExpiredPollReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/setup/init":
			json.NewEncoder(w).Encode(setupInitResponse{Token: "tok-1", URL: "https://example.com/auth"})
		case "/setup/poll":
			json.NewEncoder(w).Encode(setupPollResponse{Status: "expired"})
		}
	}))
	defer srv.Close()

	c := New(Config{AuthServerURL: srv.URL, PollInterval: time.Millisecond, Timeout: time.Second})
	c.openURL = func(string) error { return nil }

	_, err := c.Setup(context.Background())
	if err != ErrSetupExpired {
		t.Fatalf("expected ErrSetupExpired, got %v", err)
	}
}

func TestRefreshAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/app/refresh" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var req refreshRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.RefreshToken != "old-token" {
			t.Fatalf("unexpected refresh token: %s", req.RefreshToken)
		}
		json.NewEncoder(w).Encode(refreshResponse{APIKey: "new-key", AppID: "app-1", RefreshToken: "new-token"})
	}))
	defer srv.Close()

	c := New(Config{AuthServerURL: srv.URL})
	creds, err := c.RefreshAPIKey(context.Background(), "old-token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if creds.APIKey != "new-key" || creds.RefreshToken != "new-token" {
		t.Fatalf("unexpected credentials: %+v", creds)
	}
}
