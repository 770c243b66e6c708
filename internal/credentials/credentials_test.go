package credentials

import (
	"path/filepath"
	"testing"
)

func TestParseEnvFormat(t *testing.T) {
	content := "\nP2P_API_KEY=test-api-key\nP2P_APP_ID=app-123\nP2P_REFRESH_TOKEN=refresh-token-456\n"
	c, err := parseEnvFormat(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.APIKey != "test-api-key" || c.AppID != "app-123" || c.RefreshToken != "refresh-token-456" {
		t.Fatalf("unexpected credentials: %+v", c)
	}
}

func TestParseEnvFormatMinimal(t *testing.T) {
	c, err := parseEnvFormat("P2P_API_KEY=only-key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.APIKey != "only-key" || c.AppID != "" || c.RefreshToken != "" {
		t.Fatalf("unexpected credentials: %+v", c)
	}
}

func TestParseEnvFormatMissingKeyIsInvalid(t *testing.T) {
	_, err := parseEnvFormat("P2P_APP_ID=app-only")
	if err != ErrInvalidFormat {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
}

func TestLoadJSONFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "creds.json")
	if err := (Credentials{APIKey: "json-key", AppID: "json-app", RefreshToken: "json-token"}).SaveJSON(path); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.APIKey != "json-key" || c.AppID != "json-app" || c.RefreshToken != "json-token" {
		t.Fatalf("unexpected credentials: %+v", c)
	}
}

func TestSaveAndLoadEnvFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "creds.env")

	creds := WithRefreshToken("save-key", "save-app", "save-token")
	if err := creds.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded != creds {
		t.Fatalf("round trip mismatch: got %+v, want %+v", loaded, creds)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
