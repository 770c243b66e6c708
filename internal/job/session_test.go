package job

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLatestSessionFolder_PicksMostRecentByName(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"20240101_010101", "20240102_020202", "not_a_session", "20231231_235959"} {
		if err := os.Mkdir(filepath.Join(dir, name), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", name, err)
		}
	}
	latest, err := LatestSessionFolder(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if latest != "20240102_020202" {
		t.Fatalf("expected 20240102_020202, got %s", latest)
	}
}

func TestLatestSessionFolder_NoneMatchReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	os.Mkdir(filepath.Join(dir, "random"), 0o755)
	latest, err := LatestSessionFolder(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if latest != "" {
		t.Fatalf("expected empty result, got %q", latest)
	}
}

func TestNewSessionFolder_NameFormat(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 3, 5, 9, 8, 7, 0, time.UTC)
	path, err := NewSessionFolder(dir, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filepath.Base(path) != "20240305_090807" {
		t.Fatalf("unexpected folder name: %s", filepath.Base(path))
	}
}
