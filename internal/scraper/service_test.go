package scraper

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nodeglow/rtcgateway/internal/codec"
	"github.com/nodeglow/rtcgateway/internal/job"
	"github.com/nodeglow/rtcgateway/internal/scraperpb"
)

func TestHealth_EmptyQueueReportsIdle(t *testing.T) {
	q := job.NewQueue()
	s := NewService(q, t.TempDir())
	resp, err := s.health(context.Background(), struct{}{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Healthy || resp.IsRunning || resp.TotalAccounts != 0 {
		t.Fatalf("unexpected health response: %+v", resp)
	}
}

func TestScrapeMultiple_ZeroAccountsIsInvalidArgument(t *testing.T) {
	q := job.NewQueue()
	s := NewService(q, t.TempDir())
	_, err := s.scrapeMultiple(context.Background(), scraperpb.ScrapeMultipleRequest{})
	gerr, ok := err.(*codec.GRPCError)
	if !ok || gerr.Code != codec.StatusInvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
	if len(q.AllJobIDs()) != 0 {
		t.Fatal("expected queue untouched on validation failure")
	}
}

func TestScrapeMultiple_CreatesJobAndRunsInBackground(t *testing.T) {
	dir := t.TempDir()
	q := job.NewQueue()
	s := NewService(q, dir)
	s.Executor = StubExecutor{Delay: time.Millisecond}

	resp, err := s.scrapeMultiple(context.Background(), scraperpb.ScrapeMultipleRequest{
		Accounts:     []scraperpb.AccountSpec{{UserID: "u1"}, {UserID: "u2"}},
		DownloadPath: dir,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.JobID == "" {
		t.Fatal("expected job id")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		state, _ := q.GetJob(resp.JobID)
		if state.IsComplete() {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	files, err := s.getDownloadedFiles(context.Background(), scraperpb.GetDownloadedFilesRequest{JobID: resp.JobID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if files.TotalCount != 2 || files.CompletedCount != 2 {
		t.Fatalf("unexpected file summary: %+v", files)
	}
}

func TestStreamDownload_MultiFileChunking(t *testing.T) {
	dir := t.TempDir()
	sessionDir := filepath.Join(dir, "20240102_030405")
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		t.Fatal(err)
	}
	big := make([]byte, 40*1024)
	if err := os.WriteFile(filepath.Join(sessionDir, "a.csv"), big, 0o644); err != nil {
		t.Fatal(err)
	}
	small := make([]byte, 10*1024)
	if err := os.WriteFile(filepath.Join(sessionDir, "b.csv"), small, 0o644); err != nil {
		t.Fatal(err)
	}

	q := job.NewQueue()
	s := NewService(q, dir)

	var sent []scraperpb.FileChunk
	var ended bool
	var endCode codec.StatusCode
	fakeSend := fakeSender{
		onData: func(data []byte) error {
			var c scraperpb.FileChunk
			if err := json.Unmarshal(data, &c); err != nil {
				t.Fatalf("unmarshal chunk: %v", err)
			}
			sent = append(sent, c)
			return nil
		},
		onEnd: func(code codec.StatusCode, msg string) error {
			ended = true
			endCode = code
			return nil
		},
	}

	req := &codec.RequestEnvelope{Headers: map[string]string{}, Message: nil}
	if err := s.streamDownload(context.Background(), req, fakeSend); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !ended || endCode != codec.StatusOK {
		t.Fatalf("expected clean end, ended=%v code=%d", ended, endCode)
	}
	// 40KiB file -> two chunks (32KiB + 8KiB), 10KiB file -> one chunk.
	if len(sent) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(sent))
	}
	if sent[0].FileIndex != 0 || sent[0].IsLastChunk || sent[0].Filename != "a.csv" {
		t.Fatalf("unexpected first chunk: %+v", sent[0])
	}
	if sent[1].FileIndex != 0 || !sent[1].IsLastChunk || sent[1].Offset != 32*1024 {
		t.Fatalf("unexpected second chunk: %+v", sent[1])
	}
	if sent[2].FileIndex != 1 || !sent[2].IsLastChunk || sent[2].Filename != "b.csv" {
		t.Fatalf("unexpected third chunk: %+v", sent[2])
	}
}

type fakeSender struct {
	onData func([]byte) error
	onEnd  func(codec.StatusCode, string) error
}

func (f fakeSender) SendData(message []byte) error                      { return f.onData(message) }
func (f fakeSender) SendEnd(code codec.StatusCode, message string) error { return f.onEnd(code, message) }
