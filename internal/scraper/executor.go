// Package scraper wires the concrete (but business-logic-opaque) ETCScraper
// RPCs into the service bridge: Health, Scrape, ScrapeMultiple,
// GetDownloadedFiles, StreamDownload. The account-scraping business logic
// itself is out of scope (spec.md §1); AccountExecutor is the seam where a
// real implementation plugs in.
package scraper

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nodeglow/rtcgateway/internal/job"
)

// StubExecutor simulates a successful scrape by writing a small placeholder
// CSV file after a short delay. It stands in for the real browser-automation
// scraper, which this gateway never implements.
type StubExecutor struct {
	Delay time.Duration
}

func (s StubExecutor) Execute(ctx context.Context, userID, password, sessionFolder string, headless bool) (string, error) {
	delay := s.Delay
	if delay == 0 {
		delay = 50 * time.Millisecond
	}
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	path := filepath.Join(sessionFolder, fmt.Sprintf("%s.csv", userID))
	if err := os.WriteFile(path, []byte("user_id,status\n"+userID+",ok\n"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

var _ job.AccountExecutor = StubExecutor{}
