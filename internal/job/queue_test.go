package job

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCreateJob_InsertsQueuedAndPending(t *testing.T) {
	q := NewQueue()
	id := q.CreateJob([]AccountInput{{UserID: "u1"}}, "/tmp", false, time.Now())
	if id == "" {
		t.Fatal("expected non-empty job id")
	}
	s, ok := q.GetJob(id)
	if !ok {
		t.Fatal("expected job to exist")
	}
	if s.Status != StatusQueued {
		t.Fatalf("expected Queued, got %s", s.Status)
	}
	if q.PendingCount() != 1 {
		t.Fatalf("expected 1 pending job, got %d", q.PendingCount())
	}
}

func TestSetCurrentJob_RemovesFromPending(t *testing.T) {
	q := NewQueue()
	id := q.CreateJob([]AccountInput{{UserID: "u1"}}, "/tmp", false, time.Now())
	if !q.SetCurrentJob(id, time.Now()) {
		t.Fatal("expected SetCurrentJob to succeed")
	}
	if q.PendingCount() != 0 {
		t.Fatalf("expected 0 pending after start, got %d", q.PendingCount())
	}
	if q.CurrentJobID() != id {
		t.Fatalf("expected current job %s, got %s", id, q.CurrentJobID())
	}
}

func TestStartNextJob_NoopWhenAlreadyRunning(t *testing.T) {
	q := NewQueue()
	first := q.CreateJob([]AccountInput{{UserID: "u1"}}, "/tmp", false, time.Now())
	second := q.CreateJob([]AccountInput{{UserID: "u2"}}, "/tmp", false, time.Now())
	q.SetCurrentJob(first, time.Now())

	got := q.StartNextJob(time.Now())
	if got != "" {
		t.Fatalf("expected no job started while one is running, got %s", got)
	}
	q.ClearCurrentJob()
	got = q.StartNextJob(time.Now())
	if got != second {
		t.Fatalf("expected %s to start next, got %s", second, got)
	}
}

func TestAtMostOneRunningJob(t *testing.T) {
	q := NewQueue()
	a := q.CreateJob([]AccountInput{{UserID: "a"}}, "/tmp", false, time.Now())
	b := q.CreateJob([]AccountInput{{UserID: "b"}}, "/tmp", false, time.Now())
	q.SetCurrentJob(a, time.Now())
	q.SetCurrentJob(b, time.Now())

	running := 0
	for _, id := range q.AllJobIDs() {
		s, _ := q.GetJob(id)
		if s.Status == StatusRunning {
			running++
		}
	}
	if running > 1 {
		t.Fatalf("expected at most one running job, got %d", running)
	}
}

func TestCleanupOldJobs_SparesCurrentJob(t *testing.T) {
	q := NewQueue()
	old := time.Now().Add(-2 * time.Hour)
	id := q.CreateJob([]AccountInput{{UserID: "a"}}, "/tmp", false, old)
	q.SetCurrentJob(id, time.Now())

	removed := q.CleanupOldJobs(time.Hour, time.Now())
	if removed != 0 {
		t.Fatalf("expected current job to survive cleanup, removed %d", removed)
	}
}

type stubExecutor struct {
	fail map[string]bool
}

func (s *stubExecutor) Execute(ctx context.Context, userID, password, sessionFolder string, headless bool) (string, error) {
	if s.fail[userID] {
		return "", errors.New("scrape failed")
	}
	return sessionFolder + "/" + userID + ".csv", nil
}

func TestRun_ScrapeMultipleWithOneFailure(t *testing.T) {
	dir := t.TempDir()
	q := NewQueue()
	accounts := []AccountInput{{UserID: "a1"}, {UserID: "a2"}, {UserID: "a3"}}
	id := q.CreateJob(accounts, dir, true, time.Now())
	q.SetCurrentJob(id, time.Now())

	Run(context.Background(), q, id, &stubExecutor{fail: map[string]bool{"a2": true}})

	s, _ := q.GetJob(id)
	if s.Status != StatusFailed {
		t.Fatalf("expected overall status Failed, got %s", s.Status)
	}
	if s.TotalCount() != 3 {
		t.Fatalf("expected total 3, got %d", s.TotalCount())
	}
	if s.SuccessCount() != 2 || s.FailCount() != 1 {
		t.Fatalf("expected 2 success / 1 fail, got %d/%d", s.SuccessCount(), s.FailCount())
	}
	if s.LastError == "" {
		t.Fatal("expected last error to be set")
	}
	if q.HasRunningJob() {
		t.Fatal("expected current job slot to clear after completion")
	}
	a1, _ := s.AccountResultFor("a1")
	if a1.OutputPath == "" {
		t.Fatal("expected output path for successful account")
	}
}

func TestTotalCountEqualsSuccessPlusFail(t *testing.T) {
	dir := t.TempDir()
	q := NewQueue()
	accounts := []AccountInput{{UserID: "a"}, {UserID: "b"}}
	id := q.CreateJob(accounts, dir, true, time.Now())
	q.SetCurrentJob(id, time.Now())
	Run(context.Background(), q, id, &stubExecutor{})

	s, _ := q.GetJob(id)
	if s.TotalCount() != s.SuccessCount()+s.FailCount() {
		t.Fatalf("invariant violated: total=%d success=%d fail=%d", s.TotalCount(), s.SuccessCount(), s.FailCount())
	}
}
