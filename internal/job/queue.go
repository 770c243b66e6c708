package job

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nodeglow/rtcgateway/internal/metrics"
)

// Queue is the process-global job queue: a map of all known jobs, a FIFO of
// pending (not yet started) job IDs, and at most one "current" job. All
// operations take the queue's lock for a bounded critical section; none
// blocks on I/O while holding it.
type Queue struct {
	mu            sync.RWMutex
	jobs          map[string]*State
	pending       []string
	currentJobID  string
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{jobs: make(map[string]*State)}
}

// CreateJob inserts a new Queued job and appends it to pending. Returns the
// generated job ID.
func (q *Queue) CreateJob(accounts []AccountInput, downloadPath string, headless bool, now time.Time) string {
	id := uuid.NewString()
	q.mu.Lock()
	q.jobs[id] = NewState(id, accounts, downloadPath, headless, now)
	q.pending = append(q.pending, id)
	depth := len(q.pending)
	q.mu.Unlock()
	metrics.JobQueueDepth.Set(float64(depth))
	return id
}

// GetJob returns a snapshot-safe read of a job by ID.
func (q *Queue) GetJob(id string) (*State, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	s, ok := q.jobs[id]
	return s, ok
}

// Mutate runs fn with the write lock held, giving callers bounded exclusive
// access to a job's mutable fields without exposing the lock itself.
func (q *Queue) Mutate(id string, fn func(*State)) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	s, ok := q.jobs[id]
	if !ok {
		return false
	}
	fn(s)
	return true
}

// SetCurrentJob moves a job to Running and removes it from pending. It
// returns false, changing nothing, if the job is unknown or a different job
// is already current, so at most one job is ever Running.
func (q *Queue) SetCurrentJob(id string, now time.Time) bool {
	q.mu.Lock()
	s, ok := q.jobs[id]
	if !ok || (q.currentJobID != "" && q.currentJobID != id) {
		q.mu.Unlock()
		return false
	}
	q.currentJobID = id
	s.Start(now)
	q.removePendingLocked(id)
	depth := len(q.pending)
	q.mu.Unlock()
	metrics.JobQueueDepth.Set(float64(depth))
	return true
}

// ClearCurrentJob unsets the current-job slot.
func (q *Queue) ClearCurrentJob() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.currentJobID = ""
}

// HasRunningJob reports whether a current job is set.
func (q *Queue) HasRunningJob() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.currentJobID != ""
}

// StartNextJob pops the first pending job and makes it current, unless a
// job is already running. Returns the started job's ID, or "" if none was
// started.
func (q *Queue) StartNextJob(now time.Time) string {
	q.mu.Lock()
	if q.currentJobID != "" || len(q.pending) == 0 {
		q.mu.Unlock()
		return ""
	}
	id := q.pending[0]
	q.pending = q.pending[1:]
	q.currentJobID = id
	q.jobs[id].Start(now)
	depth := len(q.pending)
	q.mu.Unlock()
	metrics.JobQueueDepth.Set(float64(depth))
	return id
}

// CurrentJobID returns the current job's ID, or "".
func (q *Queue) CurrentJobID() string {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.currentJobID
}

// AllJobIDs returns every known job ID, in no particular order.
func (q *Queue) AllJobIDs() []string {
	q.mu.RLock()
	defer q.mu.RUnlock()
	ids := make([]string, 0, len(q.jobs))
	for id := range q.jobs {
		ids = append(ids, id)
	}
	return ids
}

// PendingCount returns the number of jobs waiting to start.
func (q *Queue) PendingCount() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.pending)
}

// CleanupOldJobs drops jobs whose CreatedAt age exceeds maxAge. It does not
// touch the current job, even if old, since that would leave CurrentJobID
// dangling. A dropped job still listed in pending is also removed from
// pending so StartNextJob never pops a deleted job's ID.
func (q *Queue) CleanupOldJobs(maxAge time.Duration, now time.Time) int {
	q.mu.Lock()
	removed := 0
	for id, s := range q.jobs {
		if id == q.currentJobID {
			continue
		}
		if now.Sub(s.CreatedAt) > maxAge {
			delete(q.jobs, id)
			q.removePendingLocked(id)
			removed++
		}
	}
	depth := len(q.pending)
	q.mu.Unlock()
	if removed > 0 {
		metrics.JobQueueDepth.Set(float64(depth))
	}
	return removed
}

func (q *Queue) removePendingLocked(id string) {
	out := q.pending[:0]
	for _, p := range q.pending {
		if p != id {
			out = append(out, p)
		}
	}
	q.pending = out
}

// Snapshot is the read-only progress view returned by the Health RPC. It is
// built by copying scalars under the read lock and never holds the lock
// across I/O.
type Snapshot struct {
	IsRunning         bool
	StartedAgo        time.Duration
	TotalAccounts     int
	CompletedAccounts int
	SuccessCount      int
	FailCount         int
	CurrentAccount    string
	LastError         string
	SessionFolder     string
}

// CurrentSnapshot returns the progress snapshot for the current job, or a
// zero-value snapshot with IsRunning=false if no job is running.
func (q *Queue) CurrentSnapshot(now time.Time) Snapshot {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.currentJobID == "" {
		return Snapshot{}
	}
	s, ok := q.jobs[q.currentJobID]
	if !ok {
		return Snapshot{}
	}
	return Snapshot{
		IsRunning:         s.Status == StatusRunning,
		StartedAgo:        now.Sub(s.StartedAt),
		TotalAccounts:     s.TotalCount(),
		CompletedAccounts: s.CompletedCount(),
		SuccessCount:      s.SuccessCount(),
		FailCount:         s.FailCount(),
		CurrentAccount:    s.CurrentAccountUserID(),
		LastError:         s.LastError,
		SessionFolder:     s.SessionFolder,
	}
}
