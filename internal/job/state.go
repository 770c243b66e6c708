// Package job implements the background job queue: a process-global,
// single-in-flight sequential executor over a list of accounts, with a
// progress snapshot the Health RPC reads under a read lock.
package job

import "time"

// Status is the account or job lifecycle state.
type Status string

const (
	StatusQueued    Status = "Queued"
	StatusRunning   Status = "Running"
	StatusCompleted Status = "Completed"
	StatusFailed    Status = "Failed"
)

// AccountResult tracks one account's progress within a job.
type AccountResult struct {
	UserID       string
	Name         string
	Status       Status
	OutputPath   string
	ErrorMessage string
}

// NewAccountResult starts an account in Queued status.
func NewAccountResult(userID, name string) *AccountResult {
	return &AccountResult{UserID: userID, Name: name, Status: StatusQueued}
}

func (a *AccountResult) setRunning() { a.Status = StatusRunning }

func (a *AccountResult) setCompleted(outputPath string) {
	a.Status = StatusCompleted
	a.OutputPath = outputPath
}

func (a *AccountResult) setFailed(errMsg string) {
	a.Status = StatusFailed
	a.ErrorMessage = errMsg
}

// State is one job: an ordered list of accounts executed strictly
// sequentially, plus the fields needed to compute a progress snapshot.
type State struct {
	JobID              string
	Status             Status
	Accounts           map[string]*AccountResult
	AccountOrder       []string
	passwords          map[string]string
	CreatedAt          time.Time
	StartedAt          time.Time
	CurrentAccountIdx  int
	DownloadPath       string
	SessionFolder      string
	Headless           bool
	LastError          string
}

// AccountInput is one account to scrape: user ID, password, display name.
type AccountInput struct {
	UserID   string
	Password string
	Name     string
}

// NewState builds a Queued job from the given accounts.
func NewState(jobID string, accounts []AccountInput, downloadPath string, headless bool, now time.Time) *State {
	s := &State{
		JobID:        jobID,
		Status:       StatusQueued,
		Accounts:     make(map[string]*AccountResult, len(accounts)),
		AccountOrder: make([]string, 0, len(accounts)),
		passwords:    make(map[string]string, len(accounts)),
		CreatedAt:    now,
		DownloadPath: downloadPath,
		Headless:     headless,
	}
	for _, a := range accounts {
		s.Accounts[a.UserID] = NewAccountResult(a.UserID, a.Name)
		s.AccountOrder = append(s.AccountOrder, a.UserID)
		s.passwords[a.UserID] = a.Password
	}
	return s
}

// Start marks the job Running and records the start time.
func (s *State) Start(now time.Time) {
	s.Status = StatusRunning
	s.StartedAt = now
}

// CurrentAccountUserID returns the user ID currently being processed, or
// empty if the job has advanced past all accounts.
func (s *State) CurrentAccountUserID() string {
	if s.CurrentAccountIdx >= len(s.AccountOrder) {
		return ""
	}
	return s.AccountOrder[s.CurrentAccountIdx]
}

// Password returns the write-once password recorded for a user ID.
func (s *State) Password(userID string) string { return s.passwords[userID] }

// AdvanceToNextAccount moves the cursor forward one position.
func (s *State) AdvanceToNextAccount() { s.CurrentAccountIdx++ }

// SetLastError records the job-level last error (distinct from a
// per-account error message).
func (s *State) SetLastError(msg string) { s.LastError = msg }

func (s *State) countByStatus(target Status) int {
	n := 0
	for _, a := range s.Accounts {
		if a.Status == target {
			n++
		}
	}
	return n
}

// SuccessCount is the number of accounts that completed successfully.
func (s *State) SuccessCount() int { return s.countByStatus(StatusCompleted) }

// FailCount is the number of accounts that failed.
func (s *State) FailCount() int { return s.countByStatus(StatusFailed) }

// CompletedCount is SuccessCount + FailCount.
func (s *State) CompletedCount() int { return s.SuccessCount() + s.FailCount() }

// TotalCount is the number of accounts in the job.
func (s *State) TotalCount() int { return len(s.Accounts) }

// IsComplete reports whether every account has reached a terminal state.
func (s *State) IsComplete() bool { return s.CompletedCount() == s.TotalCount() }

// UpdateOverallStatus recomputes Status from the account results, per the
// invariant in the data model: Failed if complete with any failure,
// Completed if complete, Running if any account is running, else unchanged.
func (s *State) UpdateOverallStatus() {
	if s.IsComplete() {
		if s.FailCount() > 0 {
			s.Status = StatusFailed
		} else {
			s.Status = StatusCompleted
		}
		return
	}
	if s.countByStatus(StatusRunning) > 0 {
		s.Status = StatusRunning
	}
}

// AccountResultFor looks up one account's result by user ID.
func (s *State) AccountResultFor(userID string) (*AccountResult, bool) {
	a, ok := s.Accounts[userID]
	return a, ok
}
