package job

import (
	"context"
	"time"

	"github.com/nodeglow/rtcgateway/internal/logging"
)

// AccountExecutor invokes the external scraper for one account. Its
// business logic is out of scope for this gateway; production wiring
// supplies a real implementation while tests use a stub.
type AccountExecutor interface {
	Execute(ctx context.Context, userID, password, sessionFolder string, headless bool) (outputPath string, err error)
}

// RunQueue drives id to completion via Run, then keeps pulling the next
// pending job (if any) and running it in turn, so the whole queue drains
// sequentially from a single background goroutine instead of requiring a
// fresh explicit start call per job.
func RunQueue(ctx context.Context, q *Queue, id string, exec AccountExecutor) {
	for id != "" {
		Run(ctx, q, id, exec)
		id = q.StartNextJob(time.Now())
	}
}

// Run executes every account in id's AccountOrder strictly sequentially,
// updating per-account and overall status as it goes, and clears the
// current-job slot when done. It is spawned as a single background
// goroutine by the RPC that created the job.
func Run(ctx context.Context, q *Queue, id string, exec AccountExecutor) {
	state, ok := q.GetJob(id)
	if !ok {
		return
	}

	folder, err := NewSessionFolder(state.DownloadPath, time.Now())
	if err != nil {
		logging.Logger().Sugar().Errorw("create session folder", "job", id, "error", err)
		q.Mutate(id, func(s *State) {
			s.SetLastError(err.Error())
			s.Status = StatusFailed
		})
		q.ClearCurrentJob()
		return
	}
	q.Mutate(id, func(s *State) { s.SessionFolder = folder })

	for {
		q.mu.RLock()
		s := q.jobs[id]
		userID := s.CurrentAccountUserID()
		done := userID == ""
		password := ""
		if !done {
			password = s.Password(userID)
		}
		q.mu.RUnlock()
		if done {
			break
		}

		q.Mutate(id, func(s *State) {
			s.Accounts[userID].setRunning()
			s.UpdateOverallStatus()
		})

		outputPath, execErr := exec.Execute(ctx, userID, password, folder, state.Headless)

		q.Mutate(id, func(s *State) {
			if execErr != nil {
				s.Accounts[userID].setFailed(execErr.Error())
				s.SetLastError(execErr.Error())
			} else {
				s.Accounts[userID].setCompleted(outputPath)
			}
			s.AdvanceToNextAccount()
			s.UpdateOverallStatus()
		})
	}

	q.ClearCurrentJob()
}
