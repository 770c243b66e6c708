package scraper

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nodeglow/rtcgateway/internal/codec"
	"github.com/nodeglow/rtcgateway/internal/job"
	"github.com/nodeglow/rtcgateway/internal/scraperpb"
	"github.com/nodeglow/rtcgateway/internal/transport"
)

const (
	PathHealth             = "/scraper.ETCScraper/Health"
	PathScrape             = "/scraper.ETCScraper/Scrape"
	PathScrapeMultiple     = "/scraper.ETCScraper/ScrapeMultiple"
	PathGetDownloadedFiles = "/scraper.ETCScraper/GetDownloadedFiles"
	PathStreamDownload     = "/scraper.ETCScraper/StreamDownload"
)

// Service implements the ETCScraper RPC surface over a shared job queue.
type Service struct {
	Queue        *job.Queue
	Executor     job.AccountExecutor
	DownloadPath string // fallback root used by StreamDownload when no job ID is given
}

// NewService builds a Service with the default (stub) account executor.
func NewService(q *job.Queue, downloadPath string) *Service {
	return &Service{Queue: q, Executor: StubExecutor{}, DownloadPath: downloadPath}
}

// Register installs every ETCScraper handler on a transport.
func (s *Service) Register(t *transport.Transport) {
	t.RegisterHandler(PathHealth, transport.MakeHandler(decodeEmpty, encodeJSON[scraperpb.HealthResponse], s.health))
	t.RegisterHandler(PathScrape, transport.MakeHandler(decodeJSON[scraperpb.ScrapeRequest], encodeJSON[scraperpb.ScrapeMultipleResponse], s.scrape))
	t.RegisterHandler(PathScrapeMultiple, transport.MakeHandler(decodeJSON[scraperpb.ScrapeMultipleRequest], encodeJSON[scraperpb.ScrapeMultipleResponse], s.scrapeMultiple))
	t.RegisterHandler(PathGetDownloadedFiles, transport.MakeHandler(decodeJSON[scraperpb.GetDownloadedFilesRequest], encodeJSON[scraperpb.GetDownloadedFilesResponse], s.getDownloadedFiles))
	t.RegisterStreamingHandler(PathStreamDownload, s.streamDownload)
}

func decodeEmpty(data []byte) (struct{}, error) { return struct{}{}, nil }

func decodeJSON[T any](data []byte) (T, error) {
	var v T
	if len(data) == 0 {
		return v, nil
	}
	err := json.Unmarshal(data, &v)
	return v, err
}

func encodeJSON[T any](v T) ([]byte, error) { return json.Marshal(v) }

// Health, Scrape, ScrapeMultiple, and GetDownloadedFiles are the exported
// forms of the handlers below, called directly by the fallback gRPC server
// (internal/grpcserver), which has no use for the DataChannel envelope.
func (s *Service) Health(ctx context.Context) (scraperpb.HealthResponse, error) {
	return s.health(ctx, struct{}{})
}

func (s *Service) Scrape(ctx context.Context, req scraperpb.ScrapeRequest) (scraperpb.ScrapeMultipleResponse, error) {
	return s.scrape(ctx, req)
}

func (s *Service) ScrapeMultiple(ctx context.Context, req scraperpb.ScrapeMultipleRequest) (scraperpb.ScrapeMultipleResponse, error) {
	return s.scrapeMultiple(ctx, req)
}

func (s *Service) GetDownloadedFiles(ctx context.Context, req scraperpb.GetDownloadedFilesRequest) (scraperpb.GetDownloadedFilesResponse, error) {
	return s.getDownloadedFiles(ctx, req)
}

func (s *Service) health(ctx context.Context, _ struct{}) (scraperpb.HealthResponse, error) {
	snap := s.Queue.CurrentSnapshot(time.Now())
	return scraperpb.HealthResponse{
		Healthy:        true,
		IsRunning:      snap.IsRunning,
		TotalAccounts:  int32(snap.TotalAccounts),
		CurrentAccount: snap.CurrentAccount,
		LastError:      snap.LastError,
	}, nil
}

func (s *Service) scrape(ctx context.Context, req scraperpb.ScrapeRequest) (scraperpb.ScrapeMultipleResponse, error) {
	return s.scrapeMultiple(ctx, scraperpb.ScrapeMultipleRequest{
		Accounts:     []scraperpb.AccountSpec{req.Account},
		DownloadPath: req.DownloadPath,
		Headless:     req.Headless,
	})
}

func (s *Service) scrapeMultiple(ctx context.Context, req scraperpb.ScrapeMultipleRequest) (scraperpb.ScrapeMultipleResponse, error) {
	if len(req.Accounts) == 0 {
		return scraperpb.ScrapeMultipleResponse{}, &codec.GRPCError{Code: codec.StatusInvalidArgument, Message: "at least one account is required"}
	}

	accounts := make([]job.AccountInput, 0, len(req.Accounts))
	for _, a := range req.Accounts {
		accounts = append(accounts, job.AccountInput{UserID: a.UserID, Password: a.Password, Name: a.Name})
	}

	id := s.Queue.CreateJob(accounts, req.DownloadPath, req.Headless, time.Now())
	// Only actually starts execution if no job is currently running; per
	// §4.G a job already in flight keeps this one queued in pending until
	// the running job's completion pops the next one.
	if started := s.Queue.StartNextJob(time.Now()); started != "" {
		go job.RunQueue(context.Background(), s.Queue, started, s.Executor)
	}

	return scraperpb.ScrapeMultipleResponse{JobID: id, Message: "job queued"}, nil
}

func (s *Service) getDownloadedFiles(ctx context.Context, req scraperpb.GetDownloadedFilesRequest) (scraperpb.GetDownloadedFilesResponse, error) {
	state, ok := s.Queue.GetJob(req.JobID)
	if !ok {
		return scraperpb.GetDownloadedFilesResponse{}, &codec.GRPCError{Code: codec.StatusNotFound, Message: "no such job: " + req.JobID}
	}

	results := make([]scraperpb.AccountResultDTO, 0, len(state.AccountOrder))
	for _, userID := range state.AccountOrder {
		a := state.Accounts[userID]
		results = append(results, scraperpb.AccountResultDTO{
			UserID:       a.UserID,
			Name:         a.Name,
			Status:       string(a.Status),
			CSVPath:      a.OutputPath,
			ErrorMessage: a.ErrorMessage,
		})
	}

	return scraperpb.GetDownloadedFilesResponse{
		JobID:          state.JobID,
		OverallStatus:  string(state.Status),
		Results:        results,
		CompletedCount: int32(state.CompletedCount()),
		TotalCount:     int32(state.TotalCount()),
	}, nil
}
