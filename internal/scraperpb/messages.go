// Package scraperpb holds the wire message types for the scraper service's
// RPCs. The production system would generate these from a .proto file; here
// they are hand-written Go structs marshaled as JSON by transport.MakeHandler,
// since the bridge only cares that a Handler turns bytes into bytes.
package scraperpb

// HealthResponse answers /scraper.ETCScraper/Health.
type HealthResponse struct {
	Healthy       bool   `json:"healthy"`
	IsRunning     bool   `json:"isRunning"`
	TotalAccounts int32  `json:"totalAccounts"`
	CurrentAccount string `json:"currentAccount,omitempty"`
	LastError     string `json:"lastError,omitempty"`
}

// AccountSpec is one account to scrape.
type AccountSpec struct {
	UserID   string `json:"userId"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

// ScrapeRequest answers /scraper.ETCScraper/Scrape (single account).
type ScrapeRequest struct {
	Account      AccountSpec `json:"account"`
	DownloadPath string      `json:"downloadPath"`
	Headless     bool        `json:"headless"`
}

// ScrapeMultipleRequest answers /scraper.ETCScraper/ScrapeMultiple.
type ScrapeMultipleRequest struct {
	Accounts     []AccountSpec `json:"accounts"`
	DownloadPath string        `json:"downloadPath"`
	Headless     bool          `json:"headless"`
}

// ScrapeMultipleResponse is returned immediately; the job itself runs in the
// background.
type ScrapeMultipleResponse struct {
	JobID   string `json:"jobId"`
	Message string `json:"message"`
}

// AccountResultDTO is one account's result in GetDownloadedFilesResponse.
type AccountResultDTO struct {
	UserID       string `json:"userId"`
	Name         string `json:"name,omitempty"`
	Status       string `json:"status"`
	CSVPath      string `json:"csvPath,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// GetDownloadedFilesRequest answers /scraper.ETCScraper/GetDownloadedFiles.
type GetDownloadedFilesRequest struct {
	JobID string `json:"jobId"`
}

// GetDownloadedFilesResponse reports every account's outcome for a job.
type GetDownloadedFilesResponse struct {
	JobID          string             `json:"jobId"`
	OverallStatus  string             `json:"overallStatus"`
	Results        []AccountResultDTO `json:"results"`
	CompletedCount int32              `json:"completedCount"`
	TotalCount     int32              `json:"totalCount"`
}

// StreamDownloadRequest answers /scraper.ETCScraper/StreamDownload. An
// empty JobID means "stream the latest session folder".
type StreamDownloadRequest struct {
	JobID string `json:"jobId"`
}

// FileChunk is one chunk of one file within a StreamDownload response.
// Filename is populated only on a file's first chunk.
type FileChunk struct {
	FileIndex   int32  `json:"fileIndex"`
	Offset      int64  `json:"offset"`
	Data        []byte `json:"data"`
	IsLastChunk bool   `json:"isLastChunk"`
	Filename    string `json:"filename,omitempty"`
}
