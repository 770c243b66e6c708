package scraper

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/nodeglow/rtcgateway/internal/codec"
	"github.com/nodeglow/rtcgateway/internal/job"
	"github.com/nodeglow/rtcgateway/internal/metrics"
	"github.com/nodeglow/rtcgateway/internal/scraperpb"
	"github.com/nodeglow/rtcgateway/internal/transport"
)

// chunkSize matches the gRPC-Web frame size the browser client expects per
// chunk; larger files are split across multiple stream envelopes.
const chunkSize = 32 * 1024

// streamDownload walks every file in a job's (or the latest) session folder
// and emits one FileChunk per 32 KiB, tagging each with a monotonically
// increasing per-file offset and the file's index within the folder.
func (s *Service) streamDownload(ctx context.Context, req *codec.RequestEnvelope, send transport.StreamSender) error {
	var in scraperpb.StreamDownloadRequest
	if len(req.Message) > 0 {
		if err := json.Unmarshal(req.Message, &in); err != nil {
			return &codec.GRPCError{Code: codec.StatusInvalidArgument, Message: "malformed request: " + err.Error()}
		}
	}
	return s.StreamDownload(ctx, in, send)
}

// StreamDownload is the transport-agnostic core of the RPC: any StreamSender
// (the DataChannel streaming envelope, or a fallback gRPC ServerStream
// adapter) can drive it.
func (s *Service) StreamDownload(ctx context.Context, in scraperpb.StreamDownloadRequest, send transport.StreamSender) error {
	folder, err := s.resolveSessionFolder(in.JobID)
	if err != nil {
		return err
	}

	names, err := listFilesSorted(folder)
	if err != nil {
		return &codec.GRPCError{Code: codec.StatusInternal, Message: err.Error()}
	}

	for fileIndex, name := range names {
		if err := streamOneFile(folder, name, int32(fileIndex), send); err != nil {
			return err
		}
	}

	return send.SendEnd(codec.StatusOK, "")
}

func (s *Service) resolveSessionFolder(jobID string) (string, error) {
	if jobID != "" {
		state, ok := s.Queue.GetJob(jobID)
		if !ok {
			return "", &codec.GRPCError{Code: codec.StatusNotFound, Message: "no such job: " + jobID}
		}
		return state.SessionFolder, nil
	}
	latest, err := job.LatestSessionFolder(s.DownloadPath)
	if err != nil {
		return "", &codec.GRPCError{Code: codec.StatusInternal, Message: err.Error()}
	}
	if latest == "" {
		return "", &codec.GRPCError{Code: codec.StatusNotFound, Message: "no session folders found"}
	}
	return filepath.Join(s.DownloadPath, latest), nil
}

func listFilesSorted(folder string) ([]string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func streamOneFile(folder, name string, fileIndex int32, send transport.StreamSender) error {
	f, err := os.Open(filepath.Join(folder, name))
	if err != nil {
		return &codec.GRPCError{Code: codec.StatusInternal, Message: err.Error()}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return &codec.GRPCError{Code: codec.StatusInternal, Message: err.Error()}
	}
	size := info.Size()

	var offset int64
	buf := make([]byte, chunkSize)
	first := true
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			chunk := scraperpb.FileChunk{
				FileIndex:   fileIndex,
				Offset:      offset,
				Data:        append([]byte{}, buf[:n]...),
				IsLastChunk: offset+int64(n) >= size,
			}
			if first {
				chunk.Filename = name
				first = false
			}
			payload, marshalErr := json.Marshal(chunk)
			if marshalErr != nil {
				return &codec.GRPCError{Code: codec.StatusInternal, Message: marshalErr.Error()}
			}
			if err := send.SendData(payload); err != nil {
				return &codec.GRPCError{Code: codec.StatusInternal, Message: err.Error()}
			}
			metrics.StreamChunksSentTotal.Inc()
			offset += int64(n)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return &codec.GRPCError{Code: codec.StatusInternal, Message: readErr.Error()}
		}
	}
	return nil
}
