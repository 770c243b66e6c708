package codec

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrEmptyPath is returned by DecodeRequest when path_len is zero. Unlike
// other decode failures (mapped to Internal), an empty path is a caller
// mistake and is reported as InvalidArgument.
var ErrEmptyPath = errors.New("empty path")

// RequestEnvelope is one unary or stream-opening request sent by the
// browser: path_len(4) | path | headers_len(4) | headers_json | grpc_frames.
type RequestEnvelope struct {
	Path    string
	Headers map[string]string
	Message []byte
}

// ResponseEnvelope is a unary response: headers_len(4) | headers_json |
// data_frame* | trailer_frame.
type ResponseEnvelope struct {
	Headers  map[string]string
	Messages [][]byte
	Trailers map[string]string
}

// EncodeRequest serializes a request envelope.
func EncodeRequest(env RequestEnvelope) ([]byte, error) {
	pathBytes := []byte(env.Path)
	headersJSON, err := json.Marshal(env.Headers)
	if err != nil {
		return nil, fmt.Errorf("marshal headers: %w", err)
	}
	frame := EncodeFrame(CreateDataFrame(env.Message))

	buf := make([]byte, 0, 8+len(pathBytes)+len(headersJSON)+len(frame))
	var lenBuf [4]byte

	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(pathBytes)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, pathBytes...)

	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(headersJSON)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, headersJSON...)

	buf = append(buf, frame...)
	return buf, nil
}

// DecodeRequest parses a request envelope. A request carries exactly one
// data frame; per the spec's boundary behavior, a trailer-only body (no
// data frames) decodes to an empty message rather than an error, since a
// caller may legitimately send no payload for a parameterless RPC.
func DecodeRequest(data []byte) (*RequestEnvelope, error) {
	if len(data) < 8 {
		return nil, errors.New("request too short")
	}
	offset := 0

	pathLen := int(binary.BigEndian.Uint32(data[offset : offset+4]))
	offset += 4
	if pathLen == 0 {
		return nil, ErrEmptyPath
	}
	if offset+pathLen > len(data) {
		return nil, errors.New("truncated path")
	}
	path := string(data[offset : offset+pathLen])
	offset += pathLen

	if offset+4 > len(data) {
		return nil, errors.New("missing headers length")
	}
	headersLen := int(binary.BigEndian.Uint32(data[offset : offset+4]))
	offset += 4
	if offset+headersLen > len(data) {
		return nil, errors.New("truncated headers")
	}
	var headers map[string]string
	if err := json.Unmarshal(data[offset:offset+headersLen], &headers); err != nil {
		return nil, fmt.Errorf("headers is not a flat string map: %w", err)
	}
	offset += headersLen

	result := DecodeFrames(data[offset:])
	if len(result.Remaining) > 0 {
		return nil, errors.New("partial frame remaining in request")
	}

	var message []byte
	for _, f := range result.Frames {
		switch f.Flags {
		case FrameData:
			if message == nil {
				message = f.Data
			}
		case FrameTrailer:
			// A trailer frame carries no request payload.
		default:
			return nil, fmt.Errorf("unexpected frame flags in request: %d", f.Flags)
		}
	}
	if message == nil {
		message = []byte{}
	}

	return &RequestEnvelope{Path: path, Headers: headers, Message: message}, nil
}

// EncodeResponse serializes a unary response envelope.
func EncodeResponse(env ResponseEnvelope) ([]byte, error) {
	headersJSON, err := json.Marshal(env.Headers)
	if err != nil {
		return nil, fmt.Errorf("marshal headers: %w", err)
	}

	var lenBuf [4]byte
	buf := make([]byte, 0, 4+len(headersJSON))
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(headersJSON)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, headersJSON...)

	for _, m := range env.Messages {
		buf = append(buf, EncodeFrame(CreateDataFrame(m))...)
	}
	buf = append(buf, EncodeFrame(CreateTrailerFrame(env.Trailers))...)
	return buf, nil
}

// DecodeResponse parses a unary (or collected streaming) response envelope.
func DecodeResponse(data []byte) (*ResponseEnvelope, error) {
	if len(data) < 4 {
		return nil, errors.New("response too short")
	}
	headersLen := int(binary.BigEndian.Uint32(data[0:4]))
	offset := 4
	if offset+headersLen > len(data) {
		return nil, errors.New("truncated headers")
	}
	var headers map[string]string
	if err := json.Unmarshal(data[offset:offset+headersLen], &headers); err != nil {
		return nil, fmt.Errorf("unmarshal headers: %w", err)
	}
	offset += headersLen

	result := DecodeFrames(data[offset:])
	if len(result.Remaining) > 0 {
		return nil, errors.New("partial frame remaining in response")
	}

	messages := make([][]byte, 0, len(result.Frames))
	trailers := map[string]string{}
	for _, f := range result.Frames {
		switch f.Flags {
		case FrameData:
			messages = append(messages, f.Data)
		case FrameTrailer:
			trailers = ParseTrailers(f.Data)
		default:
			return nil, fmt.Errorf("unknown frame flags in response: %d", f.Flags)
		}
	}
	return &ResponseEnvelope{Headers: headers, Messages: messages, Trailers: trailers}, nil
}

// CreateErrorResponse builds a trailer-only error response envelope.
func CreateErrorResponse(code StatusCode, message string) ResponseEnvelope {
	return ResponseEnvelope{
		Headers:  map[string]string{},
		Messages: [][]byte{},
		Trailers: grpcStatusTrailer(code, message),
	}
}

// IsErrorResponse reports whether the envelope's grpc-status trailer is
// anything other than OK.
func IsErrorResponse(env ResponseEnvelope) bool {
	code, ok := env.Trailers["grpc-status"]
	if !ok {
		return false
	}
	n, err := strconv.Atoi(code)
	return err == nil && n != StatusOK
}

// GetError extracts a *GRPCError from an error response, or nil if the
// response is not an error.
func GetError(env ResponseEnvelope) *GRPCError {
	if !IsErrorResponse(env) {
		return nil
	}
	code, err := strconv.Atoi(env.Trailers["grpc-status"])
	if err != nil {
		code = StatusUnknown
	}
	msg := env.Trailers["grpc-message"]
	if msg == "" {
		msg = "unknown error"
	}
	return &GRPCError{Code: code, Message: msg}
}
