package codec

import (
	"encoding/binary"
	"sort"
	"strconv"
	"strings"
)

// Frame flags, per the gRPC-Web wire format.
const (
	FrameData    byte = 0x00
	FrameTrailer byte = 0x01
)

// Frame is one length-prefixed gRPC-Web frame: flags(1) | length(4 BE) | data.
type Frame struct {
	Flags byte
	Data  []byte
}

// FrameDecodeResult is the outcome of splitting a byte sequence into frames.
// Remaining holds any trailing bytes that did not form a complete frame; a
// well-formed envelope always leaves it empty.
type FrameDecodeResult struct {
	Frames    []Frame
	Remaining []byte
}

// EncodeFrame serializes a single frame.
func EncodeFrame(f Frame) []byte {
	buf := make([]byte, 5+len(f.Data))
	buf[0] = f.Flags
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(f.Data)))
	copy(buf[5:], f.Data)
	return buf
}

// CreateDataFrame wraps a message as a data frame.
func CreateDataFrame(message []byte) Frame {
	return Frame{Flags: FrameData, Data: message}
}

// CreateTrailerFrame renders trailers as "key: value\r\n" lines, with
// grpc-status first and grpc-message second when present, matching the
// order browsers expect on the wire.
func CreateTrailerFrame(trailers map[string]string) Frame {
	var b strings.Builder
	writeLine := func(key string) {
		if v, ok := trailers[key]; ok {
			b.WriteString(key)
			b.WriteString(": ")
			b.WriteString(v)
			b.WriteString("\r\n")
		}
	}
	writeLine("grpc-status")
	writeLine("grpc-message")

	rest := make([]string, 0, len(trailers))
	for k := range trailers {
		if k == "grpc-status" || k == "grpc-message" {
			continue
		}
		rest = append(rest, k)
	}
	sort.Strings(rest)
	for _, k := range rest {
		writeLine(k)
	}
	return Frame{Flags: FrameTrailer, Data: []byte(b.String())}
}

// ParseTrailers parses "key: value\r\n"-delimited trailer bytes back into a
// map. Lines without a colon are ignored.
func ParseTrailers(data []byte) map[string]string {
	trailers := make(map[string]string)
	for _, line := range strings.Split(string(data), "\r\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		idx := strings.Index(line, ":")
		if idx == -1 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		trailers[key] = val
	}
	return trailers
}

// DecodeFrames splits data into a sequence of frames. A truncated trailing
// frame (not enough bytes for its declared length) is returned verbatim in
// Remaining rather than discarded, so callers can tell a malformed envelope
// from one that is merely empty.
func DecodeFrames(data []byte) FrameDecodeResult {
	var frames []Frame
	offset := 0
	for {
		if offset+5 > len(data) {
			break
		}
		flags := data[offset]
		length := binary.BigEndian.Uint32(data[offset+1 : offset+5])
		end := offset + 5 + int(length)
		if end > len(data) {
			break
		}
		frames = append(frames, Frame{Flags: flags, Data: data[offset+5 : end]})
		offset = end
	}
	return FrameDecodeResult{Frames: frames, Remaining: data[offset:]}
}

// grpcStatusTrailer is a small helper shared by the envelope encoders so the
// "grpc-status" string conversion lives in one place.
func grpcStatusTrailer(code StatusCode, message string) map[string]string {
	t := map[string]string{"grpc-status": strconv.Itoa(code)}
	if message != "" {
		t["grpc-message"] = message
	}
	return t
}
