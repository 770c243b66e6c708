package codec

import (
	"encoding/binary"
	"errors"
)

// Stream message flags for server-streaming RPCs.
const (
	StreamFlagData byte = 0x00
	StreamFlagEnd  byte = 0x01
)

// StreamMessage is one independently-framed DataChannel message belonging to
// a streaming RPC: request_id_len(4) | request_id | flag(1) | data.
type StreamMessage struct {
	RequestID string
	Flag      byte
	Data      []byte
}

// EncodeStreamMessage serializes a stream message.
func EncodeStreamMessage(msg StreamMessage) []byte {
	idBytes := []byte(msg.RequestID)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(idBytes)))

	buf := make([]byte, 0, 5+len(idBytes)+len(msg.Data))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, idBytes...)
	buf = append(buf, msg.Flag)
	buf = append(buf, msg.Data...)
	return buf
}

// DecodeStreamMessage parses a stream message.
func DecodeStreamMessage(data []byte) (*StreamMessage, error) {
	if len(data) < 5 {
		return nil, errors.New("stream message too short")
	}
	idLen := int(binary.BigEndian.Uint32(data[0:4]))
	offset := 4
	if offset+idLen+1 > len(data) {
		return nil, errors.New("truncated stream message")
	}
	requestID := string(data[offset : offset+idLen])
	offset += idLen
	flag := data[offset]
	offset++
	return &StreamMessage{RequestID: requestID, Flag: flag, Data: data[offset:]}, nil
}

// NewDataStreamEnvelope wraps a single response message as a data-flag
// stream message carrying one gRPC-Web data frame.
func NewDataStreamEnvelope(requestID string, message []byte) []byte {
	return EncodeStreamMessage(StreamMessage{
		RequestID: requestID,
		Flag:      StreamFlagData,
		Data:      EncodeFrame(CreateDataFrame(message)),
	})
}

// NewEndStreamEnvelope wraps a trailer as an end-flag stream message.
func NewEndStreamEnvelope(requestID string, code StatusCode, message string) []byte {
	return EncodeStreamMessage(StreamMessage{
		RequestID: requestID,
		Flag:      StreamFlagEnd,
		Data:      EncodeFrame(CreateTrailerFrame(grpcStatusTrailer(code, message))),
	})
}
