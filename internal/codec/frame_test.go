package codec_test

import (
	"testing"

	"github.com/nodeglow/rtcgateway/internal/codec"
)

func TestParseGrpcFrames_ExcludesTrailer(t *testing.T) {
	msgs := [][]byte{[]byte("one"), []byte("two")}
	var encoded []byte
	for _, m := range msgs {
		encoded = append(encoded, codec.EncodeFrame(codec.CreateDataFrame(m))...)
	}
	encoded = append(encoded, codec.EncodeFrame(codec.CreateTrailerFrame(map[string]string{"grpc-status": "0"}))...)

	result := codec.DecodeFrames(encoded)
	if len(result.Remaining) != 0 {
		t.Fatalf("unexpected remaining bytes: %d", len(result.Remaining))
	}
	var data [][]byte
	for _, f := range result.Frames {
		if f.Flags == codec.FrameData {
			data = append(data, f.Data)
		}
	}
	if len(data) != 2 || string(data[0]) != "one" || string(data[1]) != "two" {
		t.Fatalf("unexpected data frames: %v", data)
	}
}

func TestDecodeFrames_TruncatedFrameIsRemaining(t *testing.T) {
	full := codec.EncodeFrame(codec.CreateDataFrame([]byte("hello")))
	truncated := full[:len(full)-2]
	result := codec.DecodeFrames(truncated)
	if len(result.Frames) != 0 {
		t.Fatalf("expected no complete frames, got %d", len(result.Frames))
	}
	if len(result.Remaining) != len(truncated) {
		t.Fatalf("expected all bytes to remain, got %d of %d", len(result.Remaining), len(truncated))
	}
}

func TestTrailerRoundTrip(t *testing.T) {
	want := map[string]string{"grpc-status": "5", "grpc-message": "not found"}
	frame := codec.CreateTrailerFrame(want)
	if frame.Flags != codec.FrameTrailer {
		t.Fatalf("expected trailer flag")
	}
	got := codec.ParseTrailers(frame.Data)
	if got["grpc-status"] != "5" || got["grpc-message"] != "not found" {
		t.Fatalf("trailer round trip mismatch: %+v", got)
	}
}

func TestStreamMessageRoundTrip(t *testing.T) {
	for _, flag := range []byte{codec.StreamFlagData, codec.StreamFlagEnd} {
		msg := codec.StreamMessage{RequestID: "stream-1735312345678-1", Flag: flag, Data: []byte("payload")}
		encoded := codec.EncodeStreamMessage(msg)
		got, err := codec.DecodeStreamMessage(encoded)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.RequestID != msg.RequestID || got.Flag != msg.Flag || string(got.Data) != string(msg.Data) {
			t.Fatalf("round trip mismatch: %+v", got)
		}
	}
}
