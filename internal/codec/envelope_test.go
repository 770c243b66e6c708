package codec_test

import (
	"fmt"
	"testing"

	"github.com/nodeglow/rtcgateway/internal/codec"
)

// ExampleEncodeRequest shows the round trip a browser client performs before
// sending bytes over the data channel.
func ExampleEncodeRequest() {
	data, _ := codec.EncodeRequest(codec.RequestEnvelope{
		Path:    "/scraper.ETCScraper/Health",
		Headers: map[string]string{"x-request-id": "H1"},
		Message: nil,
	})
	req, _ := codec.DecodeRequest(data)
	fmt.Println(req.Path, req.Headers["x-request-id"], len(req.Message))
	// Output: /scraper.ETCScraper/Health H1 0
}

func TestDecodeRequest_EmptyPath(t *testing.T) {
	data, _ := codec.EncodeRequest(codec.RequestEnvelope{Path: "", Headers: map[string]string{}, Message: []byte("x")})
	_, err := codec.DecodeRequest(data)
	if err != codec.ErrEmptyPath {
		t.Fatalf("expected ErrEmptyPath, got %v", err)
	}
}

func TestDecodeRequest_TrailerOnlyBodyYieldsEmptyMessage(t *testing.T) {
	// A request whose body holds only a trailer frame (no data frames at
	// all) must decode to an empty message rather than erroring. EncodeRequest
	// always emits a data frame, so the envelope is built by hand.
	path := []byte("/a.B/C")
	headers := []byte(`{}`)
	var data []byte
	putU32 := func(n int) {
		data = append(data, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	}
	putU32(len(path))
	data = append(data, path...)
	putU32(len(headers))
	data = append(data, headers...)
	data = append(data, codec.EncodeFrame(codec.CreateTrailerFrame(map[string]string{"grpc-status": "0"}))...)

	req, err := codec.DecodeRequest(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(req.Message) != 0 {
		t.Fatalf("expected empty message, got %d bytes", len(req.Message))
	}
}

func TestDecodeRequest_HeadersMustBeFlatStringMap(t *testing.T) {
	data, _ := codec.EncodeRequest(codec.RequestEnvelope{Path: "/a.B/C", Headers: map[string]string{}, Message: []byte("m")})
	// Corrupt the headers JSON to a nested object; headers_len stays correct
	// because we only flip bytes within the existing JSON body "{}" -> won't
	// actually nest, so instead build the envelope by hand.
	bad := append([]byte{}, data...)
	_ = bad
	// Construct directly: path_len(4)=6 "/a.B/C" headers_len(4)=13 {"h":{"x":1}}
	path := []byte("/a.B/C")
	headers := []byte(`{"h":{"x":1}}`)
	buf := make([]byte, 0)
	putU32 := func(n int) {
		buf = append(buf, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	}
	putU32(len(path))
	buf = append(buf, path...)
	putU32(len(headers))
	buf = append(buf, headers...)
	buf = append(buf, codec.EncodeFrame(codec.CreateDataFrame([]byte("m")))...)

	_, err := codec.DecodeRequest(buf)
	if err == nil {
		t.Fatal("expected error for non-flat headers map")
	}
}

func TestRequestRoundTrip(t *testing.T) {
	want := codec.RequestEnvelope{
		Path:    "/scraper.ETCScraper/ScrapeMultiple",
		Headers: map[string]string{"x-request-id": "abc", "authorization": "Bearer t"},
		Message: []byte("payload"),
	}
	data, err := codec.EncodeRequest(want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := codec.DecodeRequest(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Path != want.Path || string(got.Message) != string(want.Message) {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	for k, v := range want.Headers {
		if got.Headers[k] != v {
			t.Fatalf("header %s mismatch: got %q want %q", k, got.Headers[k], v)
		}
	}
}

func TestResponseRoundTrip_PreservesStatus(t *testing.T) {
	for _, code := range []codec.StatusCode{codec.StatusOK, codec.StatusNotFound, codec.StatusInternal} {
		env := codec.ResponseEnvelope{
			Headers:  map[string]string{"x-request-id": "r1"},
			Messages: [][]byte{[]byte("hello")},
			Trailers: map[string]string{"grpc-status": fmt.Sprint(code)},
		}
		data, err := codec.EncodeResponse(env)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		got, err := codec.DecodeResponse(data)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Trailers["grpc-status"] != fmt.Sprint(code) {
			t.Fatalf("status mismatch: got %s want %d", got.Trailers["grpc-status"], code)
		}
		if len(got.Messages) != 1 || string(got.Messages[0]) != "hello" {
			t.Fatalf("message mismatch: %+v", got.Messages)
		}
	}
}

func TestCreateErrorResponse_IsError(t *testing.T) {
	env := codec.CreateErrorResponse(codec.StatusNotFound, "no such job")
	if !codec.IsErrorResponse(env) {
		t.Fatal("expected error response")
	}
	gerr := codec.GetError(env)
	if gerr == nil || gerr.Code != codec.StatusNotFound || gerr.Message != "no such job" {
		t.Fatalf("unexpected GRPCError: %+v", gerr)
	}
}

func TestDataFrameWithOnlyTrailerFlagYieldsNoMessages(t *testing.T) {
	env := codec.ResponseEnvelope{Headers: map[string]string{}, Messages: nil, Trailers: map[string]string{"grpc-status": "0"}}
	data, _ := codec.EncodeResponse(env)
	got, err := codec.DecodeResponse(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Messages) != 0 {
		t.Fatalf("expected no data frames, got %d", len(got.Messages))
	}
}
