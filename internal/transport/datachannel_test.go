package transport

import (
	"context"
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/nodeglow/rtcgateway/internal/codec"
)

// fakeDataChannel is an in-memory DataChannel used to drive the transport
// from tests without a real WebRTC peer connection.
type fakeDataChannel struct {
	mu       sync.Mutex
	sent     [][]byte
	onMsg    func(webrtc.DataChannelMessage)
	onClose  func()
	onError  func(error)
	closed   bool
}

func (f *fakeDataChannel) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]byte{}, data...)
	f.sent = append(f.sent, cp)
	return nil
}
func (f *fakeDataChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
func (f *fakeDataChannel) OnMessage(fn func(webrtc.DataChannelMessage)) { f.onMsg = fn }
func (f *fakeDataChannel) OnClose(fn func())                            { f.onClose = fn }
func (f *fakeDataChannel) OnError(fn func(error))                       { f.onError = fn }

func (f *fakeDataChannel) deliver(data []byte) {
	f.onMsg(webrtc.DataChannelMessage{Data: data})
}

func (f *fakeDataChannel) lastSent() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

func TestTransport_UnaryHandlerEchoesRequestID(t *testing.T) {
	fdc := &fakeDataChannel{}
	tr := newTransport(fdc, nil)
	tr.RegisterHandler("/scraper.ETCScraper/Health", func(ctx context.Context, req *codec.RequestEnvelope) (*codec.ResponseEnvelope, error) {
		return &codec.ResponseEnvelope{
			Headers:  map[string]string{},
			Messages: [][]byte{[]byte("ok")},
			Trailers: map[string]string{},
		}, nil
	})
	tr.Start()

	reqData, _ := codec.EncodeRequest(codec.RequestEnvelope{
		Path:    "/scraper.ETCScraper/Health",
		Headers: map[string]string{"x-request-id": "H1"},
	})
	fdc.deliver(reqData)

	resp, err := codec.DecodeResponse(fdc.lastSent())
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Headers["x-request-id"] != "H1" {
		t.Fatalf("expected echoed request id, got %q", resp.Headers["x-request-id"])
	}
	if resp.Trailers["grpc-status"] != "0" {
		t.Fatalf("expected grpc-status 0, got %s", resp.Trailers["grpc-status"])
	}
}

func TestTransport_UnimplementedMethod(t *testing.T) {
	fdc := &fakeDataChannel{}
	tr := newTransport(fdc, nil)
	tr.Start()

	reqData, _ := codec.EncodeRequest(codec.RequestEnvelope{Path: "/a.B/NoSuchMethod", Headers: map[string]string{}})
	fdc.deliver(reqData)

	resp, _ := codec.DecodeResponse(fdc.lastSent())
	if resp.Trailers["grpc-status"] != "12" {
		t.Fatalf("expected Unimplemented(12), got %s", resp.Trailers["grpc-status"])
	}
}

func TestTransport_HandlerGRPCErrorPassesThroughCode(t *testing.T) {
	fdc := &fakeDataChannel{}
	tr := newTransport(fdc, nil)
	tr.RegisterHandler("/a.B/C", func(ctx context.Context, req *codec.RequestEnvelope) (*codec.ResponseEnvelope, error) {
		return nil, &codec.GRPCError{Code: codec.StatusNotFound, Message: "missing"}
	})
	tr.Start()

	reqData, _ := codec.EncodeRequest(codec.RequestEnvelope{Path: "/a.B/C", Headers: map[string]string{}})
	fdc.deliver(reqData)

	resp, _ := codec.DecodeResponse(fdc.lastSent())
	if resp.Trailers["grpc-status"] != "5" {
		t.Fatalf("expected NotFound(5), got %s", resp.Trailers["grpc-status"])
	}
}

func TestTransport_StreamingHandlerTagsEachChunkWithRequestID(t *testing.T) {
	fdc := &fakeDataChannel{}
	tr := newTransport(fdc, nil)
	tr.RegisterStreamingHandler("/scraper.ETCScraper/StreamDownload", func(ctx context.Context, req *codec.RequestEnvelope, send StreamSender) error {
		_ = send.SendData([]byte("chunk1"))
		_ = send.SendData([]byte("chunk2"))
		return send.SendEnd(codec.StatusOK, "")
	})
	tr.Start()

	reqData, _ := codec.EncodeRequest(codec.RequestEnvelope{
		Path:    "/scraper.ETCScraper/StreamDownload",
		Headers: map[string]string{"x-request-id": "stream-1"},
	})
	fdc.deliver(reqData)

	if len(fdc.sent) != 3 {
		t.Fatalf("expected 3 stream envelopes, got %d", len(fdc.sent))
	}
	for i, raw := range fdc.sent {
		msg, err := codec.DecodeStreamMessage(raw)
		if err != nil {
			t.Fatalf("decode stream message %d: %v", i, err)
		}
		if msg.RequestID != "stream-1" {
			t.Fatalf("message %d: expected request id stream-1, got %s", i, msg.RequestID)
		}
	}
	last, _ := codec.DecodeStreamMessage(fdc.sent[2])
	if last.Flag != codec.StreamFlagEnd {
		t.Fatalf("expected final message to carry end flag")
	}
}
