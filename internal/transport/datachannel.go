// Package transport drives the DataChannel side of the gateway: it decodes
// incoming envelopes, dispatches to a registered handler by method path, and
// sends the encoded response or stream back over the channel.
package transport

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"go.opentelemetry.io/otel"

	"github.com/nodeglow/rtcgateway/internal/codec"
	"github.com/nodeglow/rtcgateway/internal/logging"
	"github.com/nodeglow/rtcgateway/internal/metrics"
	tracehelper "github.com/nodeglow/rtcgateway/pkg/otel"
)

var tracer = otel.Tracer("github.com/nodeglow/rtcgateway/internal/transport")

// DataChannel abstracts *webrtc.DataChannel so tests can substitute a fake.
type DataChannel interface {
	Send(data []byte) error
	Close() error
	OnMessage(f func(msg webrtc.DataChannelMessage))
	OnClose(f func())
	OnError(f func(err error))
}

type pionDataChannel struct{ dc *webrtc.DataChannel }

func (p *pionDataChannel) Send(data []byte) error                    { return p.dc.Send(data) }
func (p *pionDataChannel) Close() error                               { return p.dc.Close() }
func (p *pionDataChannel) OnMessage(f func(webrtc.DataChannelMessage)) { p.dc.OnMessage(f) }
func (p *pionDataChannel) OnClose(f func())                           { p.dc.OnClose(f) }
func (p *pionDataChannel) OnError(f func(error))                      { p.dc.OnError(f) }

// Handler answers one unary request.
type Handler func(ctx context.Context, req *codec.RequestEnvelope) (*codec.ResponseEnvelope, error)

// StreamSender lets a StreamingHandler push chunks back to the browser as
// they become available, each tagged with the originating request ID.
type StreamSender interface {
	SendData(message []byte) error
	SendEnd(code codec.StatusCode, message string) error
}

// StreamingHandler answers a server-streaming request. On success it must
// call SendEnd itself; the transport does not send an OK end envelope. When
// the handler returns an error, the transport sends the end envelope with
// that error's status, so the handler must not also call SendEnd then.
type StreamingHandler func(ctx context.Context, req *codec.RequestEnvelope, send StreamSender) error

// Options configures a Transport. Timeout bounds unary handler calls.
type Options struct {
	Timeout time.Duration
}

// DefaultOptions returns the transport's default handler timeout.
func DefaultOptions() *Options { return &Options{Timeout: 30 * time.Second} }

// bridgeMu serializes every handler invocation across every Transport in
// the process, mirroring the wrapped gRPC service's own poll_ready+call
// contract: the service is only ever driven by one caller at a time.
var bridgeMu sync.Mutex

// Transport dispatches DataChannel messages to registered handlers. One
// Transport exists per peer's single data channel.
type Transport struct {
	dc               DataChannel
	mu               sync.RWMutex
	handlers         map[string]Handler
	streamingHandlers map[string]StreamingHandler
	closed           bool
	options          *Options
	onClose          func()
}

// NewTransport wraps a *webrtc.DataChannel.
func NewTransport(dc *webrtc.DataChannel, opts *Options) *Transport {
	return newTransport(&pionDataChannel{dc: dc}, opts)
}

func newTransport(dc DataChannel, opts *Options) *Transport {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Transport{
		dc:                dc,
		handlers:          make(map[string]Handler),
		streamingHandlers: make(map[string]StreamingHandler),
		options:           opts,
	}
}

// RegisterHandler registers a unary handler for a method path, e.g.
// "/scraper.ETCScraper/Health".
func (t *Transport) RegisterHandler(path string, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[path] = h
}

// RegisterStreamingHandler registers a server-streaming handler.
func (t *Transport) RegisterStreamingHandler(path string, h StreamingHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.streamingHandlers[path] = h
}

// OnClose sets a callback invoked once when the underlying data channel
// closes.
func (t *Transport) OnClose(cb func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onClose = cb
}

// Start wires the data channel's callbacks. Call once, after handlers are
// registered.
func (t *Transport) Start() {
	t.dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		t.handleMessage(msg.Data)
	})
	t.dc.OnClose(func() {
		t.mu.Lock()
		t.closed = true
		cb := t.onClose
		t.mu.Unlock()
		if cb != nil {
			cb()
		}
	})
	t.dc.OnError(func(err error) {
		logging.Logger().Sugar().Warnw("data channel error", "error", err)
	})
}

func (t *Transport) handleMessage(data []byte) {
	req, err := codec.DecodeRequest(data)
	if err != nil {
		code := codec.StatusInternal
		if err == codec.ErrEmptyPath {
			code = codec.StatusInvalidArgument
		}
		resp := codec.CreateErrorResponse(code, fmt.Sprintf("decode request: %v", err))
		t.sendUnary(&resp)
		return
	}

	t.mu.RLock()
	streamHandler, isStreaming := t.streamingHandlers[req.Path]
	handler, isUnary := t.handlers[req.Path]
	t.mu.RUnlock()

	requestID := req.Headers["x-request-id"]

	switch {
	case isStreaming:
		t.runStreaming(req, requestID, streamHandler)
	case isUnary:
		t.runUnary(req, requestID, handler)
	default:
		resp := codec.CreateErrorResponse(codec.StatusUnimplemented, fmt.Sprintf("method %s is not implemented", req.Path))
		if requestID != "" {
			resp.Headers["x-request-id"] = requestID
		}
		t.sendUnary(&resp)
	}
}

func (t *Transport) runUnary(req *codec.RequestEnvelope, requestID string, handler Handler) {
	ctx := context.Background()
	var cancel context.CancelFunc
	if t.options.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, t.options.Timeout)
		defer cancel()
	}
	ctx, span := tracehelper.StartRPCSpan(ctx, tracer, req.Path)

	bridgeMu.Lock()
	resp, err := handler(ctx, req)
	bridgeMu.Unlock()
	if err != nil {
		errResp := toErrorResponse(err)
		resp = &errResp
	}
	if resp.Headers == nil {
		resp.Headers = map[string]string{}
	}
	if requestID != "" {
		resp.Headers["x-request-id"] = requestID
	}
	if resp.Trailers == nil {
		resp.Trailers = map[string]string{}
	}
	if _, ok := resp.Trailers["grpc-status"]; !ok {
		resp.Trailers["grpc-status"] = strconv.Itoa(codec.StatusOK)
	}
	statusCode, _ := strconv.Atoi(resp.Trailers["grpc-status"])
	tracehelper.EndRPCSpan(span, statusCode, err)
	metrics.RPCsTotal.WithLabelValues(req.Path, resp.Trailers["grpc-status"]).Inc()
	t.sendUnary(resp)
}

func (t *Transport) runStreaming(req *codec.RequestEnvelope, requestID string, handler StreamingHandler) {
	sender := &streamSender{t: t, requestID: requestID}
	ctx := context.Background()
	ctx, span := tracehelper.StartRPCSpan(ctx, tracer, req.Path)

	bridgeMu.Lock()
	err := handler(ctx, req, sender)
	bridgeMu.Unlock()

	statusCode := codec.StatusOK
	if err != nil {
		gerr := toGRPCError(err)
		statusCode = gerr.Code
		_ = sender.SendEnd(gerr.Code, gerr.Message)
	}
	tracehelper.EndRPCSpan(span, statusCode, err)
	metrics.RPCsTotal.WithLabelValues(req.Path, strconv.Itoa(statusCode)).Inc()
}

func toErrorResponse(err error) codec.ResponseEnvelope {
	gerr := toGRPCError(err)
	return codec.CreateErrorResponse(gerr.Code, gerr.Message)
}

func toGRPCError(err error) *codec.GRPCError {
	if gerr, ok := err.(*codec.GRPCError); ok {
		return gerr
	}
	return &codec.GRPCError{Code: codec.StatusInternal, Message: err.Error()}
}

func (t *Transport) sendUnary(resp *codec.ResponseEnvelope) {
	data, err := codec.EncodeResponse(*resp)
	if err != nil {
		logging.Logger().Sugar().Errorw("encode response", "error", err)
		return
	}
	if err := t.send(data); err != nil {
		logging.Logger().Sugar().Warnw("send response", "error", err)
	}
}

func (t *Transport) send(data []byte) error {
	t.mu.RLock()
	closed := t.closed
	t.mu.RUnlock()
	if closed {
		return fmt.Errorf("transport is closed")
	}
	return t.dc.Send(data)
}

// Close closes the transport and the underlying data channel. Idempotent.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	cb := t.onClose
	t.mu.Unlock()
	if cb != nil {
		cb()
	}
	return t.dc.Close()
}

type streamSender struct {
	t         *Transport
	requestID string
}

func (s *streamSender) SendData(message []byte) error {
	return s.t.send(codec.NewDataStreamEnvelope(s.requestID, message))
}

func (s *streamSender) SendEnd(code codec.StatusCode, message string) error {
	return s.t.send(codec.NewEndStreamEnvelope(s.requestID, code, message))
}

// MakeHandler builds a typed Handler from deserialize/serialize functions,
// so business logic never touches raw envelope bytes directly.
func MakeHandler[Req, Resp any](
	deserialize func([]byte) (Req, error),
	serialize func(Resp) ([]byte, error),
	handle func(ctx context.Context, req Req) (Resp, error),
) Handler {
	return func(ctx context.Context, reqEnv *codec.RequestEnvelope) (*codec.ResponseEnvelope, error) {
		req, err := deserialize(reqEnv.Message)
		if err != nil {
			return nil, &codec.GRPCError{Code: codec.StatusInvalidArgument, Message: fmt.Sprintf("deserialize request: %v", err)}
		}
		resp, err := handle(ctx, req)
		if err != nil {
			if gerr, ok := err.(*codec.GRPCError); ok {
				return nil, gerr
			}
			return nil, &codec.GRPCError{Code: codec.StatusInternal, Message: err.Error()}
		}
		data, err := serialize(resp)
		if err != nil {
			return nil, &codec.GRPCError{Code: codec.StatusInternal, Message: fmt.Sprintf("serialize response: %v", err)}
		}
		return &codec.ResponseEnvelope{
			Headers:  map[string]string{},
			Messages: [][]byte{data},
			Trailers: map[string]string{"grpc-status": strconv.Itoa(codec.StatusOK)},
		}, nil
	}
}
