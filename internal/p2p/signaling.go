package p2p

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/nodeglow/rtcgateway/internal/logging"
	"github.com/nodeglow/rtcgateway/internal/metrics"
)

// SignalMessage is the envelope exchanged over the signaling WebSocket.
// Field presence varies by Type; unused fields are omitted on the wire.
// There is deliberately no peer-identifier field: the protocol carries none
// for offer/ice messages (see Orchestrator.handleRemoteICE), and the
// gateway correlates its answer to an offer via RequestID instead.
type SignalMessage struct {
	Type         string   `json:"type"`
	APIKey       string   `json:"apiKey,omitempty"`
	RequestID    string   `json:"requestId,omitempty"`
	SDP          string   `json:"sdp,omitempty"`
	Candidate    string   `json:"candidate,omitempty"`
	SDPMid       string   `json:"sdpMid,omitempty"`
	SDPMLine     *int     `json:"sdpMLineIndex,omitempty"`
	Message      string   `json:"message,omitempty"`
	Name         string   `json:"name,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
	AppID        string   `json:"appId,omitempty"`
}

// Signal message type discriminants, matching the counterpart server.
const (
	SignalAuth          = "auth"
	SignalAuthOK        = "auth_ok"
	SignalAuthError     = "auth_error"
	SignalAppRegister   = "app_register"
	SignalAppRegistered = "app_registered"
	SignalOffer         = "offer"
	SignalAnswer        = "answer"
	SignalICE           = "ice"
	SignalError         = "error"
)

// ErrAuthRejected is returned when the signaling server rejects the API key.
var ErrAuthRejected = errors.New("signaling: authentication rejected")

// SignalingConfig configures the client's endpoint, reconnect behavior, and
// the identity it registers with the signaling server on every successful
// authentication. AppID, if known from a prior session's credentials, seeds
// the client's in-memory app_id until the server's own app_registered
// response supersedes it.
type SignalingConfig struct {
	URL               string
	APIKey            string
	ReconnectBaseWait time.Duration
	ReconnectMaxWait  time.Duration
	AppName           string
	Capabilities      []string
	AppID             string
}

func (c SignalingConfig) withDefaults() SignalingConfig {
	if c.ReconnectBaseWait == 0 {
		c.ReconnectBaseWait = time.Second
	}
	if c.ReconnectMaxWait == 0 {
		c.ReconnectMaxWait = 60 * time.Second
	}
	if c.AppName == "" {
		c.AppName = "rtcgateway"
	}
	if c.Capabilities == nil {
		c.Capabilities = []string{"etc-scraper"}
	}
	return c
}

// SignalingClient maintains an authenticated WebSocket connection to the
// signaling server, automatically reconnecting with jittered exponential
// backoff and re-authenticating on every reconnect.
type SignalingClient struct {
	cfg SignalingConfig

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	Messages chan SignalMessage

	// Authenticated fires once per successful auth_ok, on the initial
	// connection and on every reconnect alike, so the orchestrator knows
	// when to (re-)send app_register. Buffered and coalesced: a caller
	// that misses one tick still picks up the next, and a send never
	// blocks the read pump.
	Authenticated chan struct{}
}

// NewSignalingClient constructs a client that has not yet dialed.
func NewSignalingClient(cfg SignalingConfig) *SignalingClient {
	return &SignalingClient{
		cfg:           cfg.withDefaults(),
		Messages:      make(chan SignalMessage, 64),
		Authenticated: make(chan struct{}, 1),
	}
}

// Run dials, authenticates, and pumps inbound messages onto Messages until
// ctx is cancelled or Close is called. On any read/write/auth failure it
// reconnects with jittered exponential backoff, resetting the backoff timer
// after every successful authentication.
func (c *SignalingClient) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.ReconnectBaseWait
	bo.MaxInterval = c.cfg.ReconnectMaxWait
	bo.MaxElapsedTime = 0 // retry forever
	// jitter() below applies the +-20%; the library adds none of its own.
	bo.RandomizationFactor = 0

	first := true
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if c.isClosed() {
			return nil
		}

		err := c.connectAndPump(ctx, !first, bo.Reset)
		first = false
		if err == nil {
			return nil // ctx cancelled cleanly inside connectAndPump
		}
		if c.isClosed() {
			return nil
		}

		wait := jitter(bo.NextBackOff())
		logging.Logger().Sugar().Warnw("signaling connection lost, reconnecting", "error", err, "wait", wait)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// jitter applies +-20% jitter around d, matching the reconnect spec.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	delta := float64(d) * 0.2
	offset := (rand.Float64()*2 - 1) * delta
	return d + time.Duration(offset)
}

func (c *SignalingClient) connectAndPump(ctx context.Context, isReconnect bool, onAuthenticated func()) error {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("signaling: parse url: %w", err)
	}
	q := u.Query()
	q.Set("apiKey", c.cfg.APIKey)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("signaling: dial: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		conn.Close()
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}()

	if err := c.authenticate(conn); err != nil {
		return err
	}
	onAuthenticated()
	if isReconnect {
		metrics.SignalingReconnectsTotal.Inc()
	}

	logging.Logger().Sugar().Info("signaling authenticated")
	select {
	case c.Authenticated <- struct{}{}:
	default:
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		var msg SignalMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("signaling: read: %w", err)
		}
		select {
		case c.Messages <- msg:
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *SignalingClient) authenticate(conn *websocket.Conn) error {
	if err := conn.WriteJSON(SignalMessage{Type: SignalAuth, APIKey: c.cfg.APIKey}); err != nil {
		return fmt.Errorf("signaling: send auth: %w", err)
	}
	var resp SignalMessage
	if err := conn.ReadJSON(&resp); err != nil {
		return fmt.Errorf("signaling: read auth response: %w", err)
	}
	switch resp.Type {
	case SignalAuthOK:
		return nil
	case SignalAuthError:
		return fmt.Errorf("%w: %s", ErrAuthRejected, resp.Message)
	default:
		return fmt.Errorf("signaling: unexpected response to auth: %s", resp.Type)
	}
}

// Send writes one message to the active connection. Returns an error if not
// currently connected; the caller is expected to retry once Run reconnects.
func (c *SignalingClient) Send(msg SignalMessage) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("signaling: not connected")
	}
	return conn.WriteJSON(msg)
}

// Close stops Run permanently and closes any active connection.
func (c *SignalingClient) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *SignalingClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
