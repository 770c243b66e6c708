// Package p2p implements the WebRTC peer lifecycle (Peer), the
// authenticated signaling client, and the connection orchestrator that
// wires the two together.
package p2p

import (
	"errors"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/nodeglow/rtcgateway/internal/logging"
)

// MaxChunkSize bounds a single send_chunked payload; callers needing larger
// logical deliveries must split across multiple chunks.
const MaxChunkSize = 16 * 1024

// ConnectionState mirrors the underlying peer connection's state, collapsed
// to the five values the spec's state machine names.
type ConnectionState int

const (
	StateNew ConnectionState = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateFailed
)

// EventKind distinguishes the variants of Event.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventDataReceived
	EventICECandidate
	EventError
)

// Event is one item on a peer's event stream.
type Event struct {
	Kind      EventKind
	Data      []byte
	Candidate *webrtc.ICECandidateInit
	Err       error
}

// TURNServer is one TURN server's connection info.
type TURNServer struct {
	URLs       []string
	Username   string
	Credential string
}

// Config configures ICE servers for new peers.
type Config struct {
	STUNServers []string
	TURNServers []TURNServer
}

func (c Config) iceServers() []webrtc.ICEServer {
	if len(c.STUNServers) == 0 && len(c.TURNServers) == 0 {
		return []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	}
	servers := make([]webrtc.ICEServer, 0, len(c.STUNServers)+len(c.TURNServers))
	if len(c.STUNServers) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: c.STUNServers})
	}
	for _, t := range c.TURNServers {
		servers = append(servers, webrtc.ICEServer{
			URLs:       t.URLs,
			Username:   t.Username,
			Credential: t.Credential,
		})
	}
	return servers
}

// ErrNoDataChannel is returned by Send when the data channel is not yet
// open.
var ErrNoDataChannel = errors.New("no data channel")

// Peer owns one RTCPeerConnection and at most one data channel. The
// production flow only ever answers offers; CreateOffer exists for
// completeness but is not exercised by the orchestrator.
type Peer struct {
	ID string

	mu            sync.Mutex
	pc            *webrtc.PeerConnection
	dc            *webrtc.DataChannel
	iceCandidates []webrtc.ICECandidateInit
	state         ConnectionState
	disconnectedOnce sync.Once

	events chan Event
}

// New constructs a peer connection with the given ICE configuration. The
// caller must call SetupHandlers before exchanging SDP.
func New(id string, cfg Config) (*Peer, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: cfg.iceServers()})
	if err != nil {
		return nil, err
	}
	return &Peer{
		ID:     id,
		pc:     pc,
		state:  StateNew,
		events: make(chan Event, 100),
	}, nil
}

// Events returns the peer's single-consumer event channel.
func (p *Peer) Events() <-chan Event { return p.events }

// State returns the peer's current observable connection state.
func (p *Peer) State() ConnectionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func mapPeerConnectionState(s webrtc.PeerConnectionState) ConnectionState {
	switch s {
	case webrtc.PeerConnectionStateNew:
		return StateNew
	case webrtc.PeerConnectionStateConnecting:
		return StateConnecting
	case webrtc.PeerConnectionStateConnected:
		return StateConnected
	case webrtc.PeerConnectionStateFailed:
		return StateFailed
	case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateClosed:
		return StateDisconnected
	default:
		return StateNew
	}
}

// SetupHandlers wires ICE candidate gathering and connection-state change
// callbacks. Call once, before CreateAnswer/CreateOffer.
func (p *Peer) SetupHandlers() {
	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		p.mu.Lock()
		p.iceCandidates = append(p.iceCandidates, init)
		p.mu.Unlock()
		p.emit(Event{Kind: EventICECandidate, Candidate: &init})
	})

	p.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		p.mu.Lock()
		p.state = mapPeerConnectionState(s)
		p.mu.Unlock()

		switch s {
		case webrtc.PeerConnectionStateConnected:
			p.emit(Event{Kind: EventConnected})
		case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			p.emitDisconnectedOnce()
		}
	})
}

// SetupDataChannelHandler wires the answerer-path on_data_channel callback:
// the incoming channel's on_message emits DataReceived, its on_open emits
// Connected.
func (p *Peer) SetupDataChannelHandler() {
	p.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		p.mu.Lock()
		p.dc = dc
		p.mu.Unlock()

		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			p.emit(Event{Kind: EventDataReceived, Data: msg.Data})
		})
		dc.OnOpen(func() {
			p.emit(Event{Kind: EventConnected})
		})
	})
}

// DataChannel returns the established data channel, or nil before it opens.
func (p *Peer) DataChannel() *webrtc.DataChannel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dc
}

// CreateAnswer sets the remote offer, creates and sets the local answer,
// and returns the answer SDP. This is the peer's production path: the
// gateway is always the answerer.
func (p *Peer) CreateAnswer(offerSDP string) (string, error) {
	if err := p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}); err != nil {
		return "", err
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return "", err
	}
	return answer.SDP, nil
}

// CreateOffer creates a local data channel and returns a locally-set offer.
// Not exercised by the orchestrator in production: the protocol's only
// supported flow has the gateway answering, never offering.
func (p *Peer) CreateOffer() (string, error) {
	dc, err := p.pc.CreateDataChannel("data", nil)
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	p.dc = dc
	p.mu.Unlock()

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return "", err
	}
	return offer.SDP, nil
}

// SetRemoteAnswer applies a remote answer SDP. Offerer-path only.
func (p *Peer) SetRemoteAnswer(answerSDP string) error {
	return p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answerSDP})
}

// AddICECandidate applies a remote ICE candidate. Mismatched candidates
// (for a different peer) are rejected by pion itself rather than crashing.
func (p *Peer) AddICECandidate(c webrtc.ICECandidateInit) error {
	return p.pc.AddICECandidate(c)
}

// GatheredICECandidates returns every locally gathered candidate so far.
func (p *Peer) GatheredICECandidates() []webrtc.ICECandidateInit {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]webrtc.ICECandidateInit, len(p.iceCandidates))
	copy(out, p.iceCandidates)
	return out
}

// Send writes bytes to the data channel. Fails with ErrNoDataChannel if the
// channel has not opened yet. There is no implicit chunking; callers must
// keep messages under ~16 KiB or use the streaming envelope.
func (p *Peer) Send(data []byte) error {
	dc := p.DataChannel()
	if dc == nil {
		return ErrNoDataChannel
	}
	return dc.Send(data)
}

// SendChunked splits data into MaxChunkSize-9 byte payloads, each prefixed
// with chunk_index:u32 | total_chunks:u32 | is_last:u8, for callers that
// need a single logical delivery larger than one message.
func (p *Peer) SendChunked(data []byte) error {
	const headerSize = 9
	payloadSize := MaxChunkSize - headerSize
	total := (len(data) + payloadSize - 1) / payloadSize
	if total == 0 {
		total = 1
	}
	for i := 0; i < total; i++ {
		start := i * payloadSize
		end := start + payloadSize
		if end > len(data) {
			end = len(data)
		}
		chunk := make([]byte, headerSize+(end-start))
		putU32(chunk[0:4], uint32(i))
		putU32(chunk[4:8], uint32(total))
		if i == total-1 {
			chunk[8] = 1
		}
		copy(chunk[9:], data[start:end])
		if err := p.Send(chunk); err != nil {
			return err
		}
	}
	return nil
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

// Close tears down the peer connection. Idempotent.
func (p *Peer) Close() error {
	p.emitDisconnectedOnce()
	return p.pc.Close()
}

func (p *Peer) emit(ev Event) {
	select {
	case p.events <- ev:
	default:
		logging.Logger().Sugar().Warnw("peer event channel full, dropping event", "peer", p.ID, "kind", ev.Kind)
	}
}

// emitDisconnectedOnce guarantees Disconnected fires exactly once, after
// which the event stream is considered ended (callers stop reading it).
func (p *Peer) emitDisconnectedOnce() {
	p.disconnectedOnce.Do(func() {
		p.emit(Event{Kind: EventDisconnected})
		close(p.events)
	})
}

// ICEGatheringGracePeriod is how long the orchestrator waits after setting
// the local description before flushing gathered candidates.
const ICEGatheringGracePeriod = 500 * time.Millisecond
