package p2p

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/nodeglow/rtcgateway/internal/logging"
	"github.com/nodeglow/rtcgateway/internal/metrics"
	"github.com/nodeglow/rtcgateway/internal/transport"
)

// TransportFactory builds and registers a fresh transport over a newly
// opened data channel, wiring whatever RPC handlers the caller wants
// exposed on every peer connection.
type TransportFactory func(dc *webrtc.DataChannel) *transport.Transport

// Orchestrator owns the peer map and wires signaling events to peer
// creation, SDP/ICE exchange, and cleanup. It only ever answers: the
// signaling server is the one place offers originate.
type Orchestrator struct {
	signaling *SignalingClient
	peerCfg   Config
	newTransp TransportFactory

	mu      sync.RWMutex
	peers   map[string]*Peer
	counter atomic.Uint64
	appID   atomic.Pointer[string]
}

// NewOrchestrator builds an orchestrator bound to an already-constructed
// signaling client. If the client was configured with a previously known
// AppID (e.g. from credentials persisted by an earlier session), it seeds
// the orchestrator's app_id until the server's own app_registered
// response supersedes it.
func NewOrchestrator(signaling *SignalingClient, peerCfg Config, newTransp TransportFactory) *Orchestrator {
	o := &Orchestrator{
		signaling: signaling,
		peerCfg:   peerCfg,
		newTransp: newTransp,
		peers:     make(map[string]*Peer),
	}
	if signaling.cfg.AppID != "" {
		id := signaling.cfg.AppID
		o.appID.Store(&id)
	}
	return o
}

// Run pumps the signaling client's message stream, dispatching offers, ICE
// candidates, and errors to the relevant peer. It also watches for
// (re-)authentication events and sends app_register on each one, per the
// signaling connection protocol: app_register always follows a fresh
// auth_ok, both on first connect and on every reconnect. Blocks until ctx
// is done.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			o.closeAll()
			return ctx.Err()
		case _, ok := <-o.signaling.Authenticated:
			if ok {
				o.sendAppRegister()
			}
		case msg, ok := <-o.signaling.Messages:
			if !ok {
				o.closeAll()
				return nil
			}
			o.handleSignal(ctx, msg)
		}
	}
}

// sendAppRegister announces the gateway's app identity to the signaling
// server. The response (app_registered) is handled asynchronously by
// handleSignal, which records the assigned app_id.
func (o *Orchestrator) sendAppRegister() {
	err := o.signaling.Send(SignalMessage{
		Type:         SignalAppRegister,
		Name:         o.signaling.cfg.AppName,
		Capabilities: o.signaling.cfg.Capabilities,
	})
	if err != nil {
		logging.Logger().Sugar().Warnw("failed to send app_register", "error", err)
	}
}

// currentAppID returns the most recently assigned app_id, or "" if the
// gateway has not yet been registered.
func (o *Orchestrator) currentAppID() string {
	if p := o.appID.Load(); p != nil {
		return *p
	}
	return ""
}

func (o *Orchestrator) handleSignal(ctx context.Context, msg SignalMessage) {
	switch msg.Type {
	case SignalOffer:
		o.handleOffer(ctx, msg)
	case SignalICE:
		o.handleRemoteICE(msg)
	case SignalAppRegistered:
		id := msg.AppID
		o.appID.Store(&id)
		logging.Logger().Sugar().Infow("app registered", "appId", id)
	case SignalError:
		logging.Logger().Sugar().Warnw("signaling error", "message", msg.Message)
	default:
		logging.Logger().Sugar().Debugw("unhandled signal message", "type", msg.Type)
	}
}

// handleOffer creates a new peer for an incoming offer, answers it, and
// registers its eventual data channel with a fresh RPC transport. The
// browser's offer carries no peer identifier (the protocol has none); the
// gateway allocates a fresh peer-N id purely for its own bookkeeping and
// correlates the answer back to the offer via the echoed requestId.
func (o *Orchestrator) handleOffer(ctx context.Context, msg SignalMessage) {
	id := o.nextPeerID()

	peer, err := New(id, o.peerCfg)
	if err != nil {
		logging.Logger().Sugar().Errorw("failed to create peer", "peer", id, "error", err)
		return
	}
	peer.SetupHandlers()
	peer.SetupDataChannelHandler()

	o.mu.Lock()
	o.peers[id] = peer
	o.mu.Unlock()
	o.recordPeerCount()

	answerSDP, err := peer.CreateAnswer(msg.SDP)
	if err != nil {
		logging.Logger().Sugar().Errorw("failed to answer offer", "peer", id, "error", err)
		o.removePeer(id)
		return
	}

	if err := o.signaling.Send(SignalMessage{Type: SignalAnswer, SDP: answerSDP, RequestID: msg.RequestID, AppID: o.currentAppID()}); err != nil {
		logging.Logger().Sugar().Errorw("failed to send answer", "peer", id, "error", err)
		o.removePeer(id)
		return
	}

	go o.flushGatheredCandidates(peer)
	go o.pumpPeerEvents(ctx, peer)
}

// flushGatheredCandidates waits a short grace period for trickle ICE to
// settle, then forwards every candidate gathered so far to the signaling
// server as individual ice messages.
func (o *Orchestrator) flushGatheredCandidates(peer *Peer) {
	time.Sleep(ICEGatheringGracePeriod)
	for _, c := range peer.GatheredICECandidates() {
		mLine := 0
		if c.SDPMLineIndex != nil {
			mLine = int(*c.SDPMLineIndex)
		}
		_ = o.signaling.Send(SignalMessage{
			Type:      SignalICE,
			Candidate: c.Candidate,
			SDPMid:    derefOr(c.SDPMid, ""),
			SDPMLine:  &mLine,
		})
	}
}

func derefOr(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}

// handleRemoteICE fans an incoming candidate to every known peer. The
// signaling protocol attaches no peer identifier to ice messages (see
// spec.md §9's "ICE candidate targeting" note), so the gateway cannot route
// a candidate to the one peer it's meant for; pion/webrtc safely rejects a
// candidate that doesn't belong to a given peer connection, so fanning out
// is wasteful but never wrong.
func (o *Orchestrator) handleRemoteICE(msg SignalMessage) {
	candidate := webrtc.ICECandidateInit{Candidate: msg.Candidate}
	if msg.SDPMid != "" {
		candidate.SDPMid = &msg.SDPMid
	}
	if msg.SDPMLine != nil {
		v := uint16(*msg.SDPMLine)
		candidate.SDPMLineIndex = &v
	}

	o.mu.RLock()
	peers := make([]*Peer, 0, len(o.peers))
	for _, p := range o.peers {
		peers = append(peers, p)
	}
	o.mu.RUnlock()

	for _, peer := range peers {
		if err := peer.AddICECandidate(candidate); err != nil {
			logging.Logger().Sugar().Debugw("ice candidate rejected", "peer", peer.ID, "error", err)
		}
	}
}

// pumpPeerEvents drains one peer's event stream, creating its RPC
// transport once the data channel opens and tearing down the peer map
// entry once the stream ends.
func (o *Orchestrator) pumpPeerEvents(ctx context.Context, peer *Peer) {
	defer o.removePeer(peer.ID)

	var started bool
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-peer.Events():
			if !ok {
				return
			}
			switch ev.Kind {
			case EventConnected:
				if started {
					continue
				}
				if dc := peer.DataChannel(); dc != nil {
					o.newTransp(dc).Start()
					started = true
				}
			case EventDisconnected:
				return
			case EventError:
				logging.Logger().Sugar().Warnw("peer error", "peer", peer.ID, "error", ev.Err)
			}
		}
	}
}

func (o *Orchestrator) removePeer(id string) {
	o.mu.Lock()
	peer, ok := o.peers[id]
	delete(o.peers, id)
	o.mu.Unlock()
	o.recordPeerCount()
	if ok {
		_ = peer.Close()
	}
}

func (o *Orchestrator) closeAll() {
	o.mu.Lock()
	peers := make([]*Peer, 0, len(o.peers))
	for _, p := range o.peers {
		peers = append(peers, p)
	}
	o.peers = make(map[string]*Peer)
	o.mu.Unlock()
	o.recordPeerCount()
	for _, p := range peers {
		_ = p.Close()
	}
}

func (o *Orchestrator) recordPeerCount() {
	o.mu.RLock()
	n := len(o.peers)
	o.mu.RUnlock()
	metrics.ConnectedPeers.Set(float64(n))
}

func (o *Orchestrator) nextPeerID() string {
	return fmt.Sprintf("peer-%d", o.counter.Add(1))
}

// PeerCount returns the number of currently tracked peers.
func (o *Orchestrator) PeerCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.peers)
}
