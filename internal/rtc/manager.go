// Package rtc manages direct peer media links. Shape traffic goes
// through the room hub; only webcam and screen-share media flows peer
// to peer, negotiated over the hub's signal relay.
package rtc

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v3"
	"github.com/tahababou12/CoCo-sub000/internal/domain"
	"github.com/tahababou12/CoCo-sub000/lib/logger/sl"
)

var (
	ErrSignalingFailure = errors.New("signaling failure")
	ErrNoCapture        = errors.New("no capture capability")
	ErrManagerClosed    = errors.New("rtc manager is closed")
)

type LinkState string

const (
	LinkNegotiating LinkState = "negotiating"
	LinkConnected   LinkState = "connected"
	LinkClosed      LinkState = "closed"
)

// SignalSender relays one negotiation message to a peer through the
// hub. The client session implements it.
type SignalSender interface {
	SendSignal(t domain.MessageType, p domain.SignalPayload) error
}

// TrackHandler receives a remote peer's incoming media track.
type TrackHandler func(peerID string, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)

// link is one peer connection and its negotiation state. Candidates
// arriving before the remote description are buffered and applied once
// it lands (trickle ICE).
type link struct {
	peerID  string
	pc      *webrtc.PeerConnection
	senders []*webrtc.RTPSender

	mu        sync.Mutex
	state     LinkState
	remoteSet bool
	pending   []webrtc.ICECandidateInit
}

// Manager owns every peer link of the local member. It implements the
// protocol signal handler so the session can route relayed offers,
// answers and candidates straight into it.
type Manager struct {
	userID  string
	config  webrtc.Configuration
	sender  SignalSender
	checker CapabilityChecker
	log     *slog.Logger

	mu      sync.Mutex
	links   map[string]*link
	track   webrtc.TrackLocal
	onTrack TrackHandler
	closed  bool
}

func NewManager(userID string, stunServers []string, sender SignalSender, checker CapabilityChecker, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if checker == nil {
		checker = AlwaysCapable
	}
	config := webrtc.Configuration{}
	if len(stunServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: stunServers}}
	}
	return &Manager{
		userID:  userID,
		config:  config,
		sender:  sender,
		checker: checker,
		log:     log.With(slog.String("component", "rtc")),
		links:   make(map[string]*link),
	}
}

// SetTrackHandler registers the consumer for incoming remote media.
func (m *Manager) SetTrackHandler(h TrackHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTrack = h
}

// StartSharing attaches a local media track to every link, current and
// future, and renegotiates the current ones.
func (m *Manager) StartSharing(track webrtc.TrackLocal) error {
	if !m.checker.CanCapture() {
		return ErrNoCapture
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	m.track = track
	links := make([]*link, 0, len(m.links))
	for _, l := range m.links {
		links = append(links, l)
	}
	m.mu.Unlock()

	for _, l := range links {
		sender, err := l.pc.AddTrack(track)
		if err != nil {
			m.log.Error("failed to attach track", slog.String("peer", l.peerID), sl.Err(err))
			continue
		}
		l.mu.Lock()
		l.senders = append(l.senders, sender)
		l.mu.Unlock()
		if err := m.offer(l); err != nil {
			m.log.Error("renegotiation failed", slog.String("peer", l.peerID), sl.Err(err))
		}
	}
	return nil
}

// StopSharing detaches the local track from every link. With keepLocal
// the capture itself stays alive for local preview; only the outbound
// media stops.
func (m *Manager) StopSharing(keepLocal bool) {
	m.mu.Lock()
	if !keepLocal {
		m.track = nil
	}
	links := make([]*link, 0, len(m.links))
	for _, l := range m.links {
		links = append(links, l)
	}
	m.mu.Unlock()

	for _, l := range links {
		l.mu.Lock()
		senders := l.senders
		l.senders = nil
		l.mu.Unlock()
		for _, s := range senders {
			if err := l.pc.RemoveTrack(s); err != nil {
				m.log.Debug("remove track", slog.String("peer", l.peerID), sl.Err(err))
			}
		}
		if len(senders) > 0 {
			if err := m.offer(l); err != nil {
				m.log.Error("renegotiation failed", slog.String("peer", l.peerID), sl.Err(err))
			}
		}
	}
}

// Connect initiates a link to a peer: the side that joined last calls
// this for every existing member, so exactly one side offers.
func (m *Manager) Connect(peerID string) error {
	l, err := m.ensureLink(peerID)
	if err != nil {
		return err
	}
	return m.offer(l)
}

// State reports a link's negotiation state, LinkClosed for unknown peers.
func (m *Manager) State(peerID string) LinkState {
	m.mu.Lock()
	l, ok := m.links[peerID]
	m.mu.Unlock()
	if !ok {
		return LinkClosed
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// HandleOffer answers an incoming offer from a peer.
func (m *Manager) HandleOffer(from string, p domain.SignalPayload) error {
	if p.SDP == nil {
		return fmt.Errorf("%w: offer without sdp", ErrSignalingFailure)
	}
	l, err := m.ensureLink(from)
	if err != nil {
		return err
	}

	if err := l.pc.SetRemoteDescription(*p.SDP); err != nil {
		return fmt.Errorf("%w: set remote offer: %v", ErrSignalingFailure, err)
	}
	m.drainCandidates(l)

	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("%w: create answer: %v", ErrSignalingFailure, err)
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("%w: set local answer: %v", ErrSignalingFailure, err)
	}

	return m.sender.SendSignal(domain.MsgAnswer, domain.SignalPayload{
		From: m.userID,
		To:   from,
		SDP:  l.pc.LocalDescription(),
	})
}

// HandleAnswer completes a negotiation this side initiated.
func (m *Manager) HandleAnswer(from string, p domain.SignalPayload) error {
	if p.SDP == nil {
		return fmt.Errorf("%w: answer without sdp", ErrSignalingFailure)
	}
	m.mu.Lock()
	l, ok := m.links[from]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: answer from unknown peer %s", ErrSignalingFailure, from)
	}

	if err := l.pc.SetRemoteDescription(*p.SDP); err != nil {
		return fmt.Errorf("%w: set remote answer: %v", ErrSignalingFailure, err)
	}
	m.drainCandidates(l)
	return nil
}

// HandleCandidate applies a trickled ICE candidate, buffering it when
// the remote description has not landed yet.
func (m *Manager) HandleCandidate(from string, p domain.SignalPayload) error {
	if p.Candidate == nil {
		return fmt.Errorf("%w: empty candidate", ErrSignalingFailure)
	}
	l, err := m.ensureLink(from)
	if err != nil {
		return err
	}

	l.mu.Lock()
	if !l.remoteSet {
		l.pending = append(l.pending, *p.Candidate)
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	if err := l.pc.AddICECandidate(*p.Candidate); err != nil {
		return fmt.Errorf("%w: add candidate: %v", ErrSignalingFailure, err)
	}
	return nil
}

// PeerLeft tears down the link to a departed member.
func (m *Manager) PeerLeft(peerID string) {
	m.mu.Lock()
	l, ok := m.links[peerID]
	delete(m.links, peerID)
	m.mu.Unlock()
	if !ok {
		return
	}
	m.closeLink(l)
}

// Close tears down every link. Further calls on the manager fail with
// ErrManagerClosed.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	links := m.links
	m.links = make(map[string]*link)
	m.mu.Unlock()

	for _, l := range links {
		m.closeLink(l)
	}
}

func (m *Manager) closeLink(l *link) {
	l.mu.Lock()
	l.state = LinkClosed
	l.mu.Unlock()
	if err := l.pc.Close(); err != nil {
		m.log.Debug("peer connection close", slog.String("peer", l.peerID), sl.Err(err))
	}
}

func (m *Manager) ensureLink(peerID string) (*link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrManagerClosed
	}
	if l, ok := m.links[peerID]; ok {
		return l, nil
	}

	pc, err := webrtc.NewPeerConnection(m.config)
	if err != nil {
		return nil, fmt.Errorf("%w: new peer connection: %v", ErrSignalingFailure, err)
	}

	l := &link{
		peerID: peerID,
		pc:     pc,
		state:  LinkNegotiating,
	}

	// Receive the peer's media even when this side shares nothing.
	if m.track != nil {
		if sender, err := pc.AddTrack(m.track); err == nil {
			l.senders = append(l.senders, sender)
		}
	} else {
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			pc.Close()
			return nil, fmt.Errorf("%w: add transceiver: %v", ErrSignalingFailure, err)
		}
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		if err := m.sender.SendSignal(domain.MsgIceCandidate, domain.SignalPayload{
			From:      m.userID,
			To:        peerID,
			Candidate: &init,
		}); err != nil {
			m.log.Debug("candidate relay failed", slog.String("peer", peerID), sl.Err(err))
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		l.mu.Lock()
		switch state {
		case webrtc.PeerConnectionStateConnected:
			l.state = LinkConnected
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			l.state = LinkClosed
		}
		current := l.state
		l.mu.Unlock()
		m.log.Debug("link state",
			slog.String("peer", peerID),
			slog.String("state", string(current)),
		)
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		m.mu.Lock()
		handler := m.onTrack
		m.mu.Unlock()
		if handler != nil {
			handler(peerID, track, receiver)
		}
	})

	m.links[peerID] = l
	return l, nil
}

func (m *Manager) offer(l *link) error {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("%w: create offer: %v", ErrSignalingFailure, err)
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("%w: set local offer: %v", ErrSignalingFailure, err)
	}
	return m.sender.SendSignal(domain.MsgOffer, domain.SignalPayload{
		From: m.userID,
		To:   l.peerID,
		SDP:  l.pc.LocalDescription(),
	})
}

// drainCandidates applies candidates buffered before the remote
// description arrived. Caller has just set the remote description.
func (m *Manager) drainCandidates(l *link) {
	l.mu.Lock()
	l.remoteSet = true
	pending := l.pending
	l.pending = nil
	l.mu.Unlock()

	for _, c := range pending {
		if err := l.pc.AddICECandidate(c); err != nil {
			m.log.Debug("buffered candidate rejected", slog.String("peer", l.peerID), sl.Err(err))
		}
	}
}
