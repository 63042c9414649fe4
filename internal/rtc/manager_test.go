package rtc

import (
	"sync"
	"testing"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tahababou12/CoCo-sub000/internal/domain"
)

// recordingSender captures outbound signals; ICE candidate callbacks
// arrive from pion's gathering goroutines, hence the mutex.
type recordingSender struct {
	mu      sync.Mutex
	signals []domain.Message
}

func (r *recordingSender) SendSignal(t domain.MessageType, p domain.SignalPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, domain.MustMessage(t, p))
	return nil
}

func (r *recordingSender) byType(t domain.MessageType) []domain.SignalPayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.SignalPayload, 0)
	for _, msg := range r.signals {
		if msg.Type != t {
			continue
		}
		var p domain.SignalPayload
		if msg.DecodePayload(&p) == nil {
			out = append(out, p)
		}
	}
	return out
}

func TestOfferAnswerRoundTrip(t *testing.T) {
	aSender := &recordingSender{}
	bSender := &recordingSender{}
	a := NewManager("a", nil, aSender, AlwaysCapable, nil)
	b := NewManager("b", nil, bSender, AlwaysCapable, nil)
	defer a.Close()
	defer b.Close()

	require.NoError(t, a.Connect("b"))
	assert.Equal(t, LinkNegotiating, a.State("b"))

	offers := aSender.byType(domain.MsgOffer)
	require.Len(t, offers, 1)
	assert.Equal(t, "a", offers[0].From)
	assert.Equal(t, "b", offers[0].To)
	require.NotNil(t, offers[0].SDP)

	require.NoError(t, b.HandleOffer("a", offers[0]))

	answers := bSender.byType(domain.MsgAnswer)
	require.Len(t, answers, 1)
	assert.Equal(t, "b", answers[0].From)
	assert.Equal(t, "a", answers[0].To)
	require.NotNil(t, answers[0].SDP)

	require.NoError(t, a.HandleAnswer("b", answers[0]))
}

func TestUnansweredNegotiationClosesCleanly(t *testing.T) {
	sender := &recordingSender{}
	m := NewManager("a", []string{"stun:stun.l.google.com:19302"}, sender, AlwaysCapable, nil)

	require.NoError(t, m.Connect("b"))
	assert.Equal(t, LinkNegotiating, m.State("b"))

	m.Close()
	assert.Equal(t, LinkClosed, m.State("b"))

	err := m.Connect("c")
	assert.ErrorIs(t, err, ErrManagerClosed)
}

func TestCandidateBeforeOfferIsBuffered(t *testing.T) {
	aSender := &recordingSender{}
	bSender := &recordingSender{}
	a := NewManager("a", nil, aSender, AlwaysCapable, nil)
	b := NewManager("b", nil, bSender, AlwaysCapable, nil)
	defer a.Close()
	defer b.Close()

	// Candidate arrives before the offer it belongs to; it must be
	// held, not rejected.
	candidate := webrtc.ICECandidateInit{
		Candidate: "candidate:1 1 udp 2130706431 127.0.0.1 54321 typ host",
	}
	require.NoError(t, b.HandleCandidate("a", domain.SignalPayload{
		From:      "a",
		To:        "b",
		Candidate: &candidate,
	}))

	require.NoError(t, a.Connect("b"))
	offers := aSender.byType(domain.MsgOffer)
	require.Len(t, offers, 1)
	require.NoError(t, b.HandleOffer("a", offers[0]))
}

func TestAnswerFromUnknownPeer(t *testing.T) {
	sender := &recordingSender{}
	m := NewManager("a", nil, sender, AlwaysCapable, nil)
	defer m.Close()

	err := m.HandleAnswer("ghost", domain.SignalPayload{From: "ghost"})
	assert.ErrorIs(t, err, ErrSignalingFailure)
}

func TestPeerLeftDropsLink(t *testing.T) {
	sender := &recordingSender{}
	m := NewManager("a", nil, sender, AlwaysCapable, nil)
	defer m.Close()

	require.NoError(t, m.Connect("b"))
	m.PeerLeft("b")
	assert.Equal(t, LinkClosed, m.State("b"))
}

func TestStartSharingRequiresCapability(t *testing.T) {
	sender := &recordingSender{}
	m := NewManager("a", nil, sender, NeverCapable, nil)
	defer m.Close()

	err := m.StartSharing(nil)
	assert.ErrorIs(t, err, ErrNoCapture)
}
