package webrtc

import (
	"sync"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"
)

// PeerLink is the state machine for one remote participant: transport,
// negotiation state and candidate buffering. The mutex serializes every
// negotiation step so a toggle racing a screen-share switch can never
// interleave offer/answer cycles on the same link.
type PeerLink struct {
	remoteID    domain.ParticipantID
	transport   ports.PeerTransport
	isInitiator bool

	mu                sync.Mutex
	state             domain.LinkState
	remoteDescSet     bool
	offerPending      bool
	pendingCandidates []domain.ICECandidate
	aggregator        *trackAggregator
}

func newPeerLink(remoteID domain.ParticipantID, transport ports.PeerTransport, isInitiator bool, agg *trackAggregator) *PeerLink {
	return &PeerLink{
		remoteID:    remoteID,
		transport:   transport,
		isInitiator: isInitiator,
		state:       domain.LinkCreated,
		aggregator:  agg,
	}
}

func (l *PeerLink) RemoteID() domain.ParticipantID {
	return l.remoteID
}

func (l *PeerLink) State() domain.LinkState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// bufferOrApply applies a candidate when the remote description is set and
// buffers it otherwise. Buffered candidates keep arrival order.
func (l *PeerLink) bufferOrApply(cand domain.ICECandidate, apply func(domain.ICECandidate) error) error {
	l.mu.Lock()
	if !l.remoteDescSet {
		l.pendingCandidates = append(l.pendingCandidates, cand)
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()
	return apply(cand)
}

// drainPending returns the buffered candidates in arrival order and clears
// the buffer. Caller must hold l.mu.
func (l *PeerLink) drainPendingLocked() []domain.ICECandidate {
	pending := l.pendingCandidates
	l.pendingCandidates = nil
	return pending
}

// close tears the link down. Idempotent: closing a closed link is a no-op.
func (l *PeerLink) close() {
	l.mu.Lock()
	if l.state == domain.LinkClosed {
		l.mu.Unlock()
		return
	}
	l.state = domain.LinkClosed
	l.pendingCandidates = nil
	l.mu.Unlock()

	if l.aggregator != nil {
		l.aggregator.stop()
	}
	l.transport.Close()
}
