package app

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/soupvoice/internal/domain"
	"github.com/dkeye/soupvoice/internal/protocol"
	"github.com/rs/zerolog/log"
)

// NegotiationState tracks one peer pair through offer/answer/ICE.
type NegotiationState int

const (
	NegotiationIdle NegotiationState = iota
	NegotiationOfferSent
	NegotiationAnswerReceived
	NegotiationEstablished
)

func (s NegotiationState) String() string {
	switch s {
	case NegotiationOfferSent:
		return "offer-sent"
	case NegotiationAnswerReceived:
		return "answer-received"
	case NegotiationEstablished:
		return "established"
	}
	return "idle"
}

func (s NegotiationState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *NegotiationState) UnmarshalText(b []byte) error {
	for _, st := range []NegotiationState{NegotiationIdle, NegotiationOfferSent, NegotiationAnswerReceived, NegotiationEstablished} {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown negotiation state %q", b)
}

type pairKey struct{ a, b domain.ConnID }

func keyOf(x, y domain.ConnID) pairKey {
	if y < x {
		x, y = y, x
	}
	return pairKey{a: x, b: y}
}

type negotiation struct {
	state   NegotiationState
	offerer domain.ConnID
	gen     uint64
	timer   *time.Timer
}

// PairState is a read-only view of one tracked pair.
type PairState struct {
	A       domain.ConnID    `json:"a"`
	B       domain.ConnID    `json:"b"`
	Offerer domain.ConnID    `json:"offerer"`
	State   NegotiationState `json:"state"`
}

// Negotiations observes relayed signaling per peer pair. It never blocks or
// drops a relay; out-of-order messages are only reported. A pair that does not
// reach established within timeout falls back to idle.
type Negotiations struct {
	mu      sync.Mutex
	timeout time.Duration
	pairs   map[pairKey]*negotiation

	// OnTimeout, if set, runs after a pair is cancelled by the timeout.
	OnTimeout func(a, b domain.ConnID)
}

func NewNegotiations(timeout time.Duration) *Negotiations {
	return &Negotiations{timeout: timeout, pairs: make(map[pairKey]*negotiation)}
}

// Observe advances the pair state for one relayed message. ok is false when
// the message did not fit the current state.
func (n *Negotiations) Observe(kind string, from, to domain.ConnID) (state NegotiationState, ok bool) {
	key := keyOf(from, to)
	n.mu.Lock()
	defer n.mu.Unlock()
	neg := n.pairs[key]

	switch kind {
	case protocol.TypeOffer:
		if neg == nil {
			neg = &negotiation{}
			n.pairs[key] = neg
		}
		neg.state = NegotiationOfferSent
		neg.offerer = from
		neg.gen++
		n.arm(key, neg)
		return neg.state, true

	case protocol.TypeAnswer:
		if neg == nil || neg.state != NegotiationOfferSent || neg.offerer != to {
			return stateOf(neg), false
		}
		neg.state = NegotiationAnswerReceived
		return neg.state, true

	case protocol.TypeICECandidate:
		if neg == nil {
			return NegotiationIdle, false
		}
		if neg.state == NegotiationAnswerReceived {
			neg.state = NegotiationEstablished
			if neg.timer != nil {
				neg.timer.Stop()
				neg.timer = nil
			}
		}
		return neg.state, true
	}
	return stateOf(neg), false
}

func (n *Negotiations) State(x, y domain.ConnID) NegotiationState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return stateOf(n.pairs[keyOf(x, y)])
}

// Forget drops every pair involving conn.
func (n *Negotiations) Forget(conn domain.ConnID) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	dropped := 0
	for key, neg := range n.pairs {
		if key.a != conn && key.b != conn {
			continue
		}
		if neg.timer != nil {
			neg.timer.Stop()
		}
		delete(n.pairs, key)
		dropped++
	}
	return dropped
}

// PairsAmong lists tracked pairs whose both ends are in conns.
func (n *Negotiations) PairsAmong(conns []domain.ConnID) []PairState {
	in := make(map[domain.ConnID]struct{}, len(conns))
	for _, c := range conns {
		in[c] = struct{}{}
	}
	n.mu.Lock()
	out := make([]PairState, 0)
	for key, neg := range n.pairs {
		_, okA := in[key.a]
		_, okB := in[key.b]
		if okA && okB {
			out = append(out, PairState{A: key.a, B: key.b, Offerer: neg.offerer, State: neg.state})
		}
	}
	n.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out
}

// arm restarts the timeout for the current generation. Caller holds mu.
func (n *Negotiations) arm(key pairKey, neg *negotiation) {
	if neg.timer != nil {
		neg.timer.Stop()
		neg.timer = nil
	}
	if n.timeout <= 0 {
		return
	}
	gen := neg.gen
	neg.timer = time.AfterFunc(n.timeout, func() { n.expire(key, gen) })
}

func (n *Negotiations) expire(key pairKey, gen uint64) {
	n.mu.Lock()
	neg, ok := n.pairs[key]
	if !ok || neg.gen != gen || neg.state == NegotiationEstablished {
		n.mu.Unlock()
		return
	}
	state := neg.state
	delete(n.pairs, key)
	hook := n.OnTimeout
	n.mu.Unlock()

	log.Warn().Str("module", "app.negotiation").Str("a", string(key.a)).Str("b", string(key.b)).
		Str("state", state.String()).Dur("timeout", n.timeout).Msg("negotiation timed out")
	if hook != nil {
		hook(key.a, key.b)
	}
}

func stateOf(neg *negotiation) NegotiationState {
	if neg == nil {
		return NegotiationIdle
	}
	return neg.state
}
