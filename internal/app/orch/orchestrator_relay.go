package orch

import (
	"encoding/json"

	"github.com/dkeye/soupvoice/internal/core"
	"github.com/dkeye/soupvoice/internal/domain"
	"github.com/dkeye/soupvoice/internal/protocol"
	"github.com/rs/zerolog/log"
)

// RelayResult indicates the outcome of a relay attempt
type RelayResult int

const (
	RelayDelivered RelayResult = iota
	RelayDropped
	RelayTargetNotFound
	RelaySenderUnknown
	RelayInvalidType
	RelayBadPayload
)

func (r RelayResult) String() string {
	switch r {
	case RelayDelivered:
		return "delivered"
	case RelayDropped:
		return "dropped"
	case RelayTargetNotFound:
		return "target_not_found"
	case RelaySenderUnknown:
		return "sender_unknown"
	case RelayInvalidType:
		return "invalid_type"
	}
	return "bad_payload"
}

// Relay forwards data verbatim to the connection named by its "to" field.
// The target must be in the sender's room. Nothing is buffered or retried; a
// target with a full send buffer is handed to the backpressure policy.
func (o *Orchestrator) Relay(kind string, from domain.ConnID, data json.RawMessage) RelayResult {
	if !protocol.IsRelayType(kind) {
		return RelayInvalidType
	}
	var target protocol.RelayTarget
	if err := json.Unmarshal(data, &target); err != nil || target.To == "" {
		return RelayBadPayload
	}
	room, err := o.roomFor(from)
	if err != nil {
		return RelaySenderUnknown
	}
	sender, ok := room.Lookup(from)
	if !ok {
		return RelaySenderUnknown
	}
	if target.To == from {
		return RelayTargetNotFound
	}
	dst, ok := room.Lookup(target.To)
	if !ok {
		return RelayTargetNotFound
	}

	su := sender.Meta().User
	frame, err := protocol.EncodeRelay(kind, from, su.ID, su.Nickname, data)
	if err != nil {
		return RelayBadPayload
	}
	if err := dst.Signal().TrySend(frame); err != nil {
		log.Debug().Err(err).Str("module", "orch").Str("from", string(from)).Str("to", string(target.To)).
			Str("type", kind).Msg("relay dropped")
		o.handleDropped(room, core.PublishResult{Dropped: []core.MemberSession{dst}})
		return RelayDropped
	}

	if o.Negotiations != nil {
		if state, ok := o.Negotiations.Observe(kind, from, target.To); !ok {
			log.Warn().Str("module", "orch").Str("from", string(from)).Str("to", string(target.To)).
				Str("type", kind).Str("state", state.String()).Msg("out-of-order signaling")
		}
	}
	return RelayDelivered
}
