package signal

import (
	"encoding/json"

	"github.com/dkeye/soupvoice/internal/adapters/rtc"
	"github.com/dkeye/soupvoice/internal/app/orch"
	"github.com/dkeye/soupvoice/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// handleRelay forwards offer/answer/ice-candidate. Failures are never
// reported back to the sender. A description whose type disagrees with the
// frame type is logged and still relayed; the peers own the negotiation.
func (ctl *SignalWSController) handleRelay(p *domain.Participant, kind string, data json.RawMessage) {
	sum, inspectErr := rtc.Inspect(kind, data)
	if inspectErr == nil {
		if err := sum.Matches(kind); err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("conn", string(p.Conn)).
				Str("type", kind).Msg("relay anomaly")
		}
	}
	if ev := log.Debug(); ev.Enabled() {
		ev = ev.Str("module", "signal").Str("conn", string(p.Conn)).Str("type", kind)
		if inspectErr == nil {
			ev = ev.Dict("payload", zerolog.Dict().
				Str("sdp_type", sum.SDPType).
				Int("media", sum.Media).
				Str("sdp_mid", sum.SDPMid))
		} else {
			ev = ev.AnErr("inspect", inspectErr)
		}
		ev.Msg("relay")
	}

	res := ctl.Orch.Relay(kind, p.Conn, data)
	if res != orch.RelayDelivered {
		log.Debug().Str("module", "signal").Str("conn", string(p.Conn)).Str("type", kind).
			Str("result", res.String()).Msg("relay not delivered")
	}
}
