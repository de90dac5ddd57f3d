package signal

import (
	"encoding/json"

	"github.com/dkeye/soupvoice/internal/domain"
	"github.com/dkeye/soupvoice/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleJoinMic(p *domain.Participant, c *WsSignalConn, data json.RawMessage) {
	var req protocol.JoinMicRequest
	if err := json.Unmarshal(data, &req); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad join-mic payload")
		ctl.sendError(c, protocol.CodeBadPayload, "join-mic needs a position")
		return
	}
	pos, ok := req.Slot()
	if !ok {
		ctl.sendError(c, protocol.CodeBadPayload, "join-mic needs a position")
		return
	}
	if err := ctl.Orch.JoinMic(p.Conn, pos); err != nil {
		ctl.replyErr(p, c, protocol.TypeJoinMic, err)
	}
}

func (ctl *SignalWSController) handleLeaveMic(p *domain.Participant, c *WsSignalConn) {
	if err := ctl.Orch.LeaveMic(p.Conn); err != nil {
		ctl.replyErr(p, c, protocol.TypeLeaveMic, err)
	}
}

func (ctl *SignalWSController) handleMicStatus(p *domain.Participant, c *WsSignalConn, data json.RawMessage) {
	var req protocol.MicStatusRequest
	err := json.Unmarshal(data, &req)
	muted, ok := req.Muted()
	if err != nil || !ok {
		ctl.sendError(c, protocol.CodeBadPayload, "mic-status-changed needs isMuted")
		return
	}
	if err := ctl.Orch.SetMute(p.Conn, muted); err != nil {
		ctl.replyErr(p, c, protocol.TypeMicStatus, err)
	}
}

func (ctl *SignalWSController) handleSpeaking(p *domain.Participant, c *WsSignalConn, data json.RawMessage) {
	var req protocol.SpeakingRequest
	err := json.Unmarshal(data, &req)
	speaking, ok := req.Speaking()
	if err != nil || !ok {
		ctl.sendError(c, protocol.CodeBadPayload, "speaking-changed needs isSpeaking")
		return
	}
	if err := ctl.Orch.SetSpeaking(p.Conn, speaking); err != nil {
		ctl.replyErr(p, c, protocol.TypeSpeaking, err)
	}
}
