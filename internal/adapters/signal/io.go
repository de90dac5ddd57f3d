package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dkeye/soupvoice/internal/core"
	"github.com/dkeye/soupvoice/internal/domain"
	"github.com/dkeye/soupvoice/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.Settings.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			ctl.writeClose(c)
			return
		case data, ok := <-c.send:
			if !ok {
				ctl.writeClose(c)
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Settings.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.Settings.WriteWait)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		}
	}
}

func (ctl *SignalWSController) writeClose(c *WsSignalConn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(ctl.Settings.WriteWait))
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, p *domain.Participant, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(p.Conn)).Msg("readPump closing")
		ctl.Orch.Disconnect(p.Conn)
		if ctl.Limiter != nil {
			ctl.Limiter.Forget(p.Conn)
		}
		c.Close()
		cancel()
	}()

	c.conn.SetReadLimit(ctl.Settings.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.Settings.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.Settings.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(p.Conn)).Msg("readPump read error")
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		ctl.handleSignal(p, c, data)
	}
}

func (ctl *SignalWSController) handleSignal(p *domain.Participant, c *WsSignalConn, data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(p.Conn)).Msg("bad json")
		ctl.sendError(c, protocol.CodeBadPayload, "malformed frame")
		return
	}
	if ctl.Limiter != nil && !ctl.Limiter.Allow(p.Conn) {
		ctl.sendError(c, protocol.CodeRateLimited, "slow down")
		return
	}

	switch env.Type {
	case protocol.TypeJoinMic:
		ctl.handleJoinMic(p, c, env.Data)
	case protocol.TypeLeaveMic:
		ctl.handleLeaveMic(p, c)
	case protocol.TypeMicStatus:
		ctl.handleMicStatus(p, c, env.Data)
	case protocol.TypeSpeaking:
		ctl.handleSpeaking(p, c, env.Data)
	case protocol.TypeOffer, protocol.TypeAnswer, protocol.TypeICECandidate:
		ctl.handleRelay(p, env.Type, env.Data)
	case protocol.TypePing:
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		ctl.sendError(c, protocol.CodeUnknownType, env.Type)
	}
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, typ string, v any) {
	b, err := protocol.Encode(typ, v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(core.Frame(b))
}

func (ctl *SignalWSController) sendError(c *WsSignalConn, code, message string) {
	ctl.sendJSON(c, protocol.TypeError, protocol.Error{Code: code, Message: message})
}

// replyErr turns an orchestrator error into an error frame.
func (ctl *SignalWSController) replyErr(p *domain.Participant, c *WsSignalConn, op string, err error) {
	switch {
	case errors.Is(err, core.ErrInvalidPosition):
		ctl.sendError(c, protocol.CodeInvalidPosition, err.Error())
	case errors.Is(err, core.ErrSlotOccupied):
		ctl.sendError(c, protocol.CodeSlotOccupied, err.Error())
	case errors.Is(err, core.ErrParticipantNotFound):
		ctl.sendError(c, protocol.CodeNotInRoom, err.Error())
	default:
		log.Error().Err(err).Str("module", "signal").Str("conn", string(p.Conn)).Str("op", op).Msg("signal op failed")
	}
}
