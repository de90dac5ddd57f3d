package orch

import (
	"github.com/dkeye/soupvoice/internal/core"
	"github.com/dkeye/soupvoice/internal/domain"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) JoinMic(conn domain.ConnID, pos int) error {
	room, err := o.roomFor(conn)
	if err != nil {
		return err
	}
	res, err := room.JoinMic(conn, pos, o.Conflict)
	if err != nil {
		return err
	}
	log.Info().Str("module", "orch").Str("room", string(room.ID())).Str("conn", string(conn)).Int("slot", pos).Msg("join mic")
	o.handleDropped(room, res)
	return nil
}

func (o *Orchestrator) LeaveMic(conn domain.ConnID) error {
	return o.apply(conn, func(room core.RoomService) (core.PublishResult, error) {
		return room.LeaveMic(conn)
	})
}

func (o *Orchestrator) SetMute(conn domain.ConnID, muted bool) error {
	return o.apply(conn, func(room core.RoomService) (core.PublishResult, error) {
		return room.SetMute(conn, muted)
	})
}

func (o *Orchestrator) SetSpeaking(conn domain.ConnID, speaking bool) error {
	return o.apply(conn, func(room core.RoomService) (core.PublishResult, error) {
		return room.SetSpeaking(conn, speaking)
	})
}

func (o *Orchestrator) apply(conn domain.ConnID, fn func(core.RoomService) (core.PublishResult, error)) error {
	room, err := o.roomFor(conn)
	if err != nil {
		return err
	}
	res, err := fn(room)
	if err != nil {
		return err
	}
	o.handleDropped(room, res)
	return nil
}
