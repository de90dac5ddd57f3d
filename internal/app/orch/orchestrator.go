package orch

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/soupvoice/internal/app"
	"github.com/dkeye/soupvoice/internal/core"
	"github.com/dkeye/soupvoice/internal/domain"
	"github.com/rs/zerolog/log"
)

// PresenceMirror receives presence changes after the room state settled.
// Failures are logged; the in-memory registry stays authoritative.
//
// Updates are keyed by connection only. Left removes exactly the named
// connections and drops the room entry only when no peer is left in the
// mirror, so a late Left of a deleted room cannot wipe a member who already
// joined its successor under the same id.
type PresenceMirror interface {
	Joined(ctx context.Context, room domain.RoomID, p domain.Participant) error
	Left(ctx context.Context, room domain.RoomID, conns ...domain.ConnID) error
}

type NopMirror struct{}

func (NopMirror) Joined(context.Context, domain.RoomID, domain.Participant) error { return nil }
func (NopMirror) Left(context.Context, domain.RoomID, ...domain.ConnID) error     { return nil }

const defaultMirrorTimeout = 2 * time.Second

type Orchestrator struct {
	Registry     *app.Registry
	Rooms        core.RoomManager
	Policy       app.Policy
	Negotiations *app.Negotiations
	Mirror       PresenceMirror
	Conflict     core.ConflictPolicy

	MirrorTimeout time.Duration
}

// handleDropped applies the backpressure policy once per slow member.
func (o *Orchestrator) handleDropped(room core.RoomService, res core.PublishResult) {
	if o.Policy == nil || len(res.Dropped) == 0 {
		return
	}
	seen := make(map[domain.ConnID]struct{}, len(res.Dropped))
	for _, slow := range res.Dropped {
		conn := slow.Meta().Conn
		if _, dup := seen[conn]; dup {
			continue
		}
		seen[conn] = struct{}{}
		switch o.Policy.OnBackPressure(room, slow) {
		case app.KickMember:
			log.Warn().Str("module", "orch").Str("room", string(room.ID())).Str("conn", string(conn)).Msg("kicking slow member")
			slow.Signal().Close()
		case app.DropFrame:
			log.Debug().Str("module", "orch").Str("room", string(room.ID())).Str("conn", string(conn)).Msg("frame dropped for slow member")
		}
	}
}

func (o *Orchestrator) mirror(what string, room domain.RoomID, fn func(ctx context.Context, m PresenceMirror) error) {
	if o.Mirror == nil {
		return
	}
	timeout := o.MirrorTimeout
	if timeout <= 0 {
		timeout = defaultMirrorTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := fn(ctx, o.Mirror); err != nil {
		log.Error().Err(err).Str("module", "orch").Str("room", string(room)).Str("op", what).Msg("presence mirror")
	}
}

func (o *Orchestrator) roomFor(conn domain.ConnID) (core.RoomService, error) {
	roomID, _, ok := o.Registry.RoomOf(conn)
	if !ok {
		return nil, core.ErrParticipantNotFound
	}
	room, ok := o.Rooms.Get(roomID)
	if !ok {
		return nil, core.ErrParticipantNotFound
	}
	return room, nil
}

// IsClientError reports errors caused by the request rather than the server.
func IsClientError(err error) bool {
	return errors.Is(err, core.ErrInvalidPosition) ||
		errors.Is(err, core.ErrSlotOccupied) ||
		errors.Is(err, core.ErrParticipantNotFound)
}
