package orch

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/soupvoice/internal/app"
	"github.com/dkeye/soupvoice/internal/core"
	"github.com/dkeye/soupvoice/internal/domain"
	"github.com/rs/zerolog/log"
)

// a connect can race the delete-on-empty of the same room id
const maxAdmitAttempts = 3

// Connect admits sess into roomID, creating the room on first use. A previous
// live connection of the same user is retired: it stops being routable and its
// transport is closed after it got the superseded frame.
func (o *Orchestrator) Connect(roomID domain.RoomID, sess core.MemberSession) error {
	p := sess.Meta()
	for attempt := 1; ; attempt++ {
		room := o.Rooms.GetOrCreate(roomID)
		res, err := room.Admit(sess)
		if errors.Is(err, core.ErrRoomClosed) && attempt < maxAdmitAttempts {
			o.Rooms.Release(roomID, room)
			continue
		}
		if err != nil {
			return fmt.Errorf("admit %s into %s: %w", p.Conn, roomID, err)
		}

		o.Registry.Bind(roomID, sess)
		if res.Superseded != nil {
			old := res.Superseded.Meta().Conn
			o.retire(res.Superseded)
			o.mirror("left", roomID, func(ctx context.Context, m PresenceMirror) error {
				return m.Left(ctx, roomID, old)
			})
		}
		snapshot := *p
		o.mirror("joined", roomID, func(ctx context.Context, m PresenceMirror) error {
			return m.Joined(ctx, roomID, snapshot)
		})
		o.handleDropped(room, res.PublishResult)
		log.Info().Str("module", "orch").Str("room", string(roomID)).Str("conn", string(p.Conn)).
			Str("user", string(p.User.ID)).Str("nickname", p.User.Nickname).Msg("connected")
		return nil
	}
}

// Disconnect is idempotent; retired and unknown connections are ignored.
func (o *Orchestrator) Disconnect(conn domain.ConnID) {
	roomID, _, ok := o.Registry.RoomOf(conn)
	if !ok || !o.Registry.Unbind(conn) {
		return
	}
	o.forget(conn)

	room, ok := o.Rooms.Get(roomID)
	if !ok {
		return
	}
	res := room.Remove(conn)
	if !res.Removed {
		return
	}
	if res.Empty {
		o.Rooms.Release(roomID, room)
	}
	o.mirror("left", roomID, func(ctx context.Context, m PresenceMirror) error {
		return m.Left(ctx, roomID, conn)
	})
	o.handleDropped(room, res.PublishResult)
	log.Info().Str("module", "orch").Str("room", string(roomID)).Str("conn", string(conn)).
		Bool("room_deleted", res.Empty).Msg("disconnected")
}

// EvictRoom closes every connection of a room and deletes it.
func (o *Orchestrator) EvictRoom(roomID domain.RoomID) (int, bool) {
	room, ok := o.Rooms.Get(roomID)
	if !ok {
		return 0, false
	}
	sessions := room.Evict()
	o.Rooms.Release(roomID, room)
	conns := make([]domain.ConnID, 0, len(sessions))
	for _, ms := range sessions {
		conns = append(conns, ms.Meta().Conn)
		o.retire(ms)
	}
	o.mirror("left", roomID, func(ctx context.Context, m PresenceMirror) error {
		return m.Left(ctx, roomID, conns...)
	})
	return len(sessions), true
}

// RoomView is the room snapshot plus negotiation state among its members.
type RoomView struct {
	core.RoomSnapshot
	Negotiations []app.PairState `json:"negotiations"`
}

func (o *Orchestrator) Room(roomID domain.RoomID) (RoomView, bool) {
	room, ok := o.Rooms.Get(roomID)
	if !ok || room.Closed() {
		return RoomView{}, false
	}
	view := RoomView{RoomSnapshot: room.Snapshot(), Negotiations: []app.PairState{}}
	if o.Negotiations != nil {
		conns := make([]domain.ConnID, 0, len(view.Participants))
		for _, p := range view.Participants {
			conns = append(conns, p.ConnectionID)
		}
		view.Negotiations = o.Negotiations.PairsAmong(conns)
	}
	return view, true
}

// retire makes a session unroutable and closes its transport.
func (o *Orchestrator) retire(ms core.MemberSession) {
	conn := ms.Meta().Conn
	o.Registry.Unbind(conn)
	o.forget(conn)
	ms.Signal().Close()
}

func (o *Orchestrator) forget(conn domain.ConnID) {
	if o.Negotiations != nil {
		o.Negotiations.Forget(conn)
	}
}
