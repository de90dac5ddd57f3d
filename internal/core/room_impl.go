package core

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dkeye/soupvoice/internal/domain"
	"github.com/dkeye/soupvoice/internal/protocol"
	"github.com/rs/zerolog/log"
)

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	id     domain.RoomID
	mu     sync.RWMutex
	byConn map[domain.ConnID]MemberSession
	byUser map[domain.UserID]domain.ConnID
	mics   domain.MicTable
	closed bool
}

func NewRoomService(id domain.RoomID) RoomService {
	return &roomImpl{
		id:     id,
		byConn: make(map[domain.ConnID]MemberSession),
		byUser: make(map[domain.UserID]domain.ConnID),
	}
}

func (r *roomImpl) ID() domain.RoomID { return r.id }

func (r *roomImpl) Closed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

func (r *roomImpl) ParticipantCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}

func (r *roomImpl) Info() RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RoomInfo{ID: r.id, ParticipantCount: len(r.byConn), OccupiedSlots: r.mics.Occupied()}
}

func (r *roomImpl) Snapshot() RoomSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RoomSnapshot{ID: r.id, Participants: r.participants(""), Slots: r.mics.Snapshot()}
}

func (r *roomImpl) Lookup(conn domain.ConnID) (MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ms, ok := r.byConn[conn]
	return ms, ok
}

// Admit registers ms. A live connection of the same user is superseded first:
// it leaves with one user-left, then ms joins with one user-joined.
func (r *roomImpl) Admit(ms MemberSession) (AdmitResult, error) {
	p := ms.Meta()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return AdmitResult{}, ErrRoomClosed
	}

	var res AdmitResult
	if oldConn, ok := r.byUser[p.User.ID]; ok {
		old := r.byConn[oldConn]
		om := old.Meta()
		released := r.detach(om)
		res.Superseded = old
		res.merge(r.broadcast(protocol.TypeUserLeft, userEvent(om), ""))
		if released {
			res.merge(r.broadcastMics())
		}
		_ = r.send(old, protocol.TypeSuperseded, nil)
		log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("user", string(p.User.ID)).
			Str("old_conn", string(oldConn)).Str("conn", string(p.Conn)).Msg("connection superseded")
	}

	r.byConn[p.Conn] = ms
	r.byUser[p.User.ID] = p.Conn
	res.merge(r.broadcast(protocol.TypeUserJoined, userEvent(p), p.Conn))

	var syncErr error
	for _, f := range []struct {
		typ string
		v   any
	}{
		{protocol.TypeWelcome, protocol.Welcome{ConnectionID: p.Conn, RoomID: r.id}},
		{protocol.TypeRoomUsers, r.participants(p.Conn)},
		{protocol.TypeMicPositions, protocol.MicPositions{Slots: r.mics.Snapshot()}},
	} {
		if err := r.send(ms, f.typ, f.v); err != nil && syncErr == nil {
			syncErr = err
		}
	}
	if syncErr != nil {
		res.Dropped = append(res.Dropped, ms)
	}
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("conn", string(p.Conn)).
		Str("user", string(p.User.ID)).Int("participants", len(r.byConn)).Msg("participant admitted")
	return res, nil
}

func (r *roomImpl) Remove(conn domain.ConnID) RemoveResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	ms, ok := r.byConn[conn]
	if !ok {
		return RemoveResult{}
	}
	p := ms.Meta()
	released := r.detach(p)
	res := RemoveResult{Removed: true}
	if len(r.byConn) == 0 {
		r.closed = true
		res.Empty = true
		log.Info().Str("module", "core.room").Str("room", string(r.id)).Msg("room empty, closed")
		return res
	}
	if released {
		res.merge(r.broadcastMics())
	}
	res.merge(r.broadcast(protocol.TypeUserLeft, userEvent(p), ""))
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("conn", string(conn)).
		Int("participants", len(r.byConn)).Msg("participant removed")
	return res
}

// Evict closes the room and hands every session back for the caller to close.
func (r *roomImpl) Evict() []MemberSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]MemberSession, 0, len(r.byConn))
	for _, ms := range r.byConn {
		_ = r.send(ms, protocol.TypeRoomClosed, nil)
		ms.Meta().MicPosition = domain.NoMic
		out = append(out, ms)
	}
	r.byConn = make(map[domain.ConnID]MemberSession)
	r.byUser = make(map[domain.UserID]domain.ConnID)
	r.mics = domain.MicTable{}
	r.closed = true
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Int("evicted", len(out)).Msg("room evicted")
	return out
}

func (r *roomImpl) JoinMic(conn domain.ConnID, pos int, policy ConflictPolicy) (PublishResult, error) {
	if !domain.ValidMicPosition(pos) {
		return PublishResult{}, fmt.Errorf("%w: %d", ErrInvalidPosition, pos)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ms, ok := r.byConn[conn]
	if !ok {
		return PublishResult{}, ErrParticipantNotFound
	}
	p := ms.Meta()

	if seat := r.mics[pos]; seat != nil && seat.Conn != conn {
		if policy == ConflictReject {
			return PublishResult{}, fmt.Errorf("%w: %d", ErrSlotOccupied, pos)
		}
		if inc, ok := r.byConn[seat.Conn]; ok {
			inc.Meta().MicPosition = domain.NoMic
		}
		log.Info().Str("module", "core.room").Str("room", string(r.id)).Int("slot", pos).
			Str("evicted", string(seat.Conn)).Str("conn", string(conn)).Msg("mic slot taken over")
	}
	if p.OnMic() && p.MicPosition != pos {
		r.mics[p.MicPosition] = nil
	}
	r.mics[pos] = domain.SeatOf(p)
	p.MicPosition = pos
	return r.broadcastMics(), nil
}

func (r *roomImpl) LeaveMic(conn domain.ConnID) (PublishResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ms, ok := r.byConn[conn]
	if !ok {
		return PublishResult{}, ErrParticipantNotFound
	}
	p := ms.Meta()
	if !p.OnMic() {
		return PublishResult{}, nil
	}
	r.mics[p.MicPosition] = nil
	p.MicPosition = domain.NoMic
	return r.broadcastMics(), nil
}

func (r *roomImpl) SetMute(conn domain.ConnID, muted bool) (PublishResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ms, ok := r.byConn[conn]
	if !ok {
		return PublishResult{}, ErrParticipantNotFound
	}
	p := ms.Meta()
	p.IsMuted = muted
	return r.broadcast(protocol.TypeMicStatus, protocol.MicStatus{
		ConnectionID: p.Conn,
		UserID:       p.User.ID,
		Nickname:     p.User.Nickname,
		IsMuted:      muted,
	}, ""), nil
}

func (r *roomImpl) SetSpeaking(conn domain.ConnID, speaking bool) (PublishResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ms, ok := r.byConn[conn]
	if !ok {
		return PublishResult{}, ErrParticipantNotFound
	}
	p := ms.Meta()
	p.IsSpeaking = speaking
	return r.broadcast(protocol.TypeSpeaking, protocol.Speaking{
		ConnectionID: p.Conn,
		UserID:       p.User.ID,
		Nickname:     p.User.Nickname,
		IsSpeaking:   speaking,
	}, ""), nil
}

// CheckInvariant verifies that slots and participants agree with each other.
func (r *roomImpl) CheckInvariant() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[domain.UserID]int, domain.MicSlots)
	for i, seat := range r.mics {
		if seat == nil {
			continue
		}
		if prev, dup := seen[seat.UserID]; dup {
			return fmt.Errorf("user %s in slots %d and %d", seat.UserID, prev, i)
		}
		seen[seat.UserID] = i
		ms, ok := r.byConn[seat.Conn]
		if !ok {
			return fmt.Errorf("slot %d held by unknown connection %s", i, seat.Conn)
		}
		if ms.Meta().MicPosition != i {
			return fmt.Errorf("slot %d held by %s whose position is %d", i, seat.Conn, ms.Meta().MicPosition)
		}
	}
	for conn, ms := range r.byConn {
		p := ms.Meta()
		if r.byUser[p.User.ID] != conn {
			return fmt.Errorf("user %s indexed to %s, not %s", p.User.ID, r.byUser[p.User.ID], conn)
		}
		if !p.OnMic() {
			continue
		}
		if !domain.ValidMicPosition(p.MicPosition) {
			return fmt.Errorf("connection %s has position %d", conn, p.MicPosition)
		}
		if seat := r.mics[p.MicPosition]; seat == nil || seat.Conn != conn {
			return fmt.Errorf("connection %s claims slot %d it does not hold", conn, p.MicPosition)
		}
	}
	if len(r.byUser) != len(r.byConn) {
		return fmt.Errorf("%d users indexed for %d connections", len(r.byUser), len(r.byConn))
	}
	return nil
}

// detach drops p from the indexes and frees its slot. Caller holds mu.
func (r *roomImpl) detach(p *domain.Participant) bool {
	delete(r.byConn, p.Conn)
	if r.byUser[p.User.ID] == p.Conn {
		delete(r.byUser, p.User.ID)
	}
	if !p.OnMic() {
		return false
	}
	if seat := r.mics[p.MicPosition]; seat != nil && seat.Conn == p.Conn {
		r.mics[p.MicPosition] = nil
	}
	p.MicPosition = domain.NoMic
	return true
}

func (r *roomImpl) participants(exclude domain.ConnID) []protocol.Participant {
	out := make([]protocol.Participant, 0, len(r.byConn))
	for conn, ms := range r.byConn {
		if conn == exclude {
			continue
		}
		p := ms.Meta()
		out = append(out, protocol.Participant{
			ConnectionID: p.Conn,
			UserID:       p.User.ID,
			Nickname:     p.User.Nickname,
			MicPosition:  p.MicPosition,
			IsMuted:      p.IsMuted,
			IsSpeaking:   p.IsSpeaking,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectionID < out[j].ConnectionID })
	return out
}

func (r *roomImpl) broadcastMics() PublishResult {
	return r.broadcast(protocol.TypeMicPositions, protocol.MicPositions{Slots: r.mics.Snapshot()}, "")
}

// broadcast encodes once and fans out to everyone but exclude.
func (r *roomImpl) broadcast(typ string, v any, exclude domain.ConnID) PublishResult {
	res := PublishResult{}
	frame, err := protocol.Encode(typ, v)
	if err != nil {
		log.Error().Err(err).Str("module", "core.room").Str("type", typ).Msg("encode broadcast")
		return res
	}
	for conn, ms := range r.byConn {
		if conn == exclude {
			continue
		}
		if err := ms.Signal().TrySend(frame); err != nil {
			res.Dropped = append(res.Dropped, ms)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("room", string(r.id)).Str("type", typ).
		Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *roomImpl) send(ms MemberSession, typ string, v any) error {
	frame, err := protocol.Encode(typ, v)
	if err != nil {
		return err
	}
	return ms.Signal().TrySend(frame)
}

func userEvent(p *domain.Participant) protocol.UserEvent {
	return protocol.UserEvent{ConnectionID: p.Conn, UserID: p.User.ID, Nickname: p.User.Nickname}
}
