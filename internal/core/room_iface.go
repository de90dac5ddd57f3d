package core

import (
	"fmt"
	"strings"

	"github.com/dkeye/soupvoice/internal/domain"
	"github.com/dkeye/soupvoice/internal/protocol"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

func (r *PublishResult) merge(o PublishResult) {
	r.SendTo += o.SendTo
	r.Dropped = append(r.Dropped, o.Dropped...)
}

// ConflictPolicy decides what join-mic does with an occupied slot.
type ConflictPolicy int

const (
	// ConflictEvict displaces the incumbent, who drops back to no slot.
	ConflictEvict ConflictPolicy = iota
	// ConflictReject refuses the join.
	ConflictReject
)

func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "evict":
		return ConflictEvict, nil
	case "reject":
		return ConflictReject, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
}

func (p ConflictPolicy) String() string {
	if p == ConflictReject {
		return "reject"
	}
	return "evict"
}

// AdmitResult carries the connection displaced by a reconnect, if any.
type AdmitResult struct {
	PublishResult
	Superseded MemberSession
}

type RemoveResult struct {
	PublishResult
	Removed bool
	// Empty means the room closed and must be released from the manager.
	Empty bool
}

type RoomInfo struct {
	ID               domain.RoomID `json:"id"`
	ParticipantCount int           `json:"participantCount"`
	OccupiedSlots    int           `json:"occupiedSlots"`
}

type RoomSnapshot struct {
	ID           domain.RoomID          `json:"id"`
	Participants []protocol.Participant `json:"participants"`
	Slots        []*domain.Seat         `json:"slots"`
}

// RoomService is the core-facing API of a room.
// It owns the membership set and the mic table but never touches transport
// resources; every mutation and the frames it emits happen under one lock.
type RoomService interface {
	ID() domain.RoomID
	Closed() bool
	ParticipantCount() int
	Info() RoomInfo
	Snapshot() RoomSnapshot
	Lookup(conn domain.ConnID) (MemberSession, bool)

	Admit(ms MemberSession) (AdmitResult, error)
	Remove(conn domain.ConnID) RemoveResult
	Evict() []MemberSession

	JoinMic(conn domain.ConnID, pos int, policy ConflictPolicy) (PublishResult, error)
	LeaveMic(conn domain.ConnID) (PublishResult, error)
	SetMute(conn domain.ConnID, muted bool) (PublishResult, error)
	SetSpeaking(conn domain.ConnID, speaking bool) (PublishResult, error)

	CheckInvariant() error
}

// RoomManager is the process-wide room registry.
type RoomManager interface {
	// GetOrCreate never returns a closed room.
	GetOrCreate(id domain.RoomID) RoomService
	Get(id domain.RoomID) (RoomService, bool)
	List() []RoomInfo
	// Release drops id only while it still maps to room.
	Release(id domain.RoomID, room RoomService) bool
}
