package core

import "errors"

var (
	ErrRoomClosed          = errors.New("room closed")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrInvalidPosition     = errors.New("invalid mic position")
	ErrSlotOccupied        = errors.New("mic slot occupied")
	ErrUnknownPolicy       = errors.New("unknown conflict policy")
)
