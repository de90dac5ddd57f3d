package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dkeye/soupvoice/internal/core"
)

var ErrUnknownBackpressure = errors.New("unknown backpressure policy")

type BackpressureAction int

const (
	// KickMember closes the slow connection; the client reconnects and resyncs.
	KickMember BackpressureAction = iota
	// DropFrame keeps the connection and loses the frame that did not fit.
	DropFrame
)

func (a BackpressureAction) String() string {
	if a == DropFrame {
		return "drop"
	}
	return "kick"
}

// Policy decides what happens to a member whose send buffer is full.
type Policy interface {
	OnBackPressure(room core.RoomService, member core.MemberSession) BackpressureAction
}

// SimplePolicy kicks slow members; they reconnect and resync.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(room core.RoomService, member core.MemberSession) BackpressureAction {
	return KickMember
}

// DropPolicy never disconnects; slow members miss frames until they catch up.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(room core.RoomService, member core.MemberSession) BackpressureAction {
	return DropFrame
}

// ParsePolicy maps the signal.backpressure setting to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "kick":
		return SimplePolicy{}, nil
	case "drop":
		return DropPolicy{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackpressure, s)
}
