// Package protocol defines the JSON frames exchanged over the signaling socket.
// Every frame is {"type": ..., "data": ...}.
package protocol

import (
	"bytes"
	"encoding/json"

	"github.com/dkeye/soupvoice/internal/domain"
)

// Client -> server.
const (
	TypeJoinMic      = "join-mic"
	TypeLeaveMic     = "leave-mic"
	TypeMicStatus    = "mic-status-changed"
	TypeSpeaking     = "speaking-changed"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"
	TypePing         = "ping"
)

// Server -> client.
const (
	TypeWelcome      = "welcome"
	TypeRoomUsers    = "room-users"
	TypeUserJoined   = "user-joined"
	TypeUserLeft     = "user-left"
	TypeMicPositions = "mic-positions"
	TypeSuperseded   = "superseded"
	TypeRoomClosed   = "room-closed"
	TypePong         = "pong"
	TypeError        = "error"
)

// Error codes carried by TypeError frames.
const (
	CodeBadPayload      = "bad_payload"
	CodeUnknownType     = "unknown_type"
	CodeInvalidPosition = "invalid_position"
	CodeSlotOccupied    = "slot_occupied"
	CodeRateLimited     = "rate_limited"
	CodeNotInRoom       = "not_in_room"
)

// IsRelayType reports whether t is forwarded peer to peer.
func IsRelayType(t string) bool {
	return t == TypeOffer || t == TypeAnswer || t == TypeICECandidate
}

type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type Welcome struct {
	ConnectionID domain.ConnID `json:"connectionId"`
	RoomID       domain.RoomID `json:"roomId"`
}

// UserEvent is the payload of user-joined and user-left.
type UserEvent struct {
	ConnectionID domain.ConnID `json:"connectionId"`
	UserID       domain.UserID `json:"userId"`
	Nickname     string        `json:"nickname"`
}

type Participant struct {
	ConnectionID domain.ConnID `json:"connectionId"`
	UserID       domain.UserID `json:"userId"`
	Nickname     string        `json:"nickname"`
	MicPosition  int           `json:"micPosition"`
	IsMuted      bool          `json:"isMuted"`
	IsSpeaking   bool          `json:"isSpeaking"`
}

type MicPositions struct {
	Slots []*domain.Seat `json:"slots"`
}

type MicStatus struct {
	ConnectionID domain.ConnID `json:"connectionId"`
	UserID       domain.UserID `json:"userId"`
	Nickname     string        `json:"nickname"`
	IsMuted      bool          `json:"isMuted"`
}

type Speaking struct {
	ConnectionID domain.ConnID `json:"connectionId"`
	UserID       domain.UserID `json:"userId"`
	Nickname     string        `json:"nickname"`
	IsSpeaking   bool          `json:"isSpeaking"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// JoinMicRequest accepts both "position" and the older "micPosition" key.
type JoinMicRequest struct {
	Position    *int `json:"position"`
	MicPosition *int `json:"micPosition"`
}

func (r JoinMicRequest) Slot() (int, bool) {
	switch {
	case r.Position != nil:
		return *r.Position, true
	case r.MicPosition != nil:
		return *r.MicPosition, true
	}
	return 0, false
}

// MicStatusRequest and SpeakingRequest carry a required flag; a frame without
// it is rejected rather than read as false.
type MicStatusRequest struct {
	IsMuted *bool `json:"isMuted"`
}

func (r MicStatusRequest) Muted() (bool, bool) {
	if r.IsMuted == nil {
		return false, false
	}
	return *r.IsMuted, true
}

type SpeakingRequest struct {
	IsSpeaking *bool `json:"isSpeaking"`
}

func (r SpeakingRequest) Speaking() (bool, bool) {
	if r.IsSpeaking == nil {
		return false, false
	}
	return *r.IsSpeaking, true
}

// RelayTarget is the routing part of offer/answer/ice-candidate payloads.
type RelayTarget struct {
	To domain.ConnID `json:"to"`
}

// Encode wraps v into an envelope of type typ.
func Encode(typ string, v any) ([]byte, error) {
	env := Envelope{Type: typ}
	if v != nil {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// EncodeRelay builds a relayed frame around data without re-encoding it,
// so the receiver sees exactly the bytes the sender wrote.
// encoding/json would compact and HTML-escape a RawMessage field.
func EncodeRelay(typ string, from domain.ConnID, user domain.UserID, nickname string, data json.RawMessage) ([]byte, error) {
	head, err := json.Marshal(struct {
		Type     string        `json:"type"`
		From     domain.ConnID `json:"from"`
		UserID   domain.UserID `json:"userId"`
		Nickname string        `json:"nickname"`
	}{typ, from, user, nickname})
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	var buf bytes.Buffer
	buf.Grow(len(head) + len(data) + 9)
	buf.Write(head[:len(head)-1])
	buf.WriteString(`,"data":`)
	buf.Write(data)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Relayed is the decoded form of a frame built by EncodeRelay.
type Relayed struct {
	Type     string          `json:"type"`
	From     domain.ConnID   `json:"from"`
	UserID   domain.UserID   `json:"userId"`
	Nickname string          `json:"nickname"`
	Data     json.RawMessage `json:"data"`
}
