package domain

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// NoMic marks a participant that holds no mic slot.
const NoMic = -1

// ConnID identifies one live signaling connection.
type ConnID string

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

func NewConnID() ConnID {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ConnID(ulid.MustNew(ulid.Timestamp(time.Now().UTC()), entropy).String())
}

// Participant is a user's presence within a room, tied to one connection.
// No transport or lifecycle logic here.
type Participant struct {
	Conn        ConnID
	User        *User
	MicPosition int
	IsMuted     bool
	IsSpeaking  bool
	JoinedAt    time.Time
}

// NewParticipant starts off the mic and muted.
func NewParticipant(conn ConnID, user *User) *Participant {
	return &Participant{
		Conn:        conn,
		User:        user,
		MicPosition: NoMic,
		IsMuted:     true,
		JoinedAt:    time.Now(),
	}
}

func (p *Participant) OnMic() bool { return p.MicPosition != NoMic }
