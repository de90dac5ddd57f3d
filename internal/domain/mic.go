package domain

// MicSlots is the fixed number of mic positions per room.
const MicSlots = 8

// Seat is the occupant of one mic slot.
type Seat struct {
	UserID   UserID `json:"userId"`
	Nickname string `json:"nickname"`
	Conn     ConnID `json:"connectionId"`
}

// MicTable maps slot index to occupant; nil means empty.
type MicTable [MicSlots]*Seat

func ValidMicPosition(pos int) bool { return pos >= 0 && pos < MicSlots }

// Snapshot copies the table so callers never alias room state.
func (t *MicTable) Snapshot() []*Seat {
	out := make([]*Seat, MicSlots)
	for i, s := range t {
		if s != nil {
			cp := *s
			out[i] = &cp
		}
	}
	return out
}

func (t *MicTable) Occupied() int {
	n := 0
	for _, s := range t {
		if s != nil {
			n++
		}
	}
	return n
}

func SeatOf(p *Participant) *Seat {
	return &Seat{UserID: p.User.ID, Nickname: p.User.Nickname, Conn: p.Conn}
}
