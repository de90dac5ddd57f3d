package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestNewUser(t *testing.T) {
	tests := []struct {
		name     string
		id       string
		nickname string
		wantErr  error
		wantNick string
	}{
		{"ok", "u1", "Alice", nil, "Alice"},
		{"trimmed", "  u1 ", "  Bob  ", nil, "Bob"},
		{"empty id", "  ", "Alice", ErrUserIDEmpty, ""},
		{"long id", strings.Repeat("x", MaxUserIDLen+1), "Alice", ErrUserIDTooLong, ""},
		{"empty nickname", "u1", "   ", ErrNicknameEmpty, ""},
		{"long nickname", "u1", strings.Repeat("海", MaxNicknameLen+1), ErrNicknameTooLong, ""},
		{"nickname at limit", "u1", strings.Repeat("海", MaxNicknameLen), nil, strings.Repeat("海", MaxNicknameLen)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := NewUser(tt.id, tt.nickname)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if err == nil && u.Nickname != tt.wantNick {
				t.Fatalf("nickname = %q, want %q", u.Nickname, tt.wantNick)
			}
		})
	}
}

func TestParseRoomID(t *testing.T) {
	if id, err := ParseRoomID(" 42 "); err != nil || id != "42" {
		t.Fatalf("ParseRoomID = %q, %v", id, err)
	}
	if _, err := ParseRoomID(""); !errors.Is(err, ErrRoomIDEmpty) {
		t.Fatalf("empty: %v", err)
	}
	if _, err := ParseRoomID(strings.Repeat("r", MaxRoomIDLen+1)); !errors.Is(err, ErrRoomIDTooLong) {
		t.Fatalf("long: %v", err)
	}
}

func TestNewConnIDUnique(t *testing.T) {
	seen := make(map[ConnID]struct{})
	for i := 0; i < 1000; i++ {
		id := NewConnID()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = struct{}{}
	}
}

func TestNewParticipantDefaults(t *testing.T) {
	u, _ := NewUser("u1", "Alice")
	p := NewParticipant("c1", u)
	if p.MicPosition != NoMic || p.OnMic() {
		t.Fatalf("position = %d", p.MicPosition)
	}
	if !p.IsMuted || p.IsSpeaking {
		t.Fatalf("muted=%v speaking=%v", p.IsMuted, p.IsSpeaking)
	}
}

func TestMicTableSnapshotCopies(t *testing.T) {
	u, _ := NewUser("u1", "Alice")
	p := NewParticipant("c1", u)
	var tbl MicTable
	tbl[3] = SeatOf(p)

	snap := tbl.Snapshot()
	if len(snap) != MicSlots || snap[3] == nil || snap[0] != nil {
		t.Fatalf("snapshot = %v", snap)
	}
	snap[3].Nickname = "changed"
	if tbl[3].Nickname != "Alice" {
		t.Fatal("snapshot aliases table")
	}
	if tbl.Occupied() != 1 {
		t.Fatalf("occupied = %d", tbl.Occupied())
	}
}

func TestValidMicPosition(t *testing.T) {
	for pos, want := range map[int]bool{-1: false, 0: true, 7: true, 8: false} {
		if got := ValidMicPosition(pos); got != want {
			t.Errorf("ValidMicPosition(%d) = %v", pos, got)
		}
	}
}
