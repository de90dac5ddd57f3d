package core

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/dkeye/soupvoice/internal/domain"
)

var errFull = errors.New("full")

type fakeSignal struct {
	mu     sync.Mutex
	frames [][]byte
	full   bool
	closed bool
}

func (f *fakeSignal) TrySend(fr Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return errFull
	}
	f.frames = append(f.frames, append([]byte(nil), fr...))
	return nil
}

func (f *fakeSignal) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (f *fakeSignal) take(t *testing.T) []frame {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]frame, 0, len(f.frames))
	for _, b := range f.frames {
		var fr frame
		if err := json.Unmarshal(b, &fr); err != nil {
			t.Fatalf("bad frame %s: %v", b, err)
		}
		out = append(out, fr)
	}
	f.frames = nil
	return out
}

func types(frames []frame) []string {
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = f.Type
	}
	return out
}

func count(frames []frame, typ string) int {
	n := 0
	for _, f := range frames {
		if f.Type == typ {
			n++
		}
	}
	return n
}

func newMember(t *testing.T, conn, user, nick string) (MemberSession, *fakeSignal) {
	t.Helper()
	u, err := domain.NewUser(user, nick)
	if err != nil {
		t.Fatal(err)
	}
	sig := &fakeSignal{}
	return NewMemberSession(domain.NewParticipant(domain.ConnID(conn), u), sig), sig
}

func admit(t *testing.T, r RoomService, conn, user, nick string) (MemberSession, *fakeSignal) {
	t.Helper()
	ms, sig := newMember(t, conn, user, nick)
	if _, err := r.Admit(ms); err != nil {
		t.Fatalf("admit %s: %v", conn, err)
	}
	return ms, sig
}

func mustInvariant(t *testing.T, r RoomService) {
	t.Helper()
	if err := r.CheckInvariant(); err != nil {
		t.Fatal(err)
	}
}
