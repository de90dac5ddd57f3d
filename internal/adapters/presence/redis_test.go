package presence

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dkeye/soupvoice/internal/domain"
	"github.com/redis/go-redis/v9"
)

func TestKeys(t *testing.T) {
	if got := peersKey("42"); got != "room:42:peers" {
		t.Fatalf("peersKey = %s", got)
	}
	if got := peerKey("42", "c1"); got != "room:42:peer:c1" {
		t.Fatalf("peerKey = %s", got)
	}
}

func TestNewRedisMirrorUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := NewRedisMirror(ctx, &redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	}, time.Minute)
	if err == nil {
		t.Fatal("expected connection error")
	}
}

func newTestMirror(t *testing.T, ttl time.Duration) (*RedisMirror, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	m, err := NewRedisMirror(context.Background(), &redis.Options{Addr: mr.Addr()}, ttl)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m, mr
}

func participant(t *testing.T, conn, user string) domain.Participant {
	t.Helper()
	u, err := domain.NewUser(user, "nick-"+user)
	if err != nil {
		t.Fatal(err)
	}
	p := domain.NewParticipant(domain.ConnID(conn), u)
	p.JoinedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return *p
}

func members(t *testing.T, mr *miniredis.Miniredis, key string) []string {
	t.Helper()
	if !mr.Exists(key) {
		return nil
	}
	got, err := mr.Members(key)
	if err != nil {
		t.Fatal(err)
	}
	return got
}

func TestJoinedWritesPeer(t *testing.T) {
	tests := []struct {
		name string
		ttl  time.Duration
	}{
		{"with ttl", time.Hour},
		{"no ttl", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, mr := newTestMirror(t, tt.ttl)
			if err := m.Joined(context.Background(), "42", participant(t, "c1", "u1")); err != nil {
				t.Fatal(err)
			}
			if got := members(t, mr, roomsKey); !reflect.DeepEqual(got, []string{"42"}) {
				t.Fatalf("rooms = %v", got)
			}
			if got := members(t, mr, "room:42:peers"); !reflect.DeepEqual(got, []string{"c1"}) {
				t.Fatalf("peers = %v", got)
			}
			hash := "room:42:peer:c1"
			if mr.HGet(hash, "userId") != "u1" || mr.HGet(hash, "nickname") != "nick-u1" {
				t.Fatalf("hash = %s %s", mr.HGet(hash, "userId"), mr.HGet(hash, "nickname"))
			}
			if got := mr.HGet(hash, "joinedAt"); got != "2024-05-01T12:00:00Z" {
				t.Fatalf("joinedAt = %s", got)
			}
			if mr.TTL(hash) != tt.ttl || mr.TTL("room:42:peers") != tt.ttl {
				t.Fatalf("ttl = %v %v, want %v", mr.TTL(hash), mr.TTL("room:42:peers"), tt.ttl)
			}
		})
	}
}

func TestJoinedExpires(t *testing.T) {
	m, mr := newTestMirror(t, time.Minute)
	if err := m.Joined(context.Background(), "42", participant(t, "c1", "u1")); err != nil {
		t.Fatal(err)
	}
	mr.FastForward(2 * time.Minute)
	if mr.Exists("room:42:peer:c1") || mr.Exists("room:42:peers") {
		t.Fatal("stale presence survived its ttl")
	}
}

func TestLeftKeepsOtherPeers(t *testing.T) {
	ctx := context.Background()
	m, mr := newTestMirror(t, time.Hour)
	for _, p := range []domain.Participant{participant(t, "c1", "u1"), participant(t, "c2", "u2")} {
		if err := m.Joined(ctx, "42", p); err != nil {
			t.Fatal(err)
		}
	}

	if err := m.Left(ctx, "42", "c1"); err != nil {
		t.Fatal(err)
	}
	if mr.Exists("room:42:peer:c1") {
		t.Fatal("peer hash kept")
	}
	if got := members(t, mr, "room:42:peers"); !reflect.DeepEqual(got, []string{"c2"}) {
		t.Fatalf("peers = %v", got)
	}
	if mr.HGet("room:42:peer:c2", "userId") != "u2" {
		t.Fatal("remaining peer touched")
	}
	if got := members(t, mr, roomsKey); !reflect.DeepEqual(got, []string{"42"}) {
		t.Fatalf("rooms = %v", got)
	}

	if err := m.Left(ctx, "42", "c2"); err != nil {
		t.Fatal(err)
	}
	if mr.Exists("room:42:peers") || mr.Exists("room:42:peer:c2") {
		t.Fatal("empty room keys kept")
	}
	if got := members(t, mr, roomsKey); len(got) != 0 {
		t.Fatalf("rooms = %v", got)
	}
}

func TestLeftManyClearsRoom(t *testing.T) {
	ctx := context.Background()
	m, mr := newTestMirror(t, time.Hour)
	for _, p := range []domain.Participant{participant(t, "c1", "u1"), participant(t, "c2", "u2")} {
		if err := m.Joined(ctx, "42", p); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.Joined(ctx, "7", participant(t, "c3", "u3")); err != nil {
		t.Fatal(err)
	}

	if err := m.Left(ctx, "42", "c1", "c2"); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"room:42:peers", "room:42:peer:c1", "room:42:peer:c2"} {
		if mr.Exists(key) {
			t.Fatalf("%s kept", key)
		}
	}
	if got := members(t, mr, roomsKey); !reflect.DeepEqual(got, []string{"7"}) {
		t.Fatalf("rooms = %v", got)
	}
	if err := m.Left(ctx, "42"); err != nil {
		t.Fatal(err)
	}
}

// A room id reused right after deletion: the departure of the old room's last
// member reaches the mirror after the first member of the new room joined.
func TestLateLeftKeepsSuccessorRoom(t *testing.T) {
	ctx := context.Background()
	m, mr := newTestMirror(t, time.Hour)
	if err := m.Joined(ctx, "42", participant(t, "c1", "u1")); err != nil {
		t.Fatal(err)
	}
	if err := m.Joined(ctx, "42", participant(t, "c2", "u2")); err != nil {
		t.Fatal(err)
	}
	if err := m.Left(ctx, "42", "c1"); err != nil {
		t.Fatal(err)
	}

	if got := members(t, mr, "room:42:peers"); !reflect.DeepEqual(got, []string{"c2"}) {
		t.Fatalf("peers = %v", got)
	}
	if mr.HGet("room:42:peer:c2", "nickname") != "nick-u2" {
		t.Fatal("successor peer wiped")
	}
	if got := members(t, mr, roomsKey); !reflect.DeepEqual(got, []string{"42"}) {
		t.Fatalf("rooms = %v", got)
	}
}

func TestWritesFailWhenServerGone(t *testing.T) {
	m, mr := newTestMirror(t, time.Hour)
	mr.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.Joined(ctx, "42", participant(t, "c1", "u1")); err == nil {
		t.Fatal("joined succeeded without a server")
	}
	if err := m.Left(ctx, "42", "c1"); err == nil {
		t.Fatal("left succeeded without a server")
	}
}
