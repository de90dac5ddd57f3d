// Package presence mirrors room membership into Redis so other services
// (the room API, dashboards) can read who is connected. The mirror is
// write-only; the signaling server never reads it back.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/soupvoice/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const roomsKey = "rooms"

func peersKey(room domain.RoomID) string { return fmt.Sprintf("room:%s:peers", room) }

func peerKey(room domain.RoomID, conn domain.ConnID) string {
	return fmt.Sprintf("room:%s:peer:%s", room, conn)
}

// KEYS: peers set, rooms set, then one peer hash per connection.
// ARGV: room id, then the connection ids in KEYS order.
var leaveScript = redis.NewScript(`
for i = 2, #ARGV do
	redis.call('SREM', KEYS[1], ARGV[i])
	redis.call('DEL', KEYS[i + 1])
end
if redis.call('SCARD', KEYS[1]) == 0 then
	redis.call('DEL', KEYS[1])
	redis.call('SREM', KEYS[2], ARGV[1])
	return 1
end
return 0
`)

type RedisMirror struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisMirror connects and pings the server.
func NewRedisMirror(ctx context.Context, opts *redis.Options, ttl time.Duration) (*RedisMirror, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Info().Str("module", "adapters.presence").Str("addr", opts.Addr).Msg("redis presence mirror ready")
	return NewRedisMirrorFromClient(client, ttl), nil
}

func NewRedisMirrorFromClient(client *redis.Client, ttl time.Duration) *RedisMirror {
	return &RedisMirror{client: client, ttl: ttl}
}

func (m *RedisMirror) Joined(ctx context.Context, room domain.RoomID, p domain.Participant) error {
	pipe := m.client.TxPipeline()
	pipe.SAdd(ctx, roomsKey, string(room))
	pipe.SAdd(ctx, peersKey(room), string(p.Conn))
	pipe.HSet(ctx, peerKey(room, p.Conn),
		"userId", string(p.User.ID),
		"nickname", p.User.Nickname,
		"joinedAt", p.JoinedAt.UTC().Format(time.RFC3339),
	)
	if m.ttl > 0 {
		pipe.Expire(ctx, peersKey(room), m.ttl)
		pipe.Expire(ctx, peerKey(room, p.Conn), m.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mirror join %s/%s: %w", room, p.Conn, err)
	}
	return nil
}

// Left removes the connections and drops the room from the rooms set once its
// peer set is empty. The check runs inside the script so a concurrent Joined
// of the same room id is never undone.
func (m *RedisMirror) Left(ctx context.Context, room domain.RoomID, conns ...domain.ConnID) error {
	if len(conns) == 0 {
		return nil
	}
	keys := make([]string, 0, len(conns)+2)
	keys = append(keys, peersKey(room), roomsKey)
	args := make([]interface{}, 0, len(conns)+1)
	args = append(args, string(room))
	for _, c := range conns {
		keys = append(keys, peerKey(room, c))
		args = append(args, string(c))
	}
	if err := leaveScript.Run(ctx, m.client, keys, args...).Err(); err != nil {
		return fmt.Errorf("mirror leave %s %v: %w", room, conns, err)
	}
	return nil
}

func (m *RedisMirror) Close() error {
	return m.client.Close()
}
