package app

import (
	"sync"

	"github.com/dkeye/soupvoice/internal/core"
	"github.com/dkeye/soupvoice/internal/domain"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	Room    domain.RoomID
	Session core.MemberSession
}

// Registry indexes live connections to the room they belong to.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.ConnID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[domain.ConnID]*sessionEntry)}
}

func (r *Registry) Bind(room domain.RoomID, sess core.MemberSession) {
	conn := sess.Meta().Conn
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[conn] = &sessionEntry{Room: room, Session: sess}
	log.Debug().Str("module", "app.registry").Str("conn", string(conn)).Str("room", string(room)).Msg("bound session")
}

// Unbind reports whether conn was still bound.
func (r *Registry) Unbind(conn domain.ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[conn]; !ok {
		return false
	}
	delete(r.sessions, conn)
	log.Debug().Str("module", "app.registry").Str("conn", string(conn)).Msg("unbind session")
	return true
}

func (r *Registry) RoomOf(conn domain.ConnID) (domain.RoomID, core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[conn]
	if !ok {
		return "", nil, false
	}
	return e.Room, e.Session, true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
