package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/soupvoice/internal/app/orch"
	"github.com/dkeye/soupvoice/internal/core"
	"github.com/dkeye/soupvoice/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// Settings are the per-connection transport limits.
type Settings struct {
	ReadLimit  int64
	PingPeriod time.Duration
	PongWait   time.Duration
	WriteWait  time.Duration
	SendBuffer int
}

func DefaultSettings() Settings {
	return Settings{
		ReadLimit:  32768,
		PingPeriod: 54 * time.Second,
		PongWait:   60 * time.Second,
		WriteWait:  5 * time.Second,
		SendBuffer: 64,
	}
}

type SignalWSController struct {
	Orch     *orch.Orchestrator
	Settings Settings
	Limiter  *RateLimiter
}

func NewSignalWSController(o *orch.Orchestrator, settings Settings, limiter *RateLimiter) *SignalWSController {
	def := DefaultSettings()
	if settings.ReadLimit <= 0 {
		settings.ReadLimit = def.ReadLimit
	}
	if settings.PingPeriod <= 0 {
		settings.PingPeriod = def.PingPeriod
	}
	if settings.PongWait <= settings.PingPeriod {
		settings.PongWait = settings.PingPeriod * 10 / 9
	}
	if settings.WriteWait <= 0 {
		settings.WriteWait = def.WriteWait
	}
	if settings.SendBuffer <= 0 {
		settings.SendBuffer = def.SendBuffer
	}
	return &SignalWSController{
		Orch:     o,
		Settings: settings,
		Limiter:  limiter,
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWsSignalConn(ws *websocket.Conn, buffer int) *WsSignalConn {
	if buffer <= 0 {
		buffer = 64
	}
	return &WsSignalConn{conn: ws, send: make(chan core.Frame, buffer)}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

// Close stops accepting frames. The writer flushes the queue, sends a close
// frame and releases the socket.
func (c *WsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandleSignal validates the handshake query, upgrades and admits the
// connection. A bad handshake is answered with 400 and never upgraded.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	roomID, err := domain.ParseRoomID(c.Query("roomId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := domain.NewUser(c.Query("userId"), c.Query("nickname"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := newWsSignalConn(ws, ctl.Settings.SendBuffer)
	meta := domain.NewParticipant(domain.NewConnID(), user)
	sess := core.NewMemberSession(meta, conn)
	ctx, cancel := context.WithCancel(ctx)

	log.Info().Str("module", "signal").Str("conn", string(meta.Conn)).Str("room", string(roomID)).
		Str("user", string(user.ID)).Str("client_token", c.GetString("client_token")).Msg("new WS connection")

	go ctl.writePump(ctx, conn)
	if err := ctl.Orch.Connect(roomID, sess); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(meta.Conn)).Msg("connect")
		conn.Close()
		cancel()
		return
	}
	go ctl.readPump(ctx, cancel, meta, conn)
}
