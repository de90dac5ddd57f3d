package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/dkeye/soupvoice/internal/app/orch"
	"github.com/dkeye/soupvoice/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
)

const (
	defaultQRSize = 320
	minQRSize     = 64
	maxQRSize     = 1024
)

type roomsHandler struct {
	orch      *orch.Orchestrator
	publicURL string
}

func (h *roomsHandler) list(c *gin.Context) {
	c.JSON(http.StatusOK, h.orch.Rooms.List())
}

func (h *roomsHandler) get(c *gin.Context) {
	id, ok := roomParam(c)
	if !ok {
		return
	}
	view, ok := h.orch.Room(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	c.JSON(http.StatusOK, view)
}

// invite renders a QR code of the room's join link.
func (h *roomsHandler) invite(c *gin.Context) {
	id, ok := roomParam(c)
	if !ok {
		return
	}
	size := defaultQRSize
	if raw := c.Query("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < minQRSize || n > maxQRSize {
			c.JSON(http.StatusBadRequest, gin.H{"error": "size must be between 64 and 1024"})
			return
		}
		size = n
	}

	png, err := qrcode.Encode(h.inviteURL(c, id), qrcode.Medium, size)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Str("room", string(id)).Msg("qr generation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "qr generation failed"})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (h *roomsHandler) inviteURL(c *gin.Context, id domain.RoomID) string {
	base := strings.TrimRight(h.publicURL, "/")
	if base == "" {
		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
		if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + c.Request.Host
	}
	return base + "/room/" + string(id)
}

func (h *roomsHandler) evict(c *gin.Context) {
	id, ok := roomParam(c)
	if !ok {
		return
	}
	n, ok := h.orch.EvictRoom(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	log.Info().Str("module", "adapters.http").Str("room", string(id)).Str("by", c.GetString("user_id")).
		Int("connections", n).Msg("room evicted")
	c.JSON(http.StatusOK, gin.H{"roomId": id, "evicted": n})
}

func roomParam(c *gin.Context) (domain.RoomID, bool) {
	id, err := domain.ParseRoomID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	return id, true
}
