package http

import (
	"context"
	"net/http"
	"time"

	"roomlink/internal/core/ports"
	"roomlink/pkg/cache"

	"github.com/gin-gonic/gin"
)

// snapshotTTL bounds how stale the REST room listing may be. WebSocket
// clients always get fresh snapshots pushed on membership changes.
const snapshotTTL = time.Second

type RoomHandler struct {
	rooms     ports.RoomService
	snapshots *cache.CacheWithFallback
}

func NewRoomHandler(rooms ports.RoomService) *RoomHandler {
	return &RoomHandler{
		rooms:     rooms,
		snapshots: cache.NewCacheWithFallback(snapshotTTL),
	}
}

func (h *RoomHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.GET("/rooms", h.ListRooms)
	}
	router.GET("/health", h.Health)
}

// ListRooms serves the same snapshot the hub broadcasts on membership
// changes, cached briefly to keep polling clients off the backend.
func (h *RoomHandler) ListRooms(c *gin.Context) {
	snapshot, err := h.snapshots.GetOrSet(c.Request.Context(), "rooms", func(ctx context.Context) (interface{}, error) {
		return h.rooms.Snapshot(ctx)
	}, snapshotTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"rooms": snapshot,
	})
}

func (h *RoomHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}
