package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"
	"roomlink/internal/core/services"
	"roomlink/internal/infrastructure/repositories/memory"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*gin.Engine, ports.RoomRepository, domain.RoomID) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := memory.NewMemoryRoomRepository()
	room := domain.NewRoomID()
	require.NoError(t, repo.Register(context.Background(), string(room), "alice"))
	require.NoError(t, repo.Register(context.Background(), string(room), "bob"))

	router := gin.New()
	NewRoomHandler(services.NewRoomService(repo)).SetupRoutes(router)
	return router, repo, room
}

func listRooms(t *testing.T, router *gin.Engine) []domain.RoomSnapshot {
	t.Helper()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/rooms", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Rooms []domain.RoomSnapshot `json:"rooms"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Rooms
}

func TestListRooms(t *testing.T) {
	router, _, room := newTestRouter(t)

	rooms := listRooms(t, router)
	require.Len(t, rooms, 1)
	assert.Equal(t, room, rooms[0].ID)
	assert.Equal(t, 2, rooms[0].Participants)
}

func TestListRoomsServesCachedSnapshot(t *testing.T) {
	router, repo, room := newTestRouter(t)

	first := listRooms(t, router)
	require.Len(t, first, 1)

	// A membership change within the TTL is invisible to polling clients.
	require.NoError(t, repo.Register(context.Background(), string(room), "carol"))
	second := listRooms(t, router)
	require.Len(t, second, 1)
	assert.Equal(t, 2, second[0].Participants, "snapshot served from cache")
}

func TestHealth(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.NotZero(t, body["timestamp"])
}
