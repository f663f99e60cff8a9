package signal

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/services"
	"roomlink/internal/infrastructure/repositories/memory"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const readWait = 2 * time.Second

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()

	hub := NewHub(
		services.NewRoomService(memory.NewMemoryRoomRepository()),
		DefaultOptions(),
		nil,
		zap.NewNop().Sugar(),
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.HandleWebSocket(w, r)
	}))
	t.Cleanup(srv.Close)
	return hub, srv
}

// testClient is one websocket participant. Frames are read on demand;
// next skips unrelated actions so broadcast share-rooms traffic never
// breaks an assertion about a directed message.
type testClient struct {
	t    *testing.T
	conn *websocket.Conn
	id   domain.ParticipantID
}

func dialClient(t *testing.T, srv *httptest.Server) *testClient {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	c := &testClient{t: t, conn: conn}

	// The hub greets every connection with its assigned participant ID.
	var hello HelloPayload
	c.next(ActionHello, &hello)
	require.NotEmpty(t, hello.PeerID)
	c.id = hello.PeerID
	return c
}

func (c *testClient) send(action string, payload interface{}) {
	c.t.Helper()
	data, err := encodeMessage(action, payload)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, data))
}

// next reads until a frame with the wanted action arrives and decodes its
// payload into out (which may be nil). Fails the test on timeout.
func (c *testClient) next(action string, out interface{}) {
	c.t.Helper()
	deadline := time.Now().Add(readWait)
	for {
		c.conn.SetReadDeadline(deadline)
		_, data, err := c.conn.ReadMessage()
		require.NoErrorf(c.t, err, "waiting for %q", action)

		var msg Message
		require.NoError(c.t, json.Unmarshal(data, &msg))
		if msg.Action != action {
			continue
		}
		if out != nil {
			require.NoError(c.t, json.Unmarshal(msg.Payload, out))
		}
		return
	}
}

// expectSilence asserts that nothing but share-rooms broadcasts arrive
// within the window.
func (c *testClient) expectSilence(window time.Duration) {
	c.t.Helper()
	deadline := time.Now().Add(window)
	for {
		c.conn.SetReadDeadline(deadline)
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return // timeout is the expected outcome
		}
		var msg Message
		require.NoError(c.t, json.Unmarshal(data, &msg))
		require.Equalf(c.t, ActionShareRooms, msg.Action, "unexpected frame %q", msg.Action)
	}
}

func (c *testClient) join(room domain.RoomID) {
	c.send(ActionJoin, JoinPayload{Room: room})
}

// waitForRoom consumes frames until a share-rooms snapshot lists the room
// with the wanted member count. Used to sequence joins across connections.
func (c *testClient) waitForRoom(room domain.RoomID, participants int) {
	c.t.Helper()
	deadline := time.Now().Add(readWait)
	for {
		require.True(c.t, time.Now().Before(deadline), "room listing never converged")
		var p ShareRoomsPayload
		c.next(ActionShareRooms, &p)
		for _, r := range p.Rooms {
			if r.ID == room && r.Participants == participants {
				return
			}
		}
	}
}

func TestHub_HelloAssignsDistinctIDs(t *testing.T) {
	_, srv := newTestHub(t)

	a := dialClient(t, srv)
	b := dialClient(t, srv)

	assert.NotEmpty(t, a.id)
	assert.NotEmpty(t, b.id)
	assert.NotEqual(t, a.id, b.id)
}

func TestHub_JoinFansOutAsymmetrically(t *testing.T) {
	_, srv := newTestHub(t)
	room := domain.NewRoomID()

	a := dialClient(t, srv)
	b := dialClient(t, srv)

	a.join(room)
	a.waitForRoom(room, 1)
	b.join(room)

	// The existing member must not initiate toward the newcomer.
	var toA AddPeerPayload
	a.next(ActionAddPeer, &toA)
	assert.Equal(t, b.id, toA.PeerID)
	assert.False(t, toA.CreateOffer)

	// The newcomer initiates toward each existing member.
	var toB AddPeerPayload
	b.next(ActionAddPeer, &toB)
	assert.Equal(t, a.id, toB.PeerID)
	assert.True(t, toB.CreateOffer)
}

func TestHub_JoinInvalidRoomIsRejectedQuietly(t *testing.T) {
	_, srv := newTestHub(t)

	a := dialClient(t, srv)
	a.join(domain.RoomID("not-a-uuid"))

	a.expectSilence(100 * time.Millisecond)
}

func TestHub_ShareRoomsReflectsMembership(t *testing.T) {
	_, srv := newTestHub(t)
	room := domain.NewRoomID()

	a := dialClient(t, srv)
	b := dialClient(t, srv)

	a.join(room)
	b.join(room)

	// Both participants eventually see the room with two members. Earlier
	// snapshots may still show one, so poll frames until it converges.
	a.waitForRoom(room, 2)
	b.waitForRoom(room, 2)
}

func TestHub_RelaySDPDeliveredVerbatimToTargetOnly(t *testing.T) {
	_, srv := newTestHub(t)
	room := domain.NewRoomID()

	a := dialClient(t, srv)
	b := dialClient(t, srv)
	c := dialClient(t, srv) // bystander, never joins
	a.join(room)
	b.join(room)

	offer := domain.SessionDescription{Type: "offer", SDP: "v=0\r\no=- 42 2 IN IP4 127.0.0.1\r\n"}
	a.send(ActionRelaySDP, SDPPayload{PeerID: b.id, SessionDescription: offer})

	var got SDPPayload
	b.next(ActionSessionDescription, &got)
	assert.Equal(t, a.id, got.PeerID, "relay is tagged with its origin")
	assert.Equal(t, offer, got.SessionDescription, "description passes through untouched")

	c.expectSilence(100 * time.Millisecond)
}

func TestHub_RelayICEDeliveredToTarget(t *testing.T) {
	_, srv := newTestHub(t)
	room := domain.NewRoomID()

	a := dialClient(t, srv)
	b := dialClient(t, srv)
	a.join(room)
	b.join(room)

	mid := "0"
	line := uint16(0)
	cand := domain.ICECandidate{
		Candidate:     "candidate:1 1 udp 2130706431 192.0.2.1 54321 typ host",
		SDPMid:        &mid,
		SDPMLineIndex: &line,
	}
	b.send(ActionRelayICE, ICEPayload{PeerID: a.id, ICECandidate: cand})

	var got ICEPayload
	a.next(ActionICECandidate, &got)
	assert.Equal(t, b.id, got.PeerID)
	assert.Equal(t, cand, got.ICECandidate)
}

func TestHub_RelayToUnknownPeerIsDropped(t *testing.T) {
	_, srv := newTestHub(t)
	room := domain.NewRoomID()

	a := dialClient(t, srv)
	a.join(room)

	a.send(ActionRelaySDP, SDPPayload{
		PeerID:             "ghost",
		SessionDescription: domain.SessionDescription{Type: "offer", SDP: "x"},
	})
	a.send(ActionRelaySDP, SDPPayload{
		PeerID:             a.id,
		SessionDescription: domain.SessionDescription{Type: "offer", SDP: "self"},
	})

	// The ghost relay was dropped, the connection stayed healthy and the
	// next relay went through. Per-connection FIFO means the self relay is
	// the first description a sees.
	var echo SDPPayload
	a.next(ActionSessionDescription, &echo)
	assert.Equal(t, "self", echo.SessionDescription.SDP)
}

func TestHub_LeaveRemovesPeerSymmetrically(t *testing.T) {
	_, srv := newTestHub(t)
	room := domain.NewRoomID()

	a := dialClient(t, srv)
	b := dialClient(t, srv)
	a.join(room)
	b.join(room)
	b.next(ActionAddPeer, nil) // both joins are in effect from here

	b.send(ActionLeave, nil)

	var removedForA RemovePeerPayload
	a.next(ActionRemovePeer, &removedForA)
	assert.Equal(t, b.id, removedForA.PeerID)

	var removedForB RemovePeerPayload
	b.next(ActionRemovePeer, &removedForB)
	assert.Equal(t, a.id, removedForB.PeerID)
}

func TestHub_AbruptDisconnectTearsDownLikeLeave(t *testing.T) {
	hub, srv := newTestHub(t)
	room := domain.NewRoomID()

	a := dialClient(t, srv)
	b := dialClient(t, srv)
	a.join(room)
	b.join(room)

	// Drain the add-peer so the remove-peer below is unambiguous.
	a.next(ActionAddPeer, nil)

	bID := b.id
	b.conn.Close()

	var removed RemovePeerPayload
	a.next(ActionRemovePeer, &removed)
	assert.Equal(t, bID, removed.PeerID)

	assert.Eventually(t, func() bool {
		return !hub.IsPeerConnected(bID)
	}, readWait, 10*time.Millisecond)
}

func TestHub_ToggleAudioBroadcastsToOtherMembers(t *testing.T) {
	_, srv := newTestHub(t)
	room := domain.NewRoomID()

	a := dialClient(t, srv)
	b := dialClient(t, srv)
	a.join(room)
	b.join(room)
	a.waitForRoom(room, 2)

	a.send(ActionToggleAudio, ToggleAudioPayload{RoomID: room, IsAudioEnabled: false})

	var got AudioStateChangedPayload
	b.next(ActionAudioStateChanged, &got)
	assert.Equal(t, a.id, got.PeerID)
	assert.False(t, got.IsAudioEnabled)

	// The sender itself is excluded from the broadcast.
	a.expectSilence(100 * time.Millisecond)
}

func TestHub_ToggleVideoBroadcastsToOtherMembers(t *testing.T) {
	_, srv := newTestHub(t)
	room := domain.NewRoomID()

	a := dialClient(t, srv)
	b := dialClient(t, srv)
	a.join(room)
	b.join(room)
	b.waitForRoom(room, 2)

	b.send(ActionToggleVideo, ToggleVideoPayload{RoomID: room, IsVideoEnabled: false})

	var got VideoStateChangedPayload
	a.next(ActionVideoStateChanged, &got)
	assert.Equal(t, b.id, got.PeerID)
	assert.False(t, got.IsVideoEnabled)
}

func TestHub_MalformedFrameDoesNotKillConnection(t *testing.T) {
	_, srv := newTestHub(t)
	room := domain.NewRoomID()

	a := dialClient(t, srv)
	require.NoError(t, a.conn.WriteMessage(websocket.TextMessage, []byte("{not json")))

	a.join(room)
	b := dialClient(t, srv)
	b.join(room)

	a.next(ActionAddPeer, nil)
}
