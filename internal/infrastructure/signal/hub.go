package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"
	"roomlink/internal/infrastructure/monitoring"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Options tune connection keepalive and buffering.
type Options struct {
	PingInterval    time.Duration
	PongTimeout     time.Duration
	WriteTimeout    time.Duration
	SendBufferSize  int
	MaxMessageBytes int64
}

func DefaultOptions() Options {
	return Options{
		PingInterval:    30 * time.Second,
		PongTimeout:     60 * time.Second,
		WriteTimeout:    10 * time.Second,
		SendBufferSize:  64,
		MaxMessageBytes: 64 * 1024,
	}
}

// Hub owns the signaling side of every connected participant: it assigns
// participant IDs, tracks room membership through the RoomService, relays
// addressed offer/answer/candidate payloads verbatim and broadcasts room
// listing snapshots on every membership change.
//
// The mutex serializes every membership mutation together with its fan-out
// so two concurrent joins to one room can never miss each other.
type Hub struct {
	rooms ports.RoomService
	opts  Options

	connections map[domain.ParticipantID]*connection
	mu          sync.RWMutex

	metrics *monitoring.Collector
	tracer  trace.Tracer
	logger  *zap.SugaredLogger
}

// connection pairs a websocket with its outbound queue. A single writer
// goroutine drains send, which keeps delivery per participant strictly
// FIFO: an add-peer notification enqueued during a join is always written
// before any relay it caused.
type connection struct {
	id   domain.ParticipantID
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
}

func (c *connection) close() {
	c.closeOnce.Do(func() {
		close(c.send)
		c.conn.Close()
	})
}

func NewHub(rooms ports.RoomService, opts Options, metrics *monitoring.Collector, logger *zap.SugaredLogger) *Hub {
	if opts.SendBufferSize <= 0 {
		opts = DefaultOptions()
	}
	return &Hub{
		rooms:       rooms,
		opts:        opts,
		connections: make(map[domain.ParticipantID]*connection),
		metrics:     metrics,
		tracer:      otel.Tracer("roomlink/signal"),
		logger:      logger,
	}
}

// HandleWebSocket upgrades the request, assigns a fresh participant ID and
// services the connection until it closes. Closing, however it happens,
// triggers the same teardown as an explicit leave.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}

	peerID := domain.ParticipantID(uuid.NewString())
	c := &connection{
		id:   peerID,
		conn: conn,
		send: make(chan []byte, h.opts.SendBufferSize),
	}

	ctx := r.Context()
	if err := h.rooms.Connect(ctx, peerID); err != nil {
		h.logger.Errorw("failed to register connection", "peer_id", peerID, "error", err)
		conn.Close()
		return
	}

	h.mu.Lock()
	h.connections[peerID] = c
	h.mu.Unlock()

	h.metrics.RecordParticipantConnected()
	h.logger.Infow("participant connected", "peer_id", peerID)

	go h.writeLoop(c)

	h.enqueue(c, mustEncode(ActionHello, HelloPayload{PeerID: peerID}))
	h.broadcastRooms(ctx)

	h.readLoop(ctx, c)

	// Implicit disconnect: identical teardown to an explicit leave, plus
	// dropping the private delivery channel.
	h.teardown(context.Background(), c, true)
}

func (h *Hub) readLoop(ctx context.Context, c *connection) {
	if h.opts.MaxMessageBytes > 0 {
		c.conn.SetReadLimit(h.opts.MaxMessageBytes)
	}
	c.conn.SetReadDeadline(time.Now().Add(h.opts.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(h.opts.PongTimeout))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Infow("read error", "peer_id", c.id, "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(h.opts.PongTimeout))

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Warnw("malformed message", "peer_id", c.id, "error", err)
			continue
		}
		if err := h.handleMessage(ctx, c, msg); err != nil {
			h.logger.Warnw("error handling message", "peer_id", c.id, "action", msg.Action, "error", err)
		}
	}
}

func (h *Hub) writeLoop(c *connection) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				c.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(time.Second))
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) handleMessage(ctx context.Context, c *connection, msg Message) error {
	h.metrics.RecordMessage(msg.Action)

	switch msg.Action {
	case ActionJoin:
		var p JoinPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		return h.handleJoin(ctx, c, p.Room)

	case ActionLeave:
		h.teardown(ctx, c, false)
		return nil

	case ActionRelaySDP:
		var p SDPPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		h.relay(ctx, c.id, p.PeerID, ActionSessionDescription, SDPPayload{
			PeerID:             c.id,
			SessionDescription: p.SessionDescription,
		})
		return nil

	case ActionRelayICE:
		var p ICEPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		h.relay(ctx, c.id, p.PeerID, ActionICECandidate, ICEPayload{
			PeerID:       c.id,
			ICECandidate: p.ICECandidate,
		})
		return nil

	case ActionToggleAudio:
		var p ToggleAudioPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		return h.broadcastToRoom(ctx, c.id, p.RoomID, ActionAudioStateChanged, AudioStateChangedPayload{
			PeerID:         c.id,
			IsAudioEnabled: p.IsAudioEnabled,
		})

	case ActionToggleVideo:
		var p ToggleVideoPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return err
		}
		return h.broadcastToRoom(ctx, c.id, p.RoomID, ActionVideoStateChanged, VideoStateChangedPayload{
			PeerID:         c.id,
			IsVideoEnabled: p.IsVideoEnabled,
		})

	default:
		h.logger.Warnw("unknown action", "peer_id", c.id, "action", msg.Action)
		return nil
	}
}

// handleJoin performs the asymmetric add-peer fan-out: existing members
// are told not to initiate, the newcomer is told to initiate toward each.
func (h *Hub) handleJoin(ctx context.Context, c *connection, room domain.RoomID) error {
	ctx, span := h.tracer.Start(ctx, "hub.join", trace.WithAttributes(
		attribute.String("room_id", string(room)),
		attribute.String("peer_id", string(c.id)),
	))
	defer span.End()

	h.mu.Lock()
	defer h.mu.Unlock()

	existing, err := h.rooms.Join(ctx, c.id, room)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyJoined) {
			h.logger.Warnw("already joined", "peer_id", c.id, "room_id", room)
			return nil
		}
		if errors.Is(err, domain.ErrInvalidRoomID) {
			h.logger.Warnw("rejecting join to invalid room id", "peer_id", c.id, "room_id", room)
			return nil
		}
		return err
	}

	for _, member := range existing {
		h.sendToLocked(member, mustEncode(ActionAddPeer, AddPeerPayload{
			PeerID:      c.id,
			CreateOffer: false,
		}))
		h.enqueue(c, mustEncode(ActionAddPeer, AddPeerPayload{
			PeerID:      member,
			CreateOffer: true,
		}))
	}

	h.metrics.RecordJoin()
	h.logger.Infow("participant joined room", "peer_id", c.id, "room_id", room, "existing_members", len(existing))

	h.broadcastRoomsLocked(ctx)
	return nil
}

// teardown leaves every room with symmetric remove-peer fan-out. With
// disconnect=true the private delivery channel is also dropped and the
// connection closed.
func (h *Hub) teardown(ctx context.Context, c *connection, disconnect bool) {
	ctx, span := h.tracer.Start(ctx, "hub.leave", trace.WithAttributes(
		attribute.String("peer_id", string(c.id)),
	))
	defer span.End()

	h.mu.Lock()

	var remaining map[domain.RoomID][]domain.ParticipantID
	var err error
	if disconnect {
		remaining, err = h.rooms.Disconnect(ctx, c.id)
	} else {
		remaining, err = h.rooms.Leave(ctx, c.id)
	}
	if err != nil {
		h.logger.Errorw("leave failed", "peer_id", c.id, "error", err)
	}

	for room, members := range remaining {
		for _, member := range members {
			h.sendToLocked(member, mustEncode(ActionRemovePeer, RemovePeerPayload{PeerID: c.id}))
			h.enqueue(c, mustEncode(ActionRemovePeer, RemovePeerPayload{PeerID: member}))
		}
		h.logger.Infow("participant left room", "peer_id", c.id, "room_id", room, "remaining", len(members))
		h.metrics.RecordLeave()
	}

	if disconnect {
		delete(h.connections, c.id)
	}

	h.broadcastRoomsLocked(ctx)
	h.mu.Unlock()

	if disconnect {
		c.close()
		h.metrics.RecordParticipantDisconnected()
		h.logger.Infow("participant disconnected", "peer_id", c.id)
	}
}

// relay forwards a payload verbatim to one participant, tagged with its
// origin. Unknown targets are dropped: fire-and-forget, no queuing.
func (h *Hub) relay(ctx context.Context, from, to domain.ParticipantID, action string, payload interface{}) {
	_, span := h.tracer.Start(ctx, "hub.relay", trace.WithAttributes(
		attribute.String("action", action),
		attribute.String("from_peer", string(from)),
		attribute.String("to_peer", string(to)),
	))
	defer span.End()

	h.mu.RLock()
	target, ok := h.connections[to]
	h.mu.RUnlock()

	if !ok {
		h.metrics.RecordRelayDropped()
		h.logger.Debugw("dropping relay to unknown peer", "from_peer", from, "to_peer", to, "action", action)
		return
	}
	h.enqueue(target, mustEncode(action, payload))
}

func (h *Hub) broadcastToRoom(ctx context.Context, from domain.ParticipantID, room domain.RoomID, action string, payload interface{}) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members, err := h.rooms.MembersOf(ctx, room, from)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRoomID) {
			h.logger.Warnw("toggle for invalid room id", "peer_id", from, "room_id", room)
			return nil
		}
		return err
	}

	data := mustEncode(action, payload)
	for _, member := range members {
		h.sendToLocked(member, data)
	}
	return nil
}

func (h *Hub) broadcastRooms(ctx context.Context) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.broadcastRoomsLocked(ctx)
}

// broadcastRoomsLocked pushes the fresh room listing to every connected
// participant. Global awareness signal, not a privacy boundary. Caller
// holds at least the read lock.
func (h *Hub) broadcastRoomsLocked(ctx context.Context) {
	snapshot, err := h.rooms.Snapshot(ctx)
	if err != nil {
		h.logger.Errorw("failed to compute room snapshot", "error", err)
		return
	}
	h.metrics.SetActiveRooms(len(snapshot))

	data := mustEncode(ActionShareRooms, ShareRoomsPayload{Rooms: snapshot})
	for _, c := range h.connections {
		h.enqueue(c, data)
	}
}

func (h *Hub) sendToLocked(to domain.ParticipantID, data []byte) {
	if c, ok := h.connections[to]; ok {
		h.enqueue(c, data)
	}
}

// enqueue never blocks: a participant that cannot drain its queue is cut
// off rather than allowed to stall membership operations.
func (h *Hub) enqueue(c *connection, data []byte) {
	defer func() {
		// send may race with close on a dying connection; dropping the
		// frame is the documented fire-and-forget behavior.
		recover()
	}()
	select {
	case c.send <- data:
	default:
		h.logger.Warnw("send buffer full, dropping connection", "peer_id", c.id)
		go c.close()
	}
}

// ConnectedParticipants returns the IDs of all live connections.
func (h *Hub) ConnectedParticipants() []domain.ParticipantID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]domain.ParticipantID, 0, len(h.connections))
	for id := range h.connections {
		ids = append(ids, id)
	}
	return ids
}

func (h *Hub) IsPeerConnected(id domain.ParticipantID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.connections[id]
	return ok
}

func mustEncode(action string, payload interface{}) []byte {
	data, err := encodeMessage(action, payload)
	if err != nil {
		// Payload structs are plain data; a marshal failure is a bug.
		panic(err)
	}
	return data
}
