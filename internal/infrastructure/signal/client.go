package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client is the participant side of the signaling channel. Dial blocks
// until the hub's hello assigns our participant ID; inbound frames are
// decoded into typed events and delivered on Events in arrival order.
type Client struct {
	conn   *websocket.Conn
	peerID domain.ParticipantID
	events chan domain.SignalEvent
	logger *zap.SugaredLogger

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

var _ ports.Signaler = (*Client)(nil)

// Dial connects to the hub's websocket endpoint and waits for the hello
// frame carrying our transport-assigned participant ID.
func Dial(ctx context.Context, url string, logger *zap.SugaredLogger) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial signaling hub: %w", err)
	}

	c := &Client{
		conn:   conn,
		events: make(chan domain.SignalEvent, 64),
		logger: logger,
		done:   make(chan struct{}),
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	} else {
		conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	}

	hello, err := c.readHello()
	if err != nil {
		conn.Close()
		return nil, err
	}
	c.peerID = hello
	conn.SetReadDeadline(time.Time{})

	go c.readLoop()
	return c, nil
}

func (c *Client) readHello() (domain.ParticipantID, error) {
	// The hub may broadcast a share-rooms snapshot before hello lands;
	// buffer anything that is not the hello.
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return "", fmt.Errorf("await hello: %w", err)
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return "", fmt.Errorf("await hello: %w", err)
		}
		if msg.Action == ActionHello {
			var p HelloPayload
			if err := json.Unmarshal(msg.Payload, &p); err != nil {
				return "", fmt.Errorf("decode hello: %w", err)
			}
			return p.PeerID, nil
		}
		if ev := decodeEvent(msg, c.logger); ev != nil {
			select {
			case c.events <- ev:
			default:
			}
		}
	}
}

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Infow("signaling connection closed", "peer_id", c.peerID, "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warnw("malformed frame from hub", "error", err)
			continue
		}
		if ev := decodeEvent(msg, c.logger); ev != nil {
			c.events <- ev
		}
	}
}

func decodeEvent(msg Message, logger *zap.SugaredLogger) domain.SignalEvent {
	switch msg.Action {
	case ActionAddPeer:
		var p AddPeerPayload
		if err := json.Unmarshal(msg.Payload, &p); err == nil {
			return domain.PeerAdded{PeerID: p.PeerID, CreateOffer: p.CreateOffer}
		}
	case ActionRemovePeer:
		var p RemovePeerPayload
		if err := json.Unmarshal(msg.Payload, &p); err == nil {
			return domain.PeerRemoved{PeerID: p.PeerID}
		}
	case ActionSessionDescription:
		var p SDPPayload
		if err := json.Unmarshal(msg.Payload, &p); err == nil {
			return domain.RemoteDescription{PeerID: p.PeerID, Description: p.SessionDescription}
		}
	case ActionICECandidate:
		var p ICEPayload
		if err := json.Unmarshal(msg.Payload, &p); err == nil {
			return domain.RemoteCandidate{PeerID: p.PeerID, Candidate: p.ICECandidate}
		}
	case ActionShareRooms:
		var p ShareRoomsPayload
		if err := json.Unmarshal(msg.Payload, &p); err == nil {
			return domain.RoomsShared{Rooms: p.Rooms}
		}
	case ActionAudioStateChanged:
		var p AudioStateChangedPayload
		if err := json.Unmarshal(msg.Payload, &p); err == nil {
			return domain.PeerAudioState{PeerID: p.PeerID, Enabled: p.IsAudioEnabled}
		}
	case ActionVideoStateChanged:
		var p VideoStateChangedPayload
		if err := json.Unmarshal(msg.Payload, &p); err == nil {
			return domain.PeerVideoState{PeerID: p.PeerID, Enabled: p.IsVideoEnabled}
		}
	default:
		logger.Debugw("ignoring unknown action", "action", msg.Action)
	}
	return nil
}

func (c *Client) PeerID() domain.ParticipantID {
	return c.peerID
}

func (c *Client) Events() <-chan domain.SignalEvent {
	return c.events
}

func (c *Client) Join(ctx context.Context, room domain.RoomID) error {
	return c.send(ctx, ActionJoin, JoinPayload{Room: room})
}

func (c *Client) Leave(ctx context.Context) error {
	return c.send(ctx, ActionLeave, nil)
}

func (c *Client) RelaySDP(ctx context.Context, to domain.ParticipantID, desc domain.SessionDescription) error {
	return c.send(ctx, ActionRelaySDP, SDPPayload{PeerID: to, SessionDescription: desc})
}

func (c *Client) RelayICE(ctx context.Context, to domain.ParticipantID, cand domain.ICECandidate) error {
	return c.send(ctx, ActionRelayICE, ICEPayload{PeerID: to, ICECandidate: cand})
}

func (c *Client) ToggleAudio(ctx context.Context, room domain.RoomID, enabled bool) error {
	return c.send(ctx, ActionToggleAudio, ToggleAudioPayload{RoomID: room, IsAudioEnabled: enabled})
}

func (c *Client) ToggleVideo(ctx context.Context, room domain.RoomID, enabled bool) error {
	return c.send(ctx, ActionToggleVideo, ToggleVideoPayload{RoomID: room, IsVideoEnabled: enabled})
}

func (c *Client) send(ctx context.Context, action string, payload interface{}) error {
	data, err := encodeMessage(action, payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
	} else {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send %s: %w", action, err)
	}
	return nil
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
