package main

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is open, so is the upgrade
	},
}

// WSClient is one live websocket connection. Inbound events are read and
// dispatched by a single goroutine, so a connection's own events are
// always handled in arrival order.
type WSClient struct {
	conn      *websocket.Conn
	connID    string
	identity  Identity
	sessionID string
	ipAddress string
	userAgent string
	send      chan []byte
	hub       *Hub
	chat      *ChatService

	room string // guarded by hub.mutex

	pongMu   sync.Mutex
	lastSeen time.Time
}

// HandleConnection upgrades an authenticated request to a websocket and
// starts the client's pumps. The identity comes from the validated
// session; the client never gets to pick who it is.
func HandleConnection(w http.ResponseWriter, r *http.Request, session *Session, hub *Hub, chat *ChatService) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &WSClient{
		conn:      conn,
		connID:    uuid.NewString(),
		identity:  Identity{UserID: session.UserID, Username: session.Username},
		sessionID: session.Token,
		ipAddress: r.RemoteAddr,
		userAgent: r.UserAgent(),
		send:      make(chan []byte, 256),
		hub:       hub,
		chat:      chat,
		lastSeen:  time.Now(),
	}

	hub.Register(client)

	go client.writePump()
	go client.readPump()
}

// deliver queues an outbound payload without blocking. A client whose
// buffer is full misses the event.
func (c *WSClient) deliver(payload []byte) {
	select {
	case c.send <- payload:
	default:
	}
}

func (c *WSClient) lastPong() time.Time {
	c.pongMu.Lock()
	defer c.pongMu.Unlock()
	return c.lastSeen
}

func (c *WSClient) touchPong() {
	c.pongMu.Lock()
	c.lastSeen = time.Now()
	c.pongMu.Unlock()
}

func (c *WSClient) readPump() {
	defer func() {
		c.chat.Disconnect(c.connID)
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.touchPong()
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			log.Printf("Invalid JSON from client %s: %v", c.connID, err)
			continue
		}

		c.handleEvent(msg)
	}
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			c.conn.WriteMessage(websocket.TextMessage, message)

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleEvent(msg WSMessage) {
	switch msg.Type {
	case "joinRoom":
		var join JoinRoomData
		if err := decodeEventData(msg.Data, &join); err != nil {
			log.Printf("Invalid joinRoom data: %v", err)
			return
		}
		// The payload's username is advisory only; the authenticated
		// identity decides who joins.
		c.chat.Join(c.connID, c.identity, join.Room, c.sessionID, c.ipAddress, c.userAgent)

	case "chatMessage":
		var payload ChatMessageData
		if err := decodeEventData(msg.Data, &payload); err != nil {
			log.Printf("Invalid chatMessage data: %v", err)
			return
		}
		c.chat.SendMessage(c.connID, payload.Text)

	case "typing":
		c.chat.Typing(c.connID, true)

	case "stopTyping":
		c.chat.Typing(c.connID, false)

	case "ping":
		c.touchPong()

	default:
		log.Printf("Unknown event type: %s", msg.Type)
	}
}

func decodeEventData(data interface{}, dst interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
