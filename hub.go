package main

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

// Hub is the fanout channel: it knows which connections subscribe to
// which room and delivers events to them. Emits write directly into the
// per-client send buffers under the lock, so events emitted in sequence
// from one handler arrive at each client in that sequence. Delivery is
// at-most-once; a client that is mid-disconnect or has a full buffer
// simply misses the event.
type Hub struct {
	clients map[string]*WSClient            // conn id -> client
	rooms   map[string]map[string]*WSClient // room -> conn id -> client
	mutex   sync.RWMutex
}

func NewHub() *Hub {
	hub := &Hub{
		clients: make(map[string]*WSClient),
		rooms:   make(map[string]map[string]*WSClient),
	}

	go hub.run()
	return hub
}

func (h *Hub) run() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		h.checkClientHealth()
	}
}

// Register makes a client addressable before its pumps start, so a join
// arriving immediately after the upgrade cannot miss it.
func (h *Hub) Register(client *WSClient) {
	h.mutex.Lock()
	h.clients[client.connID] = client
	h.mutex.Unlock()
	log.Printf("Client connected: %s (%s)", client.identity.Username, client.connID)
}

// Unregister drops the client and closes its send channel. Safe to call
// once the read pump has exited.
func (h *Hub) Unregister(client *WSClient) {
	h.mutex.Lock()
	if _, ok := h.clients[client.connID]; ok {
		// Leave the room first: removal needs the clients entry, and the
		// room set must not hold a client whose send channel is closed.
		h.removeFromRoomLocked(client.connID)
		delete(h.clients, client.connID)
		close(client.send)
	}
	h.mutex.Unlock()
	log.Printf("Client disconnected: %s (%s)", client.identity.Username, client.connID)
}

func (h *Hub) checkClientHealth() {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for _, client := range h.clients {
		if client.conn != nil && time.Since(client.lastPong()) > 60*time.Second {
			client.conn.Close()
		}
	}
}

// Subscribe attaches a connection to a room's broadcast group. A
// connection subscribes to at most one room; a re-subscribe moves it.
func (h *Hub) Subscribe(connID, room string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	client, ok := h.clients[connID]
	if !ok {
		return
	}

	h.removeFromRoomLocked(connID)

	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]*WSClient)
	}
	h.rooms[room][connID] = client
	client.room = room
}

// Unsubscribe detaches a connection from its room, if any.
func (h *Hub) Unsubscribe(connID string) {
	h.mutex.Lock()
	h.removeFromRoomLocked(connID)
	h.mutex.Unlock()
}

func (h *Hub) removeFromRoomLocked(connID string) {
	client, ok := h.clients[connID]
	if !ok || client.room == "" {
		return
	}

	if subs := h.rooms[client.room]; subs != nil {
		delete(subs, connID)
		if len(subs) == 0 {
			delete(h.rooms, client.room)
		}
	}
	client.room = ""
}

// EmitToRoom delivers an event to every subscriber of a room.
func (h *Hub) EmitToRoom(room string, event WSMessage) {
	h.emitToRoom(room, event, "")
}

// EmitToRoomExcept delivers an event to every subscriber of a room except
// the named connection (typing indicators, join notices).
func (h *Hub) EmitToRoomExcept(room string, event WSMessage, exceptConnID string) {
	h.emitToRoom(room, event, exceptConnID)
}

func (h *Hub) emitToRoom(room string, event WSMessage, exceptConnID string) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("Failed to marshal %s event: %v", event.Type, err)
		return
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for connID, client := range h.rooms[room] {
		if connID == exceptConnID {
			continue
		}
		client.deliver(payload)
	}
}

// EmitToConnection delivers an event to one connection only.
func (h *Hub) EmitToConnection(connID string, event WSMessage) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("Failed to marshal %s event: %v", event.Type, err)
		return
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if client, ok := h.clients[connID]; ok {
		client.deliver(payload)
	}
}
