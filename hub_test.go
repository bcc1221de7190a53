package main

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHubClient(connID, username string) *WSClient {
	return &WSClient{
		connID:   connID,
		identity: Identity{UserID: 1, Username: username},
		send:     make(chan []byte, 8),
		lastSeen: time.Now(),
	}
}

func receiveEvent(t *testing.T, client *WSClient) WSMessage {
	t.Helper()
	select {
	case raw := <-client.send:
		var msg WSMessage
		require.NoError(t, json.Unmarshal(raw, &msg))
		return msg
	default:
		t.Fatal("expected a delivered event, send buffer is empty")
		return WSMessage{}
	}
}

func assertNoEvent(t *testing.T, client *WSClient) {
	t.Helper()
	select {
	case raw := <-client.send:
		t.Fatalf("expected no event, got %s", raw)
	default:
	}
}

// TestHubRoomDelivery verifies that room emits reach every subscriber of
// that room and nobody else.
func TestHubRoomDelivery(t *testing.T) {
	hub := NewHub()

	a := newHubClient("conn-a", "alice")
	b := newHubClient("conn-b", "bob")
	c := newHubClient("conn-c", "carol")
	for _, client := range []*WSClient{a, b, c} {
		hub.Register(client)
	}

	hub.Subscribe("conn-a", "general")
	hub.Subscribe("conn-b", "general")
	hub.Subscribe("conn-c", "tech")

	hub.EmitToRoom("general", WSMessage{Type: "message", Data: "hi"})

	for _, client := range []*WSClient{a, b} {
		msg := receiveEvent(t, client)
		assert.Equal(t, "message", msg.Type)
		assert.Equal(t, "hi", msg.Data)
	}
	assertNoEvent(t, c)
}

// TestHubEmitExcept verifies that the excluded connection is skipped.
func TestHubEmitExcept(t *testing.T) {
	hub := NewHub()

	a := newHubClient("conn-a", "alice")
	b := newHubClient("conn-b", "bob")
	hub.Register(a)
	hub.Register(b)
	hub.Subscribe("conn-a", "general")
	hub.Subscribe("conn-b", "general")

	hub.EmitToRoomExcept("general", WSMessage{Type: "typing"}, "conn-a")

	assertNoEvent(t, a)
	assert.Equal(t, "typing", receiveEvent(t, b).Type)
}

// TestHubEmitToConnection verifies single-connection delivery and that
// unknown connection ids are ignored.
func TestHubEmitToConnection(t *testing.T) {
	hub := NewHub()

	a := newHubClient("conn-a", "alice")
	hub.Register(a)

	hub.EmitToConnection("conn-a", WSMessage{Type: "error", Data: "nope"})
	msg := receiveEvent(t, a)
	assert.Equal(t, "error", msg.Type)

	hub.EmitToConnection("conn-missing", WSMessage{Type: "error"})
	assertNoEvent(t, a)
}

// TestHubDeliveryOrder verifies that events emitted in sequence arrive in
// that sequence, which the join flow depends on.
func TestHubDeliveryOrder(t *testing.T) {
	hub := NewHub()

	a := newHubClient("conn-a", "alice")
	hub.Register(a)
	hub.Subscribe("conn-a", "general")

	hub.EmitToConnection("conn-a", WSMessage{Type: "loadMessages"})
	hub.EmitToConnection("conn-a", WSMessage{Type: "message"})
	hub.EmitToRoom("general", WSMessage{Type: "roomUsers"})

	assert.Equal(t, "loadMessages", receiveEvent(t, a).Type)
	assert.Equal(t, "message", receiveEvent(t, a).Type)
	assert.Equal(t, "roomUsers", receiveEvent(t, a).Type)
}

// TestHubResubscribeMoves verifies that subscribing an already-subscribed
// connection moves it instead of double-subscribing.
func TestHubResubscribeMoves(t *testing.T) {
	hub := NewHub()

	a := newHubClient("conn-a", "alice")
	hub.Register(a)

	hub.Subscribe("conn-a", "general")
	hub.Subscribe("conn-a", "tech")

	hub.EmitToRoom("general", WSMessage{Type: "message"})
	assertNoEvent(t, a)

	hub.EmitToRoom("tech", WSMessage{Type: "message"})
	assert.Equal(t, "message", receiveEvent(t, a).Type)
}

// TestHubUnregisterStopsDelivery verifies that an unregistered client is
// removed from its room and its send channel closed, so later emits to
// its old room deliver only to the remaining members instead of hitting
// the closed channel.
func TestHubUnregisterStopsDelivery(t *testing.T) {
	hub := NewHub()

	a := newHubClient("conn-a", "alice")
	b := newHubClient("conn-b", "bob")
	hub.Register(a)
	hub.Register(b)
	hub.Subscribe("conn-a", "general")
	hub.Subscribe("conn-b", "general")

	hub.Unregister(a)

	_, open := <-a.send
	assert.False(t, open)

	hub.EmitToRoom("general", WSMessage{Type: "message"})
	hub.EmitToConnection("conn-a", WSMessage{Type: "message"})

	assert.Equal(t, "message", receiveEvent(t, b).Type)
	assertNoEvent(t, b)
}

// TestHubFullBufferDropsEvent verifies at-most-once delivery: a client
// with a full send buffer misses the event instead of blocking the emit.
func TestHubFullBufferDropsEvent(t *testing.T) {
	hub := NewHub()

	a := &WSClient{
		connID:   "conn-a",
		identity: Identity{Username: "alice"},
		send:     make(chan []byte, 1),
		lastSeen: time.Now(),
	}
	hub.Register(a)
	hub.Subscribe("conn-a", "general")

	hub.EmitToRoom("general", WSMessage{Type: "message", Data: "one"})
	hub.EmitToRoom("general", WSMessage{Type: "message", Data: "two"})

	msg := receiveEvent(t, a)
	assert.Equal(t, "one", msg.Data)
	assertNoEvent(t, a)
}
