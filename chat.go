package main

import (
	"log"
	"time"
)

const botName = "XeroxChat Bot"

// ChatStore is the slice of the persistence gateway the coordinator
// needs. *Database implements it; tests substitute fakes.
type ChatStore interface {
	RoomExists(roomName string) (bool, error)
	SetOnlineStatus(userID int, online bool) error
	CreateMessage(userID int, roomName, body, msgType string) (int, error)
	GetRecentMessages(roomName string, limit int) ([]Message, error)
	UpsertSession(sessionID string, userID int, connID, roomName, ip, userAgent string) error
	RemoveSession(sessionID string) error
	ListUsersInRoom(roomName string) ([]RoomUser, error)
}

// Fanout is the room-broadcast abstraction the coordinator drives.
// *Hub implements it; tests substitute a recorder.
type Fanout interface {
	Subscribe(connID, room string)
	Unsubscribe(connID string)
	EmitToRoom(room string, event WSMessage)
	EmitToRoomExcept(room string, event WSMessage, exceptConnID string)
	EmitToConnection(connID string, event WSMessage)
}

// ChatService coordinates room membership: it mediates join, message,
// typing, and disconnect transitions across the presence directory, the
// durable store, and the fanout channel.
type ChatService struct {
	store       ChatStore
	presence    *PresenceDirectory
	fanout      Fanout
	format      *MessageFormatter
	replayLimit int
}

func NewChatService(store ChatStore, presence *PresenceDirectory, fanout Fanout, format *MessageFormatter, replayLimit int) *ChatService {
	return &ChatService{
		store:       store,
		presence:    presence,
		fanout:      fanout,
		format:      format,
		replayLimit: replayLimit,
	}
}

// Join attaches an authenticated identity to a room. The joiner gets the
// recent history and a welcome message before anyone else hears about the
// join; the rest of the room then gets a join notice and everyone gets a
// refreshed member list.
func (s *ChatService) Join(connID string, id Identity, room, sessionID, ip, userAgent string) {
	if room == "" {
		s.emitError(connID, "Room name required")
		return
	}

	exists, err := s.store.RoomExists(room)
	if err != nil {
		// Can't verify; let the join proceed and the message path
		// surface persistence failures.
		log.Printf("Room lookup failed for %q: %v", room, err)
	} else if !exists {
		s.emitError(connID, "Room not found")
		return
	}

	s.presence.Put(connID, ConnectedUser{
		UserID:    id.UserID,
		ConnID:    connID,
		SessionID: sessionID,
		Username:  id.Username,
		Room:      room,
		JoinedAt:  time.Now(),
	})

	if err := s.store.SetOnlineStatus(id.UserID, true); err != nil {
		log.Printf("Failed to mark user %d online: %v", id.UserID, err)
	}
	if err := s.store.UpsertSession(sessionID, id.UserID, connID, room, ip, userAgent); err != nil {
		log.Printf("Failed to upsert session for user %d: %v", id.UserID, err)
	}

	s.fanout.Subscribe(connID, room)

	history, err := s.store.GetRecentMessages(room, s.replayLimit)
	if err != nil {
		log.Printf("Failed to load history for %q: %v", room, err)
		history = nil
	}
	s.fanout.EmitToConnection(connID, WSMessage{
		Type: "loadMessages",
		Data: s.format.StoredAll(history),
	})

	s.fanout.EmitToConnection(connID, WSMessage{
		Type: "message",
		Data: s.format.Live(botName, "Welcome to XeroxChat, "+id.Username+"! 🎉"),
	})

	s.fanout.EmitToRoomExcept(room, WSMessage{
		Type: "message",
		Data: s.format.Live(botName, id.Username+" has joined the chat! 👋"),
	}, connID)

	if _, err := s.store.CreateMessage(id.UserID, room, id.Username+" has joined the chat!", "system"); err != nil {
		log.Printf("Failed to persist join notice for %s: %v", id.Username, err)
	}

	s.broadcastRoomUsers(room)

	log.Printf("%s joined room %s", id.Username, room)
}

// SendMessage persists and fans out a chat message from connID. A
// connection that never joined gets an error and nothing else happens.
// Persistence failure is surfaced to the sender but the live broadcast
// still goes out.
func (s *ChatService) SendMessage(connID, text string) {
	user, ok := s.presence.Get(connID)
	if !ok {
		s.emitError(connID, "User not found")
		return
	}

	// Empty bodies are dropped without an error: nothing to persist,
	// nothing worth a round trip to the room.
	if text == "" {
		return
	}

	if _, err := s.store.CreateMessage(user.UserID, user.Room, text, "text"); err != nil {
		log.Printf("Failed to persist message from %s: %v", user.Username, err)
		s.emitError(connID, "Error sending message")
	}

	s.fanout.EmitToRoom(user.Room, WSMessage{
		Type: "message",
		Data: s.format.Live(user.Username, text),
	})
}

// Typing broadcasts an ephemeral typing indicator to everyone else in the
// sender's room. Nothing is persisted or acknowledged.
func (s *ChatService) Typing(connID string, isTyping bool) {
	user, ok := s.presence.Get(connID)
	if !ok {
		return
	}

	s.fanout.EmitToRoomExcept(user.Room, WSMessage{
		Type: "typing",
		Data: TypingData{Username: user.Username, IsTyping: isTyping},
	}, connID)
}

// Disconnect tears down a connection's membership. Calling it for an
// unknown or already-removed connection is a no-op.
func (s *ChatService) Disconnect(connID string) {
	user, ok := s.presence.Remove(connID)
	if !ok {
		return
	}

	s.fanout.Unsubscribe(connID)

	if err := s.store.SetOnlineStatus(user.UserID, false); err != nil {
		log.Printf("Failed to mark user %d offline: %v", user.UserID, err)
	}
	if err := s.store.RemoveSession(user.SessionID); err != nil {
		log.Printf("Failed to remove session for user %d: %v", user.UserID, err)
	}

	s.fanout.EmitToRoom(user.Room, WSMessage{
		Type: "message",
		Data: s.format.Live(botName, user.Username+" has left the chat! 👋"),
	})

	if _, err := s.store.CreateMessage(user.UserID, user.Room, user.Username+" has left the chat!", "system"); err != nil {
		log.Printf("Failed to persist leave notice for %s: %v", user.Username, err)
	}

	s.broadcastRoomUsers(user.Room)

	log.Printf("%s left room %s", user.Username, user.Room)
}

// broadcastRoomUsers publishes the room's member list. The durable store
// is authoritative; if it fails, the list is derived from live presence,
// which may miss users connected before a restart.
func (s *ChatService) broadcastRoomUsers(room string) {
	users, err := s.store.ListUsersInRoom(room)
	if err != nil {
		log.Printf("Failed to list users in %q, falling back to presence: %v", room, err)
		users = make([]RoomUser, 0)
		for _, cu := range s.presence.UsersInRoom(room) {
			users = append(users, RoomUser{Username: cu.Username})
		}
	}

	s.fanout.EmitToRoom(room, WSMessage{
		Type: "roomUsers",
		Data: RoomUsersData{Room: room, Users: users},
	})
}

func (s *ChatService) emitError(connID, message string) {
	s.fanout.EmitToConnection(connID, WSMessage{Type: "error", Data: message})
}
