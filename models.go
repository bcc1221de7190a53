package main

import (
	"time"
)

type User struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	IsOnline     bool      `json:"is_online"`
	LastSeen     time.Time `json:"last_seen"`
	CreatedAt    time.Time `json:"created_at"`
}

type Room struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type Message struct {
	ID        int       `json:"id"`
	UserID    int       `json:"user_id"`
	RoomID    int       `json:"room_id"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	Body      string    `json:"message"`
	Type      string    `json:"message_type"` // "text" or "system"
	Timestamp time.Time `json:"timestamp"`
}

// RoomUser is one entry of the roomUsers broadcast. Entries built from the
// presence fallback carry a username only.
type RoomUser struct {
	ID       int    `json:"id,omitempty"`
	Username string `json:"username"`
	IsOnline bool   `json:"isOnline"`
	Avatar   string `json:"avatar,omitempty"`
}

// ActiveSession is the durable mirror of a live session, keyed by the
// session id. One row per session; a reconnect overwrites it.
type ActiveSession struct {
	SessionID    string    `json:"session_id"`
	UserID       int       `json:"user_id"`
	SocketID     string    `json:"socket_id"`
	RoomName     string    `json:"room_name"`
	IPAddress    string    `json:"ip_address"`
	UserAgent    string    `json:"user_agent"`
	LastActivity time.Time `json:"last_activity"`
}

// Identity is an already-authenticated user, resolved from the session
// token before any room join happens.
type Identity struct {
	UserID   int
	Username string
}

// ConnectedUser is the in-memory presence record for one live connection.
type ConnectedUser struct {
	UserID    int
	ConnID    string
	SessionID string
	Username  string
	Room      string
	JoinedAt  time.Time
}

// WebSocket message envelope, both directions
type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

type JoinRoomData struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

type ChatMessageData struct {
	Text string `json:"text"`
}

// FormattedMessage is the outbound shape of both live and replayed
// messages. ID and Avatar are only set on the history path.
type FormattedMessage struct {
	ID        int       `json:"id,omitempty"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	Time      string    `json:"time"`
	Timestamp time.Time `json:"timestamp"`
	Avatar    string    `json:"avatar,omitempty"`
}

type RoomUsersData struct {
	Room  string     `json:"room"`
	Users []RoomUser `json:"users"`
}

type TypingData struct {
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}
