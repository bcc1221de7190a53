package main

import (
	"database/sql"
	"errors"
	"strings"
	"time"
	"unicode"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"
)

type Database struct {
	db *sql.DB
}

func NewDatabase(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &Database{db: db}, nil
}

func (d *Database) CreateTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username VARCHAR(50) UNIQUE NOT NULL,
		email VARCHAR(100) UNIQUE NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		avatar_url TEXT NOT NULL DEFAULT '',
		is_online BOOLEAN NOT NULL DEFAULT 0,
		last_seen DATETIME DEFAULT CURRENT_TIMESTAMP,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS rooms (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name VARCHAR(100) UNIQUE NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		room_id INTEGER NOT NULL,
		message TEXT NOT NULL,
		message_type TEXT NOT NULL DEFAULT 'text' CHECK (message_type IN ('text', 'system')),
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		is_deleted BOOLEAN NOT NULL DEFAULT 0,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
		FOREIGN KEY (room_id) REFERENCES rooms(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS active_sessions (
		session_id VARCHAR(128) PRIMARY KEY,
		user_id INTEGER NOT NULL,
		socket_id VARCHAR(64) NOT NULL,
		room_name VARCHAR(100) NOT NULL,
		ip_address VARCHAR(64),
		user_agent TEXT,
		last_activity DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_messages_room_time ON messages(room_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_sessions_room ON active_sessions(room_name);
	CREATE INDEX IF NOT EXISTS idx_sessions_activity ON active_sessions(last_activity);

	CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts4(
		content="messages",
		message
	);

	CREATE TRIGGER IF NOT EXISTS messages_fts_insert AFTER INSERT ON messages BEGIN
		INSERT INTO messages_fts(docid, message) VALUES (new.id, new.message);
	END;

	CREATE TRIGGER IF NOT EXISTS messages_fts_delete BEFORE DELETE ON messages BEGIN
		DELETE FROM messages_fts WHERE docid = old.id;
	END;

	CREATE TRIGGER IF NOT EXISTS messages_fts_update_old BEFORE UPDATE OF message ON messages BEGIN
		DELETE FROM messages_fts WHERE docid = old.id;
	END;

	CREATE TRIGGER IF NOT EXISTS messages_fts_update_new AFTER UPDATE OF message ON messages BEGIN
		INSERT INTO messages_fts(docid, message) VALUES (new.id, new.message);
	END;
	`

	_, err := d.db.Exec(schema)
	return err
}

// EnsureDefaultRooms seeds the named rooms if they do not exist yet. Room
// management is otherwise outside this service; messages to unknown rooms
// are rejected rather than auto-creating them.
func (d *Database) EnsureDefaultRooms(names []string) error {
	for _, name := range names {
		if _, err := d.db.Exec("INSERT OR IGNORE INTO rooms (name) VALUES (?)", name); err != nil {
			return err
		}
	}
	return nil
}

func (d *Database) CreateUser(username, email, password string) (*User, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	result, err := d.db.Exec(
		"INSERT INTO users (username, email, password_hash) VALUES (?, ?, ?)",
		username, email, string(hashedPassword),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, storageErr("create user", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, storageErr("create user", err)
	}

	return d.FindUserByID(int(id))
}

func (d *Database) scanUser(row *sql.Row) (*User, error) {
	user := &User{}
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.AvatarURL, &user.IsOnline, &user.LastSeen, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("scan user", err)
	}
	return user, nil
}

const userColumns = "id, username, email, password_hash, avatar_url, is_online, last_seen, created_at"

func (d *Database) FindUserByID(userID int) (*User, error) {
	return d.scanUser(d.db.QueryRow(
		"SELECT "+userColumns+" FROM users WHERE id = ?", userID))
}

func (d *Database) FindUserByUsername(username string) (*User, error) {
	return d.scanUser(d.db.QueryRow(
		"SELECT "+userColumns+" FROM users WHERE username = ?", username))
}

func (d *Database) FindUserByEmail(email string) (*User, error) {
	return d.scanUser(d.db.QueryRow(
		"SELECT "+userColumns+" FROM users WHERE email = ?", email))
}

// VerifyPassword checks a plain password against its bcrypt hash.
func (d *Database) VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// SetOnlineStatus flips the user's online flag and refreshes last_seen.
// Callers on the live path treat failures as log-and-continue.
func (d *Database) SetOnlineStatus(userID int, online bool) error {
	_, err := d.db.Exec(
		"UPDATE users SET is_online = ?, last_seen = CURRENT_TIMESTAMP WHERE id = ?",
		online, userID,
	)
	if err != nil {
		return storageErr("set online status", err)
	}
	return nil
}

// CreateMessage persists one message in the named room. The room must
// already exist; unknown rooms yield ErrNotFound.
func (d *Database) CreateMessage(userID int, roomName, body, msgType string) (int, error) {
	var roomID int
	err := d.db.QueryRow("SELECT id FROM rooms WHERE name = ?", roomName).Scan(&roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, storageErr("resolve room", err)
	}

	result, err := d.db.Exec(
		"INSERT INTO messages (user_id, room_id, message, message_type) VALUES (?, ?, ?, ?)",
		userID, roomID, body, msgType,
	)
	if err != nil {
		return 0, storageErr("create message", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, storageErr("create message", err)
	}
	return int(id), nil
}

const messageColumns = `m.id, m.user_id, m.room_id, u.username, u.avatar_url, m.message, m.message_type, m.timestamp`

func (d *Database) scanMessages(rows *sql.Rows) ([]Message, error) {
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		var m Message
		err := rows.Scan(&m.ID, &m.UserID, &m.RoomID, &m.Username, &m.AvatarURL,
			&m.Body, &m.Type, &m.Timestamp)
		if err != nil {
			return nil, storageErr("scan message", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("scan messages", err)
	}
	return messages, nil
}

// GetRecentMessages returns the limit most recent non-deleted messages of
// a room in chronological order, oldest first.
func (d *Database) GetRecentMessages(roomName string, limit int) ([]Message, error) {
	rows, err := d.db.Query(`
		SELECT `+messageColumns+`
		FROM messages m
		JOIN users u ON m.user_id = u.id
		JOIN rooms r ON m.room_id = r.id
		WHERE r.name = ? AND m.is_deleted = 0
		ORDER BY m.timestamp DESC, m.id DESC
		LIMIT ?
	`, roomName, limit)
	if err != nil {
		return nil, storageErr("recent messages", err)
	}

	messages, err := d.scanMessages(rows)
	if err != nil {
		return nil, err
	}

	// Reverse to get chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// ftsQuery turns a raw user term into a safe MATCH expression: each
// whitespace-separated word becomes a quoted token, so query syntax in
// the input (an unbalanced quote, OR, parentheses) is matched literally
// instead of erroring. Words with nothing the tokenizer would index are
// dropped; an input with no indexable words yields an empty expression.
func ftsQuery(term string) string {
	words := strings.Fields(term)
	quoted := make([]string, 0, len(words))
	for _, word := range words {
		if !strings.ContainsFunc(word, func(r rune) bool {
			return unicode.IsLetter(r) || unicode.IsDigit(r)
		}) {
			continue
		}
		quoted = append(quoted, `"`+strings.ReplaceAll(word, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}

// SearchMessages runs a full-text match over a room's message bodies,
// most recent first. The term is matched word-wise; terms with no
// indexable words return no rows.
func (d *Database) SearchMessages(roomName, term string, limit int) ([]Message, error) {
	query := ftsQuery(term)
	if query == "" {
		return []Message{}, nil
	}

	rows, err := d.db.Query(`
		SELECT `+messageColumns+`
		FROM messages_fts
		JOIN messages m ON m.id = messages_fts.docid
		JOIN users u ON m.user_id = u.id
		JOIN rooms r ON m.room_id = r.id
		WHERE r.name = ? AND m.is_deleted = 0 AND messages_fts MATCH ?
		ORDER BY m.timestamp DESC, m.id DESC
		LIMIT ?
	`, roomName, query, limit)
	if err != nil {
		return nil, storageErr("search messages", err)
	}

	return d.scanMessages(rows)
}

// GetMessageCount reports how many non-deleted messages a room holds.
func (d *Database) GetMessageCount(roomName string) (int, error) {
	var count int
	err := d.db.QueryRow(`
		SELECT COUNT(*)
		FROM messages m
		JOIN rooms r ON m.room_id = r.id
		WHERE r.name = ? AND m.is_deleted = 0
	`, roomName).Scan(&count)
	if err != nil {
		return 0, storageErr("message count", err)
	}
	return count, nil
}

// UpsertSession creates or overwrites the active session keyed by
// sessionID. A session reconnecting or switching rooms replaces its prior
// socket/room and refreshes last_activity.
func (d *Database) UpsertSession(sessionID string, userID int, connID, roomName, ip, userAgent string) error {
	_, err := d.db.Exec(`
		INSERT INTO active_sessions (session_id, user_id, socket_id, room_name, ip_address, user_agent)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			socket_id = excluded.socket_id,
			room_name = excluded.room_name,
			last_activity = CURRENT_TIMESTAMP
	`, sessionID, userID, connID, roomName, ip, userAgent)
	if err != nil {
		return storageErr("upsert session", err)
	}
	return nil
}

// GetActiveSession returns the durable session row for a session id.
func (d *Database) GetActiveSession(sessionID string) (*ActiveSession, error) {
	sess := &ActiveSession{}
	err := d.db.QueryRow(`
		SELECT session_id, user_id, socket_id, room_name, ip_address, user_agent, last_activity
		FROM active_sessions WHERE session_id = ?
	`, sessionID).Scan(&sess.SessionID, &sess.UserID, &sess.SocketID, &sess.RoomName,
		&sess.IPAddress, &sess.UserAgent, &sess.LastActivity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get session", err)
	}
	return sess, nil
}

func (d *Database) RemoveSession(sessionID string) error {
	_, err := d.db.Exec("DELETE FROM active_sessions WHERE session_id = ?", sessionID)
	if err != nil {
		return storageErr("remove session", err)
	}
	return nil
}

// ReapStaleSessions deletes sessions idle for longer than olderThan and
// returns how many were removed.
func (d *Database) ReapStaleSessions(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	result, err := d.db.Exec("DELETE FROM active_sessions WHERE last_activity < ?", cutoff)
	if err != nil {
		return 0, storageErr("reap sessions", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, storageErr("reap sessions", err)
	}
	return n, nil
}

// ListUsersInRoom returns the distinct users with an active session in a
// room, ordered by username.
func (d *Database) ListUsersInRoom(roomName string) ([]RoomUser, error) {
	rows, err := d.db.Query(`
		SELECT DISTINCT u.id, u.username, u.is_online, u.avatar_url
		FROM users u
		JOIN active_sessions s ON u.id = s.user_id
		WHERE s.room_name = ?
		ORDER BY u.username
	`, roomName)
	if err != nil {
		return nil, storageErr("list room users", err)
	}
	defer rows.Close()

	users := make([]RoomUser, 0)
	for rows.Next() {
		var u RoomUser
		if err := rows.Scan(&u.ID, &u.Username, &u.IsOnline, &u.Avatar); err != nil {
			return nil, storageErr("list room users", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list room users", err)
	}
	return users, nil
}

// RoomExists reports whether the named room is provisioned.
func (d *Database) RoomExists(roomName string) (bool, error) {
	var count int
	err := d.db.QueryRow("SELECT COUNT(*) FROM rooms WHERE name = ?", roomName).Scan(&count)
	if err != nil {
		return false, storageErr("room lookup", err)
	}
	return count > 0, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}
