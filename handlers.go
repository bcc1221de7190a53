package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
)

func decodeJSONBody(r *http.Request, dst interface{}) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

type Server struct {
	db     *Database
	auth   *AuthManager
	hub    *Hub
	chat   *ChatService
	format *MessageFormatter
	config Config
}

func NewServer(db *Database, config Config) *Server {
	auth := NewAuthManager(db, config.SessionMaxAge)
	format := NewMessageFormatter(config.DisplayLocation())
	presence := NewPresenceDirectory()
	hub := NewHub()
	chat := NewChatService(db, presence, hub, format, config.ReplayLimit)

	return &Server{
		db:     db,
		auth:   auth,
		hub:    hub,
		chat:   chat,
		format: format,
		config: config,
	}
}

func (s *Server) RegisterRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Auth endpoints
	mux.HandleFunc("/auth/register", s.handleRegister)
	mux.HandleFunc("/auth/login", s.handleLogin)
	mux.HandleFunc("/auth/logout", s.auth.RequireAuth(s.handleLogout))

	// Message history and search
	mux.HandleFunc("/api/messages/", s.auth.RequireAuth(s.handleMessages))
	mux.HandleFunc("/api/search/", s.auth.RequireAuth(s.handleSearch))

	// WebSocket endpoint
	mux.HandleFunc("/ws", s.handleWebSocket)

	return mux
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := decodeJSONBody(r, &req); err != nil {
		respondError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if req.Username == "" || req.Email == "" || req.Password == "" {
		respondError(w, "All fields are required", http.StatusBadRequest)
		return
	}

	if len(req.Password) < 6 {
		respondError(w, "Password must be at least 6 characters", http.StatusBadRequest)
		return
	}

	if _, err := s.db.FindUserByEmail(req.Email); err == nil {
		respondError(w, "Email already registered", http.StatusConflict)
		return
	}
	if _, err := s.db.FindUserByUsername(req.Username); err == nil {
		respondError(w, "Username already taken", http.StatusConflict)
		return
	}

	user, err := s.db.CreateUser(req.Username, req.Email, req.Password)
	if err != nil {
		// The store enforces uniqueness too, in case of a racing register.
		if errors.Is(err, ErrConflict) {
			respondError(w, "Username or email already registered", http.StatusConflict)
			return
		}
		respondError(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	session, err := s.auth.CreateSession(user)
	if err != nil {
		respondError(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	respondJSON(w, map[string]interface{}{
		"user":  user,
		"token": session.Token,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := decodeJSONBody(r, &req); err != nil {
		respondError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	var user *User
	var err error
	switch {
	case req.Email != "":
		user, err = s.db.FindUserByEmail(req.Email)
	case req.Username != "":
		user, err = s.db.FindUserByUsername(req.Username)
	default:
		respondError(w, "Username or email required", http.StatusBadRequest)
		return
	}

	if err != nil || !s.db.VerifyPassword(req.Password, user.PasswordHash) {
		respondError(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	session, err := s.auth.CreateSession(user)
	if err != nil {
		respondError(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	respondJSON(w, map[string]interface{}{
		"user":  user,
		"token": session.Token,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	token := s.auth.ExtractToken(r)
	s.auth.DeleteSession(token)

	respondJSON(w, map[string]string{"status": "logged out"})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	room := strings.TrimPrefix(r.URL.Path, "/api/messages/")
	if room == "" {
		respondError(w, "Room name required", http.StatusBadRequest)
		return
	}

	limit := s.config.HistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}

	messages, err := s.db.GetRecentMessages(room, limit)
	if err != nil {
		respondError(w, "Error fetching messages", http.StatusInternalServerError)
		return
	}

	respondJSON(w, map[string]interface{}{
		"messages": s.format.StoredAll(messages),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	room := strings.TrimPrefix(r.URL.Path, "/api/search/")
	if room == "" {
		respondError(w, "Room name required", http.StatusBadRequest)
		return
	}

	term := r.URL.Query().Get("q")
	if term == "" {
		respondError(w, "Search term required", http.StatusBadRequest)
		return
	}

	messages, err := s.db.SearchMessages(room, term, s.config.SearchLimit)
	if err != nil {
		respondError(w, "Error searching messages", http.StatusInternalServerError)
		return
	}

	respondJSON(w, map[string]interface{}{
		"messages": s.format.StoredAll(messages),
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := s.auth.ExtractToken(r)
	if token == "" {
		http.Error(w, "Missing authorization token", http.StatusUnauthorized)
		return
	}

	session, err := s.auth.ValidateSession(token)
	if err != nil {
		http.Error(w, "Invalid or expired session", http.StatusUnauthorized)
		return
	}

	HandleConnection(w, r, session, s.hub, s.chat)
}
