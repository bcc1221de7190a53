package main

import (
	"log"
	"net/http"
)

func main() {
	config := LoadConfig()

	db, err := NewDatabase(config.DBPath)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	if err := db.CreateTables(); err != nil {
		log.Fatal("Failed to create tables:", err)
	}

	if err := db.EnsureDefaultRooms(config.DefaultRooms); err != nil {
		log.Fatal("Failed to seed default rooms:", err)
	}

	reaper := NewSessionReaper(db, config.ReaperInterval, config.SessionMaxAge)
	reaper.Start()
	defer reaper.Stop()

	server := NewServer(db, config)
	mux := server.RegisterRoutes()
	handler := corsMiddleware(mux)

	log.Printf("XeroxChat server starting on %s", config.Port)
	log.Printf("WebSocket endpoint: ws://localhost%s/ws", config.Port)

	if err := http.ListenAndServe(config.Port, handler); err != nil {
		log.Fatal("Server failed:", err)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
