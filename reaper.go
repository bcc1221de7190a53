package main

import (
	"log"
	"time"
)

// SessionReaper periodically purges active_sessions rows whose
// last_activity is past the staleness window. It runs independently of
// any connection's lifecycle; failures are logged and the next tick tries
// again.
type SessionReaper struct {
	db       *Database
	interval time.Duration
	maxAge   time.Duration
	stop     chan struct{}
}

func NewSessionReaper(db *Database, interval, maxAge time.Duration) *SessionReaper {
	return &SessionReaper{
		db:       db,
		interval: interval,
		maxAge:   maxAge,
		stop:     make(chan struct{}),
	}
}

// Start launches the reaper loop in its own goroutine.
func (r *SessionReaper) Start() {
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.reap()
			case <-r.stop:
				return
			}
		}
	}()
}

func (r *SessionReaper) Stop() {
	close(r.stop)
}

func (r *SessionReaper) reap() {
	n, err := r.db.ReapStaleSessions(r.maxAge)
	if err != nil {
		log.Printf("Session reaper failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("Session reaper removed %d stale sessions", n)
	}
}
