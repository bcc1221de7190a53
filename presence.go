package main

import (
	"sync"
)

// PresenceDirectory tracks which user/room each live connection belongs
// to. It is the single source of truth for "who is connected right now";
// the database's active_sessions table mirrors it for cross-connection
// queries. All operations are single-key and safe for concurrent use.
type PresenceDirectory struct {
	mutex sync.RWMutex
	conns map[string]ConnectedUser
}

func NewPresenceDirectory() *PresenceDirectory {
	return &PresenceDirectory{
		conns: make(map[string]ConnectedUser),
	}
}

// Put records the user attached to connID, replacing any prior entry.
func (p *PresenceDirectory) Put(connID string, user ConnectedUser) {
	p.mutex.Lock()
	p.conns[connID] = user
	p.mutex.Unlock()
}

// Get returns the entry for connID, if any.
func (p *PresenceDirectory) Get(connID string) (ConnectedUser, bool) {
	p.mutex.RLock()
	user, ok := p.conns[connID]
	p.mutex.RUnlock()
	return user, ok
}

// Remove deletes and returns the entry for connID. Removing an absent
// entry is a no-op, which makes disconnect handling idempotent.
func (p *PresenceDirectory) Remove(connID string) (ConnectedUser, bool) {
	p.mutex.Lock()
	user, ok := p.conns[connID]
	if ok {
		delete(p.conns, connID)
	}
	p.mutex.Unlock()
	return user, ok
}

// UsersInRoom derives the members of room from live connections. This is
// the fallback path for membership lists when the database is unreachable;
// iteration order is unspecified.
func (p *PresenceDirectory) UsersInRoom(room string) []ConnectedUser {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	users := make([]ConnectedUser, 0)
	for _, user := range p.conns {
		if user.Room == room {
			users = append(users, user)
		}
	}
	return users
}

// Len reports the number of live connections.
func (p *PresenceDirectory) Len() int {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return len(p.conns)
}
