package chat

import (
	"sync"
	"time"
)

// Status is the presence of one user.
type Status struct {
	Online   bool
	LastSeen time.Time
}

// Presence tracks online/offline state per username. It holds no history; the last-seen
// time survives restarts only through the user store.
type Presence struct {
	mu    sync.RWMutex
	users map[string]Status
}

// NewPresence constructs an empty tracker.
func NewPresence() *Presence {
	return &Presence{users: make(map[string]Status)}
}

// SetOnline marks username online, keeping the previous last-seen time.
func (p *Presence) SetOnline(username string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.users[username]
	s.Online = true
	p.users[username] = s
}

// SetOffline marks username offline as of at.
func (p *Presence) SetOffline(username string, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.users[username] = Status{Online: false, LastSeen: at}
}

// Get returns the status of username; unknown users are offline with a zero LastSeen.
func (p *Presence) Get(username string) Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.users[username]
}

// IsOnline reports whether username is online.
func (p *Presence) IsOnline(username string) bool {
	return p.Get(username).Online
}
