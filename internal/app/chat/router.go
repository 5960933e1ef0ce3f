/*
Package chat contains the realtime core of the direct-message server: the room router,
presence tracking, session binding, the event dispatcher and the websocket client pumps.

This file defines the Router, which owns the table of live connections and the per-user
rooms built from it. A room is the set of connections bound to one username; it exists
while that set is non-empty.
*/
package chat

import (
	"sync"

	"github.com/rs/zerolog"

	"dmchat/internal/pkg/logx"
	"dmchat/internal/pkg/metrics"
)

// Conn is a live connection as seen by the router.
type Conn interface {
	// ID identifies the connection for its lifetime.
	ID() string

	// Deliver queues frame without blocking and reports whether it was accepted.
	Deliver(frame []byte) bool

	// Close stops delivery and releases the connection.
	Close()
}

// Broadcaster emits encoded frames to a user's room or to every connection.
type Broadcaster interface {
	EmitToUser(username string, frame []byte)
	EmitToAll(frame []byte)
}

// Router maps usernames to the set of connections bound to them.
type Router struct {
	// conns holds every registered connection, bound or not.
	conns map[string]Conn

	// rooms holds the bound connections of each username, keyed by connection id.
	rooms map[string]map[string]Conn

	// bindings maps a connection id to its bound username.
	bindings map[string]string

	// mu protects the three maps.
	mu sync.RWMutex

	logger zerolog.Logger
}

var _ Broadcaster = (*Router)(nil)

// NewRouter constructs an empty Router.
func NewRouter() *Router {
	return &Router{
		conns:    make(map[string]Conn),
		rooms:    make(map[string]map[string]Conn),
		bindings: make(map[string]string),
		logger:   logx.Component("Router"),
	}
}

// Register adds conn to the connection table so it receives global events.
func (r *Router) Register(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[conn.ID()]; ok {
		return
	}
	r.conns[conn.ID()] = conn
	metrics.ActiveConnections.Inc()
}

// Deregister removes conn from the connection table. Any binding must be released first.
func (r *Router) Deregister(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[conn.ID()]; !ok {
		return
	}
	delete(r.conns, conn.ID())
	metrics.ActiveConnections.Dec()
}

// Bind adds conn to username's room, registering it if needed.
// It reports whether username's room was empty before.
func (r *Router) Bind(conn Conn, username string) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[conn.ID()]; !ok {
		r.conns[conn.ID()] = conn
		metrics.ActiveConnections.Inc()
	}

	if prev, bound := r.bindings[conn.ID()]; bound && prev != username {
		r.removeLocked(conn.ID(), prev)
	}

	room, ok := r.rooms[username]
	if !ok {
		room = make(map[string]Conn)
		r.rooms[username] = room
		metrics.BoundUsers.Inc()
	}

	room[conn.ID()] = conn
	r.bindings[conn.ID()] = username

	r.logger.Debug().
		Str("conn_id", conn.ID()).
		Str("username", username).
		Int("room_size", len(room)).
		Msg("Connection bound.")

	return !ok
}

// Unbind removes conn from its room. It returns the username it was bound to, or "" when
// it was not bound, and whether the room became empty.
func (r *Router) Unbind(conn Conn) (username string, last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	username, ok := r.bindings[conn.ID()]
	if !ok {
		return "", false
	}
	last = r.removeLocked(conn.ID(), username)

	r.logger.Debug().
		Str("conn_id", conn.ID()).
		Str("username", username).
		Bool("room_empty", last).
		Msg("Connection unbound.")

	return username, last
}

// removeLocked drops the binding of connID to username and reports whether the room emptied.
func (r *Router) removeLocked(connID, username string) bool {
	delete(r.bindings, connID)

	room := r.rooms[username]
	delete(room, connID)
	if len(room) > 0 {
		return false
	}

	delete(r.rooms, username)
	metrics.BoundUsers.Dec()
	return true
}

// Username returns the username conn is bound to.
func (r *Router) Username(conn Conn) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	username, ok := r.bindings[conn.ID()]
	return username, ok
}

// Route returns a snapshot of the connections bound to username.
func (r *Router) Route(username string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := r.rooms[username]
	out := make([]Conn, 0, len(room))
	for _, c := range room {
		out = append(out, c)
	}
	return out
}

// Online reports whether username has at least one bound connection.
func (r *Router) Online(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms[username]) > 0
}

// Count returns the number of registered connections and of non-empty rooms.
func (r *Router) Count() (conns, users int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns), len(r.rooms)
}

// EmitToUser delivers frame to every connection in username's room.
// An empty room drops the frame.
func (r *Router) EmitToUser(username string, frame []byte) {
	r.deliver(r.Route(username), frame)
}

// EmitToAll delivers frame to every registered connection.
func (r *Router) EmitToAll(frame []byte) {
	r.mu.RLock()
	targets := make([]Conn, 0, len(r.conns))
	for _, c := range r.conns {
		targets = append(targets, c)
	}
	r.mu.RUnlock()

	r.deliver(targets, frame)
}

func (r *Router) deliver(targets []Conn, frame []byte) {
	for _, c := range targets {
		if !c.Deliver(frame) {
			metrics.DeliveriesDropped.Inc()
			r.logger.Warn().Str("conn_id", c.ID()).Msg("Connection queue full or closed, frame dropped.")
		}
	}
}

// Shutdown closes every registered connection and clears the tables.
func (r *Router) Shutdown() {
	r.logger.Info().Msg("Shutting down router...")

	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]Conn)
	r.rooms = make(map[string]map[string]Conn)
	r.bindings = make(map[string]string)
	r.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	metrics.ActiveConnections.Set(0)
	metrics.BoundUsers.Set(0)

	r.logger.Info().Int("closed", len(conns)).Msg("Router shutdown complete.")
}
