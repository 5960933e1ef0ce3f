package chat

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"dmchat/internal/app/user"
	"dmchat/internal/pkg/logx"
	"dmchat/internal/pkg/metrics"
)

// Sessions binds live connections to usernames and keeps presence in step with the router.
type Sessions struct {
	router   *Router
	presence *Presence
	users    user.Store
	out      Broadcaster
	now      func() time.Time
	logger   zerolog.Logger

	// mu serializes bind and unbind so the router, presence and the emitted status agree.
	mu sync.Mutex
}

// SessionOption configures Sessions.
type SessionOption func(*Sessions)

// WithSessionClock overrides the clock used for last-seen stamps.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *Sessions) {
		s.now = now
	}
}

// NewSessions builds the binding layer. Presence events go through out, which is usually
// the router itself or a relay wrapping it.
func NewSessions(router *Router, presence *Presence, users user.Store, out Broadcaster, opts ...SessionOption) *Sessions {
	s := &Sessions{
		router:   router,
		presence: presence,
		users:    users,
		out:      out,
		now:      time.Now,
		logger:   logx.Component("Sessions"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect registers conn for global events before it binds.
func (s *Sessions) Connect(conn Conn) {
	s.router.Register(conn)
}

// Username returns the username conn is bound to.
func (s *Sessions) Username(conn Conn) (string, bool) {
	return s.router.Username(conn)
}

// Bind associates conn with username, marks the user online and broadcasts user_status.
// Binding to the current username is a no-op; binding to another one releases the
// previous binding first.
func (s *Sessions) Bind(ctx context.Context, conn Conn, username string) {
	if username == "" {
		metrics.OperationsIgnored.WithLabelValues(string(EventJoin), "invalid").Inc()
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.router.Username(conn); ok {
		if current == username {
			return
		}
		s.unbindLocked(ctx, conn)
	}

	s.router.Bind(conn, username)
	s.presence.SetOnline(username)

	if err := s.users.TouchLastSeen(ctx, username, s.now()); err != nil {
		metrics.StoreFailures.WithLabelValues(string(EventJoin)).Inc()
		s.logger.Error().Err(err).Str("username", username).Msg("Failed to stamp last seen on join.")
	}

	s.emitStatus(UserStatusPayload{Username: username, Status: StatusOnline})

	s.logger.Info().Str("conn_id", conn.ID()).Str("username", username).Msg("Session bound.")
}

// Unbind releases the binding of conn. When it was the user's last connection the user
// goes offline and user_status is broadcast with the last-seen time.
// Unbound connections produce no event.
func (s *Sessions) Unbind(ctx context.Context, conn Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.unbindLocked(ctx, conn)
}

func (s *Sessions) unbindLocked(ctx context.Context, conn Conn) {
	username, last := s.router.Unbind(conn)
	if username == "" || !last {
		return
	}

	now := s.now()
	s.presence.SetOffline(username, now)

	if err := s.users.TouchLastSeen(ctx, username, now); err != nil {
		metrics.StoreFailures.WithLabelValues("disconnect").Inc()
		s.logger.Error().Err(err).Str("username", username).Msg("Failed to stamp last seen on disconnect.")
	}

	s.emitStatus(UserStatusPayload{Username: username, Status: StatusOffline, LastSeen: &now})

	s.logger.Info().Str("conn_id", conn.ID()).Str("username", username).Msg("User went offline.")
}

// Disconnect unbinds conn and removes it from the connection table.
func (s *Sessions) Disconnect(ctx context.Context, conn Conn) {
	s.Unbind(ctx, conn)
	s.router.Deregister(conn)
}

func (s *Sessions) emitStatus(p UserStatusPayload) {
	frame, err := EncodeFrame(EventUserStatus, p)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode user_status.")
		return
	}
	s.out.EmitToAll(frame)
	metrics.EventsEmitted.WithLabelValues(string(EventUserStatus)).Inc()
}
