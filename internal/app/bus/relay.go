/*
Package bus relays realtime frames between server processes over Redis pub/sub.

A Relay wraps the local router: every emission is delivered locally and published once on a
shared channel. Each process subscribes to that channel and delivers envelopes published by
other processes to its own connections. Delivery stays at-most-once.
*/
package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"dmchat/internal/app/chat"
	"dmchat/internal/pkg/logx"
	"dmchat/internal/pkg/metrics"
	"dmchat/internal/pkg/randx"
)

// DefaultChannel is the Redis channel shared by all processes.
const DefaultChannel = "dmchat:events"

const publishTimeout = 2 * time.Second

// Scope selects the local audience of a relayed frame.
type Scope string

const (
	ScopeUser   Scope = "user"
	ScopeGlobal Scope = "global"
)

// Envelope is the relayed unit. Frame is the encoded websocket frame, passed through as is.
type Envelope struct {
	Origin   string          `json:"origin"`
	Scope    Scope           `json:"scope"`
	Username string          `json:"username,omitempty"`
	Frame    json.RawMessage `json:"frame"`
}

// Connect parses redisURL and checks the server is reachable.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return rdb, nil
}

// Relay implements chat.Broadcaster on top of a local broadcaster and Redis.
type Relay struct {
	rdb     *redis.Client
	local   chat.Broadcaster
	origin  string
	channel string
	logger  zerolog.Logger
}

var _ chat.Broadcaster = (*Relay)(nil)

// NewRelay builds a relay publishing on DefaultChannel under a fresh origin id.
func NewRelay(rdb *redis.Client, local chat.Broadcaster) *Relay {
	origin := randx.ConnectionID()

	return &Relay{
		rdb:     rdb,
		local:   local,
		origin:  origin,
		channel: DefaultChannel,
		logger:  logx.Logger().With().Str("component", "Relay").Str("origin", origin).Logger(),
	}
}

// EmitToUser delivers frame to the local room of username and publishes it.
func (r *Relay) EmitToUser(username string, frame []byte) {
	r.local.EmitToUser(username, frame)
	r.publish(Envelope{Origin: r.origin, Scope: ScopeUser, Username: username, Frame: frame})
}

// EmitToAll delivers frame to every local connection and publishes it.
func (r *Relay) EmitToAll(frame []byte) {
	r.local.EmitToAll(frame)
	r.publish(Envelope{Origin: r.origin, Scope: ScopeGlobal, Frame: frame})
}

func (r *Relay) publish(env Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to marshal envelope")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := r.rdb.Publish(ctx, r.channel, payload).Err(); err != nil {
		r.logger.Error().Err(err).Str("channel", r.channel).Msg("Failed to publish envelope")
		return
	}
	metrics.RelayMessages.WithLabelValues("out").Inc()
}

// Run subscribes to the shared channel and delivers remote envelopes until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	pubsub := r.rdb.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	r.logger.Info().Str("channel", r.channel).Msg("Subscription confirmed, listening for envelopes...")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("Relay stopped.")
			return nil

		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle([]byte(msg.Payload))
		}
	}
}

// handle delivers one received envelope locally, skipping this process's own.
func (r *Relay) handle(payload []byte) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		r.logger.Warn().Err(err).Int("bytes", len(payload)).Msg("Dropping undecodable envelope")
		return
	}

	if env.Origin == r.origin {
		return
	}
	metrics.RelayMessages.WithLabelValues("in").Inc()

	switch env.Scope {
	case ScopeUser:
		if env.Username == "" {
			return
		}
		r.local.EmitToUser(env.Username, env.Frame)
	case ScopeGlobal:
		r.local.EmitToAll(env.Frame)
	default:
		r.logger.Warn().Str("scope", string(env.Scope)).Msg("Dropping envelope with unknown scope")
	}
}
