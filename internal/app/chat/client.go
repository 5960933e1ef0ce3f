package chat

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"dmchat/internal/pkg/auth/jwt"
	"dmchat/internal/pkg/logx"
	"dmchat/internal/pkg/randx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// sendQueueSize is the number of frames buffered per connection before drops start.
	sendQueueSize = 256

	// DefaultMaxMessageBytes bounds one inbound frame. Audio blobs travel inline.
	DefaultMaxMessageBytes = 8 << 20

	// TokenRefreshWindow defines how much time before the token expires we should attempt to refresh it.
	TokenRefreshWindow = 2 * time.Minute
)

// Identity is the authenticated user of a connection, taken from the upgrade token.
type Identity struct {
	Username string
	Expiry   time.Time
}

// ClientConfig holds the per-connection settings chosen at upgrade time.
type ClientConfig struct {
	// Identity is nil for connections opened without a token.
	Identity *Identity

	// JWTSecret signs refreshed tokens.
	JWTSecret string

	// MaxMessageBytes overrides DefaultMaxMessageBytes when positive.
	MaxMessageBytes int64
}

// Client is one websocket connection. It implements Conn.
type Client struct {
	id   string
	conn *websocket.Conn

	sessions   *Sessions
	dispatcher *Dispatcher

	identity  *Identity
	jwtSecret string
	readLimit int64

	// send queues encoded frames for WritePump; closed exactly once by Close.
	send   chan []byte
	mu     sync.Mutex
	closed bool

	logger zerolog.Logger
}

var _ Conn = (*Client)(nil)

// NewClient constructs a Client for an upgraded connection.
func NewClient(wsConn *websocket.Conn, sessions *Sessions, dispatcher *Dispatcher, cfg ClientConfig) *Client {
	id := randx.ConnectionID()

	readLimit := cfg.MaxMessageBytes
	if readLimit <= 0 {
		readLimit = DefaultMaxMessageBytes
	}

	var identity *Identity
	logCtx := logx.Logger().With().Str("component", "Client").Str("conn_id", id)
	if cfg.Identity != nil {
		own := *cfg.Identity
		identity = &own
		logCtx = logCtx.Str("username", own.Username)
	}

	return &Client{
		id:         id,
		conn:       wsConn,
		sessions:   sessions,
		dispatcher: dispatcher,
		identity:   identity,
		jwtSecret:  cfg.JWTSecret,
		readLimit:  readLimit,
		send:       make(chan []byte, sendQueueSize),
		logger:     logCtx.Logger(),
	}
}

// ID implements Conn.
func (c *Client) ID() string {
	return c.id
}

// Deliver implements Conn. It never blocks; a full or closed queue drops the frame.
func (c *Client) Deliver(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close implements Conn. WritePump sends a close frame and exits once the queue drains.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// ReadPump handles reading frames from the WebSocket connection until it fails, then
// releases the session. ctx scopes the store calls made for inbound events.
func (c *Client) ReadPump(ctx context.Context) {
	c.sessions.Connect(c)
	defer c.cleanupOnDisconnect(ctx)

	c.conn.SetReadLimit(c.readLimit)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading message (Client close/going away)")
			}
			break
		}

		c.processInbound(ctx, data)
	}
}

// cleanupOnDisconnect releases the binding and closes the connection.
func (c *Client) cleanupOnDisconnect(ctx context.Context) {
	c.logger.Info().Msg("Client connection cleanup starting.")

	c.sessions.Disconnect(context.WithoutCancel(ctx), c)
	c.Close()

	if err := c.conn.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Client connection close error")
	}
}

// processInbound decodes one frame and hands it to the session or dispatcher.
// Malformed frames are logged and dropped; the connection stays open.
func (c *Client) processInbound(ctx context.Context, data []byte) {
	frame, err := DecodeFrame(data)
	if err != nil {
		c.logger.Warn().Err(err).Int("bytes", len(data)).Msg("Client sent invalid JSON")
		return
	}

	if frame.Type == EventJoin {
		c.handleJoin(ctx, frame.Payload)
		return
	}

	actor, _ := c.sessions.Username(c)

	switch frame.Type {
	case EventSendMessage:
		var p SendPayload
		if !c.decode(frame, &p) {
			return
		}
		c.dispatcher.Send(ctx, actor, p)

	case EventReadMessage:
		p, ok := decodeRead(frame.Payload)
		if !ok {
			c.logger.Warn().Str("msg_type", string(frame.Type)).Msg("Client sent invalid payload")
			return
		}
		c.dispatcher.MarkRead(ctx, actor, p)

	case EventEditMessage:
		var p EditPayload
		if !c.decode(frame, &p) {
			return
		}
		c.dispatcher.Edit(ctx, actor, p)

	case EventDelete:
		var p DeletePayload
		if !c.decode(frame, &p) {
			return
		}
		c.dispatcher.Delete(ctx, actor, p)

	case EventTyping:
		c.dispatcher.Typing(actor, frame.Payload)

	default:
		c.logger.Warn().Str("msg_type", string(frame.Type)).Msg("Client sent unsupported message type")
	}
}

// handleJoin binds the connection. A token-authenticated connection may only join as
// the token's user.
func (c *Client) handleJoin(ctx context.Context, raw json.RawMessage) {
	username := decodeUsername(raw)

	if c.identity != nil && username != c.identity.Username {
		c.logger.Warn().Str("requested", username).Msg("Join rejected: username does not match token")
		return
	}

	c.sessions.Bind(ctx, c, username)
}

func (c *Client) decode(frame Frame, dst any) bool {
	if err := json.Unmarshal(frame.Payload, dst); err != nil {
		c.logger.Warn().Err(err).Str("msg_type", string(frame.Type)).Msg("Client sent invalid payload")
		return false
	}
	return true
}

// WritePump handles writing frames from the send queue to the WebSocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		// ensure the connection is closed on exit
		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !c.writeQueuedMessage(frame, ok) {
				return
			}

		case <-ticker.C:
			if !c.writePingMessage() {
				return
			}

			c.checkAndRefreshToken()
		}
	}
}

// writeQueuedMessage writes one queued frame, or a close frame once the queue is closed.
// Returns true if the WritePump loop should continue, false if it should terminate.
func (c *Client) writeQueuedMessage(frame []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			c.logger.Debug().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.logger.Error().Err(err).Msg("Error writing message")
		return false
	}

	return true
}

// writePingMessage sends a periodic WebSocket Ping message to maintain the connection heartbeat.
func (c *Client) writePingMessage() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Error().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}

// checkAndRefreshToken issues a fresh identity token when the current one is close to expiry.
// Anonymous connections have nothing to refresh.
func (c *Client) checkAndRefreshToken() {
	if c.identity == nil || c.jwtSecret == "" {
		return
	}
	if time.Now().Before(c.identity.Expiry.Add(-TokenRefreshWindow)) {
		return
	}

	c.logger.Info().
		Time("current_expiry", c.identity.Expiry).
		Dur("refresh_window", TokenRefreshWindow).
		Msg("JWT token is nearing expiry, attempting refresh.")

	payload := &jwt.Payload{Username: c.identity.Username}

	tokenString, err := jwt.GenerateToken(payload, c.jwtSecret, jwt.UserIdentityExpiration)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to generate new token. Aborting refresh.")
		return
	}

	frame, err := EncodeFrame(EventTokenUpdate, TokenUpdatePayload{Token: tokenString})
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to build token_update frame.")
		return
	}

	if !c.Deliver(frame) {
		c.logger.Warn().Msg("Failed to queue token_update, will retry on next tick.")
		return
	}

	c.identity.Expiry = payload.ExpiresAtTime()
}
