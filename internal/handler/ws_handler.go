package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"dmchat/internal/app/chat"
	"dmchat/internal/pkg/auth/jwt"
	"dmchat/internal/pkg/errs"
	"dmchat/internal/pkg/limiter"
	"dmchat/internal/pkg/logx"
	"dmchat/internal/pkg/resp"
)

// HandleWebSocket creates an HTTP HandlerFunc that upgrades the connection and runs the
// client pumps. A valid token pins the connection to the token's user; without one the
// connection may join as any username.
func HandleWebSocket(deps *AppDeps, upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !rateLimiter.Allow(r) {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", logx.AnonymizeIP(r.RemoteAddr))
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		var identity *chat.Identity
		if tokenString := jwt.TokenFromRequest(r); tokenString != "" {
			payload, err := jwt.ParseToken(tokenString, deps.Config.JWTSecret)
			if err != nil {
				logx.Warn("WebSocket request rejected: invalid token", "error", err.Error())
				resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
				return
			}
			identity = &chat.Identity{Username: payload.Username, Expiry: payload.ExpiresAtTime()}
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		client := chat.NewClient(conn, deps.Sessions, deps.Dispatcher, chat.ClientConfig{
			Identity:        identity,
			JWTSecret:       deps.Config.JWTSecret,
			MaxMessageBytes: deps.Config.WSMaxMessageBytes,
		})

		go client.WritePump()

		logx.Info("WebSocket connection established", "conn_id", client.ID())

		client.ReadPump(r.Context())
	}
}
