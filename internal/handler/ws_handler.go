/*
Package handler provides the HTTP handler function for WebSocket connection upgrading and initialization.

HandleWebSocket upgrades the connection, hands it to the chat service together with the session
token found on the request, and then reads client frames until the peer goes away.
*/
package handler

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"fullchat/internal/app/chat"
	"fullchat/internal/pkg/auth/jwt"
	"fullchat/internal/pkg/errs"
	"fullchat/internal/pkg/limiter"
	"fullchat/internal/pkg/logx"
)

// HandleWebSocket creates an HTTP HandlerFunc to process WebSocket connection requests.
func HandleWebSocket(upgrader websocket.Upgrader, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := limiter.ClientIP(r)
		token := jwt.TokenFromRequest(r)

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket", "ip", ip)
			return
		}

		transport := chat.NewWSTransport(ws, deps.Config.IdleTimeout)

		// The request context ends when this handler returns, which is also when the connection ends.
		ctx := context.WithoutCancel(r.Context())

		conn, err := deps.Chat.OnConnect(ctx, chat.ConnectRequest{
			SessionToken: token,
			RemoteAddr:   ip,
			Transport:    transport,
		})
		if err != nil {
			logx.Info("WebSocket connection refused", "ip", ip, "error", err)
			return
		}
		defer deps.Chat.OnDisconnect(conn.ID())

		transport.ReadPump(func(frame []byte) {
			if err := deps.Chat.HandleFrame(ctx, conn, frame); err != nil {
				customErr := errs.FromDomain(err)
				deps.Chat.Notify(conn, chat.Failure(customErr.Code, customErr.Message))
			}
		})
	}
}
