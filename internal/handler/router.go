/*
Package handler provides the HTTP handlers and routing setup for the fullchat server.

This file defines the main Router, applying necessary middleware like logging, CORS,
session extraction and IP-based rate limiting before delegating requests to specific
handlers (REST API and WebSocket).
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"fullchat/internal/pkg/auth/jwt"
	"fullchat/internal/pkg/logx"
	"fullchat/internal/pkg/resp"
)

// Router sets up the main HTTP routing table (chi.Router) for the application.
func Router(deps *AppDeps) http.Handler {
	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	var wsUpgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if deps.Config.IsDevelopment() || origin == "" {
				return true
			}

			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		registered, observers := deps.Chat.ConnectionCount()

		resp.RespondSuccess(w, r, map[string]any{
			"status":      "ok",
			"service":     "fullchat",
			"connections": registered,
			"observers":   observers,
		})
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(jwt.IdentityExtractorMiddleware(deps.Config.SessionSecret))

		api.With(deps.Limiters.Auth.Middleware).Post("/users", HandleRegister(deps))
		api.With(jwt.RequireIdentity).Get("/users/me", HandleGetCurrentUser(deps))
		api.With(deps.Limiters.Auth.Middleware).Post("/auth", HandleLogin(deps))
		api.Get("/auth/logout", HandleLogout(deps))

		api.Get("/messages", HandleListMessages(deps))
		api.With(jwt.RequireIdentity, deps.Limiters.Message.Middleware).Post("/messages", HandleCreateMessage(deps))

		api.Get("/online", HandleOnlineUsers(deps))
	})

	r.With(deps.Limiters.Connect.Middleware).Get("/ws", HandleWebSocket(wsUpgrader, deps))

	return r
}
