package handler

import (
	"net/http"

	"fullchat/internal/pkg/resp"
)

// HandleOnlineUsers returns the users with at least one live connection.
func HandleOnlineUsers(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, deps.Chat.FetchPresence())
	}
}
