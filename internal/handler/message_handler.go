package handler

import (
	"net/http"

	"fullchat/internal/pkg/auth/jwt"
	"fullchat/internal/pkg/errs"
	"fullchat/internal/pkg/req"
	"fullchat/internal/pkg/resp"
)

type MessageInput struct {
	Text string `json:"text"`
}

// HandleListMessages returns the most recent messages, oldest first.
func HandleListMessages(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		messages, err := deps.Chat.FetchHistory(r.Context())
		if err != nil {
			resp.RespondError(w, r, errs.FromDomain(err))
			return
		}

		resp.RespondSuccess(w, r, messages)
	}
}

// HandleCreateMessage stores a message by the session's user and broadcasts it.
func HandleCreateMessage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := jwt.IdentityFromContext(r)
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var input MessageInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		msg, err := deps.Chat.SubmitMessage(r.Context(), identity, input.Text)
		if err != nil {
			resp.RespondError(w, r, errs.FromDomain(err))
			return
		}

		resp.RespondCreated(w, r, msg)
	}
}
