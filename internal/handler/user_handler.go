/*
Package handler provides HTTP handler functions for user authentication and management.
*/
package handler

import (
	"net/http"

	"fullchat/internal/app/user"
	"fullchat/internal/pkg/auth/jwt"
	"fullchat/internal/pkg/errs"
	"fullchat/internal/pkg/logx"
	"fullchat/internal/pkg/resp"
)

type ProfileOutput struct {
	User   user.Identity `json:"user"`
	Online bool          `json:"online"`
}

// HandleGetCurrentUser returns the account behind the session and whether it has a live connection.
// Sessions of deleted accounts are answered with 401.
func HandleGetCurrentUser(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := jwt.GetPayloadFromContext(r)
		if payload == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		identity, ok, err := deps.Accounts.Lookup(r.Context(), payload.ID)
		if err != nil {
			logx.Error(err, "get_current_user: lookup failed", "user_id", payload.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrStoreFailed))
			return
		}
		if !ok {
			logx.Warn("get_current_user: user not found", "user_id", payload.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		resp.RespondSuccess(w, r, ProfileOutput{
			User:   identity,
			Online: deps.Chat.FetchPresence().Contains(identity.ID),
		})
	}
}
