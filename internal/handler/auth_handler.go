/*
Package handler provides HTTP handler functions for user registration and session management.
*/
package handler

import (
	"net/http"

	"fullchat/internal/app/user"
	"fullchat/internal/pkg/auth/jwt"
	"fullchat/internal/pkg/errs"
	"fullchat/internal/pkg/logx"
	"fullchat/internal/pkg/req"
	"fullchat/internal/pkg/resp"
)

type CredentialsInput struct {
	Username string `json:"username" validate:"required,alphanum,max=32"`
	Password string `json:"password" validate:"required,max=72"`
}

type SessionOutput struct {
	Token string        `json:"token"`
	User  user.Identity `json:"user"`
}

// HandleRegister creates a user account and signs the new user in.
func HandleRegister(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if payload := jwt.GetPayloadFromContext(r); payload != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrAlreadyLoggedIn))
			return
		}

		var input CredentialsInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		identity, err := deps.Accounts.Register(r.Context(), input.Username, input.Password)
		if err != nil {
			resp.RespondError(w, r, errs.FromDomain(err))
			return
		}

		output, customErr := startSession(w, deps, identity)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondCreated(w, r, output)
	}
}

// HandleLogin verifies user credentials and issues a session token, both in the body and as a cookie.
func HandleLogin(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if payload := jwt.GetPayloadFromContext(r); payload != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrAlreadyLoggedIn))
			return
		}

		var input CredentialsInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		identity, err := deps.Accounts.Login(r.Context(), input.Username, input.Password)
		if err != nil {
			resp.RespondError(w, r, errs.FromDomain(err))
			return
		}

		output, customErr := startSession(w, deps, identity)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, output)
	}
}

// HandleLogout clears the session cookie and sends the browser home. Tokens are stateless,
// so a copy held elsewhere stays valid until it expires.
func HandleLogout(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jwt.ClearSessionCookie(w, !deps.Config.IsDevelopment())
		http.Redirect(w, r, "/", http.StatusFound)
	}
}

func startSession(w http.ResponseWriter, deps *AppDeps, identity user.Identity) (SessionOutput, *errs.CustomError) {
	token, err := jwt.GenerateToken(jwt.NewPayload(identity), deps.Config.SessionSecret, deps.Config.SessionTTL)
	if err != nil {
		logx.Error(err, "session token generation failed", "user_id", identity.ID)
		return SessionOutput{}, errs.NewError(errs.ErrUnknown)
	}

	jwt.SetSessionCookie(w, token, deps.Config.SessionTTL, !deps.Config.IsDevelopment())

	return SessionOutput{Token: token, User: identity}, nil
}
