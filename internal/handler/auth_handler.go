/*
Package handler provides the HTTP handlers and routing setup for the dmchat server.
*/
package handler

import (
	"errors"
	"net/http"

	"dmchat/internal/app/user"
	"dmchat/internal/pkg/auth/jwt"
	"dmchat/internal/pkg/errs"
	"dmchat/internal/pkg/logx"
	"dmchat/internal/pkg/req"
	"dmchat/internal/pkg/resp"
)

type CredentialsInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleRegister creates an account from a username and password.
func HandleRegister(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input CredentialsInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if !user.ValidUsername(input.Username) {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidUsername))
			return
		}
		if !user.ValidPassword(input.Password) {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidPassword))
			return
		}

		hash, err := user.HashPassword(input.Password)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown, err))
			return
		}

		if _, err := deps.Users.Create(r.Context(), input.Username, hash); err != nil {
			if errors.Is(err, user.ErrDuplicate) {
				logx.Warn("registration conflict: username already exists", "username", input.Username)
				resp.RespondError(w, r, errs.NewError(errs.ErrUserAlreadyExists))
				return
			}

			resp.RespondError(w, r, errs.NewError(errs.ErrStoreUnavailable, err))
			return
		}

		logx.Info("user registered", "username", input.Username)
		resp.RespondSuccess(w, r, map[string]any{
			"username": input.Username,
		})
	}
}

// HandleLogin verifies credentials and issues an identity token.
func HandleLogin(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input CredentialsInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		account, err := deps.Users.GetByUsername(r.Context(), input.Username)
		if err != nil {
			if !errors.Is(err, user.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrStoreUnavailable, err))
				return
			}
			logx.Warn("login: unknown user", "username", input.Username)
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidCredentials))
			return
		}

		if !user.VerifyPassword(account.PasswordHash, input.Password) {
			logx.Warn("login: password mismatch", "username", input.Username)
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidCredentials))
			return
		}

		token, err := jwt.GenerateToken(&jwt.Payload{Username: account.Username}, deps.Config.JWTSecret, jwt.UserIdentityExpiration)
		if err != nil {
			logx.Error(err, "login: jwt generation failed")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"token":          token,
			"username":       account.Username,
			"profilePicture": user.AvatarURL(account.Username, account.ProfilePicture),
		})
	}
}

// requireIdentity returns the caller's token payload, or responds with ErrUnauthorized.
func requireIdentity(w http.ResponseWriter, r *http.Request) *jwt.Payload {
	identity := jwt.GetPayloadFromContext(r)
	if identity == nil {
		resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
		return nil
	}
	return identity
}
