package handler

import (
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"dmchat/internal/app/storage"
	"dmchat/internal/app/user"
	"dmchat/internal/pkg/errs"
	"dmchat/internal/pkg/logx"
	"dmchat/internal/pkg/req"
	"dmchat/internal/pkg/resp"
)

const (
	// UserSearchLimit caps the results of a user search.
	UserSearchLimit = 20

	// MaxUserQueryLength bounds the user search query.
	MaxUserQueryLength = 20
)

// HandleGetUser returns the public profile of one user with live presence.
// Presence is local to this process, so users connected to another relay peer read as offline.
func HandleGetUser(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username := chi.URLParam(r, "username")

		account, err := deps.Users.GetByUsername(r.Context(), username)
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrUserNotFound))
				return
			}
			resp.RespondError(w, r, errs.NewError(errs.ErrStoreUnavailable, err))
			return
		}

		profile := account.Profile(deps.Presence.IsOnline(account.Username))
		if status := deps.Presence.Get(account.Username); !status.Online && status.LastSeen.After(account.LastSeen) {
			lastSeen := status.LastSeen
			profile.LastSeen = &lastSeen
		}

		resp.RespondSuccess(w, r, profile)
	}
}

// HandleSearchUsers lists users whose name contains q, excluding the caller.
func HandleSearchUsers(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := requireIdentity(w, r)
		if identity == nil {
			return
		}

		q := strings.TrimSpace(r.URL.Query().Get("q"))
		if n := utf8.RuneCountInString(q); n == 0 || n > MaxUserQueryLength {
			resp.RespondError(w, r, errs.NewError(errs.ErrSearchQueryInvalid, MaxUserQueryLength))
			return
		}

		accounts, err := deps.Users.Search(r.Context(), q, identity.Username, UserSearchLimit)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrStoreUnavailable, err))
			return
		}

		profiles := make([]user.Profile, 0, len(accounts))
		for i := range accounts {
			profiles = append(profiles, accounts[i].Profile(deps.Presence.IsOnline(accounts[i].Username)))
		}

		resp.RespondSuccess(w, r, profiles)
	}
}

type UpdateAvatarInput struct {
	Username       string `json:"username"`
	ProfilePicture string `json:"profilePicture"`
}

// HandleUpdateAvatar stores a new profile picture for the caller and broadcasts pp_updated.
// A data URL is uploaded to object storage first and replaced by its public URL.
// A previous avatar held in object storage is deleted once the new one is saved.
func HandleUpdateAvatar(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := requireIdentity(w, r)
		if identity == nil {
			return
		}

		var input UpdateAvatarInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if input.Username == "" {
			input.Username = identity.Username
		}
		if input.Username != identity.Username {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		picture := strings.TrimSpace(input.ProfilePicture)
		if picture == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrAvatarInvalid))
			return
		}

		if storage.IsDataURL(picture) && deps.StorageService != nil {
			url, err := storage.UploadAvatar(r.Context(), deps.StorageService, identity.Username, picture)
			switch {
			case errors.Is(err, storage.ErrAvatarTooLarge):
				resp.RespondError(w, r, errs.NewError(errs.ErrFileSizeTooLarge))
				return
			case errors.Is(err, storage.ErrAvatarInvalid):
				resp.RespondError(w, r, errs.NewError(errs.ErrAvatarInvalid))
				return
			case err != nil:
				resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
				return
			}
			picture = url
		}

		var previous string
		if account, err := deps.Users.GetByUsername(r.Context(), identity.Username); err == nil {
			previous = account.ProfilePicture
		}

		if err := deps.Dispatcher.UpdateAvatar(r.Context(), identity.Username, picture); err != nil {
			if errors.Is(err, user.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrUserNotFound))
				return
			}
			resp.RespondError(w, r, errs.NewError(errs.ErrStoreUnavailable, err))
			return
		}

		if deps.StorageService != nil && previous != picture {
			if key, ok := storage.OwnedAvatarKey(deps.StorageService, identity.Username, previous); ok {
				if err := deps.StorageService.Delete(r.Context(), key); err != nil {
					logx.Error(err, "failed to delete previous avatar", "username", identity.Username, "key", key)
				}
			}
		}

		logx.Info("avatar updated", "username", identity.Username)
		resp.RespondSuccess(w, r, map[string]any{
			"username":       identity.Username,
			"profilePicture": picture,
		})
	}
}

// PresignAvatarInput defines the JSON input structure for generating an avatar upload URL.
type PresignAvatarInput struct {
	MimeType string `json:"mime_type"`
	FileSize int64  `json:"file_size"`
}

// HandlePresignAvatarURL returns a short-lived PUT URL for uploading the caller's avatar
// and the public URL to submit afterwards.
func HandlePresignAvatarURL(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := requireIdentity(w, r)
		if identity == nil {
			return
		}

		if deps.StorageService == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrStorageDisabled))
			return
		}

		var input PresignAvatarInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		switch err := storage.ValidateAvatar(input.MimeType, input.FileSize); {
		case errors.Is(err, storage.ErrAvatarTooLarge):
			resp.RespondError(w, r, errs.NewError(errs.ErrFileSizeTooLarge))
			return
		case err != nil:
			resp.RespondError(w, r, errs.NewError(errs.ErrAvatarInvalid))
			return
		}

		key := storage.AvatarKey(identity.Username, input.MimeType)

		url, err := deps.StorageService.PresignUpload(r.Context(), key, input.MimeType, input.FileSize, storage.PresignExpiry)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"presignedUrl": url,
			"fileKey":      key,
			"publicUrl":    deps.StorageService.PublicURL(key),
		})
	}
}
