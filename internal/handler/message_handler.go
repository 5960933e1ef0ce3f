package handler

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"dmchat/internal/pkg/auth/jwt"
	"dmchat/internal/pkg/errs"
	"dmchat/internal/pkg/resp"
)

// MaxMessageQueryLength bounds the in-conversation search text.
const MaxMessageQueryLength = 100

// conversationPair reads {user1, user2} from the path and checks the caller is one of them.
func conversationPair(w http.ResponseWriter, r *http.Request) (a, b string, ok bool) {
	identity := requireIdentity(w, r)
	if identity == nil {
		return "", "", false
	}

	a, b = chi.URLParam(r, "user1"), chi.URLParam(r, "user2")
	if a == "" || b == "" {
		resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
		return "", "", false
	}
	if !isParty(identity, a, b) {
		resp.RespondError(w, r, errs.NewError(errs.ErrConversationForbidden))
		return "", "", false
	}

	return a, b, true
}

func isParty(identity *jwt.Payload, a, b string) bool {
	return identity.Username == a || identity.Username == b
}

// HandleConversationHistory returns every message between the two users, oldest first.
func HandleConversationHistory(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, b, ok := conversationPair(w, r)
		if !ok {
			return
		}

		msgs, err := deps.Messages.FindConversation(r.Context(), a, b)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrStoreUnavailable, err))
			return
		}

		resp.RespondSuccess(w, r, msgs)
	}
}

// HandleConversationSearch returns text messages of the conversation containing q,
// case-insensitively, newest first.
func HandleConversationSearch(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, b, ok := conversationPair(w, r)
		if !ok {
			return
		}

		q := strings.TrimSpace(r.URL.Query().Get("q"))
		if n := utf8.RuneCountInString(q); n == 0 || n > MaxMessageQueryLength {
			resp.RespondError(w, r, errs.NewError(errs.ErrSearchQueryInvalid, MaxMessageQueryLength))
			return
		}

		msgs, err := deps.Messages.SearchText(r.Context(), a, b, q, true)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrStoreUnavailable, err))
			return
		}

		resp.RespondSuccess(w, r, msgs)
	}
}
