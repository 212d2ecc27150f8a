package session

import (
	"errors"
	"net/http"
	"time"

	"github.com/hilthontt/reelsync/internal/infrastructure/auth"
	"github.com/hilthontt/reelsync/internal/infrastructure/json"
	"github.com/hilthontt/reelsync/internal/presentation/utils"
)

type Handler struct {
	verifier     *auth.Verifier
	secureCookie bool
}

func NewHandler(verifier *auth.Verifier, secureCookie bool) *Handler {
	return &Handler{verifier: verifier, secureCookie: secureCookie}
}

type sessionResponse struct {
	ActorID   string    `json:"actorId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// CreateSession stores the bearer token in the session cookie.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	claims, err := h.verifier.FromRequest(r)
	if err != nil {
		if errors.Is(err, auth.ErrMissingToken) {
			json.WriteError(w, http.StatusUnauthorized, err, "Missing bearer token")
			return
		}
		json.WriteError(w, http.StatusUnauthorized, err, "Invalid or expired token")
		return
	}

	token, _ := auth.TokenFromRequest(r)
	expires := claims.ExpiresAt.Time
	utils.SetSessionCookie(w, token, expires, h.secureCookie)

	json.Write(w, http.StatusCreated, sessionResponse{ActorID: claims.ActorID(), ExpiresAt: expires})
}

func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	utils.ClearSessionCookie(w, h.secureCookie)
	w.WriteHeader(http.StatusNoContent)
}
