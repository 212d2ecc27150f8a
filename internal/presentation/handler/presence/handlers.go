package presence

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hilthontt/reelsync/internal/collab"
	"github.com/hilthontt/reelsync/internal/domain"
	"github.com/hilthontt/reelsync/internal/infrastructure/json"
	"github.com/hilthontt/reelsync/internal/infrastructure/logging"
	"github.com/hilthontt/reelsync/internal/infrastructure/ws"
	"github.com/hilthontt/reelsync/internal/presentation/utils"
)

type Handler struct {
	store        domain.PresenceStore
	availability collab.Availability
	clock        collab.Clock
	window       time.Duration
	logger       logging.Logger
}

func NewHandler(store domain.PresenceStore, availability collab.Availability, clock collab.Clock, window time.Duration, logger logging.Logger) *Handler {
	return &Handler{
		store:        store,
		availability: availability,
		clock:        clock,
		window:       window,
		logger:       logger,
	}
}

type presenceResponse struct {
	Actors []ws.PresencePayload `json:"actors"`
}

// GetPresence lists the other actors active in a project.
func (h *Handler) GetPresence(w http.ResponseWriter, r *http.Request) {
	if !h.availability.Presence {
		json.WriteError(w, http.StatusServiceUnavailable, domain.ErrFeatureDisabled, "Presence is not available")
		return
	}

	projectID := chi.URLParam(r, "projectId")
	if err := domain.ValidateProjectID(projectID); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	records, err := h.store.ListSince(r.Context(), projectID, h.clock.Now().Add(-h.window))
	if err != nil {
		h.logger.Error(logging.Presence, logging.ExternalService, "failed to list presence", map[logging.ExtraKey]any{
			logging.ProjectID:    projectID,
			logging.ErrorMessage: err.Error(),
		})
		if errors.Is(err, domain.ErrStoreUnavailable) {
			json.WriteError(w, http.StatusServiceUnavailable, err, "Presence is not available")
			return
		}
		json.WriteInternalError(w, err)
		return
	}

	self := utils.ActorID(r.Context())
	others := records[:0]
	for _, rec := range records {
		if rec.ActorID != self {
			others = append(others, rec)
		}
	}

	json.Write(w, http.StatusOK, presenceResponse{Actors: ws.PresenceEntries(others)})
}
