package changes

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hilthontt/reelsync/internal/collab"
	"github.com/hilthontt/reelsync/internal/domain"
	"github.com/hilthontt/reelsync/internal/infrastructure/json"
	"github.com/hilthontt/reelsync/internal/infrastructure/logging"
	"github.com/hilthontt/reelsync/internal/presentation/utils"
)

const (
	DefaultLimit = 100
	MaxLimit     = 500
)

type Appender interface {
	Append(ctx context.Context, actorID string, in domain.ChangeInput) (*domain.ChangeRecord, error)
}

type Handler struct {
	writer       Appender
	log          domain.ChangeLog
	availability collab.Availability
	defaultLimit int
	logger       logging.Logger
}

func NewHandler(writer Appender, log domain.ChangeLog, availability collab.Availability, defaultLimit int, logger logging.Logger) *Handler {
	if defaultLimit <= 0 || defaultLimit > MaxLimit {
		defaultLimit = DefaultLimit
	}
	return &Handler{
		writer:       writer,
		log:          log,
		availability: availability,
		defaultLimit: defaultLimit,
		logger:       logger,
	}
}

// CreateChange records a mutation made by the caller.
//
// 201 with the stored record, 400 for malformed input, 502 when the store
// rejected the append and 503 when the change log is disabled. The 502 body
// is the author's one failure notification; nothing is sent over WebSockets.
func (h *Handler) CreateChange(w http.ResponseWriter, r *http.Request) {
	var req createChangeRequest
	if err := json.Read(r, &req); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	record, err := h.writer.Append(r.Context(), utils.ActorID(r.Context()), domain.ChangeInput{
		ProjectID:  chi.URLParam(r, "projectId"),
		ChangeType: domain.ChangeType(req.ChangeType),
		EntityType: domain.EntityType(req.EntityType),
		EntityID:   req.EntityID,
		OldValue:   req.OldValue,
		NewValue:   req.NewValue,
		BaseClock:  req.BaseClock,
	})
	if err != nil {
		var propagation *collab.PropagationError
		switch {
		case errors.As(err, &propagation):
			json.Write(w, http.StatusBadGateway, propagationFailureResponse{
				Error:        http.StatusText(http.StatusBadGateway),
				Message:      collab.PropagationFailureMessage,
				Notification: propagation.Notification,
			})
		case errors.Is(err, domain.ErrInvalidInput):
			json.WriteValidationError(w, err)
		case errors.Is(err, domain.ErrFeatureDisabled):
			json.WriteError(w, http.StatusServiceUnavailable, err, "Change history is not available")
		default:
			h.logger.Error(logging.ChangeLog, logging.Append, "unexpected append error", map[logging.ExtraKey]any{
				logging.ErrorMessage: err.Error(),
			})
			json.WriteInternalError(w, err)
		}
		return
	}

	json.Write(w, http.StatusCreated, record)
}

// ListChanges returns the latest changes of a project, oldest first.
func (h *Handler) ListChanges(w http.ResponseWriter, r *http.Request) {
	if !h.availability.ChangeLog {
		json.WriteError(w, http.StatusServiceUnavailable, domain.ErrFeatureDisabled, "Change history is not available")
		return
	}

	limit, err := h.parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		json.WriteValidationError(w, err)
		return
	}

	projectID := chi.URLParam(r, "projectId")
	if err := domain.ValidateProjectID(projectID); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	records, err := h.log.List(r.Context(), projectID, limit)
	if err != nil {
		h.logger.Error(logging.ChangeLog, logging.ExternalService, "failed to list changes", map[logging.ExtraKey]any{
			logging.ProjectID:    projectID,
			logging.ErrorMessage: err.Error(),
		})
		if errors.Is(err, domain.ErrStoreUnavailable) {
			json.WriteError(w, http.StatusServiceUnavailable, err, "Change history is not available")
			return
		}
		json.WriteInternalError(w, err)
		return
	}
	if records == nil {
		records = []domain.ChangeRecord{}
	}

	json.Write(w, http.StatusOK, listChangesResponse{Changes: records, Count: len(records)})
}

func (h *Handler) parseLimit(raw string) (int, error) {
	if raw == "" {
		return h.defaultLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	return min(limit, MaxLimit), nil
}
