package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/hilthontt/reelsync/internal/collab"
	"github.com/hilthontt/reelsync/internal/domain"
	"github.com/hilthontt/reelsync/internal/infrastructure/auth"
	"github.com/hilthontt/reelsync/internal/infrastructure/configs"
	"github.com/hilthontt/reelsync/internal/infrastructure/logging"
	"github.com/hilthontt/reelsync/internal/infrastructure/ws"
)

type Handler struct {
	hub      *ws.Hub
	verifier *auth.Verifier
	deps     collab.SessionDeps
	config   configs.SyncConfig
	logger   logging.Logger
}

func NewHandler(hub *ws.Hub, verifier *auth.Verifier, deps collab.SessionDeps, config configs.SyncConfig, logger logging.Logger) *Handler {
	return &Handler{
		hub:      hub,
		verifier: verifier,
		deps:     deps,
		config:   config,
		logger:   logger,
	}
}

// Sync upgrades to a WebSocket and runs one sync session over it. Auth
// failures are reported on the socket so browser clients can see them.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectId")
	claims, authErr := h.verifier.FromRequest(r)

	conn, err := h.hub.Upgrade(w, r)
	if err != nil {
		h.logger.Warn(logging.WebSocket, logging.Session, "websocket upgrade failed", map[logging.ExtraKey]any{
			logging.ProjectID:    projectID,
			logging.ErrorMessage: err.Error(),
		})
		return
	}

	reject := func(msg *ws.WSMessage) {
		_ = conn.WriteJSON(msg)
		_ = conn.Close()
	}

	switch {
	case authErr != nil:
		reject(ws.NewAuthError(projectID, "Invalid or missing token"))
		return
	case domain.ValidateProjectID(projectID) != nil:
		reject(ws.NewError(projectID, "Invalid project id"))
		return
	case !claims.CanAccess(projectID):
		reject(ws.NewAuthError(projectID, "Project not accessible"))
		return
	case !h.deps.Availability.ChangeLog && !h.deps.Availability.Presence:
		reject(ws.NewError(projectID, "Sync is not available"))
		return
	}

	client := ws.NewClient(conn, projectID, claims.ActorID(), h.config.ClientBuffer, h.logger)
	h.hub.Add(client)
	defer h.hub.Remove(client)

	session := collab.NewSession(h.deps, collab.SessionConfig{
		ProjectID:        projectID,
		ActorID:          claims.ActorID(),
		PresenceInterval: h.config.PresenceInterval,
		StalenessWindow:  h.config.StalenessWindow,
	}, client)
	session.OnPresenceChange(func(active []domain.PresenceRecord) {
		_ = client.Send(ws.NewPresenceSnapshot(projectID, active))
	})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		client.WritePump()
	}()
	go func() {
		defer wg.Done()
		if err := session.Run(ctx); err != nil {
			h.logger.Error(logging.WebSocket, logging.Session, "sync session failed", map[logging.ExtraKey]any{
				logging.ProjectID:    projectID,
				logging.ActorID:      client.ActorID,
				logging.ErrorMessage: err.Error(),
			})
		}
	}()

	client.ReadPump(func(msg ws.InboundMessage) {
		h.handleInbound(client, session, msg)
	})

	cancel()
	wg.Wait()
}

func (h *Handler) handleInbound(client *ws.Client, session *collab.Session, msg ws.InboundMessage) {
	switch msg.Type {
	case ws.PresenceFocus:
		var focus ws.FocusPayload
		if err := json.Unmarshal(msg.Data, &focus); err != nil {
			_ = client.Send(ws.NewError(client.ProjectID, "Invalid presence.focus payload"))
			return
		}
		session.SetFocus(focus.EntityType, focus.EntityID)
	default:
		_ = client.Send(ws.NewError(client.ProjectID, "Unknown message type"))
	}
}
