package health

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/hilthontt/reelsync/internal/collab"
	"github.com/hilthontt/reelsync/internal/infrastructure/json"
)

type Handler struct {
	availability collab.Availability
	startTime    time.Time
	draining     atomic.Bool
}

func NewHandler(availability collab.Availability) *Handler {
	return &Handler{
		availability: availability,
		startTime:    time.Now(),
	}
}

// Drain makes readiness fail so load balancers stop routing here while the
// server shuts down.
func (h *Handler) Drain() {
	h.draining.Store(true)
}

// GetHealth reports liveness. It is healthy as long as the process serves.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	json.Write(w, http.StatusOK, h.response("ok"))
}

// GetReady fails while draining.
func (h *Handler) GetReady(w http.ResponseWriter, r *http.Request) {
	if h.draining.Load() {
		json.Write(w, http.StatusServiceUnavailable, h.response("draining"))
		return
	}
	json.Write(w, http.StatusOK, h.response("ok"))
}

func (h *Handler) response(status string) healthResponse {
	return healthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Features: featuresResponse{
			ChangeLog: h.availability.ChangeLog,
			Presence:  h.availability.Presence,
		},
	}
}
