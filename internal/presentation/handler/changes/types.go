package changes

import (
	"encoding/json"

	"github.com/hilthontt/reelsync/internal/domain"
)

type createChangeRequest struct {
	ChangeType string             `json:"changeType"`
	EntityType string             `json:"entityType"`
	EntityID   string             `json:"entityId,omitempty"`
	OldValue   json.RawMessage    `json:"oldValue,omitempty"`
	NewValue   json.RawMessage    `json:"newValue,omitempty"`
	BaseClock  domain.VectorClock `json:"baseClock,omitempty"`
}

type listChangesResponse struct {
	Changes []domain.ChangeRecord `json:"changes"`
	Count   int                   `json:"count"`
}

type propagationFailureResponse struct {
	Error        string              `json:"error"`
	Message      string              `json:"message"`
	Notification domain.Notification `json:"notification"`
}
