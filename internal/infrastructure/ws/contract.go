package ws

import (
	"encoding/json"
	"time"

	"github.com/hilthontt/reelsync/internal/domain"
)

type WSMessage struct {
	Type      string `json:"type"`
	ProjectID string `json:"projectId,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// InboundMessage is what clients send; Data is decoded per Type.
type InboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type RefetchPayload struct {
	List domain.ListKind `json:"list"`
}

type FocusPayload struct {
	EntityType domain.EntityType `json:"entityType"`
	EntityID   string            `json:"entityId"`
}

type PresencePayload struct {
	ActorID         string            `json:"actorId"`
	DisplayName     string            `json:"displayName"`
	FocusEntityType domain.EntityType `json:"focusEntityType,omitempty"`
	FocusEntityID   *string           `json:"focusEntityId"`
	LastSeen        time.Time         `json:"lastSeen"`
}

type PresenceSnapshotPayload struct {
	Actors []PresencePayload `json:"actors"`
}

type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Retry   bool   `json:"retry,omitempty"`
}

func NewRefetch(projectID string, list domain.ListKind) *WSMessage {
	return &WSMessage{
		Type:      SyncRefetch,
		ProjectID: projectID,
		Data:      RefetchPayload{List: list},
	}
}

func NewFieldUpdate(projectID string, update domain.FieldUpdate) *WSMessage {
	return &WSMessage{
		Type:      SyncFieldUpdate,
		ProjectID: projectID,
		Data:      update,
	}
}

func NewNotification(n domain.Notification) *WSMessage {
	return &WSMessage{
		Type:      SyncNotification,
		ProjectID: n.ProjectID,
		Data:      n,
	}
}

// PresenceEntries maps store records to their wire form.
func PresenceEntries(records []domain.PresenceRecord) []PresencePayload {
	out := make([]PresencePayload, 0, len(records))
	for _, r := range records {
		out = append(out, PresencePayload{
			ActorID:         r.ActorID,
			DisplayName:     domain.DisplayName(r.ActorID),
			FocusEntityType: r.FocusEntityType,
			FocusEntityID:   r.FocusEntityID,
			LastSeen:        r.LastSeen,
		})
	}
	return out
}

func NewPresenceSnapshot(projectID string, active []domain.PresenceRecord) *WSMessage {
	return &WSMessage{
		Type:      PresenceSnapshot,
		ProjectID: projectID,
		Data:      PresenceSnapshotPayload{Actors: PresenceEntries(active)},
	}
}

func NewError(projectID, message string) *WSMessage {
	return &WSMessage{
		Type:      ErrorEvent,
		ProjectID: projectID,
		Data:      ErrorPayload{Message: message},
	}
}

func NewAuthError(projectID, message string) *WSMessage {
	return &WSMessage{
		Type:      AuthenticationError,
		ProjectID: projectID,
		Data: ErrorPayload{
			Code:    "AUTH_FAILED",
			Message: message,
			Retry:   true,
		},
	}
}
