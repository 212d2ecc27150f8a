package domain

import "encoding/json"

// ListKind names a client-side list that can be re-fetched.
type ListKind string

const (
	ListVideos  ListKind = "videos"
	ListFolders ListKind = "folders"
	ListMembers ListKind = "members"
)

// FieldUpdate patches fields of one cached entity in place.
type FieldUpdate struct {
	EntityType EntityType                 `json:"entityType"`
	EntityID   string                     `json:"entityId"`
	Fields     map[string]json.RawMessage `json:"fields"`
}

type NotificationLevel string

const (
	NotificationInfo  NotificationLevel = "info"
	NotificationError NotificationLevel = "error"
)

// Notification is a user-visible toast.
type Notification struct {
	Level      NotificationLevel `json:"level"`
	ProjectID  string            `json:"projectId"`
	Title      string            `json:"title"`
	Message    string            `json:"message"`
	ChangeType ChangeType        `json:"changeType,omitempty"`
	ActorID    string            `json:"actorId,omitempty"`
	ActorName  string            `json:"actorName,omitempty"`
}
