package domain

import (
	"context"
	"strings"
	"time"

	"github.com/hilthontt/reelsync/internal/infrastructure/validate"
)

const (
	DefaultPresenceInterval = 10 * time.Second
	DefaultStalenessWindow  = 30 * time.Second

	actorPrefix      = "user_"
	shortActorLength = 8
)

type PresenceRecord struct {
	ProjectID       string     `bson:"project_id" json:"projectId"`
	ActorID         string     `bson:"actor_id" json:"actorId"`
	FocusEntityType EntityType `bson:"focus_entity_type,omitempty" json:"focusEntityType,omitempty"`
	FocusEntityID   *string    `bson:"focus_entity_id,omitempty" json:"focusEntityId,omitempty"`
	LastSeen        time.Time  `bson:"last_seen" json:"lastSeen"`
}

// IsStale reports whether the record has aged past window. A record exactly
// window old is still live.
func (p PresenceRecord) IsStale(now time.Time, window time.Duration) bool {
	return now.Sub(p.LastSeen) > window
}

type PresenceEventKind string

const (
	PresenceUpserted PresenceEventKind = "upsert"
	PresenceDeleted  PresenceEventKind = "delete"
)

type PresenceEvent struct {
	Kind   PresenceEventKind `json:"kind"`
	Record PresenceRecord    `json:"record"`
}

type PresenceStore interface {
	// Upsert atomically replaces the record keyed by (project, actor).
	Upsert(ctx context.Context, record *PresenceRecord) error
	Delete(ctx context.Context, projectID, actorID string) error
	ListSince(ctx context.Context, projectID string, since time.Time) ([]PresenceRecord, error)
	Subscribe(ctx context.Context, projectID string) (PresenceSubscription, error)
}

type PresenceSubscription interface {
	Events() <-chan PresenceEvent
	Close() error
}

// DisplayName turns an actor id into something short enough for an avatar tooltip.
func DisplayName(actorID string) string {
	name := strings.TrimPrefix(actorID, actorPrefix)
	if validate.IsUUID(name) {
		return name[:shortActorLength]
	}
	return name
}

func (p PresenceRecord) Clone() PresenceRecord {
	out := p
	if p.FocusEntityID != nil {
		id := *p.FocusEntityID
		out.FocusEntityID = &id
	}
	return out
}
