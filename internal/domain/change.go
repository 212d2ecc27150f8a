package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hilthontt/reelsync/internal/infrastructure/validate"
)

type ChangeType string

const (
	ChangeVideoMoved        ChangeType = "video_moved"
	ChangeVideoDeleted      ChangeType = "video_deleted"
	ChangeFolderCreated     ChangeType = "folder_created"
	ChangeFolderRenamed     ChangeType = "folder_renamed"
	ChangeFolderDeleted     ChangeType = "folder_deleted"
	ChangeMemberAdded       ChangeType = "member_added"
	ChangeMemberRemoved     ChangeType = "member_removed"
	ChangeMemberRoleChanged ChangeType = "member_role_changed"
)

// AllChangeTypes lists every change type the dispatcher must know how to route.
var AllChangeTypes = []ChangeType{
	ChangeVideoMoved,
	ChangeVideoDeleted,
	ChangeFolderCreated,
	ChangeFolderRenamed,
	ChangeFolderDeleted,
	ChangeMemberAdded,
	ChangeMemberRemoved,
	ChangeMemberRoleChanged,
}

func (t ChangeType) Known() bool {
	for _, known := range AllChangeTypes {
		if t == known {
			return true
		}
	}
	return false
}

type EntityType string

const (
	EntityVideo  EntityType = "video"
	EntityFolder EntityType = "folder"
	EntityMember EntityType = "member"
)

type ChangeRecord struct {
	ID           string          `bson:"_id" json:"id"`
	ProjectID    string          `bson:"project_id" json:"projectId"`
	ActorID      string          `bson:"actor_id" json:"actorId"`
	ChangeType   ChangeType      `bson:"change_type" json:"changeType"`
	EntityType   EntityType      `bson:"entity_type" json:"entityType"`
	EntityID     *string         `bson:"entity_id" json:"entityId"`
	OldValue     json.RawMessage `bson:"old_value,omitempty" json:"oldValue,omitempty"`
	NewValue     json.RawMessage `bson:"new_value,omitempty" json:"newValue,omitempty"`
	Timestamp    time.Time       `bson:"timestamp" json:"timestamp"`
	ActorCounter uint64          `bson:"actor_counter" json:"actorCounter"`
	Clock        VectorClock     `bson:"clock" json:"clock"`
}

// ChangeInput is what a caller supplies to record a local mutation.
type ChangeInput struct {
	ProjectID  string          `json:"projectId"`
	ChangeType ChangeType      `json:"changeType"`
	EntityType EntityType      `json:"entityType"`
	EntityID   string          `json:"entityId"`
	OldValue   json.RawMessage `json:"oldValue,omitempty"`
	NewValue   json.RawMessage `json:"newValue,omitempty"`
	BaseClock  VectorClock     `json:"baseClock,omitempty"`
}

var (
	// project ids end up in AMQP topic keys and Redis key names, so '.', '*',
	// '#' and ':' are rejected
	validateProjectID = validate.Field("project_id",
		validate.Required(),
		validate.MaxLength(128),
		validate.Matches(`^[A-Za-z0-9_-]+$`, "may only contain letters, digits, '-' and '_'"),
	)
	validateActorID = validate.Field("actor_id",
		validate.Required(),
		validate.MaxLength(128),
		validate.NoSpaces(),
	)
	validateChangeType = validate.Field("change_type",
		validate.Required(),
		validate.MaxLength(64),
		validate.SnakeCase(),
	)
	validateEntityType = validate.Field("entity_type",
		validate.Required(),
		validate.MaxLength(64),
		validate.SnakeCase(),
	)
)

func ValidateProjectID(projectID string) error {
	return invalid(validateProjectID(projectID))
}

func ValidateActorID(actorID string) error {
	return invalid(validateActorID(actorID))
}

func (in ChangeInput) Validate() error {
	if err := validateProjectID(in.ProjectID); err != nil {
		return invalid(err)
	}
	if err := validateChangeType(string(in.ChangeType)); err != nil {
		return invalid(err)
	}
	if err := validateEntityType(string(in.EntityType)); err != nil {
		return invalid(err)
	}
	if len(in.OldValue) > 0 && !json.Valid(in.OldValue) {
		return invalid(errors.New("old_value: must be valid JSON"))
	}
	if len(in.NewValue) > 0 && !json.Valid(in.NewValue) {
		return invalid(errors.New("new_value: must be valid JSON"))
	}
	return nil
}

// NormalizeEntityID returns nil for identifiers that are not UUID shaped.
// Such changes are still recorded but cannot be targeted precisely.
func NormalizeEntityID(raw string) *string {
	if !validate.IsUUID(raw) {
		return nil
	}
	id := raw
	return &id
}

type ChangeLog interface {
	Append(ctx context.Context, record *ChangeRecord) error
	// List returns the latest limit records of a project, oldest first.
	List(ctx context.Context, projectID string, limit int) ([]ChangeRecord, error)
	LastCounter(ctx context.Context, projectID, actorID string) (uint64, error)
	Subscribe(ctx context.Context, projectID string) (ChangeSubscription, error)
}

// ChangeSubscription delivers newly appended records until closed or its context ends.
type ChangeSubscription interface {
	Changes() <-chan ChangeRecord
	Close() error
}

func invalid(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrInvalidInput, err)
}

// Clone returns a deep copy so stored records cannot be mutated by callers.
func (r ChangeRecord) Clone() ChangeRecord {
	out := r
	if r.EntityID != nil {
		id := *r.EntityID
		out.EntityID = &id
	}
	if r.OldValue != nil {
		out.OldValue = append(json.RawMessage(nil), r.OldValue...)
	}
	if r.NewValue != nil {
		out.NewValue = append(json.RawMessage(nil), r.NewValue...)
	}
	if r.Clock != nil {
		out.Clock = r.Clock.Clone()
	}
	return out
}
