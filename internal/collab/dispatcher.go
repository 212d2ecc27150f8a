package collab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/hilthontt/reelsync/internal/domain"
	"github.com/hilthontt/reelsync/internal/infrastructure/logging"
	"github.com/hilthontt/reelsync/internal/infrastructure/metrics"
	"github.com/hilthontt/reelsync/internal/infrastructure/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Effects are the local side effects a remote change can trigger.
type Effects interface {
	Refetch(ctx context.Context, list domain.ListKind) error
	ApplyFieldUpdate(ctx context.Context, update domain.FieldUpdate) error
	Notify(ctx context.Context, n domain.Notification) error
}

type RouteKind string

const (
	RouteFieldUpdate   RouteKind = "field_update"
	RouteNotifyRefetch RouteKind = "notify_refetch"
	RouteIgnored       RouteKind = "ignored"
)

type route struct {
	kind  RouteKind
	list  domain.ListKind
	title string
	verb  string
}

var routes = map[domain.ChangeType]route{
	domain.ChangeVideoMoved:        {kind: RouteFieldUpdate, list: domain.ListVideos},
	domain.ChangeVideoDeleted:      {kind: RouteNotifyRefetch, list: domain.ListVideos, title: "Video deleted", verb: "deleted a video"},
	domain.ChangeFolderCreated:     {kind: RouteNotifyRefetch, list: domain.ListFolders, title: "Folder created", verb: "created a folder"},
	domain.ChangeFolderRenamed:     {kind: RouteNotifyRefetch, list: domain.ListFolders, title: "Folder renamed", verb: "renamed a folder"},
	domain.ChangeFolderDeleted:     {kind: RouteNotifyRefetch, list: domain.ListFolders, title: "Folder deleted", verb: "deleted a folder"},
	domain.ChangeMemberAdded:       {kind: RouteNotifyRefetch, list: domain.ListMembers, title: "Member added", verb: "added a member"},
	domain.ChangeMemberRemoved:     {kind: RouteNotifyRefetch, list: domain.ListMembers, title: "Member removed", verb: "removed a member"},
	domain.ChangeMemberRoleChanged: {kind: RouteNotifyRefetch, list: domain.ListMembers, title: "Member role changed", verb: "changed a member's role"},
}

// RouteOf reports how a change type is dispatched.
func RouteOf(t domain.ChangeType) RouteKind {
	if r, ok := routes[t]; ok {
		return r.kind
	}
	return RouteIgnored
}

// Dispatcher maps remote change records to Effects. Updates are applied in
// delivery order (last write wins); vector clocks are only used to detect
// and report concurrent or stale deliveries.
type Dispatcher struct {
	effects Effects
	logger  logging.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	mu     sync.Mutex
	clocks map[string]domain.VectorClock // entity type:id -> merged clock of applied updates
}

func NewDispatcher(effects Effects, logger logging.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		effects: effects,
		logger:  logger,
		metrics: m,
		tracer:  tracing.GetTracer("collab"),
		clocks:  make(map[string]domain.VectorClock),
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, record domain.ChangeRecord) error {
	r, ok := routes[record.ChangeType]
	if !ok {
		d.logger.Debug(logging.Dispatch, logging.Subscribe, "ignoring unrecognised change type", map[logging.ExtraKey]any{
			logging.ProjectID:  record.ProjectID,
			logging.ChangeType: record.ChangeType,
			logging.RecordID:   record.ID,
		})
		d.metrics.ChangeDispatched(string(record.ChangeType), string(RouteIgnored))
		return nil
	}

	ctx, span := d.tracer.Start(ctx, "Dispatcher.Dispatch", trace.WithAttributes(
		attribute.String("change.id", record.ID),
		attribute.String("change.type", string(record.ChangeType)),
	))
	defer span.End()

	switch r.kind {
	case RouteFieldUpdate:
		return d.dispatchMove(ctx, record, r)
	default:
		return d.dispatchNotifyRefetch(ctx, record, r)
	}
}

func (d *Dispatcher) dispatchNotifyRefetch(ctx context.Context, record domain.ChangeRecord, r route) error {
	d.metrics.ChangeDispatched(string(record.ChangeType), string(RouteNotifyRefetch))

	name := domain.DisplayName(record.ActorID)
	err := d.effects.Notify(ctx, domain.Notification{
		Level:      domain.NotificationInfo,
		ProjectID:  record.ProjectID,
		Title:      r.title,
		Message:    fmt.Sprintf("%s %s", name, r.verb),
		ChangeType: record.ChangeType,
		ActorID:    record.ActorID,
		ActorName:  name,
	})
	if err != nil {
		err = fmt.Errorf("notify %s: %w", record.ChangeType, err)
	}
	// the re-fetch keeps the view consistent even if the toast was lost
	if refetchErr := d.effects.Refetch(ctx, r.list); refetchErr != nil {
		err = errors.Join(err, fmt.Errorf("refetch %s: %w", r.list, refetchErr))
	}
	return err
}

func (d *Dispatcher) dispatchMove(ctx context.Context, record domain.ChangeRecord, r route) error {
	folderID, ok := movedTo(record.NewValue)
	if record.EntityID == nil || !ok {
		d.metrics.ChangeDispatched(string(record.ChangeType), "refetch")
		return d.effects.Refetch(ctx, r.list)
	}

	d.observeClock(record)
	d.metrics.ChangeDispatched(string(record.ChangeType), string(RouteFieldUpdate))

	return d.effects.ApplyFieldUpdate(ctx, domain.FieldUpdate{
		EntityType: domain.EntityVideo,
		EntityID:   *record.EntityID,
		Fields:     map[string]json.RawMessage{"folder_id": folderID},
	})
}

// observeClock reports deliveries that do not strictly follow what was
// already applied to the entity. It never blocks the update.
func (d *Dispatcher) observeClock(record domain.ChangeRecord) {
	key := string(record.EntityType) + ":" + *record.EntityID

	d.mu.Lock()
	defer d.mu.Unlock()

	applied, seen := d.clocks[key]
	if seen {
		switch ordering := record.Clock.Compare(applied); ordering {
		case domain.Concurrent, domain.Before:
			msg := "concurrent edit, applying last delivered"
			if ordering == domain.Before {
				msg = "stale delivery, applying anyway"
			}
			d.logger.Warn(logging.Dispatch, logging.Conflict, msg, map[logging.ExtraKey]any{
				logging.ProjectID: record.ProjectID,
				logging.EntityID:  *record.EntityID,
				logging.RecordID:  record.ID,
				logging.ActorID:   record.ActorID,
			})
			d.metrics.EditConflict(ordering.String())
		}
	}

	d.clocks[key] = applied.Merge(record.Clock)
}

func movedTo(newValue json.RawMessage) (json.RawMessage, bool) {
	if len(newValue) == 0 {
		return nil, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(newValue, &fields); err != nil {
		return nil, false
	}
	folderID, ok := fields["folder_id"]
	return folderID, ok
}
