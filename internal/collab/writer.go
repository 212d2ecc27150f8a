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
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const PropagationFailureMessage = "Change may not have synced"

// Notifier delivers a toast to one actor. A Writer without one leaves
// delivery to its caller through PropagationError.
type Notifier interface {
	Notify(ctx context.Context, actorID string, n domain.Notification) error
}

// PropagationError reports an append the store rejected. Notification is the
// single toast owed to the author.
type PropagationError struct {
	Notification domain.Notification
	Err          error
}

func (e *PropagationError) Error() string {
	return fmt.Sprintf("%v: %v", domain.ErrPropagation, e.Err)
}

func (e *PropagationError) Unwrap() []error {
	return []error{domain.ErrPropagation, e.Err}
}

// Writer turns local mutations into durable change records.
type Writer struct {
	log          domain.ChangeLog
	notifier     Notifier
	availability Availability
	clock        Clock
	ids          IDGenerator
	logger       logging.Logger
	metrics      *metrics.Metrics
	tracer       trace.Tracer

	// per (project, actor) so counter read and append are not interleaved
	locks sync.Map
}

func NewWriter(
	log domain.ChangeLog,
	notifier Notifier,
	availability Availability,
	clock Clock,
	ids IDGenerator,
	logger logging.Logger,
	m *metrics.Metrics,
) *Writer {
	return &Writer{
		log:          log,
		notifier:     notifier,
		availability: availability,
		clock:        clock,
		ids:          ids,
		logger:       logger,
		metrics:      m,
		tracer:       tracing.GetTracer("collab"),
	}
}

// Append records one change authored by actorID. It returns ErrFeatureDisabled
// without side effects when the change log is unavailable, an ErrInvalidInput
// error for malformed input, and an ErrPropagation error when the store
// rejected the append. Only the last case produces a notification for the
// author: the returned *PropagationError carries it, and a non-nil Notifier
// also delivers it. Callers that render the error use a nil Notifier.
func (w *Writer) Append(ctx context.Context, actorID string, in domain.ChangeInput) (*domain.ChangeRecord, error) {
	if !w.availability.ChangeLog {
		return nil, domain.ErrFeatureDisabled
	}
	if err := domain.ValidateActorID(actorID); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	ctx, span := w.tracer.Start(ctx, "ChangeWriter.Append", trace.WithAttributes(
		attribute.String("project.id", in.ProjectID),
		attribute.String("change.type", string(in.ChangeType)),
	))
	defer span.End()

	lock := w.lockFor(in.ProjectID, actorID)
	lock.Lock()
	defer lock.Unlock()

	last, err := w.log.LastCounter(ctx, in.ProjectID, actorID)
	if err != nil {
		return nil, w.fail(ctx, span, actorID, in, err)
	}

	counter := max(last, in.BaseClock[actorID]) + 1

	record := &domain.ChangeRecord{
		ID:           w.ids.New(),
		ProjectID:    in.ProjectID,
		ActorID:      actorID,
		ChangeType:   in.ChangeType,
		EntityType:   in.EntityType,
		EntityID:     domain.NormalizeEntityID(in.EntityID),
		OldValue:     cloneRaw(in.OldValue),
		NewValue:     cloneRaw(in.NewValue),
		Timestamp:    w.clock.Now().UTC(),
		ActorCounter: counter,
		Clock:        in.BaseClock.Tick(actorID, counter),
	}

	if err := w.log.Append(ctx, record); err != nil {
		return nil, w.fail(ctx, span, actorID, in, err)
	}

	span.SetAttributes(attribute.String("change.id", record.ID))
	w.metrics.ChangeAppended(string(record.ChangeType))

	if !record.ChangeType.Known() {
		w.logger.Debug(logging.ChangeLog, logging.Append, "recorded change with unrecognised type", map[logging.ExtraKey]any{
			logging.ProjectID:  record.ProjectID,
			logging.ChangeType: record.ChangeType,
		})
	}

	return record, nil
}

func (w *Writer) fail(ctx context.Context, span trace.Span, actorID string, in domain.ChangeInput, cause error) error {
	span.RecordError(cause)
	span.SetStatus(codes.Error, "append failed")

	extra := map[logging.ExtraKey]any{
		logging.ProjectID:    in.ProjectID,
		logging.ActorID:      actorID,
		logging.ChangeType:   in.ChangeType,
		logging.ErrorMessage: cause.Error(),
	}
	if errors.Is(cause, domain.ErrStoreUnavailable) {
		w.logger.Error(logging.ChangeLog, logging.Append, "change log store is missing or unreachable", extra)
		w.metrics.AppendFailed("store_unavailable")
	} else {
		w.logger.Error(logging.ChangeLog, logging.Append, "failed to append change", extra)
		w.metrics.AppendFailed("store_error")
	}

	n := domain.Notification{
		Level:      domain.NotificationError,
		ProjectID:  in.ProjectID,
		Title:      "Sync failed",
		Message:    PropagationFailureMessage,
		ChangeType: in.ChangeType,
	}
	if w.notifier != nil {
		if err := w.notifier.Notify(ctx, actorID, n); err != nil {
			w.logger.Warn(logging.ChangeLog, logging.Append, "failed to deliver sync failure notification", map[logging.ExtraKey]any{
				logging.ActorID:      actorID,
				logging.ErrorMessage: err.Error(),
			})
		}
	}

	return &PropagationError{Notification: n, Err: cause}
}

func (w *Writer) lockFor(projectID, actorID string) *sync.Mutex {
	lock, _ := w.locks.LoadOrStore(projectID+"|"+actorID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}
