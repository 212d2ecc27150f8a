package events

import (
	"context"
	"fmt"

	"github.com/hilthontt/reelsync/internal/domain"
)

// BroadcastChangeLog stores records in an inner log and fans them out over the
// message broker, so subscribers on every instance see every append. Reads go
// to the inner log; live delivery comes only from the broker.
type BroadcastChangeLog struct {
	inner     domain.ChangeLog
	publisher *ChangePublisher
	consumer  *ChangeConsumer
}

func NewBroadcastChangeLog(inner domain.ChangeLog, publisher *ChangePublisher, consumer *ChangeConsumer) *BroadcastChangeLog {
	return &BroadcastChangeLog{
		inner:     inner,
		publisher: publisher,
		consumer:  consumer,
	}
}

// Append fails if the record was stored but could not be broadcast: other
// instances will not see it until they re-read the log.
func (l *BroadcastChangeLog) Append(ctx context.Context, record *domain.ChangeRecord) error {
	if err := l.inner.Append(ctx, record); err != nil {
		return err
	}
	if err := l.publisher.PublishChangeAppended(ctx, *record); err != nil {
		return fmt.Errorf("broadcasting change %s: %w", record.ID, err)
	}
	return nil
}

func (l *BroadcastChangeLog) List(ctx context.Context, projectID string, limit int) ([]domain.ChangeRecord, error) {
	return l.inner.List(ctx, projectID, limit)
}

func (l *BroadcastChangeLog) LastCounter(ctx context.Context, projectID, actorID string) (uint64, error) {
	return l.inner.LastCounter(ctx, projectID, actorID)
}

func (l *BroadcastChangeLog) Subscribe(ctx context.Context, projectID string) (domain.ChangeSubscription, error) {
	if projectID == "" {
		return nil, domain.ErrInvalidInput
	}
	return l.consumer.Listen(ctx, projectID)
}
