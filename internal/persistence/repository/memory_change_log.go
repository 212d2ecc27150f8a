package repository

import (
	"context"
	"sync"

	"github.com/hilthontt/reelsync/internal/domain"
	"github.com/hilthontt/reelsync/internal/infrastructure/feed"
)

// DropObserver is implemented by stores whose live feed skips subscribers
// with a full buffer. fn is called once per skipped delivery.
type DropObserver interface {
	OnDrop(fn func(projectID string))
}

// changeLogRepository keeps the append log in memory. Records are never evicted.
type changeLogRepository struct {
	records  map[string][]domain.ChangeRecord // projectID -> records in append order
	counters map[string]uint64                // projectID|actorID -> last actor counter
	broker   *feed.Broker[domain.ChangeRecord]
	mu       *sync.RWMutex
}

func NewChangeLogRepository(buffer int) domain.ChangeLog {
	return &changeLogRepository{
		records:  make(map[string][]domain.ChangeRecord),
		counters: make(map[string]uint64),
		broker:   feed.NewBroker[domain.ChangeRecord](buffer),
		mu:       &sync.RWMutex{},
	}
}

func counterKey(projectID, actorID string) string {
	return projectID + "|" + actorID
}

func (r *changeLogRepository) Append(ctx context.Context, record *domain.ChangeRecord) error {
	if record == nil || record.ID == "" || record.ProjectID == "" || record.ActorID == "" {
		return domain.ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	stored := record.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[stored.ProjectID] = append(r.records[stored.ProjectID], stored)

	key := counterKey(stored.ProjectID, stored.ActorID)
	if stored.ActorCounter > r.counters[key] {
		r.counters[key] = stored.ActorCounter
	}

	// Publishing under the lock keeps feed order identical to append order.
	r.broker.Publish(stored.ProjectID, stored.Clone())

	return nil
}

func (r *changeLogRepository) List(ctx context.Context, projectID string, limit int) ([]domain.ChangeRecord, error) {
	if projectID == "" {
		return nil, domain.ErrInvalidInput
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	records := r.records[projectID]
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}

	// Return a copy to prevent external mutation
	cpy := make([]domain.ChangeRecord, len(records))
	for i, rec := range records {
		cpy[i] = rec.Clone()
	}

	return cpy, nil
}

func (r *changeLogRepository) LastCounter(ctx context.Context, projectID, actorID string) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.counters[counterKey(projectID, actorID)], nil
}

func (r *changeLogRepository) OnDrop(fn func(projectID string)) {
	r.broker.OnDrop(fn)
}

func (r *changeLogRepository) Subscribe(ctx context.Context, projectID string) (domain.ChangeSubscription, error) {
	if projectID == "" {
		return nil, domain.ErrInvalidInput
	}
	return changeSubscription{r.broker.Subscribe(ctx, projectID)}, nil
}

type changeSubscription struct {
	sub *feed.Subscription[domain.ChangeRecord]
}

func (s changeSubscription) Changes() <-chan domain.ChangeRecord {
	return s.sub.C()
}

func (s changeSubscription) Close() error {
	return s.sub.Close()
}
