package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hilthontt/reelsync/internal/domain"
	"github.com/hilthontt/reelsync/internal/infrastructure/feed"
)

type presenceRepository struct {
	records map[string]map[string]domain.PresenceRecord // projectID -> actorID -> record
	broker  *feed.Broker[domain.PresenceEvent]
	mu      *sync.RWMutex
}

func NewPresenceRepository(buffer int) domain.PresenceStore {
	return &presenceRepository{
		records: make(map[string]map[string]domain.PresenceRecord),
		broker:  feed.NewBroker[domain.PresenceEvent](buffer),
		mu:      &sync.RWMutex{},
	}
}

// Upsert replaces the (project, actor) record in one step, so readers never
// observe the actor as absent in between.
func (r *presenceRepository) Upsert(ctx context.Context, record *domain.PresenceRecord) error {
	if record == nil || record.ProjectID == "" || record.ActorID == "" {
		return domain.ErrInvalidInput
	}

	stored := record.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()

	project, ok := r.records[stored.ProjectID]
	if !ok {
		project = make(map[string]domain.PresenceRecord)
		r.records[stored.ProjectID] = project
	}
	project[stored.ActorID] = stored

	r.broker.Publish(stored.ProjectID, domain.PresenceEvent{
		Kind:   domain.PresenceUpserted,
		Record: stored.Clone(),
	})

	return nil
}

func (r *presenceRepository) Delete(ctx context.Context, projectID, actorID string) error {
	if projectID == "" || actorID == "" {
		return domain.ErrInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	project, ok := r.records[projectID]
	if !ok {
		return nil // idempotent: already gone
	}
	existing, ok := project[actorID]
	if !ok {
		return nil
	}

	delete(project, actorID)
	if len(project) == 0 {
		delete(r.records, projectID)
	}

	r.broker.Publish(projectID, domain.PresenceEvent{
		Kind:   domain.PresenceDeleted,
		Record: existing,
	})

	return nil
}

func (r *presenceRepository) ListSince(ctx context.Context, projectID string, since time.Time) ([]domain.PresenceRecord, error) {
	if projectID == "" {
		return nil, domain.ErrInvalidInput
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.PresenceRecord, 0, len(r.records[projectID]))
	for _, rec := range r.records[projectID] {
		if rec.LastSeen.Before(since) {
			continue
		}
		out = append(out, rec.Clone())
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ActorID < out[j].ActorID })

	return out, nil
}

func (r *presenceRepository) OnDrop(fn func(projectID string)) {
	r.broker.OnDrop(fn)
}

func (r *presenceRepository) Subscribe(ctx context.Context, projectID string) (domain.PresenceSubscription, error) {
	if projectID == "" {
		return nil, domain.ErrInvalidInput
	}
	return presenceSubscription{r.broker.Subscribe(ctx, projectID)}, nil
}

type presenceSubscription struct {
	sub *feed.Subscription[domain.PresenceEvent]
}

func (s presenceSubscription) Events() <-chan domain.PresenceEvent {
	return s.sub.C()
}

func (s presenceSubscription) Close() error {
	return s.sub.Close()
}
