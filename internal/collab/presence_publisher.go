package collab

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hilthontt/reelsync/internal/domain"
	"github.com/hilthontt/reelsync/internal/infrastructure/logging"
	"github.com/hilthontt/reelsync/internal/infrastructure/metrics"
)

// PresencePublisher heartbeats one actor's presence in one project.
type PresencePublisher struct {
	store     domain.PresenceStore
	clock     Clock
	projectID string
	actorID   string
	interval  time.Duration
	logger    logging.Logger
	metrics   *metrics.Metrics

	mu        sync.Mutex
	focusType domain.EntityType
	focusID   *string
	disabled  bool
}

func NewPresencePublisher(
	store domain.PresenceStore,
	clock Clock,
	projectID, actorID string,
	interval time.Duration,
	logger logging.Logger,
	m *metrics.Metrics,
) *PresencePublisher {
	if interval <= 0 {
		interval = domain.DefaultPresenceInterval
	}
	return &PresencePublisher{
		store:     store,
		clock:     clock,
		projectID: projectID,
		actorID:   actorID,
		interval:  interval,
		logger:    logger,
		metrics:   m,
	}
}

// SetFocus sets what the next heartbeat reports the actor as looking at.
// An empty entityType clears the focus.
func (p *PresencePublisher) SetFocus(entityType domain.EntityType, entityID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if entityType == "" {
		p.focusType, p.focusID = "", nil
		return
	}
	p.focusType = entityType
	p.focusID = domain.NormalizeEntityID(entityID)
}

// Publish writes one heartbeat. After the store reports itself unavailable
// every later call is a no-op.
func (p *PresencePublisher) Publish(ctx context.Context) error {
	p.mu.Lock()
	if p.disabled {
		p.mu.Unlock()
		return nil
	}
	record := &domain.PresenceRecord{
		ProjectID:       p.projectID,
		ActorID:         p.actorID,
		FocusEntityType: p.focusType,
		FocusEntityID:   p.focusID,
		LastSeen:        p.clock.Now().UTC(),
	}
	p.mu.Unlock()

	err := p.store.Upsert(ctx, record)
	if err == nil {
		p.metrics.PresencePublished()
		return nil
	}
	if ctx.Err() != nil {
		return nil
	}

	p.metrics.PresenceFailed()
	extra := map[logging.ExtraKey]any{
		logging.ProjectID:    p.projectID,
		logging.ActorID:      p.actorID,
		logging.ErrorMessage: err.Error(),
	}

	if errors.Is(err, domain.ErrStoreUnavailable) {
		p.mu.Lock()
		p.disabled = true
		p.mu.Unlock()
		p.logger.Warn(logging.Presence, logging.Heartbeat, "presence store unavailable, presence disabled for this session", extra)
		return err
	}

	p.logger.Warn(logging.Presence, logging.Heartbeat, "failed to publish presence", extra)
	return err
}

// Run publishes immediately and then on every interval until ctx ends.
func (p *PresencePublisher) Run(ctx context.Context) error {
	_ = p.Publish(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_ = p.Publish(ctx)
		}
	}
}
