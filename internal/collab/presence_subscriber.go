package collab

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hilthontt/reelsync/internal/domain"
	"github.com/hilthontt/reelsync/internal/infrastructure/logging"
)

// PresenceSubscriber maintains the set of other actors present in a project.
type PresenceSubscriber struct {
	store     domain.PresenceStore
	clock     Clock
	projectID string
	actorID   string
	window    time.Duration
	prune     time.Duration
	logger    logging.Logger

	mu        sync.Mutex
	records   map[string]domain.PresenceRecord
	signature string
	onChange  func([]domain.PresenceRecord)
}

func NewPresenceSubscriber(
	store domain.PresenceStore,
	clock Clock,
	projectID, actorID string,
	window, pruneInterval time.Duration,
	logger logging.Logger,
) *PresenceSubscriber {
	if window <= 0 {
		window = domain.DefaultStalenessWindow
	}
	if pruneInterval <= 0 {
		pruneInterval = domain.DefaultPresenceInterval
	}
	return &PresenceSubscriber{
		store:     store,
		clock:     clock,
		projectID: projectID,
		actorID:   actorID,
		window:    window,
		prune:     pruneInterval,
		logger:    logger,
		records:   make(map[string]domain.PresenceRecord),
	}
}

// OnChange registers fn to receive the active set whenever it changes.
// fn is called without internal locks held.
func (s *PresenceSubscriber) OnChange(fn func([]domain.PresenceRecord)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Load replaces the view with the store's current records. On error the
// view is emptied.
func (s *PresenceSubscriber) Load(ctx context.Context) error {
	since := s.clock.Now().Add(-s.window)
	records, err := s.store.ListSince(ctx, s.projectID, since)

	s.mu.Lock()
	s.records = make(map[string]domain.PresenceRecord, len(records))
	if err == nil {
		for _, rec := range records {
			if rec.ActorID == s.actorID || rec.ProjectID != s.projectID {
				continue
			}
			s.records[rec.ActorID] = rec
		}
	}
	s.mu.Unlock()

	s.emit(true)
	return err
}

// Apply folds one live event into the view.
func (s *PresenceSubscriber) Apply(event domain.PresenceEvent) {
	rec := event.Record
	if rec.ActorID == s.actorID || rec.ProjectID != s.projectID {
		return
	}

	s.mu.Lock()
	switch event.Kind {
	case domain.PresenceUpserted:
		s.records[rec.ActorID] = rec
	case domain.PresenceDeleted:
		delete(s.records, rec.ActorID)
	}
	s.mu.Unlock()

	s.emit(false)
}

// Prune drops records that aged past the staleness window.
func (s *PresenceSubscriber) Prune() {
	now := s.clock.Now()

	s.mu.Lock()
	for actor, rec := range s.records {
		if rec.IsStale(now, s.window) {
			delete(s.records, actor)
		}
	}
	s.mu.Unlock()

	s.emit(false)
}

// Active returns the present actors sorted by id, re-checking staleness.
func (s *PresenceSubscriber) Active() []domain.PresenceRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeLocked()
}

func (s *PresenceSubscriber) activeLocked() []domain.PresenceRecord {
	now := s.clock.Now()
	out := make([]domain.PresenceRecord, 0, len(s.records))
	for _, rec := range s.records {
		if rec.IsStale(now, s.window) {
			continue
		}
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActorID < out[j].ActorID })
	return out
}

func (s *PresenceSubscriber) emit(force bool) {
	s.mu.Lock()
	active := s.activeLocked()
	sig := signature(active)
	changed := force || sig != s.signature
	s.signature = sig
	fn := s.onChange
	s.mu.Unlock()

	if changed && fn != nil {
		fn(active)
	}
}

// signature identifies what a viewer can see: who is present and what they focus on.
func signature(records []domain.PresenceRecord) string {
	var b strings.Builder
	for _, rec := range records {
		b.WriteString(rec.ActorID)
		b.WriteByte('|')
		b.WriteString(string(rec.FocusEntityType))
		b.WriteByte('|')
		if rec.FocusEntityID != nil {
			b.WriteString(*rec.FocusEntityID)
		}
		b.WriteByte(';')
	}
	return b.String()
}

// Run subscribes, loads the view, then applies live events and prunes on a
// tick until ctx ends. Failures leave an empty view and are only logged.
func (s *PresenceSubscriber) Run(ctx context.Context) error {
	// subscribe before loading so nothing written in between is missed
	var events <-chan domain.PresenceEvent
	sub, err := s.store.Subscribe(ctx, s.projectID)
	if err != nil {
		s.logger.Warn(logging.Presence, logging.Subscribe, "failed to subscribe to presence, showing snapshot only", map[logging.ExtraKey]any{
			logging.ProjectID:    s.projectID,
			logging.ErrorMessage: err.Error(),
		})
	} else {
		defer sub.Close()
		events = sub.Events()
	}

	if err := s.Load(ctx); err != nil {
		if ctx.Err() == nil {
			s.logger.Warn(logging.Presence, logging.Subscribe, "failed to load presence", map[logging.ExtraKey]any{
				logging.ProjectID:    s.projectID,
				logging.ErrorMessage: err.Error(),
			})
		}
		return nil
	}

	ticker := time.NewTicker(s.prune)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.Apply(event)
		case <-ticker.C:
			s.Prune()
		}
	}
}
