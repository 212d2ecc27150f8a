package collab

import (
	"context"
	"time"

	"github.com/hilthontt/reelsync/internal/domain"
	"github.com/hilthontt/reelsync/internal/infrastructure/logging"
	"github.com/hilthontt/reelsync/internal/infrastructure/metrics"
	"golang.org/x/sync/errgroup"
)

// SessionDeps are shared by every session of a process.
type SessionDeps struct {
	ChangeLog    domain.ChangeLog
	Presence     domain.PresenceStore
	Availability Availability
	Clock        Clock
	Logger       logging.Logger
	Metrics      *metrics.Metrics
}

type SessionConfig struct {
	ProjectID        string
	ActorID          string
	PresenceInterval time.Duration
	StalenessWindow  time.Duration
}

// Session is one actor's live view of one project.
type Session struct {
	projectID string
	actorID   string
	deps      SessionDeps

	publisher *PresencePublisher
	presence  *PresenceSubscriber
	changes   *ChangeSubscriber
}

func NewSession(deps SessionDeps, cfg SessionConfig, effects Effects) *Session {
	return &Session{
		projectID: cfg.ProjectID,
		actorID:   cfg.ActorID,
		deps:      deps,
		publisher: NewPresencePublisher(deps.Presence, deps.Clock, cfg.ProjectID, cfg.ActorID,
			cfg.PresenceInterval, deps.Logger, deps.Metrics),
		presence: NewPresenceSubscriber(deps.Presence, deps.Clock, cfg.ProjectID, cfg.ActorID,
			cfg.StalenessWindow, cfg.PresenceInterval, deps.Logger),
		changes: NewChangeSubscriber(deps.ChangeLog, NewDispatcher(effects, deps.Logger, deps.Metrics),
			cfg.ProjectID, cfg.ActorID, deps.Logger),
	}
}

func (s *Session) SetFocus(entityType domain.EntityType, entityID string) {
	s.publisher.SetFocus(entityType, entityID)
}

func (s *Session) OnPresenceChange(fn func([]domain.PresenceRecord)) {
	s.presence.OnChange(fn)
}

func (s *Session) ActivePresence() []domain.PresenceRecord {
	return s.presence.Active()
}

// Run drives the enabled components until ctx ends. Teardown sends no
// leave signal; other viewers see this actor age out.
func (s *Session) Run(ctx context.Context) error {
	s.deps.Metrics.SessionOpened()
	defer s.deps.Metrics.SessionClosed()

	extra := map[logging.ExtraKey]any{
		logging.ProjectID: s.projectID,
		logging.ActorID:   s.actorID,
	}
	s.deps.Logger.Info(logging.WebSocket, logging.Session, "sync session started", extra)
	defer s.deps.Logger.Info(logging.WebSocket, logging.Session, "sync session ended", extra)

	g, gctx := errgroup.WithContext(ctx)

	if s.deps.Availability.Presence {
		g.Go(func() error { return s.publisher.Run(gctx) })
		g.Go(func() error { return s.presence.Run(gctx) })
	}
	if s.deps.Availability.ChangeLog {
		g.Go(func() error { return s.changes.Run(gctx) })
	}

	return g.Wait()
}
