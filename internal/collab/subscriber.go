package collab

import (
	"context"

	"github.com/hilthontt/reelsync/internal/domain"
	"github.com/hilthontt/reelsync/internal/infrastructure/logging"
)

// RecordDispatcher consumes remote change records.
type RecordDispatcher interface {
	Dispatch(ctx context.Context, record domain.ChangeRecord) error
}

// ChangeSubscriber forwards the live change feed of one project to a
// dispatcher, skipping records the local actor authored and records of any
// other project.
type ChangeSubscriber struct {
	log        domain.ChangeLog
	dispatcher RecordDispatcher
	projectID  string
	actorID    string
	logger     logging.Logger
}

func NewChangeSubscriber(log domain.ChangeLog, dispatcher RecordDispatcher, projectID, actorID string, logger logging.Logger) *ChangeSubscriber {
	return &ChangeSubscriber{
		log:        log,
		dispatcher: dispatcher,
		projectID:  projectID,
		actorID:    actorID,
		logger:     logger,
	}
}

// Run blocks until ctx ends or the feed closes. A failed subscription is
// logged and Run returns nil so the rest of the session keeps going.
func (s *ChangeSubscriber) Run(ctx context.Context) error {
	sub, err := s.log.Subscribe(ctx, s.projectID)
	if err != nil {
		s.logger.Error(logging.ChangeLog, logging.Subscribe, "failed to subscribe to change feed", map[logging.ExtraKey]any{
			logging.ProjectID:    s.projectID,
			logging.ActorID:      s.actorID,
			logging.ErrorMessage: err.Error(),
		})
		return nil
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case record, ok := <-sub.Changes():
			if !ok {
				if ctx.Err() == nil {
					s.logger.Warn(logging.ChangeLog, logging.Subscribe, "change feed closed", map[logging.ExtraKey]any{
						logging.ProjectID: s.projectID,
					})
				}
				return nil
			}
			if record.ActorID == s.actorID || record.ProjectID != s.projectID {
				continue
			}
			if err := s.dispatcher.Dispatch(ctx, record); err != nil {
				s.logger.Warn(logging.Dispatch, logging.Subscribe, "failed to dispatch change", map[logging.ExtraKey]any{
					logging.ProjectID:    s.projectID,
					logging.RecordID:     record.ID,
					logging.ChangeType:   record.ChangeType,
					logging.ErrorMessage: err.Error(),
				})
			}
		}
	}
}
