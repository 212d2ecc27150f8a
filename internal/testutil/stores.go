package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/hilthontt/reelsync/internal/domain"
)

// FailingChangeLog wraps a change log and fails selected operations.
type FailingChangeLog struct {
	domain.ChangeLog

	AppendErr    error
	SubscribeErr error

	mu      sync.Mutex
	appends int
}

func (l *FailingChangeLog) Append(ctx context.Context, record *domain.ChangeRecord) error {
	l.mu.Lock()
	l.appends++
	l.mu.Unlock()
	if l.AppendErr != nil {
		return l.AppendErr
	}
	return l.ChangeLog.Append(ctx, record)
}

func (l *FailingChangeLog) Subscribe(ctx context.Context, projectID string) (domain.ChangeSubscription, error) {
	if l.SubscribeErr != nil {
		return nil, l.SubscribeErr
	}
	return l.ChangeLog.Subscribe(ctx, projectID)
}

// Appends counts Append calls, including failed ones.
func (l *FailingChangeLog) Appends() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.appends
}

// FailingPresenceStore wraps a presence store and fails selected operations.
type FailingPresenceStore struct {
	domain.PresenceStore

	UpsertErr error
	ListErr   error

	mu      sync.Mutex
	upserts int
}

func (s *FailingPresenceStore) Upsert(ctx context.Context, record *domain.PresenceRecord) error {
	s.mu.Lock()
	s.upserts++
	s.mu.Unlock()
	if s.UpsertErr != nil {
		return s.UpsertErr
	}
	return s.PresenceStore.Upsert(ctx, record)
}

func (s *FailingPresenceStore) ListSince(ctx context.Context, projectID string, since time.Time) ([]domain.PresenceRecord, error) {
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	return s.PresenceStore.ListSince(ctx, projectID, since)
}

// Upserts counts Upsert calls, including failed ones.
func (s *FailingPresenceStore) Upserts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upserts
}
