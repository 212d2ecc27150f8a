package testutil

import (
	"context"
	"sync"

	"github.com/hilthontt/reelsync/internal/domain"
)

// RecordingEffects captures dispatched side effects.
type RecordingEffects struct {
	mu            sync.Mutex
	Refetches     []domain.ListKind
	FieldUpdates  []domain.FieldUpdate
	Notifications []domain.Notification
	// NotifyErr, when set, fails every Notify without recording it.
	NotifyErr error
	signal    chan struct{}
}

func NewRecordingEffects() *RecordingEffects {
	return &RecordingEffects{signal: make(chan struct{}, 1024)}
}

func (e *RecordingEffects) Refetch(ctx context.Context, list domain.ListKind) error {
	e.mu.Lock()
	e.Refetches = append(e.Refetches, list)
	e.mu.Unlock()
	e.poke()
	return nil
}

func (e *RecordingEffects) ApplyFieldUpdate(ctx context.Context, update domain.FieldUpdate) error {
	e.mu.Lock()
	e.FieldUpdates = append(e.FieldUpdates, update)
	e.mu.Unlock()
	e.poke()
	return nil
}

func (e *RecordingEffects) Notify(ctx context.Context, n domain.Notification) error {
	e.mu.Lock()
	if e.NotifyErr != nil {
		e.mu.Unlock()
		return e.NotifyErr
	}
	e.Notifications = append(e.Notifications, n)
	e.mu.Unlock()
	e.poke()
	return nil
}

// Snapshot returns copies of everything recorded so far.
func (e *RecordingEffects) Snapshot() ([]domain.ListKind, []domain.FieldUpdate, []domain.Notification) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.ListKind(nil), e.Refetches...),
		append([]domain.FieldUpdate(nil), e.FieldUpdates...),
		append([]domain.Notification(nil), e.Notifications...)
}

// Count is the total number of effects recorded.
func (e *RecordingEffects) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Refetches) + len(e.FieldUpdates) + len(e.Notifications)
}

// Signal fires once per recorded effect.
func (e *RecordingEffects) Signal() <-chan struct{} {
	return e.signal
}

func (e *RecordingEffects) poke() {
	select {
	case e.signal <- struct{}{}:
	default:
	}
}

type SentNotification struct {
	ActorID      string
	Notification domain.Notification
}

// RecordingNotifier captures notifications addressed to actors.
type RecordingNotifier struct {
	mu   sync.Mutex
	Sent []SentNotification
}

func (n *RecordingNotifier) Notify(ctx context.Context, actorID string, notification domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Sent = append(n.Sent, SentNotification{ActorID: actorID, Notification: notification})
	return nil
}

func (n *RecordingNotifier) All() []SentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]SentNotification(nil), n.Sent...)
}
