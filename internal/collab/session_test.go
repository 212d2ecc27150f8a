package collab

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hilthontt/reelsync/internal/domain"
	"github.com/hilthontt/reelsync/internal/infrastructure/logging"
	"github.com/hilthontt/reelsync/internal/persistence/repository"
	"github.com/hilthontt/reelsync/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sessionFixture struct {
	deps   SessionDeps
	log    *readyLog
	writer *Writer
}

func newSessionFixture(availability Availability) sessionFixture {
	log := newReadyLog()
	clock := testutil.FixedClock()
	deps := SessionDeps{
		ChangeLog:    log,
		Presence:     repository.NewPresenceRepository(16),
		Availability: availability,
		Clock:        clock,
		Logger:       logging.NewNop(),
	}
	writer := NewWriter(log, &testutil.RecordingNotifier{}, availability, clock, testutil.NewStubIDGenerator(), logging.NewNop(), nil)
	return sessionFixture{deps: deps, log: log, writer: writer}
}

func (f sessionFixture) start(t *testing.T, actor string, effects Effects) (*Session, func()) {
	t.Helper()
	session := NewSession(f.deps, SessionConfig{
		ProjectID:        testProject,
		ActorID:          actor,
		PresenceInterval: 10 * time.Millisecond,
		StalenessWindow:  window,
	}, effects)

	cancel, wg := runInBackground(t, session.Run)
	return session, func() { cancel(); wg.Wait() }
}

func TestSession_RenameReachesOtherActorAsOneRefetch(t *testing.T) {
	f := newSessionFixture(enabled)

	aliceEffects := testutil.NewRecordingEffects()
	_, stopAlice := f.start(t, alice, aliceEffects)
	defer stopAlice()
	waitReady(t, f.log.ready)

	bobEffects := testutil.NewRecordingEffects()
	_, stopBob := f.start(t, bob, bobEffects)
	defer stopBob()
	waitReady(t, f.log.ready)

	_, err := f.writer.Append(context.Background(), alice, domain.ChangeInput{
		ProjectID:  testProject,
		ChangeType: domain.ChangeFolderRenamed,
		EntityType: domain.EntityFolder,
		EntityID:   videoUUID,
		NewValue:   []byte(`{"name":"Hooks"}`),
	})
	require.NoError(t, err)

	waitEffects(t, bobEffects, 2)
	refetches, updates, notifications := bobEffects.Snapshot()
	assert.Equal(t, []domain.ListKind{domain.ListFolders}, refetches)
	assert.Empty(t, updates)
	assert.Len(t, notifications, 1)

	// alice authored it: nothing dispatched on her side
	assert.Never(t, func() bool { return aliceEffects.Count() > 0 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestSession_PresenceVisibleToOthers(t *testing.T) {
	f := newSessionFixture(enabled)

	aliceSession, stopAlice := f.start(t, alice, testutil.NewRecordingEffects())
	defer stopAlice()
	aliceSession.SetFocus(domain.EntityVideo, videoUUID)

	bobSession := NewSession(f.deps, SessionConfig{
		ProjectID:        testProject,
		ActorID:          bob,
		PresenceInterval: 10 * time.Millisecond,
		StalenessWindow:  window,
	}, testutil.NewRecordingEffects())

	var (
		mu     sync.Mutex
		latest []domain.PresenceRecord
	)
	bobSession.OnPresenceChange(func(active []domain.PresenceRecord) {
		mu.Lock()
		defer mu.Unlock()
		latest = active
	})

	cancel, wg := runInBackground(t, bobSession.Run)
	defer func() { cancel(); wg.Wait() }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(latest) == 1 && latest[0].FocusEntityID != nil && *latest[0].FocusEntityID == videoUUID
	}, 2*time.Second, 5*time.Millisecond)

	active := bobSession.ActivePresence()
	require.Len(t, active, 1)
	assert.Equal(t, alice, active[0].ActorID)
}

func TestSession_DisabledFeaturesDoNotTouchStores(t *testing.T) {
	f := newSessionFixture(Availability{})
	presence := &testutil.FailingPresenceStore{PresenceStore: f.deps.Presence}
	f.deps.Presence = presence

	session := NewSession(f.deps, SessionConfig{ProjectID: testProject, ActorID: alice}, testutil.NewRecordingEffects())

	done := make(chan error, 1)
	go func() { done <- session.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("session with nothing enabled should return immediately")
	}
	assert.Zero(t, presence.Upserts())
	assert.Empty(t, f.log.ready)
}
