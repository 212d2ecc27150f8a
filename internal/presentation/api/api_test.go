package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hilthontt/reelsync/internal/collab"
	"github.com/hilthontt/reelsync/internal/domain"
	"github.com/hilthontt/reelsync/internal/infrastructure/auth"
	"github.com/hilthontt/reelsync/internal/infrastructure/configs"
	"github.com/hilthontt/reelsync/internal/infrastructure/logging"
	"github.com/hilthontt/reelsync/internal/infrastructure/metrics"
	"github.com/hilthontt/reelsync/internal/infrastructure/ratelimiter"
	"github.com/hilthontt/reelsync/internal/infrastructure/ws"
	"github.com/hilthontt/reelsync/internal/persistence/repository"
	changesHandler "github.com/hilthontt/reelsync/internal/presentation/handler/changes"
	healthHandler "github.com/hilthontt/reelsync/internal/presentation/handler/health"
	presenceHandler "github.com/hilthontt/reelsync/internal/presentation/handler/presence"
	realtimeHandler "github.com/hilthontt/reelsync/internal/presentation/handler/realtime"
	sessionHandler "github.com/hilthontt/reelsync/internal/presentation/handler/session"
	"github.com/hilthontt/reelsync/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const (
	secret    = "test-secret"
	issuer    = "reelsync"
	projectID = "project-1"
	folderID  = "7c9e6679-7425-40de-944b-e07fc1f90ae7"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type options struct {
	availability collab.Availability
	appendErr    error
	burst        int
}

type fixture struct {
	handler  http.Handler
	changes  domain.ChangeLog
	presence domain.PresenceStore
	health   *healthHandler.Handler
	hub      *ws.Hub
}

func newFixture(t *testing.T, opts options) *fixture {
	t.Helper()
	if opts.burst == 0 {
		opts.burst = 100
	}

	cfg := configs.Config{
		HTTP: configs.HTTPConfig{AllowedOrigins: []string{"*"}},
		Sync: configs.SyncConfig{
			PresenceInterval: 20 * time.Millisecond,
			StalenessWindow:  30 * time.Second,
			ClientBuffer:     16,
		},
	}
	logger := logging.NewNop()
	m := metrics.New()
	clock := collab.RealClock{}

	var changeLog domain.ChangeLog = repository.NewChangeLogRepository(16)
	if opts.appendErr != nil {
		changeLog = &testutil.FailingChangeLog{ChangeLog: changeLog, AppendErr: opts.appendErr}
	}
	presence := repository.NewPresenceRepository(16)

	hub := ws.NewHub(cfg.HTTP.AllowedOrigins, logger)
	verifier := auth.NewVerifier(secret, issuer)
	writer := collab.NewWriter(changeLog, nil, opts.availability, clock, collab.NewULIDGenerator(clock), logger, m)

	limiter := ratelimiter.New(ratelimiter.Options{MaxRatePerSecond: 1, MaxBurst: opts.burst, CacheTTL: time.Minute})
	t.Cleanup(func() { _ = limiter.Close() })

	health := healthHandler.NewHandler(opts.availability)
	app := NewApplication(cfg, Handlers{
		Health:   health,
		Changes:  changesHandler.NewHandler(writer, changeLog, opts.availability, 100, logger),
		Presence: presenceHandler.NewHandler(presence, opts.availability, clock, cfg.Sync.StalenessWindow, logger),
		Realtime: realtimeHandler.NewHandler(hub, verifier, collab.SessionDeps{
			ChangeLog:    changeLog,
			Presence:     presence,
			Availability: opts.availability,
			Clock:        clock,
			Logger:       logger,
			Metrics:      m,
		}, cfg.Sync, logger),
		Session: sessionHandler.NewHandler(verifier, false),
	}, logger, limiter, verifier, m)

	return &fixture{
		handler:  app.Mount(),
		changes:  changeLog,
		presence: presence,
		health:   health,
		hub:      hub,
	}
}

var enabled = options{availability: collab.Availability{ChangeLog: true, Presence: true}}

func token(t *testing.T, actor string, projects ...string) string {
	t.Helper()
	tok, err := auth.Issue(secret, issuer, actor, projects, time.Hour, time.Now())
	require.NoError(t, err)
	return tok
}

func (f *fixture) do(t *testing.T, method, path, tok, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	if tok != "" {
		r.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, r)
	return rec
}

const renameBody = `{"changeType":"folder_renamed","entityType":"folder","entityId":"` + folderID + `","newValue":{"name":"Hooks"}}`

func TestChanges_AppendThenList(t *testing.T) {
	f := newFixture(t, enabled)
	tok := token(t, "user_alice")

	rec := f.do(t, http.MethodPost, "/api/projects/project-1/changes", tok, renameBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created domain.ChangeRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "user_alice", created.ActorID)
	assert.Equal(t, domain.ChangeFolderRenamed, created.ChangeType)
	require.NotNil(t, created.EntityID)
	assert.Equal(t, folderID, *created.EntityID)
	assert.Equal(t, uint64(1), created.ActorCounter)

	rec = f.do(t, http.MethodPost, "/api/projects/project-1/changes", tok,
		`{"changeType":"video_moved","entityType":"video","entityId":"reel-42"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/projects/project-1/changes?limit=10", tok, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		Changes []domain.ChangeRecord `json:"changes"`
		Count   int                   `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 2, list.Count)
	assert.Equal(t, domain.ChangeFolderRenamed, list.Changes[0].ChangeType)
	assert.Nil(t, list.Changes[1].EntityID, "non-UUID entity ids are stored as null")
}

func TestChanges_Errors(t *testing.T) {
	tests := []struct {
		name   string
		opts   options
		method string
		tok    func(t *testing.T) string
		body   string
		path   string
		status int
	}{
		{"missing token", enabled, http.MethodPost, func(*testing.T) string { return "" }, renameBody, "/api/projects/project-1/changes", http.StatusUnauthorized},
		{"wrong project", enabled, http.MethodPost, func(t *testing.T) string { return token(t, "user_alice", "project-2") }, renameBody, "/api/projects/project-1/changes", http.StatusForbidden},
		{"malformed body", enabled, http.MethodPost, func(t *testing.T) string { return token(t, "user_alice") }, `{"changeType":`, "/api/projects/project-1/changes", http.StatusBadRequest},
		{"invalid change type", enabled, http.MethodPost, func(t *testing.T) string { return token(t, "user_alice") }, `{"changeType":"Folder Renamed","entityType":"folder"}`, "/api/projects/project-1/changes", http.StatusBadRequest},
		{"disabled append", options{}, http.MethodPost, func(t *testing.T) string { return token(t, "user_alice") }, renameBody, "/api/projects/project-1/changes", http.StatusServiceUnavailable},
		{"disabled list", options{}, http.MethodGet, func(t *testing.T) string { return token(t, "user_alice") }, "", "/api/projects/project-1/changes", http.StatusServiceUnavailable},
		{"bad limit", enabled, http.MethodGet, func(t *testing.T) string { return token(t, "user_alice") }, "", "/api/projects/project-1/changes?limit=abc", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.opts)
			rec := f.do(t, tt.method, tt.path, tt.tok(t), tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestChanges_PropagationFailureReturnsToast(t *testing.T) {
	opts := enabled
	opts.appendErr = fmt.Errorf("insert: %w", domain.ErrStoreUnavailable)
	f := newFixture(t, opts)

	rec := f.do(t, http.MethodPost, "/api/projects/project-1/changes", token(t, "user_alice"), renameBody)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var body struct {
		Message      string              `json:"message"`
		Notification domain.Notification `json:"notification"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, collab.PropagationFailureMessage, body.Message)
	assert.Equal(t, domain.NotificationError, body.Notification.Level)
	assert.Equal(t, collab.PropagationFailureMessage, body.Notification.Message)
	assert.Equal(t, projectID, body.Notification.ProjectID)

	list := f.do(t, http.MethodGet, "/api/projects/project-1/changes", token(t, "user_alice"), "")
	assert.Contains(t, list.Body.String(), `"count":0`)
}

func TestChanges_RateLimitedPerActor(t *testing.T) {
	opts := enabled
	opts.burst = 1
	f := newFixture(t, opts)

	alice := token(t, "user_alice")
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/projects/project-1/changes", alice, renameBody).Code)

	rec := f.do(t, http.MethodPost, "/api/projects/project-1/changes", alice, renameBody)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/projects/project-1/changes", token(t, "user_bob"), renameBody).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/projects/project-1/changes", alice, "").Code, "reads are not limited")
}

func TestPresence_ExcludesCaller(t *testing.T) {
	f := newFixture(t, enabled)
	ctx := context.Background()
	now := time.Now()

	for _, actor := range []string{"user_alice", "user_bob"} {
		require.NoError(t, f.presence.Upsert(ctx, &domain.PresenceRecord{ProjectID: projectID, ActorID: actor, LastSeen: now}))
	}
	require.NoError(t, f.presence.Upsert(ctx, &domain.PresenceRecord{ProjectID: projectID, ActorID: "user_gone", LastSeen: now.Add(-time.Hour)}))

	rec := f.do(t, http.MethodGet, "/api/projects/project-1/presence", token(t, "user_bob"), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Actors []ws.PresencePayload `json:"actors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Actors, 1)
	assert.Equal(t, "user_alice", body.Actors[0].ActorID)
	assert.Equal(t, "alice", body.Actors[0].DisplayName)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, enabled)

	for _, path := range []string{"/api/health", "/api/healthz", "/api/live", "/api/ready"} {
		rec := f.do(t, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
	assert.Contains(t, f.do(t, http.MethodGet, "/api/health", "", "").Body.String(), `"changeLog":true`)

	f.health.Drain()
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/api/ready", "", "").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/live", "", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, enabled)
	f.do(t, http.MethodGet, "/api/health", "", "")

	rec := f.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "reelsync_http_requests_total")
}

func TestSessionCookie(t *testing.T) {
	f := newFixture(t, enabled)

	rec := f.do(t, http.MethodPost, "/api/session", token(t, "user_alice"), "")
	require.Equal(t, http.StatusCreated, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.SessionCookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	r := httptest.NewRequest(http.MethodGet, "/api/projects/project-1/changes", nil)
	r.AddCookie(cookies[0])
	list := httptest.NewRecorder()
	f.handler.ServeHTTP(list, r)
	assert.Equal(t, http.StatusOK, list.Code)

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, "/api/session", "", "").Code)
	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/session", "", "").Code)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, enabled)

	r := httptest.NewRequest(http.MethodOptions, "/api/projects/project-1/changes", nil)
	r.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

type wireMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func dialSync(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/projects/project-1/sync" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readAll pumps every inbound message into a channel until the connection closes.
func readAll(conn *websocket.Conn) <-chan wireMessage {
	out := make(chan wireMessage, 32)
	go func() {
		defer close(out)
		for {
			var msg wireMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			out <- msg
		}
	}()
	return out
}

// next returns the first message of type want, skipping others.
func next(messages <-chan wireMessage, want string, timeout time.Duration) (wireMessage, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				return wireMessage{}, false
			}
			if msg.Type == want {
				return msg, true
			}
		case <-timer.C:
			return wireMessage{}, false
		}
	}
}

func TestSync_RejectsMissingToken(t *testing.T) {
	f := newFixture(t, enabled)
	server := httptest.NewServer(f.handler)
	t.Cleanup(server.Close)

	messages := readAll(dialSync(t, server, ""))
	msg, ok := next(messages, ws.AuthenticationError, 2*time.Second)
	require.True(t, ok)
	assert.Contains(t, string(msg.Data), "AUTH_FAILED")
}

func TestSync_RenameReachesOtherActor(t *testing.T) {
	f := newFixture(t, enabled)
	server := httptest.NewServer(f.handler)
	t.Cleanup(func() {
		f.hub.DisconnectAll()
		server.Close()
	})

	bob := readAll(dialSync(t, server, "?access_token="+token(t, "user_bob")))
	_, ok := next(bob, ws.PresenceSnapshot, 2*time.Second)
	require.True(t, ok, "session should emit an initial presence snapshot")

	// the change feed subscription starts alongside presence; retry until it is live
	alice := token(t, "user_alice")
	var refetch wireMessage
	require.Eventually(t, func() bool {
		rec := f.do(t, http.MethodPost, "/api/projects/project-1/changes", alice, renameBody)
		if rec.Code != http.StatusCreated {
			return false
		}
		refetch, ok = next(bob, ws.SyncRefetch, 200*time.Millisecond)
		return ok
	}, 3*time.Second, 10*time.Millisecond)

	assert.JSONEq(t, `{"list":"folders"}`, string(refetch.Data))
	_, ok = next(bob, ws.SyncNotification, time.Second)
	assert.True(t, ok, "a rename also raises a toast")
}

func TestSync_FocusIsPublished(t *testing.T) {
	f := newFixture(t, enabled)
	server := httptest.NewServer(f.handler)
	t.Cleanup(func() {
		f.hub.DisconnectAll()
		server.Close()
	})

	conn := dialSync(t, server, "?access_token="+token(t, "user_alice"))
	messages := readAll(conn)
	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": ws.PresenceFocus,
		"data": map[string]string{"entityType": "folder", "entityId": folderID},
	}))

	require.Eventually(t, func() bool {
		records, err := f.presence.ListSince(context.Background(), projectID, time.Time{})
		if err != nil || len(records) != 1 || records[0].FocusEntityID == nil {
			return false
		}
		return *records[0].FocusEntityID == folderID
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "unknown.kind"}))
	_, ok := next(messages, ws.ErrorEvent, 2*time.Second)
	assert.True(t, ok)
}

func TestSync_DisabledFeaturesReportError(t *testing.T) {
	f := newFixture(t, options{})
	server := httptest.NewServer(f.handler)
	t.Cleanup(server.Close)

	messages := readAll(dialSync(t, server, "?access_token="+token(t, "user_alice")))
	_, ok := next(messages, ws.ErrorEvent, 2*time.Second)
	require.True(t, ok)

	select {
	case _, open := <-messages:
		assert.False(t, open, "server closes the socket after the error")
	case <-time.After(2 * time.Second):
		t.Fatal("socket was not closed")
	}
}

func TestSync_FailedAppendIsNotToastedInEveryTab(t *testing.T) {
	opts := enabled
	opts.appendErr = fmt.Errorf("insert: %w", domain.ErrStoreUnavailable)
	f := newFixture(t, opts)
	server := httptest.NewServer(f.handler)
	t.Cleanup(func() {
		f.hub.DisconnectAll()
		server.Close()
	})

	alice := token(t, "user_alice")
	tab1 := readAll(dialSync(t, server, "?access_token="+alice))
	tab2 := readAll(dialSync(t, server, "?access_token="+alice))
	for _, tab := range []<-chan wireMessage{tab1, tab2} {
		_, ok := next(tab, ws.PresenceSnapshot, 2*time.Second)
		require.True(t, ok)
	}
	require.Equal(t, 2, f.hub.Clients(projectID))

	rec := f.do(t, http.MethodPost, "/api/projects/project-1/changes", alice, renameBody)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), `"notification"`)

	for _, tab := range []<-chan wireMessage{tab1, tab2} {
		_, ok := next(tab, ws.SyncNotification, 200*time.Millisecond)
		assert.False(t, ok, "the 502 body is the only failure notification")
	}
}
