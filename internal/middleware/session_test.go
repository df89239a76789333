package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-srv/internal/database"
	"portfolio-srv/internal/game"
	"portfolio-srv/internal/gate"
	"portfolio-srv/internal/puzzle"
)

func newSessions(store database.Store) (*SessionStore, *game.Registry) {
	games := game.NewRegistry(game.Deps{Shuffler: puzzle.NewShuffler(1, 0), Store: store})
	return NewSessionStore(store, gate.PlainVerifier("122008"), games), games
}

func TestVisitorSessionAssignsAndReusesIdentity(t *testing.T) {
	sessions, _ := newSessions(database.NewMemory())

	var seen []string
	h := VisitorSession(sessions)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, GetVisitor(r).SessionID())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookieName, cookies[0].Name)
	assert.Equal(t, seen[0], cookies[0].Value)

	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	req.AddCookie(cookies[0])
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, seen[0], seen[1])

	bad := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	bad.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "../../etc"})
	h.ServeHTTP(httptest.NewRecorder(), bad)
	assert.NotEqual(t, "../../etc", seen[2])
	assert.Equal(t, 2, sessions.Len())
}

func TestAdminFlagSurvivesCacheEviction(t *testing.T) {
	store := database.NewMemory()
	sessions, games := newSessions(store)
	const id = "6f1c4f52-7f38-4a43-9a0e-3c8f58a2c001"

	v, err := sessions.GetVisitor(id)
	require.NoError(t, err)
	for i := 0; i < gate.ActivationThreshold; i++ {
		v.Gate.Activate(time.Now())
	}
	require.NoError(t, v.Gate.SubmitSecret("122008"))
	assert.True(t, v.IsAdmin())
	assert.True(t, puzzle.IsSolved(v.Game().View().Board))
	assert.True(t, v.Game().View().Locked)

	sessions.now = func() time.Time { return time.Now().Add(time.Hour) }
	assert.Equal(t, 1, sessions.CleanupIdle(time.Minute))

	again, err := sessions.GetVisitor(id)
	require.NoError(t, err)
	assert.NotSame(t, v, again)
	assert.True(t, again.IsAdmin(), "admin flag is loaded from the store")

	again.Gate.Logout()
	assert.False(t, again.IsAdmin())
	inst, ok := games.Peek(id)
	require.True(t, ok)
	assert.False(t, inst.View().Locked)
}

func TestAdminOnly(t *testing.T) {
	sessions, _ := newSessions(database.NewMemory())
	h := VisitorSession(sessions)(AdminOnly(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	AdminOnly(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// slowStore 读取指定会话的状态时阻塞，直到 release 关闭
type slowStore struct {
	*database.Memory
	slowID  string
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *slowStore) GetState(ctx context.Context, sessionID, key string) (string, bool, error) {
	if sessionID == s.slowID {
		s.once.Do(func() { close(s.entered) })
		<-s.release
	}
	return s.Memory.GetState(ctx, sessionID, key)
}

func TestSlowLoadDoesNotBlockOtherVisitors(t *testing.T) {
	const slowID = "6f1c4f52-7f38-4a43-9a0e-3c8f58a2c010"
	const fastID = "6f1c4f52-7f38-4a43-9a0e-3c8f58a2c011"
	store := &slowStore{
		Memory:  database.NewMemory(),
		slowID:  slowID,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	sessions, _ := newSessions(store)

	slowDone := make(chan error, 1)
	go func() {
		_, err := sessions.GetVisitor(slowID)
		slowDone <- err
	}()
	<-store.entered

	fastDone := make(chan error, 1)
	go func() {
		_, err := sessions.GetVisitor(fastID)
		fastDone <- err
	}()
	select {
	case err := <-fastDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		close(store.release)
		<-slowDone
		t.Fatal("loading one visitor blocked another")
	}

	close(store.release)
	require.NoError(t, <-slowDone)
	assert.Equal(t, 2, sessions.Len())
}

func TestConcurrentGetVisitorSharesOneVisitor(t *testing.T) {
	sessions, _ := newSessions(database.NewMemory())
	const id = "6f1c4f52-7f38-4a43-9a0e-3c8f58a2c012"

	visitors := make([]*Visitor, 16)
	var wg sync.WaitGroup
	for i := range visitors {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := sessions.GetVisitor(id)
			assert.NoError(t, err)
			visitors[i] = v
		}()
	}
	wg.Wait()

	for _, v := range visitors {
		assert.Same(t, visitors[0], v)
	}
	assert.Equal(t, 1, sessions.Len())
}
