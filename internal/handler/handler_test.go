package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"portfolio-srv/internal/database"
	"portfolio-srv/internal/feedback"
	"portfolio-srv/internal/game"
	"portfolio-srv/internal/gate"
	"portfolio-srv/internal/handler"
	"portfolio-srv/internal/metrics"
	"portfolio-srv/internal/middleware"
	"portfolio-srv/internal/notify"
	"portfolio-srv/internal/puzzle"
	"portfolio-srv/internal/router"
	"portfolio-srv/pkg/utils"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testSecret = "122008"

// fixedBoards 每次都给出距还原只差一步的棋盘
type fixedBoards struct{}

func (fixedBoards) Next() puzzle.Board {
	return puzzle.ApplyMove(puzzle.Solved(), 14)
}

type chanNotifier chan notify.Notification

func (c chanNotifier) Send(_ context.Context, n notify.Notification) error {
	c <- n
	return nil
}

type testEnv struct {
	t       *testing.T
	store   *database.Memory
	hub     *database.Hub
	games   *game.Registry
	limiter *middleware.RateLimiter
	sent    chanNotifier
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	e := &testEnv{
		t:     t,
		store: database.NewMemory(),
		sent:  make(chanNotifier, 16),
	}
	e.hub = database.NewHub(e.store)
	live := database.NewLive(e.store, e.hub)
	dispatcher := notify.NewDispatcher(e.sent, "Owner")

	e.games = game.NewRegistry(game.Deps{
		Shuffler: fixedBoards{},
		Store:    live,
		Notifier: dispatcher,
		Now:      func() time.Time { return now },
	})
	m := metrics.New(func() float64 { return float64(e.games.Len()) })
	sessions := middleware.NewSessionStore(live, gate.PlainVerifier(testSecret), e.games)
	e.limiter = middleware.NewRateLimiter(3, time.Minute)
	t.Cleanup(e.limiter.Close)

	api := &handler.API{
		Store:        live,
		Hub:          e.hub,
		Board:        feedback.NewBoard(live, e.hub, dispatcher),
		Games:        e.games,
		Sessions:     sessions,
		RateLimiter:  e.limiter,
		Metrics:      m,
		Notifier:     dispatcher,
		Testimonials: &handler.Testimonials{},
		Now:          func() time.Time { return now },
	}
	mux, err := router.Setup(api, sessions, e.limiter, m)
	require.NoError(t, err)
	e.handler = mux
	return e
}

// visitor 持有自己 Cookie 的访客
type visitor struct {
	env    *testEnv
	cookie *http.Cookie
	ip     string
	header http.Header
}

func (e *testEnv) visitor(ip string) *visitor {
	return &visitor{env: e, ip: ip, header: http.Header{}}
}

func (v *visitor) do(method, target string, body any) *httptest.ResponseRecorder {
	v.env.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(v.env.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = v.ip + ":1234"
	for k, vals := range v.header {
		req.Header[k] = vals
	}
	if v.cookie != nil {
		req.AddCookie(v.cookie)
	}

	rec := httptest.NewRecorder()
	v.env.handler.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			v.cookie = c
		}
	}
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// becomeAdmin 点击 5 次后输入口令
func (v *visitor) becomeAdmin() {
	t := v.env.t
	t.Helper()
	var last handler.ActivateResponse
	for i := 0; i < gate.ActivationThreshold; i++ {
		last = decode[handler.ActivateResponse](t, v.do(http.MethodPost, "/api/admin/activate", nil))
	}
	require.Equal(t, "prompt", last.Outcome)
	rec := v.do(http.MethodPost, "/api/admin/secret", handler.SecretRequest{Secret: testSecret})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestStateAssignsSessionCookie(t *testing.T) {
	e := newTestEnv(t)
	v := e.visitor("10.0.0.1")

	first := decode[handler.StateResponse](t, v.do(http.MethodGet, "/api/state", nil))
	require.NotNil(t, v.cookie)
	assert.Equal(t, first.SessionID, v.cookie.Value)
	assert.False(t, first.IsAdmin)
	assert.Empty(t, first.Liked)

	second := decode[handler.StateResponse](t, v.do(http.MethodGet, "/api/state", nil))
	assert.Equal(t, first.SessionID, second.SessionID)
}

func TestPreferences(t *testing.T) {
	e := newTestEnv(t)
	v := e.visitor("10.0.0.1")

	rec := v.do(http.MethodPut, "/api/preferences", handler.PreferencesRequest{Theme: "light-mode", Lang: "ar"})
	require.Equal(t, http.StatusOK, rec.Code)
	state := decode[handler.StateResponse](t, rec)
	assert.Equal(t, "light-mode", state.Theme)
	assert.Equal(t, "ar", state.Lang)

	rec = v.do(http.MethodPut, "/api/preferences", handler.PreferencesRequest{Lang: "fr"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWinnerFlow(t *testing.T) {
	e := newTestEnv(t)
	v := e.visitor("10.0.0.1")

	p := decode[handler.PuzzleResponse](t, v.do(http.MethodGet, "/api/puzzle", nil))
	require.False(t, p.Solved)

	// 提前提交被拒绝
	rec := v.do(http.MethodPost, "/api/puzzle/winner", game.WinnerForm{Name: "Ann", Email: "ann@example.com"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	p = decode[handler.PuzzleResponse](t, v.do(http.MethodPost, "/api/puzzle/move", map[string]int{"index": 15}))
	require.True(t, p.Solved)
	assert.Equal(t, game.Won, p.Phase)

	rec = v.do(http.MethodPost, "/api/puzzle/winner", game.WinnerForm{Name: "Ann", Email: "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = v.do(http.MethodPost, "/api/puzzle/winner", game.WinnerForm{Name: "Ann", Email: "ann@example.com"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[utils.Result](t, rec)
	assert.True(t, res.Success)

	select {
	case n := <-e.sent:
		assert.Equal(t, "Ann", n.FromName)
		assert.Equal(t, "[GAME WINNER] No message", n.Message)
		assert.Equal(t, "Owner", n.ToName)
	case <-time.After(2 * time.Second):
		t.Fatal("未收到通知")
	}

	winners, err := e.store.ListWinners(context.Background())
	require.NoError(t, err)
	require.Len(t, winners, 1)
	assert.Equal(t, "2026-05-01", winners[0].ClientDate)

	// 已提交后不能再次提交
	rec = v.do(http.MethodPost, "/api/puzzle/winner", game.WinnerForm{Name: "Ann", Email: "ann@example.com"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMoveRequiresIndex(t *testing.T) {
	e := newTestEnv(t)
	v := e.visitor("10.0.0.1")

	rec := v.do(http.MethodPost, "/api/puzzle/move", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminGateAndLockout(t *testing.T) {
	e := newTestEnv(t)
	v := e.visitor("10.0.0.2")

	// 未弹出口令时提交无效
	rec := v.do(http.MethodPost, "/api/admin/secret", handler.SecretRequest{Secret: testSecret})
	assert.Equal(t, http.StatusConflict, rec.Code)

	for round := 0; round < 2; round++ {
		for i := 0; i < gate.ActivationThreshold; i++ {
			v.do(http.MethodPost, "/api/admin/activate", nil)
		}
		rec = v.do(http.MethodPost, "/api/admin/secret", handler.SecretRequest{Secret: "nope"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		res := decode[handler.SecretResponse](t, rec)
		assert.Equal(t, 2-round, res.Remaining)
	}

	for i := 0; i < gate.ActivationThreshold; i++ {
		v.do(http.MethodPost, "/api/admin/activate", nil)
	}
	rec = v.do(http.MethodPost, "/api/admin/secret", handler.SecretRequest{Secret: "nope"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// 锁定期间正确口令也被拒绝
	rec = v.do(http.MethodPost, "/api/admin/secret", handler.SecretRequest{Secret: testSecret})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// 其他 IP 不受影响
	other := e.visitor("10.0.0.3")
	other.becomeAdmin()
	state := decode[handler.StateResponse](t, other.do(http.MethodGet, "/api/state", nil))
	assert.True(t, state.IsAdmin)
}

// lockOut 连续提交错误口令直到该 IP 被锁定
func (v *visitor) lockOut() {
	v.env.t.Helper()
	for i := 0; i < 3; i++ {
		for j := 0; j < gate.ActivationThreshold; j++ {
			v.do(http.MethodPost, "/api/admin/activate", nil)
		}
		v.do(http.MethodPost, "/api/admin/secret", handler.SecretRequest{Secret: "nope"})
	}
	rec := v.do(http.MethodPost, "/api/admin/secret", handler.SecretRequest{Secret: testSecret})
	require.Equal(v.env.t, http.StatusTooManyRequests, rec.Code)
}

func TestLockoutIgnoresForwardedHeadersFromClient(t *testing.T) {
	e := newTestEnv(t)
	v := e.visitor("198.51.100.2")
	v.lockOut()

	// 换一个伪造的转发地址继续尝试
	v.header.Set("X-Forwarded-For", "203.0.113.7")
	v.header.Set("X-Real-IP", "203.0.113.8")
	for i := 0; i < gate.ActivationThreshold; i++ {
		v.do(http.MethodPost, "/api/admin/activate", nil)
	}
	rec := v.do(http.MethodPost, "/api/admin/secret", handler.SecretRequest{Secret: testSecret})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	state := decode[handler.StateResponse](t, v.do(http.MethodGet, "/api/state", nil))
	assert.False(t, state.IsAdmin)
}

func TestLockoutBehindTrustedProxy(t *testing.T) {
	e := newTestEnv(t)
	ips, err := utils.NewClientIPResolver([]string{"10.0.0.0/8"})
	require.NoError(t, err)
	e.limiter.SetClientIPResolver(ips)

	// 经由同一个代理的两个客户端按转发地址分别计数
	locked := e.visitor("10.0.0.9")
	locked.header.Set("X-Forwarded-For", "203.0.113.7")
	locked.lockOut()

	other := e.visitor("10.0.0.9")
	other.header.Set("X-Forwarded-For", "203.0.113.20")
	other.becomeAdmin()
	state := decode[handler.StateResponse](t, other.do(http.MethodGet, "/api/state", nil))
	assert.True(t, state.IsAdmin)

	// 伪造的最左项不能绕过锁定
	locked.header.Set("X-Forwarded-For", "192.0.2.50, 203.0.113.7")
	for i := 0; i < gate.ActivationThreshold; i++ {
		locked.do(http.MethodPost, "/api/admin/activate", nil)
	}
	rec := locked.do(http.MethodPost, "/api/admin/secret", handler.SecretRequest{Secret: testSecret})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestAdminPuzzleLockedAndLogout(t *testing.T) {
	e := newTestEnv(t)
	v := e.visitor("10.0.0.4")
	v.becomeAdmin()

	p := decode[handler.PuzzleResponse](t, v.do(http.MethodGet, "/api/puzzle", nil))
	assert.True(t, p.Solved)
	assert.True(t, p.Locked)
	assert.Equal(t, game.Playing, p.Phase)

	// 管理员再次点击 5 次直接退出
	var last handler.ActivateResponse
	for i := 0; i < gate.ActivationThreshold; i++ {
		last = decode[handler.ActivateResponse](t, v.do(http.MethodPost, "/api/admin/activate", nil))
	}
	assert.Equal(t, "loggedOut", last.Outcome)
	assert.False(t, last.IsAdmin)

	p = decode[handler.PuzzleResponse](t, v.do(http.MethodGet, "/api/puzzle", nil))
	assert.False(t, p.Locked)
	assert.False(t, p.Solved)
}

func TestAdminOnlyRoutes(t *testing.T) {
	e := newTestEnv(t)
	v := e.visitor("10.0.0.5")

	assert.Equal(t, http.StatusForbidden, v.do(http.MethodGet, "/api/stats", nil).Code)
	assert.Equal(t, http.StatusForbidden, v.do(http.MethodGet, "/api/admin/export", nil).Code)

	v.becomeAdmin()
	rec := v.do(http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[handler.StatsResponse](t, rec)
	assert.Equal(t, 1, stats.CachedSessions)

	rec = v.do(http.MethodGet, "/api/admin/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
}

func TestFeedbackVisibilityAndModeration(t *testing.T) {
	e := newTestEnv(t)
	author := e.visitor("10.0.1.1")
	stranger := e.visitor("10.0.1.2")
	admin := e.visitor("10.0.1.3")
	admin.becomeAdmin()

	rec := author.do(http.MethodPost, "/api/feedback", feedback.Form{Name: " Bo ", Email: "bo@example.com", Message: "hi"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	created := decode[handler.SubmitFeedbackResponse](t, rec)
	assert.Equal(t, "Bo", created.Item.Name)
	assert.False(t, created.Item.Approved)
	id := created.Item.ID

	rec = author.do(http.MethodPost, "/api/feedback", feedback.Form{Name: "Bo", Email: "bo@example.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// 待审核留言只对作者和管理员可见
	assert.Len(t, decode[[]feedback.Item](t, author.do(http.MethodGet, "/api/feedback", nil)), 1)
	assert.Empty(t, decode[[]feedback.Item](t, stranger.do(http.MethodGet, "/api/feedback", nil)))
	adminView := decode[[]feedback.Item](t, admin.do(http.MethodGet, "/api/feedback", nil))
	require.Len(t, adminView, 1)
	assert.Equal(t, "bo@example.com", adminView[0].Email)

	// 访客的审核请求静默忽略
	assert.Equal(t, http.StatusOK, stranger.do(http.MethodPost, "/api/feedback/"+id+"/approve", nil).Code)
	assert.Empty(t, decode[[]feedback.Item](t, stranger.do(http.MethodGet, "/api/feedback", nil)))

	assert.Equal(t, http.StatusOK, admin.do(http.MethodPost, "/api/feedback/"+id+"/approve", nil).Code)
	visible := decode[[]feedback.Item](t, stranger.do(http.MethodGet, "/api/feedback", nil))
	require.Len(t, visible, 1)
	assert.Empty(t, visible[0].Email)

	// 点赞只计一次
	stranger.do(http.MethodPost, "/api/feedback/"+id+"/like", nil)
	stranger.do(http.MethodPost, "/api/feedback/"+id+"/like", nil)
	visible = decode[[]feedback.Item](t, stranger.do(http.MethodGet, "/api/feedback", nil))
	assert.Equal(t, 1, visible[0].Likes)
	assert.True(t, visible[0].Liked)

	assert.Equal(t, http.StatusNotFound, admin.do(http.MethodPost, "/api/feedback/missing/star", nil).Code)

	// 删除需要确认
	assert.Equal(t, http.StatusPreconditionRequired, admin.do(http.MethodDelete, "/api/feedback/"+id, nil).Code)
	assert.Equal(t, http.StatusOK, admin.do(http.MethodDelete, "/api/feedback/"+id+"?confirm=true", nil).Code)
	assert.Empty(t, decode[[]feedback.Item](t, admin.do(http.MethodGet, "/api/feedback", nil)))
}

func TestWinnersAdminOnlyView(t *testing.T) {
	e := newTestEnv(t)
	w, err := e.store.CreateWinner(context.Background(), database.NewWinner{Name: "Ann", Email: "ann@example.com", ClientDate: "2026-05-01"})
	require.NoError(t, err)

	guest := e.visitor("10.0.2.1")
	assert.Empty(t, decode[[]database.Winner](t, guest.do(http.MethodGet, "/api/winners", nil)))
	assert.Equal(t, http.StatusOK, guest.do(http.MethodDelete, "/api/winners/"+w.ID+"?confirm=true", nil).Code)

	admin := e.visitor("10.0.2.2")
	admin.becomeAdmin()
	require.Len(t, decode[[]database.Winner](t, admin.do(http.MethodGet, "/api/winners", nil)), 1)

	assert.Equal(t, http.StatusPreconditionRequired, admin.do(http.MethodDelete, "/api/winners/"+w.ID, nil).Code)
	assert.Equal(t, http.StatusOK, admin.do(http.MethodDelete, "/api/winners/"+w.ID+"?confirm=true", nil).Code)
	assert.Empty(t, decode[[]database.Winner](t, admin.do(http.MethodGet, "/api/winners", nil)))
}

func TestContactAndTestimonials(t *testing.T) {
	e := newTestEnv(t)
	v := e.visitor("10.0.3.1")

	rec := v.do(http.MethodPost, "/api/contact", handler.ContactRequest{Name: "Cy", Email: "cy@example.com", Message: "hello"})
	require.Equal(t, http.StatusOK, rec.Code)
	select {
	case n := <-e.sent:
		assert.Equal(t, "hello", n.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("未收到通知")
	}

	// 邮箱不合法时仍返回成功但不发送通知
	rec = v.do(http.MethodPost, "/api/contact", handler.ContactRequest{Name: "Cy", Email: "bad"})
	assert.Equal(t, http.StatusOK, rec.Code)

	v.do(http.MethodPost, "/api/testimonials", handler.ContactRequest{Name: "Di", Message: "great"})
	list := decode[[]handler.Testimonial](t, v.do(http.MethodGet, "/api/testimonials", nil))
	require.Len(t, list, 1)
	assert.Equal(t, "Di", list[0].Name)

	select {
	case n := <-e.sent:
		t.Fatalf("不应发送通知: %+v", n)
	case <-time.After(50 * time.Millisecond):
	}
}

type liveFrame struct {
	Type       string          `json:"type"`
	Collection string          `json:"collection"`
	Items      []feedback.Item `json:"items"`
}

func TestLiveFeedbackPushesViewerSnapshots(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.handler)
	defer srv.Close()

	admin := e.visitor("10.0.4.1")
	admin.becomeAdmin()
	author := e.visitor("10.0.4.2")

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/live/feedback"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	read := func() liveFrame {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var f liveFrame
		require.NoError(t, conn.ReadJSON(&f))
		return f
	}

	first := read()
	assert.Equal(t, "snapshot", first.Type)
	assert.Equal(t, "feedback", first.Collection)
	assert.Empty(t, first.Items)

	rec := author.do(http.MethodPost, "/api/feedback", feedback.Form{Name: "Ed", Email: "ed@example.com", Message: "nice"})
	require.Equal(t, http.StatusOK, rec.Code)
	id := decode[handler.SubmitFeedbackResponse](t, rec).Item.ID

	require.Equal(t, http.StatusOK, admin.do(http.MethodPost, "/api/feedback/"+id+"/approve", nil).Code)

	// 慢连接只收到最新快照，中间的待审核快照可能被合并
	var approved liveFrame
	for i := 0; i < 3 && len(approved.Items) == 0; i++ {
		approved = read()
	}
	require.Len(t, approved.Items, 1)
	assert.Equal(t, "Ed", approved.Items[0].Name)
	assert.Empty(t, approved.Items[0].Email)
}

func TestLiveUnknownCollection(t *testing.T) {
	e := newTestEnv(t)
	v := e.visitor("10.0.4.3")
	assert.Equal(t, http.StatusNotFound, v.do(http.MethodGet, "/api/live/users", nil).Code)
}
