package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmailJSSend(t *testing.T) {
	var got emailJSRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte("OK"))
	}))
	defer srv.Close()

	e := NewEmailJS("svc", "tpl", "pub")
	e.Endpoint = srv.URL

	err := e.Send(context.Background(), Notification{
		FromName: "Ann", FromEmail: "ann@example.com", Message: "[FEEDBACK] hi", ToName: "Owner",
	})
	require.NoError(t, err)
	assert.Equal(t, "svc", got.ServiceID)
	assert.Equal(t, "tpl", got.TemplateID)
	assert.Equal(t, "pub", got.UserID)
	assert.Equal(t, "[FEEDBACK] hi", got.TemplateParams.Message)
	assert.Equal(t, "Owner", got.TemplateParams.ToName)
}

func TestEmailJSErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "The Public Key is invalid", http.StatusBadRequest)
	}))
	defer srv.Close()

	e := NewEmailJS("svc", "tpl", "bad")
	e.Endpoint = srv.URL
	err := e.Send(context.Background(), Notification{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

type fakePublisher struct {
	subject string
	data    []byte
	err     error
}

func (f *fakePublisher) Publish(subj string, data []byte) error {
	f.subject, f.data = subj, data
	return f.err
}

func (f *fakePublisher) Drain() error { return nil }

func TestNATSSend(t *testing.T) {
	pub := &fakePublisher{}
	n := newNATS(pub, "")
	require.NoError(t, n.Send(context.Background(), Notification{FromName: "Bo", Message: "[GAME WINNER] yay"}))
	assert.Equal(t, DefaultSubject, pub.subject)

	var note Notification
	require.NoError(t, json.Unmarshal(pub.data, &note))
	assert.Equal(t, "Bo", note.FromName)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, n.Send(ctx, Notification{}))
}

type funcNotifier func(context.Context, Notification) error

func (f funcNotifier) Send(ctx context.Context, n Notification) error { return f(ctx, n) }

func TestMultiJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	m := Multi{
		funcNotifier(func(context.Context, Notification) error { calls++; return boom }),
		funcNotifier(func(context.Context, Notification) error { calls++; return nil }),
	}
	err := m.Send(context.Background(), Notification{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestDispatchFailureIsReportedNotReturned(t *testing.T) {
	var mu sync.Mutex
	var reported []*NotificationDispatchError
	done := make(chan struct{})

	d := NewDispatcher(funcNotifier(func(context.Context, Notification) error {
		return errors.New("relay down")
	}), "Owner")
	d.OnError(func(e *NotificationDispatchError) {
		mu.Lock()
		reported = append(reported, e)
		mu.Unlock()
		close(done)
	})

	d.Dispatch(context.Background(), "feedback", Notification{FromName: "x"})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch error was not reported")
	}
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reported, 1)
	assert.Equal(t, "feedback", reported[0].Kind)
}

func TestDispatchFillsRecipient(t *testing.T) {
	var got Notification
	d := NewDispatcher(funcNotifier(func(_ context.Context, n Notification) error {
		got = n
		return nil
	}), "Owner")
	d.DispatchSync(context.Background(), "winner", Notification{FromName: "x"})
	assert.Equal(t, "Owner", got.ToName)
}
