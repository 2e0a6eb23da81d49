package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/chainstatus/statuspage/internal/incident"
	"github.com/chainstatus/statuspage/internal/metrics"
	"github.com/chainstatus/statuspage/internal/notify"
	"github.com/chainstatus/statuspage/internal/resilience"
	"github.com/chainstatus/statuspage/internal/status"
	"github.com/chainstatus/statuspage/internal/subscriber"
)

// MockDispatcher implements notify.Dispatcher for testing
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, req notify.Request) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

type pauseSwitch bool

func (p pauseSwitch) NotificationsPaused(context.Context) bool { return bool(p) }

func seedSubscribers(t *testing.T, subs ...*subscriber.Subscriber) *subscriber.InMemoryRepository {
	t.Helper()
	repo := subscriber.NewInMemoryRepository()
	for _, s := range subs {
		require.NoError(t, repo.Create(context.Background(), s))
	}
	return repo
}

func newDelta(sev status.Severity, serviceID string) incident.Delta {
	inc := &incident.Incident{
		ID:       "inc_test",
		Title:    "RPC down",
		Severity: sev,
		Status:   status.Investigating,
	}
	if serviceID != "" {
		inc.ServiceID = &serviceID
	}
	return incident.Delta{
		Event:      incident.EventCreated,
		Incident:   inc,
		Message:    "Investigating",
		ServiceIDs: inc.ServiceIDs(),
	}
}

func TestFanout_NotifiesEligibleSubscribers(t *testing.T) {
	repo := seedSubscribers(t,
		&subscriber.Subscriber{ID: "sub_all", Email: "all@example.org", Verified: true, NotifyAll: true},
		&subscriber.Subscriber{ID: "sub_major", Email: "major@example.org", Verified: true, NotifyMajor: true},
		&subscriber.Subscriber{ID: "sub_rpc", Email: "rpc@example.org", Verified: true, NotifyServices: []string{"svc_rpc"}},
		&subscriber.Subscriber{ID: "sub_web", Email: "web@example.org", Verified: true, NotifyServices: []string{"svc_web"}},
		&subscriber.Subscriber{ID: "sub_pending", Email: "pending@example.org", NotifyAll: true},
	)

	dispatcher := &MockDispatcher{}
	dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return(nil)

	fanout := notify.NewFanout(notify.FanoutConfig{
		Subscribers: repo,
		Dispatcher:  dispatcher,
		Flags:       pauseSwitch(false),
		Logger:      zerolog.Nop(),
	})

	delta := newDelta(status.SeverityMajor, "svc_rpc")
	sent, err := fanout.Notify(context.Background(), delta, delta.ServiceIDs)
	require.NoError(t, err)
	assert.Equal(t, 3, sent)

	var emails []string
	for _, call := range dispatcher.Calls {
		req := call.Arguments.Get(1).(notify.Request)
		emails = append(emails, req.SubscriberEmail)
		assert.Equal(t, "inc_test", req.IncidentID)
		assert.Equal(t, status.SeverityMajor, req.Severity)
		assert.Equal(t, incident.EventCreated, req.Event)
		assert.Equal(t, "Investigating", req.Message)
	}
	assert.ElementsMatch(t, []string{"all@example.org", "major@example.org", "rpc@example.org"}, emails)
}

func TestFanout_MinorIncidentSkipsMajorOnly(t *testing.T) {
	repo := seedSubscribers(t,
		&subscriber.Subscriber{ID: "sub_major", Email: "major@example.org", Verified: true, NotifyMajor: true},
	)

	dispatcher := &MockDispatcher{}
	fanout := notify.NewFanout(notify.FanoutConfig{
		Subscribers: repo,
		Dispatcher:  dispatcher,
		Logger:      zerolog.Nop(),
	})

	delta := newDelta(status.SeverityMinor, "svc_other")
	sent, err := fanout.Notify(context.Background(), delta, delta.ServiceIDs)
	require.NoError(t, err)
	assert.Zero(t, sent)
	dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
}

func TestFanout_DispatchFailureIsNotReturned(t *testing.T) {
	repo := seedSubscribers(t,
		&subscriber.Subscriber{ID: "sub_a", Email: "a@example.org", Verified: true, NotifyAll: true},
		&subscriber.Subscriber{ID: "sub_b", Email: "b@example.org", Verified: true, NotifyAll: true},
	)

	dispatcher := &MockDispatcher{}
	dispatcher.On("Dispatch", mock.Anything, mock.MatchedBy(func(r notify.Request) bool {
		return r.SubscriberEmail == "a@example.org"
	})).Return(errors.New("mailer down"))
	dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return(nil)

	failed := testutil.ToFloat64(metrics.NotificationsTotal.WithLabelValues(metrics.ResultFailed))

	fanout := notify.NewFanout(notify.FanoutConfig{
		Subscribers: repo,
		Dispatcher:  dispatcher,
		Logger:      zerolog.Nop(),
	})

	delta := newDelta(status.SeverityCritical, "")
	sent, err := fanout.Notify(context.Background(), delta, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, failed+1, testutil.ToFloat64(metrics.NotificationsTotal.WithLabelValues(metrics.ResultFailed)))
}

func TestFanout_Paused(t *testing.T) {
	repo := seedSubscribers(t,
		&subscriber.Subscriber{ID: "sub_a", Email: "a@example.org", Verified: true, NotifyAll: true},
	)
	dispatcher := &MockDispatcher{}

	fanout := notify.NewFanout(notify.FanoutConfig{
		Subscribers: repo,
		Dispatcher:  dispatcher,
		Flags:       pauseSwitch(true),
		Logger:      zerolog.Nop(),
	})

	delta := newDelta(status.SeverityCritical, "")
	sent, err := fanout.Notify(context.Background(), delta, nil)
	require.NoError(t, err)
	assert.Zero(t, sent)
	dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
}

type blockingDispatcher struct {
	started chan struct{}
	release chan struct{}
	count   int32
}

func (d *blockingDispatcher) Dispatch(context.Context, notify.Request) error {
	d.started <- struct{}{}
	<-d.release
	atomic.AddInt32(&d.count, 1)
	return nil
}

func TestQueue_DropsWhenFull(t *testing.T) {
	repo := seedSubscribers(t,
		&subscriber.Subscriber{ID: "sub_a", Email: "a@example.org", Verified: true, NotifyAll: true},
	)
	dispatcher := &blockingDispatcher{
		started: make(chan struct{}, 4),
		release: make(chan struct{}),
	}

	queue := notify.NewQueue(notify.QueueConfig{
		Fanout: notify.NewFanout(notify.FanoutConfig{
			Subscribers: repo,
			Dispatcher:  dispatcher,
			Logger:      zerolog.Nop(),
		}),
		Logger:  zerolog.Nop(),
		Workers: 1,
		Buffer:  1,
	})

	dropped := testutil.ToFloat64(metrics.NotificationsTotal.WithLabelValues(metrics.ResultDropped))
	ctx := context.Background()

	queue.Notify(ctx, newDelta(status.SeverityCritical, ""))
	select {
	case <-dispatcher.started:
	case <-time.After(5 * time.Second):
		t.Fatal("worker never picked up the first delta")
	}

	queue.Notify(ctx, newDelta(status.SeverityCritical, "")) // buffered
	queue.Notify(ctx, newDelta(status.SeverityCritical, "")) // dropped
	assert.Equal(t, 1, queue.Depth())
	assert.Equal(t, dropped+1, testutil.ToFloat64(metrics.NotificationsTotal.WithLabelValues(metrics.ResultDropped)))

	close(dispatcher.release)
	closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, queue.Close(closeCtx))
	assert.Equal(t, int32(2), atomic.LoadInt32(&dispatcher.count))

	// Deltas after close are dropped, not panicking on a closed channel.
	queue.Notify(ctx, newDelta(status.SeverityCritical, ""))
	assert.Equal(t, dropped+2, testutil.ToFloat64(metrics.NotificationsTotal.WithLabelValues(metrics.ResultDropped)))
}

func TestWebhookDispatcher_RetriesWithBody(t *testing.T) {
	var (
		mu       sync.Mutex
		attempts int
		bodies   []notify.Envelope
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		attempts++

		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		var env notify.Envelope
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&env))
		bodies = append(bodies, env)

		if attempts == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	registry := resilience.NewRegistry()
	cfg := resilience.DefaultConfig("notify-webhook")
	cfg.InitialInterval = time.Millisecond
	cfg.MaxInterval = 5 * time.Millisecond
	cfg.Registry = registry

	d := notify.NewWebhookDispatcher(notify.WebhookConfig{
		URL:    server.URL,
		Secret: "s3cret",
		Client: resilience.NewClient(cfg),
	})

	err := d.Dispatch(context.Background(), notify.Request{
		SubscriberEmail: "a@example.org",
		IncidentID:      "inc_1",
		Severity:        status.SeverityMajor,
		Event:           incident.EventResolved,
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, attempts)
	require.Len(t, bodies, 2)
	for _, env := range bodies {
		assert.Equal(t, notify.TypeNotification, env.Type)
		require.NotNil(t, env.Notification)
		assert.Equal(t, "inc_1", env.Notification.IncidentID)
	}

	health := registry.Health("notify-webhook")
	require.NotNil(t, health)
	assert.NotNil(t, health.LastSuccessAt)
}

func TestWebhookDispatcher_ClientErrorFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	d := notify.NewWebhookDispatcher(notify.WebhookConfig{URL: server.URL})

	err := d.SendToken(context.Background(), "a@example.org", subscriber.TokenVerify, "tok")
	assert.Error(t, err)
}

func TestNewTransport_Selection(t *testing.T) {
	ctx := context.Background()

	logOnly, err := notify.NewTransport(ctx, notify.TransportConfig{Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer logOnly.Close()
	assert.Equal(t, "log", logOnly.Name)
	assert.IsType(t, &notify.LogDispatcher{}, logOnly.Dispatcher)

	registry := resilience.NewRegistry()
	webhook, err := notify.NewTransport(ctx, notify.TransportConfig{
		WebhookURL: "https://mailer.internal/hooks/status",
		Registry:   registry,
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, err)
	defer webhook.Close()
	assert.Equal(t, "webhook", webhook.Name)
	assert.IsType(t, &notify.WebhookDispatcher{}, webhook.Dispatcher)
	assert.NotNil(t, registry.Health("notify-webhook"))
}
