package incident_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainstatus/statuspage/internal/incident"
	"github.com/chainstatus/statuspage/internal/ledger"
	"github.com/chainstatus/statuspage/internal/status"
)

var testNow = time.Date(2026, 5, 20, 15, 30, 0, 0, time.UTC)

type recordingNotifier struct {
	mu     sync.Mutex
	deltas []incident.Delta
}

func (n *recordingNotifier) Notify(_ context.Context, d incident.Delta) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deltas = append(n.deltas, d)
}

func (n *recordingNotifier) events() []incident.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]incident.Event, 0, len(n.deltas))
	for _, d := range n.deltas {
		out = append(out, d.Event)
	}
	return out
}

type fixture struct {
	svc      *incident.Service
	repo     *incident.InMemoryRepository
	services *ledger.InMemoryRepository
	notifier *recordingNotifier
	rpcID    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	services := ledger.NewInMemoryRepository()
	rpc := &ledger.Service{
		ID:                 "svc_rpc",
		Slug:               "rpc-api",
		Name:               "RPC API",
		Public:             true,
		Status:             status.Operational,
		LastStatusChangeAt: testNow,
		Uptime:             ledger.FullUptime(),
	}
	_, err := services.Upsert(context.Background(), rpc)
	require.NoError(t, err)

	repo := incident.NewInMemoryRepository()
	notifier := &recordingNotifier{}
	return &fixture{
		svc: incident.NewService(incident.ServiceConfig{
			Repository: repo,
			Services:   services,
			Notifier:   notifier,
			Logger:     zerolog.Nop(),
			Now:        func() time.Time { return testNow },
		}),
		repo:     repo,
		services: services,
		notifier: notifier,
		rpcID:    rpc.ID,
	}
}

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

func TestCreateIncident(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.CreateIncident(ctx, incident.CreateInput{
		ServiceID:   strPtr(f.rpcID),
		Title:       "Elevated RPC errors",
		Description: "Some requests fail",
		Severity:    status.SeverityMajor,
		Author:      "ops@example.org",
	})
	require.NoError(t, err)

	assert.Equal(t, incident.Created, res.Outcome)
	assert.Equal(t, status.Investigating, res.Incident.Status)
	assert.Equal(t, testNow, res.Incident.ImpactStartAt)
	assert.Contains(t, res.Incident.ID, "inc_")

	updates, err := f.svc.ListUpdates(ctx, res.Incident.ID)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, "Some requests fail", updates[0].Message)

	assert.Equal(t, []incident.Event{incident.EventCreated}, f.notifier.events())
}

func TestCreateIncident_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		input incident.CreateInput
		field string
	}{
		{"missing title", incident.CreateInput{Severity: status.SeverityMinor}, "title"},
		{"bad severity", incident.CreateInput{Title: "x", Severity: "HUGE"}, "severity"},
		{"bad status", incident.CreateInput{Title: "x", Severity: status.SeverityMinor, Status: "DONE"}, "status"},
		{"unknown service", incident.CreateInput{Title: "x", Severity: status.SeverityMinor, ServiceID: strPtr("svc_missing")}, "serviceId"},
		{"impact start in the future", incident.CreateInput{Title: "x", Severity: status.SeverityMinor, ImpactStartAt: timePtr(testNow.Add(48 * time.Hour))}, "impactStartAt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateIncident(context.Background(), tt.input)
			require.Error(t, err)

			var verr *status.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Errors[0].Field)
		})
	}

	assert.Empty(t, f.notifier.events())
}

func TestCreateIncident_AlreadyOpenAppendsUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateIncident(ctx, incident.CreateInput{
		ServiceID: strPtr(f.rpcID),
		Title:     "RPC down",
		Severity:  status.SeverityCritical,
	})
	require.NoError(t, err)

	second, err := f.svc.CreateIncident(ctx, incident.CreateInput{
		ServiceID: strPtr(f.rpcID),
		Title:     "RPC still down",
		Severity:  status.SeverityMinor,
		Message:   "Second report",
	})
	require.NoError(t, err)

	assert.Equal(t, incident.AlreadyOpen, second.Outcome)
	assert.Equal(t, first.Incident.ID, second.Incident.ID)
	assert.Equal(t, status.SeverityCritical, second.Incident.Severity, "severity is not changed")

	open, err := f.svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)

	updates, err := f.svc.ListUpdates(ctx, first.Incident.ID)
	require.NoError(t, err)
	require.Len(t, updates, 2)
	assert.Equal(t, "Second report", updates[1].Message)

	assert.Equal(t, []incident.Event{incident.EventCreated, incident.EventUpdated}, f.notifier.events())
}

func TestCreateIncident_WithoutServiceNeverConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := f.svc.CreateIncident(ctx, incident.CreateInput{
			Title:    "Scheduled upgrade",
			Severity: status.SeverityMinor,
		})
		require.NoError(t, err)
		assert.Equal(t, incident.Created, res.Outcome)
	}

	open, err := f.svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 2)
}

func TestAddUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.CreateIncident(ctx, incident.CreateInput{
		ServiceID: strPtr(f.rpcID),
		Title:     "RPC down",
		Severity:  status.SeverityCritical,
	})
	require.NoError(t, err)

	inc, err := f.svc.AddUpdate(ctx, res.Incident.ID, status.Identified, "Bad deploy", "ops")
	require.NoError(t, err)
	assert.Equal(t, status.Identified, inc.Status)

	// Statuses may move backwards.
	inc, err = f.svc.AddUpdate(ctx, res.Incident.ID, status.Investigating, "Not the deploy after all", "ops")
	require.NoError(t, err)
	assert.Equal(t, status.Investigating, inc.Status)

	_, err = f.svc.AddUpdate(ctx, res.Incident.ID, status.Monitoring, "  ", "ops")
	assert.True(t, status.IsValidation(err))

	_, err = f.svc.AddUpdate(ctx, "inc_missing", status.Monitoring, "hello", "ops")
	assert.ErrorIs(t, err, incident.ErrIncidentNotFound)
}

func TestAddUpdate_ResolvedUpdateResolves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.services.SetStatus(ctx, f.rpcID, status.MajorOutage, testNow))
	res, err := f.svc.CreateIncident(ctx, incident.CreateInput{
		ServiceID: strPtr(f.rpcID),
		Title:     "RPC down",
		Severity:  status.SeverityCritical,
	})
	require.NoError(t, err)

	inc, err := f.svc.AddUpdate(ctx, res.Incident.ID, status.Resolved, "Fixed", "ops")
	require.NoError(t, err)
	assert.Equal(t, status.Resolved, inc.Status)
	require.NotNil(t, inc.ResolvedAt)

	svc, err := f.services.Get(ctx, f.rpcID)
	require.NoError(t, err)
	assert.Equal(t, status.Operational, svc.Status)

	_, err = f.svc.AddUpdate(ctx, res.Incident.ID, status.Monitoring, "Reopen?", "ops")
	assert.ErrorIs(t, err, incident.ErrIncidentResolved)
}

func TestResolve_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.CreateIncident(ctx, incident.CreateInput{
		ServiceID: strPtr(f.rpcID),
		Title:     "RPC down",
		Severity:  status.SeverityCritical,
	})
	require.NoError(t, err)

	first, err := f.svc.Resolve(ctx, res.Incident.ID, incident.ResolveInput{Author: "ops"})
	require.NoError(t, err)
	require.NotNil(t, first.ImpactEndAt)

	second, err := f.svc.Resolve(ctx, res.Incident.ID, incident.ResolveInput{
		Author:     "ops",
		Postmortem: strPtr("Root cause: expired certificate"),
	})
	require.NoError(t, err)
	assert.Equal(t, first.ResolvedAt, second.ResolvedAt)
	require.NotNil(t, second.Postmortem)
	assert.Equal(t, "Root cause: expired certificate", *second.Postmortem)

	updates, err := f.svc.ListUpdates(ctx, res.Incident.ID)
	require.NoError(t, err)
	assert.Len(t, updates, 2, "second resolve adds no update")

	assert.Equal(t, []incident.Event{incident.EventCreated, incident.EventResolved}, f.notifier.events())

	// A new incident may be opened once the old one is resolved.
	again, err := f.svc.CreateIncident(ctx, incident.CreateInput{
		ServiceID: strPtr(f.rpcID),
		Title:     "RPC down again",
		Severity:  status.SeverityMajor,
	})
	require.NoError(t, err)
	assert.Equal(t, incident.Created, again.Outcome)

	resolved, err := f.svc.ListResolvedSince(ctx, testNow.Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, resolved, 1)
}

func TestSetPostmortem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.CreateIncident(ctx, incident.CreateInput{Title: "Outage", Severity: status.SeverityMajor})
	require.NoError(t, err)

	inc, err := f.svc.SetPostmortem(ctx, res.Incident.ID, "Details")
	require.NoError(t, err)
	require.NotNil(t, inc.Postmortem)
	assert.Equal(t, "Details", *inc.Postmortem)

	_, err = f.svc.SetPostmortem(ctx, res.Incident.ID, "")
	assert.True(t, status.IsValidation(err))

	_, err = f.svc.SetPostmortem(ctx, "inc_missing", "Details")
	assert.ErrorIs(t, err, incident.ErrIncidentNotFound)
}

func TestInMemoryRepository_OneOpenPerServiceUnderContention(t *testing.T) {
	repo := incident.NewInMemoryRepository()
	ctx := context.Background()

	const racers = 16
	results := make([]incident.CreateResult, racers)

	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			inc := &incident.Incident{
				ID:        incident.NewIncidentID(),
				ServiceID: strPtr("svc_rpc"),
				Title:     "down",
				Severity:  status.SeverityCritical,
				Status:    status.Investigating,
			}
			res, err := repo.CreateOpen(ctx, inc, nil)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	created := 0
	for _, r := range results {
		if r.Outcome == incident.Created {
			created++
		}
	}
	assert.Equal(t, 1, created)

	open, err := repo.ListOpen(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestCreateIncident_BackdatedImpactStart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	impactStart := testNow.Add(-2 * time.Hour)

	res, err := f.svc.CreateIncident(ctx, incident.CreateInput{
		ServiceID:     strPtr(f.rpcID),
		Title:         "Sequencer stalled overnight",
		Severity:      status.SeverityMajor,
		Message:       "Blocks stopped at 13:30 UTC.",
		ImpactStartAt: timePtr(impactStart),
	})
	require.NoError(t, err)
	assert.Equal(t, impactStart, res.Incident.ImpactStartAt)

	updates, err := f.svc.ListUpdates(ctx, res.Incident.ID)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, res.Incident.ImpactStartAt, updates[0].CreatedAt)

	inc, err := f.svc.Resolve(ctx, res.Incident.ID, incident.ResolveInput{Author: "ops"})
	require.NoError(t, err)
	require.NotNil(t, inc.ImpactEndAt)
	assert.False(t, inc.ImpactEndAt.Before(inc.ImpactStartAt))

	updates, err = f.svc.ListUpdates(ctx, res.Incident.ID)
	require.NoError(t, err)
	require.Len(t, updates, 2)
	assert.Equal(t, impactStart, updates[0].CreatedAt)
	assert.Equal(t, status.Resolved, updates[1].Status)
}

func TestCreateIncident_FutureImpactStartStoresNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateIncident(ctx, incident.CreateInput{
		ServiceID:     strPtr(f.rpcID),
		Title:         "Planned outage",
		Severity:      status.SeverityMinor,
		ImpactStartAt: timePtr(testNow.Add(time.Minute)),
	})
	require.True(t, status.IsValidation(err))

	open, err := f.svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
	assert.Empty(t, f.notifier.events())
}

func TestResolve_WaitsForServiceLock(t *testing.T) {
	ctx := context.Background()
	services := ledger.NewInMemoryRepository()
	_, err := services.Upsert(ctx, &ledger.Service{
		ID:                 "svc_rpc",
		Slug:               "rpc-api",
		Name:               "RPC API",
		Public:             true,
		Status:             status.Operational,
		LastStatusChangeAt: testNow,
		Uptime:             ledger.FullUptime(),
	})
	require.NoError(t, err)

	locks := ledger.NewLocks()
	svc := incident.NewService(incident.ServiceConfig{
		Repository: incident.NewInMemoryRepository(),
		Services:   services,
		Logger:     zerolog.Nop(),
		Now:        func() time.Time { return testNow },
		Locks:      locks,
	})

	res, err := svc.CreateIncident(ctx, incident.CreateInput{
		ServiceID: strPtr("svc_rpc"),
		Title:     "RPC down",
		Severity:  status.SeverityCritical,
	})
	require.NoError(t, err)
	require.NoError(t, services.SetStatus(ctx, "svc_rpc", status.MajorOutage, testNow))

	unlock := locks.Lock("svc_rpc")
	done := make(chan error, 1)
	go func() {
		_, err := svc.Resolve(ctx, res.Incident.ID, incident.ResolveInput{Author: "ops"})
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("resolve finished while the service lock was held")
	case <-time.After(50 * time.Millisecond):
	}

	current, err := services.Get(ctx, "svc_rpc")
	require.NoError(t, err)
	assert.Equal(t, status.MajorOutage, current.Status)

	unlock()
	require.NoError(t, <-done)

	current, err = services.Get(ctx, "svc_rpc")
	require.NoError(t, err)
	assert.Equal(t, status.Operational, current.Status)
}
