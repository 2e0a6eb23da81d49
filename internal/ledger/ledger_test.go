package ledger_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainstatus/statuspage/internal/ledger"
	"github.com/chainstatus/statuspage/internal/status"
)

const catalogYAML = `
services:
  - slug: rpc-api
    name: RPC API
    category: rpc
    probe_url: ${TEST_RPC_URL}
  - slug: explorer
    name: Block Explorer
    category: web
    sort_order: 2
  - slug: prover-network
    name: Prover Network
    hidden: true
`

func newLedger(t *testing.T, now time.Time) (*ledger.Ledger, *ledger.InMemoryRepository) {
	t.Helper()
	repo := ledger.NewInMemoryRepository()
	return ledger.New(ledger.Config{
		Repository: repo,
		Logger:     zerolog.Nop(),
		Now:        func() time.Time { return now },
	}), repo
}

func TestParseCatalog(t *testing.T) {
	t.Setenv("TEST_RPC_URL", "https://rpc.example.org")

	cat, err := ledger.ParseCatalog([]byte(catalogYAML))
	require.NoError(t, err)
	require.Len(t, cat.Services, 3)

	assert.Equal(t, "https://rpc.example.org", cat.Services[0].ProbeURL)
	assert.Equal(t, "general", cat.Services[2].Category)
	assert.True(t, cat.Services[2].Hidden)
}

func TestParseCatalog_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad slug", "services:\n  - slug: Bad Slug\n", "invalid slug"},
		{"duplicate", "services:\n  - slug: a\n  - slug: a\n", "duplicate slug"},
		{"not yaml", "services: [", "parse catalog"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ledger.ParseCatalog([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "services.yaml")
	require.NoError(t, os.WriteFile(path, []byte("services:\n  - slug: faucet\n"), 0o600))

	cat, err := ledger.LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, cat.Services, 1)
	assert.Equal(t, "faucet", cat.Services[0].Name)

	_, err = ledger.LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLedger_Seed(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l, _ := newLedger(t, now)
	ctx := context.Background()

	cat, err := ledger.ParseCatalog([]byte(catalogYAML))
	require.NoError(t, err)

	created, err := l.Seed(ctx, cat)
	require.NoError(t, err)
	assert.Equal(t, 3, created)

	svc, err := l.GetBySlug(ctx, "rpc-api")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(svc.ID, "svc_"))
	assert.Equal(t, status.Operational, svc.Status)
	assert.Equal(t, now, svc.LastStatusChangeAt)
	assert.Equal(t, ledger.FullUptime(), svc.Uptime)

	// Seeding again keeps IDs and does not create duplicates.
	created, err = l.Seed(ctx, cat)
	require.NoError(t, err)
	assert.Zero(t, created)

	again, err := l.GetBySlug(ctx, "rpc-api")
	require.NoError(t, err)
	assert.Equal(t, svc.ID, again.ID)

	public, err := l.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, public, 2)
	assert.Equal(t, "rpc-api", public[0].Slug)
	assert.Equal(t, "explorer", public[1].Slug)

	all, err := l.List(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestLedger_Seed_KeepsStatus(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l, repo := newLedger(t, now)
	ctx := context.Background()

	cat := &ledger.Catalog{Services: []ledger.CatalogEntry{{Slug: "faucet", Name: "Faucet", Category: "web"}}}
	_, err := l.Seed(ctx, cat)
	require.NoError(t, err)

	svc, err := l.GetBySlug(ctx, "faucet")
	require.NoError(t, err)
	require.NoError(t, repo.SetStatus(ctx, svc.ID, status.MajorOutage, now))

	cat.Services[0].Name = "Testnet Faucet"
	_, err = l.Seed(ctx, cat)
	require.NoError(t, err)

	svc, err = l.GetBySlug(ctx, "faucet")
	require.NoError(t, err)
	assert.Equal(t, "Testnet Faucet", svc.Name)
	assert.Equal(t, status.MajorOutage, svc.Status)
}

func TestLedger_Override(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l, _ := newLedger(t, start)
	ctx := context.Background()

	_, err := l.Seed(ctx, &ledger.Catalog{Services: []ledger.CatalogEntry{{Slug: "indexer", Name: "Indexer"}}})
	require.NoError(t, err)

	svc, err := l.Override(ctx, "indexer", status.Maintenance, "admin@example.org")
	require.NoError(t, err)
	assert.Equal(t, status.Maintenance, svc.Status)

	stored, err := l.GetBySlug(ctx, "indexer")
	require.NoError(t, err)
	assert.Equal(t, status.Maintenance, stored.Status)

	_, err = l.Override(ctx, "indexer", status.Level("BROKEN"), "admin@example.org")
	assert.True(t, status.IsValidation(err))

	_, err = l.Override(ctx, "missing", status.Degraded, "admin@example.org")
	assert.ErrorIs(t, err, ledger.ErrServiceNotFound)
}

func TestLedger_OverrideWaitsForServiceLock(t *testing.T) {
	ctx := context.Background()
	repo := ledger.NewInMemoryRepository()
	locks := ledger.NewLocks()
	l := ledger.New(ledger.Config{
		Repository: repo,
		Locks:      locks,
		Logger:     zerolog.Nop(),
		Now:        func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	})

	_, err := l.Seed(ctx, &ledger.Catalog{Services: []ledger.CatalogEntry{{Slug: "indexer", Name: "Indexer"}}})
	require.NoError(t, err)
	svc, err := l.GetBySlug(ctx, "indexer")
	require.NoError(t, err)

	unlock := locks.Lock(svc.ID)
	done := make(chan error, 1)
	go func() {
		_, err := l.Override(ctx, "indexer", status.Maintenance, "admin@example.org")
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("override finished while the service lock was held")
	case <-time.After(50 * time.Millisecond):
	}

	// A writer holding the lock changes the status before the override runs.
	require.NoError(t, repo.SetStatus(ctx, svc.ID, status.MajorOutage, time.Now()))
	unlock()
	require.NoError(t, <-done)

	stored, err := l.GetBySlug(ctx, "indexer")
	require.NoError(t, err)
	assert.Equal(t, status.Maintenance, stored.Status)
}

func TestLedger_SetVisibility(t *testing.T) {
	l, _ := newLedger(t, time.Now())
	ctx := context.Background()

	_, err := l.Seed(ctx, &ledger.Catalog{Services: []ledger.CatalogEntry{{Slug: "web-app", Name: "Web App"}}})
	require.NoError(t, err)

	_, err = l.SetVisibility(ctx, "web-app", false)
	require.NoError(t, err)

	public, err := l.List(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, public)
}

func TestInMemoryRepository_RecordCheck(t *testing.T) {
	repo := ledger.NewInMemoryRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := repo.Upsert(ctx, &ledger.Service{ID: "svc_1", Slug: "rpc", Status: status.Operational})
	require.NoError(t, err)

	rt := 120
	require.NoError(t, repo.RecordCheck(ctx, "svc_1", now, &rt))

	svc, err := repo.Get(ctx, "svc_1")
	require.NoError(t, err)
	require.NotNil(t, svc.LastCheckedAt)
	assert.Equal(t, now, *svc.LastCheckedAt)
	require.NotNil(t, svc.LastResponseTimeMs)
	assert.Equal(t, 120, *svc.LastResponseTimeMs)

	// Returned records are copies.
	*svc.LastResponseTimeMs = 1
	again, err := repo.Get(ctx, "svc_1")
	require.NoError(t, err)
	assert.Equal(t, 120, *again.LastResponseTimeMs)

	assert.ErrorIs(t, repo.RecordCheck(ctx, "svc_missing", now, nil), ledger.ErrServiceNotFound)
}
