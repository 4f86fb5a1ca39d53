package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"salon/internal/domain/model"
	"salon/internal/observability"
	"salon/internal/repository/memory"
	"salon/internal/security"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSweeper_RunOncePurgesExpiredRows(t *testing.T) {
	ctx := context.Background()
	clock := security.NewManualClock(t0)
	store := memory.NewStore()
	revocation := security.NewRevocationRegistry(store.RevokedTokens(), store.Users(), clock)
	metrics := observability.NewMetrics()

	require.NoError(t, revocation.Revoke(ctx, "old-jti", 1, t0.Add(time.Minute)))
	require.NoError(t, revocation.Revoke(ctx, "live-jti", 1, t0.Add(time.Hour)))
	require.NoError(t, store.OneTimeTokens().Create(ctx, &model.OneTimeToken{
		TokenHash: "expired",
		Purpose:   model.PurposeRecoveryEmail,
		UserID:    1,
		ExpiresAt: t0.Add(time.Minute),
		CreatedAt: t0,
	}))

	clock.Advance(2 * time.Minute)
	s := NewSweeper(revocation, store.OneTimeTokens(), time.Minute, clock, metrics, discardLogger())
	require.NoError(t, s.RunOnce(ctx))

	n, err := testutil.GatherAndCount(metrics.Registry(), "salon_sweeper_purged_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	revoked, err := revocation.IsRevoked(ctx, "live-jti")
	require.NoError(t, err)
	assert.True(t, revoked)
}

type failingPurger struct{ calls int }

func (f *failingPurger) CleanupExpired(context.Context) (int64, error) {
	f.calls++
	return 0, errors.New("db down")
}

func (f *failingPurger) DeleteExpired(context.Context, time.Time) (int64, error) {
	f.calls++
	return 0, errors.New("db down")
}

func TestSweeper_RunOnceTriesBothTables(t *testing.T) {
	p := &failingPurger{}
	s := NewSweeper(p, p, time.Minute, security.NewManualClock(t0), nil, discardLogger())

	err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, p.calls)
}

func TestSweeper_StartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := memory.NewStore()
	clock := security.NewManualClock(t0)
	revocation := security.NewRevocationRegistry(store.RevokedTokens(), store.Users(), clock)

	s := NewSweeper(revocation, store.OneTimeTokens(), 5*time.Millisecond, clock, nil, discardLogger())
	s.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	s.Stop()
	s.Stop()
}
