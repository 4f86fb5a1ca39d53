package security

import (
	"context"
	"testing"
	"time"

	"salon/internal/domain/model"
	"salon/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type authFixture struct {
	store  *memory.Store
	clock  *ManualClock
	issuer *TokenIssuer
	reg    *RevocationRegistry
	mon    *InactivityMonitor
	auth   *Authenticator
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	store := newStore()
	clock := NewManualClock(t0)
	issuer, err := NewTokenIssuer("test-secret", clock)
	require.NoError(t, err)
	reg := NewRevocationRegistry(store.RevokedTokens(), store.Users(), clock)
	mon := NewInactivityMonitor(store.Users(), clock, discardLogger())
	return &authFixture{
		store:  store,
		clock:  clock,
		issuer: issuer,
		reg:    reg,
		mon:    mon,
		auth:   NewAuthenticator(issuer, reg, mon, store.Users(), 15*time.Minute),
	}
}

func TestAuthenticator_Success(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newAuthFixture(t)
	u := seedUser(t, f.store.Users(), "ana@example.com")

	raw, claims, err := f.issuer.Issue(u.ID, u.Email, 24*time.Hour)
	require.NoError(t, err)

	p, err := f.auth.Authenticate(context.Background(), raw)
	require.NoError(t, err)
	f.mon.Wait()

	assert.Equal(t, u.ID, p.UserID)
	assert.Equal(t, u.Email, p.Email)
	assert.Equal(t, model.RoleUser, p.Role)
	assert.Equal(t, claims.JTI(), p.JTI)
	assert.False(t, p.IsAdmin())
}

func TestAuthenticator_RejectsRevokedToken(t *testing.T) {
	f := newAuthFixture(t)
	u := seedUser(t, f.store.Users(), "ana@example.com")
	ctx := context.Background()

	raw, claims, err := f.issuer.Issue(u.ID, u.Email, 24*time.Hour)
	require.NoError(t, err)
	require.NoError(t, f.reg.Revoke(ctx, claims.JTI(), u.ID, claims.ExpiresAtTime()))

	_, err = f.auth.Authenticate(ctx, raw)
	assert.ErrorIs(t, err, ErrTokenRevoked)
	assert.True(t, IsAuthFailure(err))
}

func TestAuthenticator_RejectsByWatermark(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newAuthFixture(t)
	u := seedUser(t, f.store.Users(), "ana@example.com")
	ctx := context.Background()

	oldRaw, _, err := f.issuer.Issue(u.ID, u.Email, 24*time.Hour)
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	require.NoError(t, f.reg.RevokeAllForPrincipal(ctx, u.ID))

	_, err = f.auth.Authenticate(ctx, oldRaw)
	assert.ErrorIs(t, err, ErrSessionRevoked)

	// 同じ秒でもwatermarkより後に発行したトークンは通る
	f.clock.Advance(500 * time.Millisecond)
	newRaw, _, err := f.issuer.Issue(u.ID, u.Email, 24*time.Hour)
	require.NoError(t, err)

	_, err = f.auth.Authenticate(ctx, newRaw)
	assert.NoError(t, err)
	f.mon.Wait()
}

func TestAuthenticator_TokenIssuedRightAfterRevokeAll(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newAuthFixture(t)
	u := seedUser(t, f.store.Users(), "ana@example.com")
	ctx := context.Background()

	f.clock.Advance(100 * time.Millisecond)
	require.NoError(t, f.reg.RevokeAllForPrincipal(ctx, u.ID))

	sameInstant, _, err := f.issuer.Issue(u.ID, u.Email, time.Hour)
	require.NoError(t, err)
	_, err = f.auth.Authenticate(ctx, sameInstant)
	assert.ErrorIs(t, err, ErrSessionRevoked)

	f.clock.Advance(500 * time.Millisecond)
	raw, _, err := f.issuer.Issue(u.ID, u.Email, time.Hour)
	require.NoError(t, err)

	p, err := f.auth.Authenticate(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, u.ID, p.UserID)
	f.mon.Wait()
}

func TestAuthenticator_RejectsInactiveSession(t *testing.T) {
	f := newAuthFixture(t)
	u := seedUser(t, f.store.Users(), "ana@example.com")
	ctx := context.Background()

	raw, _, err := f.issuer.Issue(u.ID, u.Email, 24*time.Hour)
	require.NoError(t, err)
	require.NoError(t, f.mon.Touch(ctx, u.ID))

	f.clock.Advance(16 * time.Minute)
	_, err = f.auth.Authenticate(ctx, raw)
	assert.ErrorIs(t, err, ErrSessionInactive)
}

func TestAuthenticator_RejectsDisabledAccount(t *testing.T) {
	f := newAuthFixture(t)
	u := seedUser(t, f.store.Users(), "ana@example.com")
	ctx := context.Background()

	u.IsActive = false
	require.NoError(t, f.store.Users().Update(ctx, u))

	raw, _, err := f.issuer.Issue(u.ID, u.Email, 24*time.Hour)
	require.NoError(t, err)

	_, err = f.auth.Authenticate(ctx, raw)
	assert.ErrorIs(t, err, ErrAccountDisabled)
}

func TestAuthenticator_RejectsGarbage(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.auth.Authenticate(context.Background(), "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticator_UnknownUser(t *testing.T) {
	f := newAuthFixture(t)

	raw, _, err := f.issuer.Issue(777, "ghost@example.com", time.Hour)
	require.NoError(t, err)

	_, err = f.auth.Authenticate(context.Background(), raw)
	assert.ErrorIs(t, err, ErrSessionInactive)
}
