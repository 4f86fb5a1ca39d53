package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"salon/internal/config"
	"salon/internal/domain/model"
	"salon/internal/notify"
	"salon/internal/observability"
	repo "salon/internal/repository"
	"salon/internal/repository/memory"
	"salon/internal/security"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var t0 = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

const (
	testPassword = "Cabello#Rizo9"
	testAnswer   = "Firulais"
	testQuestion = "Nombre de tu primera mascota"
)

// 決まった値を返すトークン生成（テスト用）
type fixedGenerator struct {
	otp string
	n   int
}

func (g *fixedGenerator) NewToken() (string, error) {
	g.n++
	return fmt.Sprintf("%064x", g.n), nil
}

func (g *fixedGenerator) NewOTP() (string, error) {
	return g.otp, nil
}

type fixture struct {
	store   *memory.Store
	clock   *security.ManualClock
	sender  *notify.RecorderSender
	gen     *fixedGenerator
	metrics *observability.Metrics
	authn   *security.Authenticator
	deps    Deps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	clock := security.NewManualClock(t0)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	issuer, err := security.NewTokenIssuer("test-secret", clock)
	require.NoError(t, err)

	cfg := config.Config{
		FrontendURL:       "http://front.test",
		SessionTTL:        24 * time.Hour,
		OAuthSessionTTL:   7 * 24 * time.Hour,
		InactivityTimeout: 15 * time.Minute,
		OTPTTL:            2 * time.Minute,
		QuestionTokenTTL:  15 * time.Minute,
		EmailTokenTTL:     10 * time.Minute,
		OAuthCodeTTL:      5 * time.Minute,
		MaxLoginAttempts:  5,
		LockoutDuration:   15 * time.Minute,
	}

	revocation := security.NewRevocationRegistry(store.RevokedTokens(), store.Users(), clock)
	inactivity := security.NewInactivityMonitor(store.Users(), clock, log)
	t.Cleanup(inactivity.Wait)

	f := &fixture{
		store:   store,
		clock:   clock,
		sender:  &notify.RecorderSender{},
		gen:     &fixedGenerator{otp: "123456"},
		metrics: observability.NewMetrics(),
		authn:   security.NewAuthenticator(issuer, revocation, inactivity, store.Users(), cfg.InactivityTimeout),
	}
	f.deps = Deps{
		Config:     cfg,
		Users:      store.Users(),
		Tokens:     store.OneTimeTokens(),
		AuditLogs:  store.AuditLogs(),
		Tx:         store,
		Hasher:     security.NewBcryptHasher(bcrypt.MinCost),
		Generator:  f.gen,
		Issuer:     issuer,
		Revocation: revocation,
		Inactivity: inactivity,
		Lockout:    security.NewLockoutGuard(store.Users(), clock, cfg.MaxLoginAttempts, cfg.LockoutDuration),
		Clock:      clock,
		Sender:     f.sender,
		Metrics:    f.metrics,
		Log:        log,
	}
	return f
}

func strPtr(s string) *string { return &s }

// 確認済み・秘密の質問ありのユーザー
func (f *fixture) seedUser(t *testing.T, email string) *model.User {
	t.Helper()
	pw, err := f.deps.Hasher.Hash(testPassword)
	require.NoError(t, err)
	ans, err := f.deps.Hasher.Hash(testAnswer)
	require.NoError(t, err)

	u := &model.User{
		Email:              email,
		PasswordHash:       &pw,
		SecurityQuestion:   strPtr(testQuestion),
		SecurityAnswerHash: &ans,
		Role:               model.RoleUser,
		IsActive:           true,
		IsConfirmed:        true,
		Name:               "Ana",
	}
	require.NoError(t, f.store.Users().Create(context.Background(), u))
	return u
}

func (f *fixture) seedGoogleUser(t *testing.T, email string, googleID string) *model.User {
	t.Helper()
	u := &model.User{
		Email:       email,
		GoogleID:    &googleID,
		Role:        model.RoleUser,
		IsActive:    true,
		IsConfirmed: true,
	}
	require.NoError(t, f.store.Users().Create(context.Background(), u))
	return u
}

func (f *fixture) user(t *testing.T, id int64) *model.User {
	t.Helper()
	u, err := f.store.Users().FindByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

// 認証を通してPrincipalを得る
func (f *fixture) principal(t *testing.T, token string) *security.Principal {
	t.Helper()
	p, err := f.authn.Authenticate(context.Background(), token)
	require.NoError(t, err)
	return p
}

func assertHTTPError(t *testing.T, err error, status int, code string) {
	t.Helper()
	he, ok := AsHTTPError(err)
	require.True(t, ok, "expected HTTPError, got %v", err)
	assert.Equal(t, status, he.Status)
	if code != "" {
		assert.Equal(t, code, he.Code)
	}
}

func assertUnauthorized(t *testing.T, err error) {
	t.Helper()
	assertHTTPError(t, err, http.StatusUnauthorized, "")
}

// SetTokensRevokedBeforeだけ失敗させるTx。ロールバックの確認用
type failingTx struct {
	store *memory.Store
}

func (f failingTx) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	return f.store.WithinTx(ctx, func(r repo.TxRepos) error {
		return fn(failingTxRepos{TxRepos: r})
	})
}

type failingTxRepos struct {
	repo.TxRepos
}

func (r failingTxRepos) Users() repo.UserRepository {
	return failingUsers{UserRepository: r.TxRepos.Users()}
}

type failingUsers struct {
	repo.UserRepository
}

func (failingUsers) SetTokensRevokedBefore(context.Context, int64, time.Time) error {
	return errors.New("disk full")
}
