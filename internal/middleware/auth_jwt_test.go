package middleware

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"salon/internal/domain/model"
	"salon/internal/repository/memory"
	"salon/internal/security"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

type okResponse struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
}

type authFixture struct {
	store  *memory.Store
	clock  *security.ManualClock
	issuer *security.TokenIssuer
	revoc  *security.RevocationRegistry
	authn  *security.Authenticator
	log    *slog.Logger
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	store := memory.NewStore()
	clock := security.NewManualClock(t0)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	issuer, err := security.NewTokenIssuer("mw-secret", clock)
	require.NoError(t, err)
	revoc := security.NewRevocationRegistry(store.RevokedTokens(), store.Users(), clock)
	inactivity := security.NewInactivityMonitor(store.Users(), clock, log)
	t.Cleanup(inactivity.Wait)

	return &authFixture{
		store:  store,
		clock:  clock,
		issuer: issuer,
		revoc:  revoc,
		authn:  security.NewAuthenticator(issuer, revoc, inactivity, store.Users(), 15*time.Minute),
		log:    log,
	}
}

func (f *authFixture) seed(t *testing.T, email string, role model.Role) (*model.User, string) {
	t.Helper()
	hash := "x"
	u := &model.User{Email: email, PasswordHash: &hash, Role: role, IsActive: true, IsConfirmed: true}
	require.NoError(t, f.store.Users().Create(context.Background(), u))
	token, _, err := f.issuer.Issue(u.ID, u.Email, time.Hour)
	require.NoError(t, err)
	return u, token
}

// AuthJWT（+ 任意のguard）の後ろでcontextの中身を返す
func (f *authFixture) echo(guards ...echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	mws := append([]echo.MiddlewareFunc{AuthJWT(f.authn, f.log)}, guards...)
	e.GET("/me", func(c echo.Context) error {
		p, ok := PrincipalFrom(c)
		if !ok {
			return c.NoContent(http.StatusTeapot)
		}
		return c.JSON(http.StatusOK, okResponse{UserID: p.UserID, Role: c.Get(CtxUserRoleKey).(string)})
	}, mws...)
	return e
}

func doGet(e *echo.Echo, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestAuthJWT_MissingOrMalformedHeader(t *testing.T) {
	f := newAuthFixture(t)
	e := f.echo()

	for _, h := range []string{"", "Token abc", "Bearer ", "Bearer not-a-jwt"} {
		rec := doGet(e, h)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", h)
		assert.Equal(t, "UNAUTHORIZED", decodeError(t, rec).Code)
	}
}

func TestAuthJWT_ValidTokenSetsContext(t *testing.T) {
	f := newAuthFixture(t)
	u, token := f.seed(t, "ana@example.com", model.RoleUser)

	rec := doGet(f.echo(), "Bearer "+token)
	require.Equal(t, http.StatusOK, rec.Code)

	var body okResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, u.ID, body.UserID)
	assert.Equal(t, "USER", body.Role)
}

func TestAuthJWT_RevokedToken(t *testing.T) {
	f := newAuthFixture(t)
	u, token := f.seed(t, "ana@example.com", model.RoleUser)

	claims, err := f.issuer.Parse(token)
	require.NoError(t, err)
	require.NoError(t, f.revoc.Revoke(context.Background(), claims.JTI(), u.ID, claims.ExpiresAtTime()))

	rec := doGet(f.echo(), "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthJWT_InactiveSession(t *testing.T) {
	f := newAuthFixture(t)
	u, token := f.seed(t, "ana@example.com", model.RoleUser)
	require.NoError(t, f.store.Users().TouchActivity(context.Background(), u.ID, t0))

	f.clock.Advance(16 * time.Minute)
	rec := doGet(f.echo(), "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "SESSION_EXPIRED", decodeError(t, rec).Code)
}

func TestAuthJWT_DisabledAccount(t *testing.T) {
	f := newAuthFixture(t)
	u, token := f.seed(t, "ana@example.com", model.RoleUser)
	u.IsActive = false
	require.NoError(t, f.store.Users().Update(context.Background(), u))

	rec := doGet(f.echo(), "Bearer "+token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "ACCOUNT_DISABLED", decodeError(t, rec).Code)
}

func TestAdminRoleGuard(t *testing.T) {
	f := newAuthFixture(t)
	_, userToken := f.seed(t, "ana@example.com", model.RoleUser)
	_, adminToken := f.seed(t, "admin@example.com", model.RoleAdmin)
	e := f.echo(AdminRoleGuard())

	rec := doGet(e, "Bearer "+userToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", decodeError(t, rec).Code)

	rec = doGet(e, "Bearer "+adminToken)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireRole_WithoutAuth(t *testing.T) {
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, RequireRole(model.RoleUser, model.RoleAdmin))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
