package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"salon/internal/config"
	"salon/internal/domain/model"
	"salon/internal/middleware"
	"salon/internal/notify"
	"salon/internal/oauth"
	"salon/internal/observability"
	"salon/internal/ratelimit"
	"salon/internal/repository/memory"
	"salon/internal/security"
	"salon/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 4, 2, 11, 0, 0, 0, time.UTC)

const (
	testPassword = "Cabello#Rizo9"
	newPassword  = "Tinte#Nuevo7"
	testAnswer   = "Firulais"
	testQuestion = "Nombre de tu primera mascota"
	testOTP      = "482913"
)

// OTPだけ固定、トークンは本物の乱数
type fixedOTP struct {
	security.RandomGenerator
}

func (fixedOTP) NewOTP() (string, error) { return testOTP, nil }

type fakeProvider struct {
	identity oauth.Identity
	err      error
}

func (p *fakeProvider) AuthCodeURL(state string) string {
	return "https://accounts.test/o/auth?state=" + url.QueryEscape(state)
}

func (p *fakeProvider) Exchange(context.Context, string) (oauth.Identity, error) {
	return p.identity, p.err
}

type testEnv struct {
	app    *App
	store  *memory.Store
	clock  *security.ManualClock
	sender *notify.RecorderSender
	srv    *httptest.Server
	client *http.Client
}

type envOption func(cfg *config.Config, st *Stores, ext *Externals)

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	cfg := config.Config{
		JWTSecret:         "app-test-secret",
		GoEnv:             "test",
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
		BcryptCost:        4,
		SweepInterval:     time.Minute,
	}

	store := memory.NewStore()
	clock := security.NewManualClock(t0)
	sender := &notify.RecorderSender{}
	st := MemoryStores(store)
	ext := Externals{
		Clock:     clock,
		Generator: fixedOTP{},
		Sender:    sender,
		Metrics:   observability.NewMetrics(),
		Log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(&cfg, &st, &ext)
	}

	a, err := New(cfg, st, ext)
	require.NoError(t, err)

	srv := httptest.NewServer(a.Server.Handler())
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	env := &testEnv{
		app:    a,
		store:  store,
		clock:  clock,
		sender: sender,
		srv:    srv,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
	t.Cleanup(func() {
		srv.Close()
		a.Inactivity.Wait()
	})
	return env
}

type reqOpt func(r *http.Request)

func withBearer(token string) reqOpt {
	return func(r *http.Request) { r.Header.Set(echo.HeaderAuthorization, "Bearer "+token) }
}

func withCSRF(value string) reqOpt {
	return func(r *http.Request) { r.Header.Set(middleware.CSRFHeaderName, value) }
}

// jarにcsrf cookieがあれば同じ値をヘッダに載せる
func (e *testEnv) do(t *testing.T, method string, path string, body any, opts ...reqOpt) (*http.Response, []byte) {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rdr)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	u, _ := url.Parse(e.srv.URL)
	for _, c := range e.client.Jar.Cookies(u) {
		if c.Name == middleware.CSRFCookieName {
			req.Header.Set(middleware.CSRFHeaderName, c.Value)
		}
	}
	for _, o := range opts {
		o(req)
	}

	res, err := e.client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	out, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, out
}

func decode[T any](t *testing.T, b []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(b, &v), string(b))
	return v
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (e *testEnv) seedUser(t *testing.T, email string, role model.Role) *model.User {
	t.Helper()
	h := security.NewBcryptHasher(4)
	pw, err := h.Hash(testPassword)
	require.NoError(t, err)
	ans, err := h.Hash(testAnswer)
	require.NoError(t, err)
	q := testQuestion

	u := &model.User{
		Email:              email,
		PasswordHash:       &pw,
		SecurityQuestion:   &q,
		SecurityAnswerHash: &ans,
		Role:               role,
		IsActive:           true,
		IsConfirmed:        true,
		Name:               "Ana",
	}
	require.NoError(t, e.store.Users().Create(context.Background(), u))
	return u
}

func (e *testEnv) login(t *testing.T, email string, password string) string {
	t.Helper()
	res, body := e.do(t, http.MethodPost, "/auth/login", usecase.AuthLoginRequest{Email: email, Password: password})
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	return decode[usecase.AuthLoginResponse](t, body).Token.AccessToken
}

func TestApp_RegisterVerifyLoginLogout(t *testing.T) {
	env := newTestEnv(t)
	email := "lucia@example.com"

	res, body := env.do(t, http.MethodPost, "/auth/register", usecase.AuthRegisterRequest{
		Email:            email,
		Password:         testPassword,
		Name:             "Lucia",
		LastName:         "Garcia",
		SecurityQuestion: testQuestion,
		SecurityAnswer:   testAnswer,
		AcceptedPrivacy:  true,
	})
	require.Equal(t, http.StatusCreated, res.StatusCode, string(body))
	reg := decode[usecase.AuthRegisterResponse](t, body)
	assert.True(t, reg.NotificationSent)
	assert.False(t, reg.User.IsConfirmed)

	//未確認のままではログインできない
	res, _ = env.do(t, http.MethodPost, "/auth/login", usecase.AuthLoginRequest{Email: email, Password: testPassword})
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res, body = env.do(t, http.MethodPost, "/auth/verify-otp", usecase.VerifyOTPRequest{Email: email, Code: testOTP})
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))

	token := env.login(t, email, testPassword)

	res, body = env.do(t, http.MethodGet, "/auth/me", nil, withBearer(token))
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	assert.Equal(t, email, decode[usecase.UserDTO](t, body).Email)

	res, body = env.do(t, http.MethodPost, "/auth/logout", nil, withBearer(token))
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))

	res, body = env.do(t, http.MethodGet, "/auth/me", nil, withBearer(token))
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", decode[errorBody](t, body).Code)
}

func TestApp_CSRFMismatchIsRejected(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "ana@example.com", model.RoleUser)
	token := env.login(t, "ana@example.com", testPassword)

	res, body := env.do(t, http.MethodPost, "/auth/logout", nil, withBearer(token), withCSRF("forged"))
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Equal(t, "CSRF_INVALID", decode[errorBody](t, body).Code)

	//拒否されたのでセッションは生きている
	res, _ = env.do(t, http.MethodGet, "/auth/me", nil, withBearer(token))
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestApp_RecoveryQuestionFlow(t *testing.T) {
	env := newTestEnv(t)
	email := "ana@example.com"
	env.seedUser(t, email, model.RoleUser)
	oldToken := env.login(t, email, testPassword)

	res, body := env.do(t, http.MethodPost, "/recovery/question", usecase.SecurityQuestionRequest{Email: email})
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	assert.Equal(t, testQuestion, decode[usecase.SecurityQuestionResponse](t, body).Question)

	res, body = env.do(t, http.MethodPost, "/recovery/answer", usecase.SecurityAnswerRequest{Email: email, Answer: "  " + testAnswer + " "})
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	reset := decode[usecase.ResetTokenResponse](t, body)
	require.NotEmpty(t, reset.Token)

	req := usecase.ResetPasswordRequest{Email: email, Token: reset.Token, NewPassword: newPassword}
	res, body = env.do(t, http.MethodPost, "/recovery/reset", req)
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))

	//2回目は使えない
	res, _ = env.do(t, http.MethodPost, "/recovery/reset", req)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, _ = env.do(t, http.MethodGet, "/auth/me", nil, withBearer(oldToken))
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	env.clock.Advance(time.Second)
	res, _ = env.do(t, http.MethodPost, "/auth/login", usecase.AuthLoginRequest{Email: email, Password: testPassword})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	env.login(t, email, newPassword)
}

func TestApp_RecoveryEmailFlowIsGeneric(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "ana@example.com", model.RoleUser)

	res, known := env.do(t, http.MethodPost, "/recovery/request", usecase.PasswordResetRequest{Email: "ana@example.com"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	res, unknown := env.do(t, http.MethodPost, "/recovery/request", usecase.PasswordResetRequest{Email: "nadie@example.com"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, string(known), string(unknown))

	msgs := env.sender.Sent()
	require.Len(t, msgs, 1)
	assert.Equal(t, "ana@example.com", msgs[0].To)
}

func TestApp_AdminRoutesRequireAdmin(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "ana@example.com", model.RoleUser)
	env.seedUser(t, "jefa@example.com", model.RoleAdmin)

	userToken := env.login(t, "ana@example.com", testPassword)
	res, body := env.do(t, http.MethodGet, "/admin/users?page=1&limit=10", nil, withBearer(userToken))
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Equal(t, "FORBIDDEN", decode[errorBody](t, body).Code)

	res, _ = env.do(t, http.MethodGet, "/admin/users", nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	adminToken := env.login(t, "jefa@example.com", testPassword)
	res, body = env.do(t, http.MethodGet, "/admin/users?page=1&limit=10", nil, withBearer(adminToken))
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	assert.Len(t, decode[usecase.AdminUserListOutput](t, body).Items, 2)

	env.clock.Advance(time.Second)
	res, body = env.do(t, http.MethodPost, "/admin/users/"+strconv.FormatInt(user.ID, 10)+"/force-logout", nil, withBearer(adminToken))
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))

	res, _ = env.do(t, http.MethodGet, "/auth/me", nil, withBearer(userToken))
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestApp_AdminProductLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "ana@example.com", model.RoleUser)
	env.seedUser(t, "jefa@example.com", model.RoleAdmin)
	userToken := env.login(t, "ana@example.com", testPassword)
	adminToken := env.login(t, "jefa@example.com", testPassword)

	in := usecase.AdminProductInput{Name: "Gel Rizos", Category: "styling", Price: 250, Stock: 10, IsActive: true}

	res, _ := env.do(t, http.MethodPost, "/admin/products", in, withBearer(userToken))
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res, body := env.do(t, http.MethodPost, "/admin/products", in, withBearer(adminToken))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(body))
	created := decode[struct {
		ID int64 `json:"id"`
	}](t, body)
	require.Positive(t, created.ID)
	path := "/products/" + strconv.FormatInt(created.ID, 10)

	res, body = env.do(t, http.MethodGet, "/products?q=rizos", nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	assert.Equal(t, int64(1), decode[usecase.ProductListOutput](t, body).Total)

	in.Price = 300
	res, body = env.do(t, http.MethodPut, "/admin"+path, in, withBearer(adminToken))
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))

	res, body = env.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	assert.Equal(t, int64(300), decode[model.Product](t, body).Price)

	res, _ = env.do(t, http.MethodDelete, "/admin/products/abc", nil, withBearer(adminToken))
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, body = env.do(t, http.MethodDelete, "/admin"+path, nil, withBearer(adminToken))
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))

	res, _ = env.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, body = env.do(t, http.MethodGet, "/admin/audit-logs?resource_type=product", nil, withBearer(adminToken))
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	var actions []model.AuditAction
	for _, l := range decode[usecase.AuditLogListOutput](t, body).Items {
		actions = append(actions, l.Action)
	}
	assert.ElementsMatch(t, []model.AuditAction{
		model.AuditActionCreateProduct,
		model.AuditActionUpdateProduct,
		model.AuditActionDeleteProduct,
	}, actions)
}

func TestApp_LoginIsRateLimited(t *testing.T) {
	env := newTestEnv(t, func(_ *config.Config, _ *Stores, ext *Externals) {
		ext.Limiter = ratelimit.NewMemoryLimiter(2, time.Minute, time.Now)
	})

	body := usecase.AuthLoginRequest{Email: "nadie@example.com", Password: "Wrong#Pass1"}
	for i := 0; i < 2; i++ {
		res, _ := env.do(t, http.MethodPost, "/auth/login", body)
		assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	}

	res, out := env.do(t, http.MethodPost, "/auth/login", body)
	assert.Equal(t, http.StatusTooManyRequests, res.StatusCode)
	assert.Equal(t, "TOO_MANY_REQUESTS", decode[errorBody](t, out).Code)
	assert.NotEmpty(t, res.Header.Get("Retry-After"))

	//別のルートは別枠
	res, _ = env.do(t, http.MethodPost, "/auth/check-email", map[string]string{"email": "libre@example.com"})
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestApp_HealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	res, body := env.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	res, body = env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), "salon_http_request_duration_seconds")

	down := newTestEnv(t, func(_ *config.Config, st *Stores, _ *Externals) {
		st.Ping = func(context.Context) error { return errors.New("connection refused") }
	})
	res, _ = down.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
}

func TestApp_CSRFEndpointSetsCookie(t *testing.T) {
	env := newTestEnv(t)

	res, body := env.do(t, http.MethodGet, "/csrf", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	token := decode[map[string]string](t, body)["csrf_token"]
	require.NotEmpty(t, token)
	assert.Equal(t, token, res.Header.Get(middleware.CSRFHeaderName))

	u, _ := url.Parse(env.srv.URL)
	var cookie string
	for _, c := range env.client.Jar.Cookies(u) {
		if c.Name == middleware.CSRFCookieName {
			cookie = c.Value
		}
	}
	assert.Equal(t, token, cookie)
}

func TestApp_GoogleSignIn(t *testing.T) {
	provider := &fakeProvider{identity: oauth.Identity{
		ProviderID:    "g-777",
		Email:         "marta@gmail.com",
		EmailVerified: true,
		GivenName:     "Marta",
	}}
	env := newTestEnv(t, func(_ *config.Config, _ *Stores, ext *Externals) {
		ext.Provider = provider
	})

	res, _ := env.do(t, http.MethodGet, "/auth/google", nil)
	require.Equal(t, http.StatusFound, res.StatusCode)
	loc, err := url.Parse(res.Header.Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)

	res, _ = env.do(t, http.MethodGet, "/auth/google/callback?code=abc&state="+url.QueryEscape(state), nil)
	require.Equal(t, http.StatusFound, res.StatusCode)
	back, err := url.Parse(res.Header.Get("Location"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(back.String(), "http://front.test/auth/callback"), back.String())
	code := back.Query().Get("code")
	require.NotEmpty(t, code)

	res, body := env.do(t, http.MethodPost, "/auth/exchange", usecase.ExchangeCodeRequest{Code: code})
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	out := decode[usecase.ExchangeCodeResponse](t, body)
	assert.True(t, out.User.IsGoogleLinked)

	res, _ = env.do(t, http.MethodGet, "/auth/me", nil, withBearer(out.Token.AccessToken))
	assert.Equal(t, http.StatusOK, res.StatusCode)

	//コードは1回だけ
	res, _ = env.do(t, http.MethodPost, "/auth/exchange", usecase.ExchangeCodeRequest{Code: code})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestApp_GoogleCallbackStateMismatch(t *testing.T) {
	env := newTestEnv(t, func(_ *config.Config, _ *Stores, ext *Externals) {
		ext.Provider = &fakeProvider{}
	})

	res, _ := env.do(t, http.MethodGet, "/auth/google/callback?code=abc&state=forged", nil)
	require.Equal(t, http.StatusFound, res.StatusCode)
	assert.Equal(t, "http://front.test/login?error=OAUTH_STATE_MISMATCH", res.Header.Get("Location"))
}

func TestApp_GoogleDisabled(t *testing.T) {
	env := newTestEnv(t)

	res, _ := env.do(t, http.MethodGet, "/auth/google", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

