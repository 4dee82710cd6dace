package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/models"
	"storefront/internal/service"
	"storefront/internal/store"
)

const testSecret = "test-secret"

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

// fakeUserStore answers the user lookups the handlers hit and records the
// recipient scope it was called with.
type fakeUserStore struct {
	service.UserStore
	users          map[int64]*models.User
	recipientScope *int64
	scopeSeen      bool
}

func (f *fakeUserStore) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserStore) ListUsers(context.Context, store.ListOptions) ([]models.User, error) {
	out := []models.User{}
	for _, u := range f.users {
		out = append(out, *u)
	}
	return out, nil
}

func (f *fakeUserStore) ListRecipients(_ context.Context, userID *int64, _ store.ListOptions) ([]models.Recipient, error) {
	f.recipientScope = userID
	f.scopeSeen = true
	return []models.Recipient{}, nil
}

type fakeAuthStore struct {
	mu    sync.Mutex
	otps  map[string]*models.OTPRequest
	users map[string]*models.User
}

func newFakeAuthStore() *fakeAuthStore {
	return &fakeAuthStore{otps: map[string]*models.OTPRequest{}, users: map[string]*models.User{}}
}

func (f *fakeAuthStore) UpsertOTP(_ context.Context, email, code string, now, expiresAt time.Time) (*models.OTPRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	otp := &models.OTPRequest{ID: int64(len(f.otps) + 1), Email: email, Code: code, CreatedAt: now, ExpiresAt: expiresAt, LastSentAt: now}
	f.otps[email] = otp
	return otp, nil
}

func (f *fakeAuthStore) GetOTPByEmail(_ context.Context, email string) (*models.OTPRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	otp, ok := f.otps[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	return otp, nil
}

func (f *fakeAuthStore) SaveOTPAttempts(context.Context, *models.OTPRequest) error { return nil }

func (f *fakeAuthStore) DeleteOTP(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for email, otp := range f.otps {
		if otp.ID == id {
			delete(f.otps, email)
		}
	}
	return nil
}

func (f *fakeAuthStore) GetOrCreateUserByEmail(_ context.Context, email string) (*models.User, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[email]; ok {
		return u, false, nil
	}
	u := &models.User{ID: int64(len(f.users) + 1), Email: email, Username: email, IsActive: true, Role: models.RoleCustomer}
	f.users[email] = u
	return u, true, nil
}

func (f *fakeAuthStore) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, store.ErrNotFound
}

type captureMailer struct {
	codes map[string]string
}

func (m *captureMailer) SendCode(_ context.Context, email, code string) error {
	m.codes[email] = code
	return nil
}

type testEnv struct {
	router *gin.Engine
	tokens *service.TokenIssuer
	users  *fakeUserStore
	auth   *fakeAuthStore
	mailer *captureMailer
}

func newTestEnv(t *testing.T, checks map[string]Pinger) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens := service.NewTokenIssuer(testSecret, 5*time.Minute, time.Hour)
	users := &fakeUserStore{users: map[int64]*models.User{
		1: {ID: 1, Email: "buyer@example.com", IsActive: true, Role: models.RoleCustomer},
		2: {ID: 2, Email: "staff@example.com", IsActive: true, IsStaff: true, Role: models.RoleManager},
	}}
	auth := newFakeAuthStore()
	mailer := &captureMailer{codes: map[string]string{}}

	svc := Services{
		Auth:  service.NewAuthService(auth, mailer, tokens, 10*time.Minute, 5),
		Users: service.NewUserService(users),
	}
	h := NewHandler(svc, tokens, CookieConfig{Name: "refresh_token", MaxAge: time.Hour}, checks)

	router := gin.New()
	h.SetupRoutes(router)
	return &testEnv{router: router, tokens: tokens, users: users, auth: auth, mailer: mailer}
}

func (e *testEnv) bearer(t *testing.T, id int64) string {
	t.Helper()
	access, _, err := e.tokens.Pair(e.users.users[id])
	require.NoError(t, err)
	return "Bearer " + access
}

func (e *testEnv) do(method, path, body, auth string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/health", "", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode(t, w)["status"])
}

func TestReadinessCheck(t *testing.T) {
	t.Run("all dependencies up", func(t *testing.T) {
		env := newTestEnv(t, map[string]Pinger{"postgres": fakePinger{}, "redis": fakePinger{}})

		w := env.do(http.MethodGet, "/ready", "", "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ready", decode(t, w)["status"])
	})

	t.Run("redis down", func(t *testing.T) {
		env := newTestEnv(t, map[string]Pinger{"postgres": fakePinger{}, "redis": fakePinger{err: errors.New("connection refused")}})

		w := env.do(http.MethodGet, "/ready", "", "")

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		body := decode(t, w)
		deps := body["deps"].(map[string]interface{})
		assert.Equal(t, "ok", deps["postgres"])
		assert.Equal(t, "connection refused", deps["redis"])
	})
}

func TestAuthentication(t *testing.T) {
	env := newTestEnv(t, nil)

	t.Run("anonymous caller", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/v1/me", "", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/v1/me", "", "Token abc")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("refresh token used as access token", func(t *testing.T) {
		_, refresh, err := env.tokens.Pair(env.users.users[1])
		require.NoError(t, err)

		w := env.do(http.MethodGet, "/api/v1/me", "", "Bearer "+refresh)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/v1/me", "", env.bearer(t, 1))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "buyer@example.com", decode(t, w)["email"])
	})
}

func TestStaffOnlyRoutes(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/api/v1/users", "", env.bearer(t, 1))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(http.MethodGet, "/api/v1/users", "", env.bearer(t, 2))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMalformedPathIDIsNotFound(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/api/v1/users/abc", "", env.bearer(t, 2))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Not found.", decode(t, w)["detail"])
}

func TestRecipientScope(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/api/v1/me/recipients", "", env.bearer(t, 2))
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, env.users.scopeSeen)
	require.NotNil(t, env.users.recipientScope)
	assert.Equal(t, int64(2), *env.users.recipientScope)

	w = env.do(http.MethodGet, "/api/v1/recipients", "", env.bearer(t, 2))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, env.users.recipientScope)
}

func TestBindingErrorsUseJSONNames(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodPost, "/api/v1/auth/confirm", `{"email": "not-an-email", "code": "12"}`, "")

	require.Equal(t, http.StatusBadRequest, w.Code)
	var body map[string][]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []string{"Enter a valid email address."}, body["email"])
	assert.Equal(t, []string{"Ensure this field has exactly 6 characters."}, body["code"])
}

func TestLoginConfirmRefresh(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodPost, "/api/v1/auth/login", `{"email": "New@Example.com"}`, "")
	require.Equal(t, http.StatusOK, w.Code)
	code, ok := env.mailer.codes["new@example.com"]
	require.True(t, ok)

	w = env.do(http.MethodPost, "/api/v1/auth/confirm", fmt.Sprintf(`{"email": "new@example.com", "code": %q}`, code), "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.NotEmpty(t, body["access"])
	assert.NotContains(t, body, "refresh")

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "refresh_token" {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, 3600, cookie.MaxAge)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil)
	req.AddCookie(cookie)
	rw := httptest.NewRecorder()
	env.router.ServeHTTP(rw, req)
	require.Equal(t, http.StatusOK, rw.Code)
	assert.NotEmpty(t, decode(t, rw)["access"])

	w = env.do(http.MethodPost, "/api/v1/auth/confirm", fmt.Sprintf(`{"email": "new@example.com", "code": %q}`, code), "")
	assert.Equal(t, http.StatusBadRequest, w.Code, "a used code cannot be confirmed twice")
}

func TestRefreshWithoutToken(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodPost, "/api/v1/auth/refresh", "", "")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		err    error
		status int
		check  func(t *testing.T, body map[string]interface{})
	}{
		{
			name:   "validation",
			err:    service.NewValidationError("slug", "An object with this value already exists."),
			status: http.StatusBadRequest,
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, []interface{}{"An object with this value already exists."}, body["slug"])
			},
		},
		{name: "not found", err: fmt.Errorf("load: %w", service.ErrNotFound), status: http.StatusNotFound},
		{name: "forbidden", err: service.ErrForbidden, status: http.StatusForbidden},
		{name: "invalid token", err: service.ErrInvalidToken, status: http.StatusUnauthorized},
		{name: "conflict", err: fmt.Errorf("checkout is paid: %w", service.ErrConflict), status: http.StatusConflict},
		{
			name:   "gateway error keeps the checkout id",
			err:    &service.GatewayError{CheckoutID: 42, Err: errors.New("timeout")},
			status: http.StatusBadGateway,
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, float64(42), body["checkout_id"])
			},
		},
		{name: "gateway unavailable", err: service.ErrGatewayUnavailable, status: http.StatusBadGateway},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			respondError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			if tt.check != nil {
				tt.check(t, decode(t, w))
			}
		})
	}
}
