package handler_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/plant-maintenance/internal/auth"
	"github.com/iliyamo/plant-maintenance/internal/config"
	"github.com/iliyamo/plant-maintenance/internal/handler"
	"github.com/iliyamo/plant-maintenance/internal/middleware"
	"github.com/iliyamo/plant-maintenance/internal/model"
	"github.com/iliyamo/plant-maintenance/internal/queue"
	"github.com/iliyamo/plant-maintenance/internal/repository"
	"github.com/iliyamo/plant-maintenance/internal/router"
)

// =====================
// In-memory stores
// =====================

type fakeUsers struct {
	nextID uint64
	byID   map[uint64]*model.User
}

func newFakeUsers() *fakeUsers { return &fakeUsers{byID: map[uint64]*model.User{}} }

func (f *fakeUsers) Create(_ context.Context, u *model.User) (uint64, error) {
	for _, e := range f.byID {
		if strings.EqualFold(e.Email, u.Email) {
			return 0, repository.ErrEmailExists
		}
	}
	f.nextID++
	cp := *u
	cp.ID = f.nextID
	f.byID[cp.ID] = &cp
	return cp.ID, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range f.byID {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeUsers) GetByID(_ context.Context, id uint64) (*model.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) GetByQRToken(_ context.Context, token string) (*model.User, error) {
	for _, u := range f.byID {
		if u.QRToken != nil && *u.QRToken == token {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeUsers) UpdateLockout(_ context.Context, userID uint64, attempts int, lockedUntil, lastAttempt *time.Time) error {
	u := f.byID[userID]
	u.LoginAttempts = attempts
	u.LockedUntil = lockedUntil
	u.LastLoginAttempt = lastAttempt
	return nil
}

func (f *fakeUsers) SetQRToken(_ context.Context, userID uint64, token string, createdAt time.Time, expiresAt *time.Time) error {
	u := f.byID[userID]
	u.QRToken = &token
	u.QRTokenCreatedAt = &createdAt
	u.QRTokenExpiresAt = expiresAt
	u.QRTokenLastUsed = nil
	return nil
}

func (f *fakeUsers) ClearQRToken(_ context.Context, userID uint64) error {
	u := f.byID[userID]
	u.QRToken, u.QRTokenCreatedAt, u.QRTokenExpiresAt, u.QRTokenLastUsed = nil, nil, nil, nil
	return nil
}

func (f *fakeUsers) TouchQRToken(_ context.Context, userID uint64, usedAt time.Time) error {
	f.byID[userID].QRTokenLastUsed = &usedAt
	return nil
}

type fakeTokens struct {
	nextID uint64
	byHash map[string]*model.RefreshToken
}

func newFakeTokens() *fakeTokens { return &fakeTokens{byHash: map[string]*model.RefreshToken{}} }

func (f *fakeTokens) Store(_ context.Context, userID uint64, tokenHash string, expiresAt time.Time) error {
	f.nextID++
	f.byHash[tokenHash] = &model.RefreshToken{ID: f.nextID, UserID: userID, TokenHash: tokenHash, ExpiresAt: expiresAt}
	return nil
}

func (f *fakeTokens) FindByHash(_ context.Context, tokenHash string) (*model.RefreshToken, error) {
	t, ok := f.byHash[tokenHash]
	if !ok {
		return nil, repository.ErrTokenNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTokens) DeleteByHash(_ context.Context, tokenHash string) error {
	delete(f.byHash, tokenHash)
	return nil
}

func (f *fakeTokens) DeleteAllForUser(_ context.Context, userID uint64) error {
	for h, t := range f.byHash {
		if t.UserID == userID {
			delete(f.byHash, h)
		}
	}
	return nil
}

// =====================
// Test server
// =====================

type testServer struct {
	e     *echo.Echo
	users *fakeUsers
	qr    *auth.QRTokenService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	users := newFakeUsers()
	tokens := newFakeTokens()
	clock := auth.SystemClock{}

	issuer := auth.NewIssuer("test-secret", 15*time.Minute)
	guard := auth.NewLockoutGuard(users, 10, 30*time.Minute, clock)
	qr := auth.NewQRTokenService(users, clock)
	creds := auth.NewCredentialStore(users, tokens, issuer, guard, qr, clock,
		7*24*time.Hour, bcrypt.MinCost,
		func(context.Context, queue.AuthEvent) {})

	e := echo.New()
	limiter := middleware.NewTokenBucket(config.RateLimitConfig{Enabled: false}, nil)
	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(creds), handler.NewQRHandler(qr, creds), issuer, limiter)

	return &testServer{e: e, users: users, qr: qr}
}

func (s *testServer) seed(t *testing.T, email, password, role string) uint64 {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	id, err := s.users.Create(context.Background(), &model.User{
		Email:          email,
		PasswordHash:   string(hash),
		Role:           role,
		ApprovalStatus: model.ApprovalApproved,
		IsActive:       true,
	})
	require.NoError(t, err)
	return id
}

func (s *testServer) request(method, path, bearer string, body any) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = strings.NewReader(string(b))
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

// =====================
// Scenarios
// =====================

func TestRegisterThenLogin(t *testing.T) {
	s := newTestServer(t)

	rec := s.request(http.MethodPost, "/auth/register", "", map[string]any{
		"email":    "New@Plant.com",
		"password": "Str0ng!Pass",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	user := body["user"].(map[string]any)
	assert.Equal(t, "new@plant.com", user["email"])
	assert.Equal(t, model.RoleUser, user["role"])
	assert.Equal(t, model.ApprovalApproved, user["approvalStatus"])
	assert.NotContains(t, rec.Body.String(), "passwordHash")

	rec = s.request(http.MethodPost, "/auth/login", "", map[string]any{
		"email":    "new@plant.com",
		"password": "Str0ng!Pass",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body = decodeBody(t, rec)
	assert.NotEmpty(t, body["accessToken"])
	assert.NotEmpty(t, body["refreshToken"])
}

func TestRegisterRejections(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "taken@plant.com", "Str0ng!Pass", model.RoleUser)

	cases := []struct {
		name    string
		body    map[string]any
		wantMsg string
	}{
		{"duplicate email", map[string]any{"email": "taken@plant.com", "password": "Str0ng!Pass"}, "user already exists"},
		{"bad email", map[string]any{"email": "not-an-email", "password": "Str0ng!Pass"}, "invalid email address"},
		{"weak password", map[string]any{"email": "new@plant.com", "password": "password1"}, "uppercase"},
		{"missing fields", map[string]any{"email": "new@plant.com"}, "required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.request(http.MethodPost, "/auth/register", "", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, decodeBody(t, rec)["error"], tc.wantMsg)
		})
	}
}

func TestLockoutFlow(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "admin@plant.com", "Str0ng!Pass", model.RoleAdmin)

	for i := 0; i < 10; i++ {
		rec := s.request(http.MethodPost, "/auth/login", "", map[string]any{
			"email":    "admin@plant.com",
			"password": "definitely-wrong",
		})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		msg := decodeBody(t, rec)["error"].(string)
		switch i {
		case 6, 7, 8: // attempts 7..9 leave 3..1 remaining
			assert.Contains(t, msg, fmt.Sprintf("%d attempt(s) remaining", 10-(i+1)))
		default:
			assert.Equal(t, "invalid email or password", msg)
		}
	}

	// Correct password no longer helps once locked.
	rec := s.request(http.MethodPost, "/auth/login", "", map[string]any{
		"email":    "admin@plant.com",
		"password": "Str0ng!Pass",
	})
	assert.Equal(t, http.StatusLocked, rec.Code)
}

func TestRefreshAndLogoutFlow(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "tech@plant.com", "Str0ng!Pass", model.RoleUser)

	rec := s.request(http.MethodPost, "/auth/login", "", map[string]any{
		"email":    "tech@plant.com",
		"password": "Str0ng!Pass",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	access := body["accessToken"].(string)
	refresh := body["refreshToken"].(string)

	// Refresh issues a new access token without rotating the refresh token.
	rec = s.request(http.MethodPost, "/auth/refresh", "", map[string]any{"refreshToken": refresh})
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	assert.NotEmpty(t, body["accessToken"])
	assert.NotContains(t, body, "refreshToken")

	// Logout, then the refresh token is dead.
	rec = s.request(http.MethodPost, "/auth/logout", access, map[string]any{"refreshToken": refresh})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.request(http.MethodPost, "/auth/logout", access, map[string]any{"refreshToken": refresh})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.request(http.MethodPost, "/auth/refresh", "", map[string]any{"refreshToken": refresh})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid or expired token", decodeBody(t, rec)["error"])
}

func TestMeEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "tech@plant.com", "Str0ng!Pass", model.RoleUser)

	rec := s.request(http.MethodPost, "/auth/login", "", map[string]any{
		"email":    "tech@plant.com",
		"password": "Str0ng!Pass",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	access := decodeBody(t, rec)["accessToken"].(string)

	rec = s.request(http.MethodGet, "/auth/me", access, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	user := decodeBody(t, rec)["user"].(map[string]any)
	assert.Equal(t, "tech@plant.com", user["email"])

	rec = s.request(http.MethodGet, "/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.request(http.MethodGet, "/auth/me", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid or expired token", decodeBody(t, rec)["error"])
}

func TestAccessTokenViaQueryParam(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "kiosk@plant.com", "Str0ng!Pass", model.RoleUser)

	rec := s.request(http.MethodPost, "/auth/login", "", map[string]any{
		"email":    "kiosk@plant.com",
		"password": "Str0ng!Pass",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	access := decodeBody(t, rec)["accessToken"].(string)

	// Field devices that cannot set headers pass the token as ?token=.
	rec = s.request(http.MethodGet, "/auth/me?token="+access, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestQRCodeEndpointRoles(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "admin@plant.com", "Str0ng!Pass", model.RoleAdmin)
	techID := s.seed(t, "tech@plant.com", "Str0ng!Pass", model.RoleUser)

	login := func(email string) string {
		rec := s.request(http.MethodPost, "/auth/login", "", map[string]any{
			"email": email, "password": "Str0ng!Pass",
		})
		require.Equal(t, http.StatusOK, rec.Code)
		return decodeBody(t, rec)["accessToken"].(string)
	}
	adminTok := login("admin@plant.com")
	techTok := login("tech@plant.com")

	path := fmt.Sprintf("/qr/users/%d/qr-code", techID)

	rec := s.request(http.MethodGet, path, adminTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get(echo.HeaderContentType))
	assert.NotEmpty(t, rec.Body.Bytes())

	rec = s.request(http.MethodGet, path, techTok, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.request(http.MethodGet, "/qr/users/999/qr-code", adminTok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.request(http.MethodGet, "/qr/users/abc/qr-code", adminTok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQRLoginEndpoint(t *testing.T) {
	s := newTestServer(t)
	id := s.seed(t, "device@plant.com", "Str0ng!Pass", model.RoleUser)

	token, err := s.qr.Generate(context.Background(), id)
	require.NoError(t, err)

	rec := s.request(http.MethodPost, "/qr-login", "", map[string]any{"qrToken": token})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["accessToken"])
	assert.NotEmpty(t, body["refreshToken"])
	assert.Equal(t, "device@plant.com", body["user"].(map[string]any)["email"])

	rec = s.request(http.MethodPost, "/qr-login", "", map[string]any{"qrToken": "bogus"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid or expired token", decodeBody(t, rec)["error"])

	s.users.byID[id].IsActive = false
	rec = s.request(http.MethodPost, "/qr-login", "", map[string]any{"qrToken": token})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "account not active", decodeBody(t, rec)["error"])
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rec := s.request(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
