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

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/portfolio-api/internal/application/auth"
	"github.com/portfolio-api/internal/domain"
	jwtinfra "github.com/portfolio-api/internal/infrastructure/jwt"
	redisinfra "github.com/portfolio-api/internal/infrastructure/redis"
)

type mockUserRepo struct{ mock.Mock }

func (m *mockUserRepo) Put(ctx context.Context, u *domain.User) error {
	return m.Called(ctx, u).Error(0)
}

func (m *mockUserRepo) Get(ctx context.Context, userID string, withSecrets bool) (*domain.User, error) {
	args := m.Called(ctx, userID, withSecrets)
	if u, ok := args.Get(0).(*domain.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string, withSecrets bool) (*domain.User, error) {
	args := m.Called(ctx, email, withSecrets)
	if u, ok := args.Get(0).(*domain.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUserRepo) Update(ctx context.Context, userID string, updates map[string]interface{}) error {
	return m.Called(ctx, userID, updates).Error(0)
}

type gateHarness struct {
	deps        AuthDeps
	users       *mockUserRepo
	jwt         *jwtinfra.Provider
	cache       *redisinfra.Cache
	revocations *auth.RevocationList
	mr          *miniredis.Miniredis
}

func newGateHarness(t *testing.T) *gateHarness {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redisinfra.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { _ = cache.Close() })

	jwt, err := jwtinfra.NewProvider("middleware-test-secret")
	require.NoError(t, err)

	users := new(mockUserRepo)
	revocations := auth.NewRevocationList(cache, jwt, false, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return &gateHarness{
		deps: AuthDeps{
			JWT:         jwt,
			Revocations: revocations,
			Users:       users,
			Cache:       cache,
			Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		},
		users:       users,
		jwt:         jwt,
		cache:       cache,
		revocations: revocations,
		mr:          mr,
	}
}

// echoIdentity records what the gate attached to the request context.
type echoIdentity struct {
	called bool
	claims *jwtinfra.Claims
	user   *domain.User
	token  string
}

func (e *echoIdentity) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.called = true
		e.claims, _ = ClaimsFromContext(r.Context())
		e.user, _ = UserFromContext(r.Context())
		e.token, _ = TokenFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(h http.Handler, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func failBody(t *testing.T, rec *httptest.ResponseRecorder) (status, message string) {
	t.Helper()
	var body struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Status, body.Message
}

func TestAuth_MissingOrMalformedHeader(t *testing.T) {
	h := newGateHarness(t)
	next := &echoIdentity{}
	gate := Auth(h.deps)(next.handler())

	for _, header := range []string{"", "Bearer ", "Basic abc", "sometoken"} {
		rec := doRequest(gate, header)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
	}
	assert.False(t, next.called)
}

func TestAuth_ValidToken(t *testing.T) {
	h := newGateHarness(t)
	u := &domain.User{UserID: "u1", Email: "a@b.com", Role: domain.RoleUser, Active: true}
	h.users.On("Get", mock.Anything, "u1", false).Return(u, nil)

	token, err := h.jwt.Sign("u1", "a@b.com", domain.RoleUser, time.Hour)
	require.NoError(t, err)

	next := &echoIdentity{}
	rec := doRequest(Auth(h.deps)(next.handler()), "Bearer "+token)

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, next.called)
	assert.Equal(t, "u1", next.claims.UserID)
	assert.Equal(t, "u1", next.user.UserID)
	assert.Equal(t, token, next.token)

	// resolution populated the read-through cache
	assert.True(t, h.mr.Exists(redisinfra.UserKey("u1")))
}

func TestAuth_CachedUserSkipsStore(t *testing.T) {
	h := newGateHarness(t)
	ctx := context.Background()

	cached, err := json.Marshal(&domain.User{UserID: "u1", Email: "a@b.com", Role: domain.RoleUser, Active: true})
	require.NoError(t, err)
	require.NoError(t, h.cache.Set(ctx, redisinfra.UserKey("u1"), string(cached), time.Minute))

	token, err := h.jwt.Sign("u1", "a@b.com", domain.RoleUser, time.Hour)
	require.NoError(t, err)

	next := &echoIdentity{}
	rec := doRequest(Auth(h.deps)(next.handler()), "Bearer "+token)

	assert.Equal(t, http.StatusOK, rec.Code)
	h.users.AssertNotCalled(t, "Get", mock.Anything, mock.Anything, mock.Anything)
}

func TestAuth_RevokedToken(t *testing.T) {
	h := newGateHarness(t)

	token, err := h.jwt.Sign("u1", "a@b.com", domain.RoleUser, time.Hour)
	require.NoError(t, err)
	require.NoError(t, h.revocations.Revoke(context.Background(), token))

	next := &echoIdentity{}
	rec := doRequest(Auth(h.deps)(next.handler()), "Bearer "+token)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, next.called)
	h.users.AssertNotCalled(t, "Get", mock.Anything, mock.Anything, mock.Anything)
}

func TestAuth_ExpiredToken(t *testing.T) {
	h := newGateHarness(t)

	token, err := h.jwt.Sign("u1", "a@b.com", domain.RoleUser, -time.Minute)
	require.NoError(t, err)

	next := &echoIdentity{}
	rec := doRequest(Auth(h.deps)(next.handler()), "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, next.called)
}

func TestAuth_InactiveUser(t *testing.T) {
	h := newGateHarness(t)
	h.users.On("Get", mock.Anything, "u1", false).Return(&domain.User{UserID: "u1", Active: false}, nil)

	token, err := h.jwt.Sign("u1", "a@b.com", domain.RoleUser, time.Hour)
	require.NoError(t, err)

	next := &echoIdentity{}
	rec := doRequest(Auth(h.deps)(next.handler()), "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, next.called)
}

func TestAuth_FailuresAreIndistinguishable(t *testing.T) {
	h := newGateHarness(t)
	gate := Auth(h.deps)((&echoIdentity{}).handler())

	expired, err := h.jwt.Sign("u1", "a@b.com", domain.RoleUser, -time.Minute)
	require.NoError(t, err)
	revoked, err := h.jwt.Sign("u1", "a@b.com", domain.RoleUser, time.Hour)
	require.NoError(t, err)
	require.NoError(t, h.revocations.Revoke(context.Background(), revoked))

	recMissing := doRequest(gate, "")
	recExpired := doRequest(gate, "Bearer "+expired)
	recRevoked := doRequest(gate, "Bearer "+revoked)

	for _, rec := range []*httptest.ResponseRecorder{recMissing, recExpired, recRevoked} {
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		status, message := failBody(t, rec)
		assert.Equal(t, "fail", status)
		assert.Equal(t, domain.ErrInvalidToken.Error(), message)
	}
}

func TestOptionalAuth(t *testing.T) {
	h := newGateHarness(t)
	u := &domain.User{UserID: "u1", Email: "a@b.com", Role: domain.RoleUser, Active: true}
	h.users.On("Get", mock.Anything, "u1", false).Return(u, nil)

	token, err := h.jwt.Sign("u1", "a@b.com", domain.RoleUser, time.Hour)
	require.NoError(t, err)

	// anonymous and garbage tokens both proceed, without identity
	for _, header := range []string{"", "Bearer garbage"} {
		next := &echoIdentity{}
		rec := doRequest(OptionalAuth(h.deps)(next.handler()), header)
		assert.Equal(t, http.StatusOK, rec.Code, "header %q", header)
		assert.True(t, next.called)
		assert.Nil(t, next.user)
	}

	// a valid token attaches identity
	next := &echoIdentity{}
	rec := doRequest(OptionalAuth(h.deps)(next.handler()), "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, next.user)
	assert.Equal(t, "u1", next.user.UserID)
}

func TestRequireRole(t *testing.T) {
	h := newGateHarness(t)
	h.users.On("Get", mock.Anything, mock.Anything, false).
		Return(&domain.User{UserID: "u1", Active: true}, nil)

	adminOnly := func(role string) (*httptest.ResponseRecorder, *echoIdentity) {
		token, err := h.jwt.Sign("u1", "a@b.com", role, time.Hour)
		require.NoError(t, err)
		next := &echoIdentity{}
		chain := Auth(h.deps)(RequireRole(domain.RoleAdmin)(next.handler()))
		return doRequest(chain, "Bearer "+token), next
	}

	rec, next := adminOnly(domain.RoleUser)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, next.called)

	rec, next = adminOnly(domain.RoleAdmin)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, next.called)
}

func TestRequireRole_WithoutGate(t *testing.T) {
	next := &echoIdentity{}
	rec := doRequest(RequireRole(domain.RoleAdmin)(next.handler()), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, next.called)
}

func TestRequireTwoFactor(t *testing.T) {
	h := newGateHarness(t)
	ctx := context.Background()
	u := &domain.User{UserID: "u1", Email: "a@b.com", Role: domain.RoleUser, Active: true, TwoFactorEnabled: true}
	h.users.On("Get", mock.Anything, "u1", false).Return(u, nil)

	token, err := h.jwt.Sign("u1", "a@b.com", domain.RoleUser, time.Hour)
	require.NoError(t, err)

	chainFor := func(next http.Handler) http.Handler {
		return Auth(h.deps)(RequireTwoFactor(h.cache)(next))
	}

	// enabled but unverified: blocked
	next := &echoIdentity{}
	rec := doRequest(chainFor(next.handler()), "Bearer "+token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, next.called)
	_, message := failBody(t, rec)
	assert.Equal(t, domain.ErrTwoFactorRequired.Error(), message)

	// verified flag present: passes
	require.NoError(t, h.cache.Set(ctx, redisinfra.TwoFactorVerifiedKey("u1"), "1", time.Hour))
	next = &echoIdentity{}
	rec = doRequest(chainFor(next.handler()), "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, next.called)
}

func TestRequireTwoFactor_DisabledUserPasses(t *testing.T) {
	h := newGateHarness(t)
	u := &domain.User{UserID: "u1", Email: "a@b.com", Role: domain.RoleUser, Active: true}
	h.users.On("Get", mock.Anything, "u1", false).Return(u, nil)

	token, err := h.jwt.Sign("u1", "a@b.com", domain.RoleUser, time.Hour)
	require.NoError(t, err)

	next := &echoIdentity{}
	rec := doRequest(Auth(h.deps)(RequireTwoFactor(h.cache)(next.handler())), "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, next.called)
}

func TestRefreshToken(t *testing.T) {
	h := newGateHarness(t)
	u := &domain.User{UserID: "u1", Email: "a@b.com", Role: domain.RoleUser, Active: true}
	h.users.On("Get", mock.Anything, "u1", false).Return(u, nil)

	refresh := RefreshToken(h.jwt, 24*time.Hour, 7*24*time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	chain := func(next http.Handler) http.Handler { return Auth(h.deps)(refresh(next)) }

	// plenty of lifetime left: no refresh header
	fresh, err := h.jwt.Sign("u1", "a@b.com", domain.RoleUser, 7*24*time.Hour)
	require.NoError(t, err)
	rec := doRequest(chain((&echoIdentity{}).handler()), "Bearer "+fresh)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(NewTokenHeader))

	// under the threshold: replacement token surfaced, old claims preserved
	aging, err := h.jwt.Sign("u1", "a@b.com", domain.RoleUser, time.Hour)
	require.NoError(t, err)
	rec = doRequest(chain((&echoIdentity{}).handler()), "Bearer "+aging)
	require.Equal(t, http.StatusOK, rec.Code)

	replacement := rec.Header().Get(NewTokenHeader)
	require.NotEmpty(t, replacement)
	assert.NotEqual(t, aging, replacement)

	claims, err := h.jwt.Verify(replacement)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	handler := rl.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// a different IP has its own bucket
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
