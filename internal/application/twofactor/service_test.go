package twofactor

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/portfolio-api/internal/domain"
	redisinfra "github.com/portfolio-api/internal/infrastructure/redis"
	"github.com/portfolio-api/internal/pkg/password"
	"github.com/portfolio-api/internal/pkg/totp"
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

type harness struct {
	svc   Service
	users *mockUserRepo
	cache *redisinfra.Cache
	mr    *miniredis.Miniredis
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redisinfra.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { _ = cache.Close() })

	h := &harness{users: new(mockUserRepo), cache: cache, mr: mr}
	h.svc = NewService(ServiceDeps{
		UserRepo: h.users,
		Cache:    cache,
		Issuer:   "portfolio-api",
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return h
}

func TestBeginSetup_StagesSecret(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.users.On("Get", ctx, "u1", false).Return(&domain.User{UserID: "u1", Email: "a@b.com"}, nil)

	setup, err := h.svc.BeginSetup(ctx, "u1")
	require.NoError(t, err)
	assert.NotEmpty(t, setup.Secret)
	assert.Contains(t, setup.URI, "otpauth://totp/")
	assert.Contains(t, setup.URI, "issuer=portfolio-api")

	staged, err := h.mr.Get(redisinfra.TwoFactorSetupKey("u1"))
	require.NoError(t, err)
	assert.Equal(t, setup.Secret, staged)
	assert.InDelta(t, float64(10*time.Minute), float64(h.mr.TTL(redisinfra.TwoFactorSetupKey("u1"))), float64(time.Second))

	// credential untouched during setup
	h.users.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestBeginSetup_ReinvokeReplacesSecret(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.users.On("Get", ctx, "u1", false).Return(&domain.User{UserID: "u1", Email: "a@b.com"}, nil)

	first, err := h.svc.BeginSetup(ctx, "u1")
	require.NoError(t, err)
	second, err := h.svc.BeginSetup(ctx, "u1")
	require.NoError(t, err)

	assert.NotEqual(t, first.Secret, second.Secret)
	staged, err := h.mr.Get(redisinfra.TwoFactorSetupKey("u1"))
	require.NoError(t, err)
	assert.Equal(t, second.Secret, staged)
}

func TestVerifyAndEnable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.users.On("Get", ctx, "u1", false).Return(&domain.User{UserID: "u1", Email: "a@b.com"}, nil)
	setup, err := h.svc.BeginSetup(ctx, "u1")
	require.NoError(t, err)

	h.users.On("Update", ctx, "u1", map[string]interface{}{
		"two_factor_secret":  setup.Secret,
		"two_factor_enabled": true,
	}).Return(nil)

	code, err := totp.Code(setup.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, h.svc.VerifyAndEnable(ctx, "u1", code))

	assert.False(t, h.mr.Exists(redisinfra.TwoFactorSetupKey("u1")), "staged secret must be consumed")
	h.users.AssertExpectations(t)

	// the staged secret was consumed, so confirming again is a stale setup
	err = h.svc.VerifyAndEnable(ctx, "u1", code)
	assert.ErrorIs(t, err, domain.ErrSetupExpired)
}

func TestVerifyAndEnable_WrongCodeKeepsSecretStaged(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.users.On("Get", ctx, "u1", false).Return(&domain.User{UserID: "u1", Email: "a@b.com"}, nil)
	setup, err := h.svc.BeginSetup(ctx, "u1")
	require.NoError(t, err)

	err = h.svc.VerifyAndEnable(ctx, "u1", "000000")
	assert.ErrorIs(t, err, domain.ErrInvalidCode)
	assert.True(t, h.mr.Exists(redisinfra.TwoFactorSetupKey("u1")), "wrong code must not consume the secret")
	h.users.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)

	// retry with the right code still succeeds
	h.users.On("Update", ctx, "u1", mock.Anything).Return(nil)
	code, err := totp.Code(setup.Secret, time.Now())
	require.NoError(t, err)
	assert.NoError(t, h.svc.VerifyAndEnable(ctx, "u1", code))
}

func TestVerifyAndEnable_ExpiredSetup(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.users.On("Get", ctx, "u1", false).Return(&domain.User{UserID: "u1", Email: "a@b.com"}, nil)
	_, err := h.svc.BeginSetup(ctx, "u1")
	require.NoError(t, err)

	h.mr.FastForward(11 * time.Minute)

	err = h.svc.VerifyAndEnable(ctx, "u1", "123456")
	assert.ErrorIs(t, err, domain.ErrSetupExpired)
}

func enabledUser(t *testing.T, secret string) *domain.User {
	t.Helper()
	hash, err := password.Hash("pw")
	require.NoError(t, err)
	return &domain.User{
		UserID:           "u1",
		Email:            "a@b.com",
		PasswordHash:     hash,
		Active:           true,
		TwoFactorEnabled: true,
		TwoFactorSecret:  secret,
	}
}

func TestVerifyLogin_SetsVerifiedFlag(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	secret, err := totp.GenerateSecret()
	require.NoError(t, err)
	h.users.On("Get", ctx, "u1", true).Return(enabledUser(t, secret), nil)

	code, err := totp.Code(secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, h.svc.VerifyLogin(ctx, "u1", code))

	flag, err := h.mr.Get(redisinfra.TwoFactorVerifiedKey("u1"))
	require.NoError(t, err)
	assert.Equal(t, "1", flag)
	assert.InDelta(t, float64(time.Hour), float64(h.mr.TTL(redisinfra.TwoFactorVerifiedKey("u1"))), float64(time.Second))
}

func TestVerifyLogin_WrongCode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	secret, err := totp.GenerateSecret()
	require.NoError(t, err)
	h.users.On("Get", ctx, "u1", true).Return(enabledUser(t, secret), nil)

	err = h.svc.VerifyLogin(ctx, "u1", "000000")
	assert.ErrorIs(t, err, domain.ErrInvalidCode)
	assert.False(t, h.mr.Exists(redisinfra.TwoFactorVerifiedKey("u1")))
}

func TestVerifyLogin_NotEnabled(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	u := enabledUser(t, "")
	u.TwoFactorEnabled = false
	h.users.On("Get", ctx, "u1", true).Return(u, nil)

	err := h.svc.VerifyLogin(ctx, "u1", "123456")
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestDisable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	secret, err := totp.GenerateSecret()
	require.NoError(t, err)
	h.users.On("Get", ctx, "u1", true).Return(enabledUser(t, secret), nil)
	h.users.On("Update", ctx, "u1", map[string]interface{}{
		"two_factor_secret":  "",
		"two_factor_enabled": false,
	}).Return(nil)

	require.NoError(t, h.cache.Set(ctx, redisinfra.TwoFactorVerifiedKey("u1"), "1", time.Hour))

	require.NoError(t, h.svc.Disable(ctx, "u1", "pw"))
	assert.False(t, h.mr.Exists(redisinfra.TwoFactorVerifiedKey("u1")), "verified flag must be cleared")
	h.users.AssertExpectations(t)
}

func TestDisable_WrongPassword(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	secret, err := totp.GenerateSecret()
	require.NoError(t, err)
	h.users.On("Get", ctx, "u1", true).Return(enabledUser(t, secret), nil)

	err = h.svc.Disable(ctx, "u1", "not-pw")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	h.users.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}
