package user

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/portfolio-api/internal/domain"
)

type mockRepo struct{ mock.Mock }

func (m *mockRepo) Get(ctx context.Context, userID string, withSecrets bool) (*domain.User, error) {
	args := m.Called(ctx, userID, withSecrets)
	if u, ok := args.Get(0).(*domain.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRepo) ScanPage(ctx context.Context, limit int32, cursor string) ([]domain.User, string, error) {
	args := m.Called(ctx, limit, cursor)
	users, _ := args.Get(0).([]domain.User)
	return users, args.String(1), args.Error(2)
}

func TestList_ClampsPageSize(t *testing.T) {
	repo := new(mockRepo)
	svc := NewService(repo)
	ctx := context.Background()

	page := []domain.User{{UserID: "u1"}, {UserID: "u2"}}
	repo.On("ScanPage", ctx, int32(25), "").Return(page, "next-cursor", nil).Times(3)
	repo.On("ScanPage", ctx, int32(50), "c1").Return(page, "", nil).Once()

	for _, limit := range []int32{0, -1, 101} {
		users, next, err := svc.List(ctx, limit, "")
		require.NoError(t, err)
		assert.Len(t, users, 2)
		assert.Equal(t, "next-cursor", next)
	}

	_, next, err := svc.List(ctx, 50, "c1")
	require.NoError(t, err)
	assert.Empty(t, next)
	repo.AssertExpectations(t)
}

func TestGet(t *testing.T) {
	repo := new(mockRepo)
	svc := NewService(repo)
	ctx := context.Background()

	repo.On("Get", ctx, "u1", false).Return(&domain.User{UserID: "u1"}, nil)
	repo.On("Get", ctx, "ghost", false).Return(nil, domain.ErrNotFound)

	u, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.UserID)

	_, err = svc.Get(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
