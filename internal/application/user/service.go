package user

import (
	"context"
	"fmt"

	"github.com/portfolio-api/internal/domain"
)

const defaultPageSize = 25

// Repository is the slice of the credential store the user service needs.
type Repository interface {
	Get(ctx context.Context, userID string, withSecrets bool) (*domain.User, error)
	ScanPage(ctx context.Context, limit int32, cursor string) ([]domain.User, string, error)
}

// Service exposes the read-side user surface (admin listing, lookup).
// Credential mutation flows belong to the auth service.
type Service interface {
	List(ctx context.Context, limit int32, cursor string) ([]domain.User, string, error)
	Get(ctx context.Context, userID string) (*domain.User, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) List(ctx context.Context, limit int32, cursor string) ([]domain.User, string, error) {
	if limit <= 0 || limit > 100 {
		limit = defaultPageSize
	}
	return s.repo.ScanPage(ctx, limit, cursor)
}

func (s *service) Get(ctx context.Context, userID string) (*domain.User, error) {
	u, err := s.repo.Get(ctx, userID, false)
	if err != nil {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	return u, nil
}
