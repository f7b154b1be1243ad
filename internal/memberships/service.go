package memberships

import (
	"context"

	"github.com/google/uuid"
)

// Service exposes read-only tier lookup to other modules. It satisfies
// the waitlist package's TierLookup interface.
type Service interface {
	GetActiveTier(ctx context.Context, userID uuid.UUID) (int, error)
}

type service struct {
	repo Repository
}

// NewService creates a new memberships service
func NewService(repo Repository) Service {
	return &service{repo: repo}
}

// GetActiveTier returns the user's active membership tier level, 0 when
// the user has no active membership
func (s *service) GetActiveTier(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.GetActiveTierLevel(ctx, userID)
}
