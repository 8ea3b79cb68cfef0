package repository

import (
	"context"

	"github.com/opencdp/profile-engine/domain"
)

// ProfileRepository persists canonical profiles. Save is an upsert; lookup
// methods restricted to ACTIVE profiles say so in their names.
type ProfileRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Profile, error)
	Save(ctx context.Context, profile *domain.Profile) error

	// FindActiveByIDCard returns ACTIVE profiles in the tenant with an
	// exact national-ID trait match.
	FindActiveByIDCard(ctx context.Context, tenantID, idcard string) ([]*domain.Profile, error)

	// FindActiveByEmail returns ACTIVE profiles in the tenant whose email
	// trait equals the supplied value (callers normalize beforehand).
	FindActiveByEmail(ctx context.Context, tenantID, email string) ([]*domain.Profile, error)

	// ListActive pages through ACTIVE profiles for a tenant. The second
	// return reports whether more pages remain.
	ListActive(ctx context.Context, tenantID string, page, pageSize int) ([]*domain.Profile, bool, error)
}
