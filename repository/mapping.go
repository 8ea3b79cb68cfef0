package repository

import (
	"context"

	"github.com/opencdp/profile-engine/domain"
)

// MappingRepository is the identity mapping index: the source of truth for
// "have we seen this identity before". Save upserts in place and must be
// immediately visible to subsequent reads.
type MappingRepository interface {
	FindProfileID(ctx context.Context, tenantID, appID, userID string) (string, error)
	Exists(ctx context.Context, tenantID, appID, userID string) (bool, error)
	Save(ctx context.Context, mapping *domain.Mapping) error
	Delete(ctx context.Context, tenantID, appID, userID string) error
	FindByProfileID(ctx context.Context, profileID string) ([]domain.Mapping, error)
	CountByProfileID(ctx context.Context, profileID string) (int, error)
}
