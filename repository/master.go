package repository

import (
	"context"

	"github.com/opencdp/profile-engine/domain"
)

// MasterProfileRepository persists merge aggregates. FindByMergedID
// answers "which masters already absorbed this alias", the lookup the
// merge flow uses to reuse a master instead of minting a duplicate.
type MasterProfileRepository interface {
	GetByID(ctx context.Context, tenantID, id string) (*domain.MasterProfile, error)
	FindByMergedID(ctx context.Context, tenantID, aliasKey string) ([]*domain.MasterProfile, error)
	Save(ctx context.Context, master *domain.MasterProfile) error
}
