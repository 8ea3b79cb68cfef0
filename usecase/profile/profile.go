// Package profile implements the synchronous read-side operations: cached
// profile lookup by identity triple and alias deletion with soft-delete of
// orphaned profiles.
package profile

import (
	"context"

	"go.uber.org/zap"

	"github.com/opencdp/profile-engine/domain"
	"github.com/opencdp/profile-engine/repository"
)

// Cache is the two-tier cache surface the read side drives.
type Cache interface {
	Get(ctx context.Context, tenantID, appID, userID string) *domain.Profile
	Put(ctx context.Context, tenantID, appID, userID string, profile *domain.Profile)
	Evict(ctx context.Context, tenantID, appID, userID string)
}

// DeleteResult describes what one alias deletion touched.
type DeleteResult struct {
	ProfileID         string `json:"profile_id"`
	ProfileDeleted    bool   `json:"profile_deleted"`
	MappingDeleted    bool   `json:"mapping_deleted"`
	RemainingMappings int    `json:"remaining_mappings"`
}

type UseCase struct {
	profiles repository.ProfileRepository
	mappings repository.MappingRepository
	cache    Cache
	logger   *zap.Logger
}

func New(profiles repository.ProfileRepository, mappings repository.MappingRepository, cache Cache, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		profiles: profiles,
		mappings: mappings,
		cache:    cache,
		logger:   logger,
	}
}

// Get resolves an identity triple to its profile: cache first, then the
// mapping index and the store, populating the cache on the way out.
func (uc *UseCase) Get(ctx context.Context, tenantID, appID, userID string) (*domain.Profile, error) {
	if cached := uc.cache.Get(ctx, tenantID, appID, userID); cached != nil {
		return cached, nil
	}

	profileID, err := uc.mappings.FindProfileID(ctx, tenantID, appID, userID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, err
	}

	profile, err := uc.profiles.GetByID(ctx, profileID)
	if err != nil {
		return nil, err
	}

	uc.cache.Put(ctx, tenantID, appID, userID, profile)
	return profile, nil
}

// Delete removes one alias. When it is the profile's last alias the
// profile itself is soft-deleted; the profile document is never dropped.
func (uc *UseCase) Delete(ctx context.Context, tenantID, appID, userID string) (*DeleteResult, error) {
	profileID, err := uc.mappings.FindProfileID(ctx, tenantID, appID, userID)
	if err != nil {
		return nil, err
	}

	result := &DeleteResult{ProfileID: profileID}

	// An unknown alias count must not retire the profile: other aliases
	// may still point at it, so the failure only skips the soft-delete.
	count, countErr := uc.mappings.CountByProfileID(ctx, profileID)
	if countErr != nil {
		uc.logger.Warn("mapping count failed, skipping profile soft-delete",
			zap.String("profile_id", profileID),
			zap.Error(countErr),
		)
	}

	if countErr == nil && count <= 1 {
		if err := uc.softDeleteProfile(ctx, profileID); err != nil {
			return nil, err
		}
		result.ProfileDeleted = true
	}

	if err := uc.mappings.Delete(ctx, tenantID, appID, userID); err != nil {
		return nil, err
	}
	result.MappingDeleted = true
	if countErr == nil && count > 0 {
		result.RemainingMappings = count - 1
	}

	uc.cache.Evict(ctx, tenantID, appID, userID)

	uc.logger.Info("identity deleted",
		zap.String("tenant_id", tenantID),
		zap.String("profile_id", profileID),
		zap.Bool("profile_deleted", result.ProfileDeleted),
		zap.Int("remaining_mappings", result.RemainingMappings),
	)
	return result, nil
}

func (uc *UseCase) softDeleteProfile(ctx context.Context, profileID string) error {
	profile, err := uc.profiles.GetByID(ctx, profileID)
	if err != nil {
		if domain.IsNotFound(err) {
			// Mapping pointed at a vanished profile; nothing to retire.
			return nil
		}
		return err
	}

	profile.Status = domain.ProfileStatusDeleted
	profile.Version++
	return uc.profiles.Save(ctx, profile)
}
