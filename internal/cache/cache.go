// Package cache implements the two-tier profile cache: a small local
// tier backed by ristretto and a shared Redis tier. Values are owned
// snapshots keyed by the composite identity key; cache failures degrade
// to misses and never propagate.
package cache

import (
	"context"

	"go.uber.org/zap"

	"github.com/opencdp/profile-engine/domain"
	"github.com/opencdp/profile-engine/internal/metrics"
)

// Tier is one cache backend. Get returns (nil, nil) on a miss.
type Tier interface {
	Get(ctx context.Context, key string) (*domain.Profile, error)
	Set(ctx context.Context, key string, profile *domain.Profile) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// Service coordinates the local and distributed tiers. Reads check local
// first and backfill it on a distributed hit; writes go through to both
// tiers synchronously, so a caller always observes its own writes.
type Service struct {
	local  Tier
	remote Tier
	logger *zap.Logger
}

func New(local, remote Tier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{local: local, remote: remote, logger: logger}
}

// Get returns the cached profile for the identity triple, or nil when
// neither tier holds it. Tier errors are logged and treated as misses.
func (s *Service) Get(ctx context.Context, tenantID, appID, userID string) *domain.Profile {
	key := domain.AliasKey(tenantID, appID, userID)

	profile, err := s.local.Get(ctx, key)
	if err != nil {
		s.logger.Warn("local cache read failed", zap.String("key", key), zap.Error(err))
	}
	if profile != nil {
		metrics.RecordCacheHit("local")
		return profile
	}
	metrics.RecordCacheMiss("local")

	profile, err = s.remote.Get(ctx, key)
	if err != nil {
		s.logger.Warn("distributed cache read failed", zap.String("key", key), zap.Error(err))
		return nil
	}
	if profile == nil {
		metrics.RecordCacheMiss("distributed")
		return nil
	}
	metrics.RecordCacheHit("distributed")

	if err := s.local.Set(ctx, key, profile); err != nil {
		s.logger.Warn("local cache backfill failed", zap.String("key", key), zap.Error(err))
	}
	return profile
}

// Put writes the profile through both tiers.
func (s *Service) Put(ctx context.Context, tenantID, appID, userID string, profile *domain.Profile) {
	if profile == nil {
		return
	}
	key := domain.AliasKey(tenantID, appID, userID)

	if err := s.local.Set(ctx, key, profile); err != nil {
		s.logger.Warn("local cache write failed", zap.String("key", key), zap.Error(err))
	}
	if err := s.remote.Set(ctx, key, profile); err != nil {
		s.logger.Warn("distributed cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Evict removes the identity triple from both tiers.
func (s *Service) Evict(ctx context.Context, tenantID, appID, userID string) {
	key := domain.AliasKey(tenantID, appID, userID)

	if err := s.local.Delete(ctx, key); err != nil {
		s.logger.Warn("local cache evict failed", zap.String("key", key), zap.Error(err))
	}
	if err := s.remote.Delete(ctx, key); err != nil {
		s.logger.Warn("distributed cache evict failed", zap.String("key", key), zap.Error(err))
	}
}

// Clear drops every entry from both tiers.
func (s *Service) Clear(ctx context.Context) {
	if err := s.local.Clear(ctx); err != nil {
		s.logger.Warn("local cache clear failed", zap.Error(err))
	}
	if err := s.remote.Clear(ctx); err != nil {
		s.logger.Warn("distributed cache clear failed", zap.Error(err))
	}
}
