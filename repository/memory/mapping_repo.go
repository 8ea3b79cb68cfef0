package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/opencdp/profile-engine/domain"
	"github.com/opencdp/profile-engine/repository"
)

type MappingRepository struct {
	mu       sync.RWMutex
	mappings map[string]domain.Mapping
}

func NewMappingRepository() *MappingRepository {
	return &MappingRepository{mappings: make(map[string]domain.Mapping)}
}

var _ repository.MappingRepository = (*MappingRepository)(nil)

func (r *MappingRepository) FindProfileID(_ context.Context, tenantID, appID, userID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.mappings[domain.AliasKey(tenantID, appID, userID)]
	if !ok {
		return "", domain.ErrMappingNotFound
	}
	return m.ProfileID, nil
}

func (r *MappingRepository) Exists(_ context.Context, tenantID, appID, userID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.mappings[domain.AliasKey(tenantID, appID, userID)]
	return ok, nil
}

func (r *MappingRepository) Save(_ context.Context, mapping *domain.Mapping) error {
	if mapping == nil {
		return domain.ErrInvalidPayload
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	stored := *mapping
	stored.UpdatedAt = now
	if existing, ok := r.mappings[mapping.Key()]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else {
		stored.CreatedAt = now
	}
	r.mappings[mapping.Key()] = stored

	mapping.CreatedAt = stored.CreatedAt
	mapping.UpdatedAt = stored.UpdatedAt
	return nil
}

func (r *MappingRepository) Delete(_ context.Context, tenantID, appID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.mappings, domain.AliasKey(tenantID, appID, userID))
	return nil
}

func (r *MappingRepository) FindByProfileID(_ context.Context, profileID string) ([]domain.Mapping, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.Mapping
	for _, m := range r.mappings {
		if m.ProfileID == profileID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

func (r *MappingRepository) CountByProfileID(ctx context.Context, profileID string) (int, error) {
	mappings, err := r.FindByProfileID(ctx, profileID)
	if err != nil {
		return 0, err
	}
	return len(mappings), nil
}
