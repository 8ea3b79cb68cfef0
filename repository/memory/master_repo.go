package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/opencdp/profile-engine/domain"
	"github.com/opencdp/profile-engine/repository"
)

type MasterProfileRepository struct {
	mu      sync.RWMutex
	masters map[string]*domain.MasterProfile
}

func NewMasterProfileRepository() *MasterProfileRepository {
	return &MasterProfileRepository{masters: make(map[string]*domain.MasterProfile)}
}

var _ repository.MasterProfileRepository = (*MasterProfileRepository)(nil)

func (r *MasterProfileRepository) GetByID(_ context.Context, tenantID, id string) (*domain.MasterProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	master, ok := r.masters[tenantID+"|"+id]
	if !ok {
		return nil, domain.ErrMasterNotFound
	}
	return cloneMaster(master), nil
}

func (r *MasterProfileRepository) FindByMergedID(_ context.Context, tenantID, aliasKey string) ([]*domain.MasterProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var masters []*domain.MasterProfile
	for _, master := range r.masters {
		if master.TenantID != tenantID {
			continue
		}
		for _, id := range master.MergedIDs {
			if id == aliasKey {
				masters = append(masters, cloneMaster(master))
				break
			}
		}
	}
	sort.Slice(masters, func(i, j int) bool {
		if !masters[i].CreatedAt.Equal(masters[j].CreatedAt) {
			return masters[i].CreatedAt.Before(masters[j].CreatedAt)
		}
		return masters[i].ID < masters[j].ID
	})
	return masters, nil
}

func (r *MasterProfileRepository) Save(_ context.Context, master *domain.MasterProfile) error {
	if master == nil {
		return domain.ErrInvalidPayload
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.masters[master.TenantID+"|"+master.ID] = cloneMaster(master)
	return nil
}

func cloneMaster(m *domain.MasterProfile) *domain.MasterProfile {
	b, err := json.Marshal(m)
	if err != nil {
		return m
	}
	var out domain.MasterProfile
	if err := json.Unmarshal(b, &out); err != nil {
		return m
	}
	return &out
}
