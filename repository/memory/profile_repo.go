// Package memory provides map-backed repository implementations used by
// tests and local development. Behavior mirrors the Postgres
// implementations, including not-found errors and ACTIVE-only filters.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/opencdp/profile-engine/domain"
	"github.com/opencdp/profile-engine/repository"
)

type ProfileRepository struct {
	mu       sync.RWMutex
	profiles map[string]*domain.Profile
}

func NewProfileRepository() *ProfileRepository {
	return &ProfileRepository{profiles: make(map[string]*domain.Profile)}
}

var _ repository.ProfileRepository = (*ProfileRepository)(nil)

func (r *ProfileRepository) GetByID(_ context.Context, id string) (*domain.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profile, ok := r.profiles[id]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	return cloneProfile(profile), nil
}

func (r *ProfileRepository) Save(_ context.Context, profile *domain.Profile) error {
	if profile == nil {
		return domain.ErrInvalidPayload
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[profile.ID] = cloneProfile(profile)
	return nil
}

func (r *ProfileRepository) FindActiveByIDCard(_ context.Context, tenantID, idcard string) ([]*domain.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []*domain.Profile
	for _, p := range r.sortedByID() {
		if p.TenantID != tenantID || !p.IsActive() || p.Traits == nil {
			continue
		}
		if p.Traits.IDCard != "" && p.Traits.IDCard == idcard {
			matches = append(matches, cloneProfile(p))
		}
	}
	return matches, nil
}

func (r *ProfileRepository) FindActiveByEmail(_ context.Context, tenantID, email string) ([]*domain.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []*domain.Profile
	for _, p := range r.sortedByID() {
		if p.TenantID != tenantID || !p.IsActive() || p.Traits == nil {
			continue
		}
		if p.Traits.Email != "" && strings.ToLower(strings.TrimSpace(p.Traits.Email)) == email {
			matches = append(matches, cloneProfile(p))
		}
	}
	return matches, nil
}

func (r *ProfileRepository) ListActive(_ context.Context, tenantID string, page, pageSize int) ([]*domain.Profile, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var active []*domain.Profile
	for _, p := range r.sortedByID() {
		if p.TenantID == tenantID && p.IsActive() {
			active = append(active, p)
		}
	}

	start := page * pageSize
	if start >= len(active) {
		return nil, false, nil
	}
	end := start + pageSize
	hasMore := end < len(active)
	if end > len(active) {
		end = len(active)
	}

	out := make([]*domain.Profile, 0, end-start)
	for _, p := range active[start:end] {
		out = append(out, cloneProfile(p))
	}
	return out, hasMore, nil
}

func (r *ProfileRepository) sortedByID() []*domain.Profile {
	all := make([]*domain.Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all
}

// cloneProfile returns an owned deep copy so stored state never aliases
// caller-held values.
func cloneProfile(p *domain.Profile) *domain.Profile {
	b, err := json.Marshal(p)
	if err != nil {
		return p
	}
	var out domain.Profile
	if err := json.Unmarshal(b, &out); err != nil {
		return p
	}
	return &out
}
