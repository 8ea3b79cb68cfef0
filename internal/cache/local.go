package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/opencdp/profile-engine/domain"
)

// LocalTier is the in-process cache. Entries carry a short TTL and the
// tier is sized well below the distributed one. Sets block on admission
// so a caller immediately reads back its own write.
type LocalTier struct {
	cache *ristretto.Cache[string, *domain.Profile]
	ttl   time.Duration
}

func NewLocalTier(maxEntries int64, ttl time.Duration) (*LocalTier, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, *domain.Profile]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &LocalTier{cache: c, ttl: ttl}, nil
}

func (t *LocalTier) Get(_ context.Context, key string) (*domain.Profile, error) {
	profile, ok := t.cache.Get(key)
	if !ok || profile == nil {
		return nil, nil
	}
	return cloneProfile(profile), nil
}

func (t *LocalTier) Set(_ context.Context, key string, profile *domain.Profile) error {
	t.cache.SetWithTTL(key, cloneProfile(profile), 1, t.ttl)
	t.cache.Wait()
	return nil
}

func (t *LocalTier) Delete(_ context.Context, key string) error {
	t.cache.Del(key)
	return nil
}

func (t *LocalTier) Clear(_ context.Context) error {
	t.cache.Clear()
	return nil
}

// Close releases the ristretto internals.
func (t *LocalTier) Close() {
	t.cache.Close()
}

func cloneProfile(p *domain.Profile) *domain.Profile {
	if p == nil {
		return nil
	}
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
