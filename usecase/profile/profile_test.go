package profile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencdp/profile-engine/domain"
	"github.com/opencdp/profile-engine/repository/memory"
)

type fakeCache struct {
	entries map[string]*domain.Profile
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]*domain.Profile)}
}

func (c *fakeCache) Get(_ context.Context, tenantID, appID, userID string) *domain.Profile {
	return c.entries[domain.AliasKey(tenantID, appID, userID)]
}

func (c *fakeCache) Put(_ context.Context, tenantID, appID, userID string, p *domain.Profile) {
	c.entries[domain.AliasKey(tenantID, appID, userID)] = p
}

func (c *fakeCache) Evict(_ context.Context, tenantID, appID, userID string) {
	delete(c.entries, domain.AliasKey(tenantID, appID, userID))
}

type fixture struct {
	uc       *UseCase
	profiles *memory.ProfileRepository
	mappings *memory.MappingRepository
	cache    *fakeCache
}

func newFixture() *fixture {
	profiles := memory.NewProfileRepository()
	mappings := memory.NewMappingRepository()
	cache := newFakeCache()
	return &fixture{
		uc:       New(profiles, mappings, cache, nil),
		profiles: profiles,
		mappings: mappings,
		cache:    cache,
	}
}

func (f *fixture) seed(t *testing.T, profileID string, aliases ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.profiles.Save(ctx, &domain.Profile{
		ID: profileID, TenantID: "t1", Status: domain.ProfileStatusActive, Version: 1,
	}))
	for _, alias := range aliases {
		require.NoError(t, f.mappings.Save(ctx, &domain.Mapping{
			TenantID: "t1", AppID: "app", UserID: alias, ProfileID: profileID,
		}))
	}
}

func TestGetLoadsFromStoreAndCaches(t *testing.T) {
	f := newFixture()
	f.seed(t, "p1", "u1")

	got, err := f.uc.Get(context.Background(), "t1", "app", "u1")
	require.NoError(t, err)
	assert.Equal(t, "p1", got.ID)
	assert.Contains(t, f.cache.entries, "t1|app|u1")
}

func TestGetServesFromCache(t *testing.T) {
	f := newFixture()
	// Only present in the cache; store lookup would fail.
	f.cache.entries["t1|app|u1"] = &domain.Profile{ID: "cached"}

	got, err := f.uc.Get(context.Background(), "t1", "app", "u1")
	require.NoError(t, err)
	assert.Equal(t, "cached", got.ID)
}

func TestGetUnknownIdentity(t *testing.T) {
	f := newFixture()
	_, err := f.uc.Get(context.Background(), "t1", "app", "nobody")
	assert.ErrorIs(t, err, domain.ErrProfileNotFound)
}

func TestDeleteLastAliasSoftDeletesProfile(t *testing.T) {
	f := newFixture()
	f.seed(t, "p1", "u1")
	f.cache.entries["t1|app|u1"] = &domain.Profile{ID: "p1"}

	result, err := f.uc.Delete(context.Background(), "t1", "app", "u1")
	require.NoError(t, err)
	assert.True(t, result.ProfileDeleted)
	assert.True(t, result.MappingDeleted)
	assert.Equal(t, 0, result.RemainingMappings)
	assert.NotContains(t, f.cache.entries, "t1|app|u1")

	stored, err := f.profiles.GetByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.ProfileStatusDeleted, stored.Status)
	assert.Equal(t, int64(2), stored.Version)

	_, err = f.mappings.FindProfileID(context.Background(), "t1", "app", "u1")
	assert.ErrorIs(t, err, domain.ErrMappingNotFound)
}

func TestDeleteKeepsProfileWhileAliasesRemain(t *testing.T) {
	f := newFixture()
	f.seed(t, "p1", "u1", "u2")

	result, err := f.uc.Delete(context.Background(), "t1", "app", "u1")
	require.NoError(t, err)
	assert.False(t, result.ProfileDeleted)
	assert.Equal(t, 1, result.RemainingMappings)

	stored, err := f.profiles.GetByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.ProfileStatusActive, stored.Status)
}

func TestDeleteUnknownIdentity(t *testing.T) {
	f := newFixture()
	_, err := f.uc.Delete(context.Background(), "t1", "app", "nobody")
	assert.ErrorIs(t, err, domain.ErrMappingNotFound)
}

type failingCountMappings struct {
	*memory.MappingRepository
}

func (f *failingCountMappings) CountByProfileID(context.Context, string) (int, error) {
	return 0, errors.New("connection reset")
}

func TestDeleteSkipsSoftDeleteWhenCountFails(t *testing.T) {
	f := newFixture()
	f.seed(t, "p1", "u1", "u2")
	f.uc = New(f.profiles, &failingCountMappings{f.mappings}, f.cache, nil)

	result, err := f.uc.Delete(context.Background(), "t1", "app", "u1")
	require.NoError(t, err)
	assert.False(t, result.ProfileDeleted)
	assert.True(t, result.MappingDeleted)
	assert.Equal(t, 0, result.RemainingMappings)

	// The profile keeps serving its surviving alias.
	stored, err := f.profiles.GetByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.ProfileStatusActive, stored.Status)
	assert.Equal(t, int64(1), stored.Version)

	profileID, err := f.mappings.FindProfileID(context.Background(), "t1", "app", "u2")
	require.NoError(t, err)
	assert.Equal(t, "p1", profileID)
}
