package track

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencdp/profile-engine/domain"
	"github.com/opencdp/profile-engine/repository/memory"
	"github.com/opencdp/profile-engine/usecase/match"
)

type fakeCache struct {
	entries map[string]*domain.Profile
	evicted []string
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
	key := domain.AliasKey(tenantID, appID, userID)
	delete(c.entries, key)
	c.evicted = append(c.evicted, key)
}

type fixture struct {
	uc       *UseCase
	profiles *memory.ProfileRepository
	mappings *memory.MappingRepository
	masters  *memory.MasterProfileRepository
	cache    *fakeCache
}

func newFixture() *fixture {
	profiles := memory.NewProfileRepository()
	mappings := memory.NewMappingRepository()
	masters := memory.NewMasterProfileRepository()
	cache := newFakeCache()
	matcher := match.New(profiles, nil)

	return &fixture{
		uc:       New(profiles, mappings, masters, matcher, cache, nil, nil),
		profiles: profiles,
		mappings: mappings,
		masters:  masters,
		cache:    cache,
	}
}

func identifyEvent(userID string, traits *domain.Traits, updatedAt string) *domain.IdentityEvent {
	event := &domain.IdentityEvent{
		TenantID: "t1",
		AppID:    "app",
		UserID:   userID,
		Type:     "identify",
		Traits:   traits,
	}
	if updatedAt != "" {
		event.Metadata = map[string]any{"updated_at": updatedAt}
	}
	return event
}

func TestProcessIdentityCreatesThenSkipsOnReplay(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	event := identifyEvent("u1", &domain.Traits{Email: "a@x.com"}, "2026-02-01T10:00:00Z")

	first, err := f.uc.ProcessIdentity(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCreated, first.Outcome)

	second, err := f.uc.ProcessIdentity(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSkipped, second.Outcome)
	assert.Equal(t, first.ProfileID, second.ProfileID)
}

func TestProcessIdentityOlderTimestampNeverMutates(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	created, err := f.uc.ProcessIdentity(ctx, identifyEvent("u1", &domain.Traits{FullName: "Original"}, ""))
	require.NoError(t, err)

	stale := identifyEvent("u1", &domain.Traits{FullName: "Stale"}, "2020-01-01T00:00:00Z")
	result, err := f.uc.ProcessIdentity(ctx, stale)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSkipped, result.Outcome)

	stored, err := f.profiles.GetByID(ctx, created.ProfileID)
	require.NoError(t, err)
	assert.Equal(t, "Original", stored.Traits.FullName)
	assert.Equal(t, int64(1), stored.Version)
}

func TestProcessIdentityNewerTimestampUpdates(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	created, err := f.uc.ProcessIdentity(ctx, identifyEvent("u1", &domain.Traits{
		FullName: "Original",
		Phones:   []string{"0987654321"},
	}, "2026-02-01T10:00:00Z"))
	require.NoError(t, err)

	future := time.Now().Add(time.Hour).Format(time.RFC3339)
	result, err := f.uc.ProcessIdentity(ctx, identifyEvent("u1", &domain.Traits{
		FullName: "Updated",
		Phones:   []string{"0911222333", "0987654321"},
	}, future))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeUpdated, result.Outcome)

	stored, err := f.profiles.GetByID(ctx, created.ProfileID)
	require.NoError(t, err)
	assert.Equal(t, "Updated", stored.Traits.FullName)
	assert.Equal(t, []string{"0987654321", "0911222333"}, stored.Traits.Phones)
	assert.Equal(t, int64(2), stored.Version)
}

func TestProcessIdentityMatchesByIDCardAndReturnsMappingOnly(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	created, err := f.uc.ProcessIdentity(ctx, identifyEvent("u1", &domain.Traits{IDCard: "079123"}, ""))
	require.NoError(t, err)

	// New triple, same national ID, stale business timestamp.
	event := &domain.IdentityEvent{
		TenantID: "t1",
		AppID:    "other-app",
		UserID:   "u-other",
		Traits:   &domain.Traits{IDCard: "079123"},
		Metadata: map[string]any{"updated_at": "2020-01-01T00:00:00Z"},
	}
	result, err := f.uc.ProcessIdentity(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeMappingOnly, result.Outcome)
	assert.Equal(t, created.ProfileID, result.ProfileID)

	// The mapping now points at the existing profile and the alias list
	// was rebuilt to include both triples.
	profileID, err := f.mappings.FindProfileID(ctx, "t1", "other-app", "u-other")
	require.NoError(t, err)
	assert.Equal(t, created.ProfileID, profileID)

	stored, err := f.profiles.GetByID(ctx, created.ProfileID)
	require.NoError(t, err)
	assert.Len(t, stored.Users, 2)
}

func TestProcessIdentityCacheFanOutAcrossAliases(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	created, err := f.uc.ProcessIdentity(ctx, identifyEvent("u1", &domain.Traits{Email: "a@x.com"}, ""))
	require.NoError(t, err)

	// Attach two more aliases to the same profile.
	for _, alias := range []string{"u2", "u3"} {
		require.NoError(t, f.mappings.Save(ctx, &domain.Mapping{
			TenantID: "t1", AppID: "app", UserID: alias, ProfileID: created.ProfileID,
		}))
		f.cache.Put(ctx, "t1", "app", alias, created.Profile)
	}

	f.cache.evicted = nil
	future := time.Now().Add(time.Hour).Format(time.RFC3339)
	_, err = f.uc.ProcessIdentity(ctx, identifyEvent("u1", &domain.Traits{Email: "b@x.com"}, future))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"t1|app|u1", "t1|app|u2", "t1|app|u3"}, f.cache.evicted)
	// Only the triggering alias is repopulated.
	assert.NotNil(t, f.cache.Get(ctx, "t1", "app", "u1"))
	assert.Nil(t, f.cache.Get(ctx, "t1", "app", "u2"))
	assert.Nil(t, f.cache.Get(ctx, "t1", "app", "u3"))
}

func TestProcessIdentityReactivatesMergedProfile(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	created, err := f.uc.ProcessIdentity(ctx, identifyEvent("u1", &domain.Traits{Email: "a@x.com"}, ""))
	require.NoError(t, err)

	// Simulate a batch merge that absorbed the profile into a master.
	mergedAt := time.Now()
	profile, err := f.profiles.GetByID(ctx, created.ProfileID)
	require.NoError(t, err)
	profile.Status = domain.ProfileStatusMerged
	profile.MergedToMasterID = "mp_1"
	profile.MergedAt = &mergedAt
	require.NoError(t, f.profiles.Save(ctx, profile))

	require.NoError(t, f.masters.Save(ctx, &domain.MasterProfile{
		ID:        "mp_1",
		TenantID:  "t1",
		Status:    domain.ProfileStatusActive,
		MergedIDs: []string{"t1|app|u1", "t1|app2|u9"},
		Version:   1,
	}))

	future := time.Now().Add(time.Hour).Format(time.RFC3339)
	result, err := f.uc.ProcessIdentity(ctx, identifyEvent("u1", &domain.Traits{Email: "a@x.com"}, future))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeUpdated, result.Outcome)

	stored, err := f.profiles.GetByID(ctx, created.ProfileID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProfileStatusActive, stored.Status)
	assert.Empty(t, stored.MergedToMasterID)
	assert.Nil(t, stored.MergedAt)

	master, err := f.masters.GetByID(ctx, "t1", "mp_1")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1|app2|u9"}, master.MergedIDs)
	assert.Equal(t, int64(2), master.Version)
}

func TestProcessIdentityRecreatesWhenMappingPointsAtMissingProfile(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.mappings.Save(ctx, &domain.Mapping{
		TenantID: "t1", AppID: "app", UserID: "u1", ProfileID: "gone",
	}))

	result, err := f.uc.ProcessIdentity(ctx, identifyEvent("u1", &domain.Traits{Email: "a@x.com"}, ""))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCreated, result.Outcome)
	assert.NotEqual(t, "gone", result.ProfileID)

	// The stale mapping was repointed at the new profile.
	profileID, err := f.mappings.FindProfileID(ctx, "t1", "app", "u1")
	require.NoError(t, err)
	assert.Equal(t, result.ProfileID, profileID)
}

func TestProcessIdentityAnonymousFallback(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	event := &domain.IdentityEvent{
		TenantID:    "t1",
		AppID:       "app",
		AnonymousID: "device-1",
		Type:        "identify",
	}
	result, err := f.uc.ProcessIdentity(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCreated, result.Outcome)

	profileID, err := f.mappings.FindProfileID(ctx, "t1", "app", "device-1")
	require.NoError(t, err)
	assert.Equal(t, result.ProfileID, profileID)
}

func TestProcessIdentityRejectsInvalidEvent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.uc.ProcessIdentity(ctx, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidEvent)

	_, err = f.uc.ProcessIdentity(ctx, &domain.IdentityEvent{TenantID: "t1", AppID: "app"})
	assert.ErrorIs(t, err, domain.ErrInvalidEvent)
}

func TestShouldUpdate(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)

	assert.True(t, shouldUpdate(now, nil))
	assert.True(t, shouldUpdate(now, &past))
	assert.False(t, shouldUpdate(past, &now))
	assert.False(t, shouldUpdate(now, &now))
}
