package merge

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencdp/profile-engine/domain"
)

func TestAggregateRequiresTwoProfiles(t *testing.T) {
	_, err := Aggregate(nil, []*domain.Profile{{ID: "p1"}})
	assert.ErrorIs(t, err, domain.ErrNotEnoughInputs)
}

func TestAggregateEmailUnionLowercasedOrderPreserved(t *testing.T) {
	master, err := Aggregate(nil, []*domain.Profile{
		{ID: "p1", TenantID: "t1", Traits: &domain.Traits{Email: "a@x.com"}},
		{ID: "p2", TenantID: "t1", Traits: &domain.Traits{Email: "A@X.com"}},
		{ID: "p3", TenantID: "t1", Traits: &domain.Traits{Email: "b@x.com"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, master.Traits.Emails)
}

func TestAggregateScalarsFirstNonNullInInputOrder(t *testing.T) {
	master, err := Aggregate(nil, []*domain.Profile{
		{ID: "p1", TenantID: "t1", Traits: &domain.Traits{Gender: "", DOB: "1990-01-01"}},
		{ID: "p2", TenantID: "t1", Traits: &domain.Traits{Gender: "F", DOB: "1991-12-31", Address: "HN"}},
		{ID: "p3", TenantID: "t1", Traits: &domain.Traits{Gender: "M"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "F", master.Traits.Gender)
	assert.Equal(t, "1990-01-01", master.Traits.DOB)
	assert.Equal(t, "HN", master.Traits.Address)
}

func TestAggregateMergedIDsAndAppIDs(t *testing.T) {
	master, err := Aggregate(nil, []*domain.Profile{
		{ID: "p1", TenantID: "t1", Users: []domain.UserRef{{AppID: "app1", UserID: "u1"}}},
		{ID: "p2", TenantID: "t1", Users: []domain.UserRef{
			{AppID: "app1", UserID: "u2"},
			{AppID: "app2", UserID: "u3"},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"t1|app1|u1", "t1|app1|u2", "t1|app2|u3"}, master.MergedIDs)
	assert.Equal(t, []string{"app1", "app2"}, master.AppIDs)
	assert.True(t, strings.HasPrefix(master.ID, domain.MasterProfileIDPrefix))
	assert.Equal(t, int64(1), master.Version)
}

func TestAggregateAnonymousWhenNoEmailOrPhone(t *testing.T) {
	master, err := Aggregate(nil, []*domain.Profile{
		{ID: "p1", TenantID: "t1", Traits: &domain.Traits{FullName: "A"}},
		{ID: "p2", TenantID: "t1", Traits: &domain.Traits{FullName: "B"}},
	})
	require.NoError(t, err)
	assert.True(t, master.Anonymous)

	master, err = Aggregate(nil, []*domain.Profile{
		{ID: "p1", TenantID: "t1", Traits: &domain.Traits{Phones: []string{"0987654321"}}},
		{ID: "p2", TenantID: "t1", Traits: &domain.Traits{}},
	})
	require.NoError(t, err)
	assert.False(t, master.Anonymous)
}

func TestAggregateSeenTimestampsSpanSources(t *testing.T) {
	early := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	master, err := Aggregate(nil, []*domain.Profile{
		{ID: "p1", TenantID: "t1", FirstSeenAt: &late, LastSeenAt: &late},
		{ID: "p2", TenantID: "t1", FirstSeenAt: &early, LastSeenAt: &early},
	})
	require.NoError(t, err)
	assert.Equal(t, early, master.FirstSeenAt)
	assert.Equal(t, late, master.LastSeenAt)
}

func TestAggregateDefaultsSeenTimestampsToNow(t *testing.T) {
	before := time.Now()
	master, err := Aggregate(nil, []*domain.Profile{
		{ID: "p1", TenantID: "t1"},
		{ID: "p2", TenantID: "t1"},
	})
	require.NoError(t, err)
	assert.False(t, master.FirstSeenAt.Before(before))
	assert.False(t, master.LastSeenAt.Before(before))
}
