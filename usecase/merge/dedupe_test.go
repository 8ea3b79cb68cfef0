package merge

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencdp/profile-engine/domain"
	"github.com/opencdp/profile-engine/repository/memory"
)

func seed(t *testing.T, repo *memory.ProfileRepository, id string, traits *domain.Traits) {
	t.Helper()
	require.NoError(t, repo.Save(context.Background(), &domain.Profile{
		ID: id, TenantID: "t1", Status: domain.ProfileStatusActive, Traits: traits,
	}))
}

func TestFindDuplicatesByIDCard(t *testing.T) {
	repo := memory.NewProfileRepository()
	seed(t, repo, "p1", &domain.Traits{IDCard: "X"})
	seed(t, repo, "p2", &domain.Traits{IDCard: "X"})
	seed(t, repo, "p3", &domain.Traits{IDCard: "Y"})

	detector := NewDetector(repo, nil)
	groups, err := detector.FindDuplicates(context.Background(), "t1", StrategyIDCard)
	require.NoError(t, err)

	require.Len(t, groups, 1)
	require.Contains(t, groups, "idcard:X")
	assert.Len(t, groups["idcard:X"], 2)
}

func TestFindDuplicatesRequiresTwoProfiles(t *testing.T) {
	repo := memory.NewProfileRepository()
	seed(t, repo, "p1", &domain.Traits{IDCard: "X"})

	detector := NewDetector(repo, nil)
	groups, err := detector.FindDuplicates(context.Background(), "t1", StrategyIDCard)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestFindDuplicatesPhoneDOBNormalizes(t *testing.T) {
	repo := memory.NewProfileRepository()
	seed(t, repo, "p1", &domain.Traits{Phones: []string{"+84987654321"}, DOB: "31/01/1990"})
	seed(t, repo, "p2", &domain.Traits{Phones: []string{"0987654321"}, DOB: "1990-01-31"})

	detector := NewDetector(repo, nil)
	groups, err := detector.FindDuplicates(context.Background(), "t1", StrategyPhoneDOB)
	require.NoError(t, err)

	require.Contains(t, groups, "phone_dob:0987654321|1990-01-31")
	assert.Len(t, groups["phone_dob:0987654321|1990-01-31"], 2)
}

func TestFindDuplicatesDiscardsFailedNormalization(t *testing.T) {
	repo := memory.NewProfileRepository()
	// No dob on either profile: the key would carry an empty component.
	seed(t, repo, "p1", &domain.Traits{Phones: []string{"0987654321"}})
	seed(t, repo, "p2", &domain.Traits{Phones: []string{"0987654321"}})

	detector := NewDetector(repo, nil)
	groups, err := detector.FindDuplicates(context.Background(), "t1", StrategyPhoneDOB)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestFindDuplicatesEmailName(t *testing.T) {
	repo := memory.NewProfileRepository()
	seed(t, repo, "p1", &domain.Traits{Email: "A@X.com ", FullName: "Nguyễn Văn A"})
	seed(t, repo, "p2", &domain.Traits{Email: "a@x.com", FullName: "Nguyen  Van A"})

	detector := NewDetector(repo, nil)
	groups, err := detector.FindDuplicates(context.Background(), "t1", StrategyEmailName)
	require.NoError(t, err)

	require.Contains(t, groups, "email_name:a@x.com|nguyen van a")
	assert.Len(t, groups["email_name:a@x.com|nguyen van a"], 2)
}

func TestFindDuplicatesAllUnionsStrategies(t *testing.T) {
	repo := memory.NewProfileRepository()
	seed(t, repo, "p1", &domain.Traits{IDCard: "X"})
	seed(t, repo, "p2", &domain.Traits{IDCard: "X"})
	seed(t, repo, "p3", &domain.Traits{Email: "a@x.com", FullName: "An"})
	seed(t, repo, "p4", &domain.Traits{Email: "a@x.com", FullName: "An"})

	detector := NewDetector(repo, nil)
	groups, err := detector.FindDuplicates(context.Background(), "t1", StrategyAll)
	require.NoError(t, err)

	assert.Contains(t, groups, "idcard:X")
	assert.Contains(t, groups, "email_name:a@x.com|an")
}

func TestFindDuplicatesUnknownStrategyRunsAll(t *testing.T) {
	repo := memory.NewProfileRepository()
	seed(t, repo, "p1", &domain.Traits{IDCard: "X"})
	seed(t, repo, "p2", &domain.Traits{IDCard: "X"})

	detector := NewDetector(repo, nil)
	groups, err := detector.FindDuplicates(context.Background(), "t1", "bogus")
	require.NoError(t, err)
	assert.Contains(t, groups, "idcard:X")
}

func TestFindDuplicatesIgnoresInactive(t *testing.T) {
	repo := memory.NewProfileRepository()
	seed(t, repo, "p1", &domain.Traits{IDCard: "X"})
	require.NoError(t, repo.Save(context.Background(), &domain.Profile{
		ID: "p2", TenantID: "t1", Status: domain.ProfileStatusMerged,
		Traits: &domain.Traits{IDCard: "X"},
	}))
	seed(t, repo, "p3", &domain.Traits{IDCard: "Z"})

	detector := NewDetector(repo, nil)
	groups, err := detector.FindDuplicates(context.Background(), "t1", StrategyIDCard)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestFindDuplicatesStopsAtPageCap(t *testing.T) {
	repo := memory.NewProfileRepository()
	// One page beyond the cap; the scan proceeds with the partial set.
	for i := 0; i < maxPages*pageSize+5; i++ {
		seed(t, repo, fmt.Sprintf("p%05d", i), &domain.Traits{IDCard: fmt.Sprintf("c%05d", i/2)})
	}

	detector := NewDetector(repo, nil)
	groups, err := detector.FindDuplicates(context.Background(), "t1", StrategyIDCard)
	require.NoError(t, err)
	// 1000 loaded profiles pair up into 500 groups.
	assert.Len(t, groups, maxPages*pageSize/2)
}
