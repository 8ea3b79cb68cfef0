// Package merge implements the offline side of identity resolution:
// duplicate detection over active profiles, aggregation of duplicates
// into master profiles, and the auto/manual merge operations.
package merge

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/opencdp/profile-engine/domain"
	"github.com/opencdp/profile-engine/pkg/normalize"
	"github.com/opencdp/profile-engine/repository"
)

// Grouping strategies accepted by FindDuplicates. "all" or any
// unrecognized name runs every strategy and unions the results.
const (
	StrategyIDCard    = "idcard"
	StrategyPhoneDOB  = "phone_dob"
	StrategyEmailName = "email_name"
	StrategyPhoneName = "phone_name"
	StrategyAll       = "all"
)

const (
	// Scan bounds: at most maxPages pages of pageSize profiles are
	// examined per run. A deliberate scale limit, logged when hit.
	pageSize = 100
	maxPages = 10
)

// Detector groups active profiles by normalized duplicate keys.
type Detector struct {
	profiles repository.ProfileRepository
	logger   *zap.Logger
}

func NewDetector(profiles repository.ProfileRepository, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{profiles: profiles, logger: logger}
}

// FindDuplicates scans the tenant's ACTIVE profiles and returns groups of
// two or more keyed "strategy:value". Groups whose key contains a failed
// normalization are discarded.
func (d *Detector) FindDuplicates(ctx context.Context, tenantID, strategy string) (map[string][]*domain.Profile, error) {
	profiles, err := d.loadActiveProfiles(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if len(profiles) < 2 {
		d.logger.Info("not enough profiles to detect duplicates",
			zap.String("tenant_id", tenantID),
			zap.Int("loaded", len(profiles)),
		)
		return map[string][]*domain.Profile{}, nil
	}

	groups := make(map[string][]*domain.Profile)
	switch strings.ToLower(strategy) {
	case StrategyIDCard, "idcard_only":
		addGroups(groups, groupByIDCard(profiles))
	case StrategyPhoneDOB:
		addGroups(groups, groupByPhoneDOB(profiles))
	case StrategyEmailName:
		addGroups(groups, groupByEmailName(profiles))
	case StrategyPhoneName:
		addGroups(groups, groupByPhoneName(profiles))
	case StrategyAll:
		d.addAll(groups, profiles)
	default:
		d.logger.Warn("unknown duplicate strategy, running all",
			zap.String("strategy", strategy),
		)
		d.addAll(groups, profiles)
	}

	d.logger.Info("duplicate detection finished",
		zap.String("tenant_id", tenantID),
		zap.String("strategy", strategy),
		zap.Int("groups", len(groups)),
	)
	return groups, nil
}

func (d *Detector) addAll(groups map[string][]*domain.Profile, profiles []*domain.Profile) {
	addGroups(groups, groupByIDCard(profiles))
	addGroups(groups, groupByPhoneDOB(profiles))
	addGroups(groups, groupByEmailName(profiles))
	addGroups(groups, groupByPhoneName(profiles))
}

func (d *Detector) loadActiveProfiles(ctx context.Context, tenantID string) ([]*domain.Profile, error) {
	var all []*domain.Profile

	page := 0
	hasMore := true
	for hasMore && page < maxPages {
		profiles, more, err := d.profiles.ListActive(ctx, tenantID, page, pageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, profiles...)
		hasMore = more
		page++
	}

	if hasMore {
		d.logger.Warn("duplicate scan reached page cap, proceeding with partial set",
			zap.String("tenant_id", tenantID),
			zap.Int("max_pages", maxPages),
			zap.Int("loaded", len(all)),
		)
	}
	return all, nil
}

func addGroups(dst, src map[string][]*domain.Profile) {
	for k, v := range src {
		dst[k] = v
	}
}

// collectGroups buckets profiles by keyOf, drops singleton groups and
// groups with an empty key component (the normalization failure marker),
// and prefixes the surviving keys with the strategy name.
func collectGroups(strategy string, profiles []*domain.Profile, keyOf func(*domain.Traits) (string, bool)) map[string][]*domain.Profile {
	buckets := make(map[string][]*domain.Profile)
	for _, p := range profiles {
		if p.Traits == nil {
			continue
		}
		key, ok := keyOf(p.Traits)
		if !ok {
			continue
		}
		buckets[key] = append(buckets[key], p)
	}

	groups := make(map[string][]*domain.Profile)
	for key, members := range buckets {
		if len(members) < 2 {
			continue
		}
		groups[strategy+":"+key] = members
	}
	return groups
}

func groupByIDCard(profiles []*domain.Profile) map[string][]*domain.Profile {
	return collectGroups(StrategyIDCard, profiles, func(t *domain.Traits) (string, bool) {
		if strings.TrimSpace(t.IDCard) == "" {
			return "", false
		}
		return t.IDCard, true
	})
}

func groupByPhoneDOB(profiles []*domain.Profile) map[string][]*domain.Profile {
	return collectGroups(StrategyPhoneDOB, profiles, func(t *domain.Traits) (string, bool) {
		phone := normalize.Phone(firstPhone(t))
		dob := normalize.DOB(t.DOB)
		if phone == "" || dob == "" {
			return "", false
		}
		return phone + "|" + dob, true
	})
}

func groupByEmailName(profiles []*domain.Profile) map[string][]*domain.Profile {
	return collectGroups(StrategyEmailName, profiles, func(t *domain.Traits) (string, bool) {
		email := normalize.Email(t.Email)
		name := normalize.Name(t.FullName)
		if email == "" || name == "" {
			return "", false
		}
		return email + "|" + name, true
	})
}

func groupByPhoneName(profiles []*domain.Profile) map[string][]*domain.Profile {
	return collectGroups(StrategyPhoneName, profiles, func(t *domain.Traits) (string, bool) {
		phone := normalize.Phone(firstPhone(t))
		name := normalize.Name(t.FullName)
		if phone == "" || name == "" {
			return "", false
		}
		return phone + "|" + name, true
	})
}

func firstPhone(t *domain.Traits) string {
	if len(t.Phones) == 0 {
		return ""
	}
	return t.Phones[0]
}
