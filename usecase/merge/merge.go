package merge

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/opencdp/profile-engine/domain"
	"github.com/opencdp/profile-engine/internal/metrics"
	"github.com/opencdp/profile-engine/pkg/autoid"
	"github.com/opencdp/profile-engine/pkg/normalize"
	"github.com/opencdp/profile-engine/repository"
)

// Cache is the eviction surface the merge flow needs: marking a source
// profile MERGED must drop its aliases from both tiers.
type Cache interface {
	Evict(ctx context.Context, tenantID, appID, userID string)
}

// Report summarizes one auto-merge run. Per-group failures are collected
// rather than aborting the run.
type Report struct {
	TenantID     string                  `json:"tenant_id"`
	Strategy     string                  `json:"strategy"`
	DryRun       bool                    `json:"dry_run"`
	GroupsFound  int                     `json:"groups_found"`
	GroupsMerged int                     `json:"groups_merged"`
	GroupSizes   map[string]int          `json:"group_sizes,omitempty"`
	Masters      []*domain.MasterProfile `json:"masters,omitempty"`
	Errors       []string                `json:"errors,omitempty"`
}

type UseCase struct {
	profiles repository.ProfileRepository
	masters  repository.MasterProfileRepository
	detector *Detector
	cache    Cache
	idgen    *autoid.Generator
	logger   *zap.Logger
}

func New(
	profiles repository.ProfileRepository,
	masters repository.MasterProfileRepository,
	detector *Detector,
	cache Cache,
	idgen *autoid.Generator,
	logger *zap.Logger,
) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	if idgen == nil {
		idgen = autoid.New()
	}
	return &UseCase{
		profiles: profiles,
		masters:  masters,
		detector: detector,
		cache:    cache,
		idgen:    idgen,
		logger:   logger,
	}
}

// AutoMerge runs duplicate detection and merges each surviving group into
// a master profile. maxGroups caps the number of groups processed (0 means
// all); dryRun reports the groups without writing anything.
func (uc *UseCase) AutoMerge(ctx context.Context, tenantID, strategy string, dryRun bool, maxGroups int) (*Report, error) {
	groups, err := uc.detector.FindDuplicates(ctx, tenantID, strategy)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeInternal, "duplicate detection failed", err)
	}

	report := &Report{
		TenantID:    tenantID,
		Strategy:    strategy,
		DryRun:      dryRun,
		GroupsFound: len(groups),
		GroupSizes:  make(map[string]int, len(groups)),
	}

	keys := make([]string, 0, len(groups))
	for key, members := range groups {
		keys = append(keys, key)
		report.GroupSizes[key] = len(members)
	}
	sort.Strings(keys)
	metrics.SetDuplicateGroups(tenantID, strategy, report.GroupsFound)

	if maxGroups > 0 && len(keys) > maxGroups {
		keys = keys[:maxGroups]
	}
	if dryRun {
		return report, nil
	}

	for _, key := range keys {
		master, err := uc.mergeGroup(ctx, groups[key], extractStrategy(key), false)
		if err != nil {
			uc.logger.Error("group merge failed",
				zap.String("group", key),
				zap.Error(err),
			)
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", key, err))
			continue
		}
		report.GroupsMerged++
		report.Masters = append(report.Masters, master)
		metrics.RecordMerge("auto")
	}

	uc.logger.Info("auto merge finished",
		zap.String("tenant_id", tenantID),
		zap.String("strategy", strategy),
		zap.Int("groups_found", report.GroupsFound),
		zap.Int("groups_merged", report.GroupsMerged),
		zap.Int("errors", len(report.Errors)),
	)
	return report, nil
}

// ManualMerge merges an explicit set of profiles. Unless force is set, the
// profiles must share at least one duplicate criterion; keepOriginals
// leaves the sources ACTIVE.
func (uc *UseCase) ManualMerge(ctx context.Context, tenantID string, profileIDs []string, force, keepOriginals bool) (*domain.MasterProfile, error) {
	if len(profileIDs) < 2 {
		return nil, domain.ErrNotEnoughInputs
	}

	profiles := make([]*domain.Profile, 0, len(profileIDs))
	for _, id := range profileIDs {
		profile, err := uc.profiles.GetByID(ctx, id)
		if err != nil {
			if domain.IsNotFound(err) {
				return nil, domain.WrapError(domain.ErrCodeNotFound, "profile not found: "+id, err)
			}
			return nil, err
		}
		if profile.TenantID != tenantID {
			return nil, domain.ErrTenantMismatch
		}
		profiles = append(profiles, profile)
	}

	strategy := "manual_forced"
	if !force {
		matched, ok := sharedCriterion(profiles)
		if !ok {
			return nil, domain.ErrNoMergeCriteria
		}
		strategy = matched
	}

	master, err := uc.mergeGroup(ctx, profiles, strategy, keepOriginals)
	if err != nil {
		return nil, err
	}
	metrics.RecordMerge("manual")
	return master, nil
}

// GetMaster loads one master profile.
func (uc *UseCase) GetMaster(ctx context.Context, tenantID, masterID string) (*domain.MasterProfile, error) {
	return uc.masters.GetByID(ctx, tenantID, masterID)
}

func (uc *UseCase) mergeGroup(ctx context.Context, profiles []*domain.Profile, strategy string, keepOriginals bool) (*domain.MasterProfile, error) {
	master, err := Aggregate(uc.idgen, profiles)
	if err != nil {
		return nil, err
	}

	// Reuse a master that already absorbed one of the group's aliases
	// instead of minting a second master for the same person. A lookup
	// failure biases toward a fresh master.
	existing, err := uc.findExistingMasters(ctx, profiles)
	if err != nil {
		uc.logger.Warn("master lookup failed, creating a new master", zap.Error(err))
		existing = nil
	}
	if len(existing) > 0 {
		master = uc.consolidateMasters(ctx, existing, master)
	}

	if master.Metadata == nil {
		master.Metadata = make(map[string]any)
	}
	master.Metadata["merge_strategy"] = strategy
	master.Metadata["merge_confidence"] = confidence(strategy)
	master.Metadata["merged_profiles"] = len(profiles)

	if err := uc.masters.Save(ctx, master); err != nil {
		return nil, err
	}

	if !keepOriginals {
		uc.markMerged(ctx, profiles, master.ID)
	}

	uc.logger.Info("profiles merged into master",
		zap.String("master_id", master.ID),
		zap.String("strategy", strategy),
		zap.Int("sources", len(profiles)),
		zap.Int("masters_reused", len(existing)),
	)
	return master, nil
}

// findExistingMasters returns the ACTIVE masters whose merged_ids already
// contain one of the group's alias keys, in discovery order without
// duplicates.
func (uc *UseCase) findExistingMasters(ctx context.Context, profiles []*domain.Profile) ([]*domain.MasterProfile, error) {
	seen := make(map[string]struct{})
	var masters []*domain.MasterProfile

	for _, profile := range profiles {
		for _, user := range profile.Users {
			key := domain.AliasKey(profile.TenantID, user.AppID, user.UserID)
			found, err := uc.masters.FindByMergedID(ctx, profile.TenantID, key)
			if err != nil {
				return nil, err
			}
			for _, master := range found {
				if master.Status != domain.ProfileStatusActive {
					continue
				}
				if _, ok := seen[master.ID]; ok {
					continue
				}
				seen[master.ID] = struct{}{}
				masters = append(masters, master)
			}
		}
	}
	return masters, nil
}

// consolidateMasters folds the freshly aggregated group and any secondary
// masters into the oldest existing master. Secondaries are retired in
// place; retirement failures are logged and skipped.
func (uc *UseCase) consolidateMasters(ctx context.Context, existing []*domain.MasterProfile, fresh *domain.MasterProfile) *domain.MasterProfile {
	primary := existing[0]
	for _, master := range existing[1:] {
		if master.CreatedAt.Before(primary.CreatedAt) {
			primary = master
		}
	}

	for _, master := range existing {
		if master.ID == primary.ID {
			continue
		}
		absorbMaster(primary, master)

		master.Status = domain.ProfileStatusMerged
		if master.Metadata == nil {
			master.Metadata = make(map[string]any)
		}
		master.Metadata["merged_into"] = primary.ID
		master.Version++
		if err := uc.masters.Save(ctx, master); err != nil {
			uc.logger.Error("failed to retire secondary master",
				zap.String("master_id", master.ID),
				zap.String("primary_id", primary.ID),
				zap.Error(err),
			)
		}
	}

	absorbMaster(primary, fresh)
	primary.Version++
	return primary
}

// markMerged retires the source profiles. Per-profile failures are logged
// and skipped so one bad document does not abort the whole group.
func (uc *UseCase) markMerged(ctx context.Context, profiles []*domain.Profile, masterID string) {
	now := time.Now()
	for _, profile := range profiles {
		profile.Status = domain.ProfileStatusMerged
		profile.MergedToMasterID = masterID
		profile.MergedAt = &now
		profile.Version++

		if err := uc.profiles.Save(ctx, profile); err != nil {
			uc.logger.Error("failed to mark profile as merged",
				zap.String("profile_id", profile.ID),
				zap.String("master_id", masterID),
				zap.Error(err),
			)
			continue
		}
		if uc.cache != nil {
			for _, user := range profile.Users {
				uc.cache.Evict(ctx, profile.TenantID, user.AppID, user.UserID)
			}
		}
	}
}

func extractStrategy(groupKey string) string {
	for _, s := range []string{StrategyIDCard, StrategyPhoneDOB, StrategyEmailName, StrategyPhoneName} {
		if strings.HasPrefix(groupKey, s+":") {
			return s
		}
	}
	return "unknown"
}

func confidence(strategy string) string {
	switch strategy {
	case StrategyIDCard, StrategyPhoneDOB:
		return "high"
	case StrategyEmailName:
		return "medium"
	default:
		return "low"
	}
}

// sharedCriterion reports the first duplicate criterion every profile in
// the set satisfies with an identical normalized value.
func sharedCriterion(profiles []*domain.Profile) (string, bool) {
	if allEqual(profiles, func(t *domain.Traits) string {
		return strings.TrimSpace(t.IDCard)
	}) {
		return StrategyIDCard, true
	}
	if allEqual(profiles, func(t *domain.Traits) string {
		phone := normalize.Phone(firstPhone(t))
		dob := normalize.DOB(t.DOB)
		if phone == "" || dob == "" {
			return ""
		}
		return phone + "|" + dob
	}) {
		return StrategyPhoneDOB, true
	}
	if allEqual(profiles, func(t *domain.Traits) string {
		email := normalize.Email(t.Email)
		name := normalize.Name(t.FullName)
		if email == "" || name == "" {
			return ""
		}
		return email + "|" + name
	}) {
		return StrategyEmailName, true
	}
	return "", false
}

func allEqual(profiles []*domain.Profile, keyOf func(*domain.Traits) string) bool {
	var expected string
	for i, p := range profiles {
		if p.Traits == nil {
			return false
		}
		key := keyOf(p.Traits)
		if key == "" {
			return false
		}
		if i == 0 {
			expected = key
			continue
		}
		if key != expected {
			return false
		}
	}
	return true
}
