// Package track implements the profile merge/update engine: the
// orchestrator that resolves one identity event into a canonical profile
// via the mapping index, the matching strategies, and timestamp-based
// idempotency.
package track

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/opencdp/profile-engine/domain"
	"github.com/opencdp/profile-engine/internal/metrics"
	"github.com/opencdp/profile-engine/pkg/autoid"
	"github.com/opencdp/profile-engine/repository"
)

// Matcher finds an existing profile for an unmapped identity.
type Matcher interface {
	FindMatch(ctx context.Context, tenantID string, traits *domain.Traits) (*domain.Profile, string)
}

// Cache is the subset of the two-tier cache the engine drives.
type Cache interface {
	Get(ctx context.Context, tenantID, appID, userID string) *domain.Profile
	Put(ctx context.Context, tenantID, appID, userID string, profile *domain.Profile)
	Evict(ctx context.Context, tenantID, appID, userID string)
}

// Result reports the lifecycle outcome of processing one event.
type Result struct {
	Outcome   domain.Outcome
	ProfileID string
	Profile   *domain.Profile
}

type UseCase struct {
	profiles repository.ProfileRepository
	mappings repository.MappingRepository
	masters  repository.MasterProfileRepository
	matcher  Matcher
	cache    Cache
	idgen    *autoid.Generator
	logger   *zap.Logger
}

func New(
	profiles repository.ProfileRepository,
	mappings repository.MappingRepository,
	masters repository.MasterProfileRepository,
	matcher Matcher,
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
		mappings: mappings,
		masters:  masters,
		matcher:  matcher,
		cache:    cache,
		idgen:    idgen,
		logger:   logger,
	}
}

// ProcessIdentity resolves one identity event. Replaying an event with the
// same business timestamp is a no-op (SKIPPED); the engine relies on that
// comparison alone for at-least-once delivery, not on transactions.
func (uc *UseCase) ProcessIdentity(ctx context.Context, event *domain.IdentityEvent) (*Result, error) {
	if event == nil {
		return nil, domain.ErrInvalidEvent
	}
	userID := event.ExternalUserID()
	if event.TenantID == "" || event.AppID == "" || userID == "" {
		return nil, domain.ErrInvalidEvent
	}

	incomingAt := extractUpdatedAt(event.Metadata)

	result, err := uc.process(ctx, event, userID, incomingAt)
	if err == nil && result != nil {
		metrics.RecordOutcome(string(result.Outcome))
	}
	return result, err
}

func (uc *UseCase) process(ctx context.Context, event *domain.IdentityEvent, userID string, incomingAt time.Time) (*Result, error) {
	profileID, err := uc.mappings.FindProfileID(ctx, event.TenantID, event.AppID, userID)
	if err != nil {
		if !domain.IsNotFound(err) {
			// Transient index failure routes into creation rather than
			// failing the event; over-creation beats data loss here.
			uc.logger.Warn("mapping lookup failed, treating as unmapped",
				zap.String("tenant_id", event.TenantID),
				zap.Error(err),
			)
		}
		return uc.handleUnmapped(ctx, event, userID, incomingAt)
	}
	return uc.handleMapped(ctx, event, userID, profileID, incomingAt)
}

func (uc *UseCase) handleMapped(ctx context.Context, event *domain.IdentityEvent, userID, profileID string, incomingAt time.Time) (*Result, error) {
	profile, err := uc.profiles.GetByID(ctx, profileID)
	if err != nil {
		// The index points at a vanished profile. Recreate instead of
		// failing: the mapping will be repointed at the new profile.
		uc.logger.Warn("mapping points to missing profile, recreating",
			zap.String("profile_id", profileID),
			zap.Error(err),
		)
		return uc.createProfile(ctx, event, userID)
	}

	if !shouldUpdate(incomingAt, profile.UpdatedAt) {
		return &Result{Outcome: domain.OutcomeSkipped, ProfileID: profile.ID, Profile: profile}, nil
	}

	if err := uc.applyUpdate(ctx, event, userID, profile, incomingAt); err != nil {
		return nil, err
	}
	return &Result{Outcome: domain.OutcomeUpdated, ProfileID: profile.ID, Profile: profile}, nil
}

func (uc *UseCase) handleUnmapped(ctx context.Context, event *domain.IdentityEvent, userID string, incomingAt time.Time) (*Result, error) {
	matched, strategy := uc.matcher.FindMatch(ctx, event.TenantID, event.Traits)
	if matched == nil {
		return uc.createProfile(ctx, event, userID)
	}

	uc.logger.Info("unmapped identity matched to existing profile",
		zap.String("tenant_id", event.TenantID),
		zap.String("profile_id", matched.ID),
		zap.String("strategy", strategy),
	)

	// Pointing the new triple at the matched profile is the entire on-write
	// merge; no separate merge step exists.
	mapping := &domain.Mapping{
		TenantID:  event.TenantID,
		AppID:     event.AppID,
		UserID:    userID,
		ProfileID: matched.ID,
	}
	if err := uc.mappings.Save(ctx, mapping); err != nil {
		return nil, err
	}

	if shouldUpdate(incomingAt, matched.UpdatedAt) {
		if err := uc.applyUpdate(ctx, event, userID, matched, incomingAt); err != nil {
			return nil, err
		}
		return &Result{Outcome: domain.OutcomeUpdated, ProfileID: matched.ID, Profile: matched}, nil
	}

	// Not newer: save anyway so the alias list picks up the new triple.
	uc.rebuildUsers(ctx, matched)
	formerMaster := uc.reactivateIfMerged(matched)
	matched.Version++
	now := time.Now()
	matched.LastSeenAt = &now
	if err := uc.profiles.Save(ctx, matched); err != nil {
		return nil, err
	}
	uc.reconcileMaster(ctx, matched, formerMaster)
	uc.invalidateAliases(ctx, matched)
	uc.cache.Put(ctx, event.TenantID, event.AppID, userID, matched)

	return &Result{Outcome: domain.OutcomeMappingOnly, ProfileID: matched.ID, Profile: matched}, nil
}

func (uc *UseCase) createProfile(ctx context.Context, event *domain.IdentityEvent, userID string) (*Result, error) {
	now := time.Now()
	profile := &domain.Profile{
		ID:       uc.idgen.Generate(),
		TenantID: event.TenantID,
		Type:     event.Type,
		Status:   domain.ProfileStatusActive,
		// Seeded eagerly so the profile is complete even if the mapping
		// write has not become visible to the rebuild query yet.
		Users:       []domain.UserRef{{AppID: event.AppID, UserID: userID}},
		Traits:      normalizeTraits(event.Traits),
		Platforms:   event.Platforms,
		Campaign:    event.Campaign,
		Metadata:    event.Metadata,
		CreatedAt:   now,
		UpdatedAt:   &now,
		FirstSeenAt: &now,
		LastSeenAt:  &now,
		Version:     1,
	}

	mapping := &domain.Mapping{
		TenantID:  event.TenantID,
		AppID:     event.AppID,
		UserID:    userID,
		ProfileID: profile.ID,
	}
	if err := uc.mappings.Save(ctx, mapping); err != nil {
		return nil, err
	}
	if err := uc.profiles.Save(ctx, profile); err != nil {
		return nil, err
	}

	uc.cache.Put(ctx, event.TenantID, event.AppID, userID, profile)

	uc.logger.Info("profile created",
		zap.String("tenant_id", event.TenantID),
		zap.String("profile_id", profile.ID),
	)
	return &Result{Outcome: domain.OutcomeCreated, ProfileID: profile.ID, Profile: profile}, nil
}

// applyUpdate merges incoming fields into the profile, persists it, and
// keeps the cache coherent across every alias.
func (uc *UseCase) applyUpdate(ctx context.Context, event *domain.IdentityEvent, userID string, profile *domain.Profile, incomingAt time.Time) error {
	mergeEvent(profile, event)
	profile.Version++
	profile.UpdatedAt = &incomingAt
	now := time.Now()
	profile.LastSeenAt = &now

	uc.rebuildUsers(ctx, profile)
	formerMaster := uc.reactivateIfMerged(profile)

	if err := uc.profiles.Save(ctx, profile); err != nil {
		return err
	}

	uc.reconcileMaster(ctx, profile, formerMaster)
	uc.invalidateAliases(ctx, profile)
	uc.cache.Put(ctx, event.TenantID, event.AppID, userID, profile)
	return nil
}

// rebuildUsers recomputes the alias list from the mapping index. On a
// lookup failure the previous list is kept.
func (uc *UseCase) rebuildUsers(ctx context.Context, profile *domain.Profile) {
	mappings, err := uc.mappings.FindByProfileID(ctx, profile.ID)
	if err != nil {
		uc.logger.Warn("alias rebuild failed, keeping previous list",
			zap.String("profile_id", profile.ID),
			zap.Error(err),
		)
		return
	}
	if len(mappings) == 0 {
		return
	}

	users := make([]domain.UserRef, 0, len(mappings))
	for _, m := range mappings {
		users = append(users, m.Ref())
	}
	profile.Users = users
}

// reactivateIfMerged pulls a merged-away profile back into direct service
// before saving and returns the former master ID, or "" when the profile
// was not merged. The master-side cleanup happens in reconcileMaster.
func (uc *UseCase) reactivateIfMerged(profile *domain.Profile) string {
	if !profile.IsMerged() {
		return ""
	}
	masterID := profile.MergedToMasterID
	uc.logger.Info("reactivating merged profile",
		zap.String("profile_id", profile.ID),
		zap.String("master_id", masterID),
	)
	profile.Reactivate()
	return masterID
}

// reconcileMaster removes the profile's alias keys from the master it was
// merged into. Best-effort: every failure is logged and swallowed.
func (uc *UseCase) reconcileMaster(ctx context.Context, profile *domain.Profile, masterID string) {
	if masterID == "" {
		return
	}

	master, err := uc.masters.GetByID(ctx, profile.TenantID, masterID)
	if err != nil {
		uc.logger.Warn("master reconciliation load failed",
			zap.String("master_id", masterID),
			zap.Error(err),
		)
		return
	}

	removed := false
	for _, user := range profile.Users {
		if master.RemoveMergedID(domain.AliasKey(profile.TenantID, user.AppID, user.UserID)) {
			removed = true
		}
	}
	if !removed {
		return
	}

	master.Version++
	if err := uc.masters.Save(ctx, master); err != nil {
		uc.logger.Warn("master reconciliation save failed",
			zap.String("master_id", masterID),
			zap.Error(err),
		)
	}
}

// invalidateAliases evicts the cache entry for every triple mapped to the
// profile, not only the one that triggered the write.
func (uc *UseCase) invalidateAliases(ctx context.Context, profile *domain.Profile) {
	mappings, err := uc.mappings.FindByProfileID(ctx, profile.ID)
	if err != nil {
		uc.logger.Warn("cache fan-out lookup failed",
			zap.String("profile_id", profile.ID),
			zap.Error(err),
		)
		for _, user := range profile.Users {
			uc.cache.Evict(ctx, profile.TenantID, user.AppID, user.UserID)
		}
		return
	}
	for _, m := range mappings {
		uc.cache.Evict(ctx, m.TenantID, m.AppID, m.UserID)
	}
}

// shouldUpdate implements the idempotency rule: mutate only when the
// incoming business timestamp is strictly newer than the stored one.
func shouldUpdate(incoming time.Time, existing *time.Time) bool {
	if existing == nil {
		return true
	}
	return incoming.After(*existing)
}

// extractUpdatedAt reads the caller-declared business timestamp from event
// metadata. Absent or unparseable values default to now.
func extractUpdatedAt(metadata map[string]any) time.Time {
	raw, ok := metadata["updated_at"]
	if !ok {
		return time.Now()
	}

	switch v := raw.(type) {
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if ts, err := time.Parse(layout, v); err == nil {
				return ts
			}
		}
	case float64:
		return time.UnixMilli(int64(v))
	case int64:
		return time.UnixMilli(v)
	case time.Time:
		return v
	}
	return time.Now()
}

// mergeEvent folds incoming event fields into the stored profile:
// last-non-null wins for scalars, union for phone numbers, key-wise
// overwrite for the open maps.
func mergeEvent(profile *domain.Profile, event *domain.IdentityEvent) {
	if event.Type != "" {
		profile.Type = event.Type
	}
	profile.Traits = mergeTraits(profile.Traits, event.Traits)
	profile.Platforms = mergeMap(profile.Platforms, event.Platforms)
	profile.Campaign = mergeMap(profile.Campaign, event.Campaign)
	profile.Metadata = mergeMap(profile.Metadata, event.Metadata)
}

func mergeTraits(existing, incoming *domain.Traits) *domain.Traits {
	if incoming == nil {
		return existing
	}
	if existing == nil {
		return normalizeTraits(incoming)
	}

	if incoming.FullName != "" {
		existing.FullName = incoming.FullName
	}
	if incoming.FirstName != "" {
		existing.FirstName = incoming.FirstName
	}
	if incoming.LastName != "" {
		existing.LastName = incoming.LastName
	}
	if incoming.IDCard != "" {
		existing.IDCard = incoming.IDCard
	}
	if incoming.OldIDCard != "" {
		existing.OldIDCard = incoming.OldIDCard
	}
	if incoming.Email != "" {
		existing.Email = incoming.Email
	}
	if incoming.Gender != "" {
		existing.Gender = incoming.Gender
	}
	if incoming.DOB != "" {
		existing.DOB = incoming.DOB
	}
	if incoming.Address != "" {
		existing.Address = incoming.Address
	}
	if incoming.Religion != "" {
		existing.Religion = incoming.Religion
	}
	existing.Phones = unionPhones(existing.Phones, incoming.Phones)
	return existing
}

// unionPhones appends unseen numbers, preserving order and skipping blanks.
func unionPhones(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, p := range existing {
		seen[p] = struct{}{}
	}
	for _, p := range incoming {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		existing = append(existing, p)
	}
	return existing
}

func normalizeTraits(traits *domain.Traits) *domain.Traits {
	if traits == nil {
		return nil
	}
	out := *traits
	out.Phones = unionPhones(nil, traits.Phones)
	return &out
}

func mergeMap(existing, incoming map[string]any) map[string]any {
	if len(incoming) == 0 {
		return existing
	}
	if existing == nil {
		existing = make(map[string]any, len(incoming))
	}
	for k, v := range incoming {
		existing[k] = v
	}
	return existing
}
