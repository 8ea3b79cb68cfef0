package domain

import "time"

// ProfileStatus is the lifecycle state of a canonical profile.
type ProfileStatus string

const (
	ProfileStatusActive  ProfileStatus = "ACTIVE"
	ProfileStatusMerged  ProfileStatus = "MERGED"
	ProfileStatusDeleted ProfileStatus = "DELETED"
)

// Traits holds the structured identity attributes of a profile. Phones is a
// set of normalized numbers; every other field is a scalar.
type Traits struct {
	FullName  string   `json:"full_name,omitempty"`
	FirstName string   `json:"first_name,omitempty"`
	LastName  string   `json:"last_name,omitempty"`
	IDCard    string   `json:"idcard,omitempty"`
	OldIDCard string   `json:"old_idcard,omitempty"`
	Phones    []string `json:"phones,omitempty"`
	Email     string   `json:"email,omitempty"`
	Gender    string   `json:"gender,omitempty"`
	DOB       string   `json:"dob,omitempty"`
	Address   string   `json:"address,omitempty"`
	Religion  string   `json:"religion,omitempty"`
}

// UserRef is one external alias of a profile within an app.
type UserRef struct {
	AppID  string `json:"app_id"`
	UserID string `json:"user_id"`
}

// Profile is the canonical customer record. Users is computed from the
// mapping index on every save and must never be hand-edited. UpdatedAt is
// the business timestamp supplied by callers and drives idempotency; the
// remaining timestamps are system-controlled.
type Profile struct {
	ID               string         `json:"id"`
	TenantID         string         `json:"tenant_id"`
	Type             string         `json:"type,omitempty"`
	Status           ProfileStatus  `json:"status"`
	Users            []UserRef      `json:"users,omitempty"`
	Traits           *Traits        `json:"traits,omitempty"`
	Platforms        map[string]any `json:"platforms,omitempty"`
	Campaign         map[string]any `json:"campaign,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        *time.Time     `json:"updated_at,omitempty"`
	FirstSeenAt      *time.Time     `json:"first_seen_at,omitempty"`
	LastSeenAt       *time.Time     `json:"last_seen_at,omitempty"`
	Version          int64          `json:"version"`
	MergedToMasterID string         `json:"merged_to_master_id,omitempty"`
	MergedAt         *time.Time     `json:"merged_at,omitempty"`
}

// AliasKey builds the composite identity key. The pipe-joined format is
// shared with cache keys, partition keys, and stored mapping IDs, and must
// not change.
func AliasKey(tenantID, appID, userID string) string {
	return tenantID + "|" + appID + "|" + userID
}

// IsActive reports whether the profile can participate in matching.
func (p *Profile) IsActive() bool {
	return p != nil && p.Status == ProfileStatusActive
}

// IsMerged reports whether the profile is absorbed into a master profile.
func (p *Profile) IsMerged() bool {
	return p != nil && p.MergedToMasterID != ""
}

// Reactivate pulls a merged-away profile back into direct service.
func (p *Profile) Reactivate() {
	p.MergedToMasterID = ""
	p.MergedAt = nil
	p.Status = ProfileStatusActive
}
