package domain

import "time"

// Mapping links one external identity triple to a canonical profile.
// Created at most once per triple and then overwritten in place; the merge
// flow never deletes mappings.
type Mapping struct {
	TenantID  string    `json:"tenant_id"`
	AppID     string    `json:"app_id"`
	UserID    string    `json:"user_id"`
	ProfileID string    `json:"profile_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the stored document key for this mapping.
func (m *Mapping) Key() string {
	return AliasKey(m.TenantID, m.AppID, m.UserID)
}

// Ref returns the alias carried by this mapping.
func (m *Mapping) Ref() UserRef {
	return UserRef{AppID: m.AppID, UserID: m.UserID}
}
