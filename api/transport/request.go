package transport

import "github.com/opencdp/profile-engine/domain"

// TrackRequest is the synchronous ingest payload. It mirrors the record
// format accepted on the inbound topic.
type TrackRequest struct {
	TenantID    string         `json:"tenant_id"`
	AppID       string         `json:"app_id"`
	UserID      string         `json:"user_id"`
	AnonymousID string         `json:"anonymous_id"`
	Type        string         `json:"type"`
	Traits      *domain.Traits `json:"traits"`
	Platforms   map[string]any `json:"platforms"`
	Campaign    map[string]any `json:"campaign"`
	Metadata    map[string]any `json:"metadata"`
}

// Event converts the request into the canonical event shape.
func (r *TrackRequest) Event() *domain.IdentityEvent {
	return &domain.IdentityEvent{
		TenantID:    r.TenantID,
		AppID:       r.AppID,
		UserID:      r.UserID,
		AnonymousID: r.AnonymousID,
		Type:        r.Type,
		Traits:      r.Traits,
		Platforms:   r.Platforms,
		Campaign:    r.Campaign,
		Metadata:    r.Metadata,
	}
}

type AutoMergeRequest struct {
	TenantID  string `json:"tenant_id"`
	Strategy  string `json:"strategy"`
	DryRun    bool   `json:"dry_run"`
	MaxGroups int    `json:"max_groups"`
}

type ManualMergeRequest struct {
	TenantID      string   `json:"tenant_id"`
	ProfileIDs    []string `json:"profile_ids"`
	Force         bool     `json:"force"`
	KeepOriginals bool     `json:"keep_originals"`
}
