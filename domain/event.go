package domain

import "time"

// IdentityEvent is one raw identify/track record as published to the
// inbound topic. Either UserID or AnonymousID must be present.
type IdentityEvent struct {
	TenantID    string         `json:"tenant_id"`
	AppID       string         `json:"app_id"`
	UserID      string         `json:"user_id,omitempty"`
	AnonymousID string         `json:"anonymous_id,omitempty"`
	Type        string         `json:"type"`
	Traits      *Traits        `json:"traits,omitempty"`
	Platforms   map[string]any `json:"platforms,omitempty"`
	Campaign    map[string]any `json:"campaign,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ExternalUserID returns the identifier used for mapping lookups: the
// declared user ID when present, otherwise the anonymous device ID.
func (e *IdentityEvent) ExternalUserID() string {
	if e.UserID != "" {
		return e.UserID
	}
	return e.AnonymousID
}

// EnrichedEvent is the record published to the enriched topic after
// validation and enrichment.
type EnrichedEvent struct {
	IdentityEvent

	ProfileID      string    `json:"profile_id"`
	NormalizedTime time.Time `json:"normalized_time"`
	PartitionKey   string    `json:"partition_key"`
	EnrichedID     string    `json:"enriched_id"`
}

// Outcome is the lifecycle result of processing one identity event.
type Outcome string

const (
	OutcomeCreated     Outcome = "CREATED"
	OutcomeUpdated     Outcome = "UPDATED"
	OutcomeSkipped     Outcome = "SKIPPED"
	OutcomeMappingOnly Outcome = "MAPPING_ONLY"
)
