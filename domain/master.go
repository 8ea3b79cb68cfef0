package domain

import "time"

// MasterProfileIDPrefix distinguishes master profile IDs from profile IDs.
const MasterProfileIDPrefix = "mp_"

// MasterTraits aggregates traits across merged profiles. Emails, Phones and
// IDCards are de-duplicated unions; the scalar fields take the first
// non-empty value across sources in input order.
type MasterTraits struct {
	Emails    []string `json:"emails,omitempty"`
	Phones    []string `json:"phones,omitempty"`
	IDCards   []string `json:"idcards,omitempty"`
	FirstName string   `json:"first_name,omitempty"`
	LastName  string   `json:"last_name,omitempty"`
	Gender    string   `json:"gender,omitempty"`
	DOB       string   `json:"dob,omitempty"`
	Address   string   `json:"address,omitempty"`
}

// MasterProfile is the aggregate produced by merging two or more profiles.
// MergedIDs holds the composite alias keys of the absorbed sources and
// shrinks when a source is reactivated; the master itself is never deleted
// automatically, even once MergedIDs is empty.
type MasterProfile struct {
	ID          string             `json:"id"`
	TenantID    string             `json:"tenant_id"`
	AppIDs      []string           `json:"app_ids,omitempty"`
	Status      ProfileStatus      `json:"status"`
	Anonymous   bool               `json:"anonymous"`
	MergedIDs   []string           `json:"merged_ids,omitempty"`
	Traits      *MasterTraits      `json:"traits,omitempty"`
	Segments    []string           `json:"segments,omitempty"`
	Scores      map[string]float64 `json:"scores,omitempty"`
	Consents    map[string]bool    `json:"consents,omitempty"`
	Metadata    map[string]any     `json:"metadata,omitempty"`
	FirstSeenAt time.Time          `json:"first_seen_at"`
	LastSeenAt  time.Time          `json:"last_seen_at"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	Version     int64              `json:"version"`
}

// RemoveMergedID drops one source key from MergedIDs. Returns false when
// the key was not a member.
func (m *MasterProfile) RemoveMergedID(key string) bool {
	for i, id := range m.MergedIDs {
		if id == key {
			m.MergedIDs = append(m.MergedIDs[:i], m.MergedIDs[i+1:]...)
			return true
		}
	}
	return false
}
