package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencdp/profile-engine/domain"
)

func validEvent() *domain.IdentityEvent {
	return &domain.IdentityEvent{
		TenantID: "t1",
		AppID:    "app",
		UserID:   "u1",
		Type:     "identify",
	}
}

func TestValidate(t *testing.T) {
	pipeline := New(nil)

	tests := []struct {
		name    string
		mutate  func(*domain.IdentityEvent)
		wantErr bool
	}{
		{"valid", func(e *domain.IdentityEvent) {}, false},
		{"missing tenant", func(e *domain.IdentityEvent) { e.TenantID = "" }, true},
		{"missing app", func(e *domain.IdentityEvent) { e.AppID = "" }, true},
		{"missing type", func(e *domain.IdentityEvent) { e.Type = "" }, true},
		{"missing both ids", func(e *domain.IdentityEvent) { e.UserID = "" }, true},
		{"anonymous only is valid", func(e *domain.IdentityEvent) {
			e.UserID = ""
			e.AnonymousID = "device-1"
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := validEvent()
			tt.mutate(event)
			err := pipeline.Validate(event)
			if tt.wantErr {
				assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateNilEvent(t *testing.T) {
	assert.Error(t, New(nil).Validate(nil))
}

func TestEnrichIdentifiedUser(t *testing.T) {
	enriched := New(nil).Enrich(validEvent())

	assert.Equal(t, "uid:u1", enriched.ProfileID)
	assert.Equal(t, "t1|uid:u1", enriched.PartitionKey)
	assert.NotEmpty(t, enriched.EnrichedID)
	assert.False(t, enriched.NormalizedTime.IsZero())
}

func TestEnrichAnonymousUser(t *testing.T) {
	event := validEvent()
	event.UserID = ""
	event.AnonymousID = "device-1"

	enriched := New(nil).Enrich(event)
	assert.Equal(t, "anon:device-1", enriched.ProfileID)
	assert.Equal(t, "t1|anon:device-1", enriched.PartitionKey)
}

func TestEnrichIDsAreUnique(t *testing.T) {
	pipeline := New(nil)
	a := pipeline.Enrich(validEvent())
	b := pipeline.Enrich(validEvent())
	assert.NotEqual(t, a.EnrichedID, b.EnrichedID)
}

func TestProcess(t *testing.T) {
	pipeline := New(nil)

	enriched, err := pipeline.Process(validEvent())
	require.NoError(t, err)
	assert.Equal(t, "uid:u1", enriched.ProfileID)

	_, err = pipeline.Process(&domain.IdentityEvent{AppID: "app"})
	assert.Error(t, err)
}
