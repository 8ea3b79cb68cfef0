// Package enrich validates and enriches raw identity events before they
// reach the merge engine.
package enrich

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opencdp/profile-engine/domain"
)

type Pipeline struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{logger: logger}
}

// Validate checks the required identity fields. Invalid events are meant
// to be dropped by the caller; the warning here is the only trace they
// leave.
func (p *Pipeline) Validate(event *domain.IdentityEvent) error {
	if event == nil {
		return domain.ErrInvalidEvent
	}

	var missing string
	switch {
	case event.TenantID == "":
		missing = "tenant_id"
	case event.AppID == "":
		missing = "app_id"
	case event.Type == "":
		missing = "type"
	case event.UserID == "" && event.AnonymousID == "":
		missing = "user_id or anonymous_id"
	}
	if missing == "" {
		return nil
	}

	p.logger.Warn("dropping invalid identity event",
		zap.String("tenant_id", event.TenantID),
		zap.String("app_id", event.AppID),
		zap.String("missing", missing),
	)
	return domain.WrapError(domain.ErrCodeInvalid, "missing "+missing, domain.ErrInvalidEvent)
}

// Enrich stamps the event with its placeholder profile ID, partition key,
// normalized time, and a unique enrichment ID. The placeholder is not the
// canonical profile ID; resolution happens in the merge engine.
func (p *Pipeline) Enrich(event *domain.IdentityEvent) *domain.EnrichedEvent {
	profileID := "anon:" + event.AnonymousID
	if event.UserID != "" {
		profileID = "uid:" + event.UserID
	}

	return &domain.EnrichedEvent{
		IdentityEvent:  *event,
		ProfileID:      profileID,
		NormalizedTime: time.Now(),
		PartitionKey:   event.TenantID + "|" + profileID,
		EnrichedID:     uuid.NewString(),
	}
}

// Process runs validation then enrichment in one step.
func (p *Pipeline) Process(event *domain.IdentityEvent) (*domain.EnrichedEvent, error) {
	if err := p.Validate(event); err != nil {
		return nil, err
	}
	return p.Enrich(event), nil
}
