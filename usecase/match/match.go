// Package match implements the ordered matching strategies used to attach
// an unmapped identity to an existing profile.
package match

import (
	"context"

	"go.uber.org/zap"

	"github.com/opencdp/profile-engine/domain"
	"github.com/opencdp/profile-engine/pkg/normalize"
	"github.com/opencdp/profile-engine/repository"
)

// Strategy names reported alongside a match.
const (
	StrategyIDCard   = "idcard"
	StrategyEmailDOB = "email_dob"
)

type UseCase struct {
	profiles repository.ProfileRepository
	logger   *zap.Logger
}

func New(profiles repository.ProfileRepository, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{profiles: profiles, logger: logger}
}

// FindMatch evaluates the strategies in priority order and returns the
// first hit. Later strategies are not evaluated once one matches. A store
// error is logged and treated as no match for that strategy, which biases
// toward profile creation rather than failing the event.
func (uc *UseCase) FindMatch(ctx context.Context, tenantID string, traits *domain.Traits) (*domain.Profile, string) {
	if traits == nil {
		return nil, ""
	}

	if profile := uc.matchByIDCard(ctx, tenantID, traits.IDCard); profile != nil {
		return profile, StrategyIDCard
	}
	if profile := uc.matchByEmailDOB(ctx, tenantID, traits.Email, traits.DOB); profile != nil {
		return profile, StrategyEmailDOB
	}
	return nil, ""
}

func (uc *UseCase) matchByIDCard(ctx context.Context, tenantID, idcard string) *domain.Profile {
	if idcard == "" {
		return nil
	}

	candidates, err := uc.profiles.FindActiveByIDCard(ctx, tenantID, idcard)
	if err != nil {
		uc.logger.Warn("idcard match lookup failed",
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
		return nil
	}
	if len(candidates) == 0 {
		return nil
	}
	// Tie-break: first row the store returns.
	return candidates[0]
}

func (uc *UseCase) matchByEmailDOB(ctx context.Context, tenantID, email, dob string) *domain.Profile {
	if email == "" || dob == "" {
		return nil
	}

	candidates, err := uc.profiles.FindActiveByEmail(ctx, tenantID, normalize.Email(email))
	if err != nil {
		uc.logger.Warn("email match lookup failed",
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
		return nil
	}

	// The stored date-of-birth string must equal the supplied one exactly;
	// no cross-format normalization at match time.
	for _, candidate := range candidates {
		if candidate.Traits != nil && candidate.Traits.DOB == dob {
			return candidate
		}
	}
	return nil
}
