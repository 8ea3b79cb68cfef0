package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opencdp/profile-engine/domain"
	"github.com/opencdp/profile-engine/repository"
)

type profileRepository struct {
	pool *pgxpool.Pool
}

// NewProfileRepository instantiates a Postgres-backed profile repository.
func NewProfileRepository(pool *pgxpool.Pool) repository.ProfileRepository {
	return &profileRepository{pool: pool}
}

const profileColumns = `
	id, tenant_id, type, status, users, traits, platforms, campaign, metadata,
	created_at, updated_at, first_seen_at, last_seen_at, version,
	merged_to_master_id, merged_at
`

func (r *profileRepository) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`

	profile, err := scanProfile(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, err
	}
	return profile, nil
}

func (r *profileRepository) Save(ctx context.Context, profile *domain.Profile) error {
	if profile == nil {
		return domain.ErrInvalidPayload
	}

	const query = `
	INSERT INTO profiles (
		id, tenant_id, type, status, users, traits, platforms, campaign, metadata,
		created_at, updated_at, first_seen_at, last_seen_at, version,
		merged_to_master_id, merged_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10, NOW()), $11, $12, $13, $14, NULLIF($15, ''), $16)
	ON CONFLICT (id) DO UPDATE
	SET status = EXCLUDED.status,
		users = EXCLUDED.users,
		traits = EXCLUDED.traits,
		platforms = EXCLUDED.platforms,
		campaign = EXCLUDED.campaign,
		metadata = EXCLUDED.metadata,
		updated_at = EXCLUDED.updated_at,
		first_seen_at = EXCLUDED.first_seen_at,
		last_seen_at = EXCLUDED.last_seen_at,
		version = EXCLUDED.version,
		merged_to_master_id = EXCLUDED.merged_to_master_id,
		merged_at = EXCLUDED.merged_at
	RETURNING created_at;
	`

	return r.pool.QueryRow(ctx, query,
		profile.ID,
		profile.TenantID,
		profile.Type,
		string(profile.Status),
		marshalJSON(profile.Users),
		marshalJSON(profile.Traits),
		marshalJSON(profile.Platforms),
		marshalJSON(profile.Campaign),
		marshalJSON(profile.Metadata),
		nullTime(profile.CreatedAt),
		profile.UpdatedAt,
		profile.FirstSeenAt,
		profile.LastSeenAt,
		profile.Version,
		profile.MergedToMasterID,
		profile.MergedAt,
	).Scan(&profile.CreatedAt)
}

func (r *profileRepository) FindActiveByIDCard(ctx context.Context, tenantID, idcard string) ([]*domain.Profile, error) {
	query := `
		SELECT ` + profileColumns + `
		FROM profiles
		WHERE tenant_id = $1 AND status = 'ACTIVE' AND traits->>'idcard' = $2
		ORDER BY id
	`
	return r.queryProfiles(ctx, query, tenantID, idcard)
}

func (r *profileRepository) FindActiveByEmail(ctx context.Context, tenantID, email string) ([]*domain.Profile, error) {
	query := `
		SELECT ` + profileColumns + `
		FROM profiles
		WHERE tenant_id = $1 AND status = 'ACTIVE'
		  AND LOWER(TRIM(traits->>'email')) = $2
		ORDER BY id
	`
	return r.queryProfiles(ctx, query, tenantID, email)
}

func (r *profileRepository) ListActive(ctx context.Context, tenantID string, page, pageSize int) ([]*domain.Profile, bool, error) {
	// Fetch one extra row to detect whether more pages remain.
	query := `
		SELECT ` + profileColumns + `
		FROM profiles
		WHERE tenant_id = $1 AND status = 'ACTIVE'
		ORDER BY id
		LIMIT $2 OFFSET $3
	`
	profiles, err := r.queryProfiles(ctx, query, tenantID, pageSize+1, page*pageSize)
	if err != nil {
		return nil, false, err
	}

	hasMore := len(profiles) > pageSize
	if hasMore {
		profiles = profiles[:pageSize]
	}
	return profiles, hasMore, nil
}

func (r *profileRepository) queryProfiles(ctx context.Context, query string, args ...any) ([]*domain.Profile, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*domain.Profile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, profile)
	}
	return profiles, rows.Err()
}

func scanProfile(row pgx.Row) (*domain.Profile, error) {
	var (
		profile                  domain.Profile
		status                   string
		users, traits, platforms []byte
		campaign, metadata       []byte
		mergedToMasterID         *string
	)

	if err := row.Scan(
		&profile.ID,
		&profile.TenantID,
		&profile.Type,
		&status,
		&users,
		&traits,
		&platforms,
		&campaign,
		&metadata,
		&profile.CreatedAt,
		&profile.UpdatedAt,
		&profile.FirstSeenAt,
		&profile.LastSeenAt,
		&profile.Version,
		&mergedToMasterID,
		&profile.MergedAt,
	); err != nil {
		return nil, err
	}

	profile.Status = domain.ProfileStatus(status)
	if mergedToMasterID != nil {
		profile.MergedToMasterID = *mergedToMasterID
	}
	if len(users) > 0 {
		_ = json.Unmarshal(users, &profile.Users)
	}
	if len(traits) > 0 {
		_ = json.Unmarshal(traits, &profile.Traits)
	}
	if len(platforms) > 0 {
		_ = json.Unmarshal(platforms, &profile.Platforms)
	}
	if len(campaign) > 0 {
		_ = json.Unmarshal(campaign, &profile.Campaign)
	}
	if len(metadata) > 0 {
		_ = json.Unmarshal(metadata, &profile.Metadata)
	}
	return &profile, nil
}
