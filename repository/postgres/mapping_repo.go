package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opencdp/profile-engine/domain"
	"github.com/opencdp/profile-engine/repository"
)

type mappingRepository struct {
	pool *pgxpool.Pool
}

// NewMappingRepository instantiates a Postgres-backed identity mapping index.
// Reads after Save observe the write without any refresh step: the upsert
// commits before returning.
func NewMappingRepository(pool *pgxpool.Pool) repository.MappingRepository {
	return &mappingRepository{pool: pool}
}

func (r *mappingRepository) FindProfileID(ctx context.Context, tenantID, appID, userID string) (string, error) {
	const query = `
		SELECT profile_id FROM identity_mappings
		WHERE tenant_id = $1 AND app_id = $2 AND user_id = $3
	`

	var profileID string
	if err := r.pool.QueryRow(ctx, query, tenantID, appID, userID).Scan(&profileID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrMappingNotFound
		}
		return "", err
	}
	return profileID, nil
}

func (r *mappingRepository) Exists(ctx context.Context, tenantID, appID, userID string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM identity_mappings
			WHERE tenant_id = $1 AND app_id = $2 AND user_id = $3
		)
	`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, tenantID, appID, userID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *mappingRepository) Save(ctx context.Context, mapping *domain.Mapping) error {
	if mapping == nil {
		return domain.ErrInvalidPayload
	}

	// created_at survives re-pointing the triple at a different profile.
	const query = `
	INSERT INTO identity_mappings (tenant_id, app_id, user_id, profile_id, created_at, updated_at)
	VALUES ($1, $2, $3, $4, NOW(), NOW())
	ON CONFLICT (tenant_id, app_id, user_id) DO UPDATE
	SET profile_id = EXCLUDED.profile_id,
		updated_at = NOW()
	RETURNING created_at, updated_at;
	`

	return r.pool.QueryRow(ctx, query,
		mapping.TenantID,
		mapping.AppID,
		mapping.UserID,
		mapping.ProfileID,
	).Scan(&mapping.CreatedAt, &mapping.UpdatedAt)
}

func (r *mappingRepository) Delete(ctx context.Context, tenantID, appID, userID string) error {
	const query = `
		DELETE FROM identity_mappings
		WHERE tenant_id = $1 AND app_id = $2 AND user_id = $3
	`
	_, err := r.pool.Exec(ctx, query, tenantID, appID, userID)
	return err
}

func (r *mappingRepository) FindByProfileID(ctx context.Context, profileID string) ([]domain.Mapping, error) {
	const query = `
		SELECT tenant_id, app_id, user_id, profile_id, created_at, updated_at
		FROM identity_mappings
		WHERE profile_id = $1
		ORDER BY tenant_id, app_id, user_id
	`

	rows, err := r.pool.Query(ctx, query, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mappings []domain.Mapping
	for rows.Next() {
		var m domain.Mapping
		if err := rows.Scan(&m.TenantID, &m.AppID, &m.UserID, &m.ProfileID, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

func (r *mappingRepository) CountByProfileID(ctx context.Context, profileID string) (int, error) {
	const query = `SELECT COUNT(*) FROM identity_mappings WHERE profile_id = $1`

	var count int
	if err := r.pool.QueryRow(ctx, query, profileID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
