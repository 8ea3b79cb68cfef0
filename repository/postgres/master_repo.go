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

type masterRepository struct {
	pool *pgxpool.Pool
}

// NewMasterProfileRepository instantiates a Postgres-backed master profile repository.
func NewMasterProfileRepository(pool *pgxpool.Pool) repository.MasterProfileRepository {
	return &masterRepository{pool: pool}
}

const masterColumns = `
	id, tenant_id, app_ids, status, anonymous, merged_ids, traits,
	segments, scores, consents, metadata,
	first_seen_at, last_seen_at, created_at, updated_at, version
`

func (r *masterRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.MasterProfile, error) {
	query := `SELECT ` + masterColumns + ` FROM master_profiles WHERE tenant_id = $1 AND id = $2`

	master, err := scanMaster(r.pool.QueryRow(ctx, query, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMasterNotFound
		}
		return nil, err
	}
	return master, nil
}

func (r *masterRepository) FindByMergedID(ctx context.Context, tenantID, aliasKey string) ([]*domain.MasterProfile, error) {
	query := `
		SELECT ` + masterColumns + `
		FROM master_profiles
		WHERE tenant_id = $1 AND merged_ids @> $2
		ORDER BY created_at, id
	`

	rows, err := r.pool.Query(ctx, query, tenantID, marshalJSON([]string{aliasKey}))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var masters []*domain.MasterProfile
	for rows.Next() {
		master, err := scanMaster(rows)
		if err != nil {
			return nil, err
		}
		masters = append(masters, master)
	}
	return masters, rows.Err()
}

func (r *masterRepository) Save(ctx context.Context, master *domain.MasterProfile) error {
	if master == nil {
		return domain.ErrInvalidPayload
	}

	const query = `
	INSERT INTO master_profiles (
		id, tenant_id, app_ids, status, anonymous, merged_ids, traits,
		segments, scores, consents, metadata,
		first_seen_at, last_seen_at, created_at, updated_at, version
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, COALESCE($14, NOW()), NOW(), $15)
	ON CONFLICT (tenant_id, id) DO UPDATE
	SET app_ids = EXCLUDED.app_ids,
		status = EXCLUDED.status,
		anonymous = EXCLUDED.anonymous,
		merged_ids = EXCLUDED.merged_ids,
		traits = EXCLUDED.traits,
		segments = EXCLUDED.segments,
		scores = EXCLUDED.scores,
		consents = EXCLUDED.consents,
		metadata = EXCLUDED.metadata,
		first_seen_at = EXCLUDED.first_seen_at,
		last_seen_at = EXCLUDED.last_seen_at,
		updated_at = NOW(),
		version = EXCLUDED.version
	RETURNING created_at, updated_at;
	`

	return r.pool.QueryRow(ctx, query,
		master.ID,
		master.TenantID,
		marshalJSON(master.AppIDs),
		string(master.Status),
		master.Anonymous,
		marshalJSON(master.MergedIDs),
		marshalJSON(master.Traits),
		marshalJSON(master.Segments),
		marshalJSON(master.Scores),
		marshalJSON(master.Consents),
		marshalJSON(master.Metadata),
		master.FirstSeenAt,
		master.LastSeenAt,
		nullTime(master.CreatedAt),
		master.Version,
	).Scan(&master.CreatedAt, &master.UpdatedAt)
}

func scanMaster(row pgx.Row) (*domain.MasterProfile, error) {
	var (
		master                              domain.MasterProfile
		status                              string
		appIDs, mergedIDs, traits, segments []byte
		scores, consents, metadata          []byte
	)

	if err := row.Scan(
		&master.ID,
		&master.TenantID,
		&appIDs,
		&status,
		&master.Anonymous,
		&mergedIDs,
		&traits,
		&segments,
		&scores,
		&consents,
		&metadata,
		&master.FirstSeenAt,
		&master.LastSeenAt,
		&master.CreatedAt,
		&master.UpdatedAt,
		&master.Version,
	); err != nil {
		return nil, err
	}

	master.Status = domain.ProfileStatus(status)
	if len(appIDs) > 0 {
		_ = json.Unmarshal(appIDs, &master.AppIDs)
	}
	if len(mergedIDs) > 0 {
		_ = json.Unmarshal(mergedIDs, &master.MergedIDs)
	}
	if len(traits) > 0 {
		_ = json.Unmarshal(traits, &master.Traits)
	}
	if len(segments) > 0 {
		_ = json.Unmarshal(segments, &master.Segments)
	}
	if len(scores) > 0 {
		_ = json.Unmarshal(scores, &master.Scores)
	}
	if len(consents) > 0 {
		_ = json.Unmarshal(consents, &master.Consents)
	}
	if len(metadata) > 0 {
		_ = json.Unmarshal(metadata, &master.Metadata)
	}
	return &master, nil
}
