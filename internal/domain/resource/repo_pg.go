package resource

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// queryable abstracts pgxpool.Pool, pgxpool.Conn and pgx.Tx.
type queryable interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

const resourceColumns = `id, external_id, resource_type, payload, version_tag,
	last_updated, synced_at, source_url, created_at`

type pgRepo struct {
	conn queryable
}

func NewPGRepository(conn queryable) Repository {
	return &pgRepo{conn: conn}
}

func (r *pgRepo) FindByExternalID(ctx context.Context, externalID string) (*ExternalResource, error) {
	res, err := scanResource(r.conn.QueryRow(ctx,
		`SELECT `+resourceColumns+` FROM fhir_resources WHERE external_id = $1`, externalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return res, err
}

// Upsert is a single statement; the unique constraint on external_id
// serializes concurrent writers of the same id. xmax is zero only for a
// freshly inserted row version.
func (r *pgRepo) Upsert(ctx context.Context, res *ExternalResource) (bool, error) {
	var inserted bool
	err := r.conn.QueryRow(ctx, `
		INSERT INTO fhir_resources (
			external_id, resource_type, payload, version_tag,
			last_updated, synced_at, source_url
		) VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, NULLIF($7, ''))
		ON CONFLICT ON CONSTRAINT fhir_resources_external_id_key DO UPDATE SET
			resource_type = EXCLUDED.resource_type,
			payload       = EXCLUDED.payload,
			version_tag   = EXCLUDED.version_tag,
			last_updated  = EXCLUDED.last_updated,
			synced_at     = EXCLUDED.synced_at,
			source_url    = EXCLUDED.source_url
		RETURNING id, created_at, (xmax = 0)`,
		res.ExternalID, res.ResourceType, []byte(res.Payload), res.VersionTag,
		res.LastUpdated, res.SyncedAt, res.SourceURL,
	).Scan(&res.ID, &res.CreatedAt, &inserted)
	if err != nil {
		return false, err
	}
	return inserted, nil
}

func (r *pgRepo) CountByType(ctx context.Context) (map[string]int64, error) {
	rows, err := r.conn.Query(ctx,
		`SELECT resource_type, COUNT(*) FROM fhir_resources GROUP BY resource_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			typ string
			n   int64
		)
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		counts[typ] = n
	}
	return counts, rows.Err()
}

func (r *pgRepo) List(ctx context.Context, f ListFilter, limit, offset int) ([]*ExternalResource, int, error) {
	where, args := f.sql()

	var total int
	if err := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM fhir_resources`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM fhir_resources%s ORDER BY synced_at DESC, external_id LIMIT $%d OFFSET $%d`,
		resourceColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*ExternalResource
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, res)
	}
	return out, total, rows.Err()
}

func (f ListFilter) sql() (string, []interface{}) {
	var (
		clauses []string
		args    []interface{}
	)
	if f.ResourceType != "" {
		args = append(args, f.ResourceType)
		clauses = append(clauses, fmt.Sprintf("resource_type = $%d", len(args)))
	}
	if !f.SyncedSince.IsZero() {
		args = append(args, f.SyncedSince)
		clauses = append(clauses, fmt.Sprintf("synced_at > $%d", len(args)))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanResource(row pgx.Row) (*ExternalResource, error) {
	var (
		res         ExternalResource
		payload     []byte
		versionTag  *string
		sourceURL   *string
		lastUpdated *time.Time
	)
	err := row.Scan(&res.ID, &res.ExternalID, &res.ResourceType, &payload, &versionTag,
		&lastUpdated, &res.SyncedAt, &sourceURL, &res.CreatedAt)
	if err != nil {
		return nil, err
	}
	res.Payload = payload
	if versionTag != nil {
		res.VersionTag = *versionTag
	}
	if sourceURL != nil {
		res.SourceURL = *sourceURL
	}
	if lastUpdated != nil {
		res.LastUpdated = *lastUpdated
	}
	return &res, nil
}
