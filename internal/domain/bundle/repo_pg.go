package bundle

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// queryable abstracts pgxpool.Pool, pgxpool.Conn and pgx.Tx.
type queryable interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

const snapshotColumns = `id, bundle_type, payload, resource_count, query_context, created_at`

type pgRepo struct {
	conn queryable
}

func NewPGRepository(conn queryable) Repository {
	return &pgRepo{conn: conn}
}

func (r *pgRepo) Create(ctx context.Context, s *Snapshot) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO fhir_bundles (`+snapshotColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.BundleType, []byte(s.Payload), s.ResourceCount, s.QueryContext, s.CreatedAt,
	)
	return err
}

func (r *pgRepo) List(ctx context.Context, bundleType string, limit, offset int) ([]*Snapshot, int, error) {
	var total int
	err := r.conn.QueryRow(ctx,
		`SELECT COUNT(*) FROM fhir_bundles WHERE ($1::text = '' OR bundle_type = $1)`, bundleType).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.conn.Query(ctx, `
		SELECT `+snapshotColumns+` FROM fhir_bundles
		WHERE ($1::text = '' OR bundle_type = $1)
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`, bundleType, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Snapshot
	for rows.Next() {
		var (
			s       Snapshot
			payload []byte
		)
		if err := rows.Scan(&s.ID, &s.BundleType, &payload, &s.ResourceCount, &s.QueryContext, &s.CreatedAt); err != nil {
			return nil, 0, err
		}
		s.Payload = payload
		out = append(out, &s)
	}
	return out, total, rows.Err()
}
