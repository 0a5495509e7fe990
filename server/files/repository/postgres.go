package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"s4/server/common/apperr"
	"s4/server/common/infra/db"
	"s4/server/files/domain"
)

// Migrations creates the file_records table. Key and sequencer use the C collation so the
// database orders them bytewise, the same way Go compares strings.
var Migrations = []db.Migration{
	{
		Version: "000001_create_file_records",
		SQL: `
			CREATE TABLE IF NOT EXISTS file_records (
				key                 TEXT COLLATE "C" PRIMARY KEY,
				owner_id            TEXT        NOT NULL,
				uploaded_at         TIMESTAMPTZ NOT NULL,
				size_bytes          BIGINT      NOT NULL,
				content_type        TEXT        NOT NULL DEFAULT '',
				status              TEXT        NOT NULL,
				upload_completed_at TIMESTAMPTZ NOT NULL,
				sequencer           TEXT COLLATE "C" NOT NULL DEFAULT '',
				etag                TEXT        NOT NULL DEFAULT ''
			);
			CREATE INDEX IF NOT EXISTS idx_file_records_owner_listing
				ON file_records (owner_id, uploaded_at DESC, key DESC);
		`,
	},
}

// pgxQuerier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Postgres struct {
	db pgxQuerier
}

func NewPostgres(db pgxQuerier) *Postgres {
	return &Postgres{db: db}
}

const upsertIfNewerSQL = `
	INSERT INTO file_records (key, owner_id, uploaded_at, size_bytes, content_type, status, upload_completed_at, sequencer, etag)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (key) DO UPDATE SET
		owner_id            = EXCLUDED.owner_id,
		uploaded_at         = EXCLUDED.uploaded_at,
		size_bytes          = EXCLUDED.size_bytes,
		content_type        = EXCLUDED.content_type,
		status              = EXCLUDED.status,
		upload_completed_at = EXCLUDED.upload_completed_at,
		sequencer           = EXCLUDED.sequencer,
		etag                = EXCLUDED.etag
	WHERE (file_records.upload_completed_at, file_records.sequencer)
	    < (EXCLUDED.upload_completed_at, EXCLUDED.sequencer)
`

func (p *Postgres) UpsertIfNewer(ctx context.Context, rec domain.FileRecord) (bool, error) {
	rec = normalize(rec)
	tag, err := p.db.Exec(ctx, upsertIfNewerSQL,
		rec.Key, rec.OwnerID, rec.UploadedAt, rec.SizeBytes, rec.ContentType,
		string(rec.Status), rec.UploadCompletedAt, rec.Sequencer, rec.ETag,
	)
	if err != nil {
		return false, apperr.TransientDependencyFailure.Wrap(fmt.Errorf("upsert file record %q: %w", rec.Key, err))
	}
	return tag.RowsAffected() > 0, nil
}

const selectColumns = `key, owner_id, uploaded_at, size_bytes, content_type, status, upload_completed_at, sequencer, etag`

func (p *Postgres) Get(ctx context.Context, key string) (domain.FileRecord, error) {
	rec, err := scanRecord(p.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM file_records WHERE key = $1`, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.FileRecord{}, ErrNotFound
		}
		return domain.FileRecord{}, apperr.TransientDependencyFailure.Wrap(fmt.Errorf("get file record %q: %w", key, err))
	}
	return rec, nil
}

// listQuery always binds owner_id first; the cursor can only narrow the owner's rows.
func listQuery(ownerID string, after *Cursor, limit int) (string, []any) {
	query := `SELECT ` + selectColumns + ` FROM file_records WHERE owner_id = $1`
	args := []any{ownerID}
	idx := 2
	if after != nil {
		query += fmt.Sprintf(` AND (uploaded_at, key) < ($%d, $%d)`, idx, idx+1)
		args = append(args, after.UploadedAt, after.Key)
		idx += 2
	}
	query += fmt.Sprintf(` ORDER BY uploaded_at DESC, key DESC LIMIT $%d`, idx)
	args = append(args, limit+1)
	return query, args
}

func (p *Postgres) List(ctx context.Context, ownerID string, after *Cursor, limit int) (Page, error) {
	limit = ClampLimit(limit)
	query, args := listQuery(ownerID, after, limit)
	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return Page{}, apperr.TransientDependencyFailure.Wrap(fmt.Errorf("list file records: %w", err))
	}
	defer rows.Close()

	records := make([]domain.FileRecord, 0, limit+1)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return Page{}, fmt.Errorf("scan file record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return Page{}, apperr.TransientDependencyFailure.Wrap(fmt.Errorf("list file records: %w", err))
	}
	return pageFrom(records, limit), nil
}

func (p *Postgres) Delete(ctx context.Context, key string) error {
	tag, err := p.db.Exec(ctx, `DELETE FROM file_records WHERE key = $1`, key)
	if err != nil {
		return apperr.TransientDependencyFailure.Wrap(fmt.Errorf("delete file record %q: %w", key, err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRecord(row pgx.Row) (domain.FileRecord, error) {
	var (
		rec    domain.FileRecord
		status string
	)
	if err := row.Scan(&rec.Key, &rec.OwnerID, &rec.UploadedAt, &rec.SizeBytes, &rec.ContentType, &status, &rec.UploadCompletedAt, &rec.Sequencer, &rec.ETag); err != nil {
		return domain.FileRecord{}, err
	}
	rec.Status = domain.Status(status)
	rec.UploadedAt = rec.UploadedAt.UTC()
	rec.UploadCompletedAt = rec.UploadCompletedAt.UTC()
	return rec, nil
}
