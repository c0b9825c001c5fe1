// Package pg backs the registry, usage ledger, auth and bookmark stores
// with PostgreSQL through the database/sql pgx driver.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"death2data.org/internal/registry"
)

// Open connects to the database and tunes the pool.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// ContentStore implements registry.Store.
type ContentStore struct {
	db *sql.DB
}

var _ registry.Store = (*ContentStore)(nil)

// NewContentStore constructs the content repository.
func NewContentStore(db *sql.DB) *ContentStore {
	return &ContentStore{db: db}
}

func (s *ContentStore) Create(ctx context.Context, rec registry.Record) error {
	_, err := s.db.ExecContext(ctx, `
		insert into content
			(uuid, file_hash, filename, filepath, filesize, user_id, license, tags, notes, auto_registered, registered_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, rec.ID, rec.Fingerprint, rec.Filename, rec.Filepath, rec.Filesize,
		rec.OwnerID, rec.License, rec.Tags, rec.Notes, rec.Auto, rec.RegisteredAt)
	if isUniqueViolation(err) {
		return registry.ErrConflict
	}
	return err
}

func (s *ContentStore) GetByID(ctx context.Context, id string) (registry.Record, error) {
	var rec registry.Record
	err := s.db.QueryRowContext(ctx, `
		select c.uuid, c.file_hash, c.filename, c.filepath, c.filesize,
		       c.user_id, u.email, c.license, c.tags, c.notes, c.auto_registered, c.registered_at
		from content c
		join users u on u.id = c.user_id
		where c.uuid = $1
	`, id).Scan(&rec.ID, &rec.Fingerprint, &rec.Filename, &rec.Filepath, &rec.Filesize,
		&rec.OwnerID, &rec.OwnerEmail, &rec.License, &rec.Tags, &rec.Notes, &rec.Auto, &rec.RegisteredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.Record{}, registry.ErrNotFound
	}
	if err != nil {
		return registry.Record{}, err
	}
	return rec, nil
}

func (s *ContentStore) ListByOwner(ctx context.Context, ownerID string, limit int) ([]registry.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		select uuid, file_hash, filename, filepath, filesize, user_id, license, tags, notes, auto_registered, registered_at
		from content
		where user_id = $1
		order by registered_at desc
		limit $2
	`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []registry.Record
	for rows.Next() {
		var rec registry.Record
		if err := rows.Scan(&rec.ID, &rec.Fingerprint, &rec.Filename, &rec.Filepath, &rec.Filesize,
			&rec.OwnerID, &rec.License, &rec.Tags, &rec.Notes, &rec.Auto, &rec.RegisteredAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *ContentStore) DeleteByOwner(ctx context.Context, ownerID string) error {
	_, err := s.db.ExecContext(ctx, `delete from content where user_id = $1`, ownerID)
	return err
}

func (s *ContentStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `select count(*) from content`).Scan(&n)
	return n, err
}
