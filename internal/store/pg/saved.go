package pg

import (
	"context"
	"database/sql"

	"death2data.org/internal/saved"
)

// SaveStore implements saved.Store.
type SaveStore struct {
	db *sql.DB
}

var _ saved.Store = (*SaveStore)(nil)

// NewSaveStore constructs the bookmark repository.
func NewSaveStore(db *sql.DB) *SaveStore {
	return &SaveStore{db: db}
}

func (s *SaveStore) Create(ctx context.Context, item saved.Item) error {
	_, err := s.db.ExecContext(ctx, `
		insert into saved(id, user_id, title, url, snippet, created_at)
		values ($1,$2,$3,$4,$5,$6)
	`, item.ID, item.UserID, item.Title, item.URL, item.Snippet, item.CreatedAt)
	return err
}

func (s *SaveStore) ListByUser(ctx context.Context, userID string, limit int) ([]saved.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, title, url, snippet, created_at
		from saved
		where user_id = $1
		order by created_at desc
		limit $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []saved.Item
	for rows.Next() {
		var item saved.Item
		if err := rows.Scan(&item.ID, &item.UserID, &item.Title, &item.URL, &item.Snippet, &item.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *SaveStore) Delete(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from saved where id = $1 and user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return saved.ErrNotFound
	}
	return nil
}

func (s *SaveStore) DeleteByUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `delete from saved where user_id = $1`, userID)
	return err
}
