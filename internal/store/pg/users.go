package pg

import (
	"context"
	"database/sql"
	"errors"

	"death2data.org/internal/auth"
)

// UserStore implements auth.Store.
type UserStore struct {
	db *sql.DB
}

var _ auth.Store = (*UserStore)(nil)

// NewUserStore constructs the account repository.
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) CreateUser(ctx context.Context, u auth.User) error {
	_, err := s.db.ExecContext(ctx, `
		insert into users(id, email, token_hash, tier, created_at)
		values ($1,$2,$3,$4,$5)
	`, u.ID, u.Email, u.TokenHash, u.Tier, u.CreatedAt)
	if isUniqueViolation(err) {
		return auth.ErrAlreadyExists
	}
	return err
}

func (s *UserStore) UserByID(ctx context.Context, id string) (auth.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		select id, email, token_hash, tier, created_at from users where id = $1
	`, id))
}

func (s *UserStore) UserByTokenHash(ctx context.Context, tokenHash string) (auth.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		select id, email, token_hash, tier, created_at from users where token_hash = $1
	`, tokenHash))
}

func (s *UserStore) EmailByID(ctx context.Context, id string) (string, error) {
	var email string
	err := s.db.QueryRowContext(ctx, `select email from users where id = $1`, id).Scan(&email)
	if errors.Is(err, sql.ErrNoRows) {
		return "", auth.ErrNotFound
	}
	return email, err
}

// DeleteUser removes the account row; content, saves and usage counters
// cascade through foreign keys.
func (s *UserStore) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from users where id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *UserStore) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `select count(*) from users`).Scan(&n)
	return n, err
}

func (s *UserStore) scanUser(row *sql.Row) (auth.User, error) {
	var u auth.User
	err := row.Scan(&u.ID, &u.Email, &u.TokenHash, &u.Tier, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.User{}, err
	}
	return u, nil
}
