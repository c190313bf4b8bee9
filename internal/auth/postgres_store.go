package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore is a Postgres-backed Store.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Postgres user store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the users table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			role VARCHAR(16) NOT NULL,
			locked BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, user *User) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (name, username, password_hash, role, locked, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		user.Name, user.Username, user.PasswordHash, user.Role, user.Locked, user.CreatedAt,
	).Scan(&user.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrUserExists
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByUsername(ctx context.Context, username string) (*User, error) {
	user := &User{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, username, password_hash, role, locked, created_at
		FROM users WHERE username = $1`,
		username,
	).Scan(&user.ID, &user.Name, &user.Username, &user.PasswordHash, &user.Role, &user.Locked, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, username, password_hash, role, locked, created_at
		FROM users ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user := &User{}
		if err := rows.Scan(&user.ID, &user.Name, &user.Username, &user.PasswordHash, &user.Role, &user.Locked, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *PostgresStore) UpdateRole(ctx context.Context, username string, role Role) (*User, error) {
	user := &User{}
	err := s.db.QueryRowContext(ctx, `
		UPDATE users SET role = $2
		WHERE username = $1 AND role <> $2
		RETURNING id, name, username, password_hash, role, locked, created_at`,
		username, role,
	).Scan(&user.ID, &user.Name, &user.Username, &user.PasswordHash, &user.Role, &user.Locked, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// Distinguish a missing user from a no-op role change.
		var exists bool
		if checkErr := s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`, username,
		).Scan(&exists); checkErr != nil {
			return nil, fmt.Errorf("checking user: %w", checkErr)
		}
		if exists {
			return nil, ErrRoleAlreadyAssigned
		}
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("updating role: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) SetLocked(ctx context.Context, username string, locked bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET locked = $2 WHERE username = $1`, username, locked)
	if err != nil {
		return fmt.Errorf("updating lock state: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating lock state: %w", err)
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, username string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE username = $1`, username)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return count, nil
}

var _ Store = (*PostgresStore)(nil)
