package antifraud

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// MemoryLimitStore holds the threshold pair in memory, guarded by a mutex.
type MemoryLimitStore struct {
	mu       sync.Mutex
	limits   Limits
	defaults Limits
	created  bool
}

// NewMemoryLimitStore creates a limit store that lazily initializes from the
// given defaults on first access.
func NewMemoryLimitStore(defaults Limits) *MemoryLimitStore {
	return &MemoryLimitStore{defaults: defaults}
}

func (m *MemoryLimitStore) Current(ctx context.Context) (Limits, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.created {
		m.limits = m.defaults
		m.created = true
	}
	return m.limits, nil
}

func (m *MemoryLimitStore) CompareAndSet(ctx context.Context, expected, next Limits) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.created {
		m.limits = m.defaults
		m.created = true
	}
	if m.limits != expected {
		return false, nil
	}
	m.limits = next
	return true, nil
}

// Reset restores the defaults. Used by the administrative data reset.
func (m *MemoryLimitStore) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = false
	return nil
}

// Compile-time checks.
var (
	_ LimitStore = (*MemoryLimitStore)(nil)
	_ LimitStore = (*PostgresLimitStore)(nil)
)

// PostgresLimitStore persists the single threshold pair as a one-row table.
type PostgresLimitStore struct {
	db       *sql.DB
	defaults Limits
}

// NewPostgresLimitStore creates a PostgreSQL-backed limit store.
func NewPostgresLimitStore(db *sql.DB, defaults Limits) *PostgresLimitStore {
	return &PostgresLimitStore{db: db, defaults: defaults}
}

// Migrate creates the transaction_limits table if it doesn't exist.
func (p *PostgresLimitStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS transaction_limits (
			id           SMALLINT PRIMARY KEY CHECK (id = 1),
			max_allowed  BIGINT NOT NULL,
			max_manual   BIGINT NOT NULL
		);
	`)
	return err
}

func (p *PostgresLimitStore) Current(ctx context.Context) (Limits, error) {
	// Lazily seed the row; ON CONFLICT makes concurrent first accesses safe.
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO transaction_limits (id, max_allowed, max_manual)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO NOTHING
	`, p.defaults.MaxAllowed, p.defaults.MaxManual)
	if err != nil {
		return Limits{}, fmt.Errorf("seed limits: %w", err)
	}

	var l Limits
	err = p.db.QueryRowContext(ctx, `
		SELECT max_allowed, max_manual FROM transaction_limits WHERE id = 1
	`).Scan(&l.MaxAllowed, &l.MaxManual)
	if err != nil {
		return Limits{}, fmt.Errorf("load limits: %w", err)
	}
	return l, nil
}

// CompareAndSet applies the update only when the stored pair still equals
// expected, reporting false when a concurrent writer got there first.
func (p *PostgresLimitStore) CompareAndSet(ctx context.Context, expected, next Limits) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE transaction_limits
		SET max_allowed = $3, max_manual = $4
		WHERE id = 1 AND max_allowed = $1 AND max_manual = $2
	`, expected.MaxAllowed, expected.MaxManual, next.MaxAllowed, next.MaxManual)
	if err != nil {
		return false, fmt.Errorf("update limits: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return rows == 1, nil
}

// Reset removes the stored pair so the next access re-seeds defaults.
func (p *PostgresLimitStore) Reset(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM transaction_limits`)
	return err
}
