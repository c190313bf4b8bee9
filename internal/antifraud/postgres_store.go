package antifraud

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Compile-time check that PostgresStore implements TransactionStore.
var _ TransactionStore = (*PostgresStore)(nil)

// PostgresStore persists transactions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed transaction store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the transactions table if it doesn't exist. The timestamp
// index backs the correlation window queries.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS transactions (
			id           BIGSERIAL PRIMARY KEY,
			amount       BIGINT NOT NULL CHECK (amount >= 1),
			ip           VARCHAR(15) NOT NULL,
			card_number  VARCHAR(19) NOT NULL,
			region       VARCHAR(4) NOT NULL,
			occurred_at  TIMESTAMPTZ NOT NULL,
			result       VARCHAR(20) NOT NULL,
			feedback     VARCHAR(20) NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_transactions_occurred_at
			ON transactions (occurred_at);

		CREATE INDEX IF NOT EXISTS idx_transactions_card_number
			ON transactions (card_number, id);
	`)
	return err
}

func (p *PostgresStore) Create(ctx context.Context, tx *Transaction) error {
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO transactions (amount, ip, card_number, region, occurred_at, result, feedback)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`,
		tx.Amount, tx.IP, tx.CardNumber, string(tx.Region), tx.Date, string(tx.Result), tx.Feedback,
	).Scan(&tx.ID)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id int64) (*Transaction, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, amount, ip, card_number, region, occurred_at, result, feedback
		FROM transactions WHERE id = $1
	`, id)

	tx, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

// SetFeedback conditionally records feedback. The WHERE feedback = '' guard
// makes the set-at-most-once rule atomic at the database level.
func (p *PostgresStore) SetFeedback(ctx context.Context, id int64, feedback Verdict) (*Transaction, error) {
	row := p.db.QueryRowContext(ctx, `
		UPDATE transactions SET feedback = $2
		WHERE id = $1 AND feedback = ''
		RETURNING id, amount, ip, card_number, region, occurred_at, result, feedback
	`, id, string(feedback))

	tx, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		// Distinguish missing row from already-set feedback.
		var exists bool
		if checkErr := p.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM transactions WHERE id = $1)`, id,
		).Scan(&exists); checkErr != nil {
			return nil, fmt.Errorf("set feedback: %w", checkErr)
		}
		if exists {
			return nil, ErrFeedbackExists
		}
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("set feedback: %w", err)
	}
	return tx, nil
}

func (p *PostgresStore) List(ctx context.Context) ([]*Transaction, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, amount, ip, card_number, region, occurred_at, result, feedback
		FROM transactions ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanTransactions(rows)
}

func (p *PostgresStore) ListByCard(ctx context.Context, number string) ([]*Transaction, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, amount, ip, card_number, region, occurred_at, result, feedback
		FROM transactions WHERE card_number = $1 ORDER BY id ASC
	`, number)
	if err != nil {
		return nil, fmt.Errorf("list transactions by card: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanTransactions(rows)
}

func (p *PostgresStore) CountDistinctRegionsExcluding(ctx context.Context, start, end time.Time, region Region) (int64, error) {
	var count int64
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT region) FROM transactions
		WHERE occurred_at > $1 AND occurred_at <= $2 AND region <> $3
	`, start, end, string(region)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count distinct regions: %w", err)
	}
	return count, nil
}

func (p *PostgresStore) CountDistinctIPsExcluding(ctx context.Context, start, end time.Time, ip string) (int64, error) {
	var count int64
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT ip) FROM transactions
		WHERE occurred_at > $1 AND occurred_at <= $2 AND ip <> $3
	`, start, end, ip).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count distinct ips: %w", err)
	}
	return count, nil
}

// Reset truncates the transactions table. Used by the administrative reset.
func (p *PostgresStore) Reset(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `TRUNCATE transactions RESTART IDENTITY`)
	return err
}

// scannable abstracts *sql.Row and *sql.Rows for shared scanning logic.
type scannable interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row scannable) (*Transaction, error) {
	var tx Transaction
	var region, result string
	if err := row.Scan(&tx.ID, &tx.Amount, &tx.IP, &tx.CardNumber, &region, &tx.Date, &result, &tx.Feedback); err != nil {
		return nil, err
	}
	tx.Region = Region(region)
	tx.Result = Verdict(result)
	return &tx, nil
}

func scanTransactions(rows *sql.Rows) ([]*Transaction, error) {
	var result []*Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, tx)
	}
	return result, rows.Err()
}
