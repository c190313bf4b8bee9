package blocklist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// PostgresCardStore is a Postgres-backed CardStore.
type PostgresCardStore struct {
	db *sql.DB
}

// NewPostgresCardStore creates a Postgres card store.
func NewPostgresCardStore(db *sql.DB) *PostgresCardStore {
	return &PostgresCardStore{db: db}
}

// Migrate creates the stolen_cards table if it does not exist.
func (s *PostgresCardStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS stolen_cards (
			id BIGSERIAL PRIMARY KEY,
			card_number VARCHAR(19) NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("creating stolen_cards table: %w", err)
	}
	return nil
}

func (s *PostgresCardStore) Add(ctx context.Context, number string) (*StolenCard, error) {
	card := &StolenCard{Number: number}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO stolen_cards (card_number) VALUES ($1) RETURNING id, created_at`,
		number,
	).Scan(&card.ID, &card.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrCardExists
		}
		return nil, fmt.Errorf("inserting stolen card: %w", err)
	}
	return card, nil
}

func (s *PostgresCardStore) Remove(ctx context.Context, number string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM stolen_cards WHERE card_number = $1`, number)
	if err != nil {
		return fmt.Errorf("deleting stolen card: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting stolen card: %w", err)
	}
	if rows == 0 {
		return ErrCardNotFound
	}
	return nil
}

func (s *PostgresCardStore) Exists(ctx context.Context, number string) (bool, error) {
	var found bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM stolen_cards WHERE card_number = $1)`, number,
	).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("checking stolen card: %w", err)
	}
	return found, nil
}

func (s *PostgresCardStore) List(ctx context.Context) ([]*StolenCard, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, card_number, created_at FROM stolen_cards ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing stolen cards: %w", err)
	}
	defer rows.Close()

	var cards []*StolenCard
	for rows.Next() {
		card := &StolenCard{}
		if err := rows.Scan(&card.ID, &card.Number, &card.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning stolen card: %w", err)
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

// Reset removes all entries. Used by the admin data reset endpoint.
func (s *PostgresCardStore) Reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `TRUNCATE stolen_cards RESTART IDENTITY`)
	return err
}

// PostgresIPStore is a Postgres-backed IPStore.
type PostgresIPStore struct {
	db *sql.DB
}

// NewPostgresIPStore creates a Postgres IP store.
func NewPostgresIPStore(db *sql.DB) *PostgresIPStore {
	return &PostgresIPStore{db: db}
}

// Migrate creates the suspicious_ips table if it does not exist.
func (s *PostgresIPStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS suspicious_ips (
			id BIGSERIAL PRIMARY KEY,
			ip VARCHAR(15) NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("creating suspicious_ips table: %w", err)
	}
	return nil
}

func (s *PostgresIPStore) Add(ctx context.Context, ip string) (*SuspiciousIP, error) {
	entry := &SuspiciousIP{IP: ip}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO suspicious_ips (ip) VALUES ($1) RETURNING id, created_at`,
		ip,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrIPExists
		}
		return nil, fmt.Errorf("inserting suspicious ip: %w", err)
	}
	return entry, nil
}

func (s *PostgresIPStore) Remove(ctx context.Context, ip string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM suspicious_ips WHERE ip = $1`, ip)
	if err != nil {
		return fmt.Errorf("deleting suspicious ip: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting suspicious ip: %w", err)
	}
	if rows == 0 {
		return ErrIPNotFound
	}
	return nil
}

func (s *PostgresIPStore) Exists(ctx context.Context, ip string) (bool, error) {
	var found bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM suspicious_ips WHERE ip = $1)`, ip,
	).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("checking suspicious ip: %w", err)
	}
	return found, nil
}

func (s *PostgresIPStore) List(ctx context.Context) ([]*SuspiciousIP, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ip, created_at FROM suspicious_ips ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing suspicious ips: %w", err)
	}
	defer rows.Close()

	var ips []*SuspiciousIP
	for rows.Next() {
		entry := &SuspiciousIP{}
		if err := rows.Scan(&entry.ID, &entry.IP, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning suspicious ip: %w", err)
		}
		ips = append(ips, entry)
	}
	return ips, rows.Err()
}

// Reset removes all entries. Used by the admin data reset endpoint.
func (s *PostgresIPStore) Reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `TRUNCATE suspicious_ips RESTART IDENTITY`)
	return err
}

var (
	_ CardStore = (*PostgresCardStore)(nil)
	_ IPStore   = (*PostgresIPStore)(nil)
)
