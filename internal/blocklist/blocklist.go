// Package blocklist manages the stolen card and suspicious IP registries
// consulted during transaction evaluation.
package blocklist

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCardNotFound is returned when a card number is not on the blocklist.
	ErrCardNotFound = errors.New("card number not found")
	// ErrCardExists is returned when a card number is already blocklisted.
	ErrCardExists = errors.New("card number already exists")
	// ErrIPNotFound is returned when an IP address is not on the blocklist.
	ErrIPNotFound = errors.New("ip address not found")
	// ErrIPExists is returned when an IP address is already blocklisted.
	ErrIPExists = errors.New("ip address already exists")
)

// StolenCard is a blocklisted payment card.
type StolenCard struct {
	ID        int64     `json:"id"`
	Number    string    `json:"number"`
	CreatedAt time.Time `json:"-"`
}

// SuspiciousIP is a blocklisted IPv4 address.
type SuspiciousIP struct {
	ID        int64     `json:"id"`
	IP        string    `json:"ip"`
	CreatedAt time.Time `json:"-"`
}

// CardStore persists stolen card entries.
type CardStore interface {
	Add(ctx context.Context, number string) (*StolenCard, error)
	Remove(ctx context.Context, number string) error
	Exists(ctx context.Context, number string) (bool, error)
	List(ctx context.Context) ([]*StolenCard, error)
}

// IPStore persists suspicious IP entries.
type IPStore interface {
	Add(ctx context.Context, ip string) (*SuspiciousIP, error)
	Remove(ctx context.Context, ip string) error
	Exists(ctx context.Context, ip string) (bool, error)
	List(ctx context.Context) ([]*SuspiciousIP, error)
}
