package blocklist

import (
	"context"
	"fmt"

	"github.com/mdudarev/antifraud/internal/logging"
	"github.com/mdudarev/antifraud/internal/metrics"
)

// Service implements blocklist management on top of the card and IP stores.
// It also satisfies antifraud.BlocklistChecker.
type Service struct {
	cards CardStore
	ips   IPStore
}

// NewService creates a blocklist service.
func NewService(cards CardStore, ips IPStore) *Service {
	return &Service{cards: cards, ips: ips}
}

// AddStolenCard registers a card number on the blocklist.
func (s *Service) AddStolenCard(ctx context.Context, number string) (*StolenCard, error) {
	card, err := s.cards.Add(ctx, number)
	if err != nil {
		return nil, err
	}
	s.updateCardGauge(ctx)
	logging.L(ctx).Info("stolen card added", "card_id", card.ID)
	return card, nil
}

// RemoveStolenCard deletes a card number from the blocklist.
func (s *Service) RemoveStolenCard(ctx context.Context, number string) error {
	if err := s.cards.Remove(ctx, number); err != nil {
		return err
	}
	s.updateCardGauge(ctx)
	logging.L(ctx).Info("stolen card removed")
	return nil
}

// ListStolenCards returns all blocklisted cards ordered by id.
func (s *Service) ListStolenCards(ctx context.Context) ([]*StolenCard, error) {
	return s.cards.List(ctx)
}

// AddSuspiciousIP registers an IP address on the blocklist.
func (s *Service) AddSuspiciousIP(ctx context.Context, ip string) (*SuspiciousIP, error) {
	entry, err := s.ips.Add(ctx, ip)
	if err != nil {
		return nil, err
	}
	s.updateIPGauge(ctx)
	logging.L(ctx).Info("suspicious ip added", "ip_id", entry.ID)
	return entry, nil
}

// RemoveSuspiciousIP deletes an IP address from the blocklist.
func (s *Service) RemoveSuspiciousIP(ctx context.Context, ip string) error {
	if err := s.ips.Remove(ctx, ip); err != nil {
		return err
	}
	s.updateIPGauge(ctx)
	logging.L(ctx).Info("suspicious ip removed")
	return nil
}

// ListSuspiciousIPs returns all blocklisted IPs ordered by id.
func (s *Service) ListSuspiciousIPs(ctx context.Context) ([]*SuspiciousIP, error) {
	return s.ips.List(ctx)
}

// IsStolenCard reports whether the card number is blocklisted.
func (s *Service) IsStolenCard(ctx context.Context, number string) (bool, error) {
	found, err := s.cards.Exists(ctx, number)
	if err != nil {
		return false, fmt.Errorf("checking stolen card: %w", err)
	}
	return found, nil
}

// IsSuspiciousIP reports whether the IP address is blocklisted.
func (s *Service) IsSuspiciousIP(ctx context.Context, ip string) (bool, error) {
	found, err := s.ips.Exists(ctx, ip)
	if err != nil {
		return false, fmt.Errorf("checking suspicious ip: %w", err)
	}
	return found, nil
}

func (s *Service) updateCardGauge(ctx context.Context) {
	cards, err := s.cards.List(ctx)
	if err != nil {
		return
	}
	metrics.SetStolenCardCount(len(cards))
}

func (s *Service) updateIPGauge(ctx context.Context) {
	ips, err := s.ips.List(ctx)
	if err != nil {
		return
	}
	metrics.SetSuspiciousIPCount(len(ips))
}
