package blocklist

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryCardStore is an in-memory CardStore for development and tests.
type MemoryCardStore struct {
	mu     sync.RWMutex
	cards  map[string]*StolenCard
	nextID int64
}

// NewMemoryCardStore creates an empty in-memory card store.
func NewMemoryCardStore() *MemoryCardStore {
	return &MemoryCardStore{
		cards:  make(map[string]*StolenCard),
		nextID: 1,
	}
}

func (s *MemoryCardStore) Add(ctx context.Context, number string) (*StolenCard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cards[number]; ok {
		return nil, ErrCardExists
	}
	card := &StolenCard{
		ID:        s.nextID,
		Number:    number,
		CreatedAt: time.Now().UTC(),
	}
	s.nextID++
	s.cards[number] = card

	cp := *card
	return &cp, nil
}

func (s *MemoryCardStore) Remove(ctx context.Context, number string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cards[number]; !ok {
		return ErrCardNotFound
	}
	delete(s.cards, number)
	return nil
}

func (s *MemoryCardStore) Exists(ctx context.Context, number string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.cards[number]
	return ok, nil
}

func (s *MemoryCardStore) List(ctx context.Context) ([]*StolenCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*StolenCard, 0, len(s.cards))
	for _, card := range s.cards {
		cp := *card
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Reset removes all entries. Used by the admin data reset endpoint.
func (s *MemoryCardStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards = make(map[string]*StolenCard)
	s.nextID = 1
	return nil
}

// MemoryIPStore is an in-memory IPStore for development and tests.
type MemoryIPStore struct {
	mu     sync.RWMutex
	ips    map[string]*SuspiciousIP
	nextID int64
}

// NewMemoryIPStore creates an empty in-memory IP store.
func NewMemoryIPStore() *MemoryIPStore {
	return &MemoryIPStore{
		ips:    make(map[string]*SuspiciousIP),
		nextID: 1,
	}
}

func (s *MemoryIPStore) Add(ctx context.Context, ip string) (*SuspiciousIP, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ips[ip]; ok {
		return nil, ErrIPExists
	}
	entry := &SuspiciousIP{
		ID:        s.nextID,
		IP:        ip,
		CreatedAt: time.Now().UTC(),
	}
	s.nextID++
	s.ips[ip] = entry

	cp := *entry
	return &cp, nil
}

func (s *MemoryIPStore) Remove(ctx context.Context, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ips[ip]; !ok {
		return ErrIPNotFound
	}
	delete(s.ips, ip)
	return nil
}

func (s *MemoryIPStore) Exists(ctx context.Context, ip string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.ips[ip]
	return ok, nil
}

func (s *MemoryIPStore) List(ctx context.Context) ([]*SuspiciousIP, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*SuspiciousIP, 0, len(s.ips))
	for _, entry := range s.ips {
		cp := *entry
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Reset removes all entries. Used by the admin data reset endpoint.
func (s *MemoryIPStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ips = make(map[string]*SuspiciousIP)
	s.nextID = 1
	return nil
}

var (
	_ CardStore = (*MemoryCardStore)(nil)
	_ IPStore   = (*MemoryIPStore)(nil)
)
