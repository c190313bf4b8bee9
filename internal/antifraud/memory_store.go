package antifraud

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory TransactionStore for demo/test use.
type MemoryStore struct {
	mu     sync.RWMutex
	txs    []*Transaction
	nextID int64
}

// NewMemoryStore creates an in-memory transaction store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

func (m *MemoryStore) Create(ctx context.Context, tx *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx.ID = m.nextID
	m.nextID++
	cp := *tx
	m.txs = append(m.txs, &cp)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id int64) (*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, tx := range m.txs {
		if tx.ID == id {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, ErrTransactionNotFound
}

func (m *MemoryStore) SetFeedback(ctx context.Context, id int64, feedback Verdict) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, tx := range m.txs {
		if tx.ID != id {
			continue
		}
		if tx.Feedback != "" {
			return nil, ErrFeedbackExists
		}
		tx.Feedback = string(feedback)
		cp := *tx
		return &cp, nil
	}
	return nil, ErrTransactionNotFound
}

func (m *MemoryStore) List(ctx context.Context) ([]*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Transaction, 0, len(m.txs))
	for _, tx := range m.txs {
		cp := *tx
		result = append(result, &cp)
	}
	return result, nil
}

func (m *MemoryStore) ListByCard(ctx context.Context, number string) ([]*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Transaction
	for _, tx := range m.txs {
		if tx.CardNumber == number {
			cp := *tx
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *MemoryStore) CountDistinctRegionsExcluding(ctx context.Context, start, end time.Time, region Region) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[Region]struct{})
	for _, tx := range m.txs {
		if tx.Region != region && inWindow(tx.Date, start, end) {
			seen[tx.Region] = struct{}{}
		}
	}
	return int64(len(seen)), nil
}

func (m *MemoryStore) CountDistinctIPsExcluding(ctx context.Context, start, end time.Time, ip string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, tx := range m.txs {
		if tx.IP != ip && inWindow(tx.Date, start, end) {
			seen[tx.IP] = struct{}{}
		}
	}
	return int64(len(seen)), nil
}

// inWindow reports whether t lies in the half-open interval (start, end].
func inWindow(t, start, end time.Time) bool {
	return t.After(start) && !t.After(end)
}

// Reset drops all records. Used by the administrative data reset.
func (m *MemoryStore) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs = nil
	m.nextID = 1
	return nil
}
