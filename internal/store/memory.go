package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cloud.google.com/go/civil"

	"github.com/castlemilk/pfinance/statements/internal/domain"
)

// MemoryStore implements Store interface with in-memory storage
type MemoryStore struct {
	mu           sync.RWMutex
	transactions map[string]domain.CanonicalTransaction
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		transactions: make(map[string]domain.CanonicalTransaction),
	}
}

// Persist upserts transactions by id
func (s *MemoryStore) Persist(ctx context.Context, txns []domain.CanonicalTransaction) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range txns {
		if t.ID == "" {
			return 0, fmt.Errorf("transaction without id for account %s", t.AccountID)
		}
	}
	for _, t := range txns {
		s.transactions[t.ID] = t
	}
	return len(txns), nil
}

// ListPrior returns the account's transactions dated within [from, to], oldest first
func (s *MemoryStore) ListPrior(ctx context.Context, accountID string, from, to civil.Date) ([]domain.CanonicalTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.CanonicalTransaction
	for _, t := range s.transactions {
		if t.AccountID != accountID || t.Date.Before(from) || t.Date.After(to) {
			continue
		}
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Date != result[j].Date {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// ListTransactions pages through an account's transactions, newest first
func (s *MemoryStore) ListTransactions(ctx context.Context, accountID string, pageSize int32, pageToken string) ([]domain.CanonicalTransaction, string, error) {
	cursor, err := DecodePageToken(pageToken)
	if err != nil {
		return nil, "", fmt.Errorf("invalid page token: %w", err)
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	s.mu.RLock()
	var all []domain.CanonicalTransaction
	for _, t := range s.transactions {
		if t.AccountID == accountID {
			all = append(all, t)
		}
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].Date != all[j].Date {
			return all[i].Date.After(all[j].Date)
		}
		return all[i].ID < all[j].ID
	})

	start := 0
	if cursor != "" {
		start = len(all)
		for i, t := range all {
			if t.ID == cursor {
				start = i + 1
				break
			}
		}
	}
	end := start + int(pageSize)
	if end >= len(all) {
		return all[start:], "", nil
	}
	return all[start:end], EncodePageToken(all[end-1].ID), nil
}

// Get returns a stored transaction by id
func (s *MemoryStore) Get(id string) (domain.CanonicalTransaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transactions[id]
	return t, ok
}

// Len returns the number of stored transactions
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.transactions)
}

// Scan hands every stored transaction, optionally limited to one account, to fn in id order
// and in batches of at most batchSize.
func (s *MemoryStore) Scan(ctx context.Context, accountID string, batchSize int, fn func([]domain.CanonicalTransaction) error) (int, error) {
	if batchSize <= 0 {
		batchSize = defaultPageSize
	}
	s.mu.RLock()
	all := make([]domain.CanonicalTransaction, 0, len(s.transactions))
	for _, t := range s.transactions {
		if accountID == "" || t.AccountID == accountID {
			all = append(all, t)
		}
	}
	s.mu.RUnlock()
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	scanned := 0
	for start := 0; start < len(all); start += batchSize {
		if err := ctx.Err(); err != nil {
			return scanned, err
		}
		batch := all[start:min(start+batchSize, len(all))]
		if err := fn(batch); err != nil {
			return scanned, err
		}
		scanned += len(batch)
	}
	return scanned, nil
}
