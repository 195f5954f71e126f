// Package search indexes persisted transactions in Algolia and queries them back.
package search

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/castlemilk/pfinance/statements/internal/domain"
	"github.com/castlemilk/pfinance/statements/internal/store"
)

// Indexer makes transactions searchable.
type Indexer interface {
	Index(ctx context.Context, txns []domain.CanonicalTransaction) error
}

// IndexingStore writes through to a Store and then indexes what was written. The store is
// the source of truth: an indexing failure is logged and does not fail the write.
type IndexingStore struct {
	store.Store
	indexer Indexer
	log     zerolog.Logger
}

// NewIndexingStore decorates s with search indexing.
func NewIndexingStore(s store.Store, indexer Indexer, log zerolog.Logger) *IndexingStore {
	return &IndexingStore{Store: s, indexer: indexer, log: log}
}

func (s *IndexingStore) Persist(ctx context.Context, txns []domain.CanonicalTransaction) (int, error) {
	n, err := s.Store.Persist(ctx, txns)
	if err != nil {
		return n, err
	}
	if err := s.indexer.Index(ctx, txns); err != nil {
		s.log.Error().Err(err).Int("transactions", len(txns)).Msg("search indexing failed")
	}
	return n, nil
}
