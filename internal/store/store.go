package store

import (
	"context"
	"encoding/base64"

	"cloud.google.com/go/civil"

	"github.com/castlemilk/pfinance/statements/internal/domain"
)

//go:generate mockgen -source=store.go -destination=store_mock.go -package=store

// Store defines the persistence operations used by the ingestion pipeline
type Store interface {
	// Persist upserts transactions by id and returns how many were written.
	Persist(ctx context.Context, txns []domain.CanonicalTransaction) (int, error)
	// ListPrior returns the account's stored transactions dated within [from, to].
	ListPrior(ctx context.Context, accountID string, from, to civil.Date) ([]domain.CanonicalTransaction, error)
	// ListTransactions pages through an account's transactions, newest first.
	ListTransactions(ctx context.Context, accountID string, pageSize int32, pageToken string) ([]domain.CanonicalTransaction, string, error)
}

const defaultPageSize = 100

// EncodePageToken encodes a document ID into a page token.
func EncodePageToken(docID string) string {
	if docID == "" {
		return ""
	}
	return base64.URLEncoding.EncodeToString([]byte(docID))
}

// DecodePageToken decodes a page token back to a document ID.
func DecodePageToken(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	b, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
