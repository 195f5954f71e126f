package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"

	"github.com/castlemilk/pfinance/statements/internal/domain"
)

const transactionsCollection = "transactions"

// FirestoreStore implements the Store interface using Firestore
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore creates a new Firestore-backed store
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{
		client: client,
	}
}

// transactionDoc is the stored shape of a CanonicalTransaction. Dates are ISO strings so
// that range queries sort correctly; money is kept as decimal strings.
type transactionDoc struct {
	ID                 string     `firestore:"id"`
	AccountID          string     `firestore:"accountId"`
	Date               string     `firestore:"date"`
	Timestamp          *time.Time `firestore:"timestamp,omitempty"`
	Type               string     `firestore:"type"`
	Amount             string     `firestore:"amount"`
	Currency           string     `firestore:"currency"`
	RawDescription     string     `firestore:"rawDescription"`
	CleanDescription   string     `firestore:"cleanDescription"`
	MerchantRaw        string     `firestore:"merchantRaw"`
	MerchantCanonical  string     `firestore:"merchantCanonical"`
	MerchantID         string     `firestore:"merchantId"`
	Category           string     `firestore:"category"`
	Subcategory        string     `firestore:"subcategory"`
	CategorySource     string     `firestore:"categorySource"`
	CategoryMethod     string     `firestore:"categoryMethod"`
	CategoryConfidence float64    `firestore:"categoryConfidence"`
	LowConfidence      bool       `firestore:"lowConfidence"`
	Channel            string     `firestore:"channel,omitempty"`
	AccountRef         string     `firestore:"accountRef,omitempty"`
	BalanceAfter       string     `firestore:"balanceAfter,omitempty"`
	Source             string     `firestore:"source"`
	Fingerprint        string     `firestore:"fingerprint"`
	IsDuplicate        bool       `firestore:"isDuplicate"`
	DuplicateOf        string     `firestore:"duplicateOf,omitempty"`
	DuplicateCount     int        `firestore:"duplicateCount"`
	AggregateAmount    string     `firestore:"aggregateAmount,omitempty"`
	Flags              []string   `firestore:"flags,omitempty"`
	CreatedAt          time.Time  `firestore:"createdAt"`
	UpdatedAt          time.Time  `firestore:"updatedAt"`
}

func toDoc(t domain.CanonicalTransaction) transactionDoc {
	doc := transactionDoc{
		ID:                 t.ID,
		AccountID:          t.AccountID,
		Date:               t.Date.String(),
		Timestamp:          t.Timestamp,
		Type:               string(t.Type),
		Amount:             t.Amount.String(),
		Currency:           t.Currency,
		RawDescription:     t.RawDescription,
		CleanDescription:   t.CleanDescription,
		MerchantRaw:        t.MerchantRaw,
		MerchantCanonical:  t.MerchantCanonical,
		MerchantID:         t.MerchantID,
		Category:           t.Category,
		Subcategory:        t.Subcategory,
		CategorySource:     string(t.CategorySource),
		CategoryMethod:     string(t.CategoryMethod),
		CategoryConfidence: t.CategoryConfidence,
		LowConfidence:      t.LowConfidence,
		AccountRef:         t.AccountRef,
		Source:             t.Source,
		Fingerprint:        t.Fingerprint,
		IsDuplicate:        t.IsDuplicate,
		DuplicateOf:        t.DuplicateOf,
		DuplicateCount:     t.DuplicateCount,
		Flags:              t.Flags,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
	if t.Channel != nil {
		doc.Channel = string(*t.Channel)
	}
	if t.BalanceAfter != nil {
		doc.BalanceAfter = t.BalanceAfter.String()
	}
	if t.AggregateAmount != nil {
		doc.AggregateAmount = t.AggregateAmount.String()
	}
	return doc
}

func fromDoc(doc transactionDoc) (domain.CanonicalTransaction, error) {
	date, err := civil.ParseDate(doc.Date)
	if err != nil {
		return domain.CanonicalTransaction{}, fmt.Errorf("transaction %s: bad date: %w", doc.ID, err)
	}
	amount, err := decimal.NewFromString(doc.Amount)
	if err != nil {
		return domain.CanonicalTransaction{}, fmt.Errorf("transaction %s: bad amount: %w", doc.ID, err)
	}
	t := domain.CanonicalTransaction{
		ID:                 doc.ID,
		AccountID:          doc.AccountID,
		Date:               date,
		Timestamp:          doc.Timestamp,
		Type:               domain.TxType(doc.Type),
		Amount:             amount,
		Currency:           doc.Currency,
		RawDescription:     doc.RawDescription,
		CleanDescription:   doc.CleanDescription,
		MerchantRaw:        doc.MerchantRaw,
		MerchantCanonical:  doc.MerchantCanonical,
		MerchantID:         doc.MerchantID,
		Category:           doc.Category,
		Subcategory:        doc.Subcategory,
		CategorySource:     domain.CategorySource(doc.CategorySource),
		CategoryMethod:     domain.MatchMethod(doc.CategoryMethod),
		CategoryConfidence: doc.CategoryConfidence,
		LowConfidence:      doc.LowConfidence,
		AccountRef:         doc.AccountRef,
		Source:             doc.Source,
		Fingerprint:        doc.Fingerprint,
		IsDuplicate:        doc.IsDuplicate,
		DuplicateOf:        doc.DuplicateOf,
		DuplicateCount:     doc.DuplicateCount,
		Flags:              doc.Flags,
		CreatedAt:          doc.CreatedAt,
		UpdatedAt:          doc.UpdatedAt,
	}
	if doc.Channel != "" {
		t.Channel = domain.ChannelPtr(domain.Channel(doc.Channel))
	}
	if doc.BalanceAfter != "" {
		v, err := decimal.NewFromString(doc.BalanceAfter)
		if err != nil {
			return domain.CanonicalTransaction{}, fmt.Errorf("transaction %s: bad balance: %w", doc.ID, err)
		}
		t.BalanceAfter = &v
	}
	if doc.AggregateAmount != "" {
		v, err := decimal.NewFromString(doc.AggregateAmount)
		if err != nil {
			return domain.CanonicalTransaction{}, fmt.Errorf("transaction %s: bad aggregate amount: %w", doc.ID, err)
		}
		t.AggregateAmount = &v
	}
	return t, nil
}

// Persist upserts transactions with a BulkWriter. Each document is keyed by transaction id,
// so retrying a batch overwrites rather than duplicates.
func (s *FirestoreStore) Persist(ctx context.Context, txns []domain.CanonicalTransaction) (int, error) {
	if len(txns) == 0 {
		return 0, nil
	}
	bw := s.client.BulkWriter(ctx)
	coll := s.client.Collection(transactionsCollection)

	jobs := make([]*firestore.BulkWriterJob, 0, len(txns))
	var errs []error
	for _, t := range txns {
		job, err := bw.Set(coll.Doc(t.ID), toDoc(t))
		if err != nil {
			errs = append(errs, fmt.Errorf("queue transaction %s: %w", t.ID, err))
			continue
		}
		jobs = append(jobs, job)
	}
	bw.End()

	written := 0
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			errs = append(errs, err)
			continue
		}
		written++
	}
	if len(errs) > 0 {
		return written, fmt.Errorf("failed to persist %d of %d transactions: %w", len(txns)-written, len(txns), errors.Join(errs...))
	}
	return written, nil
}

// ListPrior returns the account's transactions dated within [from, to]
func (s *FirestoreStore) ListPrior(ctx context.Context, accountID string, from, to civil.Date) ([]domain.CanonicalTransaction, error) {
	query := s.client.Collection(transactionsCollection).
		Where("accountId", "==", accountID).
		Where("date", ">=", from.String()).
		Where("date", "<=", to.String()).
		OrderBy("date", firestore.Asc)

	iter := query.Documents(ctx)
	defer iter.Stop()

	var result []domain.CanonicalTransaction
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list prior transactions: %w", err)
		}
		var doc transactionDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("failed to parse transaction: %w", err)
		}
		t, err := fromDoc(doc)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, nil
}

// ListTransactions pages through an account's transactions, newest first
func (s *FirestoreStore) ListTransactions(ctx context.Context, accountID string, pageSize int32, pageToken string) ([]domain.CanonicalTransaction, string, error) {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	coll := s.client.Collection(transactionsCollection)
	query := coll.Where("accountId", "==", accountID).
		OrderBy("date", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Asc)

	if pageToken != "" {
		docID, err := DecodePageToken(pageToken)
		if err != nil {
			return nil, "", fmt.Errorf("invalid page token: %w", err)
		}
		// Fetch the cursor document to get its date value for composite StartAfter
		cursorDoc, err := coll.Doc(docID).Get(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("failed to fetch cursor document: %w", err)
		}
		query = query.StartAfter(cursorDoc.Data()["date"], docID)
	}
	query = query.Limit(int(pageSize) + 1) // +1 to detect next page

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, "", fmt.Errorf("failed to list transactions: %w", err)
	}

	var nextPageToken string
	if len(docs) > int(pageSize) {
		docs = docs[:pageSize]
		nextPageToken = EncodePageToken(docs[len(docs)-1].Ref.ID)
	}

	result := make([]domain.CanonicalTransaction, 0, len(docs))
	for _, snap := range docs {
		var doc transactionDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, "", fmt.Errorf("failed to parse transaction: %w", err)
		}
		t, err := fromDoc(doc)
		if err != nil {
			return nil, "", err
		}
		result = append(result, t)
	}
	return result, nextPageToken, nil
}

// Scan hands every stored transaction, optionally limited to one account, to fn in batches of
// at most batchSize.
func (s *FirestoreStore) Scan(ctx context.Context, accountID string, batchSize int, fn func([]domain.CanonicalTransaction) error) (int, error) {
	if batchSize <= 0 {
		batchSize = defaultPageSize
	}
	query := s.client.Collection(transactionsCollection).Query
	if accountID != "" {
		query = query.Where("accountId", "==", accountID)
	}
	iter := query.Documents(ctx)
	defer iter.Stop()

	scanned := 0
	batch := make([]domain.CanonicalTransaction, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		scanned += len(batch)
		batch = batch[:0]
		return nil
	}
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return scanned, fmt.Errorf("failed to scan transactions: %w", err)
		}
		var doc transactionDoc
		if err := snap.DataTo(&doc); err != nil {
			return scanned, fmt.Errorf("failed to parse transaction %s: %w", snap.Ref.ID, err)
		}
		t, err := fromDoc(doc)
		if err != nil {
			return scanned, err
		}
		batch = append(batch, t)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return scanned, err
			}
		}
	}
	return scanned, flush()
}
