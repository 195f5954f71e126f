package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/algolia/algoliasearch-client-go/v4/algolia/search"

	"github.com/castlemilk/pfinance/statements/internal/domain"
)

// Config holds Algolia configuration.
type Config struct {
	AppID     string
	APIKey    string // needs write access for indexing
	IndexName string
}

// DefaultIndexName is used when Config.IndexName is empty.
const DefaultIndexName = "transactions"

// SearchParams defines the input for an Algolia search.
type SearchParams struct {
	Query      string
	AccountID  string
	Category   string
	MerchantID string
	Type       domain.TxType
	// Amount range, in the transaction currency
	AmountMin float64
	AmountMax float64
	// Date range, inclusive
	StartDate *civil.Date
	EndDate   *civil.Date
	// Pagination (offset-based)
	Page     int
	PageSize int
}

// Hit is one search result.
type Hit struct {
	ID                string  `json:"id"`
	AccountID         string  `json:"account_id"`
	Date              string  `json:"date"`
	Description       string  `json:"description"`
	MerchantCanonical string  `json:"merchant_canonical"`
	Category          string  `json:"category"`
	Type              string  `json:"type"`
	Amount            float64 `json:"amount"`
	Currency          string  `json:"currency"`
}

// SearchResponse holds results from Algolia.
type SearchResponse struct {
	Hits       []Hit
	TotalCount int
	TotalPages int
	Page       int
}

// AlgoliaClient wraps the Algolia search API client.
type AlgoliaClient struct {
	client    *search.APIClient
	indexName string
}

// NewAlgoliaClient creates a new Algolia search client.
func NewAlgoliaClient(cfg Config) (*AlgoliaClient, error) {
	if cfg.AppID == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("algolia AppID and APIKey are required")
	}
	if cfg.IndexName == "" {
		cfg.IndexName = DefaultIndexName
	}

	client, err := search.NewClient(cfg.AppID, cfg.APIKey)
	if err != nil {
		return nil, fmt.Errorf("creating algolia client: %w", err)
	}

	return &AlgoliaClient{
		client:    client,
		indexName: cfg.IndexName,
	}, nil
}

// Index saves surviving transactions as search records. Absorbed duplicates are skipped so
// search results never show the same event twice.
func (c *AlgoliaClient) Index(ctx context.Context, txns []domain.CanonicalTransaction) error {
	objects := Records(txns)
	if len(objects) == 0 {
		return nil
	}
	if _, err := c.client.SaveObjects(c.indexName, objects); err != nil {
		return fmt.Errorf("algolia save objects: %w", err)
	}
	return nil
}

// Records converts surviving transactions to Algolia records.
func Records(txns []domain.CanonicalTransaction) []map[string]any {
	objects := make([]map[string]any, 0, len(txns))
	for _, t := range txns {
		if t.IsDuplicate {
			continue
		}
		amount, _ := t.Amount.Float64()
		rec := map[string]any{
			"objectID":          t.ID,
			"AccountId":         t.AccountID,
			"Date":              t.Date.String(),
			"DateUnix":          t.Date.In(time.UTC).Unix(),
			"Description":       t.RawDescription,
			"MerchantCanonical": t.MerchantCanonical,
			"MerchantId":        t.MerchantID,
			"Category":          t.Category,
			"Subcategory":       t.Subcategory,
			"Type":              string(t.Type),
			"Amount":            amount,
			"Currency":          t.Currency,
			"DuplicateCount":    t.DuplicateCount,
		}
		if t.Channel != nil {
			rec["Channel"] = string(*t.Channel)
		}
		objects = append(objects, rec)
	}
	return objects
}

// Search performs a full-text search via Algolia.
func (c *AlgoliaClient) Search(ctx context.Context, params SearchParams) (*SearchResponse, error) {
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = 25
	}
	if pageSize > 100 {
		pageSize = 100
	}

	page := params.Page
	if page < 0 {
		page = 0
	}

	filters := buildFilters(params)

	hitsPerPage := int32(pageSize)
	algoliaPage := int32(page)
	searchParams := search.SearchParamsObjectAsSearchParams(
		search.NewSearchParamsObject().
			SetQuery(params.Query).
			SetHitsPerPage(hitsPerPage).
			SetPage(algoliaPage).
			SetFilters(filters),
	)

	resp, err := c.client.SearchSingleIndex(c.client.NewApiSearchSingleIndexRequest(c.indexName).WithSearchParams(searchParams))
	if err != nil {
		return nil, fmt.Errorf("algolia search: %w", err)
	}

	hits := make([]Hit, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		if h, ok := hitFromProps(hit.AdditionalProperties); ok {
			hits = append(hits, h)
		}
	}

	totalCount := 0
	if resp.NbHits != nil {
		totalCount = int(*resp.NbHits)
	}
	totalPages := 0
	if resp.NbPages != nil {
		totalPages = int(*resp.NbPages)
	}

	return &SearchResponse{
		Hits:       hits,
		TotalCount: totalCount,
		TotalPages: totalPages,
		Page:       page,
	}, nil
}

// buildFilters constructs Algolia filter string from search params.
// AccountId is always enforced when given.
func buildFilters(params SearchParams) string {
	var parts []string

	if params.AccountID != "" {
		parts = append(parts, fmt.Sprintf("AccountId:%q", params.AccountID))
	}
	if params.Category != "" {
		parts = append(parts, fmt.Sprintf("Category:%q", params.Category))
	}
	if params.MerchantID != "" {
		parts = append(parts, fmt.Sprintf("MerchantId:%q", params.MerchantID))
	}
	if params.Type != "" {
		parts = append(parts, fmt.Sprintf("Type:%q", string(params.Type)))
	}

	if params.AmountMin > 0 {
		parts = append(parts, fmt.Sprintf("Amount >= %f", params.AmountMin))
	}
	if params.AmountMax > 0 {
		parts = append(parts, fmt.Sprintf("Amount <= %f", params.AmountMax))
	}

	// Date range (using DateUnix numeric field)
	if params.StartDate != nil {
		parts = append(parts, fmt.Sprintf("DateUnix >= %d", params.StartDate.In(time.UTC).Unix()))
	}
	if params.EndDate != nil {
		parts = append(parts, fmt.Sprintf("DateUnix <= %d", params.EndDate.In(time.UTC).Unix()))
	}

	return strings.Join(parts, " AND ")
}

// hitFromProps converts an Algolia hit to a Hit. Hits without an objectID are skipped.
func hitFromProps(props map[string]any) (Hit, bool) {
	var h Hit
	if v, ok := props["objectID"].(string); ok {
		h.ID = v
	}
	if h.ID == "" {
		return Hit{}, false
	}
	h.AccountID, _ = props["AccountId"].(string)
	h.Date, _ = props["Date"].(string)
	h.Description, _ = props["Description"].(string)
	h.MerchantCanonical, _ = props["MerchantCanonical"].(string)
	h.Category, _ = props["Category"].(string)
	h.Type, _ = props["Type"].(string)
	h.Amount, _ = props["Amount"].(float64)
	h.Currency, _ = props["Currency"].(string)
	return h, true
}
