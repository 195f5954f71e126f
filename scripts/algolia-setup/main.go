// algolia-setup configures the Algolia index that canonical transactions are written to.
// This is the IaC definition for the Algolia search index.
//
// Usage:
//
//	ALGOLIA_APP_ID=... ALGOLIA_ADMIN_KEY=... go run ./scripts/algolia-setup
//	ALGOLIA_APP_ID=... ALGOLIA_ADMIN_KEY=... ALGOLIA_INDEX_NAME=transactions-dev go run ./scripts/algolia-setup
package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/algolia/algoliasearch-client-go/v4/algolia/search"

	statementsearch "github.com/castlemilk/pfinance/statements/internal/search"
)

func int32Ptr(v int32) *int32 { return &v }

// Index settings; keep in sync with the record layout in internal/search.
var (
	searchableAttributes = []string{
		"MerchantCanonical",
		"Description",
		"Category",
		"Subcategory",
	}
	// filterOnly() = can filter but values not returned as facets
	// searchable() = can also search within facet values
	facetAttributes = []string{
		"filterOnly(AccountId)",
		"filterOnly(MerchantId)",
		"searchable(Category)",
		"Subcategory",
		"filterOnly(Type)",
		"Channel",
		"Currency",
	}
	numericAttributes = []string{
		"Amount",
		"DateUnix",
		"DuplicateCount",
	}
)

func main() {
	appID := os.Getenv("ALGOLIA_APP_ID")
	adminKey := os.Getenv("ALGOLIA_ADMIN_KEY")
	indexName := os.Getenv("ALGOLIA_INDEX_NAME")

	if appID == "" || adminKey == "" {
		log.Fatal("ALGOLIA_APP_ID and ALGOLIA_ADMIN_KEY are required")
	}
	if indexName == "" {
		indexName = statementsearch.DefaultIndexName
	}

	client, err := search.NewClient(appID, adminKey)
	if err != nil {
		log.Fatalf("Failed to create Algolia client: %v", err)
	}

	log.Printf("Configuring Algolia index %q (app: %s)...", indexName, appID)

	settings := &search.IndexSettings{
		SearchableAttributes:          searchableAttributes,
		AttributesForFaceting:         facetAttributes,
		NumericAttributesForFiltering: numericAttributes,

		// Most recent transactions first
		CustomRanking: []string{
			"desc(DateUnix)",
		},

		// AccountId is filter-only and stays out of results.
		AttributesToRetrieve: []string{
			"objectID",
			"Date",
			"DateUnix",
			"Description",
			"MerchantCanonical",
			"MerchantId",
			"Category",
			"Subcategory",
			"Type",
			"Amount",
			"Currency",
			"Channel",
			"DuplicateCount",
		},

		AttributesToHighlight: []string{
			"MerchantCanonical",
			"Description",
		},

		HitsPerPage:       int32Ptr(25),
		MaxValuesPerFacet: int32Ptr(100),

		MinWordSizefor1Typo:  int32Ptr(4),
		MinWordSizefor2Typos: int32Ptr(8),
	}

	req := client.NewApiSetSettingsRequest(indexName, settings)
	resp, err := client.SetSettings(req)
	if err != nil {
		log.Fatalf("Failed to set index settings: %v", err)
	}

	log.Printf("Index settings applied (taskID: %d, updatedAt: %s)", resp.TaskID, resp.UpdatedAt)

	fmt.Println()
	fmt.Println("=== Algolia Index Configuration ===")
	fmt.Printf("Index:              %s\n", indexName)
	fmt.Printf("App ID:             %s\n", appID)
	fmt.Println()
	fmt.Printf("Searchable attrs:   %s\n", strings.Join(searchableAttributes, ", "))
	fmt.Printf("Facet filters:      %s\n", strings.Join(facetAttributes, ", "))
	fmt.Printf("Numeric filters:    %s\n", strings.Join(numericAttributes, ", "))
	fmt.Println("Custom ranking:     desc(DateUnix)")
	fmt.Println()
	fmt.Println("Done. Settings are applied asynchronously.")
}
