// reindex-search walks the stored canonical transactions in Firestore and writes the
// surviving ones to the Algolia search index. Use it after changing the record layout or
// when search indexing was disabled during an ingest.
//
// This script is idempotent: records are keyed by transaction id, so rerunning it only
// overwrites them.
//
// Usage:
//
//	export GOOGLE_APPLICATION_CREDENTIALS=/path/to/service-account.json
//	export GOOGLE_CLOUD_PROJECT=your-project-id
//	export ALGOLIA_APP_ID=... ALGOLIA_API_KEY=...
//	go run ./scripts/reindex-search/
//	go run ./scripts/reindex-search/ -account acct-123 -batch 500
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"cloud.google.com/go/firestore"

	"github.com/castlemilk/pfinance/statements/internal/config"
	"github.com/castlemilk/pfinance/statements/internal/domain"
	"github.com/castlemilk/pfinance/statements/internal/search"
	"github.com/castlemilk/pfinance/statements/internal/store"
)

func main() {
	accountID := flag.String("account", "", "only reindex this account")
	batchSize := flag.Int("batch", 500, "records per Algolia request")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if !cfg.SearchEnabled() {
		log.Fatal("ALGOLIA_APP_ID and ALGOLIA_API_KEY are required")
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		log.Fatalf("Failed to create Firestore client: %v", err)
	}
	defer client.Close()

	index, err := search.NewAlgoliaClient(cfg.Algolia)
	if err != nil {
		log.Fatalf("Failed to create Algolia client: %v", err)
	}

	indexed := 0
	scanned, err := store.NewFirestoreStore(client).Scan(ctx, *accountID, *batchSize, func(txns []domain.CanonicalTransaction) error {
		if err := index.Index(ctx, txns); err != nil {
			return err
		}
		indexed += len(search.Records(txns))
		return nil
	})
	if err != nil {
		log.Fatalf("Reindex stopped after %d transactions: %v", scanned, err)
	}

	fmt.Printf("Scanned %d transactions, indexed %d into %q\n", scanned, indexed, cfg.Algolia.IndexName)
}
