// Package app wires the configured stores, clients and pipeline together for the commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"

	"github.com/castlemilk/pfinance/statements/internal/auth"
	"github.com/castlemilk/pfinance/statements/internal/category"
	"github.com/castlemilk/pfinance/statements/internal/config"
	"github.com/castlemilk/pfinance/statements/internal/extraction"
	"github.com/castlemilk/pfinance/statements/internal/logger"
	"github.com/castlemilk/pfinance/statements/internal/merchant"
	"github.com/castlemilk/pfinance/statements/internal/pipeline"
	"github.com/castlemilk/pfinance/statements/internal/search"
	"github.com/castlemilk/pfinance/statements/internal/service"
	"github.com/castlemilk/pfinance/statements/internal/store"
	"github.com/castlemilk/pfinance/statements/internal/vault"
)

// App holds everything the commands need.
type App struct {
	Pipeline  *pipeline.Pipeline
	Merchants *merchant.Holder
	Store     store.Store
	// Search is nil unless Algolia is configured.
	Search *search.AlgoliaClient
	// Storage is nil unless merchant data or inputs live in Cloud Storage.
	Storage *storage.Client

	closers []func() error
}

// NeedsStorage reports whether any configured location is a gs:// URI.
func NeedsStorage(cfg *config.Config, inputs ...string) bool {
	if strings.HasPrefix(cfg.MerchantData, "gs://") {
		return true
	}
	for _, in := range inputs {
		if strings.HasPrefix(in, "gs://") {
			return true
		}
	}
	return false
}

// Build creates the clients selected by cfg, loads the merchant data and builds the pipeline.
// inputs are extra locations (such as CLI arguments) that may require a storage client.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger, inputs ...string) (*App, error) {
	a := &App{}

	if NeedsStorage(cfg, inputs...) {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		a.Storage = client
		a.closers = append(a.closers, client.Close)
	}

	var (
		st store.Store
		v  vault.Vault
	)
	if cfg.UseMemoryStore {
		log.Info().Msg("using in-memory store and vault")
		st = store.NewMemoryStore()
		v = vault.NewMemoryVault()
	} else {
		client, err := firestore.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("create firestore client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		st = store.NewFirestoreStore(client)
		v = vault.NewFirestoreVault(client)
	}

	if cfg.SearchEnabled() {
		client, err := search.NewAlgoliaClient(cfg.Algolia)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("create algolia client: %w", err)
		}
		a.Search = client
		st = search.NewIndexingStore(st, client, logger.Component(log, "search"))
		log.Info().Str("index", cfg.Algolia.IndexName).Msg("search indexing enabled")
	}
	a.Store = st

	source, err := merchant.SourceFor(cfg.MerchantData, a.Storage)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Merchants = merchant.NewHolder(source)
	snap, err := a.Merchants.Reload(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	log.Info().Str("source", cfg.MerchantData).Str("version", snap.Version).Int("merchants", len(snap.Exact)).Msg("merchant data loaded")

	var classifier category.Classifier
	if cfg.ClassifierURL != "" {
		classifier = category.NewHTTPClassifier(cfg.ClassifierURL)
	}
	opts := extraction.Options{EnableOCR: cfg.EnableOCR}
	if cfg.EnableOCR {
		opts.OCR = extraction.NewOCRClient(cfg.OCRURL)
	}

	pcfg := pipeline.DefaultConfig()
	pcfg.Workers = cfg.Workers
	pcfg.HomeCurrency = cfg.HomeCurrency
	pcfg.Dedup = cfg.Dedup
	pcfg.ClassifierTimeout = cfg.ClassifierTimeout

	a.Pipeline, err = pipeline.New(pcfg, pipeline.Deps{
		Merchants:  a.Merchants,
		Store:      st,
		Vault:      v,
		Classifier: classifier,
		Chain:      extraction.DefaultChain(logger.Component(log, "extraction"), opts),
		Logger:     log,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// ServiceOptions returns the HTTP service options selected by cfg.
func (a *App) ServiceOptions(ctx context.Context, cfg *config.Config, log zerolog.Logger) ([]service.Option, error) {
	var opts []service.Option
	if a.Search != nil {
		opts = append(opts, service.WithSearch(a.Search))
	}
	switch cfg.Auth {
	case config.AuthFirebase:
		fa, err := auth.NewFirebaseAuth(ctx, cfg.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("create firebase auth: %w", err)
		}
		opts = append(opts, service.WithAuth(fa))
	case config.AuthLocal:
		log.Warn().Msg("using local development authentication")
		opts = append(opts, service.WithLocalDevAuth())
	default:
		log.Warn().Msg("authentication disabled")
	}
	return opts, nil
}

// ReadInput reads a statement from a local path or a gs://bucket/object URI.
func (a *App) ReadInput(ctx context.Context, location string) ([]byte, error) {
	if !strings.HasPrefix(location, "gs://") {
		return os.ReadFile(location)
	}
	if a.Storage == nil {
		return nil, fmt.Errorf("storage client required for %s", location)
	}
	bucket, object, err := merchant.ParseGCSURI(location)
	if err != nil {
		return nil, err
	}
	r, err := a.Storage.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", location, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Close releases the clients in reverse creation order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
