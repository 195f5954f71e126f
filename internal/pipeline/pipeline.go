// Package pipeline runs statement files through parsing, normalization, merchant and category
// resolution, deduplication and persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/castlemilk/pfinance/statements/internal/category"
	"github.com/castlemilk/pfinance/statements/internal/dedup"
	"github.com/castlemilk/pfinance/statements/internal/domain"
	"github.com/castlemilk/pfinance/statements/internal/extraction"
	"github.com/castlemilk/pfinance/statements/internal/logger"
	"github.com/castlemilk/pfinance/statements/internal/merchant"
	"github.com/castlemilk/pfinance/statements/internal/normalize"
	"github.com/castlemilk/pfinance/statements/internal/store"
	"github.com/castlemilk/pfinance/statements/internal/vault"
)

// Config tunes the orchestrator.
type Config struct {
	// Workers bounds how many files are processed at once. Zero means one per CPU.
	Workers           int
	HomeCurrency      string
	Location          *time.Location
	Dedup             dedup.Config
	ClassifierTimeout time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Workers:           runtime.NumCPU(),
		HomeCurrency:      normalize.DefaultConfig.HomeCurrency,
		Location:          normalize.DefaultConfig.Location,
		Dedup:             dedup.DefaultConfig,
		ClassifierTimeout: category.DefaultTimeout,
	}
}

// Deps are the collaborators the orchestrator drives. Classifier and Chain are optional.
type Deps struct {
	Merchants  *merchant.Holder
	Store      store.Store
	Vault      vault.Vault
	Classifier category.Classifier
	Chain      *extraction.Chain
	Logger     zerolog.Logger
	// Now overrides the clock; used by tests.
	Now func() time.Time
}

// FileInput is one statement file and the account it belongs to.
type FileInput struct {
	Name      string
	Ext       string
	MIME      string
	Data      []byte
	AccountID string
	// Prior, when non-nil, replaces the store lookup of previously persisted transactions
	// for this file's account.
	Prior []domain.CanonicalTransaction
}

// Pipeline is safe for concurrent use; each batch pins its own merchant snapshot.
type Pipeline struct {
	cfg        Config
	deps       Deps
	normalizer *normalize.Normalizer
	dedup      *dedup.Engine
	log        zerolog.Logger
}

// New validates cfg and deps. Invalid configuration is returned as *ConfigError.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	if cfg.Workers < 0 {
		return nil, &ConfigError{Field: "workers", Message: fmt.Sprintf("must not be negative, got %d", cfg.Workers)}
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.ClassifierTimeout < 0 {
		return nil, &ConfigError{Field: "classifier_timeout", Message: "must not be negative"}
	}
	if err := cfg.Dedup.Validate(); err != nil {
		return nil, &ConfigError{Field: "dedup", Message: "invalid dedup settings", Cause: err}
	}
	if deps.Merchants == nil {
		return nil, &ConfigError{Field: "merchants", Message: "merchant data source is required"}
	}
	if deps.Store == nil {
		return nil, &ConfigError{Field: "store", Message: "transaction store is required"}
	}
	if deps.Vault == nil {
		return nil, &ConfigError{Field: "vault", Message: "PII vault is required"}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	log := logger.Component(deps.Logger, "pipeline")
	if deps.Chain == nil {
		deps.Chain = extraction.DefaultChain(logger.Component(deps.Logger, "extraction"), extraction.Options{})
	}

	return &Pipeline{
		cfg:  cfg,
		deps: deps,
		normalizer: normalize.New(normalize.Config{
			HomeCurrency: cfg.HomeCurrency,
			Location:     cfg.Location,
		}).WithClock(deps.Now),
		dedup: dedup.NewEngine(cfg.Dedup, logger.Component(deps.Logger, "dedup")).WithClock(deps.Now),
		log:   log,
	}, nil
}

// Process runs a single file through the pipeline.
func (p *Pipeline) Process(ctx context.Context, in FileInput) (*ProcessingResult, error) {
	res, err := p.ProcessBatch(ctx, []FileInput{in})
	if err != nil {
		return nil, err
	}
	return &res.Files[0], nil
}

// fileWork is one file's state between the per-file stages and the barrier.
type fileWork struct {
	in       FileInput
	txns     []domain.CanonicalTransaction
	stored   []bool // aligned with txns; true when the row is already persisted
	stats    BatchStats
	updated  []domain.CanonicalTransaction
	skipDone bool // nothing to dedup or persist
}

// resolvers are pinned to one merchant snapshot for the whole batch.
type resolvers struct {
	merchants  *merchant.Resolver
	categories *category.Resolver
}

// ProcessBatch processes files concurrently, then deduplicates each account against its
// prior transactions and persists file by file. Per-file problems are reported in each
// file's stats; only configuration problems and cancellation fail the batch.
func (p *Pipeline) ProcessBatch(ctx context.Context, files []FileInput) (*BatchResult, error) {
	for i, f := range files {
		if f.AccountID == "" {
			return nil, &Error{Code: ErrCodeInvalidInput, Message: fmt.Sprintf("file %d (%s) has no account id", i, f.Name)}
		}
	}

	snap, err := p.deps.Merchants.Current()
	if err != nil {
		return nil, &ConfigError{Field: "merchants", Message: "no merchant data loaded", Cause: err}
	}
	if err := snap.CheckThresholds(); err != nil {
		return nil, &ConfigError{Field: "merchants", Message: "merchant data thresholds out of range", Cause: err}
	}
	res := resolvers{
		merchants:  merchant.NewResolver(snap),
		categories: category.NewResolver(snap, p.deps.Classifier, p.cfg.ClassifierTimeout),
	}

	work := make([]*fileWork, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for i, f := range files {
		g.Go(func() error {
			work[i] = p.processFile(gctx, f, res)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, &Error{Code: ErrCodeCancelled, Message: "batch cancelled before deduplication", Cause: err}
	}

	ambiguities := p.dedupAccounts(ctx, work)
	p.persist(ctx, work)

	out := &BatchResult{Files: make([]ProcessingResult, len(work)), Ambiguities: ambiguities}
	for i, w := range work {
		out.Files[i] = ProcessingResult{
			File:         w.in.Name,
			AccountID:    w.in.AccountID,
			Transactions: w.txns,
			UpdatedPrior: w.updated,
			Stats:        w.stats,
		}
		p.log.Info().
			Str("file", w.in.Name).
			Str("account_id", w.in.AccountID).
			Str("strategy", w.stats.ParseStrategyUsed).
			Int("rows_parsed", w.stats.RowsParsed).
			Int("warnings", len(w.stats.Warnings)).
			Msg(w.stats.Summary())
	}
	return out, nil
}

// processFile runs parse, normalize, vault, merchant and category stages for one file.
func (p *Pipeline) processFile(ctx context.Context, in FileInput, res resolvers) *fileWork {
	w := &fileWork{in: in}
	rows, strategy := p.deps.Chain.Parse(ctx, extraction.Input{Name: in.Name, Data: in.Data, Ext: in.Ext, MIME: in.MIME})
	w.stats.RowsParsed = len(rows)
	w.stats.ParseStrategyUsed = strategy
	if len(rows) == 0 {
		w.stats.addError(in.Name, ReasonParseFailed, "no parser strategy produced rows")
		w.skipDone = true
		p.log.Warn().Str("file", in.Name).Msg("statement could not be parsed")
		return w
	}

	meta := normalize.RowMeta{AccountID: in.AccountID, File: in.Name}
	txns := make([]domain.CanonicalTransaction, 0, len(rows))
	for _, row := range rows {
		if ctx.Err() != nil {
			// partial results of a cancelled file are discarded
			return &fileWork{in: in, skipDone: true}
		}
		rowCtx := fmt.Sprintf("%s:%d", in.Name, row.Line)

		nr, ok := p.normalizer.Normalize(row, meta)
		for _, warn := range nr.Warnings {
			switch warn.Code {
			case normalize.WarnDateFallback:
				w.stats.addWarning(rowCtx, ReasonDateFallback, warn.Detail)
			default:
				w.stats.addError(rowCtx, ReasonRowMalformed, warn.Detail)
			}
		}
		if !ok {
			w.stats.RowsDropped++
			continue
		}
		txn := nr.Txn

		if !nr.PII.Empty() {
			ref, err := p.deps.Vault.Store(ctx, in.AccountID, nr.PII)
			if err != nil {
				w.stats.RowsDropped++
				w.stats.addError(rowCtx, ReasonVaultWriteFailed, err.Error())
				p.log.Error().Err(err).Str("row", rowCtx).Msg("vault write failed, row excluded")
				continue
			}
			txn.AccountRef = ref
		}

		mres := res.merchants.Resolve(txn.MerchantRaw)
		txn.MerchantCanonical = mres.Canonical
		txn.MerchantID = domain.MerchantIDFor(mres.Canonical)

		decision := res.categories.Resolve(ctx, txn, mres)
		if decision.ClassifierErr != nil {
			w.stats.addWarning(rowCtx, ReasonClassifierUnavailable, decision.ClassifierErr.Error())
		}
		txns = append(txns, decision.Apply(txn))
	}
	w.txns = txns
	return w
}

// dedupAccounts is the barrier stage: accounts run in parallel, each on one goroutine.
func (p *Pipeline) dedupAccounts(ctx context.Context, work []*fileWork) int {
	byAccount := make(map[string][]*fileWork)
	var accounts []string
	for _, w := range work {
		if w.skipDone || len(w.txns) == 0 {
			continue
		}
		if _, ok := byAccount[w.in.AccountID]; !ok {
			accounts = append(accounts, w.in.AccountID)
		}
		byAccount[w.in.AccountID] = append(byAccount[w.in.AccountID], w)
	}

	var (
		mu          sync.Mutex
		ambiguities int
		g           errgroup.Group
	)
	for _, account := range accounts {
		files := byAccount[account]
		g.Go(func() error {
			n := p.dedupAccount(ctx, account, files)
			mu.Lock()
			ambiguities += n
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return ambiguities
}

func (p *Pipeline) dedupAccount(ctx context.Context, account string, files []*fileWork) int {
	var batch []domain.CanonicalTransaction
	owner := make([]int, 0)
	for fi, w := range files {
		batch = append(batch, w.txns...)
		for range w.txns {
			owner = append(owner, fi)
		}
	}

	prior, err := p.priorFor(ctx, account, files, batch)
	if err != nil {
		p.log.Error().Err(err).Str("account_id", account).Msg("could not load prior transactions")
		for _, w := range files {
			w.stats.addError(w.in.Name, ReasonPriorUnavailable, err.Error())
			w.stats.RowsDropped += len(w.txns)
			w.txns = nil
			w.skipDone = true
		}
		return 0
	}

	result := p.dedup.Run(account, prior, batch)

	for _, w := range files {
		w.txns = w.txns[:0]
	}
	for i, txn := range result.Batch {
		w := files[owner[i]]
		w.txns = append(w.txns, txn)
		w.stored = append(w.stored, result.Stored[i])
	}

	// each updated prior survivor is persisted with the first file that merged into it
	firstFile := make(map[string]int)
	for i, txn := range result.Batch {
		if !txn.IsDuplicate || result.Stored[i] {
			continue
		}
		if _, ok := firstFile[txn.DuplicateOf]; !ok {
			firstFile[txn.DuplicateOf] = owner[i]
		}
	}
	for _, up := range result.UpdatedPrior {
		fi, ok := firstFile[up.ID]
		if !ok {
			fi = 0
		}
		files[fi].updated = append(files[fi].updated, up)
	}
	return result.Ambiguities
}

// priorFor returns explicit prior snapshots when any file carries one, otherwise the
// store's transactions within the batch date range widened by the dedup window.
func (p *Pipeline) priorFor(ctx context.Context, account string, files []*fileWork, batch []domain.CanonicalTransaction) ([]domain.CanonicalTransaction, error) {
	var explicit []domain.CanonicalTransaction
	hasExplicit := false
	for _, w := range files {
		if w.in.Prior != nil {
			hasExplicit = true
			explicit = append(explicit, w.in.Prior...)
		}
	}
	if hasExplicit {
		return explicit, nil
	}

	minDate, maxDate := batch[0].Date, batch[0].Date
	for _, t := range batch[1:] {
		if t.Date.Before(minDate) {
			minDate = t.Date
		}
		if t.Date.After(maxDate) {
			maxDate = t.Date
		}
	}
	margin := windowDays(p.cfg.Dedup.Window)
	return p.deps.Store.ListPrior(ctx, account, minDate.AddDays(-margin), maxDate.AddDays(margin))
}

func windowDays(w time.Duration) int {
	return int(math.Ceil(w.Hours() / 24))
}

// persist writes each file's new transactions and the prior survivors it updated. Rows that
// repeat a stored row are not written again. Files are independent: one failure does not
// roll back another.
func (p *Pipeline) persist(ctx context.Context, work []*fileWork) {
	var g errgroup.Group
	g.SetLimit(p.cfg.Workers)
	for _, w := range work {
		if w.skipDone || len(w.txns) == 0 {
			continue
		}
		g.Go(func() error {
			batch := make([]domain.CanonicalTransaction, 0, len(w.txns)+len(w.updated))
			for i, t := range w.txns {
				if i < len(w.stored) && w.stored[i] {
					continue
				}
				batch = append(batch, t)
			}
			batch = append(batch, w.updated...)

			if len(batch) == 0 {
				w.stats.DuplicatesFound += len(w.txns)
				return nil
			}
			if _, err := p.deps.Store.Persist(ctx, batch); err != nil {
				w.stats.RowsDropped += len(w.txns)
				w.stats.addError(w.in.Name, ReasonPersistFailed, err.Error())
				p.log.Error().Err(err).Str("file", w.in.Name).Msg("persist failed")
				return nil
			}
			for _, t := range w.txns {
				if t.IsDuplicate {
					w.stats.DuplicatesFound++
				} else {
					w.stats.RowsImported++
				}
			}
			return nil
		})
	}
	_ = g.Wait()
}

// IsConfigError reports whether err is a configuration error.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
