// Package dedup clusters duplicate transactions for one account and applies a merge policy.
package dedup

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/castlemilk/pfinance/statements/internal/domain"
	"github.com/castlemilk/pfinance/statements/internal/similarity"
)

// Policy chooses the survivor of a duplicate cluster.
type Policy string

const (
	PolicyKeepFirst  Policy = "keep-first"
	PolicyKeepLast   Policy = "keep-last"
	PolicySumAndFlag Policy = "sum-and-flag"
)

// Valid reports whether p is a known policy.
func (p Policy) Valid() bool {
	switch p {
	case PolicyKeepFirst, PolicyKeepLast, PolicySumAndFlag:
		return true
	}
	return false
}

// Config controls candidate matching and merging.
type Config struct {
	Window    time.Duration
	Threshold int
	Policy    Policy
}

// DefaultConfig matches rows up to a day apart with 90/100 description similarity.
var DefaultConfig = Config{
	Window:    24 * time.Hour,
	Threshold: 90,
	Policy:    PolicyKeepFirst,
}

// Validate checks the configuration ranges.
func (c Config) Validate() error {
	if c.Window < 0 {
		return fmt.Errorf("dedup window must not be negative, got %s", c.Window)
	}
	if c.Threshold < 0 || c.Threshold > 100 {
		return fmt.Errorf("dedup threshold must be within 0..100, got %d", c.Threshold)
	}
	if !c.Policy.Valid() {
		return fmt.Errorf("unknown dedup policy %q", c.Policy)
	}
	return nil
}

// Cluster is a group of transactions judged to be the same event.
type Cluster struct {
	SurvivorID  string
	AbsorbedIDs []string
	// Persisted is true when the survivor was loaded from storage.
	Persisted bool
}

// Result is the outcome of one dedup run.
type Result struct {
	// Batch is the input batch, in input order, with duplicate fields set.
	Batch []domain.CanonicalTransaction
	// Stored is aligned with Batch. It is true for rows that repeat an already persisted
	// row: they point at that row's survivor, leave it untouched and need no write.
	Stored []bool
	// UpdatedPrior holds persisted survivors that absorbed new rows.
	UpdatedPrior []domain.CanonicalTransaction
	// Clusters lists every cluster with at least one absorbed member.
	Clusters    []Cluster
	Ambiguities int
}

// Engine runs deduplication. It holds no per-run state and is safe for concurrent use
// across accounts.
type Engine struct {
	cfg Config
	log zerolog.Logger
	now func() time.Time
}

// NewEngine creates an engine. cfg must be valid.
func NewEngine(cfg Config, log zerolog.Logger) *Engine {
	return &Engine{cfg: cfg, log: log, now: time.Now}
}

// WithClock overrides the clock used for UpdatedAt bumps.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

type cluster struct {
	anchor    domain.CanonicalTransaction
	persisted bool
	members   []int // batch indices in processing order
}

// Run deduplicates batch against prior for accountID. Prior survivors are never demoted.
// Rows of other accounts pass through untouched.
func (e *Engine) Run(accountID string, prior, batch []domain.CanonicalTransaction) Result {
	out := make([]domain.CanonicalTransaction, len(batch))
	copy(out, batch)

	var clusters []*cluster
	byFingerprint := make(map[string]*cluster)
	byID := make(map[string]*cluster)
	// one slot per persisted row, so a file imported twice matches itself row for row
	stored := make(map[string][]*cluster)

	for _, p := range prior {
		if p.AccountID != accountID || !p.IsSurvivor() {
			continue
		}
		c := &cluster{anchor: p, persisted: true}
		clusters = append(clusters, c)
		byID[p.ID] = c
		if p.Fingerprint != "" {
			byFingerprint[p.Fingerprint] = c
			stored[p.Fingerprint] = append(stored[p.Fingerprint], c)
		}
	}
	// Rows absorbed in an earlier run send their re-ingested twins to the same survivor.
	for _, p := range prior {
		if p.AccountID != accountID || p.IsSurvivor() || p.Fingerprint == "" {
			continue
		}
		if c, ok := byID[p.DuplicateOf]; ok {
			if _, seen := byFingerprint[p.Fingerprint]; !seen {
				byFingerprint[p.Fingerprint] = c
			}
			stored[p.Fingerprint] = append(stored[p.Fingerprint], c)
		}
	}

	order := make([]int, 0, len(out))
	for i := range out {
		if out[i].AccountID == accountID {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return contentLess(out[order[a]], out[order[b]])
	})

	res := Result{Batch: out, Stored: make([]bool, len(out))}
	for _, idx := range order {
		txn := out[idx]

		if slots := stored[txn.Fingerprint]; txn.Fingerprint != "" && len(slots) > 0 {
			stored[txn.Fingerprint] = slots[1:]
			out[idx].IsDuplicate = true
			out[idx].DuplicateOf = slots[0].anchor.ID
			out[idx].DuplicateCount = 0
			out[idx].AggregateAmount = nil
			res.Stored[idx] = true
			continue
		}

		if c, ok := byFingerprint[txn.Fingerprint]; ok && c.persisted && e.candidate(c.anchor, txn) {
			c.members = append(c.members, idx)
			continue
		}

		best, tied := e.bestCluster(clusters, txn)
		if tied > 1 {
			res.Ambiguities++
			e.log.Warn().
				Str("account_id", accountID).
				Str("transaction_id", txn.ID).
				Str("chosen_anchor", best.anchor.ID).
				Int("tied_clusters", tied).
				Msg("ambiguous duplicate match resolved by earliest date then lowest id")
		}
		if best != nil {
			best.members = append(best.members, idx)
			continue
		}

		c := &cluster{anchor: txn, members: []int{idx}}
		clusters = append(clusters, c)
		if txn.Fingerprint != "" {
			if _, seen := byFingerprint[txn.Fingerprint]; !seen {
				byFingerprint[txn.Fingerprint] = c
			}
		}
	}

	now := e.now()
	for _, c := range clusters {
		if c.persisted {
			if len(c.members) == 0 {
				continue
			}
			survivor := e.mergeInto(c.anchor, c.members, out)
			survivor.UpdatedAt = now
			res.UpdatedPrior = append(res.UpdatedPrior, survivor)
			res.Clusters = append(res.Clusters, clusterOf(survivor.ID, c.members, out, true))
			continue
		}
		if len(c.members) < 2 {
			continue
		}
		pick := c.members[0]
		if e.cfg.Policy == PolicyKeepLast {
			pick = c.members[len(c.members)-1]
		}
		absorbed := make([]int, 0, len(c.members)-1)
		for _, m := range c.members {
			if m != pick {
				absorbed = append(absorbed, m)
			}
		}
		out[pick] = e.mergeInto(out[pick], absorbed, out)
		res.Clusters = append(res.Clusters, clusterOf(out[pick].ID, absorbed, out, false))
	}

	return res
}

// mergeInto marks absorbed batch rows as duplicates of survivor and returns the updated survivor.
func (e *Engine) mergeInto(survivor domain.CanonicalTransaction, absorbed []int, out []domain.CanonicalTransaction) domain.CanonicalTransaction {
	for _, m := range absorbed {
		out[m].IsDuplicate = true
		out[m].DuplicateOf = survivor.ID
		out[m].DuplicateCount = 0
		out[m].AggregateAmount = nil
	}
	survivor.IsDuplicate = false
	survivor.DuplicateOf = ""
	survivor.DuplicateCount += len(absorbed)

	if e.cfg.Policy == PolicySumAndFlag {
		total := survivor.Amount
		if survivor.AggregateAmount != nil {
			total = *survivor.AggregateAmount
		}
		for _, m := range absorbed {
			total = total.Add(out[m].Amount)
		}
		survivor.AggregateAmount = decimalPtr(total)
		survivor = survivor.WithFlag(domain.FlagSummedDuplicates)
	}
	return survivor
}

// bestCluster returns the highest scoring candidate cluster and how many clusters shared
// that score.
func (e *Engine) bestCluster(clusters []*cluster, txn domain.CanonicalTransaction) (*cluster, int) {
	var best *cluster
	bestScore, tied := -1, 0
	for _, c := range clusters {
		if !e.candidate(c.anchor, txn) {
			continue
		}
		score := e.score(c.anchor, txn)
		if score < e.cfg.Threshold {
			continue
		}
		switch {
		case score > bestScore:
			best, bestScore, tied = c, score, 1
		case score == bestScore:
			tied++
			if anchorLess(c.anchor, best.anchor) {
				best = c
			}
		}
	}
	return best, tied
}

// candidate checks the non-textual match conditions.
func (e *Engine) candidate(a, b domain.CanonicalTransaction) bool {
	if a.AccountID != b.AccountID || a.Type != b.Type {
		return false
	}
	if !a.Amount.Equal(b.Amount) {
		return false
	}
	return dateDistance(a, b) <= e.cfg.Window
}

// score is the description similarity of a and b, 100 when they share a fingerprint.
func (e *Engine) score(a, b domain.CanonicalTransaction) int {
	if a.Fingerprint != "" && a.Fingerprint == b.Fingerprint {
		return 100
	}
	return similarity.WRatio(a.CleanDescription, b.CleanDescription)
}

// Matches reports whether a and b would be clustered together under cfg.
func Matches(cfg Config, a, b domain.CanonicalTransaction) bool {
	e := &Engine{cfg: cfg}
	return e.candidate(a, b) && e.score(a, b) >= cfg.Threshold
}

func dateDistance(a, b domain.CanonicalTransaction) time.Duration {
	if a.Timestamp != nil && b.Timestamp != nil {
		d := a.Timestamp.Sub(*b.Timestamp)
		if d < 0 {
			d = -d
		}
		return d
	}
	days := a.Date.DaysSince(b.Date)
	if days < 0 {
		days = -days
	}
	return time.Duration(days) * 24 * time.Hour
}

// contentLess orders rows by content so that clustering does not depend on input order.
func contentLess(a, b domain.CanonicalTransaction) bool {
	if a.Date != b.Date {
		return a.Date.Before(b.Date)
	}
	if a.Fingerprint != b.Fingerprint {
		return a.Fingerprint < b.Fingerprint
	}
	return a.ID < b.ID
}

func anchorLess(a, b domain.CanonicalTransaction) bool {
	if a.Date != b.Date {
		return a.Date.Before(b.Date)
	}
	return a.ID < b.ID
}

func clusterOf(survivorID string, absorbed []int, out []domain.CanonicalTransaction, persisted bool) Cluster {
	ids := make([]string, len(absorbed))
	for i, m := range absorbed {
		ids[i] = out[m].ID
	}
	return Cluster{SurvivorID: survivorID, AbsorbedIDs: ids, Persisted: persisted}
}

func decimalPtr(d decimal.Decimal) *decimal.Decimal { return &d }
