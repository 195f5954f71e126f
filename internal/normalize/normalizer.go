// Package normalize turns raw statement rows into partial canonical transactions.
package normalize

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"golang.org/x/text/width"

	"github.com/castlemilk/pfinance/statements/internal/domain"
	"github.com/castlemilk/pfinance/statements/internal/similarity"
)

// Config holds the account-level defaults applied to every row.
type Config struct {
	HomeCurrency string
	Location     *time.Location
}

// DefaultConfig is tuned for Indian retail bank statements.
var DefaultConfig = Config{
	HomeCurrency: "INR",
	Location:     time.FixedZone("IST", 5*3600+1800),
}

// Warning codes reported by Normalize.
const (
	WarnDateFallback = "date-fallback"
	WarnRowMalformed = "row-malformed"
)

// Warning describes a recoverable problem with one row.
type Warning struct {
	Line   int
	Code   string
	Detail string
}

// RowMeta identifies where a row came from.
type RowMeta struct {
	AccountID string
	File      string
}

// Result is one normalized row and the PII that was lifted out of it.
type Result struct {
	Txn      domain.CanonicalTransaction
	PII      Fragment
	Warnings []Warning
}

// Normalizer converts raw rows. It is stateless apart from its configuration and safe for
// concurrent use.
type Normalizer struct {
	cfg Config
	now func() time.Time
}

// New creates a normalizer. Zero config fields take DefaultConfig values.
func New(cfg Config) *Normalizer {
	if cfg.HomeCurrency == "" {
		cfg.HomeCurrency = DefaultConfig.HomeCurrency
	}
	if cfg.Location == nil {
		cfg.Location = DefaultConfig.Location
	}
	return &Normalizer{cfg: cfg, now: time.Now}
}

// WithClock returns a copy of n that reads the current time from now.
func (n *Normalizer) WithClock(now func() time.Time) *Normalizer {
	c := *n
	c.now = now
	return &c
}

// Normalize converts one raw row. ok is false when the row must be dropped: it has neither
// a usable date nor a description, or no amount can be read from it. Every other problem
// is reported as a warning and replaced by a safe default.
func (n *Normalizer) Normalize(row domain.RawRow, meta RowMeta) (Result, bool) {
	now := n.now().In(n.cfg.Location)
	description := strings.Join(strings.Fields(row.Description), " ")

	var res Result
	date, ts, dateOK := ParseDate(row.DateText, now, n.cfg.Location)
	if !dateOK && description == "" {
		res.Warnings = append(res.Warnings, Warning{Line: row.Line, Code: WarnRowMalformed, Detail: "no usable date or description"})
		return res, false
	}

	amount, typ, ok := n.amountAndType(row, description)
	if !ok {
		res.Warnings = append(res.Warnings, Warning{Line: row.Line, Code: WarnRowMalformed, Detail: fmt.Sprintf("unreadable amount %q", firstNonEmpty(row.Debit, row.Credit, row.Amount))})
		return res, false
	}

	txn := domain.CanonicalTransaction{
		ID:        uuid.NewString(),
		AccountID: meta.AccountID,
		Date:      date,
		Timestamp: ts,
		Type:      typ,
		Amount:    amount.Value,
		Currency:  n.cfg.HomeCurrency,
		Channel:   DetectChannel(description),
		Source:    row.Origin + ":" + meta.File,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if amount.Currency != "" {
		txn.Currency = amount.Currency
	}
	if !dateOK {
		txn.Date = civil.DateOf(now)
		txn = txn.WithFlag(domain.FlagDateFallback)
		res.Warnings = append(res.Warnings, Warning{Line: row.Line, Code: WarnDateFallback, Detail: fmt.Sprintf("unparseable date %q", row.DateText)})
	}
	if bal, ok := ParseAmount(row.BalanceAfter); ok {
		v := bal.Signed()
		if bal.Hint == DirectionDebit {
			// overdrawn balances are printed as "500.00 Dr"
			v = bal.Value.Neg()
		}
		txn.BalanceAfter = &v
	}

	res.PII = ExtractPII(description)
	txn.MerchantRaw = MaskPII(ExtractMerchant(description))
	txn.RawDescription = MaskPII(description)
	txn.CleanDescription = CleanDescription(txn.RawDescription)
	if dateOK {
		txn.Fingerprint = domain.Fingerprint(txn.AccountID, txn.Date, txn.Type, txn.Amount, txn.CleanDescription)
	} else {
		txn.Fingerprint = domain.FallbackFingerprint(txn.AccountID, row.DateText, txn.Type, txn.Amount, txn.CleanDescription)
	}

	res.Txn = txn
	return res, true
}

// amountAndType applies column precedence: explicit debit or credit columns win over a
// generic amount column, whose direction comes from a CR/DR marker or the description.
func (n *Normalizer) amountAndType(row domain.RawRow, description string) (Amount, domain.TxType, bool) {
	debit, debitOK := ParseAmount(row.Debit)
	credit, creditOK := ParseAmount(row.Credit)
	switch {
	case debitOK && !debit.Value.IsZero():
		return debit, domain.TxTypeDebit, true
	case creditOK && !credit.Value.IsZero():
		return credit, domain.TxTypeCredit, true
	}

	if amount, ok := ParseAmount(row.Amount); ok {
		switch amount.Hint {
		case DirectionDebit:
			return amount, domain.TxTypeDebit, true
		case DirectionCredit:
			return amount, domain.TxTypeCredit, true
		}
		return amount, InferType(description), true
	}

	// both columns present but zero
	if debitOK || creditOK {
		return Amount{Value: debit.Value}, InferType(description), true
	}
	return Amount{}, "", false
}

var (
	transferKeywords = []string{"self", "own account", "sweep", "sweep in", "sweep out", "fd booking", "to self"}
	creditKeywords   = []string{
		"salary", "sal", "refund", "reversal", "rev", "cashback", "credited", "received", "deposit",
		"by transfer", "interest", "int pd", "dividend", "cr", "inward",
	}
	debitKeywords = []string{
		"debited", "paid", "purchase", "withdrawal", "atm", "pos", "payment", "dr", "bill",
		"emi", "charges", "fee", "outward",
	}
)

// InferType guesses the direction of a transaction from its description. Credit keywords
// beat debit keywords; a description naming neither but pointing at the holder's own
// accounts is a transfer. Debit is the default.
func InferType(description string) domain.TxType {
	words := " " + similarity.Process(description) + " "
	has := func(keywords []string) bool {
		for _, k := range keywords {
			if strings.Contains(words, " "+k+" ") {
				return true
			}
		}
		return false
	}
	switch {
	case has(creditKeywords):
		return domain.TxTypeCredit
	case has(debitKeywords):
		return domain.TxTypeDebit
	case has(transferKeywords):
		return domain.TxTypeTransfer
	default:
		return domain.TxTypeDebit
	}
}

var cleanSeparatorRe = regexp.MustCompile(`[/\-_*#:|\\]+`)

// CleanDescription upper-cases s, folds full-width characters, strips separators and
// collapses whitespace. The result is what matching and fingerprints work on.
func CleanDescription(s string) string {
	s = width.Fold.String(s)
	s = cleanSeparatorRe.ReplaceAllString(s, " ")
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
