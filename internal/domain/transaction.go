// Package domain defines the canonical transaction record and the raw rows it is built from.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// TxType is the direction of a transaction. The amount itself is never signed.
type TxType string

const (
	TxTypeDebit    TxType = "debit"
	TxTypeCredit   TxType = "credit"
	TxTypeTransfer TxType = "transfer"
)

// Valid reports whether t is one of the enumerated transaction types.
func (t TxType) Valid() bool {
	switch t {
	case TxTypeDebit, TxTypeCredit, TxTypeTransfer:
		return true
	}
	return false
}

// Channel is the payment rail a transaction travelled on.
type Channel string

const (
	ChannelInstantTransfer Channel = "instant_transfer"
	ChannelWireTransfer    Channel = "wire_transfer"
	ChannelCard            Channel = "card"
	ChannelATM             Channel = "atm"
	ChannelCheque          Channel = "cheque"
	ChannelCash            Channel = "cash"
)

// ChannelPtr returns a pointer to c, for optional Channel fields.
func ChannelPtr(c Channel) *Channel { return &c }

// CategorySource records which kind of evidence decided a category.
type CategorySource string

const (
	CategorySourceMapping CategorySource = "mapping"
	CategorySourceML      CategorySource = "ml"
	CategorySourceRule    CategorySource = "rule"
	CategorySourceManual  CategorySource = "manual"
	CategorySourceDefault CategorySource = "default"
)

// MatchMethod is the merchant-resolution tier (or ml) that produced a category.
type MatchMethod string

const (
	MethodExact MatchMethod = "exact"
	MethodRule  MatchMethod = "rule"
	MethodFuzzy MatchMethod = "fuzzy"
	MethodML    MatchMethod = "ml"
	MethodNone  MatchMethod = "none"
)

// Uncategorized is the category assigned when no evidence is available.
const Uncategorized = "Uncategorized"

// Flags carried on transactions.
const (
	FlagDateFallback     = "date-fallback"
	FlagSummedDuplicates = "summed-duplicates"
)

// RowExtra holds the optional per-row columns some statements carry.
type RowExtra struct {
	ChequeNumber string
	Reference    string
	ValueDate    string
}

// RawRow is a statement line exactly as a parser strategy found it, without interpretation.
type RawRow struct {
	DateText     string
	Description  string
	Debit        string
	Credit       string
	Amount       string
	BalanceAfter string
	Extra        RowExtra
	Origin       string
	Line         int
}

// CanonicalTransaction is the normalized transaction record used by every downstream feature.
type CanonicalTransaction struct {
	ID        string
	AccountID string

	Date      civil.Date
	Timestamp *time.Time

	Type     TxType
	Amount   decimal.Decimal
	Currency string

	RawDescription   string
	CleanDescription string

	MerchantRaw       string
	MerchantCanonical string
	MerchantID        string

	Category           string
	Subcategory        string
	CategorySource     CategorySource
	CategoryMethod     MatchMethod
	CategoryConfidence float64
	LowConfidence      bool

	Channel      *Channel
	AccountRef   string
	BalanceAfter *decimal.Decimal
	Source       string
	Fingerprint  string

	IsDuplicate     bool
	DuplicateOf     string
	DuplicateCount  int
	AggregateAmount *decimal.Decimal
	Flags           []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsSurvivor reports whether the transaction heads its duplicate cluster.
func (t CanonicalTransaction) IsSurvivor() bool {
	return !t.IsDuplicate
}

// HasFlag reports whether flag is set on the transaction.
func (t CanonicalTransaction) HasFlag(flag string) bool {
	for _, f := range t.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// WithFlag returns a copy of t with flag added once.
func (t CanonicalTransaction) WithFlag(flag string) CanonicalTransaction {
	if t.HasFlag(flag) {
		return t
	}
	flags := make([]string, 0, len(t.Flags)+1)
	flags = append(flags, t.Flags...)
	t.Flags = append(flags, flag)
	return t
}

// MerchantIDFor returns the stable grouping id for a canonical merchant name.
// Names that differ only in case or surrounding whitespace share an id.
func MerchantIDFor(canonical string) string {
	key := strings.ToLower(strings.TrimSpace(canonical))
	if key == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:8])
}

// Fingerprint hashes the content of a statement line so that the same line seen in two
// ingestions produces the same value.
func Fingerprint(accountID string, date civil.Date, typ TxType, amount decimal.Decimal, cleanDescription string) string {
	return fingerprint(accountID, date.String(), typ, amount, cleanDescription)
}

// FallbackFingerprint is Fingerprint for a line whose date could not be parsed. It hashes the
// printed date text instead of the substituted date, so the value does not depend on when
// the line was ingested.
func FallbackFingerprint(accountID, dateText string, typ TxType, amount decimal.Decimal, cleanDescription string) string {
	return fingerprint(accountID, "raw:"+strings.TrimSpace(dateText), typ, amount, cleanDescription)
}

func fingerprint(accountID, date string, typ TxType, amount decimal.Decimal, cleanDescription string) string {
	h := sha256.New()
	for _, part := range []string{
		accountID,
		date,
		string(typ),
		amount.StringFixed(2),
		strings.ToUpper(strings.TrimSpace(cleanDescription)),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}
