package merchant

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/castlemilk/pfinance/statements/internal/domain"
	"github.com/castlemilk/pfinance/statements/internal/similarity"
)

// Confidence of each resolution tier. Fuzzy matches are capped below rule matches so the
// tiers stay ordered even for a perfect fuzzy score.
const (
	ExactConfidence    = 1.0
	RuleConfidence     = 0.95
	MaxFuzzyConfidence = 0.94
)

// Resolution is the outcome of resolving one raw merchant string.
type Resolution struct {
	Canonical   string
	Category    string
	Subcategory string
	Confidence  float64
	Method      domain.MatchMethod
}

var (
	legalSuffixRe = regexp.MustCompile(`(?i)\b(pvt|private|ltd|limited|inc|llp|llc|corp|corporation|co|pty|plc)\b\.?`)
	punctuationRe = regexp.MustCompile(`[^\p{L}\p{N}&\s]+`)
)

// Clean lower-cases a merchant name, strips legal-entity suffixes and punctuation and
// collapses whitespace. Lookup keys and inputs both go through it.
func Clean(name string) string {
	s := strings.ToLower(name)
	s = punctuationRe.ReplaceAllString(s, " ")
	s = legalSuffixRe.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// Resolver resolves merchants against one snapshot. Take a new Resolver per batch from
// Holder.Resolver so a reload never changes results mid-batch.
type Resolver struct {
	snap *Snapshot
}

// NewResolver creates a resolver over snap, which must have been validated.
func NewResolver(snap *Snapshot) *Resolver {
	return &Resolver{snap: snap}
}

// Snapshot returns the data the resolver works on.
func (r *Resolver) Snapshot() *Snapshot { return r.snap }

// Resolve tries the exact table, then the ordered rules, then fuzzy matching against the
// known vocabulary. The first tier that hits wins.
func (r *Resolver) Resolve(merchantRaw string) Resolution {
	cleaned := Clean(merchantRaw)
	if cleaned == "" {
		return passthrough(merchantRaw)
	}

	if t, ok := r.snap.Exact[cleaned]; ok {
		return resolution(t, ExactConfidence, domain.MethodExact)
	}

	for i := range r.snap.Rules {
		if r.snap.Rules[i].matches(cleaned) {
			return resolution(r.snap.Rules[i].Target, RuleConfidence, domain.MethodRule)
		}
	}

	bestKey, bestScore := "", -1
	for _, key := range r.snap.vocabulary {
		if score := similarity.WRatio(cleaned, key); score > bestScore {
			bestKey, bestScore = key, score
		}
	}
	if bestKey != "" && bestScore >= r.snap.FuzzyThreshold {
		conf := float64(bestScore) / 100
		if conf > MaxFuzzyConfidence {
			conf = MaxFuzzyConfidence
		}
		return resolution(r.snap.Exact[bestKey], conf, domain.MethodFuzzy)
	}

	return passthrough(merchantRaw)
}

func resolution(t Target, conf float64, method domain.MatchMethod) Resolution {
	return Resolution{
		Canonical:   t.Canonical,
		Category:    t.Category,
		Subcategory: t.Subcategory,
		Confidence:  conf,
		Method:      method,
	}
}

func passthrough(raw string) Resolution {
	return Resolution{
		Canonical:  displayName(raw),
		Category:   domain.Uncategorized,
		Confidence: 0,
		Method:     domain.MethodNone,
	}
}

// displayName tidies an unresolved merchant for display. Shouting upper-case names are
// title-cased; anything else keeps its casing.
func displayName(raw string) string {
	name := strings.Join(strings.Fields(raw), " ")
	if name != strings.ToUpper(name) {
		return name
	}
	caser := cases.Title(language.English)
	words := strings.Fields(name)
	for i, w := range words {
		if len(w) > 2 {
			words[i] = caser.String(strings.ToLower(w))
		}
	}
	return strings.Join(words, " ")
}
