// Package category decides a transaction's category from merchant evidence and an optional classifier.
package category

import (
	"context"
	"fmt"
	"time"

	"github.com/castlemilk/pfinance/statements/internal/domain"
	"github.com/castlemilk/pfinance/statements/internal/merchant"
)

// DefaultTimeout bounds a single classifier call.
const DefaultTimeout = 2 * time.Second

// Resolver applies the decision order: confident mapping, confident classifier, weak mapping, default.
type Resolver struct {
	MappingThreshold float64
	MLThreshold      float64
	// FuzzyFloor caps classifier confidence so ml never outranks a fuzzy merchant match.
	FuzzyFloor float64
	Classifier Classifier
	Timeout    time.Duration
}

// NewResolver builds a resolver from the thresholds carried by a merchant snapshot.
func NewResolver(snap *merchant.Snapshot, classifier Classifier, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Resolver{
		MappingThreshold: snap.MappingThreshold,
		MLThreshold:      snap.MLThreshold,
		FuzzyFloor:       float64(snap.FuzzyThreshold) / 100,
		Classifier:       classifier,
		Timeout:          timeout,
	}
}

// Decision is the outcome of resolving one transaction.
type Decision struct {
	Category      string
	Subcategory   string
	Source        domain.CategorySource
	Method        domain.MatchMethod
	Confidence    float64
	LowConfidence bool
	// ClassifierErr is set when the classifier was consulted and failed.
	ClassifierErr error
}

// Apply copies the decision onto txn.
func (d Decision) Apply(txn domain.CanonicalTransaction) domain.CanonicalTransaction {
	txn.Category = d.Category
	txn.Subcategory = d.Subcategory
	txn.CategorySource = d.Source
	txn.CategoryMethod = d.Method
	txn.CategoryConfidence = d.Confidence
	txn.LowConfidence = d.LowConfidence
	return txn
}

// Resolve picks the category for txn given its merchant resolution. The classifier is only
// consulted when the merchant evidence is below the mapping threshold. A classifier error or
// timeout is treated as no prediction.
func (r *Resolver) Resolve(ctx context.Context, txn domain.CanonicalTransaction, m merchant.Resolution) Decision {
	if m.Confidence >= r.MappingThreshold && hasCategory(m.Category) {
		return mapping(m, false)
	}

	var d Decision
	if r.Classifier != nil {
		pred, err := r.classify(ctx, classifierText(txn, m))
		switch {
		case err != nil:
			d.ClassifierErr = err
		case pred.Category != "" && pred.Confidence >= r.MLThreshold:
			return Decision{
				Category:    pred.Category,
				Subcategory: pred.Subcategory,
				Source:      domain.CategorySourceML,
				Method:      domain.MethodML,
				Confidence:  r.capML(pred.Confidence),
			}
		}
	}

	if m.Confidence > 0 && hasCategory(m.Category) {
		weak := mapping(m, true)
		weak.ClassifierErr = d.ClassifierErr
		return weak
	}

	return Decision{
		Category:      domain.Uncategorized,
		Source:        domain.CategorySourceDefault,
		Method:        domain.MethodNone,
		ClassifierErr: d.ClassifierErr,
	}
}

func (r *Resolver) classify(ctx context.Context, text string) (Prediction, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		pred Prediction
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- result{err: &ClassifierError{Code: ErrClassifierUnavailable, Message: fmt.Sprintf("classifier panic: %v", rec)}}
			}
		}()
		p, err := r.Classifier.Classify(ctx, text)
		done <- result{p, err}
	}()

	// A classifier that ignores its context still cannot hold up the row.
	select {
	case res := <-done:
		return res.pred, res.err
	case <-ctx.Done():
		return Prediction{}, &ClassifierError{Code: ErrClassifierTimeout, Message: "classifier timed out", Cause: ctx.Err()}
	}
}

func (r *Resolver) capML(conf float64) float64 {
	if r.FuzzyFloor > 0 && conf > r.FuzzyFloor {
		conf = r.FuzzyFloor
	}
	return conf
}

func mapping(m merchant.Resolution, low bool) Decision {
	return Decision{
		Category:      m.Category,
		Subcategory:   m.Subcategory,
		Source:        domain.CategorySourceMapping,
		Method:        m.Method,
		Confidence:    m.Confidence,
		LowConfidence: low,
	}
}

func hasCategory(c string) bool {
	return c != "" && c != domain.Uncategorized
}

func classifierText(txn domain.CanonicalTransaction, m merchant.Resolution) string {
	text := txn.CleanDescription
	if text == "" {
		text = txn.RawDescription
	}
	if m.Canonical != "" {
		text = m.Canonical + " " + text
	}
	return text
}
