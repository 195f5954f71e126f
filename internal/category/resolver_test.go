package category

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"github.com/castlemilk/pfinance/statements/internal/domain"
	"github.com/castlemilk/pfinance/statements/internal/merchant"
)

func newTestResolver(c Classifier) *Resolver {
	return &Resolver{
		MappingThreshold: 0.8,
		MLThreshold:      0.6,
		FuzzyFloor:       0.85,
		Classifier:       c,
		Timeout:          50 * time.Millisecond,
	}
}

var txn = domain.CanonicalTransaction{CleanDescription: "UPI SWIGGY LTD PAYMENT"}

func TestResolve_ConfidentMappingSkipsClassifier(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// no EXPECT: any classifier call fails the test
	mockClassifier := NewMockClassifier(ctrl)
	r := newTestResolver(mockClassifier)

	d := r.Resolve(context.Background(), txn, merchant.Resolution{
		Canonical: "Swiggy", Category: "Food", Subcategory: "Delivery", Confidence: 1.0, Method: domain.MethodExact,
	})

	assert.Equal(t, "Food", d.Category)
	assert.Equal(t, "Delivery", d.Subcategory)
	assert.Equal(t, domain.CategorySourceMapping, d.Source)
	assert.Equal(t, domain.MethodExact, d.Method)
	assert.Equal(t, 1.0, d.Confidence)
	assert.False(t, d.LowConfidence)
}

func TestResolve_ClassifierFillsGap(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockClassifier := NewMockClassifier(ctrl)
	mockClassifier.EXPECT().
		Classify(gomock.Any(), "Corner Cafe UPI CORNER CAFE").
		Return(Prediction{Category: "Food", Subcategory: "Dining", Confidence: 0.97}, nil)

	r := newTestResolver(mockClassifier)
	d := r.Resolve(context.Background(),
		domain.CanonicalTransaction{CleanDescription: "UPI CORNER CAFE"},
		merchant.Resolution{Canonical: "Corner Cafe", Category: domain.Uncategorized, Method: domain.MethodNone},
	)

	assert.Equal(t, "Food", d.Category)
	assert.Equal(t, domain.CategorySourceML, d.Source)
	assert.Equal(t, domain.MethodML, d.Method)
	assert.Equal(t, 0.85, d.Confidence, "ml confidence is capped at the fuzzy floor")
	assert.NoError(t, d.ClassifierErr)
}

func TestResolve_DecisionOrder(t *testing.T) {
	weak := merchant.Resolution{Canonical: "Bigbazar", Category: "Shopping", Confidence: 0.3, Method: domain.MethodFuzzy}
	none := merchant.Resolution{Canonical: "Ravi", Category: domain.Uncategorized, Method: domain.MethodNone}

	tests := []struct {
		name       string
		res        merchant.Resolution
		pred       Prediction
		err        error
		wantCat    string
		wantSource domain.CategorySource
		wantLow    bool
		wantConf   float64
	}{
		{
			name:       "low classifier confidence falls back to weak mapping",
			res:        weak,
			pred:       Prediction{Category: "Travel", Confidence: 0.4},
			wantCat:    "Shopping",
			wantSource: domain.CategorySourceMapping,
			wantLow:    true,
			wantConf:   0.3,
		},
		{
			name:       "confident classifier beats weak mapping",
			res:        weak,
			pred:       Prediction{Category: "Travel", Confidence: 0.7},
			wantCat:    "Travel",
			wantSource: domain.CategorySourceML,
			wantConf:   0.7,
		},
		{
			name:       "classifier error falls back to weak mapping",
			res:        weak,
			err:        errors.New("boom"),
			wantCat:    "Shopping",
			wantSource: domain.CategorySourceMapping,
			wantLow:    true,
			wantConf:   0.3,
		},
		{
			name:       "nothing known",
			res:        none,
			pred:       Prediction{Category: "Travel", Confidence: 0.2},
			wantCat:    domain.Uncategorized,
			wantSource: domain.CategorySourceDefault,
			wantConf:   0,
		},
		{
			name:       "empty prediction",
			res:        none,
			pred:       Prediction{Confidence: 0.99},
			wantCat:    domain.Uncategorized,
			wantSource: domain.CategorySourceDefault,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockClassifier := NewMockClassifier(ctrl)
			mockClassifier.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(tt.pred, tt.err)

			d := newTestResolver(mockClassifier).Resolve(context.Background(), txn, tt.res)
			assert.Equal(t, tt.wantCat, d.Category)
			assert.Equal(t, tt.wantSource, d.Source)
			assert.Equal(t, tt.wantLow, d.LowConfidence)
			assert.InDelta(t, tt.wantConf, d.Confidence, 1e-9)
			if tt.err != nil {
				assert.Error(t, d.ClassifierErr)
			}
		})
	}
}

func TestResolve_ClassifierTimeoutUsesWeakMapping(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockClassifier := NewMockClassifier(ctrl)
	mockClassifier.EXPECT().
		Classify(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, text string) (Prediction, error) {
			<-ctx.Done()
			return Prediction{}, ctx.Err()
		})

	r := newTestResolver(mockClassifier)
	start := time.Now()
	d := r.Resolve(context.Background(), txn, merchant.Resolution{
		Canonical: "Bigbazar", Category: "Shopping", Confidence: 0.3, Method: domain.MethodFuzzy,
	})

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, "Shopping", d.Category)
	assert.Equal(t, domain.CategorySourceMapping, d.Source)
	assert.True(t, d.LowConfidence)
	assert.Equal(t, 0.3, d.Confidence)
	assert.Error(t, d.ClassifierErr)
}

func TestResolve_ClassifierIgnoringContextIsAbandoned(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	release := make(chan struct{})
	defer close(release)

	mockClassifier := NewMockClassifier(ctrl)
	mockClassifier.EXPECT().
		Classify(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, text string) (Prediction, error) {
			<-release
			return Prediction{Category: "Late", Confidence: 1}, nil
		})

	d := newTestResolver(mockClassifier).Resolve(context.Background(), txn, merchant.Resolution{Category: domain.Uncategorized})

	assert.Equal(t, domain.Uncategorized, d.Category)
	var clsErr *ClassifierError
	if assert.ErrorAs(t, d.ClassifierErr, &clsErr) {
		assert.Equal(t, ErrClassifierTimeout, clsErr.Code)
	}
}

func TestResolve_NoClassifier(t *testing.T) {
	r := newTestResolver(nil)
	d := r.Resolve(context.Background(), txn, merchant.Resolution{Category: domain.Uncategorized, Method: domain.MethodNone})
	assert.Equal(t, domain.Uncategorized, d.Category)
	assert.Equal(t, domain.CategorySourceDefault, d.Source)
	assert.Equal(t, 0.0, d.Confidence)
	assert.NoError(t, d.ClassifierErr)
}

func TestNewResolver_FromSnapshot(t *testing.T) {
	snap, err := merchant.Parse([]byte("fuzzy_threshold: 90\nmapping_threshold: 0.75\nml_threshold: 0.5\n"))
	if err != nil {
		t.Fatal(err)
	}
	r := NewResolver(snap, nil, 0)
	assert.Equal(t, 0.75, r.MappingThreshold)
	assert.Equal(t, 0.5, r.MLThreshold)
	assert.Equal(t, 0.9, r.FuzzyFloor)
	assert.Equal(t, DefaultTimeout, r.Timeout)
}

func TestDecision_Apply(t *testing.T) {
	got := Decision{
		Category: "Food", Subcategory: "Delivery", Source: domain.CategorySourceMapping,
		Method: domain.MethodFuzzy, Confidence: 0.9, LowConfidence: true,
	}.Apply(domain.CanonicalTransaction{ID: "t1"})

	assert.Equal(t, "t1", got.ID)
	assert.Equal(t, "Food", got.Category)
	assert.Equal(t, domain.MethodFuzzy, got.CategoryMethod)
	assert.True(t, got.LowConfidence)
}
