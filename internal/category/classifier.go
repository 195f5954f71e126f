package category

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/castlemilk/pfinance/statements/internal/retry"
)

//go:generate mockgen -source=classifier.go -destination=classifier_mock.go -package=category

// Prediction is a classifier's category guess for one transaction description.
type Prediction struct {
	Category    string
	Subcategory string
	Confidence  float64
}

// Classifier predicts a category from free text.
type Classifier interface {
	Classify(ctx context.Context, text string) (Prediction, error)
}

// DefaultClassifierRetryConfig keeps retries well inside the per-call classifier timeout.
var DefaultClassifierRetryConfig = retry.Config{
	MaxRetries:     2,
	InitialDelay:   100 * time.Millisecond,
	MaxDelay:       1 * time.Second,
	BackoffFactor:  2.0,
	JitterFraction: 0.2,
}

// HTTPClassifier is an HTTP client for an external category model.
type HTTPClassifier struct {
	baseURL    string
	httpClient *http.Client
	retry      retry.Config
}

// NewHTTPClassifier creates a classifier client. The caller bounds each call with a context
// deadline; the client timeout only guards against a hung connection.
func NewHTTPClassifier(baseURL string) *HTTPClassifier {
	return &HTTPClassifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retry: DefaultClassifierRetryConfig,
	}
}

// WithRetryConfig overrides the backoff used between attempts.
func (c *HTTPClassifier) WithRetryConfig(cfg retry.Config) *HTTPClassifier {
	c.retry = cfg
	return c
}

type classifyRequest struct {
	Text string `json:"text"`
}

// classifyResponse accepts both the flat format and the "label" format some model servers return.
type classifyResponse struct {
	Category    string  `json:"category"`
	Label       string  `json:"label"`
	Subcategory string  `json:"subcategory"`
	Confidence  float64 `json:"confidence"`
	Score       float64 `json:"score"`
}

func (r classifyResponse) prediction() Prediction {
	p := Prediction{Category: r.Category, Subcategory: r.Subcategory, Confidence: r.Confidence}
	if p.Category == "" {
		p.Category = r.Label
	}
	if p.Confidence == 0 {
		p.Confidence = r.Score
	}
	return p
}

// Classify posts text to the model's /classify endpoint, retrying transient failures.
func (c *HTTPClassifier) Classify(ctx context.Context, text string) (Prediction, error) {
	return retry.Do(ctx, c.retry, func(ctx context.Context) (Prediction, error) {
		return c.classifyOnce(ctx, text)
	})
}

func (c *HTTPClassifier) classifyOnce(ctx context.Context, text string) (Prediction, error) {
	body, err := json.Marshal(classifyRequest{Text: text})
	if err != nil {
		return Prediction{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/classify", bytes.NewReader(body))
	if err != nil {
		return Prediction{}, &ClassifierError{Code: ErrClassifierRejected, Message: "create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return Prediction{}, &ClassifierError{Code: ErrClassifierTimeout, Message: "classifier call abandoned", Cause: err}
		}
		return Prediction{}, &ClassifierError{Code: ErrClassifierUnavailable, Message: "execute request", Retryable: true, Cause: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Prediction{}, &ClassifierError{Code: ErrClassifierUnavailable, Message: "read response", Retryable: true, Cause: err}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return Prediction{}, &ClassifierError{
			Code:      ErrClassifierUnavailable,
			Message:   fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(respBody, 200)),
			Retryable: true,
		}
	case resp.StatusCode != http.StatusOK:
		return Prediction{}, &ClassifierError{
			Code:    ErrClassifierRejected,
			Message: fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(respBody, 200)),
		}
	}

	var result classifyResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return Prediction{}, &ClassifierError{Code: ErrClassifierBadResponse, Message: "decode response", Cause: err}
	}
	return result.prediction(), nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
