package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/castlemilk/pfinance/statements/internal/retry"
)

// DefaultOCRRetryConfig is tuned for OCR service cold starts.
var DefaultOCRRetryConfig = retry.Config{
	MaxRetries:     3,
	InitialDelay:   2 * time.Second,
	MaxDelay:       30 * time.Second,
	BackoffFactor:  2.0,
	JitterFraction: 0.3,
}

// OCRClient is an HTTP client for the OCR service used on scanned statements.
type OCRClient struct {
	baseURL    string
	httpClient *http.Client
	// Retry applies to Recognize.
	Retry retry.Config
}

// NewOCRClient creates a new OCR service client.
func NewOCRClient(baseURL string) *OCRClient {
	return &OCRClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 120 * time.Second, // recognition of multi-page scans is slow
		},
		Retry: DefaultOCRRetryConfig,
	}
}

// OCRResponse is the recognition result. Services return either pre-split lines or a
// single text blob.
type OCRResponse struct {
	Lines      []string `json:"lines"`
	Text       string   `json:"text"`
	PageCount  int      `json:"page_count"`
	ModelUsed  string   `json:"model_used"`
	Confidence float64  `json:"confidence"`
}

// AllLines returns the recognized lines, splitting Text when Lines is empty.
func (r *OCRResponse) AllLines() []string {
	if len(r.Lines) > 0 {
		return r.Lines
	}
	if r.Text == "" {
		return nil
	}
	return textLines([]byte(r.Text))
}

// OCRHealthResponse represents the health check response.
type OCRHealthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	ModelName   string `json:"model_name"`
	Version     string `json:"version"`
}

// HealthCheck checks if the OCR service is healthy.
func (c *OCRClient) HealthCheck(ctx context.Context) (*OCRHealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("health check failed: status %d, body: %s", resp.StatusCode, string(body))
	}

	var health OCRHealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &health, nil
}

// Recognize uploads a scanned statement and returns its text lines, retrying transient failures.
func (c *OCRClient) Recognize(ctx context.Context, data []byte) ([]string, error) {
	return retry.Do(ctx, c.Retry, func(ctx context.Context) ([]string, error) {
		return c.recognize(ctx, data)
	})
}

func (c *OCRClient) recognize(ctx context.Context, data []byte) ([]string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", "statement")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("write file data: %w", err)
	}
	if err := writer.WriteField("document_type", "bank_statement"); err != nil {
		return nil, fmt.Errorf("write document_type: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ocr", &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		code := ErrOCRUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			code = ErrOCRTimeout
		}
		return nil, &OCRError{Code: code, Message: "execute request", Retryable: ctx.Err() == nil, Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyOCRStatus(resp.StatusCode, string(body))
	}

	var result OCRResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &OCRError{Code: ErrMalformedResults, Message: "decode response", Cause: err}
	}
	return result.AllLines(), nil
}
