package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castlemilk/pfinance/statements/internal/dedup"
)

func env(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(env(nil))
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultProjectID, cfg.ProjectID)
	assert.Equal(t, DefaultMerchantData, cfg.MerchantData)
	assert.False(t, cfg.UseMemoryStore)
	assert.Equal(t, dedup.DefaultConfig, cfg.Dedup)
	assert.Equal(t, "INR", cfg.HomeCurrency)
	assert.Equal(t, 2*time.Second, cfg.ClassifierTimeout)
	assert.Equal(t, 0, cfg.Workers)
	assert.False(t, cfg.SearchEnabled())
	assert.Equal(t, "transactions", cfg.Algolia.IndexName)
	assert.Equal(t, AuthFirebase, cfg.Auth)
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := LoadFrom(env(map[string]string{
		"PORT":               "9000",
		"ENV":                "local",
		"MERCHANT_DATA":      "gs://pfinance-config/merchants.yaml",
		"INGEST_WORKERS":     "8",
		"DEDUP_WINDOW":       "48h",
		"DEDUP_THRESHOLD":    "80",
		"DEDUP_POLICY":       "Sum-And-Flag",
		"CLASSIFIER_URL":     "http://classifier:8000",
		"CLASSIFIER_TIMEOUT": "500ms",
		"ENABLE_OCR":         "true",
		"OCR_URL":            "http://ocr:8000",
		"HOME_CURRENCY":      "usd",
		"ALGOLIA_APP_ID":     "APP",
		"ALGOLIA_API_KEY":    "KEY",
		"LOG_LEVEL":          "debug",
	}))
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.True(t, cfg.UseMemoryStore)
	assert.Equal(t, "gs://pfinance-config/merchants.yaml", cfg.MerchantData)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, dedup.Config{Window: 48 * time.Hour, Threshold: 80, Policy: dedup.PolicySumAndFlag}, cfg.Dedup)
	assert.Equal(t, 500*time.Millisecond, cfg.ClassifierTimeout)
	assert.True(t, cfg.EnableOCR)
	assert.Equal(t, "USD", cfg.HomeCurrency)
	assert.True(t, cfg.SearchEnabled())
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, AuthLocal, cfg.Auth)
}

func TestLoadFrom_AuthMode(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
		want AuthMode
	}{
		{"firestore defaults to firebase", nil, AuthFirebase},
		{"memory store defaults to local", map[string]string{"USE_MEMORY_STORE": "true"}, AuthLocal},
		{"skip auth", map[string]string{"SKIP_AUTH": "true"}, AuthLocal},
		{"explicit none", map[string]string{"USE_MEMORY_STORE": "true", "AUTH_MODE": "None"}, AuthNone},
		{"explicit firebase", map[string]string{"ENV": "local", "AUTH_MODE": "firebase"}, AuthFirebase},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadFrom(env(tt.vars))
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Auth)
		})
	}
}

func TestLoadFrom_Invalid(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
		want string
	}{
		{"workers not a number", map[string]string{"INGEST_WORKERS": "many"}, "INGEST_WORKERS"},
		{"negative workers", map[string]string{"INGEST_WORKERS": "-2"}, "must not be negative"},
		{"window", map[string]string{"DEDUP_WINDOW": "a day"}, "DEDUP_WINDOW"},
		{"threshold range", map[string]string{"DEDUP_THRESHOLD": "150"}, "threshold"},
		{"policy", map[string]string{"DEDUP_POLICY": "merge"}, "unknown dedup policy"},
		{"classifier timeout", map[string]string{"CLASSIFIER_TIMEOUT": "0s"}, "must be positive"},
		{"ocr without url", map[string]string{"ENABLE_OCR": "1"}, "OCR_URL"},
		{"currency", map[string]string{"HOME_CURRENCY": "RUPEE"}, "HOME_CURRENCY"},
		{"auth mode", map[string]string{"AUTH_MODE": "basic"}, "AUTH_MODE"},
		{"half algolia", map[string]string{"ALGOLIA_APP_ID": "APP"}, "set together"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(env(tt.vars))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadFrom_ReportsEveryProblem(t *testing.T) {
	_, err := LoadFrom(env(map[string]string{
		"INGEST_WORKERS": "x",
		"DEDUP_POLICY":   "merge",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INGEST_WORKERS")
	assert.Contains(t, err.Error(), "merge")
}
