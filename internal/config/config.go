// Package config reads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/castlemilk/pfinance/statements/internal/category"
	"github.com/castlemilk/pfinance/statements/internal/dedup"
	"github.com/castlemilk/pfinance/statements/internal/normalize"
	"github.com/castlemilk/pfinance/statements/internal/search"
)

// Defaults applied when a variable is unset.
const (
	DefaultPort         = "8111"
	DefaultProjectID    = "pfinance-app-1748773335"
	DefaultMerchantData = "configs/merchants.yaml"
)

// AuthMode selects how the HTTP API authenticates callers.
type AuthMode string

const (
	// AuthFirebase verifies Firebase ID tokens.
	AuthFirebase AuthMode = "firebase"
	// AuthLocal gives every request an all-access local identity.
	AuthLocal AuthMode = "local"
	// AuthNone serves without authentication.
	AuthNone AuthMode = "none"
)

// Config is the full service configuration.
type Config struct {
	Port           string
	UseMemoryStore bool
	ProjectID      string
	// MerchantData is a local path or a gs://bucket/object URI.
	MerchantData string

	Workers           int
	Dedup             dedup.Config
	HomeCurrency      string
	ClassifierURL     string
	ClassifierTimeout time.Duration
	EnableOCR         bool
	OCRURL            string

	// Auth defaults to AuthLocal with the memory store and AuthFirebase otherwise.
	Auth AuthMode

	Algolia  search.Config
	LogLevel string
}

// SearchEnabled reports whether Algolia credentials were supplied.
func (c *Config) SearchEnabled() bool {
	return c.Algolia.AppID != "" && c.Algolia.APIKey != ""
}

// Load reads the configuration from the process environment.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom reads the configuration through getenv. Every invalid variable is reported.
func LoadFrom(getenv func(string) string) (*Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		Port:              get("PORT", DefaultPort),
		UseMemoryStore:    get("USE_MEMORY_STORE", "") == "true" || get("ENV", "") == "local",
		ProjectID:         get("GOOGLE_CLOUD_PROJECT", DefaultProjectID),
		MerchantData:      get("MERCHANT_DATA", DefaultMerchantData),
		Dedup:             dedup.DefaultConfig,
		HomeCurrency:      strings.ToUpper(get("HOME_CURRENCY", normalize.DefaultConfig.HomeCurrency)),
		ClassifierURL:     get("CLASSIFIER_URL", ""),
		ClassifierTimeout: category.DefaultTimeout,
		OCRURL:            get("OCR_URL", ""),
		Algolia: search.Config{
			AppID:     get("ALGOLIA_APP_ID", ""),
			APIKey:    get("ALGOLIA_API_KEY", ""),
			IndexName: get("ALGOLIA_INDEX_NAME", search.DefaultIndexName),
		},
		LogLevel: get("LOG_LEVEL", "info"),
	}

	cfg.Auth = AuthFirebase
	if cfg.UseMemoryStore || get("SKIP_AUTH", "") == "true" {
		cfg.Auth = AuthLocal
	}

	var errs []error
	fail := func(key, value string, err error) {
		errs = append(errs, fmt.Errorf("%s=%q: %w", key, value, err))
	}

	if v := get("INGEST_WORKERS", ""); v != "" {
		n, err := strconv.Atoi(v)
		switch {
		case err != nil:
			fail("INGEST_WORKERS", v, err)
		case n < 0:
			fail("INGEST_WORKERS", v, errors.New("must not be negative"))
		default:
			cfg.Workers = n
		}
	}
	if v := get("DEDUP_WINDOW", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			fail("DEDUP_WINDOW", v, err)
		}
		cfg.Dedup.Window = d
	}
	if v := get("DEDUP_THRESHOLD", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			fail("DEDUP_THRESHOLD", v, err)
		}
		cfg.Dedup.Threshold = n
	}
	if v := get("DEDUP_POLICY", ""); v != "" {
		cfg.Dedup.Policy = dedup.Policy(strings.ToLower(v))
	}
	if err := cfg.Dedup.Validate(); err != nil {
		errs = append(errs, err)
	}

	if v := get("CLASSIFIER_TIMEOUT", ""); v != "" {
		d, err := time.ParseDuration(v)
		switch {
		case err != nil:
			fail("CLASSIFIER_TIMEOUT", v, err)
		case d <= 0:
			fail("CLASSIFIER_TIMEOUT", v, errors.New("must be positive"))
		default:
			cfg.ClassifierTimeout = d
		}
	}
	if v := get("ENABLE_OCR", ""); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			fail("ENABLE_OCR", v, err)
		}
		cfg.EnableOCR = b
	}
	if cfg.EnableOCR && cfg.OCRURL == "" {
		errs = append(errs, errors.New("ENABLE_OCR is set but OCR_URL is empty"))
	}
	if len(cfg.HomeCurrency) != 3 {
		fail("HOME_CURRENCY", cfg.HomeCurrency, errors.New("must be a three-letter currency code"))
	}
	if v := get("AUTH_MODE", ""); v != "" {
		switch mode := AuthMode(strings.ToLower(v)); mode {
		case AuthFirebase, AuthLocal, AuthNone:
			cfg.Auth = mode
		default:
			fail("AUTH_MODE", v, errors.New("must be firebase, local or none"))
		}
	}
	if (cfg.Algolia.AppID == "") != (cfg.Algolia.APIKey == "") {
		errs = append(errs, errors.New("ALGOLIA_APP_ID and ALGOLIA_API_KEY must be set together"))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return cfg, nil
}
