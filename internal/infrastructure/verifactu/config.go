package verifactu

import (
	"errors"
	"strings"
	"time"
)

const (
	productionBaseURL = "https://api.verifacti.com"
	testBaseURL       = "https://api-test.verifacti.com"

	// DefaultMaxRetries is the attempt ceiling per logical request
	DefaultMaxRetries = 3
	// DefaultRetryDelay is the base for exponential backoff between attempts
	DefaultRetryDelay = time.Second
	// DefaultTimeout is the per-attempt deadline
	DefaultTimeout = 30 * time.Second
)

var (
	ErrAPIKeyRequired       = errors.New("verifactu: API key is required")
	ErrCompanyTaxIDRequired = errors.New("verifactu: company tax ID is required")
	ErrTestKeyInProduction  = errors.New("verifactu: production mode cannot use a test API key")
)

// Config holds one tenant's connection settings. Every knob is explicit so a
// single process can host several tenant configurations side by side.
type Config struct {
	APIKey       string
	CompanyTaxID string
	IsProduction bool

	// BaseURL overrides the environment-derived endpoint, mainly for tests
	BaseURL string

	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
}

// Validate checks the config for the mistakes that are cheapest to catch at
// construction time
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrAPIKeyRequired
	}
	if c.CompanyTaxID == "" {
		return ErrCompanyTaxIDRequired
	}
	if c.IsProduction && strings.Contains(c.APIKey, "test") {
		return ErrTestKeyInProduction
	}
	return nil
}

// baseURL resolves the endpoint for this config
func (c *Config) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	if c.IsProduction {
		return productionBaseURL
	}
	return testBaseURL
}

// applyDefaults fills unset tuning knobs
func (c *Config) applyDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}
