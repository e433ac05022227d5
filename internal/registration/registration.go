// Package registration validates opt-in registration codes against the
// external registration service.
package registration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// DefaultTimeout bounds a single validation request.
const DefaultTimeout = 10 * time.Second

// CodeValidationPayload is the outcome of validating a registration code. A
// failed validation is a normal business outcome, not an error.
type CodeValidationPayload struct {
	Valid       bool           `json:"valid"`
	IsDemo      bool           `json:"is_demo,omitempty"`
	AccountInfo map[string]any `json:"account_info,omitempty"`
}

// Validator validates registration codes.
type Validator interface {
	ValidateCode(ctx context.Context, code string) (CodeValidationPayload, error)
}

// HTTPValidator validates codes against the registration service over HTTP.
type HTTPValidator struct {
	url    string
	key    string
	client *http.Client
}

// Opts holds configuration for HTTPValidator.
type Opts struct {
	URL    string
	Key    string
	Client *http.Client
}

// Option configures an HTTPValidator.
type Option func(*Opts)

// WithURL sets the registration service endpoint.
func WithURL(url string) Option {
	return func(o *Opts) { o.URL = url }
}

// WithKey sets the basic authorization key.
func WithKey(key string) Option {
	return func(o *Opts) { o.Key = key }
}

// WithHTTPClient overrides the HTTP client (used in tests).
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.Client = c }
}

// NewHTTPValidator creates a validator for the configured endpoint.
func NewHTTPValidator(opts ...Option) (*HTTPValidator, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.URL == "" {
		slog.Error("HTTPValidator URL not set")
		return nil, fmt.Errorf("registration validation URL not set")
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &HTTPValidator{url: cfg.URL, key: cfg.Key, client: client}, nil
}

// ValidateCode posts the code to the registration service and decodes the
// validation payload. Transport and decoding failures are errors; an invalid
// code is a valid=false payload.
func (v *HTTPValidator) ValidateCode(ctx context.Context, code string) (CodeValidationPayload, error) {
	body, err := json.Marshal(map[string]string{"code": code})
	if err != nil {
		return CodeValidationPayload{}, fmt.Errorf("failed to encode validation request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, bytes.NewReader(body))
	if err != nil {
		return CodeValidationPayload{}, fmt.Errorf("failed to build validation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if v.key != "" {
		req.Header.Set("Authorization", "Basic "+v.key)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		slog.Error("HTTPValidator request failed", "error", err)
		return CodeValidationPayload{}, fmt.Errorf("validation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Error("HTTPValidator unexpected status", "status", resp.StatusCode)
		return CodeValidationPayload{}, fmt.Errorf("validation service returned status %d", resp.StatusCode)
	}

	var payload CodeValidationPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		slog.Error("HTTPValidator decode failed", "error", err)
		return CodeValidationPayload{}, fmt.Errorf("failed to decode validation response: %w", err)
	}
	slog.Debug("HTTPValidator code validated", "valid", payload.Valid, "is_demo", payload.IsDemo)
	return payload, nil
}
