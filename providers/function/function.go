// Package function calls a serverless content-validation function over
// HTTP and maps its action_required response to a provider result.
package function

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	modguard "github.com/heibot/modguard"
	"github.com/heibot/modguard/providers"
)

const providerName = "function"

// Config holds the configuration for the function provider.
type Config struct {
	// URL is the function endpoint.
	URL string

	// Token is sent as a bearer token when set.
	Token string

	// Timeout bounds each HTTP attempt.
	Timeout time.Duration

	// RetryMax is the number of transport-level retries.
	RetryMax int
}

// DefaultConfig returns the default function provider configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:  3 * time.Second,
		RetryMax: 1,
	}
}

type validateRequest struct {
	Content       string `json:"content"`
	UserID        string `json:"user_id"`
	Authenticated bool   `json:"authenticated"`
	ContentID     string `json:"content_id,omitempty"`
	ContentType   string `json:"content_type,omitempty"`
	ChannelID     string `json:"channel_id,omitempty"`
	Reputation    int    `json:"reputation"`
	LocalScore    int    `json:"local_score"`
}

type validateResponse struct {
	ActionRequired   string   `json:"action_required"`
	ViolationScore   int      `json:"violation_score"`
	ConfidenceScore  int      `json:"confidence_score"`
	TriggeredFilters []string `json:"triggered_filters"`
	RequestID        string   `json:"request_id"`
}

// Provider calls the validation function.
type Provider struct {
	config Config
	client *retryablehttp.Client
}

var _ providers.Provider = (*Provider)(nil)

// New creates a new function provider.
func New(cfg Config) (*Provider, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: function url", modguard.ErrMissingConfig)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.RetryWaitMin = 50 * time.Millisecond
	client.RetryWaitMax = 500 * time.Millisecond
	client.HTTPClient.Timeout = cfg.Timeout
	client.Logger = nil

	return &Provider{config: cfg, client: client}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return providerName
}

// Validate posts the message to the function and parses its decision.
func (p *Provider) Validate(ctx context.Context, req providers.Request) (providers.Result, error) {
	body, err := json.Marshal(validateRequest{
		Content:       req.Text,
		UserID:        req.Identity.ID,
		Authenticated: req.Identity.Authenticated,
		ContentID:     req.Content.ContentID,
		ContentType:   req.Content.ContentType,
		ChannelID:     req.Content.ChannelID,
		Reputation:    req.Reputation,
		LocalScore:    req.LocalScore,
	})
	if err != nil {
		return providers.Result{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, p.config.URL, bytes.NewReader(body))
	if err != nil {
		return providers.Result{}, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.config.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.config.Token)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return providers.Result{}, modguard.NewProviderError(providerName, "request_failed", err.Error()).
			WithCategory(modguard.ErrorCategoryNetwork).
			WithCause(modguard.WrapNetworkError(err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return providers.Result{}, modguard.NewProviderError(providerName, "read_failed", err.Error()).
			WithCategory(modguard.ErrorCategoryNetwork).
			WithCause(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return providers.Result{}, modguard.NewProviderError(providerName, http.StatusText(resp.StatusCode), string(raw)).
			WithStatusCode(resp.StatusCode)
	}

	var out validateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return providers.Result{}, modguard.NewProviderError(providerName, "invalid_response", err.Error()).
			WithCause(err)
	}

	action, err := providers.ParseAction(out.ActionRequired)
	if err != nil {
		return providers.Result{}, modguard.NewProviderError(providerName, "invalid_action", out.ActionRequired).
			WithCause(err)
	}

	return providers.Result{
		Action:           action,
		ViolationScore:   out.ViolationScore,
		ConfidenceScore:  providers.ClampConfidence(out.ConfidenceScore),
		TriggeredFilters: out.TriggeredFilters,
		Provider:         providerName,
		RequestID:        out.RequestID,
	}, nil
}
