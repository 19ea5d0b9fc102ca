package providers

import (
	"context"
	"time"

	"github.com/heibot/modguard/utils"
)

// ResilientConfig configures the resilient provider wrapper.
type ResilientConfig struct {
	// Retry configuration
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration

	// Logger for API calls
	Logger APILogger

	// EnableRetry controls whether retry is enabled.
	EnableRetry bool
}

// DefaultResilientConfig returns sensible defaults. Delays are short
// because the validator sits on the message posting path.
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		MaxRetries:   2,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		EnableRetry:  true,
	}
}

// ResilientProvider wraps a provider with retry and call logging.
type ResilientProvider struct {
	provider Provider
	backoff  *utils.Backoff
	logger   APILogger
}

var _ Provider = (*ResilientProvider)(nil)

// NewResilientProvider creates a new resilient provider wrapper.
func NewResilientProvider(provider Provider, config ResilientConfig) *ResilientProvider {
	rp := &ResilientProvider{
		provider: provider,
		logger:   config.Logger,
	}
	if rp.logger == nil {
		rp.logger = NopLogger{}
	}

	if config.EnableRetry {
		b := utils.PostingPathBackoff()
		b.Retries = config.MaxRetries
		b.Base = config.InitialDelay
		b.Cap = config.MaxDelay
		rp.backoff = &b
	}

	return rp
}

// Name returns the provider name.
func (rp *ResilientProvider) Name() string {
	return rp.provider.Name()
}

// Validate calls the provider with retry and logging.
func (rp *ResilientProvider) Validate(ctx context.Context, req Request) (Result, error) {
	timer := StartLog(rp.logger, rp.provider.Name(), "validate").
		WithContent(req.Content.ContentID).
		WithExtra("authenticated", req.Identity.Authenticated)

	var res Result
	attempts := 0
	call := func(ctx context.Context) error {
		attempts++
		var err error
		res, err = rp.provider.Validate(ctx, req)
		return err
	}

	var err error
	if rp.backoff != nil {
		err = utils.Retry(ctx, *rp.backoff, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		timer.WithRetryCount(attempts - 1).Error(ctx, err)
		return Result{}, err
	}

	timer.WithRequestID(res.RequestID).
		WithRetryCount(attempts-1).
		WithExtra("action", string(res.Action)).
		Success(ctx)
	return res, nil
}

// Unwrap returns the underlying provider.
func (rp *ResilientProvider) Unwrap() Provider {
	return rp.provider
}
