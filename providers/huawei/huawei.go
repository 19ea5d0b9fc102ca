// Package huawei provides Huawei Cloud text moderation integration.
package huawei

import (
	"context"
	"fmt"
	"time"

	"github.com/huaweicloud/huaweicloud-sdk-go-v3/core/auth/basic"
	"github.com/huaweicloud/huaweicloud-sdk-go-v3/core/config"
	"github.com/huaweicloud/huaweicloud-sdk-go-v3/core/sdkerr"
	moderation "github.com/huaweicloud/huaweicloud-sdk-go-v3/services/moderation/v3"
	"github.com/huaweicloud/huaweicloud-sdk-go-v3/services/moderation/v3/model"
	region "github.com/huaweicloud/huaweicloud-sdk-go-v3/services/moderation/v3/region"

	modguard "github.com/heibot/modguard"
	"github.com/heibot/modguard/providers"
)

const providerName = "huawei"

// Config holds the configuration for Huawei provider.
type Config struct {
	providers.ProviderConfig

	ProjectID string

	// EventType is the moderation event type, chat by default.
	EventType string
}

// DefaultConfig returns the default Huawei configuration.
func DefaultConfig() Config {
	return Config{
		ProviderConfig: providers.ProviderConfig{
			Region:   "cn-north-4",
			Endpoint: "moderation.cn-north-4.myhuaweicloud.com",
			Timeout:  3 * time.Second,
		},
		EventType: "chat",
	}
}

// Provider implements the Huawei text moderation provider.
type Provider struct {
	config Config
	client *moderation.ModerationClient
}

var _ providers.Provider = (*Provider)(nil)

// New creates a new Huawei provider.
func New(cfg Config) (*Provider, error) {
	if cfg.AccessKeyID == "" || cfg.AccessKeySecret == "" {
		return nil, fmt.Errorf("%w: huawei ak/sk", modguard.ErrMissingConfig)
	}
	if cfg.EventType == "" {
		cfg.EventType = DefaultConfig().EventType
	}

	p := &Provider{config: cfg}
	if err := p.initClient(); err != nil {
		return nil, fmt.Errorf("failed to init huawei client: %w", err)
	}
	return p, nil
}

func (p *Provider) initClient() error {
	auth, err := basic.NewCredentialsBuilder().
		WithAk(p.config.AccessKeyID).
		WithSk(p.config.AccessKeySecret).
		WithProjectId(p.config.ProjectID).
		SafeBuild()
	if err != nil {
		return fmt.Errorf("invalid credentials: %w", err)
	}

	reg, err := region.SafeValueOf(p.config.Region)
	if err != nil {
		return fmt.Errorf("invalid region: %w", err)
	}

	builder := moderation.ModerationClientBuilder().
		WithRegion(reg).
		WithCredential(auth)
	if p.config.Timeout > 0 {
		builder = builder.WithHttpConfig(config.DefaultHttpConfig().WithTimeout(p.config.Timeout))
	}

	hc, err := builder.SafeBuild()
	if err != nil {
		return err
	}
	p.client = moderation.NewModerationClient(hc)
	return nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return providerName
}

// Validate runs the message through Huawei text moderation.
func (p *Provider) Validate(ctx context.Context, req providers.Request) (providers.Result, error) {
	eventType := p.config.EventType
	textReq := &model.RunTextModerationRequest{
		Body: &model.TextDetectionReq{
			EventType: &eventType,
			Data: &model.TextDetectionDataReq{
				Text: req.Text,
			},
		},
	}

	// The SDK call is not context aware; respect cancellation before it.
	if err := ctx.Err(); err != nil {
		return providers.Result{}, err
	}

	resp, err := p.client.RunTextModeration(textReq)
	if err != nil {
		if se, ok := err.(*sdkerr.ServiceResponseError); ok {
			return providers.Result{}, modguard.NewProviderError(providerName, se.ErrorCode, se.ErrorMessage).
				WithStatusCode(se.StatusCode).
				WithCause(err)
		}
		return providers.Result{}, modguard.NewProviderError(providerName, "request_failed", err.Error()).
			WithCategory(modguard.ErrorCategoryNetwork).
			WithCause(modguard.WrapNetworkError(err))
	}

	var (
		suggestion, label string
		details           []detail
	)
	if resp.Result != nil {
		if resp.Result.Suggestion != nil {
			suggestion = string(*resp.Result.Suggestion)
		}
		if resp.Result.Label != nil {
			label = *resp.Result.Label
		}
		if resp.Result.Details != nil {
			for _, d := range *resp.Result.Details {
				var dd detail
				if d.Label != nil {
					dd.label = *d.Label
				}
				if d.Confidence != nil {
					dd.confidence = float64(*d.Confidence)
				}
				details = append(details, dd)
			}
		}
	}

	res := parseTextResult(suggestion, label, details)
	if resp.RequestId != nil {
		res.RequestID = *resp.RequestId
	}
	return res, nil
}

type detail struct {
	label      string
	confidence float64 // 0..1
}

func parseTextResult(suggestion, label string, details []detail) providers.Result {
	result := providers.Result{
		Action:          modguard.ExternalAllow,
		ConfidenceScore: modguard.MaxConfidence,
		Provider:        providerName,
	}
	if suggestion != "" {
		result.Action = providers.ActionFromSuggestion(suggestion)
	}
	if result.Action == modguard.ExternalAllow {
		return result
	}

	seen := make(map[string]bool)
	add := func(l string) {
		category, ok := labelMappings[l]
		if !ok {
			category = l
		}
		if category == "" || seen[category] {
			return
		}
		seen[category] = true
		result.TriggeredFilters = append(result.TriggeredFilters, category)
	}

	add(label)
	best := 0.0
	for _, d := range details {
		add(d.label)
		if d.confidence > best {
			best = d.confidence
		}
	}
	if best > 0 {
		result.ConfidenceScore = providers.ClampConfidence(int(best*100 + 0.5))
		result.ViolationScore = result.ConfidenceScore
	}
	return result
}

// Huawei labels mapped to the categories reported as triggered filters.
var labelMappings = map[string]string{
	"porn":        "sexual_content",
	"sexy":        "sexual_content",
	"sexual_hint": "sexual_content",
	"moan":        "sexual_content",
	"terrorism":   "violence",
	"violence":    "violence",
	"ban":         "illegal",
	"abuse":       "harassment",
	"ad":          "spam",
	"qrcode":      "spam",
	"flood":       "spam",
	"normal":      "",
	"pass":        "",
}
