// Package tencent provides Tencent Cloud text moderation integration.
package tencent

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	tcerr "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/errors"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/profile"
	tms "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/tms/v20201229"

	modguard "github.com/heibot/modguard"
	"github.com/heibot/modguard/providers"
)

const providerName = "tencent"

// Config holds the configuration for Tencent provider.
type Config struct {
	providers.ProviderConfig

	// BizType selects a TMS policy configured in the console.
	BizType string
}

// DefaultConfig returns the default Tencent configuration.
func DefaultConfig() Config {
	return Config{
		ProviderConfig: providers.ProviderConfig{
			Region:   "ap-guangzhou",
			Endpoint: "tms.tencentcloudapi.com",
			Timeout:  3 * time.Second,
		},
	}
}

// Provider implements the Tencent text moderation provider.
type Provider struct {
	config    Config
	tmsClient *tms.Client
}

var _ providers.Provider = (*Provider)(nil)

// New creates a new Tencent provider.
func New(cfg Config) (*Provider, error) {
	if cfg.AccessKeyID == "" || cfg.AccessKeySecret == "" {
		return nil, fmt.Errorf("%w: tencent secret id/key", modguard.ErrMissingConfig)
	}

	credential := common.NewCredential(cfg.AccessKeyID, cfg.AccessKeySecret)

	cpf := profile.NewClientProfile()
	cpf.HttpProfile.Endpoint = cfg.Endpoint
	if cpf.HttpProfile.Endpoint == "" {
		cpf.HttpProfile.Endpoint = DefaultConfig().Endpoint
	}
	if cfg.Timeout > 0 {
		cpf.HttpProfile.ReqTimeout = int(cfg.Timeout.Seconds())
		if cpf.HttpProfile.ReqTimeout < 1 {
			cpf.HttpProfile.ReqTimeout = 1
		}
	}

	client, err := tms.NewClient(credential, cfg.Region, cpf)
	if err != nil {
		return nil, fmt.Errorf("failed to create tms client: %w", err)
	}

	return &Provider{config: cfg, tmsClient: client}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return providerName
}

// Validate runs the message through TMS text moderation.
func (p *Provider) Validate(ctx context.Context, req providers.Request) (providers.Result, error) {
	textReq := tms.NewTextModerationRequest()
	textReq.SetContext(ctx)
	textReq.Content = common.StringPtr(base64.StdEncoding.EncodeToString([]byte(req.Text)))
	if p.config.BizType != "" {
		textReq.BizType = common.StringPtr(p.config.BizType)
	}
	if req.Content.ContentID != "" {
		textReq.DataId = common.StringPtr(req.Content.ContentID)
	}
	if req.Identity.ID != "" {
		textReq.User = &tms.User{UserId: common.StringPtr(req.Identity.ID)}
	}

	resp, err := p.tmsClient.TextModeration(textReq)
	if err != nil {
		var sdkErr *tcerr.TencentCloudSDKError
		if errors.As(err, &sdkErr) {
			pe := modguard.NewProviderError(providerName, sdkErr.GetCode(), sdkErr.GetMessage()).WithCause(err)
			if sdkErr.GetCode() == "RequestLimitExceeded" {
				pe = pe.WithCategory(modguard.ErrorCategoryRateLimit)
			}
			return providers.Result{}, pe
		}
		return providers.Result{}, modguard.NewProviderError(providerName, "request_failed", err.Error()).
			WithCategory(modguard.ErrorCategoryNetwork).
			WithCause(modguard.WrapNetworkError(err))
	}

	return parseTextResponse(resp), nil
}

func parseTextResponse(resp *tms.TextModerationResponse) providers.Result {
	result := providers.Result{
		Action:          modguard.ExternalAllow,
		ConfidenceScore: modguard.MaxConfidence,
		Provider:        providerName,
	}
	if resp == nil || resp.Response == nil {
		return result
	}
	r := resp.Response

	if r.Suggestion != nil {
		result.Action = providers.ActionFromSuggestion(*r.Suggestion)
	}
	if r.RequestId != nil {
		result.RequestID = *r.RequestId
	}
	if r.Score != nil {
		result.ViolationScore = int(*r.Score)
		result.ConfidenceScore = providers.ClampConfidence(int(*r.Score))
	}

	seen := make(map[string]bool)
	add := func(label string) {
		m, ok := labelMappings[label]
		if !ok {
			m = labelMapping{category: label}
		}
		if m.category == "" || seen[m.category] {
			return
		}
		seen[m.category] = true
		result.TriggeredFilters = append(result.TriggeredFilters, m.category)
	}

	if r.Label != nil {
		add(*r.Label)
	}
	for _, detail := range r.DetailResults {
		if detail == nil || detail.Label == nil {
			continue
		}
		if detail.Suggestion != nil && *detail.Suggestion == "Pass" {
			continue
		}
		add(*detail.Label)
		if detail.Score != nil && int(*detail.Score) > result.ViolationScore {
			result.ViolationScore = int(*detail.Score)
		}
	}

	if result.Action == modguard.ExternalAllow {
		result.ConfidenceScore = modguard.MaxConfidence - result.ViolationScore
		result.TriggeredFilters = nil
	}
	result.ConfidenceScore = providers.ClampConfidence(result.ConfidenceScore)
	return result
}

// Tencent labels mapped to the categories reported as triggered filters.
var labelMappings = map[string]labelMapping{
	"Porn":     {category: "sexual_content"},
	"Sexy":     {category: "sexual_content"},
	"Sexual":   {category: "sexual_content"},
	"Terror":   {category: "violence"},
	"Violence": {category: "violence"},
	"Abuse":    {category: "harassment"},
	"Ad":       {category: "spam"},
	"Spam":     {category: "spam"},
	"Illegal":  {category: "illegal"},
	"Fraud":    {category: "fraud"},
	"Minor":    {category: "minor_safety"},
	"Normal":   {},
	"Pass":     {},
}

type labelMapping struct {
	category string
}
