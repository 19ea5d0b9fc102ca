package aliyun

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openapi "github.com/alibabacloud-go/darabonba-openapi/v2/client"
	green "github.com/alibabacloud-go/green-20220302/v2/client"
	util "github.com/alibabacloud-go/tea-utils/v2/service"
	"github.com/alibabacloud-go/tea/tea"

	modguard "github.com/heibot/modguard"
	"github.com/heibot/modguard/providers"
)

const providerName = "aliyun"

// Provider implements the Aliyun text moderation provider.
type Provider struct {
	config Config
	client *green.Client
}

var _ providers.Provider = (*Provider)(nil)

// New creates a new Aliyun provider.
func New(cfg Config) (*Provider, error) {
	if cfg.AccessKeyID == "" || cfg.AccessKeySecret == "" {
		return nil, fmt.Errorf("%w: aliyun access key", modguard.ErrMissingConfig)
	}
	if cfg.Service == "" {
		cfg.Service = DefaultConfig().Service
	}

	p := &Provider{config: cfg}
	if err := p.initClient(); err != nil {
		return nil, fmt.Errorf("failed to init aliyun client: %w", err)
	}
	return p, nil
}

func (p *Provider) initClient() error {
	config := &openapi.Config{
		AccessKeyId:     tea.String(p.config.AccessKeyID),
		AccessKeySecret: tea.String(p.config.AccessKeySecret),
		RegionId:        tea.String(p.config.Region),
		Endpoint:        tea.String(p.config.Endpoint),
	}
	if p.config.Timeout > 0 {
		ms := int(p.config.Timeout.Milliseconds())
		config.ReadTimeout = tea.Int(ms)
		config.ConnectTimeout = tea.Int(ms)
	}

	client, err := green.NewClient(config)
	if err != nil {
		return err
	}

	p.client = client
	return nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return providerName
}

// Validate runs the message through Green text moderation.
func (p *Provider) Validate(ctx context.Context, req providers.Request) (providers.Result, error) {
	serviceParams := map[string]any{
		"content": req.Text,
	}
	if req.Identity.ID != "" {
		serviceParams["accountId"] = req.Identity.ID
	}

	serviceParamsJSON, err := json.Marshal(serviceParams)
	if err != nil {
		return providers.Result{}, fmt.Errorf("failed to marshal service params: %w", err)
	}

	textReq := &green.TextModerationRequest{
		Service:           tea.String(p.config.Service),
		ServiceParameters: tea.String(string(serviceParamsJSON)),
	}

	// The SDK call is not context aware; respect cancellation before it.
	if err := ctx.Err(); err != nil {
		return providers.Result{}, err
	}

	resp, err := p.client.TextModerationWithOptions(textReq, &util.RuntimeOptions{})
	if err != nil {
		return providers.Result{}, modguard.NewProviderError(providerName, "request_failed", err.Error()).
			WithCategory(modguard.ErrorCategoryNetwork).
			WithCause(modguard.WrapNetworkError(err))
	}

	if resp.Body == nil || resp.Body.Code == nil {
		return providers.Result{}, modguard.NewProviderError(providerName, "invalid_response", "empty body")
	}

	if code := tea.Int32Value(resp.Body.Code); code != 200 {
		return providers.Result{}, modguard.NewProviderError(providerName, fmt.Sprint(code), tea.StringValue(resp.Body.Message)).
			WithStatusCode(int(code))
	}

	var labels, reason string
	if resp.Body.Data != nil {
		labels = tea.StringValue(resp.Body.Data.Labels)
		reason = tea.StringValue(resp.Body.Data.Reason)
	}

	res := parseTextResult(labels, reason)
	res.RequestID = tea.StringValue(resp.Body.RequestId)
	res.Raw = map[string]any{
		"requestId": res.RequestID,
		"labels":    labels,
	}
	return res, nil
}

// parseTextResult maps Green labels and the reason riskLevel to a result.
func parseTextResult(labels, reason string) providers.Result {
	res := providers.Result{
		Action:          modguard.ExternalAllow,
		ConfidenceScore: modguard.MaxConfidence,
		Provider:        providerName,
	}

	maxSeverity := 0
	seen := make(map[string]bool)
	for _, label := range strings.Split(labels, ",") {
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		m, ok := labelMappings[label]
		if !ok {
			m = labelMapping{category: label, severity: 2}
		}
		if m.category == "" {
			continue
		}
		if !seen[m.category] {
			seen[m.category] = true
			res.TriggeredFilters = append(res.TriggeredFilters, m.category)
		}
		if m.severity > maxSeverity {
			maxSeverity = m.severity
		}
	}

	if maxSeverity > 0 {
		res.Action = modguard.ExternalFlag
		res.ViolationScore = maxSeverity * 25
	}

	if reason == "" {
		return res
	}
	var reasonData struct {
		RiskLevel string `json:"riskLevel"`
	}
	if err := json.Unmarshal([]byte(reason), &reasonData); err != nil {
		return res
	}
	switch reasonData.RiskLevel {
	case "high":
		res.Action = modguard.ExternalAutoRemove
		res.ConfidenceScore = 95
	case "medium":
		res.Action = modguard.ExternalFlag
		res.ConfidenceScore = 75
	case "low":
		if res.Action != modguard.ExternalAllow {
			res.Action = modguard.ExternalWarn
		}
		res.ConfidenceScore = 50
	}
	return res
}
