package aliyun

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	modguard "github.com/heibot/modguard"
)

func TestParseTextResult(t *testing.T) {
	tests := []struct {
		name       string
		labels     string
		reason     string
		wantAction modguard.ExternalAction
		wantConf   int
		wantCats   []string
	}{
		{"clean", "", "", modguard.ExternalAllow, 100, nil},
		{"normal label", "normal", "", modguard.ExternalAllow, 100, nil},
		{"label only", "ad,contact_info", "", modguard.ExternalFlag, 100, []string{"spam"}},
		{"high risk", "porn", `{"riskLevel":"high"}`, modguard.ExternalAutoRemove, 95, []string{"sexual_content"}},
		{"medium risk", "abuse", `{"riskLevel":"medium"}`, modguard.ExternalFlag, 75, []string{"harassment"}},
		{"low risk", "insult", `{"riskLevel":"low"}`, modguard.ExternalWarn, 50, []string{"harassment"}},
		{"unknown label", "novel_label", "", modguard.ExternalFlag, 100, []string{"novel_label"}},
		{"malformed reason", "spam", `{`, modguard.ExternalFlag, 100, []string{"spam"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseTextResult(tt.labels, tt.reason)
			assert.Equal(t, tt.wantAction, got.Action)
			assert.Equal(t, tt.wantConf, got.ConfidenceScore)
			assert.Equal(t, tt.wantCats, got.TriggeredFilters)
			assert.Equal(t, "aliyun", got.Provider)
		})
	}
}

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := New(DefaultConfig())
	assert.True(t, errors.Is(err, modguard.ErrMissingConfig))
}
