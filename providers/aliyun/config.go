// Package aliyun provides Alibaba Cloud text moderation integration.
package aliyun

import (
	"time"

	"github.com/heibot/modguard/providers"
)

// Config holds the configuration for Aliyun provider.
type Config struct {
	providers.ProviderConfig

	// Service is the Green text moderation service, chat_detection by default.
	Service string
}

// DefaultConfig returns the default Aliyun configuration.
func DefaultConfig() Config {
	return Config{
		ProviderConfig: providers.ProviderConfig{
			Region:   "cn-shanghai",
			Endpoint: "green.cn-shanghai.aliyuncs.com",
			Timeout:  3 * time.Second,
		},
		Service: "chat_detection",
	}
}

// Aliyun text labels mapped to the categories reported as triggered filters.
// Text: https://help.aliyun.com/document_detail/70439.html
var labelMappings = map[string]labelMapping{
	// Pornography
	"porn":          {category: "sexual_content", severity: 4},
	"sexy":          {category: "sexual_content", severity: 2},
	"sexual":        {category: "sexual_content", severity: 3},
	"adult_content": {category: "sexual_content", severity: 4},
	"profanity":     {category: "profanity", severity: 3},

	// Violence
	"violence":  {category: "violence", severity: 3},
	"terrorism": {category: "violence", severity: 4},
	"extremism": {category: "violence", severity: 4},

	// Prohibited goods
	"contraband": {category: "illegal", severity: 4},
	"drug":       {category: "illegal", severity: 4},
	"weapon":     {category: "illegal", severity: 3},

	// Spam
	"spam":         {category: "spam", severity: 1},
	"ad":           {category: "spam", severity: 1},
	"contact_info": {category: "spam", severity: 2},
	"promotion":    {category: "spam", severity: 1},
	"meaningless":  {category: "spam", severity: 1},
	"flood":        {category: "spam", severity: 1},

	// Fraud
	"fraud":    {category: "fraud", severity: 3},
	"gambling": {category: "fraud", severity: 3},

	// Abuse
	"abuse":          {category: "harassment", severity: 2},
	"insult":         {category: "harassment", severity: 2},
	"threat":         {category: "harassment", severity: 3},
	"hate":           {category: "hate_speech", severity: 3},
	"discrimination": {category: "hate_speech", severity: 3},

	// Minor safety
	"minor_sexual": {category: "minor_safety", severity: 4},

	"normal":   {},
	"nonLabel": {},
}

type labelMapping struct {
	category string
	severity int
}
