// Package config loads the modguard service configuration from a YAML file
// and MODGUARD_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	modguard "github.com/heibot/modguard"
	"github.com/heibot/modguard/engine"
)

// EnvPrefix prefixes every environment override, e.g. MODGUARD_STORE_DSN.
const EnvPrefix = "MODGUARD"

// Config is the full service configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Store      StoreConfig      `mapstructure:"store"`
	Redis      RedisConfig      `mapstructure:"redis"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	Filters    FiltersConfig    `mapstructure:"filters"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Providers  ProvidersConfig  `mapstructure:"providers"`
	Events     EventsConfig     `mapstructure:"events"`
	Reputation ReputationConfig `mapstructure:"reputation"`
	Sanction   SanctionConfig   `mapstructure:"sanction"`
}

type ServerConfig struct {
	Addr        string   `mapstructure:"addr"`
	RPS         int      `mapstructure:"rps"`
	Burst       int      `mapstructure:"burst"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type LogConfig struct {
	Development bool `mapstructure:"development"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"` // memory, mysql, postgres or tidb
	DSN    string `mapstructure:"dsn"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type RateLimitConfig struct {
	Backend              string        `mapstructure:"backend"` // memory, redis or store
	Window               time.Duration `mapstructure:"window"`
	AuthenticatedQuota   int           `mapstructure:"authenticated_quota"`
	AnonymousQuota       int           `mapstructure:"anonymous_quota"`
	LongMessageThreshold int           `mapstructure:"long_message_threshold"`
}

type FiltersConfig struct {
	RefreshCron string `mapstructure:"refresh_cron"`
	CacheSize   int    `mapstructure:"cache_size"`
}

type EngineConfig struct {
	Precedence      string        `mapstructure:"precedence"`
	ExternalTimeout time.Duration `mapstructure:"external_timeout"`
}

// ProvidersConfig configures the external validator. Active selects one of
// function, aliyun, tencent or huawei; empty disables external validation.
type ProvidersConfig struct {
	Active     string         `mapstructure:"active"`
	MaxRetries int            `mapstructure:"max_retries"`
	Function   FunctionConfig `mapstructure:"function"`
	Aliyun     CloudConfig    `mapstructure:"aliyun"`
	Tencent    CloudConfig    `mapstructure:"tencent"`
	Huawei     CloudConfig    `mapstructure:"huawei"`
}

type FunctionConfig struct {
	URL     string        `mapstructure:"url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type CloudConfig struct {
	AccessKeyID     string        `mapstructure:"access_key_id"`
	AccessKeySecret string        `mapstructure:"access_key_secret"`
	Region          string        `mapstructure:"region"`
	Endpoint        string        `mapstructure:"endpoint"`
	Timeout         time.Duration `mapstructure:"timeout"`
	Service         string        `mapstructure:"service"`    // aliyun
	BizType         string        `mapstructure:"biz_type"`   // tencent
	ProjectID       string        `mapstructure:"project_id"` // huawei
}

type EventsConfig struct {
	RedisChannelPrefix string        `mapstructure:"redis_channel_prefix"`
	DedupeSize         int           `mapstructure:"dedupe_size"`
	DedupeTTL          time.Duration `mapstructure:"dedupe_ttl"`
}

type ReputationConfig struct {
	// SanctionPenalties maps an action type to the reputation delta
	// applied with it, e.g. {"mute": -25}.
	SanctionPenalties map[string]int `mapstructure:"sanction_penalties"`
}

// SanctionConfig configures the optional threshold escalation policy.
// All zero leaves escalation disabled.
type SanctionConfig struct {
	MuteAfterWarnings int           `mapstructure:"mute_after_warnings"`
	MuteDuration      time.Duration `mapstructure:"mute_duration"`
	BanAfterWarnings  int           `mapstructure:"ban_after_warnings"`
	WarnOnAutoBlock   bool          `mapstructure:"warn_on_auto_block"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.rps", 50)
	v.SetDefault("server.burst", 100)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("log.development", false)
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.dsn", "")
	v.SetDefault("redis.url", "")
	v.SetDefault("ratelimit.backend", "store")
	v.SetDefault("ratelimit.window", "60s")
	v.SetDefault("ratelimit.authenticated_quota", 20)
	v.SetDefault("ratelimit.anonymous_quota", 10)
	v.SetDefault("ratelimit.long_message_threshold", 200)
	v.SetDefault("filters.refresh_cron", "*/1 * * * *")
	v.SetDefault("filters.cache_size", 4096)
	v.SetDefault("engine.precedence", string(engine.PrecedenceExternalCanonical))
	v.SetDefault("engine.external_timeout", "2s")
	v.SetDefault("providers.active", "")
	v.SetDefault("providers.max_retries", 2)
	v.SetDefault("providers.function.url", "")
	v.SetDefault("providers.function.token", "")
	v.SetDefault("providers.function.timeout", "3s")
	v.SetDefault("providers.aliyun.access_key_id", "")
	v.SetDefault("providers.aliyun.access_key_secret", "")
	v.SetDefault("providers.aliyun.region", "cn-shanghai")
	v.SetDefault("providers.aliyun.endpoint", "green.cn-shanghai.aliyuncs.com")
	v.SetDefault("providers.aliyun.service", "chat_detection")
	v.SetDefault("providers.aliyun.timeout", "3s")
	v.SetDefault("providers.tencent.access_key_id", "")
	v.SetDefault("providers.tencent.access_key_secret", "")
	v.SetDefault("providers.tencent.region", "ap-guangzhou")
	v.SetDefault("providers.tencent.endpoint", "tms.tencentcloudapi.com")
	v.SetDefault("providers.tencent.biz_type", "")
	v.SetDefault("providers.tencent.timeout", "3s")
	v.SetDefault("providers.huawei.access_key_id", "")
	v.SetDefault("providers.huawei.access_key_secret", "")
	v.SetDefault("providers.huawei.region", "cn-north-4")
	v.SetDefault("providers.huawei.endpoint", "moderation.cn-north-4.myhuaweicloud.com")
	v.SetDefault("providers.huawei.project_id", "")
	v.SetDefault("providers.huawei.timeout", "3s")
	v.SetDefault("events.redis_channel_prefix", "modguard:events")
	v.SetDefault("events.dedupe_size", 10000)
	v.SetDefault("events.dedupe_ttl", "10m")
	v.SetDefault("reputation.sanction_penalties", map[string]int{})
	v.SetDefault("sanction.mute_after_warnings", 0)
	v.SetDefault("sanction.mute_duration", "0s")
	v.SetDefault("sanction.ban_after_warnings", 0)
	v.SetDefault("sanction.warn_on_auto_block", false)
}

// New returns a viper instance with defaults, search paths and environment
// overrides set up. file, when non-empty, is used instead of the search.
func New(file string) *viper.Viper {
	v := viper.New()
	setDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("modguard")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/modguard")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the configuration. A missing config file is not an error.
func Load(file string) (*Config, error) {
	return FromViper(New(file))
}

// FromViper reads and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerated keys and their dependencies.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory":
	case "mysql", "postgres", "tidb":
		if c.Store.DSN == "" {
			return modguard.NewValidationError("store.dsn", "required for driver "+c.Store.Driver)
		}
	default:
		return modguard.NewValidationError("store.driver", "must be one of memory, mysql, postgres, tidb")
	}

	switch c.RateLimit.Backend {
	case "memory", "store":
	case "redis":
		if c.Redis.URL == "" {
			return modguard.NewValidationError("redis.url", "required for the redis rate limit backend")
		}
	default:
		return modguard.NewValidationError("ratelimit.backend", "must be one of memory, redis, store")
	}

	if _, err := engine.ParsePrecedence(c.Engine.Precedence); err != nil {
		return err
	}

	switch c.Providers.Active {
	case "", "aliyun", "tencent", "huawei":
	case "function":
		if c.Providers.Function.URL == "" {
			return modguard.NewValidationError("providers.function.url", "required when the function provider is active")
		}
	default:
		return modguard.NewValidationError("providers.active", "must be one of function, aliyun, tencent, huawei")
	}

	for action := range c.Reputation.SanctionPenalties {
		if !modguard.ActionType(action).Valid() {
			return modguard.NewValidationError("reputation.sanction_penalties", "unknown action "+action)
		}
	}
	return nil
}

// Penalties returns the configured sanction penalties keyed by action.
func (c *Config) Penalties() map[modguard.ActionType]int {
	out := make(map[modguard.ActionType]int, len(c.Reputation.SanctionPenalties))
	for action, delta := range c.Reputation.SanctionPenalties {
		out[modguard.ActionType(action)] = delta
	}
	return out
}
