package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	modguard "github.com/heibot/modguard"
	"github.com/heibot/modguard/client"
	"github.com/heibot/modguard/config"
	"github.com/heibot/modguard/engine"
	"github.com/heibot/modguard/filters"
	"github.com/heibot/modguard/hooks"
	"github.com/heibot/modguard/providers"
	"github.com/heibot/modguard/providers/aliyun"
	"github.com/heibot/modguard/providers/function"
	"github.com/heibot/modguard/providers/huawei"
	"github.com/heibot/modguard/providers/tencent"
	"github.com/heibot/modguard/ratelimit"
	"github.com/heibot/modguard/reputation"
	"github.com/heibot/modguard/sanction"
	"github.com/heibot/modguard/scoring"
	"github.com/heibot/modguard/store"
	"github.com/heibot/modguard/store/memory"
	sqlstore "github.com/heibot/modguard/store/sql"
)

const rateLimitPrefix = "modguard:ratelimit"

// app holds the wired components shared by the commands.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    store.Store
	registry *filters.Registry
	redis    redis.UniversalClient
	client   *client.Client
	closers  []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	a.store = st
	if c, ok := st.(interface{ Close() error }); ok {
		a.closers = append(a.closers, c.Close)
	}

	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		rc := redis.NewClient(opt)
		a.redis = rc
		a.closers = append(a.closers, rc.Close)
	}

	a.registry = filters.NewRegistry(st, filters.Config{
		CacheSize: cfg.Filters.CacheSize,
		CacheTTL:  filters.DefaultConfig().CacheTTL,
		Logger:    logger.Named("filters"),
	})
	if err := a.registry.Refresh(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("load filters: %w", err)
	}

	external, err := newProvider(cfg.Providers, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	precedence, err := engine.ParsePrecedence(cfg.Engine.Precedence)
	if err != nil {
		a.Close()
		return nil, err
	}

	var h hooks.Hooks = hooks.NopHooks{}
	if a.redis != nil {
		h = hooks.ChainHooks{hooks.NewRedisPublisher(a.redis, cfg.Events.RedisChannelPrefix)}
	}

	ledger := reputation.NewLedger(st, reputation.Config{
		Grants: reputation.DefaultGrants(),
		Hooks:  h,
		Logger: logger.Named("reputation"),
	})

	eng := engine.New(a.newLimiter(), scoring.New(a.registry, scoring.DefaultWeights()), engine.Config{
		External:        external,
		Precedence:      precedence,
		ExternalTimeout: cfg.Engine.ExternalTimeout,
		Reputation:      ledger,
		Logger:          logger.Named("engine"),
	})

	opts := client.DefaultOptions()
	opts.Store = st
	opts.Engine = eng
	opts.Hooks = h
	opts.Ledger = ledger
	opts.Penalties = cfg.Penalties()
	opts.Logger = logger.Named("client")
	if p, ok := escalationPolicy(cfg.Sanction); ok {
		opts.Policy = p
	}

	c, err := client.New(opts)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.client = c.WithFilterReloader(a.registry)
	return a, nil
}

// Close releases the store and Redis connections.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	if cfg.Driver == "memory" {
		return memory.New(), nil
	}

	sc := sqlstore.DefaultConfig()
	sc.Dialect = sqlstore.Dialect(cfg.Driver)
	sc.DSN = cfg.DSN
	st, err := sqlstore.New(sc)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := st.Ping(pingCtx); err != nil {
		st.Close()
		return nil, fmt.Errorf("ping %s store: %w", cfg.Driver, err)
	}
	return st, nil
}

func (a *app) newLimiter() *ratelimit.Limiter {
	rc := ratelimit.DefaultConfig()
	rc.Window = a.cfg.RateLimit.Window
	rc.AuthenticatedQuota = a.cfg.RateLimit.AuthenticatedQuota
	rc.AnonymousQuota = a.cfg.RateLimit.AnonymousQuota
	rc.LongMessageThreshold = a.cfg.RateLimit.LongMessageThreshold
	rc.Logger = a.logger.Named("ratelimit")

	var counter store.CounterStore
	switch a.cfg.RateLimit.Backend {
	case "redis":
		counter = ratelimit.NewRedisStoreWithClient(a.redis, rateLimitPrefix)
	case "memory":
		counter = memory.New()
	default:
		counter = a.store
	}
	return ratelimit.New(counter, rc)
}

func newProvider(cfg config.ProvidersConfig, logger *zap.Logger) (providers.Provider, error) {
	var (
		p   providers.Provider
		err error
	)
	switch cfg.Active {
	case "":
		return nil, nil
	case "function":
		p, err = function.New(function.Config{
			URL:      cfg.Function.URL,
			Token:    cfg.Function.Token,
			Timeout:  cfg.Function.Timeout,
			RetryMax: cfg.MaxRetries,
		})
	case "aliyun":
		p, err = aliyun.New(aliyun.Config{
			ProviderConfig: cloudConfig(cfg.Aliyun),
			Service:        cfg.Aliyun.Service,
		})
	case "tencent":
		p, err = tencent.New(tencent.Config{
			ProviderConfig: cloudConfig(cfg.Tencent),
			BizType:        cfg.Tencent.BizType,
		})
	case "huawei":
		p, err = huawei.New(huawei.Config{
			ProviderConfig: cloudConfig(cfg.Huawei),
			ProjectID:      cfg.Huawei.ProjectID,
		})
	default:
		return nil, fmt.Errorf("%w: provider %q", modguard.ErrInvalidConfig, cfg.Active)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s provider: %w", cfg.Active, err)
	}

	// The function provider retries at the transport level already.
	return providers.NewResilientProvider(p, providers.ResilientConfig{
		MaxRetries:   cfg.MaxRetries,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Logger:       providers.NewZapLogger(logger.Named("providers")),
		EnableRetry:  cfg.MaxRetries > 0 && cfg.Active != "function",
	}), nil
}

func cloudConfig(c config.CloudConfig) providers.ProviderConfig {
	return providers.ProviderConfig{
		AccessKeyID:     c.AccessKeyID,
		AccessKeySecret: c.AccessKeySecret,
		Region:          c.Region,
		Endpoint:        c.Endpoint,
		Timeout:         c.Timeout,
	}
}

func escalationPolicy(cfg config.SanctionConfig) (sanction.EscalationPolicy, bool) {
	if cfg.MuteAfterWarnings == 0 && cfg.BanAfterWarnings == 0 && !cfg.WarnOnAutoBlock {
		return nil, false
	}
	return sanction.ThresholdPolicy{
		MuteAfterWarnings: cfg.MuteAfterWarnings,
		MuteDuration:      cfg.MuteDuration,
		BanAfterWarnings:  cfg.BanAfterWarnings,
		WarnOnAutoBlock:   cfg.WarnOnAutoBlock,
	}, true
}
