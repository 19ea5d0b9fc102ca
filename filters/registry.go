package filters

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	modguard "github.com/heibot/modguard"
)

var (
	filtersLoaded = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "modguard_filters_loaded",
		Help: "Active content filters loaded, by type",
	}, []string{"type"})
	filtersInvalid = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "modguard_filters_invalid",
		Help: "Active content filters skipped because their pattern does not compile",
	})
	filterRefreshErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "modguard_filter_refresh_errors_total",
		Help: "Number of failed filter refreshes",
	})
)

// Source loads the moderator-managed filter set.
type Source interface {
	ListFilters(ctx context.Context) ([]modguard.ContentFilter, error)
}

// Config configures a Registry.
type Config struct {
	// CacheSize bounds the number of compiled patterns kept across refreshes.
	CacheSize int

	// CacheTTL expires compiled patterns that have not been reloaded.
	CacheTTL time.Duration

	Logger *zap.Logger
}

// DefaultConfig returns the default registry configuration.
func DefaultConfig() Config {
	return Config{
		CacheSize: 4096,
		CacheTTL:  time.Hour,
	}
}

// Registry holds the active filters, compiled once per load. Reads may be
// stale until the next Refresh.
type Registry struct {
	source Source
	logger *zap.Logger
	cache  *expirable.LRU[string, Matcher]

	mu       sync.RWMutex
	byType   map[modguard.FilterType][]Compiled
	loadedAt time.Time
}

// NewRegistry creates an empty registry backed by source. source may be nil
// when filters are supplied with Load.
func NewRegistry(source Source, cfg Config) *Registry {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultConfig().CacheSize
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Registry{
		source: source,
		logger: cfg.Logger,
		cache:  expirable.NewLRU[string, Matcher](cfg.CacheSize, nil, cfg.CacheTTL),
		byType: make(map[modguard.FilterType][]Compiled),
	}
}

// Refresh reloads filters from the source. On failure the previous set is
// kept and the error is returned.
func (r *Registry) Refresh(ctx context.Context) error {
	if r.source == nil {
		return modguard.ErrStoreNotConfigured
	}
	list, err := r.source.ListFilters(ctx)
	if err != nil {
		filterRefreshErrors.Inc()
		r.logger.Warn("filter refresh failed, keeping previous set", zap.Error(err))
		return err
	}
	r.Load(list)
	return nil
}

// Load replaces the active set with the active filters in list.
func (r *Registry) Load(list []modguard.ContentFilter) {
	byType := make(map[modguard.FilterType][]Compiled)
	invalid := 0
	for _, f := range list {
		if !f.Active || !f.Type.Valid() {
			continue
		}
		c := Compiled{ContentFilter: f, Matcher: r.matcher(f)}
		if !c.Valid() {
			invalid++
			// Pattern is not logged to avoid disclosing the filter list.
			r.logger.Warn("skipping invalid filter",
				zap.String("filter_id", f.ID),
				zap.String("reason", c.Matcher.(Invalid).Reason))
		}
		byType[f.Type] = append(byType[f.Type], c)
	}

	r.mu.Lock()
	r.byType = byType
	r.loadedAt = time.Now()
	r.mu.Unlock()

	for _, t := range []modguard.FilterType{modguard.FilterProfanity, modguard.FilterSpam, modguard.FilterKeyword} {
		filtersLoaded.WithLabelValues(string(t)).Set(float64(len(byType[t])))
	}
	filtersInvalid.Set(float64(invalid))
}

func (r *Registry) matcher(f modguard.ContentFilter) Matcher {
	key := "l:" + f.Pattern
	if f.IsRegex {
		key = "r:" + f.Pattern
	}
	if m, ok := r.cache.Get(key); ok {
		return m
	}
	m := Compile(f)
	r.cache.Add(key, m)
	return m
}

// ActiveFilters returns the active filters of the given types, or of every
// type when none is given. Invalid filters are included; they never match.
func (r *Registry) ActiveFilters(types ...modguard.FilterType) []Compiled {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(types) == 0 {
		types = []modguard.FilterType{modguard.FilterProfanity, modguard.FilterSpam, modguard.FilterKeyword}
	}
	var out []Compiled
	for _, t := range types {
		out = append(out, r.byType[t]...)
	}
	return out
}

// LoadedAt returns when the active set was last replaced.
func (r *Registry) LoadedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loadedAt
}
