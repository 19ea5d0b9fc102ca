package filters

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Refresher reloads a Registry on a cron schedule.
type Refresher struct {
	registry *Registry
	cron     *cron.Cron
	timeout  time.Duration
	logger   *zap.Logger
}

// NewRefresher schedules registry refreshes with a standard five-field cron
// spec, e.g. "*/1 * * * *".
func NewRefresher(registry *Registry, spec string, timeout time.Duration, logger *zap.Logger) (*Refresher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	r := &Refresher{
		registry: registry,
		cron:     cron.New(cron.WithLocation(time.UTC)),
		timeout:  timeout,
		logger:   logger,
	}
	if _, err := r.cron.AddFunc(spec, r.refresh); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Refresher) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.registry.Refresh(ctx); err != nil {
		return
	}
	r.logger.Debug("filters refreshed", zap.Int("active", len(r.registry.ActiveFilters())))
}

// Start begins the schedule.
func (r *Refresher) Start() {
	r.cron.Start()
}

// Stop halts the schedule and waits for a running refresh to finish.
func (r *Refresher) Stop() {
	<-r.cron.Stop().Done()
}
