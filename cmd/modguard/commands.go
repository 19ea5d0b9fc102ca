package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	modguard "github.com/heibot/modguard"
	"github.com/heibot/modguard/hooks"
	sqlstore "github.com/heibot/modguard/store/sql"
)

// ── evaluate ─────────────────────────────────────────────────────────────────

var (
	evalUser          string
	evalAuthenticated bool
	evalContentType   string
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <text>",
	Short: "Score one message against the configured filters and print the result",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.client.EvaluateMessage(ctx, strings.Join(args, " "),
			modguard.Identity{ID: evalUser, Authenticated: evalAuthenticated},
			modguard.ContentMeta{ContentType: evalContentType})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

// ── migrate ──────────────────────────────────────────────────────────────────

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the SQL schema to the configured store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		if cfg.Store.Driver == "memory" {
			return errors.New("migrate requires a SQL store driver")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()

		st, err := openStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		sqlStore := st.(*sqlstore.Store)
		defer sqlStore.Close()

		if err := sqlStore.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info("schema up to date", zap.String("driver", cfg.Store.Driver))
		return nil
	},
}

// ── watch ────────────────────────────────────────────────────────────────────

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Log moderation events published to Redis",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		if cfg.Redis.URL == "" {
			return fmt.Errorf("%w: redis.url", modguard.ErrMissingConfig)
		}

		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		handler := hooks.NewIdempotent(eventLogger(logger.Named("events")), cfg.Events.DedupeSize, cfg.Events.DedupeTTL)
		err = hooks.Subscribe(ctx, a.redis, cfg.Events.RedisChannelPrefix, handler, logger)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func eventLogger(logger *zap.Logger) hooks.Hooks {
	return hooks.FuncHooks{
		OnVerdictFunc: func(ctx context.Context, e hooks.VerdictEvent) error {
			logger.Info("verdict",
				zap.String("event_id", e.EventID),
				zap.String("identity", e.Identity.ID),
				zap.Bool("allowed", e.Verdict.Allowed),
				zap.Bool("flagged", e.Verdict.Flagged),
				zap.Int("score", e.Verdict.TotalScore))
			return nil
		},
		OnQueueItemEnqueuedFunc: func(ctx context.Context, e hooks.QueueItemEvent) error {
			logger.Info("queue item enqueued",
				zap.String("event_id", e.EventID),
				zap.String("item_id", e.Item.ID),
				zap.Int("priority", e.Item.PriorityLevel))
			return nil
		},
		OnQueueItemDisposedFunc: func(ctx context.Context, e hooks.QueueItemEvent) error {
			logger.Info("queue item disposed",
				zap.String("event_id", e.EventID),
				zap.String("item_id", e.Item.ID),
				zap.String("outcome", string(e.Outcome)))
			return nil
		},
		OnSanctionAppliedFunc: func(ctx context.Context, e hooks.SanctionEvent) error {
			logger.Info("sanction applied",
				zap.String("event_id", e.EventID),
				zap.String("user_id", e.Action.TargetUserID),
				zap.String("action", string(e.Action.ActionType)),
				zap.String("from", string(e.Change.From)),
				zap.String("to", string(e.Change.To)))
			return nil
		},
		OnReputationChangedFunc: func(ctx context.Context, e hooks.ReputationEvent) error {
			logger.Info("reputation changed",
				zap.String("event_id", e.EventID),
				zap.String("user_id", e.UserID),
				zap.Int("delta", e.Delta),
				zap.String("level", string(e.Level)))
			return nil
		},
	}
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func init() {
	evaluateCmd.Flags().StringVar(&evalUser, "user", "cli", "identity of the sender")
	evaluateCmd.Flags().BoolVar(&evalAuthenticated, "authenticated", false, "treat the sender as signed in")
	evaluateCmd.Flags().StringVar(&evalContentType, "content-type", "message", "content type of the message")
}
