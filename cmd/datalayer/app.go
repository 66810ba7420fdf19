package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	usertypes "github.com/goliatone/go-users/pkg/types"

	datalayer "github.com/goliatone/go-datalayer"
	"github.com/goliatone/go-datalayer/internal/config"
	"github.com/goliatone/go-datalayer/pkg/activity"
	"github.com/goliatone/go-datalayer/pkg/activity/promsink"
	"github.com/goliatone/go-datalayer/pkg/activity/usersink"
	"github.com/goliatone/go-datalayer/pkg/loop"
	"github.com/goliatone/go-datalayer/pkg/persist"
)

// app is one initialized data layer session.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	backend  persist.Backend
	closer   io.Closer
	sched    *loop.Loop
	store    *datalayer.Store
	checkout *datalayer.CheckoutStore
	triggers *persist.Adapter
	metrics  *promsink.Collector
}

func openApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	logger, err := cfg.Log.Logger()
	if err != nil {
		return nil, err
	}

	backend, closer, err := openBackend(ctx, cfg.Storage)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		backend: backend,
		closer:  closer,
		sched:   loop.New(),
		metrics: promsink.New(),
	}

	adapter := func(namespace string, ttl time.Duration) *persist.Adapter {
		return persist.NewAdapter(backend,
			persist.WithNamespace(namespace),
			persist.WithTTL(ttl),
			persist.WithLogger(logger),
		)
	}

	notifier := activity.NewNotifier(
		activity.WithNotifierLogger(logger),
		activity.WithHooks(a.metrics),
	)
	if opts.audit {
		notifier.Subscribe(usersink.Hook{
			Sink:     zapActivitySink{logger: logger.Named("audit")},
			ActorID:  opts.actorID,
			ObjectID: cfg.Page.Path,
		})
	}

	storeOpts := []datalayer.Option{
		datalayer.WithLogger(logger),
		datalayer.WithNotifier(notifier),
		datalayer.WithScheduler(a.sched),
		datalayer.WithTTL(cfg.TTL.State),
	}
	if cfg.Page.Title != "" {
		storeOpts = append(storeOpts, datalayer.WithPageTitle(cfg.Page.Title))
	}
	a.store = datalayer.New(adapter(persist.NamespaceState, cfg.TTL.State), storeOpts...)
	a.checkout = datalayer.NewCheckoutStore(adapter(persist.NamespaceCheckout, cfg.TTL.Checkout),
		datalayer.WithCheckoutLogger(logger))
	a.triggers = adapter(persist.NamespaceTriggers, cfg.TTL.Triggers)

	if err := a.store.Initialize(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	a.settle()
	return a, nil
}

// settle delivers deferred notifications.
func (a *app) settle() {
	a.sched.RunPending()
}

func (a *app) Close() error {
	a.settle()
	_ = a.logger.Sync()
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}

func openBackend(ctx context.Context, cfg config.StorageConfig) (persist.Backend, io.Closer, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return persist.NewMemoryBackend(), nil, nil
	case config.DriverSQLite:
		backend, err := persist.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return backend, backend, nil
	case config.DriverRedis:
		redisCfg := cfg.Redis
		backend, err := persist.NewRedisBackend(ctx, &redisCfg)
		if err != nil {
			return nil, nil, err
		}
		return backend, backend, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// withApp opens a session around fn and closes it afterwards.
func withApp(opts *rootOptions, fn func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), opts)
		if err != nil {
			return err
		}
		runErr := fn(cmd, args, a)
		if err := a.Close(); err != nil && runErr == nil {
			runErr = err
		}
		return runErr
	}
}

func printJSON(cmd *cobra.Command, value any) error {
	return writeJSON(cmd.OutOrStdout(), value)
}

func writeJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

// zapActivitySink writes activity records to the log.
type zapActivitySink struct {
	logger *zap.Logger
}

func (s zapActivitySink) Log(_ context.Context, record usertypes.ActivityRecord) error {
	s.logger.Info("activity",
		zap.String("verb", record.Verb),
		zap.String("object_type", record.ObjectType),
		zap.String("object_id", record.ObjectID),
		zap.Stringer("actor_id", record.ActorID),
		zap.Any("data", record.Data),
		zap.Time("occurred_at", record.OccurredAt),
	)
	return nil
}
