// cmd/notifications/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/channel"
	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/common/config"
	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/common/database"
	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/common/logger"
	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/common/observability"
	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/dispatch"
	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/entity"
	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/notification"
	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/push"
	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/retention"
	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/stacking"
	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/status"
	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/subscription"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

// pushSource joins the stored notification rows with the rendering service
// the push worker needs.
type pushSource struct {
	*notification.Store
	dispatch.Service
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting notification service...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		// Test the connection with context
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		// Test the connection with context
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Stores ---
	notifStore := notification.NewStore(pg.DB)
	subStore := subscription.NewStore(pg.DB)
	statusStore := status.NewStore(pg.DB)
	counterStore := stacking.NewCounterStore(pg.DB)
	entities := entity.NewSQLLoader(pg.DB, cfg.Notifications.PushTokenField)

	// --- Channel registry ---
	registry := channel.NewRegistry(log)
	if err := registry.Register(channel.NewBase(channel.Definition{
		ID:             "general",
		Label:          "General",
		DefaultMessage: "You have a new notification.",
		DefaultLink:    "/notifications",
	})); err != nil {
		zapLog.Fatal("failed to register general channel", zap.Error(err))
	}

	// --- Push queue (shared Redis with asynq) ---
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Database.Redis.Address,
		Password: cfg.Database.Redis.Password,
		DB:       cfg.Database.Redis.DB,
	}
	var enqueuer *push.Enqueuer
	if cfg.Push.Enabled {
		enqueuer = push.NewEnqueuer(redisOpt, log)
		defer enqueuer.Close()
	}

	// --- Dispatch service with stacking ---
	sweeper := retention.NewSweeper(notifStore, log)
	engineOpts := []dispatch.EngineOption{}
	if enqueuer != nil {
		engineOpts = append(engineOpts, dispatch.WithPushEnqueuer(enqueuer))
	}
	engine := dispatch.NewEngine(registry, notifStore, entities, sweeper, log, engineOpts...)
	service := stacking.NewService(engine, counterStore, notifStore, cfg.Stacking, log)

	// --- Status tracking ---
	badges := push.NewBadges(rdb.Client, statusStore, log)
	statusSvc := status.NewService(statusStore, notifStore, log)
	statusSvc.RegisterReadObserver(service.OnNotificationRead)
	statusSvc.RegisterSeenObserver(func(ctx context.Context, n *notification.Notification, userID string) error {
		badges.Invalidate(ctx, userID)
		return nil
	})

	zapLog.Info("Notification service wired",
		zap.Int("channels", len(registry.All())),
		zap.Int("stackedChannels", len(cfg.Stacking.Channels)),
	)

	// --- Push worker ---
	workerErr := make(chan error, 1)
	if cfg.Push.Enabled {
		gateway, err := push.NewGateway(ctx, cfg.Push.AWSRegion)
		if err != nil {
			zapLog.Fatal("failed to init push gateway", zap.Error(err))
		}
		worker := push.NewWorker(
			redisOpt,
			push.WorkerConfig{
				Concurrency:     cfg.Push.Concurrency,
				CleanupSchedule: cfg.Push.CleanupSchedule,
				KeepMonths:      cfg.Notifications.KeepMonths,
				PushChannels:    cfg.Notifications.PushChannels,
			},
			pushSource{Store: notifStore, Service: service},
			subStore,
			entities,
			badges,
			gateway,
			service,
			log,
		)
		go func() {
			workerErr <- worker.Start(ctx)
		}()
	}

	// --- Health & Metrics Server ---
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "ready",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening", zap.String("addr", cfg.App.MetricsAddr))
		if err := http.ListenAndServe(cfg.App.MetricsAddr, nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping...")

	if cfg.Push.Enabled {
		select {
		case err := <-workerErr:
			if err != nil {
				zapLog.Error("Push worker exited with error", zap.Error(err))
			}
		case <-time.After(30 * time.Second):
			zapLog.Warn("Push worker did not stop in time")
		}
	}

	zapLog.Info("Notification service stopped gracefully")
}
