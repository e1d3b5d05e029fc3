package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"crm-platform/internal/audit"
	"crm-platform/internal/auth"
	"crm-platform/internal/cache"
	"crm-platform/internal/config"
	"crm-platform/internal/contacts"
	"crm-platform/internal/conversations"
	"crm-platform/internal/distribution"
	"crm-platform/internal/history"
	"crm-platform/internal/httpapi"
	"crm-platform/internal/inbound"
	"crm-platform/internal/metrics"
	"crm-platform/internal/pipeline"
	"crm-platform/internal/realtime"
	"crm-platform/internal/tags"
	"crm-platform/pkg/logger"
	"crm-platform/pkg/utils"
)

// broker is what the realtime backends have in common.
type broker interface {
	realtime.Publisher
	realtime.Subscriber
}

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config.LoadEnvFiles(".env", ".env.local")
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	deps := wire(cfg, db, rdb, log)
	deps.handlers.Auth = authManager

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(metrics.Middleware())

	registerRoutes(r, cfg, deps, auth.RequireAccessToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Websocket streams manage their own deadlines.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "realtime", cfg.Realtime.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}

type dependencies struct {
	handlers httpapi.Handlers
	webhook  inbound.WebhookHandler
	health   map[string]httpapi.Check
}

// wire builds the service graph on Postgres and Redis.
func wire(cfg config.Config, db *sql.DB, rdb *redis.Client, log *slog.Logger) dependencies {
	var (
		bus    broker
		locker pipeline.Locker
	)
	switch cfg.Realtime.Backend {
	case config.RealtimeRedis:
		bus = realtime.NewRedisBroker(rdb, "crm:rt:", cfg.Realtime.BufferSize, log)
		locker = pipeline.NewRedisLocker(rdb, cfg.Cards.LockTTL)
	default:
		bus = realtime.NewBroker(cfg.Realtime.BufferSize)
		locker = pipeline.NewKeyedMutex()
	}

	contactRepo := contacts.NewPostgresRepo(db)
	convRepo := conversations.NewPostgresRepo(db)

	convs := conversations.NewService(convRepo, history.NewRecorder(history.NewPostgresRepo(db)))
	cards := pipeline.NewCardResolver(pipeline.NewPostgresRepo(db), contactRepo, convs,
		pipeline.WithLocker(locker),
		pipeline.WithPublisher(bus),
	)
	users := cache.NewUserDirectory(cache.NewPostgresUserLoader(db), cfg.Users.CacheTTL, nil)
	users.Subscribe(func(workspaceID string) {
		log.Debug("workspace users cache changed", "workspace_id", workspaceID)
	})
	dist := distribution.NewDistributor(
		distribution.NewEngine(convRepo, users, distribution.NewRedisCounter(rdb), nil),
		convs,
	)

	return dependencies{
		handlers: httpapi.Handlers{
			Cards:         cards,
			Conversations: convs,
			Tags:          tags.NewService(tags.NewPostgresRepo(db), convs),
			Users:         users,
			Realtime:      bus,
			Audit:         audit.NewService(audit.NewPostgresRepo(db)),
		},
		webhook: inbound.WebhookHandler{
			Intake: inbound.NewIntake(convRepo, contactRepo, convs, cards, dist),
			Secret: cfg.Webhook.Secret,
		},
		health: map[string]httpapi.Check{
			"postgres": func(ctx context.Context) error { return utils.HealthCheck(ctx, db, time.Second) },
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
	}
}
