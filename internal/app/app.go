package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"taskhub/docs"
	"taskhub/internal/config"
	"taskhub/internal/handlers"
	"taskhub/internal/health"
	"taskhub/internal/logging"
	"taskhub/internal/metrics"
	"taskhub/internal/middleware"
	"taskhub/internal/ratelimit"
	"taskhub/internal/repositories"
	"taskhub/internal/routes"
	"taskhub/internal/services"
	"taskhub/internal/tokens"
)

// Run loads configuration, wires every component and serves until SIGINT or
// SIGTERM.
func Run() error {
	cfg, err := config.LoadConfig("")
	if err != nil {
		return err
	}
	logger := logging.NewLogger(cfg.LogLevel, cfg.ServiceName, cfg.Env)

	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(registry)

	ready := health.NewManager(false)

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.closeFn(); err != nil {
			logger.Error("store close failed", "error", err)
		}
	}()
	if st.check != nil {
		ready.AddCheck(cfg.Database.Driver, st.check)
	}

	limiter, limiterClose, err := buildLimiter(cfg, logger, ready)
	if err != nil {
		return err
	}
	defer func() {
		_ = limiterClose()
	}()

	emails := services.NewEmailService(cfg.Email, logger)
	router := newRouter(cfg, logger, registry, ready, st, limiter, emails, tokens.SystemClock{})

	janitor := services.NewJanitor(st.tokens, cfg.Database.JanitorInterval, tokens.SystemClock{}, logger)
	go janitor.Run(ctx)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", addr, "driver", cfg.Database.Driver, "base_path", cfg.Server.BasePath)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	ready.SetReady(true)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}
	return shutdown(server, ready, logger)
}

func shutdown(server *http.Server, ready *health.Manager, logger *slog.Logger) error {
	ready.SetReady(false)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutdown started")
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

type stores struct {
	users      repositories.UserRepository
	tokens     repositories.VerificationRepository
	workspaces repositories.WorkspaceRepository
	check      health.Check
	closeFn    func() error
}

func memoryStores() *stores {
	return &stores{
		users:      repositories.NewMemoryUserRepository(),
		tokens:     repositories.NewMemoryVerificationRepository(),
		workspaces: repositories.NewMemoryWorkspaceRepository(),
		closeFn:    func() error { return nil },
	}
}

func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stores, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch cfg.Database.Driver {
	case config.DriverPostgres:
		db, err := sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("postgres open: %w", err)
		}
		if err := db.PingContext(dialCtx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("postgres ping: %w", err)
		}
		if err := repositories.Migrate(db); err != nil {
			_ = db.Close()
			return nil, err
		}
		logger.Info("postgres connected")
		return &stores{
			users:      repositories.NewUserRepository(db),
			tokens:     repositories.NewVerificationRepository(db),
			workspaces: repositories.NewWorkspaceRepository(db),
			check:      db.PingContext,
			closeFn:    db.Close,
		}, nil

	case config.DriverMongo:
		client, err := repositories.ConnectMongo(dialCtx, cfg.Database.Mongo.URI)
		if err != nil {
			return nil, err
		}
		db := client.Database(cfg.Database.Mongo.Database)
		if err := repositories.EnsureMongoIndexes(dialCtx, db); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		logger.Info("mongo connected", "database", cfg.Database.Mongo.Database)
		return &stores{
			users:      repositories.NewMongoUserRepository(db),
			tokens:     repositories.NewMongoVerificationRepository(db),
			workspaces: repositories.NewMongoWorkspaceRepository(db),
			check: func(ctx context.Context) error {
				return client.Ping(ctx, readpref.Primary())
			},
			closeFn: func() error { return client.Disconnect(context.Background()) },
		}, nil

	case config.DriverMemory:
		logger.Warn("using in-memory stores; data is lost on restart")
		return memoryStores(), nil
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
}

// buildLimiter returns a nil limiter when rate limiting is disabled. Outside
// dev an unreachable Redis is fatal; in dev it falls back to memory.
func buildLimiter(cfg *config.Config, logger *slog.Logger, ready *health.Manager) (ratelimit.Limiter, func() error, error) {
	noop := func() error { return nil }
	rl := cfg.RateLimit
	if !rl.Enabled {
		return nil, noop, nil
	}

	if rl.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     rl.Redis.Addr,
			Password: rl.Redis.Password,
			DB:       rl.Redis.DB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			if cfg.IsDev() {
				logger.Warn("redis rate limiter unavailable, falling back to memory", "error", err)
				return ratelimit.NewMemory(rl.Limit, rl.Window), noop, nil
			}
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}

		ready.AddCheck("redis", func(ctx context.Context) error { return client.Ping(ctx).Err() })
		return ratelimit.NewRedisLimiter(client, rl.Limit, rl.Window, rl.Redis.Prefix), client.Close, nil
	}

	if !cfg.IsDev() {
		logger.Warn("rate limiting uses process memory; configure redis when running more than one instance")
	}
	return ratelimit.NewMemory(rl.Limit, rl.Window), noop, nil
}

func newRouter(
	cfg *config.Config,
	logger *slog.Logger,
	registry *prometheus.Registry,
	ready *health.Manager,
	st *stores,
	limiter ratelimit.Limiter,
	emails services.EmailService,
	clock tokens.Clock,
) *gin.Engine {
	issuer := tokens.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, clock)
	authService := services.NewAuthService(services.AuthServiceDeps{
		Users:    st.users,
		Tokens:   st.tokens,
		Issuer:   issuer,
		Hasher:   services.NewBcryptHasher(cfg.Auth.BcryptCost),
		Emails:   emails,
		Clock:    clock,
		Log:      logger,
		Settings: cfg.Auth,
	})
	userService := services.NewUserService(st.users)
	workspaceService := services.NewWorkspaceService(st.workspaces, clock, logger)

	authHandler := handlers.NewAuthHandler(authService, userService)
	workspaceHandler := handlers.NewWorkspaceHandler(workspaceService)

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORS(cfg.Auth.ClientURL))

	router.GET("/healthz", health.LivenessHandler)
	router.GET("/readyz", health.ReadinessHandler(ready))
	router.GET("/metrics", gin.WrapH(metrics.Handler(registry)))

	docs.SwaggerInfo.BasePath = cfg.Server.BasePath
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	var rateLimit gin.HandlerFunc
	if limiter != nil {
		rateLimit = middleware.RateLimit(limiter, logger)
	}
	routes.SetupRoutes(router, cfg.Server.BasePath, authHandler, workspaceHandler,
		middleware.AuthMiddleware(authService), rateLimit)
	return router
}
