package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/account-service/internal/api/http"
	"github.com/spec-kit/account-service/internal/api/http/handlers"
	"github.com/spec-kit/account-service/internal/auth"
	"github.com/spec-kit/account-service/internal/config"
	"github.com/spec-kit/account-service/internal/events"
	"github.com/spec-kit/account-service/internal/observability"
	"github.com/spec-kit/account-service/internal/persistence"
	"github.com/spec-kit/account-service/internal/repository"
	"github.com/spec-kit/account-service/internal/service"
	"github.com/spec-kit/account-service/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Telemetry, cfg.App)
	if err != nil {
		logger.Fatal("failed to init tracing", zap.Error(err))
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redisConn := persistence.NewRedis(cfg.Redis, logger)
	defer redisConn.Close()

	userRepo, attachmentRepo, err := buildRepositories(ctx, cfg, pg, logger)
	if err != nil {
		logger.Fatal("failed to init storage", zap.Error(err))
	}

	tokens, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTokenTTL())
	if err != nil {
		logger.Fatal("failed to init token manager", zap.Error(err))
	}
	hasher := auth.NewHasher(cfg.Auth.BcryptCost, cfg.Auth.HashConcurrency)

	var limiterClient redis.Cmdable
	if redisConn.Enabled() {
		limiterClient = redisConn.Client
	}
	limiter := auth.NewLoginLimiter(limiterClient, cfg.Auth.LoginMaxAttempts, cfg.Auth.LoginWindow(), logger)

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)
	worker.StartAuditWorker(service.NewAuditService(dispatcher, logger))

	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		UserRepo:       userRepo,
		AttachmentRepo: attachmentRepo,
		Hasher:         hasher,
		Tokens:         tokens,
		Limiter:        limiter,
		Dispatcher:     dispatcher,
		Logger:         logger,
		Metrics:        metrics,
	})
	userService := service.NewUserService(*cfg, service.UserDependencies{
		UserRepo:       userRepo,
		AttachmentRepo: attachmentRepo,
		Hasher:         hasher,
		Dispatcher:     dispatcher,
		Logger:         logger,
	})

	if cfg.Bootstrap.AdminName != "" {
		if _, _, err := authService.EnsureAdmin(ctx, cfg.Bootstrap.AdminName, cfg.Bootstrap.AdminPassword); err != nil {
			logger.Fatal("failed to bootstrap admin", zap.Error(err))
		}
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		BodyLimit:    bodyLimit(cfg.App.UploadMaxBytes),
		ErrorHandler: httptransport.ErrorHandler(logger),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"postgres": pg,
			"redis":    redisConn,
		}),
		Users:          handlers.NewUsersHandler(authService, userService, cfg.App.UploadMaxBytes),
		Dashboards:     handlers.NewDashboardHandler(userService),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, logger, metrics),
		RoleGate:       auth.NewRoleGate(userRepo, cfg.Store.Timeout(), logger, metrics),
		Metrics:        metrics,
	})

	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
}

// buildRepositories picks Postgres when a pool is available and memory
// otherwise. Attachments go to S3 whenever a bucket is configured.
func buildRepositories(ctx context.Context, cfg *config.Config, pg *persistence.Postgres, logger *zap.Logger) (repository.UserRepository, repository.AttachmentRepository, error) {
	var (
		users       repository.UserRepository
		attachments repository.AttachmentRepository
	)
	if pg.Enabled() {
		users = repository.NewUserRepository(pg.PoolHandle())
		attachments = repository.NewAttachmentRepository(pg.PoolHandle())
	} else {
		users = repository.NewMemoryUserRepository()
		attachments = repository.NewMemoryAttachmentRepository()
	}

	s3Client, err := persistence.NewS3(ctx, cfg.S3, logger)
	if err != nil {
		return nil, nil, err
	}
	if s3Client != nil {
		attachments = repository.NewS3AttachmentRepository(s3Client, cfg.S3.Bucket)
	}
	return users, attachments, nil
}

func bodyLimit(uploadMaxBytes int64) int {
	const formOverhead = 1 << 20
	if uploadMaxBytes <= 0 {
		return fiber.DefaultBodyLimit
	}
	return int(2*uploadMaxBytes + formOverhead)
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
