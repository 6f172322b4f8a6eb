package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"algoverse/internal/api"
	"algoverse/internal/app/service"
	"algoverse/internal/app/worker"
	"algoverse/internal/common/security"
	"algoverse/internal/domain/repository"
	"algoverse/internal/platform/config"
	"algoverse/internal/platform/database"
	"algoverse/internal/platform/executor"
	"algoverse/internal/platform/identity"
	"algoverse/internal/platform/logger"
	"algoverse/internal/platform/queue"
	"algoverse/internal/platform/store"
	"algoverse/internal/platform/store/postgrest"
)

const rateWindow = time.Minute

func main() {
	// 1. Load Configuration
	if err := config.Load(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	cfg := config.AppConfig

	// 2. Initialize Logger
	zl, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zl.Sync()

	rootCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// 3. Initialize the record store
	var (
		gw store.Gateway
		db *sql.DB
	)
	if cfg.DatabaseURL != "" {
		db, err = database.Connect(rootCtx, cfg.DatabaseURL, zl)
		if err != nil {
			zl.Fatal("failed to connect to database", zap.Error(err))
		}
		defer database.Close(db, zl)
		gw = database.NewGateway(db, cfg.StoreTimeout)
	} else {
		gw = postgrest.New(cfg.SupabaseURL, cfg.SupabaseServiceRoleKey, cfg.StoreTimeout)
		zl.Info("using REST record store", zap.String("url", cfg.SupabaseURL))
	}

	// 4. Initialize Redis (optional)
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb, err = queue.Connect(rootCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, zl)
		if err != nil {
			zl.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer queue.Close(rdb, zl)
	}

	// 5. Initialize Repositories
	userRepo := repository.NewUserRepository(gw)
	problemRepo := repository.NewProblemRepository(gw)
	submissionRepo := repository.NewSubmissionRepository(gw)
	progressRepo := repository.NewProgressRepository(gw)

	// 6. Initialize Services
	var resolver service.IdentityResolver
	if len(cfg.SupabaseJWTSecret) > 0 {
		resolver = security.NewJWTResolver(cfg.SupabaseJWTSecret)
		zl.Info("verifying bearer tokens locally")
	} else {
		resolver = identity.NewResolver(cfg.SupabaseURL, cfg.SupabaseAnonKey, cfg.AuthTimeout)
	}

	var deferred service.DeferredWriter
	var retryQueue *queue.RetryQueue
	if rdb != nil {
		retryQueue = queue.NewRetryQueue(rdb, cfg.PersistenceRetryQueue)
		deferred = retryQueue
	}

	runner := executor.NewClient(cfg.PistonURL, cfg.ExecutorTimeout)
	progressService := service.NewProgressService(progressRepo)
	authService := service.NewAuthService(resolver, userRepo, cfg.IsBootstrapAdmin, zl)
	problemService := service.NewProblemService(problemRepo, progressRepo)
	submissionService := service.NewSubmissionService(submissionRepo, problemRepo, progressService, runner, deferred, zl)
	adminService := service.NewAdminService(userRepo, problemRepo, submissionRepo, progressRepo)

	// 7. Initialize Persistence Worker (as a goroutine)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	workerDone := make(chan struct{})
	if retryQueue != nil {
		w := worker.NewPersistenceWorker(retryQueue, queue.NewLocker(rdb), submissionRepo, progressService,
			cfg.PersistenceRetryMaxAttempts, cfg.PersistenceLockTTL, zl)
		go func() {
			defer close(workerDone)
			w.Start(workerCtx)
		}()
	} else {
		close(workerDone)
		zl.Warn("redis not configured; failed result and progress writes will not be retried")
	}

	// 8. Initialize Router & HTTP Server
	router := api.NewRouter(zl, authService, problemService, submissionService, adminService, api.RouterOptions{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RunLimiter:         newLimiter(rdb, "run", cfg.RateLimitRunPerMinute),
		SubmitLimiter:      newLimiter(rdb, "submit", cfg.RateLimitSubmitPerMinute),
	})

	server := &http.Server{
		Addr:        ":" + cfg.APIPort,
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	// 9. Graceful Shutdown
	go func() {
		zl.Info("server starting", zap.String("port", cfg.APIPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("could not listen", zap.String("port", cfg.APIPort), zap.Error(err))
		}
	}()

	<-rootCtx.Done()

	zl.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zl.Error("server shutdown failed", zap.Error(err))
	}
	workerCancel()
	<-workerDone

	zl.Info("server and worker stopped gracefully")
}

// newLimiter returns nil when perMinute is not positive.
func newLimiter(rdb *redis.Client, scope string, perMinute int) queue.Limiter {
	if perMinute <= 0 {
		return nil
	}
	if rdb != nil {
		return queue.NewRedisLimiter(rdb, scope, perMinute, rateWindow)
	}
	return queue.NewLocalLimiter(perMinute, rateWindow)
}
