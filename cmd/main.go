package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"loanportal/userhub/internal/config"
	"loanportal/userhub/internal/handler"
	"loanportal/userhub/internal/model"
	"loanportal/userhub/internal/repository"
	"loanportal/userhub/internal/service"
	jwtpkg "loanportal/userhub/pkg/jwt"
)

func main() {
	configPath := "config.yaml"
	if p := os.Getenv("USERHUB_CONFIG"); p != "" {
		configPath = p
	}

	// 1. Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// 2. Initialize logger
	logger, err := newLogger(cfg.Log)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	// 3. Open the user record store
	userRepo, closeStore, err := openUserRepository(context.Background(), cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to open user store", zap.String("backend", cfg.Database.Backend), zap.Error(err))
	}
	defer closeStore()

	// 4. Initialize state store (Redis or in-memory)
	var stateStore repository.StateStore
	switch cfg.State.Backend {
	case "redis":
		redisClient, err := config.NewRedisClient(cfg.Database.Redis)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redisClient.Close()
		stateStore = repository.NewRedisStateStore(redisClient, "userhub:")
		logger.Info("using Redis state store")
	case "memory":
		stateStore = repository.NewMemoryStateStore()
		logger.Info("using in-memory state store")
	}

	// 5. Initialize JWT manager
	jwtManager := jwtpkg.NewManager(
		cfg.JWT.SigningKey,
		cfg.JWT.Issuer,
		cfg.JWT.AccessTokenTTL,
		cfg.JWT.RefreshTokenTTL,
	)

	// 6. Initialize services
	identityService := service.NewIdentityService(userRepo, logger.Named("identity"), service.IdentityOptions{
		SkipDeletedLinks: cfg.Identity.SkipDeletedLinks,
	})
	userService := service.NewUserService(userRepo)
	authService := service.NewAuthService(userRepo, stateStore, jwtManager)
	oauth2Service := service.NewOAuth2Service(cfg.OAuth2, stateStore, identityService, authService, logger.Named("oauth2"))

	// 7. Initialize handlers and router
	authHandler := handler.NewAuthHandler(authService, oauth2Service)
	adminHandler := handler.NewAdminHandler(userService)
	router := handler.SetupRouter(cfg, logger, jwtManager, authHandler, adminHandler)

	// 8. Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 9. Start server with graceful shutdown
	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
		return
	}
	logger.Info("server exited gracefully")
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zc.Level = zap.NewAtomicLevelAt(level)
	}
	return zc.Build()
}

// openUserRepository connects the configured backend and returns a close
// function tied to process teardown.
func openUserRepository(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (repository.UserRepository, func(), error) {
	switch cfg.Backend {
	case "postgres":
		db, err := config.NewPostgresDB(cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		if cfg.Postgres.AutoMigrate {
			if err := model.AutoMigrate(db); err != nil {
				closeFn()
				return nil, nil, fmt.Errorf("auto-migrate: %w", err)
			}
			logger.Info("database migration completed")
		}
		logger.Info("using postgres user store")
		return repository.NewPGUserRepository(db), closeFn, nil

	case "mongo":
		client, err := config.NewMongoClient(ctx, cfg.Mongo)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() { _ = client.Disconnect(context.Background()) }
		coll := client.Database(cfg.Mongo.DB).Collection(cfg.Mongo.Collection)
		if cfg.Mongo.EnsureIndexes {
			if err := repository.EnsureMongoIndexes(ctx, coll); err != nil {
				closeFn()
				return nil, nil, fmt.Errorf("ensure indexes: %w", err)
			}
			logger.Info("mongo indexes ensured")
		}
		logger.Info("using mongo user store")
		return repository.NewMongoUserRepository(coll), closeFn, nil

	case "memory":
		logger.Warn("using in-memory user store; data is lost on restart")
		return repository.NewMemoryUserRepository(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown database backend %q", cfg.Backend)
}
