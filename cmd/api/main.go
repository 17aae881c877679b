package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rhsenso/erp/internal/auth"
	"github.com/rhsenso/erp/internal/catalog"
	"github.com/rhsenso/erp/internal/config"
	"github.com/rhsenso/erp/internal/db"
	internalhttp "github.com/rhsenso/erp/internal/http"
	"github.com/rhsenso/erp/internal/notify"
	"github.com/rhsenso/erp/internal/repo"
	"github.com/rhsenso/erp/internal/service"
	"github.com/rhsenso/erp/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("api encerrada com erro")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.Telemetry.ServiceName).Logger()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry.Endpoint, cfg.Telemetry.ServiceName)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn().Err(err).Msg("falha ao encerrar telemetria")
		}
	}()

	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer pool.Close()

	if cfg.AutoMigrate {
		applied, err := db.Migrate(ctx, pool)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		for _, name := range applied {
			log.Info().Str("migration", name).Msg("migration aplicada")
		}
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis parse: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	repository := repo.New(pool)
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAccessTTL)

	notifier := notify.New(cfg.LoginGuard.SlackWebhookURL, log.Logger)
	guard := service.NewLoginGuard(redisClient, notifier, cfg.LoginGuard.MaxAttempts, cfg.LoginGuard.Window)
	permissions := service.NewPermissionService(repository, redisClient, cfg.Permission.CacheTTL)
	authService := service.NewAuthService(repository, redisClient, jwtManager, guard, permissions, cfg.JWTRefreshTTL)
	userAdmin := service.NewUserAdminService(repository, authService, permissions)
	catalogService := catalog.NewService(repository)

	if cfg.Janitor.Enabled {
		janitor := service.NewRefreshJanitor(repository, cfg.Janitor.Interval, cfg.Janitor.Retention, log.Logger)
		janitor.Start(ctx)
		defer janitor.Stop()
	}

	handler, err := internalhttp.NewRouter(internalhttp.Deps{
		Config:      cfg,
		JWT:         jwtManager,
		Auth:        authService,
		Permissions: permissions,
		Users:       userAdmin,
		Catalog:     catalogService,
		Sessions:    redisClient,
		Checks: map[string]func(context.Context) error{
			"db":    pool.Ping,
			"redis": func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		},
	})
	if err != nil {
		return fmt.Errorf("router: %w", err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Msgf("API ouvindo em :%d", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("encerrando...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
