// Package gigroutebilling собирает приложение биллинга: хранилище,
// миграции, кеш, брокер, клиент платёжного провайдера, сервисы и HTTP-сервер.
package gigroutebilling

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/streadway/amqp"

	"github.com/gigroute/billing/internal/cache"
	"github.com/gigroute/billing/internal/config"
	libjwt "github.com/gigroute/billing/internal/lib/jwt"
	"github.com/gigroute/billing/internal/migrations"
	"github.com/gigroute/billing/internal/paymentprovider"
	"github.com/gigroute/billing/internal/rabbitmq"
	billingservice "github.com/gigroute/billing/internal/services/billing"
	entitlementservice "github.com/gigroute/billing/internal/services/entitlement"
	"github.com/gigroute/billing/internal/services/quota"
	tourservice "github.com/gigroute/billing/internal/services/tour"
	"github.com/gigroute/billing/internal/storage/repository"

	"github.com/go-chi/chi"
)

// App хранит собранные зависимости и HTTP-сервер приложения.
type App struct {
	server     *http.Server
	logger     *slog.Logger
	db         *repository.Storage
	rabbitConn *amqp.Connection
}

// New собирает приложение из конфигурации: подключается к postgres,
// прогоняет миграции, поднимает redis и rabbitmq, создает сервисы
// и регистрирует маршруты.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	rabbitConn, err := rabbitmq.Connect(cfg.AddressRabbit, cfg.Retries, cfg.RetryDelay)
	if err != nil {
		return nil, err
	}
	rabbitChannel, err := rabbitmq.SetupChannel(rabbitConn)
	if err != nil {
		return nil, err
	}
	publisher := rabbitmq.NewEntitlementPublisher(rabbitChannel)

	providerClient := paymentprovider.NewClient(cfg.Stripe.SecretKey)
	jwtMaker := libjwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL)

	entitlementService := entitlementservice.New(db, cacheRedis, logger)
	quotaGate := quota.NewGate(entitlementService, db, logger)
	tourService := tourservice.New(db, entitlementService, quotaGate, logger)
	billingService := billingservice.New(db, db, providerClient, entitlementService, cfg.Stripe, logger)
	webhookProcessor := billingservice.NewProcessor(db, entitlementService, publisher, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, cfg, jwtMaker,
		billingService, webhookProcessor, tourService)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server:     srv,
		logger:     logger,
		db:         db,
		rabbitConn: rabbitConn,
	}, nil
}

// Run запускает HTTP-сервер и блокируется до ошибки сервера или отмены
// контекста, после чего выполняет корректное завершение.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		_ = a.rabbitConn.Close()
		_ = a.db.DB.Close()
		return err
	}
}
