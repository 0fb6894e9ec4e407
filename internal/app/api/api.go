package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/schoolhub/internal/api/handlers/health"
	"github.com/magabrotheeeer/schoolhub/internal/api/middlewarectx"
	"github.com/magabrotheeeer/schoolhub/internal/cache"
	"github.com/magabrotheeeer/schoolhub/internal/config"
	"github.com/magabrotheeeer/schoolhub/internal/grpc/client"
	"github.com/magabrotheeeer/schoolhub/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/schoolhub/internal/lib/sl"
	"github.com/magabrotheeeer/schoolhub/internal/migrations"
	"github.com/magabrotheeeer/schoolhub/internal/paymentprovider"
	"github.com/magabrotheeeer/schoolhub/internal/realtime"
	companyservice "github.com/magabrotheeeer/schoolhub/internal/services/company"
	notificationservice "github.com/magabrotheeeer/schoolhub/internal/services/notification"
	parentservice "github.com/magabrotheeeer/schoolhub/internal/services/parent"
	paymentservice "github.com/magabrotheeeer/schoolhub/internal/services/payment"
	renewalservice "github.com/magabrotheeeer/schoolhub/internal/services/renewal"
	schoolservice "github.com/magabrotheeeer/schoolhub/internal/services/school"
	subscriptionservice "github.com/magabrotheeeer/schoolhub/internal/services/subscription"
	"github.com/magabrotheeeer/schoolhub/internal/storage/repository"
)

const shutdownTimeout = 15 * time.Second

// App HTTP API вместе с push-хабом.
type App struct {
	server     *http.Server
	logger     *slog.Logger
	db         *repository.Storage
	cache      *cache.Cache
	authClient *client.AuthClient
	conn       *amqp.Connection
	pubCh      *amqp.Channel
	pushCh     *amqp.Channel
	pushQueue  string
	hub        *realtime.Hub
}

// New подключает хранилище, кеш, брокер и сервис авторизации и собирает маршруты.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{logger: logger}

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}
	a.db = db
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		a.close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	a.cache, err = cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("cache not initialized: %w", err)
	}

	a.conn, err = rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}
	a.pubCh, err = rabbitmq.SetupChannel(a.conn, rabbitmq.GetNotificationQueues())
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}
	a.pushCh, err = rabbitmq.SetupChannel(a.conn, nil)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to setup push channel: %w", err)
	}
	a.pushQueue, err = rabbitmq.DeclareInstanceQueue(a.pushCh, rabbitmq.RoutingKeyPush)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to declare push queue: %w", err)
	}

	a.authClient, err = client.NewAuthClient(cfg.GRPCAuthAddress)
	if err != nil {
		a.close()
		return nil, err
	}

	stripe := paymentprovider.NewClient(cfg.Stripe)
	publisher := rabbitmq.NewPublisher(a.pubCh)

	notifications := notificationservice.NewService(db, publisher, logger)
	subscriptions := subscriptionservice.NewService(db, a.cache, stripe, cfg.CacheTTL, logger)
	companies := companyservice.NewService(db, notifications, subscriptions, cfg.TrialDays, logger)
	schools := schoolservice.NewService(db, subscriptions, notifications, logger)
	parents := parentservice.NewService(db, subscriptions, stripe, notifications, cfg.IntentTTL, logger)
	renewals := renewalservice.NewService(db, subscriptions, notifications, logger)
	payments := paymentservice.New(stripe, subscriptions, parents, logger)

	a.hub = realtime.NewHub(logger, a.authClient, cfg.AllowedOrigins)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, Deps{
		Auth:          a.authClient,
		Students:      schools,
		Companies:     companies,
		Schools:       schools,
		Parents:       parents,
		Subscriptions: subscriptions,
		Renewals:      renewals,
		Notifications: notifications,
		Payments:      payments,
		Hub:           a.hub,
		Health: map[string]health.Pinger{
			"postgres": db,
			"redis":    a.cache,
			"rabbitmq": health.PingFunc(a.pingBroker),
		},
		Limiter: middlewarectx.NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
	})

	a.server = &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return a, nil
}

func (a *App) pingBroker(context.Context) error {
	if a.conn == nil || a.conn.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}
	return nil
}

// Run запускает потребителя push-событий и HTTP-сервер, при отмене ctx
// останавливает их и освобождает ресурсы.
func (a *App) Run(ctx context.Context) error {
	if err := rabbitmq.ConsumerMessage(ctx, a.pushCh, a.pushQueue, a.logger, a.hub.HandleMessage); err != nil {
		a.logger.Error("failed to start push consumer", sl.Err(err))
		a.close()
		return err
	}

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
		a.close()
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		a.close()
		return err
	}
}

func (a *App) close() {
	closers := []struct {
		name string
		fn   func() error
	}{
		{"push channel", closeChannel(a.pushCh)},
		{"publish channel", closeChannel(a.pubCh)},
		{"rabbitmq connection", func() error {
			if a.conn == nil {
				return nil
			}
			return a.conn.Close()
		}},
		{"auth client", func() error {
			if a.authClient == nil {
				return nil
			}
			return a.authClient.Close()
		}},
		{"cache", func() error {
			if a.cache == nil {
				return nil
			}
			return a.cache.Close()
		}},
		{"storage", func() error {
			if a.db == nil {
				return nil
			}
			return a.db.Close()
		}},
	}
	for _, c := range closers {
		if err := c.fn(); err != nil {
			a.logger.Error("failed to close resource", slog.String("resource", c.name), sl.Err(err))
		}
	}
}

func closeChannel(ch *amqp.Channel) func() error {
	return func() error {
		if ch == nil {
			return nil
		}
		return ch.Close()
	}
}
