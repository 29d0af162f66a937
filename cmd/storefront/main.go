package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/syedhariswaseem/lazr/internal/cart"
	"github.com/syedhariswaseem/lazr/internal/catalog"
	"github.com/syedhariswaseem/lazr/internal/checkout"
	"github.com/syedhariswaseem/lazr/internal/config"
	"github.com/syedhariswaseem/lazr/internal/flow"
	"github.com/syedhariswaseem/lazr/internal/httpapi"
	"github.com/syedhariswaseem/lazr/internal/orders"
	"github.com/syedhariswaseem/lazr/internal/payment"
	"github.com/syedhariswaseem/lazr/internal/storage"
	"github.com/syedhariswaseem/lazr/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, os.Stdout)
	slog.SetDefault(log)
	// trace ids from incoming traceparent headers end up in every log line
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	if err := run(cfg, log); err != nil {
		log.Error("storefront stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStorage, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStorage()

	products, err := catalog.NewRepository(cfg.CatalogDBPath)
	if err != nil {
		return err
	}
	defer products.Close()
	if err := products.RunMigrations(); err != nil {
		return err
	}
	if cfg.SeedCatalog {
		n, err := products.Seed(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			log.Info("catalog seeded", "products", n)
		}
	}

	carts := cart.NewService(st, cfg.TaxRate, log.With("component", "cart"))
	checkouts := checkout.NewService(st, log.With("component", "checkout"))

	// events is filled in below; the simulator reads it when it confirms
	var events payment.Handlers
	gateway, err := openGateway(cfg, &events, log.With("component", "payment"))
	if err != nil {
		return err
	}

	flowOpts := []flow.Option{flow.WithStockChecker(products)}

	var orderRepo *orders.Repository
	if cfg.OrdersDatabaseURL != "" {
		orderRepo, err = orders.NewRepository(cfg.OrdersDatabaseURL)
		if err != nil {
			return err
		}
		defer orderRepo.Close()
		if err := orderRepo.RunMigrations(); err != nil {
			return err
		}
		orderSvc := orders.NewService(orderRepo, log.With("component", "orders"))
		flowOpts = append(flowOpts, flow.WithDraftRecorder(orderSvc))
		events = append(events, orderSvc)
		log.Info("order ledger enabled")
	}

	orch := flow.New(carts, checkouts, st, gateway, cfg.Currency, log.With("component", "flow"), flowOpts...)
	events = append(events, orch)

	if orderRepo != nil && len(cfg.KafkaBrokers) > 0 {
		poller := orders.NewOutboxPoller(orderRepo, log.With("component", "outbox"), cfg.OrderEventsTopic, cfg.KafkaBrokers...)
		defer poller.Close()
		go poller.Run(ctx)

		listener := cart.NewListener(orch, log.With("component", "cart-listener"), cfg.OrderEventsTopic, cfg.KafkaBrokers...)
		defer listener.Close()
		go listener.Run(ctx)
		log.Info("order events enabled", "topic", cfg.OrderEventsTopic)
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Products:  products,
		Carts:     carts,
		Checkouts: checkouts,
		Flow:      orch,
		Gateway:   gateway,
		Events:    events,
		Log:       log,
	}, httpapi.Options{
		RequestTimeout:     cfg.RequestTimeout,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
		SessionCookie:      cfg.SessionCookie,
		SecureCookie:       cfg.SecureCookie,
		SessionMaxAge:      cfg.RecordTTL,
		Currency:           cfg.Currency,
		WebhookSecret:      cfg.StripeWebhookSecret,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("storefront starting", "port", cfg.HTTPPort, "storage", cfg.StorageDriver, "payment", cfg.PaymentDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server exited")
	return nil
}

func openStorage(ctx context.Context, cfg *config.Config, log *slog.Logger) (storage.Storage, func(), error) {
	newRedis := func() (*redis.Client, error) {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		return client, nil
	}
	newMongo := func() (*storage.MongoStore, func(), error) {
		db, err := storage.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return nil, nil, err
		}
		store := storage.NewMongoStore(db, cfg.RecordTTL)
		if err := store.CreateIndexes(ctx); err != nil {
			_ = db.Client().Disconnect(context.Background())
			return nil, nil, err
		}
		return store, func() { _ = db.Client().Disconnect(context.Background()) }, nil
	}

	switch cfg.StorageDriver {
	case config.StorageRedis:
		client, err := newRedis()
		if err != nil {
			return nil, nil, err
		}
		return storage.NewRedisStore(client, cfg.RecordTTL), func() { client.Close() }, nil

	case config.StorageMongo:
		return newMongo()

	case config.StorageCached:
		durable, closeMongo, err := newMongo()
		if err != nil {
			return nil, nil, err
		}
		client, err := newRedis()
		if err != nil {
			closeMongo()
			return nil, nil, err
		}
		cache := storage.NewRedisStore(client, cfg.CacheTTL)
		return storage.NewCached(durable, cache, log.With("component", "storage")), func() {
			client.Close()
			closeMongo()
		}, nil

	default:
		log.Warn("using in-memory storage; carts are lost on restart")
		return storage.NewMemory(), func() {}, nil
	}
}

func openGateway(cfg *config.Config, events *payment.Handlers, log *slog.Logger) (payment.Gateway, error) {
	var gw payment.Gateway
	switch cfg.PaymentDriver {
	case config.PaymentSimulated:
		gw = payment.NewSimulator(payment.RandomRoll, func(ctx context.Context, ev payment.Event) error {
			return events.HandlePaymentEvent(ctx, ev)
		}, log)
	default:
		client, err := payment.NewStripeClient(payment.StripeConfig{
			SecretKey: cfg.StripeSecretKey,
			APIBase:   cfg.StripeAPIBase,
			Timeout:   cfg.PaymentTimeout,
		}, log)
		if err != nil {
			return nil, err
		}
		gw = client
	}
	return payment.NewGuarded(gw, log), nil
}
