package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"storefront/config"
	"storefront/internal/broker"
	"storefront/internal/payment"
	"storefront/internal/redisclient"
	"storefront/internal/service"
	"storefront/internal/store"
	"storefront/internal/util"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "server",
		Short:         "Storefront backend services",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(reconcileCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds the infrastructure shared by every command.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        *store.Store
	redis     *redisclient.Client
	producer  *broker.Producer
	publisher *broker.EventPublisher
	shutdown  func(context.Context) error
}

// bootstrap initialises logging, tracing and the database. Redis and the
// event publisher are connected only when withRedis is set.
func bootstrap(name string, withRedis bool) (*app, error) {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, name); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logger := util.GetLogger()
	a := &app{cfg: cfg, logger: logger}

	shutdown, err := util.InitTracer(name, cfg.Observ.JaegerEndpoint)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	a.shutdown = shutdown

	a.db, err = store.NewStore(cfg.Database.URL)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	logger.Info("Database connected")

	if cfg.Database.AutoMigrate {
		if err := a.db.RunMigrations(); err != nil {
			a.close()
			return nil, err
		}
		logger.Info("Migrations applied")
	}

	if !withRedis {
		return a, nil
	}

	a.redis, err = redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info("Redis connected")

	var mirror broker.RecordMirror
	if len(cfg.Kafka.Brokers) > 0 {
		a.producer = broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		mirror = a.producer
		logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	}
	a.publisher = broker.NewEventPublisher(a.redis, mirror, cfg.Streams.Prefix, cfg.Streams.MaxLen)

	return a, nil
}

// close releases whatever bootstrap managed to set up.
func (a *app) close() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("Error closing Kafka producer", zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}

	if a.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.shutdown(ctx); err != nil {
			a.logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}
	util.SyncLogger()
}

func (a *app) tokens() *service.TokenIssuer {
	return service.NewTokenIssuer(a.cfg.Auth.JWTSecret, a.cfg.Auth.AccessTTL, a.cfg.Auth.RefreshTTL)
}

// checkouts builds the checkout service and its reconciler.
func (a *app) checkouts() (*service.CheckoutService, *service.PaymentReconciler) {
	pc := a.cfg.Payment
	gateway := payment.NewClient(payment.Config{
		ShopID:  pc.ShopID,
		APIKey:  pc.APIKey,
		BaseURL: pc.BaseURL,
		Timeout: pc.Timeout,
	})
	if gateway.Mock() {
		a.logger.Warn("Payment gateway credentials missing, running in mock mode")
	}

	checkouts := service.NewCheckoutService(a.db, gateway, a.publisher, pc.ReturnURL, a.cfg.Business.PaymentMaxAttempts)
	return checkouts, service.NewPaymentReconciler(checkouts, a.cfg.Business.ReconcileGrace)
}
