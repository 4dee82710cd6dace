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

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"storefront/internal/api"
	"storefront/internal/service"
	"storefront/internal/worker"
)

func serveCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:       "serve [auth|catalog|content|users]",
		Short:     "Run one of the HTTP services",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"auth", "catalog", "content", "users"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(args[0], port)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "HTTP port (defaults to $PORT)")
	return cmd
}

func runServe(name, port string) error {
	withRedis := name == "catalog" || name == "content"
	a, err := bootstrap(name+"-service", withRedis)
	if err != nil {
		return err
	}
	defer a.close()

	logger := a.logger
	cfg := a.cfg
	if port == "" {
		port = cfg.Server.Port
	}

	tokens := a.tokens()
	checks := map[string]api.Pinger{"postgres": a.db}
	if a.redis != nil {
		checks["redis"] = a.redis
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	workerDone := make(chan struct{})
	close(workerDone)

	var svc api.Services
	switch name {
	case "auth":
		mailer := service.NewMailer(service.SMTPConfig{
			Host:     cfg.Mail.SMTPHost,
			Port:     cfg.Mail.SMTPPort,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
		})
		svc.Auth = service.NewAuthService(a.db, mailer, tokens, cfg.Auth.OTPTTL, cfg.Auth.OTPMaxAttempts)
	case "catalog":
		svc.Catalog = service.NewCatalogService(a.db, a.redis, cfg.Business.CategoryCacheTTL, a.publisher)
		svc.Basket = service.NewBasketService(a.db)
		svc.Checkouts, svc.Reconciler = a.checkouts()

		if cfg.Business.ReconcileInterval > 0 {
			w := worker.NewReconcileWorker(svc.Reconciler, a.redis, cfg.Business.ReconcileInterval)
			workerDone = make(chan struct{})
			go func() {
				defer close(workerDone)
				if err := w.Start(workerCtx); err != nil {
					logger.Error("Reconcile worker error", zap.Error(err))
				}
			}()
		}
	case "content":
		svc.Content = service.NewContentService(a.db, a.publisher)
	case "users":
		svc.Users = service.NewUserService(a.db)
	default:
		return fmt.Errorf("unknown service %q", name)
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(svc, tokens, api.CookieConfig{
		Name:   cfg.Auth.CookieName,
		Secure: cfg.Auth.CookieSecure,
		MaxAge: tokens.RefreshTTL(),
	}, checks)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: router,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("service", name), zap.String("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-serveErr:
		workerCancel()
		<-workerDone
		return fmt.Errorf("failed to start server: %w", err)
	}

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	<-workerDone

	logger.Info("Server exited")
	return nil
}
