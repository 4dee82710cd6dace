package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"storefront/internal/worker"
)

func reconcileCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run the payment reconciliation worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap("reconciler", true)
			if err != nil {
				return err
			}
			defer a.close()

			_, reconciler := a.checkouts()

			interval := a.cfg.Business.ReconcileInterval
			if interval <= 0 {
				interval = time.Minute
			}
			w := worker.NewReconcileWorker(reconciler, a.redis, interval)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if once {
				if !w.RunOnce(ctx) {
					a.logger.Info("Reconcile pass skipped")
				}
				return nil
			}

			a.logger.Info("Reconciler running", zap.Duration("interval", interval))
			w.RunOnce(ctx)
			return w.Start(ctx)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run a single pass and exit")
	return cmd
}
