package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-transactions/app/service"
	"github.com/vibast-solutions/ms-go-transactions/config"
)

var (
	workerMode bool
)

var inquiriesCmd = &cobra.Command{
	Use:   "inquiries",
	Short: "Run inquiry queue commands",
}

var inquiriesProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Inquire waiting transactions at their gateways",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"inquiries_process",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.InquiryInterval },
			func(s *service.TransactionService, ctx context.Context) error {
				return s.RunInquiryBatch(ctx)
			},
		)
	},
}

var inquiriesReleaseStaleCmd = &cobra.Command{
	Use:   "release-stale",
	Short: "Return inquiries stuck in processing to the queue",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"inquiries_release_stale",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.ReleaseStaleInterval },
			func(s *service.TransactionService, ctx context.Context) error {
				return s.RunReleaseStaleInquiriesBatch(ctx)
			},
		)
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Settle sessions whose verification was interrupted after the audit log was written",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"reconcile",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.ReconcileInterval },
			func(s *service.TransactionService, ctx context.Context) error {
				return s.RunReconcileBatch(ctx)
			},
		)
	},
}

func init() {
	rootCmd.AddCommand(inquiriesCmd)
	rootCmd.AddCommand(reconcileCmd)
	inquiriesCmd.AddCommand(inquiriesProcessCmd)
	inquiriesCmd.AddCommand(inquiriesReleaseStaleCmd)

	rootCmd.PersistentFlags().BoolVar(&workerMode, "worker", false, "Run continuously using configured interval")
}

func runCommand(
	name string,
	intervalResolver func(cfg *config.Config) time.Duration,
	fn func(s *service.TransactionService, ctx context.Context) error,
) {
	cfg, transactionService, _, cleanup := mustCreateTransactionService()
	defer cleanup()

	if workerMode {
		runWorker(name, intervalResolver(cfg), transactionService, fn)
		return
	}

	ctx := context.Background()
	runJob(name, func() error { return fn(transactionService, ctx) })
}

func runWorker(
	name string,
	interval time.Duration,
	transactionService *service.TransactionService,
	fn func(s *service.TransactionService, ctx context.Context) error,
) {
	if interval <= 0 {
		logrus.WithField("job", name).Fatal("invalid worker interval")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runJob(name, func() error { return fn(transactionService, ctx) })

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case <-quit:
			logrus.WithField("job", name).Info("Worker shutdown requested")
			return
		case <-ticker.C:
			runJob(name, func() error { return fn(transactionService, ctx) })
		}
	}
}

func runJob(name string, fn func() error) {
	start := time.Now()
	err := fn()
	latency := time.Since(start)
	if err != nil {
		logrus.WithError(err).WithField("job", name).WithField("latency", latency.String()).Error("job_failed")
		return
	}
	logrus.WithField("job", name).WithField("latency", latency.String()).Info("job_completed")
}
