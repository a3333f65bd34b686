package main

import (
	"context"
	"errors"
	"flag"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loomline/erp-backend/internal/cron"
	"github.com/loomline/erp-backend/internal/rejections"
	"github.com/loomline/erp-backend/pkg/bootstrap"
	"github.com/loomline/erp-backend/pkg/metrics"
	"github.com/loomline/erp-backend/pkg/outbox"
)

func main() {
	once := flag.Bool("once", false, "run a single locked cycle and exit")
	flag.Parse()

	rt := bootstrap.Start("cron-worker")
	defer rt.Close()
	cfg, logg := rt.Config, rt.Logger

	dbClient := rt.Database(context.Background())
	redisClient := rt.Redis(context.Background())

	cronMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	outboxRepo := outbox.NewRepository(dbClient.DB())

	auditJob, err := cron.NewRejectionAuditJob(cron.RejectionAuditJobParams{
		Logger:      logg,
		DB:          dbClient,
		Ledger:      rejections.NewRepository(dbClient.DB()),
		Outbox:      outbox.NewService(outboxRepo, logg),
		Metrics:     cronMetrics,
		GracePeriod: cfg.Cron.RejectionGracePeriod,
		PageSize:    cfg.Cron.RejectionAuditPageSize,
	})
	rt.Must(err, "cron.audit_job_invalid")

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
		Retention:  cfg.Cron.OutboxRetentionDays,
	})
	rt.Must(err, "cron.retention_job_invalid")

	jobs, err := cron.NewRegistry(auditJob, retentionJob)
	rt.Must(err, "cron.registry_invalid")

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env)), 0)
	rt.Must(err, "cron.lock_invalid")

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   jobs,
		Lock:       lock,
		Metrics:    cronMetrics,
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	rt.Must(err, "cron.service_invalid")

	ctx, stop := rt.SignalContext(map[string]any{"once": *once})
	defer stop()

	if *once {
		rt.Must(service.RunOnce(ctx), "cron.cycle_failed")
		return
	}
	logg.Info(ctx, "cron.starting")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		rt.Must(err, "cron.stopped_unexpectedly")
	}
	logg.Info(ctx, "cron.shutdown_complete")
}

// lockName scopes the cycle lock per environment.
func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return "cron-worker:" + env
}
