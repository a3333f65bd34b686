package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loomline/erp-backend/api/routes"
	"github.com/loomline/erp-backend/internal/outsourcing"
	"github.com/loomline/erp-backend/internal/productionorders"
	"github.com/loomline/erp-backend/internal/progress"
	"github.com/loomline/erp-backend/internal/rejections"
	"github.com/loomline/erp-backend/internal/stages"
	"github.com/loomline/erp-backend/pkg/bootstrap"
	"github.com/loomline/erp-backend/pkg/challan"
	"github.com/loomline/erp-backend/pkg/metrics"
	"github.com/loomline/erp-backend/pkg/outbox"
)

const (
	rejectionPageSize = 200
	shutdownTimeout   = 15 * time.Second
)

func main() {
	rt := bootstrap.Start("api")
	defer rt.Close()
	cfg, logg := rt.Config, rt.Logger

	dbClient := rt.Database(context.Background())
	redisClient := rt.Redis(context.Background())

	challanClient, err := challan.NewClient(cfg.Challan, logg)
	rt.Must(err, "api.challan_client_invalid")

	workflowMetrics := metrics.NewWorkflowMetrics(prometheus.DefaultRegisterer)
	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	stageRepo := stages.NewRepository(dbClient.DB())

	stageSvc, err := stages.NewService(stageRepo, dbClient, outboxSvc, workflowMetrics, logg)
	rt.Must(err, "api.stage_service_invalid")

	outsourcingSvc, err := outsourcing.NewService(outsourcing.ServiceParams{
		Stages:         stageSvc,
		Repo:           stageRepo,
		Tx:             dbClient,
		Outbox:         outboxSvc,
		Documents:      challanClient,
		Metrics:        workflowMetrics,
		Logger:         logg,
		HandoffTimeout: cfg.Workflow.HandoffTimeout,
	})
	rt.Must(err, "api.outsourcing_service_invalid")

	rejectionSvc, err := rejections.NewService(rejections.NewRepository(dbClient.DB()), dbClient, outboxSvc, workflowMetrics, logg, rejectionPageSize)
	rt.Must(err, "api.rejection_service_invalid")

	orderSvc, err := productionorders.NewService(productionorders.NewRepository(dbClient.DB()), dbClient, outboxSvc, logg)
	rt.Must(err, "api.order_service_invalid")

	progressSvc, err := progress.NewService(stageRepo)
	rt.Must(err, "api.progress_service_invalid")

	// PORT is set by the hosting platform and wins over config.
	addr := ":" + cfg.App.Port
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	ctx, stop := rt.SignalContext(map[string]any{"addr": addr, "dialect": dbClient.Dialect()})
	defer stop()

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, challanClient, prometheus.DefaultGatherer, routes.Services{
			Orders:      orderSvc,
			Progress:    progressSvc,
			Stages:      stageSvc,
			Outsourcing: outsourcingSvc,
			Rejections:  rejectionSvc,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logg.Info(ctx, "api.listening")
	rt.Must(bootstrap.Serve(ctx, server, shutdownTimeout), "api.server_failed")
	logg.Info(ctx, "api.stopped")
}
