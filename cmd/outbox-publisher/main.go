package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loomline/erp-backend/pkg/bootstrap"
	"github.com/loomline/erp-backend/pkg/metrics"
	"github.com/loomline/erp-backend/pkg/outbox"
	"github.com/loomline/erp-backend/pkg/outbox/registry"
	"github.com/loomline/erp-backend/pkg/pubsub"
)

func main() {
	rt := bootstrap.Start("outbox-publisher")
	defer rt.Close()
	cfg, logg := rt.Config, rt.Logger

	dbClient := rt.Database(context.Background())

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	rt.Must(err, "outbox.pubsub_unavailable")
	rt.OnClose("pubsub", pubsubClient.Close)

	publishers := pubsub.NewPublishers(pubsubClient)
	rt.OnClose("publishers", func() error {
		publishers.Stop()
		return nil
	})

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	rt.Must(err, "outbox.registry_invalid")

	service, err := NewService(ServiceParams{
		Config:           cfg,
		Logger:           logg,
		DB:               dbClient,
		PubSub:           pubsubClient,
		Repository:       outbox.NewRepository(dbClient.DB()),
		Registry:         eventRegistry,
		DLQRepository:    outbox.NewDLQRepository(dbClient.DB()),
		Metrics:          metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
		PublisherFactory: publishers.For,
	})
	rt.Must(err, "outbox.service_invalid")

	ctx, stop := rt.SignalContext(map[string]any{"topics": eventRegistry.Topics()})
	defer stop()

	// The publisher has no API; the port only serves /metrics.
	metricsSrv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := bootstrap.Serve(ctx, metricsSrv, 5*time.Second); err != nil {
			logg.Error(ctx, "outbox.metrics_listener_failed", err)
		}
	}()

	logg.Info(ctx, "outbox.starting")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		rt.Must(err, "outbox.stopped_unexpectedly")
	}
	logg.Info(ctx, "outbox.shutdown_complete")
}
