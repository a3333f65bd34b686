package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loomline/erp-backend/api/controllers"
	outsourcingcontrollers "github.com/loomline/erp-backend/api/controllers/outsourcing"
	ordercontrollers "github.com/loomline/erp-backend/api/controllers/productionorders"
	rejectioncontrollers "github.com/loomline/erp-backend/api/controllers/rejections"
	stagecontrollers "github.com/loomline/erp-backend/api/controllers/stages"
	"github.com/loomline/erp-backend/api/middleware"
	"github.com/loomline/erp-backend/internal/outsourcing"
	"github.com/loomline/erp-backend/internal/productionorders"
	"github.com/loomline/erp-backend/internal/progress"
	"github.com/loomline/erp-backend/internal/rejections"
	"github.com/loomline/erp-backend/internal/stages"
	"github.com/loomline/erp-backend/pkg/config"
	"github.com/loomline/erp-backend/pkg/db"
	"github.com/loomline/erp-backend/pkg/logger"
	"github.com/loomline/erp-backend/pkg/redis"
)

// cacheStore is the redis surface the router needs: readiness and the
// idempotency ledger.
type cacheStore interface {
	redis.Pinger
	redis.IdempotencyStore
}

// Services groups the workflow services exposed over HTTP.
type Services struct {
	Orders      productionorders.Service
	Progress    progress.Service
	Stages      stages.Service
	Outsourcing outsourcing.Service
	Rejections  rejections.Service
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	cache cacheStore,
	documents controllers.Pinger,
	gatherer prometheus.Gatherer,
	svc Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSAllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg,
			controllers.ReadinessCheck{Name: "database", Pinger: dbP},
			controllers.ReadinessCheck{Name: "redis", Pinger: cache},
			controllers.ReadinessCheck{Name: "challan", Pinger: documents},
		))
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/production-orders/{orderId}", ordercontrollers.Get(svc.Orders, logg))
		r.Get("/production-orders/{orderId}/progress", ordercontrollers.Progress(svc.Progress, logg))
		r.Get("/stages/{stageId}", stagecontrollers.Get(svc.Stages, logg))
		r.Get("/stages/{stageId}/rejections", rejectioncontrollers.ListLines(svc.Rejections, logg))
		r.Get("/stages/{stageId}/rejections/accounting", rejectioncontrollers.Accounting(svc.Rejections, logg))

		// Inline so the idempotency middleware sees the full route pattern.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Idempotency(cache, logg))

			r.Post("/production-orders", ordercontrollers.Create(svc.Orders, logg))

			r.Post("/stages/{stageId}/start", stagecontrollers.Start(svc.Stages, logg))
			r.Post("/stages/{stageId}/hold", stagecontrollers.Hold(svc.Stages, logg))
			r.Post("/stages/{stageId}/resume", stagecontrollers.Resume(svc.Stages, logg))
			r.Post("/stages/{stageId}/skip", stagecontrollers.Skip(svc.Stages, logg))
			r.Post("/stages/{stageId}/complete", stagecontrollers.Complete(svc.Stages, logg))
			r.Post("/stages/{stageId}/dispatch", outsourcingcontrollers.Dispatch(svc.Outsourcing, logg))
			r.Post("/stages/{stageId}/receive", outsourcingcontrollers.Receive(svc.Outsourcing, logg))
			r.Put("/stages/{stageId}/outsourcing", outsourcingcontrollers.SetOutsourced(svc.Outsourcing, logg))
			r.Post("/stages/{stageId}/rejections", rejectioncontrollers.AddLine(svc.Rejections, logg))
		})
	})

	return r
}
