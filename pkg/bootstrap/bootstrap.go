// Package bootstrap holds the start-up and shutdown steps shared by the api,
// cron-worker and outbox-publisher binaries.
package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/loomline/erp-backend/pkg/config"
	"github.com/loomline/erp-backend/pkg/db"
	"github.com/loomline/erp-backend/pkg/instance"
	"github.com/loomline/erp-backend/pkg/logger"
	"github.com/loomline/erp-backend/pkg/migrate"
	"github.com/loomline/erp-backend/pkg/redis"
)

type closer struct {
	name string
	fn   func() error
}

// Runtime is a loaded process: config, logger and the resources to close on
// exit, in reverse order of opening.
type Runtime struct {
	Config *config.Config
	Logger *logger.Logger

	exit    func(int)
	closers []closer
}

// Start reads .env and the environment, then builds the configured logger.
// It exits the process when configuration is invalid.
func Start(kind string) *Runtime {
	logg := logger.New(logger.Options{ServiceName: kind})
	if err := godotenv.Load(); err != nil {
		logg.Debug(context.Background(), "bootstrap.no_dotenv")
	}
	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "bootstrap.config_invalid", err)
		os.Exit(1)
	}
	cfg.Service.Kind = kind
	return &Runtime{
		Config: cfg,
		Logger: logger.New(logger.Options{
			ServiceName: kind,
			Level:       logger.ParseLevel(cfg.App.LogLevel),
			Format:      cfg.App.LogFormat,
			WarnStack:   cfg.App.LogWarnStack,
		}),
		exit: os.Exit,
	}
}

// Must logs err under msg, closes what was opened so far and exits.
func (rt *Runtime) Must(err error, msg string) {
	if err == nil {
		return
	}
	rt.Logger.Error(context.Background(), msg, err)
	rt.Close()
	rt.exit(1)
}

// OnClose registers fn to run from Close.
func (rt *Runtime) OnClose(name string, fn func() error) {
	rt.closers = append(rt.closers, closer{name: name, fn: fn})
}

// Close runs the registered closers newest first and logs failures.
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		c := rt.closers[i]
		if err := c.fn(); err != nil {
			rt.Logger.Error(rt.Logger.WithField(context.Background(), "resource", c.name), "bootstrap.close_failed", err)
		}
	}
	rt.closers = nil
}

// Database opens the configured store and applies dev migrations.
func (rt *Runtime) Database(ctx context.Context) *db.Client {
	client, err := db.Open(ctx, rt.Config, rt.Logger)
	rt.Must(err, "bootstrap.database_unavailable")
	rt.OnClose("database", client.Close)
	rt.Must(migrate.MaybeRunDev(ctx, rt.Config, rt.Logger, client), "bootstrap.dev_migrations_failed")
	return client
}

func (rt *Runtime) Redis(ctx context.Context) *redis.Client {
	client, err := redis.New(ctx, rt.Config.Redis, rt.Logger)
	rt.Must(err, "bootstrap.redis_unavailable")
	rt.OnClose("redis", client.Close)
	return client
}

// SignalContext is cancelled on SIGINT or SIGTERM and carries the process
// log fields.
func (rt *Runtime) SignalContext(fields map[string]any) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	base := map[string]any{
		"env":         rt.Config.App.Env,
		"serviceKind": rt.Config.Service.Kind,
		"instance":    instance.ID(),
	}
	for k, v := range fields {
		base[k] = v
	}
	return rt.Logger.WithFields(ctx, base), stop
}

// Serve runs srv until ctx is cancelled, then shuts it down within grace.
// A clean shutdown returns nil.
func Serve(ctx context.Context, srv *http.Server, grace time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
