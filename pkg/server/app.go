package server

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	mid "QuantPulse/internal/middleware"
	"QuantPulse/internal/service/buffer"
	"QuantPulse/internal/service/hub"
	"QuantPulse/internal/service/ratelimit"
	"QuantPulse/internal/service/resample"
	"QuantPulse/internal/usecase"
	"QuantPulse/pkg/config"
	xhttp "QuantPulse/pkg/http"
	"QuantPulse/pkg/logger"
	"QuantPulse/pkg/worker"
)

const limiterIdle = 10 * time.Minute

// Components are the long-running parts App starts and stops. Pipeline and
// Redis may be nil.
type Components struct {
	Buffer    *buffer.TickBuffer
	Resample  *resample.Cache
	Hub       *hub.Hub
	Pipeline  *mid.PersistPipeline
	Recorder  *usecase.TickRecorder
	Streams   *usecase.StreamManager
	Processor *usecase.PairProcessor
	Alerts    *usecase.AlertEngine
	Limiter   *ratelimit.Limiter
	HTTP      *xhttp.Server
	Redis     *redis.Client
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg   *config.Config
	log   *logger.Logger
	c     Components
	prune worker.Loop
}

func New(cfg *config.Config, log *logger.Logger, c Components) *App {
	if log == nil {
		log = logger.Nop()
	}
	return &App{cfg: cfg, log: log.Component("app"), c: c}
}

// Run starts every component, subscribes the configured symbols and blocks
// until ctx is cancelled. Shutdown runs in reverse start order.
func (a *App) Run(ctx context.Context) error {
	a.c.Hub.Start(ctx)
	if a.c.Pipeline != nil {
		a.c.Pipeline.Start(ctx)
	}
	a.c.Resample.Start(ctx)
	a.c.Processor.Start(ctx)
	a.c.Alerts.Start(ctx)
	a.prune.Start(ctx, time.Minute, false, func(context.Context) {
		a.c.Limiter.Prune(limiterIdle)
	})

	if err := a.c.HTTP.Start(); err != nil {
		a.log.Error("http server start error", logger.Error(err))
		a.shutdown()
		return err
	}

	if a.cfg.Market.AutoSubscribe {
		started, err := a.c.Streams.SubscribeMany(ctx, a.cfg.Market.Symbols)
		if err != nil {
			a.log.Warn("auto subscribe incomplete", logger.Error(err))
		}
		a.log.Info("streams started", logger.Strings("symbols", started))
	}
	a.log.Info("application started",
		logger.String("env", a.cfg.Environment),
		logger.String("backend", a.c.Recorder.Backend()))

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	a.shutdown()
	return nil
}

func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	a.c.Streams.Close()

	if err := a.c.HTTP.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", logger.Error(err))
	}

	a.prune.Stop()
	a.c.Alerts.Stop()
	a.c.Processor.Stop()
	a.c.Resample.Stop()

	if a.c.Pipeline != nil {
		a.c.Pipeline.Stop(ctx)
	}
	a.c.Recorder.Close()

	a.c.Hub.Stop()
	if a.c.Redis != nil {
		if err := a.c.Redis.Close(); err != nil {
			a.log.Warn("redis close error", logger.Error(err))
		}
	}
	a.log.Info("shutdown complete")
}
