package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"QuantPulse/internal/domain/models"
	drepo "QuantPulse/internal/domain/repository"
	"QuantPulse/internal/handler/api"
	mid "QuantPulse/internal/middleware"
	internalrepo "QuantPulse/internal/repository"
	"QuantPulse/internal/service/binance"
	"QuantPulse/internal/service/buffer"
	"QuantPulse/internal/service/cache"
	"QuantPulse/internal/service/hub"
	svcmetrics "QuantPulse/internal/service/metrics"
	"QuantPulse/internal/service/ratelimit"
	"QuantPulse/internal/service/resample"
	"QuantPulse/internal/services/analytics"
	"QuantPulse/internal/usecase"
	pkgch "QuantPulse/pkg/clickhouse"
	"QuantPulse/pkg/config"
	xhttp "QuantPulse/pkg/http"
	pkgkafka "QuantPulse/pkg/kafka"
	"QuantPulse/pkg/logger"
	"QuantPulse/pkg/metrics"
	"QuantPulse/pkg/server"
)

const snapshotKeyPrefix = "quantpulse:"

// ProvideLogger builds the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
}

// ProvideRegistry creates the process-wide Prometheus registry.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) drepo.Metrics {
	return metrics.New(reg)
}

// ProvideRedisClient returns nil when redis is disabled.
func ProvideRedisClient(cfg *config.Config) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}
	return cache.NewRedisClient(cache.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func ProvideTickBuffer(cfg *config.Config) *buffer.TickBuffer {
	return buffer.New(cfg.Buffer.Capacity)
}

// ProvideResampleCache builds the candle cache and drops cached candles
// whenever the buffer is cleared.
func ProvideResampleCache(cfg *config.Config, buf *buffer.TickBuffer, m drepo.Metrics, log *logger.Logger) (*resample.Cache, error) {
	tfs, err := drepo.ParseTimeframes(cfg.Resample.Timeframes)
	if err != nil {
		return nil, fmt.Errorf("resample timeframes: %w", err)
	}
	rc := resample.NewCache(buf, resample.Config{
		Timeframes: tfs,
		Interval:   cfg.Resample.Interval,
		TTL:        cfg.Resample.CacheTTL,
	}, m, log)
	buf.OnClear(rc.Invalidate)
	return rc, nil
}

// ProvideHub creates the broadcast hub and mirrors every event to redis
// pub/sub when a client is configured.
func ProvideHub(cfg *config.Config, cli *redis.Client, m drepo.Metrics, log *logger.Logger) *hub.Hub {
	h := hub.New(m, log)
	if cli != nil {
		h.Subscribe(hub.NewRedisMirror(cli, cfg.Redis.EventsChannel, log))
	}
	return h
}

// ProvideTickRecorder opens the configured recording backend.
func ProvideTickRecorder(cfg *config.Config, reg *prometheus.Registry, m drepo.Metrics) (*usecase.TickRecorder, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	switch cfg.Backend.Type {
	case usecase.BackendKafka:
		producer, err := pkgkafka.NewProducer(
			pkgkafka.WithBrokers(cfg.Kafka.Brokers),
			pkgkafka.WithCompression(cfg.Kafka.Compression),
			pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
			pkgkafka.WithBatch(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
			pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
			pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
			pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
			pkgkafka.WithHashByKey(true),
			pkgkafka.WithRegisterer(reg),
		)
		if err != nil {
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		pub := internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic)
		return usecase.NewTickRecorder(pub, nil, m, cfg.Backend.Type), nil

	case usecase.BackendClickHouse:
		client, err := pkgch.NewClient(ctx,
			pkgch.WithHost(cfg.ClickHouse.Host),
			pkgch.WithPort(cfg.ClickHouse.Port),
			pkgch.WithDatabase(cfg.ClickHouse.Database),
			pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
			pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
			pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
			pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
			pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
		)
		if err != nil {
			return nil, fmt.Errorf("clickhouse client: %w", err)
		}
		store := internalrepo.NewClickHouseStorage(client, cfg.ClickHouse.Table)
		if err := store.Init(ctx); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("clickhouse schema: %w", err)
		}
		return usecase.NewTickRecorder(nil, store, m, cfg.Backend.Type), nil

	case usecase.BackendSQLite:
		store, err := internalrepo.NewSQLiteStorage(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		if err := store.Init(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("sqlite schema: %w", err)
		}
		return usecase.NewTickRecorder(nil, store, m, cfg.Backend.Type), nil
	}
	return usecase.NewTickRecorder(nil, nil, m, usecase.BackendNone), nil
}

// ProvidePersistPipeline returns nil when nothing is recorded.
func ProvidePersistPipeline(cfg *config.Config, rec *usecase.TickRecorder, m drepo.Metrics, log *logger.Logger) *mid.PersistPipeline {
	if rec.Backend() == usecase.BackendNone {
		return nil
	}
	return mid.NewPersistPipeline(rec, m,
		mid.WithQueueSize(cfg.Backend.QueueSize),
		mid.WithBatch(cfg.Backend.BatchSize, cfg.Backend.BatchTimeout),
		mid.WithLogger(log),
	)
}

// ProvideTickIngestor connects the stream to the buffer, the recording
// pipeline and the hub.
func ProvideTickIngestor(buf *buffer.TickBuffer, pipe *mid.PersistPipeline, h *hub.Hub, m drepo.Metrics, log *logger.Logger) *usecase.TickIngestor {
	var sink drepo.TickSink
	if pipe != nil {
		sink = pipe
	}
	return usecase.NewTickIngestor(buf, sink, h, m, log)
}

func ProvideStreamManager(cfg *config.Config, ing *usecase.TickIngestor, m drepo.Metrics, log *logger.Logger) *usecase.StreamManager {
	return usecase.NewStreamManager(binance.Config{
		BaseURL:          cfg.Market.WSBase,
		PingInterval:     cfg.Market.PingInterval,
		HandshakeTimeout: cfg.Market.HandshakeTTL,
		BackoffInitial:   cfg.Market.BackoffInitial,
		BackoffMax:       cfg.Market.BackoffMax,
	}, ing, m, log)
}

func ProvideAnalyticsEngine(rc *resample.Cache, m drepo.Metrics, log *logger.Logger) *analytics.Engine {
	return analytics.NewEngine(rc, m, log)
}

// ProvideSnapshotCache stores processor snapshots in redis when enabled and
// in process otherwise.
func ProvideSnapshotCache(cli *redis.Client) cache.BytesCache {
	if cli != nil {
		return cache.NewRedisCache(cli, snapshotKeyPrefix)
	}
	return cache.NewTTLCache()
}

func ProvidePairProcessor(cfg *config.Config, buf *buffer.TickBuffer, engine *analytics.Engine, store cache.BytesCache, m drepo.Metrics, log *logger.Logger) (*usecase.PairProcessor, error) {
	tf, err := drepo.ParseTimeframe(cfg.Analytics.DefaultTimeframe)
	if err != nil {
		return nil, fmt.Errorf("analytics timeframe: %w", err)
	}
	return usecase.NewPairProcessor(buf, engine, store, usecase.PairProcessorConfig{
		Interval:  cfg.Analytics.ProcessorInterval,
		TTL:       cfg.Analytics.CacheTTL,
		Timeframe: tf,
		Window:    cfg.Analytics.DefaultWindow,
		Method:    cfg.Analytics.DefaultRegression,
	}, m, log), nil
}

// ProvideAlertEngine builds the alert engine and forwards every
// notification to the hub.
func ProvideAlertEngine(cfg *config.Config, buf *buffer.TickBuffer, engine *analytics.Engine, h *hub.Hub, m drepo.Metrics, log *logger.Logger) (*usecase.AlertEngine, error) {
	tf, err := drepo.ParseTimeframe(cfg.Alerts.Timeframe)
	if err != nil {
		return nil, fmt.Errorf("alerts timeframe: %w", err)
	}
	e := usecase.NewAlertEngine(buf, engine, usecase.AlertConfig{
		PollInterval: cfg.Alerts.PollInterval,
		HistoryLimit: cfg.Alerts.HistoryLimit,
		Timeframe:    tf,
		Window:       cfg.Alerts.Window,
		Method:       cfg.Analytics.DefaultRegression,
	}, m, log)
	e.RegisterCallback(func(ctx context.Context, n models.AlertNotification) error {
		h.Publish(ctx, models.NewAlertEvent(n))
		return nil
	})
	return e, nil
}

func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.Server.RateLimit, cfg.Server.RateBurst)
}

// ProvideHTTPServer registers every API handler on the echo server.
func ProvideHTTPServer(
	cfg *config.Config,
	log *logger.Logger,
	reg *prometheus.Registry,
	buf *buffer.TickBuffer,
	rc *resample.Cache,
	rec *usecase.TickRecorder,
	engine *analytics.Engine,
	proc *usecase.PairProcessor,
	alerts *usecase.AlertEngine,
	streams *usecase.StreamManager,
	h *hub.Hub,
	limiter *ratelimit.Limiter,
	cli *redis.Client,
) *xhttp.Server {
	var (
		registerer prometheus.Registerer
		am         *svcmetrics.AnalyticsMetrics
	)
	if cfg.Metrics.Enabled {
		registerer = reg
		am = svcmetrics.NewAnalyticsMetrics(reg)
	}

	checks := map[string]api.HealthCheck{"storage": rec.Health}
	if cli != nil {
		checks["redis"] = func(ctx context.Context) error { return cli.Ping(ctx).Err() }
	}

	var recorder *usecase.TickRecorder
	if rec.Backend() != usecase.BackendNone {
		recorder = rec
	}

	handlers := []xhttp.Handler{
		api.NewHealthHandler(checks),
		api.NewDataHandler(log, buf, rc, recorder, cfg.Market.Symbols),
		api.NewAnalyticsHandler(log, engine, proc, limiter, am, api.AnalyticsDefaults{
			Timeframe: drepo.NormalizeTimeframe(cfg.Analytics.DefaultTimeframe),
			Window:    cfg.Analytics.DefaultWindow,
			Method:    cfg.Analytics.DefaultRegression,
		}),
		api.NewAlertsHandler(log, alerts),
		api.NewStreamHandler(log, streams, h, buf),
	}

	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(true),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), registerer))
	}
	return xhttp.NewServer(log, handlers, opts...)
}

// ProvideApp assembles the application lifecycle.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	buf *buffer.TickBuffer,
	rc *resample.Cache,
	h *hub.Hub,
	pipe *mid.PersistPipeline,
	rec *usecase.TickRecorder,
	streams *usecase.StreamManager,
	proc *usecase.PairProcessor,
	alerts *usecase.AlertEngine,
	limiter *ratelimit.Limiter,
	srv *xhttp.Server,
	cli *redis.Client,
) *server.App {
	return server.New(cfg, log, server.Components{
		Buffer:    buf,
		Resample:  rc,
		Hub:       h,
		Pipeline:  pipe,
		Recorder:  rec,
		Streams:   streams,
		Processor: proc,
		Alerts:    alerts,
		Limiter:   limiter,
		HTTP:      srv,
		Redis:     cli,
	})
}
