package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"Confluence/internal/domain/models"
	"Confluence/internal/domain/repository"
	domsvc "Confluence/internal/domain/service"
	"Confluence/internal/handler/api"
	mid "Confluence/internal/middleware"
	internalrepo "Confluence/internal/repository"
	"Confluence/internal/service/executor"
	"Confluence/internal/service/gateway"
	"Confluence/internal/service/ratelimit"
	"Confluence/internal/service/stream"
	"Confluence/internal/services/activity"
	"Confluence/internal/services/confluence"
	"Confluence/internal/services/features"
	"Confluence/internal/services/resources"
	"Confluence/internal/usecase"
	"Confluence/pkg/cache"
	pkgch "Confluence/pkg/clickhouse"
	"Confluence/pkg/config"
	xhttp "Confluence/pkg/http"
	pkgkafka "Confluence/pkg/kafka"
	applogger "Confluence/pkg/logger"
	"Confluence/pkg/metrics"
	"Confluence/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideRegistry creates the Prometheus registry served on /metrics.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) repository.Metrics {
	return metrics.NewWithRegistry(reg)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when no brokers are
// configured. Aggregated error logs are shipped through it when a collector
// topic is set.
func ProvideKafkaProducer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Producer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithWriteTimeout(cfg.Kafka.WriteTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.RetryMax),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	if cfg.Log.CollectorTopic != "" {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval: 30 * time.Second,
			Topic:        cfg.Log.CollectorTopic,
			Publisher:    producer,
		})
	}
	return producer, nil
}

// ProvideClickHouseClient connects to ClickHouse, or returns nil when no
// host is configured.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.ClickHouse.Host == "" {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecution),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideRedisPrimary creates the primary cache tier.
func ProvideRedisPrimary(cfg *config.Config) *cache.RedisBackend {
	return newRedisBackend("primary", cfg.Cache.Primary)
}

func newRedisBackend(name string, rc config.RedisConfig) *cache.RedisBackend {
	return cache.NewRedisBackend(
		cache.WithRedisName(name),
		cache.WithRedisAddr(rc.Addr),
		cache.WithRedisPassword(rc.Password),
		cache.WithRedisDB(rc.DB),
		cache.WithRedisPool(rc.PoolSize, 2, 5*time.Second),
		cache.WithRedisPrefix(rc.Prefix),
	)
}

// ProvideCache fronts the primary with the configured fallback tier.
func ProvideCache(cfg *config.Config, primary *cache.RedisBackend, l *applogger.Logger, m repository.Metrics) *cache.TieredCache {
	var fallback cache.Backend
	switch cfg.Cache.Fallback.Type {
	case "redis":
		fallback = newRedisBackend("fallback", cfg.Cache.Fallback.Redis)
	default:
		fallback = cache.NewMemoryBackend(cache.WithMemoryMaxSize(cfg.Cache.Fallback.MaxEntries))
	}
	return cache.NewTieredCache(primary, fallback,
		cache.WithAttemptTimeout(cfg.Cache.AttemptTimeout),
		cache.WithRetries(cfg.Cache.Retries),
		cache.WithLogger(l.With(applogger.String("component", "cache"))),
		cache.WithRecorder(m),
	)
}

// ProvideThrottle creates the shared outbound request throttle.
func ProvideThrottle(cfg *config.Config) *ratelimit.Throttle {
	return ratelimit.New(cfg.Throttle.MaxRequests, cfg.Throttle.Window)
}

// ProvideClientFactory builds gateway handles, serving OHLCV from stored
// candles when configured.
func ProvideClientFactory(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) (repository.ClientFactory, error) {
	factory := gateway.NewFactory(gateway.Config{
		BaseURL:    cfg.Exchange.BaseURL,
		APIKey:     cfg.Exchange.APIKey,
		Timeout:    cfg.Exchange.Timeout,
		DepthLimit: cfg.Exchange.DepthLimit,
	})
	if cfg.Exchange.OHLCVSource != "clickhouse" {
		return factory, nil
	}
	if ch == nil {
		return nil, errors.New("clickhouse client required for stored ohlcv")
	}
	store := internalrepo.NewCHCandleStore(ch, cfg.ClickHouse.CandleTable, l)
	return internalrepo.WithStoredOHLCV(factory, store), nil
}

// ProvideExecutorRegistry creates one resilient executor per endpoint on demand.
func ProvideExecutorRegistry(cfg *config.Config, th *ratelimit.Throttle, factory repository.ClientFactory, l *applogger.Logger, m repository.Metrics) *executor.Registry {
	return executor.NewRegistry(executor.Config{
		FailureThreshold: cfg.Executor.FailureThreshold,
		RecoveryTimeout:  cfg.Executor.RecoveryTimeout,
		MaxRetries:       cfg.Executor.MaxRetries,
		BaseDelay:        cfg.Executor.BaseDelay,
		AttemptTimeout:   cfg.Executor.AttemptTimeout,
	}, th, factory,
		executor.WithLogger(l.With(applogger.String("component", "executor"))),
		executor.WithMetrics(m),
	)
}

// ProvideSampler creates the activity sampler.
func ProvideSampler(cfg *config.Config) *activity.Sampler {
	return activity.NewSampler(
		activity.WithWindows(cfg.Polling.RecentWindow, cfg.Polling.BaselineWindow),
		activity.WithHistorySize(cfg.Polling.HistorySize),
	)
}

// ProvideController creates the adaptive polling controller.
func ProvideController(cfg *config.Config, sampler *activity.Sampler, m repository.Metrics) *activity.Controller {
	p := cfg.Polling
	mult := make(map[models.DataKind]float64, len(p.Multipliers))
	for kind, v := range p.Multipliers {
		mult[models.DataKind(kind)] = v
	}
	return activity.NewController(activity.Policy{
		MinInterval:             p.MinInterval,
		MaxInterval:             p.MaxInterval,
		DefaultInterval:         p.DefaultInterval,
		HighVolumeThreshold:     p.HighVolumeThreshold,
		LowVolumeThreshold:      p.LowVolumeThreshold,
		HighVolatilityThreshold: p.HighVolatilityThreshold,
		LowVolatilityThreshold:  p.LowVolatilityThreshold,
		Multipliers:             mult,
	}, sampler, m)
}

// ProvideResourceManager creates the resource manager over the local host.
func ProvideResourceManager(cfg *config.Config, l *applogger.Logger, m repository.Metrics) *resources.Manager {
	r := cfg.Resources
	return resources.NewManager(resources.Config{
		HeadroomPercent:   r.HeadroomPercent,
		DefaultMaxOps:     r.MaxOps,
		ReleaseTimeout:    r.ReleaseTimeout,
		StaleAfter:        r.StaleAfter,
		SweepInterval:     r.SweepInterval,
		RecomputeInterval: r.RecomputeInterval,
	}, resources.GopsutilProbe{},
		resources.WithLogger(l.With(applogger.String("component", "resources"))),
		resources.WithMetrics(m),
	)
}

// ProvideScorer creates the snapshot component scorer.
func ProvideScorer() domsvc.ComponentScorer {
	return features.NewScorer()
}

// ProvideFuser creates the confluence engine.
func ProvideFuser(cfg *config.Config) domsvc.Fuser {
	c := confluence.DefaultConfig()
	cc := cfg.Confluence
	if len(cc.Weights) > 0 {
		c.Weights = cc.Weights
	}
	c.ConfThreshold = cc.ConfThreshold
	c.ConsThreshold = cc.ConsThreshold
	c.BuyThreshold = cc.BuyThreshold
	c.SellThreshold = cc.SellThreshold
	c.Sensitivity = cc.ConsensusSensitivity
	c.MaxAmplification = cc.MaxAmplification
	c.Dampening = cc.Dampening
	return confluence.NewEngine(c)
}

// ProvideSignalFusion wires scoring, fusion, caching and optional publishing.
func ProvideSignalFusion(
	cfg *config.Config,
	scorer domsvc.ComponentScorer,
	fuser domsvc.Fuser,
	rc *cache.TieredCache,
	producer *pkgkafka.Producer,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.SignalFusion {
	opts := []usecase.FusionOption{usecase.WithFusionLogger(l.With(applogger.String("component", "fusion")))}
	if cfg.Confluence.Publish && producer != nil {
		opts = append(opts, usecase.WithPublisher(internalrepo.NewKafkaSignalPublisher(producer, cfg.Kafka.SignalTopic)))
	}
	return usecase.NewSignalFusion(scorer, fuser, rc, m, usecase.FusionConfig{
		ResultTTL:    cfg.Cache.TTL.Confluence,
		BreakdownTTL: cfg.Cache.TTL.Breakdown,
		MemoTTL:      cfg.Cache.TTL.Fused,
	}, opts...)
}

// ProvidePoller creates the adaptive market data poller.
func ProvidePoller(
	cfg *config.Config,
	registry *executor.Registry,
	controller *activity.Controller,
	sampler *activity.Sampler,
	rm *resources.Manager,
	fusion *usecase.SignalFusion,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.Poller {
	return usecase.NewPoller(usecase.PollerConfig{
		Symbols:        cfg.Symbols,
		TradesLimit:    cfg.Exchange.TradesLimit,
		OHLCVLimit:     cfg.Exchange.OHLCVLimit,
		OHLCVTimeframe: repository.NormalizeTimeframe(cfg.Exchange.OHLCVTF),
	}, registry, controller, sampler, rm, fusion, m, l)
}

// ProvideTickPipeline validates pushed ticks before they reach the sampler.
func ProvideTickPipeline(cfg *config.Config, sampler *activity.Sampler, m repository.Metrics) *mid.TickPipeline {
	return mid.NewTickPipeline(sampler, m, mid.WithMaxRPS(cfg.Stream.MaxTicksPerSecond))
}

// ProvideTickCollector creates the websocket tick collector, or nil unless
// the stream source is websocket.
func ProvideTickCollector(cfg *config.Config, pipe *mid.TickPipeline, m repository.Metrics, l *applogger.Logger) *usecase.TickCollector {
	if cfg.Stream.Source != "websocket" {
		return nil
	}
	ts := stream.New(
		cfg.Stream.APIKey,
		cfg.Stream.WebSocketURL,
		cfg.Symbols,
		cfg.Stream.ReconnectDelay,
		cfg.Stream.PingInterval,
		stream.WithLogger(l.With(applogger.String("component", "stream"))),
		stream.WithBufferSize(cfg.Stream.BufferSize),
	)
	return usecase.NewTickCollector(ts, pipe, m, l.With(applogger.String("component", "tick_collector")))
}

// ProvideKafkaConsumer creates the tick topic consumer, or nil unless the
// stream source is kafka.
func ProvideKafkaConsumer(cfg *config.Config, pipe *mid.TickPipeline, m repository.Metrics, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if cfg.Stream.Source != "kafka" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Stream.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.RetryMax, cfg.Kafka.BackoffMin, cfg.Kafka.BackoffMax),
		pkgkafka.WithConsumerLogger(l.With(applogger.String("component", "kafka_consumer"))),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.RegisterHandler(usecase.NewKafkaTicksHandler(cfg.Kafka.TickTopic, pipe, m))
	return consumer, nil
}

// ProvideOpsHandler exposes the read API, debug views and health checks.
func ProvideOpsHandler(
	l *applogger.Logger,
	registry *executor.Registry,
	controller *activity.Controller,
	rm *resources.Manager,
	poller *usecase.Poller,
	fusion *usecase.SignalFusion,
	collector *usecase.TickCollector,
	ch *pkgch.Client,
) *api.OpsHandler {
	h := api.NewOpsHandler(l, registry, controller, rm, poller, fusion)
	if collector != nil {
		h.AddCheck("stream", func(context.Context) error {
			if !collector.IsConnected() {
				return errors.New("tick stream disconnected")
			}
			return nil
		})
	}
	if ch != nil {
		h.AddCheck("clickhouse", ch.Health)
	}
	return h
}

// ProvideHTTPServer creates the Echo server.
func ProvideHTTPServer(cfg *config.Config, h *api.OpsHandler, l *applogger.Logger, reg *prometheus.Registry) *xhttp.Server {
	return xhttp.NewServer(h,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithServerLogger(l.With(applogger.String("component", "http"))),
		xhttp.WithRegistry(reg),
	)
}

// ProvideApp assembles runners and closers into the application.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	producer *pkgkafka.Producer,
	ch *pkgch.Client,
	rc *cache.TieredCache,
	poller *usecase.Poller,
	rm *resources.Manager,
	collector *usecase.TickCollector,
	consumer *pkgkafka.Consumer,
	srv *xhttp.Server,
) *server.App {
	app := server.New(l)

	app.AddRunner("poller", poller)
	app.AddRunner("resources", rm)
	if collector != nil {
		app.AddRunner("tick_collector", collector)
	}
	if consumer != nil {
		app.AddRunner("kafka_consumer", server.ConsumerRunner(consumer, cfg.Server.ShutdownTimeout))
	}
	app.AddRunner("http", srv)

	// closers run in reverse: the producer goes last so the log collector can flush into it
	if producer != nil {
		app.AddCloser("kafka_producer", producer.Close)
	}
	app.AddCloser("log_collector", func() error {
		l.RemoveCollector()
		return nil
	})
	if ch != nil {
		app.AddCloser("clickhouse", ch.Close)
	}
	app.AddCloser("cache", rc.Close)
	return app
}
