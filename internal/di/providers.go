package di

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/gommon/bytes"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"

	"UniAD/internal/domain/models"
	"UniAD/internal/domain/repository"
	domsvc "UniAD/internal/domain/service"
	"UniAD/internal/handler/api"
	internalrepo "UniAD/internal/repository"
	"UniAD/internal/service/cache"
	svcmetrics "UniAD/internal/service/metrics"
	"UniAD/internal/service/ratelimit"
	"UniAD/internal/services/detectors"
	"UniAD/internal/usecase"
	pkgch "UniAD/pkg/clickhouse"
	"UniAD/pkg/config"
	xhttp "UniAD/pkg/http"
	pkgkafka "UniAD/pkg/kafka"
	applogger "UniAD/pkg/logger"
	"UniAD/pkg/metrics"
	"UniAD/pkg/server"
)

// ProvideLogger builds the application logger from the logging section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	output := cfg.Logging.Output
	if output == "file" {
		output = cfg.Logging.File.Path
	}
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: output,
		File: applogger.FileConfig{
			MaxSizeMB:  cfg.Logging.File.MaxSizeMB,
			MaxBackups: cfg.Logging.File.MaxBackups,
			MaxAgeDays: cfg.Logging.File.MaxAgeDays,
			Compress:   cfg.Logging.File.Compress,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("service", cfg.Service.Name), applogger.String("env", cfg.Environment)), nil
}

// ProvideRegistry creates the registry every application collector is
// registered on.
func ProvideRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) repository.Metrics {
	return metrics.NewWithRegistry(reg)
}

// ProvideEndpointMetrics creates transport counters.
func ProvideEndpointMetrics(reg *prometheus.Registry) *svcmetrics.Endpoint {
	return svcmetrics.NewEndpoint(reg)
}

// ProvideStrategies selects the in-process or remote kernel.
func ProvideStrategies(cfg *config.Config) domsvc.StrategyResolver {
	if cfg.Detection.Kernel == "remote" {
		kernel := detectors.NewKernelClient(cfg.Detection.Remote.URL, cfg.Detection.Remote.Timeout, cfg.Detection.Remote.Retries)
		return detectors.NewRemoteRegistry(kernel)
	}
	return detectors.NewLocalRegistry()
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when auditing
// is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithAddress(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithPool(10, 5, 0),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideAuditStore creates the run audit table. A nil client yields a nil
// store.
func ProvideAuditStore(ch *pkgch.Client, log *applogger.Logger) (repository.AuditStore, error) {
	if ch == nil {
		return nil, nil
	}
	store := internalrepo.NewCHAuditStore(ch, internalrepo.DefaultAuditTable)
	store.SetLogger(log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, nil
}

// ProvideResultCache builds the in-memory cache, layered over Redis when
// configured. Disabled caching yields nil.
func ProvideResultCache(cfg *config.Config, log *applogger.Logger) (repository.ResultCache, func(), error) {
	if !cfg.Cache.Enabled {
		return nil, func() {}, nil
	}
	mem := cache.NewLRUCache(cfg.Cache.Size, cfg.Cache.TTL)
	if !cfg.Cache.Redis.Enabled {
		return cache.NewResultCache(mem, cfg.Cache.TTL, log), func() {}, nil
	}
	rc, err := cache.NewRedisCache(context.Background(), cache.RedisConfig{
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
		Prefix:   cfg.Cache.Redis.Prefix,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("redis cache: %w", err)
	}
	return cache.NewResultCache(cache.NewLayeredCache(mem, rc), cfg.Cache.TTL, log), func() { _ = rc.Close() }, nil
}

// ProvideDetectionService wires the pipeline with its collaborators.
func ProvideDetectionService(
	cfg *config.Config,
	strategies domsvc.StrategyResolver,
	m repository.Metrics,
	audit repository.AuditStore,
	rc repository.ResultCache,
	log *applogger.Logger,
) *usecase.DetectionService {
	defs := models.ParamDefaults{
		models.KindPersist:         models.KindDefaults(cfg.Detection.Defaults.Persist),
		models.KindLevelShift:      models.KindDefaults(cfg.Detection.Defaults.LevelShift),
		models.KindVolatilityShift: models.KindDefaults(cfg.Detection.Defaults.VolatilityShift),
	}
	return usecase.NewDetectionService(
		usecase.NewPipeline(strategies),
		usecase.DetectionServiceConfig{Defaults: defs, MaxPoints: cfg.Detection.MaxPoints, Timeout: cfg.Detection.Timeout},
		m, audit, rc, log,
	)
}

// ProvideRateLimiter returns nil when rate limiting is disabled.
func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	if !cfg.RateLimit.Enabled {
		return nil
	}
	return ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst, cfg.RateLimit.TTL)
}

// ProvideHandlers lists every HTTP route group.
func ProvideHandlers(
	cfg *config.Config,
	svc *usecase.DetectionService,
	limiter *ratelimit.Limiter,
	endpoint *svcmetrics.Endpoint,
	log *applogger.Logger,
) []xhttp.Handler {
	info := api.ServiceInfo{Name: cfg.Service.Name, Version: cfg.Service.Version, Kernel: cfg.Detection.Kernel}
	return []xhttp.Handler{
		api.NewDetectHandler(log, svc, info, limiter, endpoint),
		api.NewWSDetectHandler(log, svc, endpoint,
			api.WithWSRateLimit(limiter),
			api.WithMaxFrameSize(frameLimit(cfg.Server.BodyLimit)),
		),
	}
}

// frameLimit applies the HTTP body limit to websocket frames. Config
// validation has already rejected malformed limits.
func frameLimit(bodyLimit string) int64 {
	if bodyLimit == "" {
		return 0
	}
	n, err := bytes.Parse(bodyLimit)
	if err != nil {
		return 0
	}
	return n
}

// ProvideHTTPServer creates the Echo server.
func ProvideHTTPServer(cfg *config.Config, handlers []xhttp.Handler, reg *prometheus.Registry, log *applogger.Logger) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithBodyLimit(cfg.Server.BodyLimit),
		xhttp.WithLogger(log),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path, reg))
	}
	return xhttp.NewServer(handlers, opts...)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when the worker is
// disabled.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithDelivery(cfg.Kafka.RequiredAcks, cfg.Kafka.Producer.MaxAttempts, cfg.Kafka.Compression),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithKeyOrdering(),
		pkgkafka.WithProducerMetrics(reg),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideEventPublisher publishes detection events to the result topic.
func ProvideEventPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.EventPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.ResultTopic)
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML.
func ProvideKafkaConsumer(cfg *config.Config, reg *prometheus.Registry, log *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers, cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(log),
		pkgkafka.WithConsumerMetrics(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(
		pkgkafka.TraceHook(),
		pkgkafka.HookFuncs{Err: func(_ context.Context, topic string, km kafka.Message, _ []byte, err error) {
			log.Warn("kafka message failed",
				applogger.String("topic", topic),
				applogger.String("key", string(km.Key)),
				applogger.Int64("offset", km.Offset),
				applogger.String("trace_id", pkgkafka.ExtractTraceID(km)),
				applogger.Error(err))
		}},
	))
	return consumer, nil
}

// ProvideKafkaDetectHandler handles jobs from the request topic.
func ProvideKafkaDetectHandler(
	cfg *config.Config,
	svc *usecase.DetectionService,
	pub repository.EventPublisher,
	m repository.Metrics,
	log *applogger.Logger,
) pkgkafka.MessageHandler {
	if pub == nil {
		return nil
	}
	return usecase.NewKafkaDetectHandler(cfg.Kafka.RequestTopic, svc, pub, m, log)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	httpServer *xhttp.Server,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
) *server.App {
	return server.New(log, httpServer, consumer, kh, cfg.Server.ShutdownTimeout)
}
