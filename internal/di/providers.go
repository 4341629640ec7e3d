package di

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"FinPrep/internal/domain/models"
	"FinPrep/internal/domain/repository"
	"FinPrep/internal/handler/api"
	internalrepo "FinPrep/internal/repository"
	"FinPrep/internal/scheduler"
	"FinPrep/internal/service/yahoo"
	"FinPrep/internal/services/calendar"
	"FinPrep/internal/services/features"
	"FinPrep/internal/services/indicators"
	"FinPrep/internal/usecase"
	"FinPrep/pkg/cache"
	pkgch "FinPrep/pkg/clickhouse"
	"FinPrep/pkg/config"
	xhttp "FinPrep/pkg/http"
	pkgkafka "FinPrep/pkg/kafka"
	applogger "FinPrep/pkg/logger"
	"FinPrep/pkg/metrics"
	"FinPrep/pkg/queue"
	"FinPrep/pkg/server"
)

const initTimeout = 10 * time.Second

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithWriteTimeout(cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger builds the app logger and attaches the error collector when
// logging.collect_topic is set.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Output:  cfg.Logging.Output,
		Service: "finprep",
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Logging.CollectTopic != "" && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:    cfg.Logging.CollectInterval,
			CountThreshold:  cfg.Logging.CollectThreshold,
			Topic:           cfg.Logging.CollectTopic,
			Publisher:       producer,
			IncludeWarnings: cfg.Logging.IncludeWarnings,
		})
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideCalendar creates the NYSE calendar with configured extra closures.
func ProvideCalendar(cfg *config.Config) (repository.Calendar, error) {
	closures, err := calendar.ParseClosures(cfg.Calendar.Closures)
	if err != nil {
		return nil, fmt.Errorf("calendar: %w", err)
	}
	return calendar.NewNYSE(calendar.WithClosures(closures...)), nil
}

func ProvideIndicatorEngine() repository.IndicatorEngine {
	return indicators.NewEngine()
}

// ProvideClickHouseClient connects to ClickHouse when it is the bar source.
func ProvideClickHouseClient(cfg *config.Config, l *applogger.Logger) (*pkgch.Client, error) {
	if cfg.Provider.Type != internalrepo.ProviderClickHouse {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(cfg.ClickHouse.MaxConnections),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	if cfg.ClickHouse.InitSchema {
		if err := client.InitSchema(ctx, internalrepo.BarSchema(cfg.ClickHouse.Database)); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("clickhouse schema: %w", err)
		}
	}
	l.Info("clickhouse connected", applogger.String("database", cfg.ClickHouse.Database))
	return client, nil
}

// ProvideCHBarSource wraps the ClickHouse client, or returns nil without one.
func ProvideCHBarSource(ch *pkgch.Client, l *applogger.Logger, m repository.Metrics) *internalrepo.CHBarSource {
	if ch == nil {
		return nil
	}
	src := internalrepo.NewCHBarSource(ch)
	src.SetLogger(l)
	src.SetMetrics(m)
	return src
}

func ProvideYahooClient(cfg *config.Config, l *applogger.Logger, m repository.Metrics) *yahoo.Client {
	y := cfg.Provider.Yahoo
	return yahoo.NewClient(
		yahoo.WithBaseURL(y.BaseURL),
		yahoo.WithHTTPClient(xhttp.NewClient(xhttp.WithTimeout(y.Timeout), xhttp.WithUserAgent(y.UserAgent))),
		yahoo.WithRateLimit(y.RatePerSecond, y.Burst),
		yahoo.WithIntervals(y.Intervals),
		yahoo.WithIntradayDays(y.IntradayDays),
		yahoo.WithLogger(l),
		yahoo.WithMetrics(m),
	)
}

// ProvideCache builds the provider cache named by provider.cache; "none" gives nil.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	redisCache := func() (*cache.RedisCache, error) {
		ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
		defer cancel()
		rc, err := cache.NewRedisCache(ctx,
			cache.WithRedisAddr(cfg.Redis.Addr),
			cache.WithRedisPassword(cfg.Redis.Password),
			cache.WithRedisDB(cfg.Redis.DB),
			cache.WithRedisPrefix(cfg.Redis.KeyPrefix),
		)
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		return rc, nil
	}

	switch cfg.Provider.Cache {
	case "memory":
		return cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Provider.CacheSize)), nil
	case "redis":
		rc, err := redisCache()
		if err != nil {
			return nil, err
		}
		return rc, nil
	case "layered":
		rc, err := redisCache()
		if err != nil {
			return nil, err
		}
		return cache.NewLayeredCache(rc, cache.WithLayeredMemorySize(cfg.Provider.CacheSize)), nil
	default:
		return nil, nil
	}
}

// ProvideBarProvider picks the configured source and puts the cache in front.
func ProvideBarProvider(
	cfg *config.Config,
	yc *yahoo.Client,
	chSrc *internalrepo.CHBarSource,
	c cache.Service,
	l *applogger.Logger,
	m repository.Metrics,
) (repository.BarProvider, error) {
	var p repository.BarProvider
	switch cfg.Provider.Type {
	case internalrepo.ProviderClickHouse:
		if chSrc == nil {
			return nil, fmt.Errorf("clickhouse provider selected but no client configured")
		}
		p = chSrc
	default:
		p = yc
	}
	if c == nil {
		return p, nil
	}
	return internalrepo.NewCachedProvider(p, c, cfg.Provider.CacheTTL,
		internalrepo.WithCacheLogger(l),
		internalrepo.WithCacheMetrics(m),
	), nil
}

// ProvideArraysPublisher publishes prepared arrays to Kafka, or returns nil
// when Kafka is disabled.
func ProvideArraysPublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.ArraysPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.ArraysTopic)
}

// ProvidePipelineConfig translates the pipeline section into run defaults.
func ProvidePipelineConfig(cfg *config.Config) (usecase.PipelineConfig, error) {
	loc, err := time.LoadLocation(cfg.Pipeline.Session.Location)
	if err != nil {
		return usecase.PipelineConfig{}, fmt.Errorf("session location: %w", err)
	}
	hour, minute, err := cfg.SessionOpen()
	if err != nil {
		return usecase.PipelineConfig{}, err
	}
	return usecase.PipelineConfig{
		ProxyTicker: cfg.Pipeline.ProxyTicker,
		Lookback:    cfg.Pipeline.Lookback,
		Workers:     cfg.Pipeline.Workers,
		Policy:      features.InsufficientPolicy(cfg.Pipeline.OnInsufficientCoverage),
		Indicators:  cfg.Pipeline.Indicators,
		Session: features.Session{
			Location: loc,
			OpenHour: hour,
			OpenMin:  minute,
			Steps:    cfg.Pipeline.Session.Steps,
		},
	}, nil
}

func ProvidePipelineUseCase(
	pc usecase.PipelineConfig,
	cal repository.Calendar,
	provider repository.BarProvider,
	engine repository.IndicatorEngine,
	pub repository.ArraysPublisher,
	chSrc *internalrepo.CHBarSource,
	l *applogger.Logger,
	m repository.Metrics,
) *usecase.PipelineUseCase {
	opts := []usecase.PipelineOption{
		usecase.WithPipelineLogger(l),
		usecase.WithPipelineMetrics(m),
	}
	if pub != nil {
		opts = append(opts, usecase.WithPublisher(pub))
	}
	if chSrc != nil {
		opts = append(opts, usecase.WithLatestProvider(chSrc))
	}
	return usecase.NewPipelineUseCase(cal, provider, engine, pc, opts...)
}

func ProvidePipelineHandler(l *applogger.Logger, uc *usecase.PipelineUseCase) *api.PipelineEchoHandler {
	return api.NewPipelineEchoHandler(l, uc)
}

// ProvideKafkaConsumer creates the jobs consumer, or nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideJobsHandler handles prepare jobs from kafka.jobs_topic and the Redis queue.
func ProvideJobsHandler(cfg *config.Config, uc *usecase.PipelineUseCase, l *applogger.Logger, m repository.Metrics) *usecase.JobsHandler {
	return usecase.NewJobsHandler(cfg.Kafka.JobsTopic, uc, l, m)
}

// ProvideJobQueue creates the Redis job queue, or nil when it is disabled.
// Instances with queue.consume off only enqueue.
func ProvideJobQueue(cfg *config.Config, jobs *usecase.JobsHandler, l *applogger.Logger) *queue.RedisQueue {
	if !cfg.Queue.Enabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	mode := queue.ModeProducerConsumer
	if !cfg.Queue.Consume {
		mode = queue.ModeProducerOnly
	}
	q := queue.NewRedisQueue(client, queue.Config{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	},
		queue.WithKeyPrefix(cfg.Queue.KeyPrefix),
		queue.WithLogger(l),
		queue.WithMode(mode),
		queue.WithRetryable(usecase.Retryable),
	)
	q.Register(jobs)
	return q
}

// ProvideJobsEchoHandler exposes the queue over HTTP, or returns nil without one.
func ProvideJobsEchoHandler(l *applogger.Logger, q *queue.RedisQueue) *api.JobsEchoHandler {
	if q == nil {
		return nil
	}
	return api.NewJobsEchoHandler(l, q)
}

// ProvideScheduler registers the configured batch run.
func ProvideScheduler(cfg *config.Config, uc *usecase.PipelineUseCase, l *applogger.Logger) (*scheduler.Scheduler, error) {
	start, end, err := cfg.PipelineRange()
	if err != nil {
		return nil, err
	}
	s := scheduler.NewScheduler(uc, scheduler.Job{
		Spec:               cfg.Pipeline.Schedule.Cron,
		Tickers:            cfg.Pipeline.Tickers,
		Start:              start,
		End:                end,
		Window:             cfg.Pipeline.Schedule.Window,
		Interval:           models.ParseFrequency(cfg.Pipeline.Interval),
		Indicators:         cfg.Pipeline.Indicators,
		UseVolatilityProxy: cfg.Pipeline.UseVolatilityProxy,
		Lookback:           cfg.Pipeline.Lookback,
		Publish:            cfg.Pipeline.Schedule.Publish,
		Timeout:            cfg.Pipeline.Schedule.Timeout,
	}, l)
	if err := s.Register(); err != nil {
		return nil, err
	}
	return s, nil
}

// ProvideApp creates the application server. The publisher owns the Kafka
// producer, so closing it also closes the producer.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	handler *api.PipelineEchoHandler,
	jobsHandler *api.JobsEchoHandler,
	consumer *pkgkafka.Consumer,
	jobs *usecase.JobsHandler,
	q *queue.RedisQueue,
	sched *scheduler.Scheduler,
	pub repository.ArraysPublisher,
	ch *pkgch.Client,
	c cache.Service,
) *server.App {
	opts := []server.Option{
		server.WithHTTPHandler(handler),
		server.WithScheduler(sched),
	}
	if consumer != nil {
		opts = append(opts, server.WithConsumer(consumer, jobs))
	}
	if q != nil {
		opts = append(opts,
			server.WithHTTPHandler(jobsHandler),
			server.WithQueue(q),
			server.WithCloser("job queue", q.Close),
		)
	}
	if pub != nil {
		opts = append(opts, server.WithCloser("arrays publisher", pub.Close))
	}
	if ch != nil {
		opts = append(opts, server.WithCloser("clickhouse", ch.Close))
	}
	if c != nil {
		opts = append(opts, server.WithCloser("cache", c.Close))
	}
	return server.New(cfg, l, opts...)
}
