package factory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"otp-guard/internal/bucketing"
	"otp-guard/internal/client"
	"otp-guard/internal/config"
	"otp-guard/internal/events"
	"otp-guard/internal/mailer"
	"otp-guard/internal/otp"
	redisrepo "otp-guard/internal/repository/redis"
	"otp-guard/internal/service"
	"otp-guard/internal/tls"
	"otp-guard/internal/util"
)

var ErrNoMailTransport = errors.New("no mail transport: enable Kafka or run in development")

// Factory manages the lifecycle of all application dependencies.
type Factory struct {
	config     *config.Config
	logger     *zap.Logger
	tlsManager *tls.TLSManager

	// Clients
	redisClient      *client.RedisClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient
	scyllaClient     *client.ScyllaClient

	// Managers
	bucketingManager *bucketing.BucketingManager
	eventFactory     *events.Factory
	recorder         events.Recorder
	mailSender       otp.MailSender
	guard            *otp.Guard
	otpCache         *redisrepo.OTPCache

	serviceFactory *service.ServiceFactory

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory loads configuration from the environment, sets up logging and
// builds every dependency.
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)
	return NewFactoryWithConfig(cfg, logger)
}

func NewFactoryWithConfig(cfg *config.Config, logger *zap.Logger) (*Factory, error) {
	f := &Factory{
		config: cfg,
		logger: logger,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		manager, err := tls.NewTLSManager(cfg.Server, cfg.IsDevelopment(), logger.Named("tls"))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize TLS: %w", err)
		}
		f.tlsManager = manager
	}

	if err := f.initializeClients(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}
	if err := f.initializeManagers(); err != nil {
		f.Close()
		return nil, err
	}

	logger.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("kafka_enabled", f.kafkaProducer != nil),
		util.Bool("clickhouse_enabled", f.clickhouseClient != nil),
		util.Bool("elasticsearch_enabled", f.esClient != nil),
		util.Bool("scylla_enabled", f.scyllaClient != nil),
	)
	return f, nil
}

// initializeClients connects to every enabled backend. Redis is always
// required; the optional sinks only fail startup in production.
func (f *Factory) initializeClients() error {
	redisClient, err := client.NewRedisClient(f.config, f.logger)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	f.redisClient = redisClient

	var initErrors []error

	if f.config.Kafka.Enabled {
		if producer, err := client.NewKafkaProducer(f.config, f.logger); err != nil {
			initErrors = append(initErrors, fmt.Errorf("kafka: %w", err))
		} else {
			f.kafkaProducer = producer
		}
	}

	if f.config.Elasticsearch.Enabled {
		if es, err := client.NewElasticsearchClient(f.config, f.logger); err != nil {
			initErrors = append(initErrors, fmt.Errorf("elasticsearch: %w", err))
		} else {
			f.esClient = es
		}
	}

	if f.config.Clickhouse.Enabled {
		if ch, err := client.NewClickHouseClient(f.config, f.logger); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
		} else {
			f.clickhouseClient = ch
		}
	}

	if f.config.Scylla.Enabled {
		if scylla, err := client.NewScyllaClient(f.config, f.logger); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
		} else {
			f.scyllaClient = scylla
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %w", errors.Join(initErrors...))
		}
		for _, err := range initErrors {
			f.logger.Warn("Service initialization warning", util.ErrorField(err))
		}
	}
	return nil
}

func (f *Factory) initializeManagers() error {
	f.bucketingManager = bucketing.NewBucketingManager(f.config.Bucketing)
	f.eventFactory = events.NewFactory(f.bucketingManager)

	recorder, err := f.buildRecorder()
	if err != nil {
		return err
	}
	f.recorder = recorder

	switch {
	case f.kafkaProducer != nil:
		f.mailSender = mailer.NewKafkaSender(f.kafkaProducer, f.config.Mail, f.logger.Named("mailer"))
	case f.config.IsDevelopment():
		f.logger.Warn("Kafka disabled, OTP mails will only be logged")
		f.mailSender = mailer.NewLogSender(f.logger.Named("mailer"))
	default:
		return ErrNoMailTransport
	}

	f.guard = otp.NewGuard(f.redisClient, f.mailSender, f.config.OTP, f.logger.Named("otp"))
	f.otpCache = redisrepo.NewOTPCache(f.redisClient)
	return nil
}

func (f *Factory) buildRecorder() (events.Recorder, error) {
	var sinks []events.Recorder

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Table-backed sinks are only used once their table exists.
	type tableSink interface {
		events.Recorder
		EnsureTable(ctx context.Context) error
	}
	var tables []tableSink
	if f.clickhouseClient != nil {
		tables = append(tables, events.NewClickHouseRecorder(f.clickhouseClient, f.config.Clickhouse.Table))
	}
	if f.scyllaClient != nil {
		tables = append(tables, events.NewScyllaRecorder(f.scyllaClient, f.config.Scylla.Table, f.config.Scylla.RetentionDays))
	}
	for _, rec := range tables {
		if err := rec.EnsureTable(ctx); err != nil {
			if f.config.IsProduction() {
				return nil, err
			}
			f.logger.Warn("Security event table unavailable", util.ErrorField(err))
			continue
		}
		sinks = append(sinks, rec)
	}

	if f.esClient != nil {
		sinks = append(sinks, events.NewElasticsearchRecorder(f.esClient, f.config.Elasticsearch.Index))
	}

	if len(sinks) == 0 {
		return events.NopRecorder{}, nil
	}
	return events.NewMultiRecorder(sinks...), nil
}

func (f *Factory) ServiceFactory() *service.ServiceFactory {
	if f.serviceFactory == nil {
		f.serviceFactory = service.NewServiceFactory(
			f.guard,
			f.otpCache,
			f.recorder,
			f.eventFactory,
			f.logger,
		)
		if f.clickhouseClient != nil {
			f.serviceFactory.WithHistory(events.NewClickHouseHistory(f.clickhouseClient, f.config.Clickhouse.Table))
		}
	}
	return f.serviceFactory
}

// HealthCheck reports a failure per backend. Only Redis is required for
// OTPs to work; see Ready.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if err := f.Ready(ctx); err != nil {
		healthErrors["redis"] = err
	}
	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}
	if f.esClient != nil {
		if err := f.esClient.HealthCheck(ctx); err != nil {
			healthErrors["elasticsearch"] = err
		}
	}
	if f.clickhouseClient != nil {
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	}
	if f.scyllaClient != nil {
		if err := f.scyllaClient.HealthCheck(ctx); err != nil {
			healthErrors["scylla"] = err
		}
	}
	return healthErrors
}

// Ready reports whether OTPs can be issued and verified.
func (f *Factory) Ready(ctx context.Context) error {
	if f.redisClient == nil {
		return errors.New("redis client not initialized")
	}
	return f.redisClient.HealthCheck(ctx)
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		f.logger.Info("Shutting down factory...")

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				f.logger.Error("Failed to close ClickHouse client", util.ErrorField(err))
			}
		}
		if f.scyllaClient != nil {
			f.scyllaClient.Close()
		}
		if f.esClient != nil {
			f.esClient.Close()
		}
		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				f.logger.Error("Failed to close Kafka producer", util.ErrorField(err))
			}
		}
		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				f.logger.Error("Failed to close Redis client", util.ErrorField(err))
			}
		}

		_ = f.logger.Sync()
		f.logger.Info("Factory shutdown completed")
	})
	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) Logger() *zap.Logger {
	return f.logger
}

func (f *Factory) TLSManager() *tls.TLSManager {
	return f.tlsManager
}

func (f *Factory) Guard() *otp.Guard {
	return f.guard
}

func (f *Factory) MailSender() otp.MailSender {
	return f.mailSender
}

func (f *Factory) BucketingManager() *bucketing.BucketingManager {
	return f.bucketingManager
}
