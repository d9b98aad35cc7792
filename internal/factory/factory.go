package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pengajuan-service/internal/bucketing"
	"pengajuan-service/internal/captcha"
	"pengajuan-service/internal/client"
	"pengajuan-service/internal/config"
	"pengajuan-service/internal/encryption"
	"pengajuan-service/internal/events"
	"pengajuan-service/internal/hashing"
	"pengajuan-service/internal/models"
	"pengajuan-service/internal/notify"
	"pengajuan-service/internal/otp"
	"pengajuan-service/internal/ratelimit"
	"pengajuan-service/internal/repository/scylla"
	"pengajuan-service/internal/store"
	"pengajuan-service/internal/submission"
	"pengajuan-service/internal/util"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
)

// draftTTL bounds how long a staged submission survives between visits.
const draftTTL = 30 * time.Minute

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config *config.Config

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	kafkaConsumer    *client.KafkaConsumer
	esClient         *client.ESClient
	clickhouseClient *client.ClickhouseClient

	// Managers
	hasher            *hashing.Hasher
	encryptionManager *encryption.Manager
	bucketingManager  *bucketing.Manager

	// Gateway state
	backend    store.Store
	challenges *captcha.ChallengeStore
	limiter    *ratelimit.RateLimitStore
	detector   *ratelimit.SuspiciousActivityDetector
	otpGateway *otp.Gateway

	submissionRepository *scylla.SubmissionRepository
	submissionService    *submission.Service

	dispatcher *notify.Dispatcher
	queue      notify.Queue
	recorder   *events.Recorder
	eventSink  events.Sink

	rootCtx    context.Context
	rootCancel context.CancelFunc
	closeOnce  sync.Once
	closed     chan struct{}
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	rootCtx, rootCancel := context.WithCancel(context.Background())

	factory := &Factory{
		config:     cfg,
		rootCtx:    rootCtx,
		rootCancel: rootCancel,
		closed:     make(chan struct{}),
	}

	if err := factory.initializeClients(); err != nil {
		rootCancel()
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	factory.initializeManagers()
	factory.initializeGateways()
	factory.initializeSubmission()
	factory.initializeDispatch()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.String("store_driver", cfg.Store.Driver),
		util.Bool("kafka_enabled", cfg.Kafka.Enabled),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
	)

	return factory, nil
}

// initializeClients initializes all external service clients with health checks
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	// Redis is only required when it backs the gateway state.
	if f.config.Store.Driver == "redis" {
		if redisClient, err := client.NewRedisClient(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
		} else {
			f.redisClient = redisClient
			if err := f.redisClient.HealthCheck(ctx); err != nil {
				initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
			} else {
				util.Info("Redis client initialized and healthy")
			}
		}
	}

	// ScyllaDB
	if scyllaClient, err := scylla.NewScyllaClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
	} else {
		f.scyllaClient = scyllaClient
		if err := f.scyllaClient.HealthCheck(); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla health check: %w", err))
		} else {
			util.Info("ScyllaDB client initialized and healthy")
		}
	}

	// Kafka is optional; without it dispatch falls back to the in-process queue.
	if f.config.Kafka.Enabled {
		if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
			util.Warn("Kafka producer initialization failed - proceeding without Kafka", util.ErrorField(err))
		} else {
			f.kafkaProducer = producer
			util.Info("Kafka producer initialized")
		}
		if consumer, err := client.NewKafkaConsumer(f.config, util.Get()); err != nil {
			util.Warn("Kafka consumer initialization failed - proceeding without Kafka", util.ErrorField(err))
		} else {
			f.kafkaConsumer = consumer
			util.Info("Kafka consumer initialized")
		}
	}

	// Elasticsearch
	if f.config.Elasticsearch.Enabled {
		if esClient, err := client.NewESClient(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("elasticsearch: %w", err))
		} else {
			f.esClient = esClient
			if err := f.esClient.HealthCheck(ctx); err != nil {
				initErrors = append(initErrors, fmt.Errorf("elasticsearch health check: %w", err))
			} else {
				util.Info("Elasticsearch client initialized and healthy")
			}
		}
	}

	// ClickHouse
	if f.config.Clickhouse.Enabled {
		if chClient, err := client.NewClickhouseClient(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
		} else {
			f.clickhouseClient = chClient
			if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
				initErrors = append(initErrors, fmt.Errorf("clickhouse health check: %w", err))
			} else {
				util.Info("ClickHouse client initialized and healthy")
			}
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

// initializeManagers initializes hashing, encryption, and bucketing managers
func (f *Factory) initializeManagers() {
	f.hasher = hashing.NewHasher(f.config)

	var kmsClient *kms.Client
	if f.config.KMS.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(f.config.KMS.Region))
		if err != nil {
			util.Warn("AWS config load failed - field encryption falls back to local keys", util.ErrorField(err))
		} else {
			kmsClient = kms.NewFromConfig(awsCfg)
		}
	}

	f.encryptionManager = encryption.NewManager(f.config, kmsClient)
	f.bucketingManager = bucketing.NewManager(f.config)

	if f.config.IsProduction() {
		f.hasher.StartPepperRotation()
	}

	util.Info("Managers initialized successfully",
		util.Bool("hashing_initialized", f.hasher != nil),
		util.Bool("encryption_initialized", f.encryptionManager != nil),
		util.Bool("bucketing_initialized", f.bucketingManager != nil),
	)
}

// initializeGateways builds the ephemeral-state backend and the anti-abuse
// components on top of it, then starts their background sweeps.
func (f *Factory) initializeGateways() {
	if f.config.Store.Driver == "redis" && f.redisClient != nil {
		f.backend = store.NewRedisStore(f.redisClient)
	} else {
		f.backend = store.NewMemoryStore(f.config.Abuse.CaptchaTTL, f.config.Abuse.BucketSweepInterval)
	}

	f.challenges = captcha.NewChallengeStore(f.config, f.backend)
	f.limiter = ratelimit.NewRateLimitStore(f.config, f.backend)
	f.detector = ratelimit.NewSuspiciousActivityDetector(f.config, f.backend)

	f.challenges.StartSweep(f.rootCtx)
	f.limiter.StartSweep(f.rootCtx)

	f.otpGateway = otp.NewGateway(f.config, f.backend, f.hasher, notify.NewWhatsAppClient(f.config))
}

func (f *Factory) initializeSubmission() {
	if f.scyllaClient != nil {
		f.submissionRepository = scylla.NewSubmissionRepository(f.scyllaClient)
	}
	f.submissionService = submission.NewService(f.submissionRepository, f.encryptionManager, f.bucketingManager)
}

// initializeDispatch wires the notification channels behind a queue and
// starts the security-event recorder.
func (f *Factory) initializeDispatch() {
	var sink notify.AttemptSink
	if f.esClient != nil {
		sink = f.esClient
	}

	whatsappClient := notify.NewWhatsAppClient(f.config)
	f.dispatcher = notify.NewDispatcher(sink,
		notify.NewEmailChannel(f.config),
		notify.NewWhatsAppChannel(whatsappClient),
	)

	if f.kafkaProducer != nil && f.kafkaConsumer != nil {
		f.queue = notify.NewKafkaQueue(f.kafkaProducer, f.kafkaConsumer)
	} else {
		f.queue = notify.NewChannelQueue(0)
	}
	f.queue.Start(f.rootCtx, func(ctx context.Context, req models.DispatchRequest) {
		f.dispatcher.Dispatch(ctx, req)
	})

	if f.clickhouseClient != nil {
		f.recorder = events.NewRecorder(f.clickhouseClient, f.bucketingManager)
		f.recorder.Start(f.rootCtx)
		f.eventSink = f.recorder
	} else {
		f.eventSink = events.NopRecorder{}
	}
}

// StagerFactory returns per-session stagers over the shared backend.
func (f *Factory) StagerFactory() func(sessionID string) *submission.Stager {
	return func(sessionID string) *submission.Stager {
		drafts := submission.NewDraftStore(f.backend, sessionID, draftTTL)
		return submission.NewStager(drafts, f.otpGateway, f.submissionService)
	}
}

// ==============================
// Health Checks
// ==============================

func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.config.Store.Driver == "redis" {
		if f.redisClient != nil {
			if err := f.redisClient.HealthCheck(ctx); err != nil {
				healthErrors["redis"] = err
			}
		} else {
			healthErrors["redis"] = fmt.Errorf("redis client not initialized")
		}
	}

	if f.scyllaClient != nil {
		if err := f.scyllaClient.HealthCheck(); err != nil {
			healthErrors["scylla"] = err
		}
	} else {
		healthErrors["scylla"] = fmt.Errorf("scylla client not initialized")
	}

	if f.config.Elasticsearch.Enabled {
		if f.esClient != nil {
			if err := f.esClient.HealthCheck(ctx); err != nil {
				healthErrors["elasticsearch"] = err
			}
		} else {
			healthErrors["elasticsearch"] = fmt.Errorf("elasticsearch client not initialized")
		}
	}

	if f.config.Clickhouse.Enabled {
		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
				healthErrors["clickhouse"] = err
			}
		} else {
			healthErrors["clickhouse"] = fmt.Errorf("clickhouse client not initialized")
		}
	}

	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}

	if f.hasher == nil {
		healthErrors["hasher"] = fmt.Errorf("hasher not initialized")
	}
	if f.encryptionManager == nil {
		healthErrors["encryption"] = fmt.Errorf("encryption manager not initialized")
	}
	if f.backend == nil {
		healthErrors["store"] = fmt.Errorf("gateway store not initialized")
	}

	return healthErrors
}

func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	return len(healthErrors) == 0
}

// ==============================
// Shutdown
// ==============================

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		// Stop accepting dispatches and drain what is queued before the
		// transports go away.
		if f.queue != nil {
			if err := f.queue.Close(); err != nil {
				util.Error("Failed to close dispatch queue", util.ErrorField(err))
			} else {
				util.Info("Dispatch queue drained and closed")
			}
		}

		if f.recorder != nil {
			if err := f.recorder.Close(); err != nil {
				util.Error("Failed to close event recorder", util.ErrorField(err))
			} else {
				util.Info("Event recorder flushed and closed")
			}
		}

		f.rootCancel()

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			} else {
				util.Info("ClickHouse client closed")
			}
		}

		if f.esClient != nil {
			_ = f.esClient.Close()
			util.Info("Elasticsearch client closed")
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			} else {
				util.Info("Kafka producer closed")
			}
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
			util.Info("ScyllaDB client closed")
		}

		if f.backend != nil {
			if err := f.backend.Close(); err != nil {
				util.Error("Failed to close gateway store", util.ErrorField(err))
			}
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		if f.encryptionManager != nil {
			f.encryptionManager.ClearCache()
			util.Info("Encryption manager cache cleared")
		}

		util.Sync()
		util.Info("Factory shutdown completed")
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

// ==============================
// Getters
// ==============================

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) ChallengeStore() *captcha.ChallengeStore {
	return f.challenges
}

func (f *Factory) RateLimitStore() *ratelimit.RateLimitStore {
	return f.limiter
}

func (f *Factory) Detector() *ratelimit.SuspiciousActivityDetector {
	return f.detector
}

func (f *Factory) OtpGateway() *otp.Gateway {
	return f.otpGateway
}

func (f *Factory) SubmissionService() *submission.Service {
	return f.submissionService
}

func (f *Factory) DispatchQueue() notify.Queue {
	return f.queue
}

func (f *Factory) EventSink() events.Sink {
	return f.eventSink
}
