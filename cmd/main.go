package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jittakal/logaggregator/internal/config"
	"github.com/jittakal/logaggregator/internal/connpool"
	"github.com/jittakal/logaggregator/internal/frontend"
	"github.com/jittakal/logaggregator/internal/observability"
	"github.com/jittakal/logaggregator/internal/router"
	"github.com/jittakal/logaggregator/internal/server"
	"github.com/jittakal/logaggregator/internal/storage"
	pkgstore "github.com/jittakal/logaggregator/internal/store"
	"github.com/jittakal/logaggregator/internal/validator"
	"github.com/jittakal/logaggregator/pkg/consumer"
	"github.com/jittakal/logaggregator/pkg/store"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	var cfgPath string
	if *configPath != "" {
		cfgPath = *configPath
	} else if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		cfgPath = envPath
	} else {
		cfgPath = "config/application.yaml"
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level: cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
		Output: cfg.Observability.Logging.Output,
	})
	logger.Info("starting log aggregation store",
		"version", cfg.Application.Version,
		"environment", cfg.Application.Environment,
	)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	var cleanupFuncs []func() error
	addCleanup := func(name string, fn func() error) {
		cleanupFuncs = append(cleanupFuncs, fn)
		logger.Debug("registered cleanup", "component", name)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	remote, remoteCleanup, err := buildRemoteBackends(ctx, logger)
	if err != nil {
		return fmt.Errorf("failed to build remote storage backends: %w", err)
	}
	for name, fn := range remoteCleanup {
		addCleanup(name, fn)
	}

	pool := connpool.NewPool(cfg.Processing.ConnPoolMaxIdle)
	addCleanup("connpool", func() error { pool.CloseAll(); return nil })
	resolver := connpool.NewStaticResolver()

	deps := pkgstore.Deps{
		Logger: logger,
		Now: time.Now,
		Pool: pool,
		Resolver: resolver,
		Remote: remote,
		LocalRoot: storage.NewLocalFilesystem(),
	}

	model, err := pkgstore.Build(cfg.Store, deps)
	if err != nil {
		return fmt.Errorf("failed to build store composition tree: %w", err)
	}

	consumerConfig := frontend.ConsumerConfig{
		BootstrapServers: cfg.Kafka.BootstrapServers,
		GroupID: cfg.Kafka.Consumer.GroupID,
		SecurityProtocol: cfg.Kafka.SecurityProtocol,
		SASLMechanism: cfg.Kafka.SASLMechanism,
		SASLUsername: cfg.Kafka.SASLUsername,
		SASLPassword: cfg.Kafka.SASLPassword,
		AutoOffsetReset: cfg.Kafka.Consumer.AutoOffsetReset,
		EnableAutoCommit: cfg.Kafka.Consumer.EnableAutoCommit,
		MaxPollIntervalMS: cfg.Kafka.Consumer.MaxPollIntervalMS,
		SessionTimeoutMS: cfg.Kafka.Consumer.SessionTimeoutMS,
		HeartbeatIntervalMS: cfg.Kafka.Consumer.HeartbeatIntervalMS,
	}
	kafkaConsumer, err := frontend.NewSaramaConsumer(consumerConfig, logger, metrics)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}
	addCleanup("kafka-consumer", kafkaConsumer.Close)

	dlqConfig := frontend.DLQConfig{
		Enabled: cfg.Kafka.DLQ.Enabled,
		TopicSuffix: cfg.Kafka.DLQ.TopicSuffix,
		MaxRetries: cfg.Kafka.DLQ.MaxRetries,
	}
	dlqPublisher, err := frontend.NewDLQPublisher(cfg.Kafka.BootstrapServers, consumerConfig, dlqConfig, logger, cfg.Application.Name)
	if err != nil {
		return fmt.Errorf("failed to create DLQ publisher: %w", err)
	}
	addCleanup("dlq-publisher", dlqPublisher.Close)

	routerCfg := router.DefaultConfig()
	if cfg.Processing.PeriodicCheckMS > 0 {
		routerCfg.PeriodicCheckInterval = time.Duration(cfg.Processing.PeriodicCheckMS) * time.Millisecond
	}
	categoryRouter := router.New(model, routerCfg, logger, &routerDLQAdapter{
		publisher: dlqPublisher,
		logger: logger,
		metrics: metrics,
	})
	addCleanup("category-router", categoryRouter.Close)

	entryValidator := validator.New()

	healthChecker := &pipelineHealth{router: categoryRouter}

	httpServer := server.NewServer(
		cfg.Observability.Health.Port,
		cfg.Observability.Metrics.Port,
		healthChecker,
		registry,
		logger,
	)
	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	addCleanup("http-server", func() error {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	logger.Info("application started successfully")

	if err := kafkaConsumer.Subscribe(ctx, cfg.Kafka.Consumer.Topics); err != nil {
		return fmt.Errorf("failed to subscribe to topics: %w", err)
	}

	entryChan, errorChan, err := kafkaConsumer.Consume(ctx)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	consumeErrChan := make(chan error, 1)
	go func() {
		consumeErrChan <- processEntries(ctx, entryChan, errorChan, entryValidator, categoryRouter, dlqPublisher, logger, metrics)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("received termination signal")
	case err := <-consumeErrChan:
		if err != nil {
			logger.Error("consume error", "error", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	cancel()

	if err := categoryRouter.Flush(); err != nil {
		logger.Error("error flushing category router", "error", err)
	}

	for i := len(cleanupFuncs) - 1; i >= 0; i-- {
		if err := cleanupFuncs[i](); err != nil {
			logger.Error("cleanup error", "error", err)
		}
	}

	logger.Info("application stopped successfully")
	return nil
}

// processEntries is the consume loop: validate each entry, submit it to
// the CategoryRouter, and route anything invalid to the DLQ.
func processEntries(
	ctx context.Context,
	entryChan <-chan *consumer.ConsumedEntry,
	errorChan <-chan error,
	entryValidator *validator.EntryValidator,
	categoryRouter *router.CategoryRouter,
	dlq *frontend.DLQPublisher,
	logger *slog.Logger,
	metrics *observability.Metrics,
) error {
	for {
		select {
		case <-ctx.Done():
			logger.Info("context cancelled, stopping processing")
			return nil
		case err := <-errorChan:
			if err != nil {
				logger.Error("consumer error", "error", err)
			}
		case consumed, ok := <-entryChan:
			if !ok {
				logger.Info("entry channel closed")
				return nil
			}

			if err := entryValidator.Validate(consumed.Entry); err != nil {
				logger.Warn("invalid log entry",
					"topic", consumed.Metadata.Topic,
					"partition", consumed.Metadata.Partition,
					"offset", consumed.Metadata.Offset,
					"error", err,
				)
				if dlq != nil {
					_ = dlq.Publish(ctx, consumed.Entry, consumed.Metadata, "validation_failed")
					metrics.IncDLQPublished("validation_failed")
				}
				if consumed.CommitFunc != nil {
					_ = consumed.CommitFunc()
				}
				continue
			}

			if err := categoryRouter.Submit(ctx, consumed.Entry); err != nil {
				logger.Error("failed to submit entry to category router",
					"category", consumed.Entry.Category, "error", err)
				if dlq != nil {
					_ = dlq.Publish(ctx, consumed.Entry, consumed.Metadata, "router_submit_failed")
					metrics.IncDLQPublished("router_submit_failed")
				}
			} else {
				metrics.IncEntriesRouted(consumed.Entry.Category)
			}

			if consumed.CommitFunc != nil {
				if err := consumed.CommitFunc(); err != nil {
					logger.Error("failed to commit offset",
						"topic", consumed.Metadata.Topic,
						"partition", consumed.Metadata.Partition,
						"offset", consumed.Metadata.Offset,
						"error", err,
					)
				}
			}
		}
	}
}

// buildRemoteBackends constructs the remote storage.Filesystem backends
// a StoreNode may select via fs_type=hdfs/remote_backend. Credentials
// and bucket/container names are sourced from the environment, since
// the recursive StoreNode tree carries only non-secret routing options.
// Each backend is constructed only if its bucket/container env var is
// present, so a deployment using only local disk pays nothing.
func buildRemoteBackends(ctx context.Context, logger *slog.Logger) (pkgstore.RemoteBackends, map[string]func() error, error) {
	var backends pkgstore.RemoteBackends
	cleanup := make(map[string]func() error)

	if bucket := os.Getenv("S3_BUCKET"); bucket != "" {
		sseEnabled, _ := strconv.ParseBool(os.Getenv("S3_SSE_ENABLED"))
		s3Config := storage.S3Config{
			Bucket: bucket,
			Region: os.Getenv("AWS_REGION"),
			Endpoint: os.Getenv("S3_ENDPOINT"),
			UsePathStyle: os.Getenv("S3_USE_PATH_STYLE") == "true",
			SSEEnabled: sseEnabled,
			SSEKMSKeyID: os.Getenv("S3_SSE_KMS_KEY_ID"),
		}
		fs, err := storage.NewS3Filesystem(ctx, s3Config, logger)
		if err != nil {
			return backends, nil, fmt.Errorf("s3 filesystem: %w", err)
		}
		backends.S3 = fs
	}

	if container := os.Getenv("AZURE_STORAGE_CONTAINER"); container != "" {
		azureConfig := storage.AzureConfig{
			AccountName: os.Getenv("AZURE_STORAGE_ACCOUNT"),
			AccountKey: os.Getenv("AZURE_STORAGE_ACCOUNT_KEY"),
			ContainerName: container,
			Endpoint: os.Getenv("AZURE_STORAGE_ENDPOINT"),
		}
		fs, err := storage.NewAzureFilesystem(azureConfig, logger)
		if err != nil {
			return backends, nil, fmt.Errorf("azure filesystem: %w", err)
		}
		backends.Azure = fs
	}

	if bucket := os.Getenv("GCS_BUCKET"); bucket != "" {
		useDefault, _ := strconv.ParseBool(os.Getenv("GCS_USE_DEFAULT_CREDENTIAL"))
		gcsConfig := storage.GCSConfig{
			Bucket: bucket,
			ProjectID: os.Getenv("GCS_PROJECT_ID"),
			CredentialsFile: os.Getenv("GCS_CREDENTIALS_FILE"),
			CredentialsJSON: os.Getenv("GCS_CREDENTIALS_JSON"),
			Endpoint: os.Getenv("GCS_ENDPOINT"),
			UseDefaultCredential: useDefault,
		}
		fs, err := storage.NewGCSFilesystem(ctx, gcsConfig, logger)
		if err != nil {
			return backends, nil, fmt.Errorf("gcs filesystem: %w", err)
		}
		backends.GCS = fs
		cleanup["gcs-filesystem"] = fs.Close
	}

	return backends, cleanup, nil
}

// routerDLQAdapter bridges router.DLQPublisher's category-level failure
// callback onto frontend.DLQPublisher's topic-metadata-carrying Publish,
// since the router itself has no Kafka source metadata to report —
// only the category the failed entry belongs to.
type routerDLQAdapter struct {
	publisher *frontend.DLQPublisher
	logger *slog.Logger
	metrics *observability.Metrics
}

func (a *routerDLQAdapter) PublishRouterFailure(ctx context.Context, entry store.LogEntry, reason string) {
	err := a.publisher.Publish(ctx, entry, consumer.SourceMetadata{Topic: entry.Category}, reason)
	if err != nil {
		a.logger.Error("failed to publish router failure to dlq",
			"category", entry.Category, "reason", reason, "error", err)
		return
	}
	a.metrics.IncDLQPublished(reason)
}

// pipelineHealth implements server.HealthChecker over the CategoryRouter's
// per-category store status.
type pipelineHealth struct {
	router *router.CategoryRouter
}

func (h *pipelineHealth) Liveness() bool { return true }

func (h *pipelineHealth) Readiness(ctx context.Context) bool {
	for _, status := range h.router.Status() {
		if status != "ok" {
			return false
		}
	}
	return true
}

func (h *pipelineHealth) IsHealthy() bool {
	return h.Readiness(context.Background())
}

func (h *pipelineHealth) GetStatus() map[string]string {
	return h.router.Status()
}
