package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"media_gateway/internal/billing"
	"media_gateway/internal/config"
	"media_gateway/internal/logging"
	"media_gateway/internal/modelconfig"
	"media_gateway/internal/notifications"
	"media_gateway/internal/objectstore"
	"media_gateway/internal/providers"
	"media_gateway/internal/queue"
	"media_gateway/internal/ratelimit"
	"media_gateway/internal/storage"
	"media_gateway/internal/sweep"
	"media_gateway/internal/tasks"
	"media_gateway/internal/utils"
)

// Server owns the HTTP handler and everything running behind it
type Server struct {
	Handler http.Handler
	Deps    *Dependencies

	cfg            *config.Config
	db             *storage.DB
	redis          *redis.Client
	registry       *providers.Registry
	refundWorker   *billing.RefundWorker
	cleanupWorker  *tasks.CleanupWorker
	sweeper        *sweep.Sweeper
	callbackLogger *logging.CallbackLogger
	cancel         context.CancelFunc
	logger         *utils.Logger
}

// NewServer connects to every backing service and wires the application
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	s := &Server{cfg: cfg, logger: utils.NewLogger("server")}
	ok := false
	defer func() {
		if !ok {
			s.closeResources()
		}
	}()

	db, err := OpenDB(cfg)
	if err != nil {
		return nil, err
	}
	s.db = db

	if cfg.RedisEnabled() {
		s.redis, err = OpenRedis(cfg)
		if err != nil {
			return nil, err
		}
	} else {
		s.logger.Warn("Redis not configured: queues are in-memory and rate limiting is off")
	}

	objects, err := OpenObjectStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// Provider credentials: environment over encrypted database rows
	stored, err := loadStoredCredentials(ctx, cfg, db)
	if err != nil {
		return nil, err
	}
	saver := func(ctx context.Context, url, key, contentType string) (string, error) {
		res, err := objects.DownloadAndUpload(ctx, objectstore.UploadRequest{URL: url, Key: key, ContentType: contentType})
		if err != nil {
			return "", err
		}
		return res.URL, nil
	}
	s.registry = providers.NewRegistry(providers.MergeConfigs(cfg.Providers.Vendors, stored, cfg.Providers.RequestTimeout, saver))

	taskRepo := db.NewAITaskRepository()
	models := modelconfig.NewService(db.NewModelConfigRepository(), s.registry)
	notifier := notifications.NewService(db.NewNotificationRepository())
	ledger := billing.NewLedgerService(db.NewCreditRepository())

	s.refundWorker = billing.NewRefundWorker(
		newQueue[billing.RefundRequest](s.redis, "refunds"),
		newDeadLetterQueue[billing.RefundRequest](s.redis, "refunds"),
		ledger, queueConfig(cfg, "refunds"))
	s.cleanupWorker = tasks.NewCleanupWorker(
		newQueue[tasks.CleanupRequest](s.redis, "asset-cleanup"),
		newDeadLetterQueue[tasks.CleanupRequest](s.redis, "asset-cleanup"),
		objects, queueConfig(cfg, "asset-cleanup"))

	orchestrator := tasks.NewOrchestrator(tasks.Dependencies{
		Store:         taskRepo,
		Models:        models,
		Providers:     s.registry,
		Billing:       ledger,
		Refunds:       s.refundWorker,
		Notifier:      notifier,
		Uploader:      objects,
		Cleanup:       s.cleanupWorker,
		Subscriptions: db.NewSubscriptionRepository(),
	}, tasks.Options{
		CallbackURL:          cfg.CallbackURL,
		AssetTTL:             cfg.Tasks.AssetTTL,
		FreeConcurrency:      cfg.Tasks.FreeConcurrency,
		PaidConcurrency:      cfg.Tasks.PaidConcurrency,
		MigrationConcurrency: cfg.Tasks.MigrationConcurrency,
	})

	s.sweeper = sweep.New(taskRepo, objects, s.redis, sweep.Options{
		BatchSize: cfg.Sweep.BatchSize,
		LockTTL:   cfg.Sweep.LockTTL,
	})

	var limiter ratelimit.Limiter = ratelimit.NewNoopLimiter()
	if s.redis != nil {
		limiter = ratelimit.NewRateLimiter(s.redis)
	}

	var callbackLog logging.CallbackRecorder = logging.NoopCallbackRecorder{}
	if cfg.CallbackLog.FileTemplate != "" {
		s.callbackLogger, err = logging.NewCallbackLogger(cfg.CallbackLog.FileTemplate,
			cfg.CallbackLog.MaxSize, cfg.CallbackLog.MaxFiles, 1000, 5*time.Second)
		if err != nil {
			return nil, fmt.Errorf("failed to open callback log: %w", err)
		}
		callbackLog = s.callbackLogger
	}

	health := map[string]HealthCheck{"database": db.Health}
	if s.redis != nil {
		health["redis"] = func(ctx context.Context) error { return s.redis.Ping(ctx).Err() }
	}

	s.Deps = &Dependencies{
		Tasks:         orchestrator,
		Models:        models,
		Notifications: notifier,
		Sweeper:       s.sweeper,
		RateLimit:     limiter,
		CallbackLog:   callbackLog,
		Health:        health,
	}
	s.Handler = NewRouter(cfg, s.Deps)

	s.logger.Info("Server wired", "providers", s.registry.Names(), "storage", cfg.Storage.Backend)
	ok = true
	return s, nil
}

// Start launches the background workers and, when configured, the sweep ticker
func (s *Server) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.refundWorker.Start(ctx)
	s.cleanupWorker.Start(ctx)
	if s.cfg.Sweep.Interval > 0 {
		go s.sweeper.Run(ctx, s.cfg.Sweep.Interval)
	}
}

// Shutdown stops workers, flushes logs and closes connections
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	var errs []error
	if err := s.refundWorker.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("refund worker: %w", err))
	}
	if err := s.cleanupWorker.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("cleanup worker: %w", err))
	}
	if err := s.closeResources(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Server) closeResources() error {
	var errs []error
	if s.callbackLogger != nil {
		s.callbackLogger.Shutdown()
	}
	if s.registry != nil {
		if err := s.registry.Close(); err != nil {
			errs = append(errs, fmt.Errorf("providers: %w", err))
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	return errors.Join(errs...)
}

// OpenDB connects to Postgres with the configured pool and cache settings
func OpenDB(cfg *config.Config) (*storage.DB, error) {
	db, err := storage.NewDB(storage.DBConfig{
		URL:                  cfg.Database.URL,
		MaxOpenConns:         cfg.Database.MaxOpenConns,
		MaxIdleConns:         cfg.Database.MaxIdleConns,
		ConnMaxLifetime:      cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime:      cfg.Database.ConnMaxIdleTime,
		ModelConfigCacheSize: cfg.Cache.ModelConfigCacheSize,
		ModelConfigCacheTTL:  cfg.Cache.ModelConfigCacheTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return db, nil
}

// OpenRedis connects to the configured Redis
func OpenRedis(cfg *config.Config) (*redis.Client, error) {
	client, err := storage.NewRedisClient(storage.RedisConfig{
		Address:      cfg.Redis.Address,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Redis: %w", err)
	}
	return client, nil
}

// OpenObjectStore builds the durable media store and its uploader
func OpenObjectStore(ctx context.Context, cfg *config.Config) (*objectstore.Service, error) {
	store, err := objectstore.New(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize object storage: %w", err)
	}
	return objectstore.NewService(store, cfg.Storage.DownloadTimeout, cfg.Storage.MaxObjectBytes), nil
}

// OpenEncryption returns the credential cipher, or nil when no key is configured
func OpenEncryption(cfg *config.Config) (*storage.Encryption, error) {
	switch {
	case cfg.EncryptionKey != "":
		return storage.NewEncryptionFromBase64(cfg.EncryptionKey)
	case cfg.EncryptionSecret != "":
		return storage.NewEncryptionFromSecret(cfg.EncryptionSecret)
	default:
		return nil, nil
	}
}

func loadStoredCredentials(ctx context.Context, cfg *config.Config, db *storage.DB) (map[string]storage.VendorCredentials, error) {
	enc, err := OpenEncryption(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encryption: %w", err)
	}
	if enc == nil {
		return nil, nil
	}
	stored, err := db.NewProviderRepository(enc).LoadCredentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load provider credentials: %w", err)
	}
	return stored, nil
}

func queueConfig(cfg *config.Config, name string) *queue.Config {
	qc := queue.DefaultConfig(name)
	if cfg.Queue.BatchSize > 0 {
		qc.BatchSize = cfg.Queue.BatchSize
	}
	if cfg.Queue.BatchTimeout > 0 {
		qc.BatchTimeout = cfg.Queue.BatchTimeout
	}
	if cfg.Queue.MaxRetries > 0 {
		qc.MaxRetries = cfg.Queue.MaxRetries
	}
	if cfg.Queue.RetryBackoff > 0 {
		qc.RetryBackoff = cfg.Queue.RetryBackoff
	}
	return qc
}

// newQueue is Redis-backed when a client is available, in-memory otherwise
func newQueue[T any](client *redis.Client, name string) queue.Queue[T] {
	if client != nil {
		return queue.NewRedisQueue[T](client, name)
	}
	return queue.NewMemoryQueue[T](10000)
}

func newDeadLetterQueue[T any](client *redis.Client, name string) queue.DeadLetterQueue[T] {
	if client != nil {
		return queue.NewRedisDeadLetterQueue[T](client, name)
	}
	return queue.NewMemoryDeadLetterQueue[T]()
}
