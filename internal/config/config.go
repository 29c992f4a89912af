package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds configuration for the gateway.
type Config struct {
	HTTPPort   string
	AppURL     string // public base URL, used to build provider callback URLs
	JWTSecret  []byte
	CronSecret string
	LogLevel   string

	// EncryptionKey is a base64 AES key for stored provider credentials.
	// EncryptionSecret is a passphrase alternative expanded with HKDF.
	EncryptionKey    string
	EncryptionSecret string

	Database  DatabaseConfig
	Cache     CacheConfig
	Redis     RedisConfig
	Storage   StorageConfig
	Providers ProvidersConfig
	Tasks     TasksConfig
	Sweep     SweepConfig
	Queue     QueueConfig

	// GenerateRateLimit caps generate and retry calls per user per minute; 0 disables it
	GenerateRateLimit int

	CallbackLog CallbackLogConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// CacheConfig holds cache settings
type CacheConfig struct {
	ModelConfigCacheSize int
	ModelConfigCacheTTL  time.Duration
}

// RedisConfig holds Redis connection settings. An empty Address disables Redis.
type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// StorageConfig selects and configures the durable object store
type StorageConfig struct {
	Backend         string // s3, minio or memory
	Bucket          string
	Region          string
	Endpoint        string // custom endpoint, e.g. Cloudflare R2 or MinIO host
	AccessKey       string
	SecretKey       string
	UseSSL          bool
	UsePathStyle    bool
	PublicBaseURL   string // public domain serving the bucket, if any
	DownloadTimeout time.Duration
	MaxObjectBytes  int64
}

// ProvidersConfig holds credentials and endpoints for each AI vendor
type ProvidersConfig struct {
	RequestTimeout time.Duration
	Vendors        map[string]VendorConfig
}

// VendorConfig holds settings for a single vendor
type VendorConfig struct {
	APIKey        string
	BaseURL       string
	CustomStorage bool
}

// TasksConfig holds task lifecycle settings
type TasksConfig struct {
	AssetTTL             time.Duration // how long SUCCESS media is kept
	FreeConcurrency      int
	PaidConcurrency      int
	MigrationConcurrency int
}

// SweepConfig holds expiry sweep settings. Interval 0 disables the in-process ticker.
type SweepConfig struct {
	Interval  time.Duration
	BatchSize int
	LockTTL   time.Duration
}

// QueueConfig holds settings for the refund and asset cleanup workers
type QueueConfig struct {
	BatchSize    int
	BatchTimeout time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// CallbackLogConfig controls the on-disk audit log of vendor webhooks.
// An empty FileTemplate disables it.
type CallbackLogConfig struct {
	FileTemplate string // e.g. /var/log/media-gateway/callbacks-%s.jsonl
	MaxSize      int64
	MaxFiles     int
}

// vendorEnvPrefixes maps provider names to their environment variable prefix.
var vendorEnvPrefixes = map[string]string{
	"evolink":   "EVOLINK",
	"fal":       "FAL",
	"replicate": "REPLICATE",
	"kie":       "KIE",
	"gemini":    "GEMINI",
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getEnvInt64(key string, defaultValue int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	intVal, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return defaultValue
	}
	return intVal
}

func getEnvBool(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

func loadVendors() map[string]VendorConfig {
	vendors := make(map[string]VendorConfig, len(vendorEnvPrefixes))
	for name, prefix := range vendorEnvPrefixes {
		apiKey := getEnvString(prefix+"_API_KEY", "")
		if name == "replicate" && apiKey == "" {
			apiKey = getEnvString("REPLICATE_API_TOKEN", "")
		}
		vendors[name] = VendorConfig{
			APIKey:        apiKey,
			BaseURL:       getEnvString(prefix+"_BASE_URL", ""),
			CustomStorage: getEnvBool(prefix+"_CUSTOM_STORAGE", false),
		}
	}
	return vendors
}

// Load reads configuration from a .env file (if present) and environment variables.
func Load() (*Config, error) {
	// Missing .env is the normal case in containers.
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	appURL := strings.TrimRight(getEnvString("APP_URL", "http://localhost:8080"), "/")

	cfg := &Config{
		HTTPPort:         getEnvString("HTTP_PORT", "8080"),
		AppURL:           appURL,
		JWTSecret:        []byte(getEnvString("JWT_SECRET", "supersecretkey")),
		CronSecret:       getEnvString("CRON_SECRET", ""),
		LogLevel:         getEnvString("LOG_LEVEL", ""),
		EncryptionKey:    getEnvString("ENCRYPTION_KEY", ""),
		EncryptionSecret: getEnvString("ENCRYPTION_SECRET", ""),
		Database: DatabaseConfig{
			URL:             dbURL,
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute),
		},
		Cache: CacheConfig{
			ModelConfigCacheSize: getEnvInt("CACHE_MODEL_CONFIG_SIZE", 256),
			ModelConfigCacheTTL:  getEnvDuration("CACHE_MODEL_CONFIG_TTL", 1*time.Minute),
		},
		Redis: RedisConfig{
			Address:      getEnvString("REDIS_ADDRESS", ""),
			Password:     getEnvString("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Storage: StorageConfig{
			Backend:         strings.ToLower(getEnvString("STORAGE_BACKEND", "s3")),
			Bucket:          getEnvString("STORAGE_BUCKET", ""),
			Region:          getEnvString("STORAGE_REGION", "auto"),
			Endpoint:        getEnvString("STORAGE_ENDPOINT", ""),
			AccessKey:       getEnvString("STORAGE_ACCESS_KEY", ""),
			SecretKey:       getEnvString("STORAGE_SECRET_KEY", ""),
			UseSSL:          getEnvBool("STORAGE_USE_SSL", true),
			UsePathStyle:    getEnvBool("STORAGE_USE_PATH_STYLE", false),
			PublicBaseURL:   strings.TrimRight(getEnvString("STORAGE_PUBLIC_BASE_URL", ""), "/"),
			DownloadTimeout: getEnvDuration("STORAGE_DOWNLOAD_TIMEOUT", 5*time.Minute),
			MaxObjectBytes:  getEnvInt64("STORAGE_MAX_OBJECT_BYTES", 2<<30), // default 2 GiB
		},
		Providers: ProvidersConfig{
			RequestTimeout: getEnvDuration("PROVIDER_REQUEST_TIMEOUT", 60*time.Second),
			Vendors:        loadVendors(),
		},
		Tasks: TasksConfig{
			AssetTTL:             getEnvDuration("TASK_ASSET_TTL", 30*24*time.Hour),
			FreeConcurrency:      getEnvInt("TASK_FREE_CONCURRENCY", 1),
			PaidConcurrency:      getEnvInt("TASK_PAID_CONCURRENCY", 3),
			MigrationConcurrency: getEnvInt("TASK_MIGRATION_CONCURRENCY", 4),
		},
		Sweep: SweepConfig{
			Interval:  getEnvDuration("SWEEP_INTERVAL", 0),
			BatchSize: getEnvInt("SWEEP_BATCH_SIZE", 100),
			LockTTL:   getEnvDuration("SWEEP_LOCK_TTL", 10*time.Minute),
		},
		Queue: QueueConfig{
			BatchSize:    getEnvInt("QUEUE_BATCH_SIZE", 50),
			BatchTimeout: getEnvDuration("QUEUE_BATCH_TIMEOUT", 5*time.Second),
			MaxRetries:   getEnvInt("QUEUE_MAX_RETRIES", 3),
			RetryBackoff: getEnvDuration("QUEUE_RETRY_BACKOFF", 1*time.Second),
		},
		GenerateRateLimit: getEnvInt("GENERATE_RATE_LIMIT", 10),
		CallbackLog: CallbackLogConfig{
			FileTemplate: getEnvString("CALLBACK_LOG_FILE", ""),
			MaxSize:      getEnvInt64("CALLBACK_LOG_MAX_SIZE", 50<<20),
			MaxFiles:     getEnvInt("CALLBACK_LOG_MAX_FILES", 10),
		},
	}

	return cfg, nil
}

// CallbackURL returns the webhook URL a provider should notify for its tasks.
func (c *Config) CallbackURL(provider string) string {
	return fmt.Sprintf("%s/api/ai/notify/%s", c.AppURL, provider)
}

// RedisEnabled reports whether a Redis address is configured.
func (c *Config) RedisEnabled() bool {
	return c.Redis.Address != ""
}
