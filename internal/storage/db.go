package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"media_gateway/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// DB wraps the database connection and provides health checks
type DB struct {
	conn *sqlx.DB

	// Cache for model configs, read on every generate/query
	modelConfigCache *expirable.LRU[string, *models.ModelConfig]
}

// DBConfig holds database configuration
type DBConfig struct {
	URL string

	// Pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// Cache settings
	ModelConfigCacheSize int
	ModelConfigCacheTTL  time.Duration
}

// DefaultDBConfig returns default database configuration
func DefaultDBConfig() DBConfig {
	return DBConfig{
		URL: "postgres://postgres@localhost:5432/media_gateway?sslmode=disable",

		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,

		ModelConfigCacheSize: 256,
		ModelConfigCacheTTL:  1 * time.Minute,
	}
}

// NewDB creates a new database connection with caching
func NewDB(cfg DBConfig) (*DB, error) {
	conn, err := sqlx.Connect("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	conn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return newDB(conn, cfg), nil
}

// NewDBFromConn wraps an existing *sql.DB, e.g. a sqlmock connection in tests.
func NewDBFromConn(conn *sql.DB, cfg DBConfig) *DB {
	return newDB(sqlx.NewDb(conn, "postgres"), cfg)
}

func newDB(conn *sqlx.DB, cfg DBConfig) *DB {
	size := cfg.ModelConfigCacheSize
	if size <= 0 {
		size = 256
	}
	return &DB{
		conn:             conn,
		modelConfigCache: expirable.NewLRU[string, *models.ModelConfig](size, nil, cfg.ModelConfigCacheTTL),
	}
}

// Close closes the database connection and clears caches
func (db *DB) Close() error {
	db.modelConfigCache.Purge()
	return db.conn.Close()
}

// Ping checks if the database is reachable
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Health returns the health status of the database
func (db *DB) Health(ctx context.Context) error {
	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var result int
	if err := db.conn.GetContext(ctx, &result, "SELECT 1"); err != nil {
		return fmt.Errorf("health check query failed: %w", err)
	}

	return nil
}

// EnsureSchema creates tables and indexes that do not exist yet.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// DBStats reports pool and cache statistics
type DBStats struct {
	MaxOpenConnections int
	OpenConnections    int
	InUse              int
	Idle               int
	WaitCount          int64
	WaitDuration       time.Duration

	ModelConfigCacheLen int
}

// GetStats returns current database and cache statistics
func (db *DB) GetStats() DBStats {
	stats := db.conn.Stats()

	return DBStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration,

		ModelConfigCacheLen: db.modelConfigCache.Len(),
	}
}

// BeginTx starts a new transaction
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return db.conn.BeginTxx(ctx, opts)
}

// Conn returns the underlying sqlx connection
// Use this for custom queries not covered by repositories
func (db *DB) Conn() *sqlx.DB {
	return db.conn
}

// Repository factory methods

// NewModelConfigRepository creates a new model config repository
func (db *DB) NewModelConfigRepository() *ModelConfigRepository {
	return NewModelConfigRepository(db)
}

// NewAITaskRepository creates a new AI task repository
func (db *DB) NewAITaskRepository() *AITaskRepository {
	return NewAITaskRepository(db)
}

// NewNotificationRepository creates a new notification repository
func (db *DB) NewNotificationRepository() *NotificationRepository {
	return NewNotificationRepository(db)
}

// NewCreditRepository creates a new credit ledger repository
func (db *DB) NewCreditRepository() *CreditRepository {
	return NewCreditRepository(db)
}

// NewSubscriptionRepository creates a new subscription repository
func (db *DB) NewSubscriptionRepository() *SubscriptionRepository {
	return NewSubscriptionRepository(db)
}

// NewProviderRepository creates a new provider credential repository
func (db *DB) NewProviderRepository(enc *Encryption) *ProviderRepository {
	return NewProviderRepository(db, enc)
}
