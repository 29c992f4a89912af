// Package sweep reclaims the storage of successful tasks whose assets expired.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"media_gateway/internal/models"
	"media_gateway/internal/utils"
)

const (
	lockKey          = "sweep:ai-tasks:lock"
	DefaultBatchSize = 100
	DefaultLockTTL   = 5 * time.Minute
)

// releaseScript deletes the lock only while it still holds our token
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// Store is the task persistence the sweep needs
type Store interface {
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.AITask, error)
	Expire(ctx context.Context, id string, now time.Time) (bool, error)
}

// AssetDeleter removes objects from durable storage
type AssetDeleter interface {
	Delete(ctx context.Context, keys ...string) error
}

// Result reports one sweep run
type Result struct {
	Cleaned int  `json:"cleaned"`
	Total   int  `json:"total"`
	Skipped bool `json:"skipped,omitempty"` // another replica held the lock
}

// Options tune a Sweeper
type Options struct {
	BatchSize int
	LockTTL   time.Duration
	Now       func() time.Time
}

// Sweeper expires tasks in batches. With a Redis client, runs are serialized
// across replicas by a SET NX PX lock.
type Sweeper struct {
	store   Store
	deleter AssetDeleter
	redis   *redis.Client
	opts    Options
	logger  *utils.Logger
}

// New creates a sweeper; redisClient may be nil
func New(store Store, deleter AssetDeleter, redisClient *redis.Client, opts Options) *Sweeper {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = DefaultLockTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Sweeper{
		store:   store,
		deleter: deleter,
		redis:   redisClient,
		opts:    opts,
		logger:  utils.NewLogger("sweep"),
	}
}

// RunOnce expires one batch. Tasks whose cleanup fails are left for the next run.
func (s *Sweeper) RunOnce(ctx context.Context) (*Result, error) {
	release, acquired, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	if !acquired {
		s.logger.Info("Sweep already running elsewhere, skipping")
		return &Result{Skipped: true}, nil
	}
	defer release()

	now := s.opts.Now()
	expired, err := s.store.ListExpired(ctx, now, s.opts.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired tasks: %w", err)
	}

	result := &Result{Total: len(expired)}
	for _, task := range expired {
		if err := s.expire(ctx, task, now); err != nil {
			s.logger.Error("Failed to expire task", "task_id", task.ID, "error", err)
			continue
		}
		result.Cleaned++
	}

	s.logger.Info("Sweep finished", "cleaned", result.Cleaned, "total", result.Total)
	return result, nil
}

func (s *Sweeper) expire(ctx context.Context, task *models.AITask, now time.Time) error {
	if keys := task.ResultAssets.Keys(); len(keys) > 0 {
		if err := s.deleter.Delete(ctx, keys...); err != nil {
			return fmt.Errorf("delete assets: %w", err)
		}
	}

	applied, err := s.store.Expire(ctx, task.ID, now)
	if err != nil {
		return err
	}
	if !applied {
		return errors.New("task changed during sweep")
	}
	return nil
}

// lock takes the sweep lock. Without Redis every run proceeds.
func (s *Sweeper) lock(ctx context.Context) (func(), bool, error) {
	if s.redis == nil {
		return func() {}, true, nil
	}

	token := uuid.NewString()
	ok, err := s.redis.SetNX(ctx, lockKey, token, s.opts.LockTTL).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to take sweep lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// The caller's context may be done by now
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, s.redis, []string{lockKey}, token).Err(); err != nil {
			s.logger.Warn("Failed to release sweep lock", "error", err)
		}
	}
	return release, true, nil
}

// Run sweeps every interval until ctx is done
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("Sweep ticker started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sweep ticker stopped")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("Sweep failed", "error", err)
			}
		}
	}
}
