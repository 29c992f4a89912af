package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"media_gateway/internal/config"
	"media_gateway/internal/httpapi"
	"media_gateway/internal/logging"
	"media_gateway/internal/sweep"
)

// One-shot expiry sweep, for schedulers that run a binary rather than call
// /api/cron/ai-tasks/cleanup.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logging.SetLogLevel(cfg.LogLevel)
	defer logging.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Sweep.LockTTL)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	db, err := httpapi.OpenDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	var client *redis.Client
	if cfg.RedisEnabled() {
		client, err = httpapi.OpenRedis(cfg)
		if err != nil {
			return err
		}
		defer client.Close()
	}

	objects, err := httpapi.OpenObjectStore(ctx, cfg)
	if err != nil {
		return err
	}

	result, err := sweep.New(db.NewAITaskRepository(), objects, client, sweep.Options{
		BatchSize: cfg.Sweep.BatchSize,
		LockTTL:   cfg.Sweep.LockTTL,
		Now:       func() time.Time { return time.Now().UTC() },
	}).RunOnce(ctx)
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(result)
}
