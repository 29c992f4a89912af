package logging

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	level = zap.NewAtomicLevelAt(zap.WarnLevel)

	rootMu sync.RWMutex
	root   *zap.Logger
)

func init() {
	local := isLocal()
	if local {
		level.SetLevel(zap.DebugLevel)
	}
	root = build(local)
}

func isLocal() bool {
	localEnv := os.Getenv("LOCAL")
	return strings.ToLower(localEnv) == "true" || localEnv == "1"
}

func build(local bool) *zap.Logger {
	var cfg zap.Config
	if local {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = level

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// SetLogLevel changes the level of every logger derived from the root.
// Unknown names leave the level unchanged.
func SetLogLevel(name string) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(name)))); err != nil {
		return
	}
	level.SetLevel(l)
}

// Level returns the current root level.
func Level() zapcore.Level {
	return level.Level()
}

// L returns the root logger.
func L() *zap.Logger {
	rootMu.RLock()
	defer rootMu.RUnlock()
	return root
}

// Replace swaps the root logger, returning a func that restores the old one.
// Tests use it with zaptest/observer.
func Replace(logger *zap.Logger) func() {
	rootMu.Lock()
	prev := root
	root = logger
	rootMu.Unlock()
	return func() {
		rootMu.Lock()
		root = prev
		rootMu.Unlock()
	}
}

// Sync flushes buffered entries. Call it before exiting.
func Sync() {
	_ = L().Sync()
}
