// Package store selects and constructs a memory.Store backend from
// configuration.
package store

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/becomeliminal/nim-memory/config"
	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/store/inmemory"
	"github.com/becomeliminal/nim-memory/memory/store/redis"
)

// Open builds the backend named by cfg.Backend.
func Open(ctx context.Context, cfg *config.Config, logger *memory.Logger) (memory.Store, error) {
	if logger == nil {
		logger = memory.NoopLogger()
	}

	switch cfg.Backend {
	case config.BackendInMemory:
		return inmemory.New(inmemory.WithLogger(logger)), nil

	case config.BackendRedis:
		opts := []redis.Option{
			redis.WithLogger(logger),
			redis.WithPrefix(cfg.Redis.Prefix),
			redis.WithTransactions(cfg.Redis.Transactional),
		}
		if cfg.Redis.CacheSize > 0 {
			opts = append(opts, redis.WithCache(cfg.Redis.CacheSize, cfg.Redis.CacheTTL))
		}
		s, err := redis.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, opts...)
		if err != nil {
			return nil, fmt.Errorf("open redis store: %w", err)
		}
		return s, nil
	}

	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// NewLogger builds the logger described by cfg, writing to w.
func NewLogger(cfg *config.Config, w io.Writer) (*memory.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(cfg.LogFormat, "json") {
		return memory.NewJSONLogger(w, level), nil
	}
	return memory.NewTextLogger(w, level), nil
}
