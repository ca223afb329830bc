package main

import (
	"context"

	"github.com/MishaNavrotsky/authd/internal/cache"
	config "github.com/MishaNavrotsky/authd/internal/config/authd"
	"github.com/redis/go-redis/v9"
)

// initSessionCache dials redis and assembles the two-tier session
// cache. A failed ping aborts startup: the distributed tier is the
// source of truth for revocation and must be reachable before the
// service accepts traffic.
func initSessionCache(ctx context.Context, cfg *config.Config) (*cache.Tiered, func(), error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	remote := cache.NewRemote(rdb, cache.RemoteConfig{
		OpTimeout:     cfg.Redis.OpTimeout,
		DefaultTTL:    cfg.Redis.DefaultTTL,
		WriteAttempts: cfg.Redis.WriteAttempts,
	})
	if err := remote.Ping(ctx); err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}

	local := cache.NewLocal(cache.LocalConfig{
		MaxEntries: cfg.LocalCache.MaxEntries,
		DefaultTTL: cfg.LocalCache.TTL,
	})

	return cache.NewTiered(local, remote), func() { _ = rdb.Close() }, nil
}
