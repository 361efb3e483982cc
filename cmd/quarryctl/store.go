package main

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/quarrylabs/quarry/store"
	redisstore "github.com/quarrylabs/quarry/store/redis"
	sqlitestore "github.com/quarrylabs/quarry/store/sqlite"
)

// openStore builds a store from the backend flags. Exactly one backend
// must be selected.
func openStore(ctx context.Context) (store.Store, error) {
	logger := newLogger()

	switch {
	case redisAddr != "" && sqlitePath != "":
		return nil, fmt.Errorf("choose one of --redis or --sqlite, not both")

	case redisAddr != "":
		client := goredis.NewClient(&goredis.Options{
			Addr:            redisAddr,
			MaxRetries:      3,
			MinRetryBackoff: 8 * time.Millisecond,
		})
		s := redisstore.New(client, redisstore.WithLogger(logger))
		if err := s.Ping(ctx); err != nil {
			return nil, fmt.Errorf("redis at %s: %w", redisAddr, err)
		}
		return s, nil

	case sqlitePath != "":
		s, err := sqlitestore.Open(sqlitePath, sqlitestore.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			return nil, err
		}
		return s, nil

	default:
		return nil, fmt.Errorf("a backend is required: --redis addr or --sqlite path")
	}
}
