package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClientOptions are the connection settings the owner locker depends on.
// Zero values fall back to the defaults in clientOptions.
type ClientOptions struct {
	Addr     string
	Username string
	Password string
	DB       int
	// PoolSize bounds concurrent lock calls. A request waiting on a busy
	// owner polls SET NX, so it holds a connection only per attempt.
	PoolSize int
	// OpTimeout is the read and write deadline of a single command. It
	// must stay well under LockTTL or a slow SET NX can outlive its lock.
	OpTimeout time.Duration
}

func clientOptions(o ClientOptions) *redis.Options {
	poolSize := o.PoolSize
	if poolSize <= 0 {
		poolSize = 20
	}
	timeout := o.OpTimeout
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}

	return &redis.Options{
		Addr:         o.Addr,
		Username:     o.Username,
		Password:     o.Password,
		DB:           o.DB,
		DialTimeout:  2 * timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		PoolSize:     poolSize,
		PoolTimeout:  2 * timeout,
		MinIdleConns: 1,
		// a lock attempt is cheap to repeat from the polling loop
		MaxRetries: 1,
	}
}

// NewRedisClient connects and pings.
func NewRedisClient(ctx context.Context, o ClientOptions) (*redis.Client, error) {
	rdb := redis.NewClient(clientOptions(o))

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", o.Addr, err)
	}

	return rdb, nil
}
