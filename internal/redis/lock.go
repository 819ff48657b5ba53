package redisclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("owner lock not acquired")
)

const retryInterval = 25 * time.Millisecond

// Locker is used by the scheduling service to serialize check-then-write
// sections per owner. Different owners never contend.
type Locker interface {
	WithOwnerLock(ctx context.Context, ownerID uuid.UUID, fn func(ctx context.Context) error) error
}

type redisOwnerLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewRedisOwnerLocker creates a locker that uses a per owner Redis key.
// A busy lock is polled for up to wait before ErrLockNotAcquired.
func NewRedisOwnerLocker(client *redis.Client, ttl, wait time.Duration) Locker {
	return &redisOwnerLocker{
		client: client,
		ttl:    ttl,
		wait:   wait,
	}
}

func ownerKey(ownerID uuid.UUID) string {
	return fmt.Sprintf("lock:owner:%s", ownerID.String())
}

func (l *redisOwnerLocker) WithOwnerLock(ctx context.Context, ownerID uuid.UUID, fn func(ctx context.Context) error) error {
	key := ownerKey(ownerID)
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}

	defer func() {
		// release must run even if ctx was cancelled by fn's deadline
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = l.release(releaseCtx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

func (l *redisOwnerLocker) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire owner lock: %w", err)
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return ErrLockNotAcquired
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisOwnerLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release owner lock: %w", err)
	}
	return nil
}

type localOwnerLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]chan struct{}
	wait  time.Duration
}

// NewLocalOwnerLocker serializes owners inside one process. It is meant for
// single-instance deployments and tests; it gives no cross-process guarantee.
func NewLocalOwnerLocker(wait time.Duration) Locker {
	return &localOwnerLocker{
		locks: make(map[uuid.UUID]chan struct{}),
		wait:  wait,
	}
}

func (l *localOwnerLocker) slot(ownerID uuid.UUID) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.locks[ownerID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[ownerID] = ch
	}
	return ch
}

func (l *localOwnerLocker) WithOwnerLock(ctx context.Context, ownerID uuid.UUID, fn func(ctx context.Context) error) error {
	ch := l.slot(ownerID)

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrLockNotAcquired
	}
	defer func() { <-ch }()

	return fn(ctx)
}
