package redis

import (
	"context"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/paymentrecon/internal/domain/errors"
	"github.com/cassiomorais/paymentrecon/internal/infrastructure/config"
	"github.com/cassiomorais/paymentrecon/pkg/retry"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	// Lua script for safe lock release (only owner can release)
	releaseLockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)

	// Lua script for lock extension
	extendLockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
)

// DistributedLock is a single-owner lock held in Redis under a random token.
type DistributedLock struct {
	client   *redis.Client
	key      string
	value    string
	ttl      time.Duration
	acquired bool
}

func NewDistributedLock(client *redis.Client, key string, ttl time.Duration) *DistributedLock {
	return &DistributedLock{
		client: client,
		key:    fmt.Sprintf("lock:%s", key),
		value:  uuid.New().String(),
		ttl:    ttl,
	}
}

// Acquire makes a single attempt to take the lock.
func (l *DistributedLock) Acquire(ctx context.Context) (bool, error) {
	success, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}

	l.acquired = success
	return success, nil
}

// Extend resets the lock TTL if the lock is still ours.
func (l *DistributedLock) Extend(ctx context.Context, ttl time.Duration) error {
	if !l.acquired {
		return domainErrors.ErrLockNotHeld
	}

	result, err := extendLockScript.Run(ctx, l.client, []string{l.key}, l.value, ttl.Milliseconds()).Result()
	if err != nil {
		return fmt.Errorf("failed to extend lock: %w", err)
	}

	val, ok := result.(int64)
	if !ok || val == 0 {
		return domainErrors.ErrLockNotHeld
	}

	return nil
}

// Release deletes the lock if it is still ours.
func (l *DistributedLock) Release(ctx context.Context) error {
	if !l.acquired {
		return nil
	}

	result, err := releaseLockScript.Run(ctx, l.client, []string{l.key}, l.value).Result()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}

	l.acquired = false
	val, ok := result.(int64)
	if !ok || val == 0 {
		return domainErrors.ErrLockNotHeld
	}

	return nil
}

// AccountLocker serializes corrective writes per account.
type AccountLocker struct {
	client     *redis.Client
	ttl        time.Duration
	timeout    time.Duration
	retryDelay time.Duration
	logger     zerolog.Logger
}

func NewAccountLocker(client *redis.Client, cfg config.ReconcileConfig, logger zerolog.Logger) *AccountLocker {
	retryDelay := cfg.LockRetryDelay
	if retryDelay <= 0 {
		retryDelay = 100 * time.Millisecond
	}
	return &AccountLocker{
		client:     client,
		ttl:        cfg.LockTTL,
		timeout:    cfg.LockTimeout,
		retryDelay: retryDelay,
		logger:     logger.With().Str("component", "account_locker").Logger(),
	}
}

func accountLockKey(accountID uuid.UUID) string {
	return "account:" + accountID.String()
}

// WithAccountLock runs fn while holding the account lock. Acquisition is
// retried until the lock timeout elapses; the TTL is extended while fn runs
// and the lock is released on every path.
func (l *AccountLocker) WithAccountLock(ctx context.Context, accountID uuid.UUID, fn func(ctx context.Context) error) error {
	lock := NewDistributedLock(l.client, accountLockKey(accountID), l.ttl)

	acquireCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	err := retry.Do(acquireCtx, retry.Config{InitialDelay: l.retryDelay, Fixed: true}, func() error {
		ok, err := lock.Acquire(acquireCtx)
		if err != nil {
			return retry.Unrecoverable(err)
		}
		if !ok {
			return domainErrors.ErrLockAcquisitionFailed
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: account %s: %v", domainErrors.ErrLockAcquisitionFailed, accountID, err)
	}

	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			l.logger.Warn().Err(err).Str("account_id", accountID.String()).Msg("Failed to release account lock")
		}
	}()

	stop := l.keepAlive(ctx, lock, accountID)
	defer stop()

	return fn(ctx)
}

// keepAlive extends lock every half TTL until the returned func is called.
// The func waits for the extender to exit so it never races Release.
func (l *AccountLocker) keepAlive(ctx context.Context, lock *DistributedLock, accountID uuid.UUID) func() {
	if l.ttl <= 0 {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(l.ttl / 2)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := lock.Extend(ctx, l.ttl); err != nil {
					if ctx.Err() == nil {
						l.logger.Warn().Err(err).Str("account_id", accountID.String()).Msg("Failed to extend account lock")
					}
					return
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
