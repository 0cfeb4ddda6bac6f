package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	domainErrors "github.com/cassiomorais/paymentrecon/internal/domain/errors"
	"github.com/cassiomorais/paymentrecon/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const retryQueueRegistryKey = "retry:queues"

// RetryQueue is the scheduled payment retry queue. Entries of one
// tenant/account live in a sorted set scored by their effective time.
type RetryQueue struct {
	client  *redis.Client
	service string
	name    string
	now     func() time.Time
}

func NewRetryQueue(client *redis.Client, service, name string) *RetryQueue {
	return &RetryQueue{
		client:  client,
		service: service,
		name:    name,
		now:     time.Now,
	}
}

func (q *RetryQueue) queueID() string {
	return q.service + ":" + q.name
}

func (q *RetryQueue) key(accountID, tenantID uuid.UUID) string {
	return fmt.Sprintf("retry:%s:%s:%s", q.queueID(), tenantID, accountID)
}

// Register makes the queue visible to readers. Until a queue is registered
// FutureEntries reports ErrRetryQueueNotFound.
func (q *RetryQueue) Register(ctx context.Context) error {
	if err := q.client.SAdd(ctx, retryQueueRegistryKey, q.queueID()).Err(); err != nil {
		return fmt.Errorf("failed to register retry queue %s: %w", q.queueID(), err)
	}
	return nil
}

// Schedule enqueues a retry for the given account.
func (q *RetryQueue) Schedule(ctx context.Context, accountID, tenantID uuid.UUID, entry payment.ScheduledRetryEntry) error {
	if len(entry.PluginNames) == 0 {
		return fmt.Errorf("%w: scheduled retry needs at least one plugin name", domainErrors.ErrInvalidInput)
	}

	member, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal retry entry: %w", err)
	}

	err = q.client.ZAdd(ctx, q.key(accountID, tenantID), redis.Z{
		Score:  float64(entry.EffectiveDate.UnixMilli()),
		Member: string(member),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to schedule retry: %w", err)
	}
	return nil
}

// FutureEntries returns the retries of an account whose effective time is
// still ahead, ordered by effective time.
func (q *RetryQueue) FutureEntries(ctx context.Context, accountID, tenantID uuid.UUID) ([]payment.ScheduledRetryEntry, error) {
	registered, err := q.client.SIsMember(ctx, retryQueueRegistryKey, q.queueID()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to look up retry queue %s: %w", q.queueID(), err)
	}
	if !registered {
		return nil, fmt.Errorf("%s: %w", q.queueID(), domainErrors.ErrRetryQueueNotFound)
	}

	members, err := q.client.ZRangeByScore(ctx, q.key(accountID, tenantID), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(q.now().UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read retry queue: %w", err)
	}

	entries := make([]payment.ScheduledRetryEntry, 0, len(members))
	for _, m := range members {
		var entry payment.ScheduledRetryEntry
		if err := json.Unmarshal([]byte(m), &entry); err != nil {
			return nil, fmt.Errorf("corrupt retry entry in %s: %w", q.queueID(), err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
