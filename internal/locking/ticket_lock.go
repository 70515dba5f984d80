package locking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// TicketLocker serializes SLA state mutations for a single ticket. The
// scanner and the direct API calls both take the lock, so a manual resume can
// never race a breach check on the same ticket.
type TicketLocker interface {
	// Acquire blocks briefly for the per-ticket lock and returns a release
	// function. It fails after the configured retries are exhausted.
	Acquire(ctx context.Context, ticketID string) (func(), error)
}

// ErrLockHeld is reported when the lock could not be obtained in time.
type ErrLockHeld struct{ TicketID string }

func (e *ErrLockHeld) Error() string {
	return "ticket " + e.TicketID + " is locked by another operation"
}

// RedisTicketLocker implements TicketLocker with a Redis SET NX advisory
// lock. The TTL bounds lock leakage if a holder dies mid-operation.
type RedisTicketLocker struct {
	client     *redis.Client
	logger     *zap.Logger
	ttl        time.Duration
	retries    int
	retryDelay time.Duration
}

// NewRedisTicketLocker builds the locker.
func NewRedisTicketLocker(client *redis.Client, logger *zap.Logger, ttl time.Duration, retries int, retryDelay time.Duration) *RedisTicketLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	if retryDelay <= 0 {
		retryDelay = 100 * time.Millisecond
	}
	return &RedisTicketLocker{
		client:     client,
		logger:     logger,
		ttl:        ttl,
		retries:    retries,
		retryDelay: retryDelay,
	}
}

// releaseScript deletes the lock only when still owned by this holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

func (l *RedisTicketLocker) Acquire(ctx context.Context, ticketID string) (func(), error) {
	key := "sla:ticket-lock:" + ticketID
	token := uuid.NewString()

	for attempt := 0; ; attempt++ {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		if attempt >= l.retries {
			return nil, &ErrLockHeld{TicketID: ticketID}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retryDelay):
		}
	}

	release := func() {
		if err := releaseScript.Run(context.Background(), l.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
			l.logger.Warn("failed to release ticket lock",
				zap.String("ticket_id", ticketID), zap.Error(err))
		}
	}
	return release, nil
}

// NoopTicketLocker satisfies TicketLocker without coordination. Used when
// Redis is not configured (single-process deployments).
type NoopTicketLocker struct{}

func (NoopTicketLocker) Acquire(ctx context.Context, ticketID string) (func(), error) {
	return func() {}, nil
}
