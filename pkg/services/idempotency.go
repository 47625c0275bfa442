// Package services implements the workflow engine's business logic on top
// of the repositories. Services own authorization, state machine
// enforcement, and transaction boundaries; handlers only translate HTTP.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sitecrew-inc/sitecrew-engine/pkg/apperrors"
)

// IdempotencyGuard deduplicates retried mutations. Reserve claims a client
// supplied key; a second claim within the TTL means the first request
// already ran (or is running) and the retry must not re-execute.
type IdempotencyGuard interface {
	// Reserve claims key. Returns ErrConflict if the key was already
	// claimed, nil if this caller holds the claim.
	Reserve(ctx context.Context, key string) error

	// Release frees a key after the guarded operation failed, so the
	// client can retry with the same key.
	Release(ctx context.Context, key string)
}

type redisIdempotencyGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewIdempotencyGuard creates a Redis-backed guard. Claims expire after
// ttl, which bounds how long a client can safely retry with one key.
func NewIdempotencyGuard(client *redis.Client, ttl time.Duration) IdempotencyGuard {
	return &redisIdempotencyGuard{client: client, ttl: ttl}
}

var _ IdempotencyGuard = (*redisIdempotencyGuard)(nil)

func (g *redisIdempotencyGuard) Reserve(ctx context.Context, key string) error {
	ok, err := g.client.SetNX(ctx, "idem:"+key, "1", g.ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: idempotency store unreachable: %s", apperrors.ErrUnavailable, err)
	}
	if !ok {
		return fmt.Errorf("%w: request with idempotency key %q was already processed", apperrors.ErrConflict, key)
	}
	return nil
}

func (g *redisIdempotencyGuard) Release(ctx context.Context, key string) {
	g.client.Del(ctx, "idem:"+key)
}

// nopIdempotencyGuard accepts every key. Used when Redis is not configured.
type nopIdempotencyGuard struct{}

// NewNopIdempotencyGuard creates a guard that never deduplicates.
func NewNopIdempotencyGuard() IdempotencyGuard {
	return nopIdempotencyGuard{}
}

var _ IdempotencyGuard = nopIdempotencyGuard{}

func (nopIdempotencyGuard) Reserve(ctx context.Context, key string) error { return nil }

func (nopIdempotencyGuard) Release(ctx context.Context, key string) {}
