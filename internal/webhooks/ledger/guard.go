package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/autevo/filmtechos-backend/pkg/redis"
)

// InFlightGuard marks an event as being processed so a concurrent redelivery of the
// same event backs off instead of racing the first one.
type InFlightGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewInFlightGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*InFlightGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &InFlightGuard{store: store, ttl: ttl, scope: scope}, nil
}

// Acquire reports false when another delivery of eventID holds the marker.
func (g *InFlightGuard) Acquire(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	set, err := g.store.SetNX(ctx, g.store.IdempotencyKey(g.scope, eventID), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set in-flight key: %w", err)
	}
	return set, nil
}

// Release clears the marker once processing ends, successfully or not.
func (g *InFlightGuard) Release(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.Del(ctx, g.store.IdempotencyKey(g.scope, eventID))
}
