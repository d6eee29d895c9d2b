package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/polystrat/internal/domain"
)

// DefaultStateTTL bounds how long a dead engine's state is served.
const DefaultStateTTL = 10 * time.Minute

// StateCache implements domain.StateCache with one string key per strategy.
type StateCache struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ domain.StateCache = (*StateCache)(nil)

// NewStateCache creates a StateCache on c. ttl <= 0 uses DefaultStateTTL.
func NewStateCache(c *Client, ttl time.Duration) *StateCache {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateCache{rdb: c.rdb, ttl: ttl}
}

func stateKey(strategy string) string {
	return "poly:state:" + strategy
}

func (sc *StateCache) SetState(ctx context.Context, strategy string, payload []byte) error {
	if err := sc.rdb.Set(ctx, stateKey(strategy), payload, sc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set state %s: %w", strategy, err)
	}
	return nil
}

// GetState returns domain.ErrNotFound when nothing is cached.
func (sc *StateCache) GetState(ctx context.Context, strategy string) ([]byte, error) {
	b, err := sc.rdb.Get(ctx, stateKey(strategy)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get state %s: %w", strategy, err)
	}
	return b, nil
}
