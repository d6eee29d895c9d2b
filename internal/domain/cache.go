package domain

import (
	"context"
	"time"
)

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
	Refresh(ctx context.Context, key string, ttl time.Duration) error
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// StateCache keeps the last-known broadcast state per strategy so readers
// can serve something when the engine is down.
type StateCache interface {
	SetState(ctx context.Context, strategy string, payload []byte) error
	GetState(ctx context.Context, strategy string) ([]byte, error)
}
