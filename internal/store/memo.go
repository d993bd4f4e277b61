package store

import (
	"context"

	"go.uber.org/zap"
)

// Backend is a durable key/value table partitioned by namespace.
type Backend interface {
	Get(ctx context.Context, ns Namespace, key string) ([]byte, bool, error)
	Put(ctx context.Context, ns Namespace, key string, value []byte) error
	Clear(ctx context.Context, ns Namespace) error
}

// Memo is the memoization store used by the planner and the grounder.
// Backend failures degrade to cache misses and are only logged: a lookup
// never fails its caller and neither does a store.
type Memo struct {
	backend Backend
	logger  *zap.Logger
}

func NewMemo(backend Backend, logger *zap.Logger) *Memo {
	return &Memo{backend: backend, logger: logger.Named("memo")}
}

// Lookup returns the value stored under key in ns.
func (m *Memo) Lookup(ctx context.Context, ns Namespace, key string) ([]byte, bool) {
	value, ok, err := m.backend.Get(ctx, ns, key)
	if err != nil {
		m.logger.Warn("memo lookup failed, treating as miss",
			zap.String("namespace", string(ns)), zap.Error(err))
		return nil, false
	}
	if ok {
		m.logger.Debug("memo hit", zap.String("namespace", string(ns)), zap.String("key", key))
	}
	return value, ok
}

// Store writes value under key in ns, overwriting any previous value.
func (m *Memo) Store(ctx context.Context, ns Namespace, key string, value []byte) {
	if err := m.backend.Put(ctx, ns, key, value); err != nil {
		m.logger.Warn("memo store failed",
			zap.String("namespace", string(ns)), zap.String("key", key), zap.Error(err))
	}
}

// Clear drops every entry of ns. Unlike Lookup and Store it reports errors,
// since it is only reachable from operator commands.
func (m *Memo) Clear(ctx context.Context, ns Namespace) error {
	return m.backend.Clear(ctx, ns)
}
