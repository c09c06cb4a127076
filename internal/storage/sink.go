package storage

import (
	"context"
	"fmt"
	"sync"

	"migrator/pkg/records"
)

// Config is the configuration needed to open a Sink.
//
// Kind selects a registered backend. DSN is used by the SQL backends; URL,
// APIKey and Token by the Supabase REST backend. Validation is
// backend-specific.
type Config struct {
	Kind   string
	DSN    string
	URL    string
	APIKey string
	Token  string
}

// Sink writes record batches into a relational backend.
//
// Each call writes the whole batch as one unit: either the backend accepts it
// or it returns a single error for the batch.
type Sink interface {
	// Insert appends rows to table.
	Insert(ctx context.Context, table string, rows []records.Record) error

	// Upsert inserts rows or updates the existing row that collides on
	// conflict. SQL backends require conflict columns; the Supabase REST
	// backend accepts an empty list and falls back to the primary key.
	Upsert(ctx context.Context, table string, rows []records.Record, conflict []string) error

	// Close releases backend resources. Call once.
	Close()
}

// Factory opens a Sink for cfg.
type Factory func(ctx context.Context, cfg Config) (Sink, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers a backend under kind (e.g. "postgres", "sqlite").
//
// Call Register from an init() function in a backend package.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New opens a Sink using the factory registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Sink, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("storage: unsupported kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
