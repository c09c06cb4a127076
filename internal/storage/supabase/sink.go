// Package supabase implements storage.Sink over the Supabase PostgREST API.
package supabase

import (
	"context"
	"fmt"

	"migrator/internal/storage"
	sb "migrator/internal/supabase"
	"migrator/pkg/records"
)

func init() {
	storage.Register("supabase", NewSink)
}

// rowWriter is the part of *supabase.Client the sink uses.
type rowWriter interface {
	Insert(ctx context.Context, table string, rows any) error
	Upsert(ctx context.Context, table string, rows any, onConflict []string) error
}

// Sink posts each batch as one JSON array request.
type Sink struct {
	client rowWriter
}

// NewSink builds a Supabase client from cfg.URL, cfg.APIKey and cfg.Token.
func NewSink(_ context.Context, cfg storage.Config) (storage.Sink, error) {
	c, err := sb.New(cfg.URL, cfg.APIKey, cfg.Token)
	if err != nil {
		return nil, err
	}
	return &Sink{client: c}, nil
}

// Close is a no-op; the HTTP client holds no per-sink resources.
func (s *Sink) Close() {}

func (s *Sink) Insert(ctx context.Context, table string, rows []records.Record) error {
	if len(rows) == 0 {
		return nil
	}
	if err := s.client.Insert(ctx, table, encodeRows(rows)); err != nil {
		return fmt.Errorf("storage/supabase: insert %s: %w", table, err)
	}
	return nil
}

func (s *Sink) Upsert(ctx context.Context, table string, rows []records.Record, conflict []string) error {
	if len(rows) == 0 {
		return nil
	}
	if len(conflict) > 0 {
		if err := storage.ValidateBatch(table, storage.Columns(rows), conflict); err != nil {
			return err
		}
	}
	if err := s.client.Upsert(ctx, table, encodeRows(rows), conflict); err != nil {
		return fmt.Errorf("storage/supabase: upsert %s: %w", table, err)
	}
	return nil
}

// encodeRows fills every row with the union of columns. PostgREST bulk
// inserts require all objects to carry the same keys.
func encodeRows(rows []records.Record) []map[string]any {
	columns := storage.Columns(rows)
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		m := make(map[string]any, len(columns))
		for _, c := range columns {
			m[c] = r[c]
		}
		out[i] = m
	}
	return out
}
