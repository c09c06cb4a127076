// Package postgres implements storage.Sink on Postgres (and therefore
// Supabase's database) with pgx.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"migrator/internal/storage"
	"migrator/pkg/records"
)

// maxParams is the Postgres bind-parameter limit per statement.
const maxParams = 65535

func init() {
	storage.Register("postgres", NewSink)
}

// Sink writes batches with multi-row INSERT statements. A batch larger than
// the parameter limit is split into several statements inside one
// transaction, so the batch still commits or fails as a unit.
type Sink struct {
	pool *pgxpool.Pool
}

// NewSink opens a pgx pool for cfg.DSN and verifies connectivity.
func NewSink(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Sink{pool: pool}, nil
}

// Close closes the connection pool.
func (s *Sink) Close() { s.pool.Close() }

// Insert implements storage.Sink.
func (s *Sink) Insert(ctx context.Context, table string, rows []records.Record) error {
	return s.write(ctx, table, rows, nil, false)
}

// Upsert implements storage.Sink with INSERT ... ON CONFLICT DO UPDATE.
func (s *Sink) Upsert(ctx context.Context, table string, rows []records.Record, conflict []string) error {
	if len(conflict) == 0 {
		return fmt.Errorf("postgres: upsert %s: conflict columns required", table)
	}
	return s.write(ctx, table, rows, conflict, true)
}

func (s *Sink) write(ctx context.Context, table string, rows []records.Record, conflict []string, upsert bool) error {
	if len(rows) == 0 {
		return nil
	}

	columns := storage.Columns(rows)
	if err := storage.ValidateBatch(table, columns, conflict); err != nil {
		return err
	}
	jsonCols := map[string]bool{}
	for _, c := range columns {
		if storage.IsJSONColumn(c, rows) {
			jsonCols[c] = true
		}
	}
	matrix, err := storage.Matrix(columns, rows)
	if err != nil {
		return err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, chunk := range chunkRows(matrix, maxParams/len(columns)) {
		sql, args := buildWriteSQL(table, columns, jsonCols, chunk, conflict, upsert)
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("postgres: write %s: %w", table, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit %s: %w", table, err)
	}
	return nil
}

// buildWriteSQL constructs one INSERT statement and its args.
//
// It is pure so placeholder numbering, jsonb casts and the ON CONFLICT clause
// can be tested without a database. Every row must have len(columns) values.
func buildWriteSQL(table string, columns []string, jsonCols map[string]bool, rows [][]any, conflict []string, upsert bool) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pgTableIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j, c := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", p)
			if jsonCols[c] {
				b.WriteString("::jsonb")
			}
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}

	if upsert {
		b.WriteString(" ON CONFLICT (")
		for i, c := range conflict {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(pgIdent(c))
		}
		b.WriteString(")")

		isKey := make(map[string]bool, len(conflict))
		for _, c := range conflict {
			isKey[c] = true
		}
		var sets []string
		for _, c := range columns {
			if !isKey[c] {
				sets = append(sets, pgIdent(c)+" = EXCLUDED."+pgIdent(c))
			}
		}
		if len(sets) == 0 {
			b.WriteString(" DO NOTHING")
		} else {
			b.WriteString(" DO UPDATE SET ")
			b.WriteString(strings.Join(sets, ", "))
		}
	}

	b.WriteString(";")
	return b.String(), args
}

func chunkRows(rows [][]any, size int) [][][]any {
	if size <= 0 {
		size = 1
	}
	var out [][][]any
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[start:end])
	}
	return out
}

// pgIdent returns a double-quoted identifier.
func pgIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// pgTableIdent quotes each part of a possibly schema-qualified name.
//
//	"public.product" -> "public"."product"
func pgTableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = pgIdent(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}
