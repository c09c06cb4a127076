// Package sqlite implements storage.Sink on SQLite (modernc.org/sqlite).
//
// It is the local dry-run target: tables are created on first write and
// missing columns are added, so a migration can be inspected without a
// provisioned Postgres schema.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"migrator/internal/storage"
	"migrator/pkg/records"
)

// maxParams stays under SQLITE_MAX_VARIABLE_NUMBER (32766 since 3.32).
const maxParams = 32000

func init() {
	storage.Register("sqlite", NewSink)
}

// Sink writes batches inside one transaction per call.
type Sink struct {
	db *sql.DB
}

// NewSink opens cfg.DSN (a file path or ":memory:") and pings it.
func NewSink(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// A single connection keeps ":memory:" databases alive across calls.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return &Sink{db: db}, nil
}

func (s *Sink) Close() { _ = s.db.Close() }

// Insert implements storage.Sink.
func (s *Sink) Insert(ctx context.Context, table string, rows []records.Record) error {
	return s.write(ctx, table, rows, nil, false)
}

// Upsert implements storage.Sink with INSERT ... ON CONFLICT DO UPDATE.
func (s *Sink) Upsert(ctx context.Context, table string, rows []records.Record, conflict []string) error {
	if len(conflict) == 0 {
		return fmt.Errorf("sqlite: upsert %s: conflict columns required", table)
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
	matrix, err := storage.Matrix(columns, rows)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := ensureTable(ctx, tx, table, columns, conflict); err != nil {
		return err
	}

	size := maxParams / len(columns)
	for start := 0; start < len(matrix); start += size {
		end := start + size
		if end > len(matrix) {
			end = len(matrix)
		}
		q, args := buildWriteSQL(table, columns, matrix[start:end], conflict, upsert)
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("sqlite: write %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit %s: %w", table, err)
	}
	return nil
}

// ensureTable creates table if needed and adds any missing columns. Columns
// are declared without a type so SQLite keeps each value's own affinity.
func ensureTable(ctx context.Context, tx *sql.Tx, table string, columns, conflict []string) error {
	if _, err := tx.ExecContext(ctx, buildCreateSQL(table, columns, conflict)); err != nil {
		return fmt.Errorf("sqlite: create table %s: %w", table, err)
	}

	rs, err := tx.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return fmt.Errorf("sqlite: table info %s: %w", table, err)
	}
	existing := map[string]bool{}
	for rs.Next() {
		var name string
		if err := rs.Scan(&name); err != nil {
			_ = rs.Close()
			return fmt.Errorf("sqlite: table info %s: %w", table, err)
		}
		existing[name] = true
	}
	if err := rs.Close(); err != nil {
		return err
	}
	if err := rs.Err(); err != nil {
		return err
	}

	for _, c := range columns {
		if existing[c] {
			continue
		}
		if _, err := tx.ExecContext(ctx, "ALTER TABLE "+sqlIdent(table)+" ADD COLUMN "+sqlIdent(c)); err != nil {
			return fmt.Errorf("sqlite: add column %s.%s: %w", table, c, err)
		}
	}
	return nil
}

func buildCreateSQL(table string, columns, conflict []string) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(sqlIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(c))
	}
	if len(conflict) > 0 {
		b.WriteString(", UNIQUE (")
		b.WriteString(joinIdents(conflict))
		b.WriteString(")")
	}
	b.WriteString(")")
	return b.String()
}

func buildWriteSQL(table string, columns []string, rows [][]any, conflict []string, upsert bool) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlIdent(table))
	b.WriteString(" (")
	b.WriteString(joinIdents(columns))
	b.WriteString(") VALUES ")

	placeholders := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholders)
		args = append(args, row...)
	}

	if upsert {
		isKey := make(map[string]bool, len(conflict))
		for _, c := range conflict {
			isKey[c] = true
		}
		var sets []string
		for _, c := range columns {
			if !isKey[c] {
				sets = append(sets, sqlIdent(c)+" = excluded."+sqlIdent(c))
			}
		}
		b.WriteString(" ON CONFLICT (")
		b.WriteString(joinIdents(conflict))
		if len(sets) == 0 {
			b.WriteString(") DO NOTHING")
		} else {
			b.WriteString(") DO UPDATE SET ")
			b.WriteString(strings.Join(sets, ", "))
		}
	}
	return b.String(), args
}

func joinIdents(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = sqlIdent(n)
	}
	return strings.Join(quoted, ", ")
}

func sqlIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
