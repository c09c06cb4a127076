// Package mssql implements storage.Sink for Microsoft SQL Server.
//
// This package does NOT blank-import a driver; the application registers the
// "sqlserver" driver (see internal/storage/all).
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"migrator/internal/storage"
	"migrator/pkg/records"
)

const (
	// maxParams stays under SQL Server's 2100 parameter limit.
	maxParams = 2000
	// maxInsertRows is SQL Server's cap on row constructors in one VALUES.
	maxInsertRows = 1000
)

func init() {
	storage.Register("mssql", NewSink)
}

// Sink writes each batch inside one transaction. Inserts use multi-row
// VALUES; upserts use one MERGE per row because MERGE cannot take a
// multi-row parameter source without a table type.
type Sink struct {
	db dbConn
}

// NewSink opens cfg.DSN with the "sqlserver" driver and pings it.
func NewSink(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mssql: open: %w", err)
	}
	raw.SetMaxOpenConns(8)
	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("mssql: ping: %w", err)
	}
	return &Sink{db: &sqlDB{db: raw}}, nil
}

// Close releases database resources.
func (s *Sink) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

// Insert implements storage.Sink.
func (s *Sink) Insert(ctx context.Context, table string, rows []records.Record) error {
	if len(rows) == 0 {
		return nil
	}
	columns := storage.Columns(rows)
	if err := storage.ValidateBatch(table, columns, nil); err != nil {
		return err
	}
	matrix, err := storage.Matrix(columns, rows)
	if err != nil {
		return err
	}

	return s.inTx(ctx, func(tx txConn) error {
		size := maxParams / len(columns)
		if size == 0 {
			return fmt.Errorf("mssql: table %s: %d columns exceed the parameter limit", table, len(columns))
		}
		if size > maxInsertRows {
			size = maxInsertRows
		}
		for start := 0; start < len(matrix); start += size {
			end := start + size
			if end > len(matrix) {
				end = len(matrix)
			}
			q, args := buildInsertSQL(table, columns, matrix[start:end])
			if _, err := tx.ExecContext(ctx, q, args...); err != nil {
				return fmt.Errorf("mssql: insert %s: %w", table, err)
			}
		}
		return nil
	})
}

// Upsert implements storage.Sink with MERGE ... WITH (HOLDLOCK).
func (s *Sink) Upsert(ctx context.Context, table string, rows []records.Record, conflict []string) error {
	if len(rows) == 0 {
		return nil
	}
	if len(conflict) == 0 {
		return fmt.Errorf("mssql: upsert %s: conflict columns required", table)
	}
	columns := storage.Columns(rows)
	if err := storage.ValidateBatch(table, columns, conflict); err != nil {
		return err
	}
	matrix, err := storage.Matrix(columns, rows)
	if err != nil {
		return err
	}

	q := buildMergeSQL(table, columns, conflict)
	return s.inTx(ctx, func(tx txConn) error {
		for i, row := range matrix {
			if _, err := tx.ExecContext(ctx, q, row...); err != nil {
				return fmt.Errorf("mssql: merge %s row %d: %w", table, i, err)
			}
		}
		return nil
	})
}

func (s *Sink) inTx(ctx context.Context, fn func(tx txConn) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mssql: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("mssql: commit: %w", err)
	}
	return nil
}

func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(mssqlTableIdent(table))
	b.WriteString(" (")
	b.WriteString(joinIdents(columns, ""))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "@p%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}
	b.WriteString(";")
	return b.String(), args
}

// buildMergeSQL returns a single-row MERGE whose parameters follow columns.
func buildMergeSQL(table string, columns, conflict []string) string {
	isKey := make(map[string]bool, len(conflict))
	for _, c := range conflict {
		isKey[c] = true
	}

	src := make([]string, len(columns))
	for i, c := range columns {
		src[i] = fmt.Sprintf("@p%d AS %s", i+1, mssqlIdent(c))
	}

	on := make([]string, len(conflict))
	for i, c := range conflict {
		on[i] = "tgt." + mssqlIdent(c) + " = src." + mssqlIdent(c)
	}

	var sets []string
	for _, c := range columns {
		if !isKey[c] {
			sets = append(sets, "tgt."+mssqlIdent(c)+" = src."+mssqlIdent(c))
		}
	}

	var b strings.Builder
	b.WriteString("MERGE INTO ")
	b.WriteString(mssqlTableIdent(table))
	b.WriteString(" WITH (HOLDLOCK) AS tgt USING (SELECT ")
	b.WriteString(strings.Join(src, ", "))
	b.WriteString(") AS src ON ")
	b.WriteString(strings.Join(on, " AND "))
	if len(sets) > 0 {
		b.WriteString(" WHEN MATCHED THEN UPDATE SET ")
		b.WriteString(strings.Join(sets, ", "))
	}
	b.WriteString(" WHEN NOT MATCHED THEN INSERT (")
	b.WriteString(joinIdents(columns, ""))
	b.WriteString(") VALUES (")
	b.WriteString(joinIdents(columns, "src."))
	b.WriteString(");")
	return b.String()
}

func joinIdents(names []string, prefix string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = prefix + mssqlIdent(n)
	}
	return strings.Join(quoted, ", ")
}

// mssqlIdent returns a bracket-quoted identifier, escaping ']' as ']]'.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// mssqlTableIdent quotes each part of a schema-qualified name.
//
//	"dbo.product" -> [dbo].[product]
func mssqlTableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = mssqlIdent(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}

// ---- database/sql seam types ----

// dbConn is the slice of *sql.DB this package needs.
type dbConn interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error)
	Close() error
}

// txConn is the slice of *sql.Tx this package needs.
type txConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Commit() error
	Rollback() error
}

type sqlDB struct {
	db *sql.DB
}

func (s *sqlDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error) {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *sqlDB) Close() error { return s.db.Close() }
