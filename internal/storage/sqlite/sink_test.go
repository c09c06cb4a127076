package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"migrator/internal/storage"
	"migrator/pkg/records"
)

func openMemory(t *testing.T) *Sink {
	t.Helper()
	s, err := NewSink(context.Background(), storage.Config{Kind: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("NewSink: %v", err)
	}
	t.Cleanup(s.Close)
	return s.(*Sink)
}

func TestUpsert_InsertThenUpdate(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	first := []records.Record{
		{"id": "P1", "name": "Drill", "product_specification": map[string]string{"size": "M"}},
		{"id": "P2", "name": "Saw"},
	}
	if err := s.Upsert(ctx, "product", first, []string{"id"}); err != nil {
		t.Fatalf("Upsert #1: %v", err)
	}

	second := []records.Record{
		{"id": "P1", "name": "Drill XL", "product_specification": map[string]string{"size": "L"}, "template_html": "<div/>"},
	}
	if err := s.Upsert(ctx, "product", second, []string{"id"}); err != nil {
		t.Fatalf("Upsert #2: %v", err)
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM "product"`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("rows=%d, want 2", n)
	}

	var name, spec string
	var html sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT "name", "product_specification", "template_html" FROM "product" WHERE "id" = 'P1'`,
	).Scan(&name, &spec, &html)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if name != "Drill XL" || spec != `{"size":"L"}` || html.String != "<div/>" {
		t.Fatalf("unexpected row name=%q spec=%q html=%v", name, spec, html)
	}
}

func TestInsert_PlainAppend(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	rows := []records.Record{{"id": "A", "n": 1.5}, {"id": "A", "n": 2.5}}
	if err := s.Insert(ctx, "Product", rows); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM "Product"`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("rows=%d, want 2", n)
	}
}

func TestUpsert_RequiresConflictColumns(t *testing.T) {
	s := openMemory(t)
	if err := s.Upsert(context.Background(), "product", []records.Record{{"id": "x"}}, nil); err == nil {
		t.Fatalf("expected error without conflict columns")
	}
	err := s.Upsert(context.Background(), "product", []records.Record{{"name": "x"}}, []string{"id"})
	if err == nil || !strings.Contains(err.Error(), "conflict column") {
		t.Fatalf("expected missing conflict column error, got %v", err)
	}
}

func TestEmptyBatchIsNoop(t *testing.T) {
	s := openMemory(t)
	if err := s.Insert(context.Background(), "product", nil); err != nil {
		t.Fatalf("Insert(nil): %v", err)
	}
}

func TestBuildWriteSQL(t *testing.T) {
	q, args := buildWriteSQL("product", []string{"id", "name"}, [][]any{{"1", "a"}, {"2", "b"}}, []string{"id"}, true)
	want := `INSERT INTO "product" ("id", "name") VALUES (?, ?), (?, ?) ON CONFLICT ("id") DO UPDATE SET "name" = excluded."name"`
	if q != want {
		t.Fatalf("sql=%q\nwant=%q", q, want)
	}
	if len(args) != 4 {
		t.Fatalf("args=%d, want 4", len(args))
	}
}
