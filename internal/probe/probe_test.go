package probe

import (
	"reflect"
	"strings"
	"testing"

	"migrator/pkg/records"
)

func sample() []records.Record {
	return []records.Record{
		{"id": "P1", "price": 10.0, "weight": 1.5, "active": true, "created_at": "2023-05-01T10:00:00Z", "product_specification": map[string]any{"size": "M"}, "brand": "acme"},
		{"id": "P2", "price": 12.0, "weight": 2.0, "active": false, "created_at": "2023-05-02T10:00:00Z", "brand": "acme"},
		{"id": "P3", "price": 12.0, "weight": 3.0, "active": nil, "created_at": "", "brand": " "},
	}
}

func TestAnalyze_InfersTypes(t *testing.T) {
	res := Analyze(sample())
	if res.SampledRows != 3 {
		t.Fatalf("sampled=%d", res.SampledRows)
	}
	want := map[string]Type{
		"id":                    TypeText,
		"price":                 TypeInteger,
		"weight":                TypeFloat,
		"active":                TypeBoolean,
		"created_at":            TypeTimestamp,
		"product_specification": TypeJSON,
		"brand":                 TypeText,
	}
	for name, typ := range want {
		c, ok := res.Column(name)
		if !ok {
			t.Fatalf("missing column %s", name)
		}
		if c.Type != typ {
			t.Fatalf("%s: type=%s, want %s", name, c.Type, typ)
		}
	}
	var names []string
	for _, c := range res.Columns {
		names = append(names, c.Name)
	}
	if !reflect.DeepEqual(names, []string{"active", "brand", "created_at", "id", "price", "product_specification", "weight"}) {
		t.Fatalf("column order=%v", names)
	}
}

func TestAnalyze_Uniqueness(t *testing.T) {
	res := Analyze(sample())
	price, _ := res.Column("price")
	if price.Total != 3 || price.Distinct != 2 {
		t.Fatalf("price=%+v", price)
	}
	brand, _ := res.Column("brand")
	if brand.Total != 2 || brand.Distinct != 1 {
		t.Fatalf("brand=%+v (blank values must not count)", brand)
	}
	if got := KeyCandidates(res); !reflect.DeepEqual(got, []string{"id", "weight"}) {
		t.Fatalf("key candidates=%v", got)
	}
}

func TestAnalyze_MixedTypesWidenToText(t *testing.T) {
	res := Analyze([]records.Record{{"v": 1.0}, {"v": "x"}})
	if c, _ := res.Column("v"); c.Type != TypeText {
		t.Fatalf("type=%s", c.Type)
	}
}

func TestFormatReport(t *testing.T) {
	out := FormatReport(Analyze(sample()))
	lines := strings.Split(out, "\n")
	if !strings.HasPrefix(lines[0], "uniqueness report:\tsampled_rows=3") {
		t.Fatalf("header=%q", lines[0])
	}
	// brand has the lowest ratio (1 distinct of 2).
	if !strings.HasPrefix(lines[2], "brand") {
		t.Fatalf("first row=%q", lines[2])
	}
	if FormatReport(Result{}) != "uniqueness: no rows sampled" {
		t.Fatalf("empty report")
	}
}

func TestCreateTableSQL_Postgres(t *testing.T) {
	res := Analyze([]records.Record{{"id": "P1", "template_json": map[string]any{}, "price": 1.0}})
	sql, err := CreateTableSQL("supabase", "product", res, []string{"id"})
	if err != nil {
		t.Fatalf("CreateTableSQL: %v", err)
	}
	want := `CREATE TABLE IF NOT EXISTS "public"."product" (
  "id" text NOT NULL,
  "price" bigint,
  "template_json" jsonb,
  PRIMARY KEY ("id")
);`
	if sql != want {
		t.Fatalf("sql=\n%s\nwant=\n%s", sql, want)
	}
}

func TestCreateTableSQL_MSSQLKeyIsBounded(t *testing.T) {
	res := Analyze([]records.Record{{"id": "P1"}})
	sql, err := CreateTableSQL("sqlserver", "product", res, []string{"id"})
	if err != nil {
		t.Fatalf("CreateTableSQL: %v", err)
	}
	if !strings.Contains(sql, "CREATE TABLE [dbo].[product]") || !strings.Contains(sql, "[id] nvarchar(450) NOT NULL") {
		t.Fatalf("sql=%s", sql)
	}
}

func TestCreateTableSQL_Errors(t *testing.T) {
	if _, err := CreateTableSQL("sqlite", "t", Result{}, nil); err == nil {
		t.Fatalf("expected error for empty sample")
	}
	res := Analyze([]records.Record{{"a": 1.0}})
	if _, err := CreateTableSQL("sqlite", "t", res, []string{"id"}); err == nil {
		t.Fatalf("expected error for unknown key column")
	}
}

func TestQualifyTable(t *testing.T) {
	tests := []struct{ backend, in, want string }{
		{"postgres", "product", "public.product"},
		{"mssql", "product", "dbo.product"},
		{"sqlite", "product", "product"},
		{"postgres", "app.product", "app.product"},
	}
	for _, tt := range tests {
		if got := QualifyTable(tt.backend, tt.in); got != tt.want {
			t.Fatalf("QualifyTable(%q,%q)=%q, want %q", tt.backend, tt.in, got, tt.want)
		}
	}
}
