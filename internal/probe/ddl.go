package probe

import (
	"fmt"
	"strings"
)

// backendTypes maps probe types to column types per sink backend. Supabase
// is Postgres.
var backendTypes = map[string]map[Type]string{
	"postgres": {
		TypeBoolean:   "boolean",
		TypeInteger:   "bigint",
		TypeFloat:     "double precision",
		TypeTimestamp: "timestamptz",
		TypeJSON:      "jsonb",
		TypeText:      "text",
	},
	"mssql": {
		TypeBoolean:   "bit",
		TypeInteger:   "bigint",
		TypeFloat:     "float",
		TypeTimestamp: "datetimeoffset",
		TypeJSON:      "nvarchar(max)",
		TypeText:      "nvarchar(max)",
	},
	"sqlite": {
		TypeBoolean:   "INTEGER",
		TypeInteger:   "INTEGER",
		TypeFloat:     "REAL",
		TypeTimestamp: "TEXT",
		TypeJSON:      "TEXT",
		TypeText:      "TEXT",
	},
}

// NormalizeBackend maps sink kinds and their aliases onto the DDL dialects.
func NormalizeBackend(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "mssql", "sqlserver":
		return "mssql"
	case "sqlite":
		return "sqlite"
	default: // postgres, postgresql, supabase
		return "postgres"
	}
}

// QualifyTable adds the backend's default schema to a bare table name.
func QualifyTable(backend, table string) string {
	table = strings.TrimSpace(table)
	if table == "" || strings.Contains(table, ".") {
		return table
	}
	switch backend {
	case "postgres":
		return "public." + table
	case "mssql":
		return "dbo." + table
	default:
		return table
	}
}

// CreateTableSQL renders a CREATE TABLE statement for res. keys become the
// primary key and must be columns of res.
func CreateTableSQL(backend, table string, res Result, keys []string) (string, error) {
	backend = NormalizeBackend(backend)
	types := backendTypes[backend]
	if len(res.Columns) == 0 {
		return "", fmt.Errorf("probe: table %s: no columns sampled", table)
	}

	isKey := map[string]bool{}
	for _, k := range keys {
		if _, ok := res.Column(k); !ok {
			return "", fmt.Errorf("probe: table %s: key column %q not in sample", table, k)
		}
		isKey[k] = true
	}

	lines := make([]string, 0, len(res.Columns)+1)
	for _, c := range res.Columns {
		typ := types[c.Type]
		if isKey[c.Name] {
			// Key columns are compared and indexed; keep them bounded on
			// SQL Server where nvarchar(max) cannot be a key.
			if backend == "mssql" && (c.Type == TypeText || c.Type == TypeJSON) {
				typ = "nvarchar(450)"
			}
			typ += " NOT NULL"
		}
		lines = append(lines, "  "+quoteIdent(backend, c.Name)+" "+typ)
	}
	if len(keys) > 0 {
		quoted := make([]string, len(keys))
		for i, k := range keys {
			quoted[i] = quoteIdent(backend, k)
		}
		lines = append(lines, "  PRIMARY KEY ("+strings.Join(quoted, ", ")+")")
	}

	ifNotExists := "IF NOT EXISTS "
	if backend == "mssql" {
		ifNotExists = ""
	}
	return fmt.Sprintf("CREATE TABLE %s%s (\n%s\n);", ifNotExists, quoteTable(backend, QualifyTable(backend, table)), strings.Join(lines, ",\n")), nil
}

func quoteIdent(backend, name string) string {
	if backend == "mssql" {
		return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteTable(backend, name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = quoteIdent(backend, strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}
