// Package all registers every storage backend and the SQL drivers they need.
package all

import (
	_ "github.com/microsoft/go-mssqldb"

	_ "migrator/internal/storage/mssql"
	_ "migrator/internal/storage/postgres"
	_ "migrator/internal/storage/sqlite"
	_ "migrator/internal/storage/supabase"
)
