package storage

// Driver names as registered with database/sql.
const (
	SQLite3 = "sqlite3"
	PGX     = "pgx"
)

// IsPostgres returns true if the driver is PostgreSQL (pgx).
func IsPostgres(driver string) bool {
	return driver == PGX
}

// upsertSQL returns the upsert statement for a table. ON CONFLICT with the
// excluded pseudo-table is supported by both SQLite (3.24+) and PostgreSQL,
// so a single statement serves both drivers after Rebind.
func upsertSQL(table string) string {
	return `INSERT INTO ` + table + ` (id, record, updated_at_ms) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET record = excluded.record, updated_at_ms = excluded.updated_at_ms`
}

// createTableSQL returns the schema statement for a table. BIGINT and TEXT
// map cleanly onto both drivers.
func createTableSQL(table string) string {
	return `CREATE TABLE IF NOT EXISTS ` + table + ` (
		id TEXT PRIMARY KEY,
		record TEXT NOT NULL,
		updated_at_ms BIGINT NOT NULL
	)`
}
