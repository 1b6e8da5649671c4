package sink

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const DefaultTable = "node_events"

const schemaSQLite = `CREATE TABLE IF NOT EXISTS %s (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	node_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	energy_ws REAL NOT NULL DEFAULT 0,
	budget_ws REAL NOT NULL DEFAULT 0,
	detail TEXT NOT NULL DEFAULT '',
	at TIMESTAMP NOT NULL
)`

const schemaPostgres = `CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	run_id TEXT NOT NULL,
	node_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	energy_ws DOUBLE PRECISION NOT NULL DEFAULT 0,
	budget_ws DOUBLE PRECISION NOT NULL DEFAULT 0,
	detail TEXT NOT NULL DEFAULT '',
	at TIMESTAMPTZ NOT NULL
)`

// Open connects to the journal database and creates the events table.
// driver is "sqlite" (dsn is a file path) or "postgres" (dsn is a
// connection string).
func Open(driver, dsn, table string) (*sql.DB, error) {
	if table == "" {
		table = DefaultTable
	}
	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case "sqlite":
		db, err = sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", dsn))
		if err == nil {
			db.SetMaxOpenConns(1)
		}
	case "postgres":
		db, err = sql.Open("postgres", dsn)
	default:
		return nil, fmt.Errorf("unsupported journal driver: %s", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := Migrate(db, driver, table); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates the events table if it does not exist.
func Migrate(db *sql.DB, driver, table string) error {
	schema := schemaSQLite
	if driver == "postgres" {
		schema = schemaPostgres
	}
	if _, err := db.Exec(fmt.Sprintf(schema, table)); err != nil {
		return fmt.Errorf("migrate %s journal: %w", driver, err)
	}
	return nil
}
