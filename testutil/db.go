// Package testutil provides shared helpers for integration tests.
// Helpers in this package skip automatically when required environment
// variables are not set, so unit tests can run without a running database.
package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver for database/sql
	"github.com/pressly/goose/v3"

	"github.com/wayfare/backend/migrations"
)

// NewPool opens a *pgxpool.Pool connected to the database specified by the
// TEST_DATABASE_URL environment variable.
//
// The test is skipped automatically if TEST_DATABASE_URL is not set, so
// integration tests are opt-in and never break CI environments that lack a DB.
// The pool is closed automatically when the test (and all its subtests) finish.
func NewPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := requireDSN(t)

	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("testutil.NewPool: open pool: %v", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		t.Fatalf("testutil.NewPool: ping: %v", err)
	}

	t.Cleanup(pool.Close)
	return pool
}

// NewSQLDB opens a *sql.DB connected to the database specified by the
// TEST_DATABASE_URL environment variable using the pgx database/sql driver.
// The connection is closed automatically when the test finishes.
func NewSQLDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := requireDSN(t)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("testutil.NewSQLDB: open: %v", err)
	}

	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		t.Fatalf("testutil.NewSQLDB: ping: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// MustOpenSQLDB opens a *sql.DB for the given DSN and panics on any error.
// Use this in TestMain functions where no *testing.T is available.
// Callers are responsible for closing the returned *sql.DB.
func MustOpenSQLDB(dsn string) *sql.DB {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		panic("testutil.MustOpenSQLDB: open: " + err.Error())
	}
	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		panic("testutil.MustOpenSQLDB: ping: " + err.Error())
	}
	return db
}

// MustMigrate applies every embedded migration to the given database,
// panicking on failure. Call it once from TestMain before running
// integration tests.
func MustMigrate(db *sql.DB) {
	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		panic("testutil.MustMigrate: provider: " + err.Error())
	}
	if _, err := provider.Up(context.Background()); err != nil {
		panic("testutil.MustMigrate: up: " + err.Error())
	}
}

// BeginTx opens a transaction that is rolled back when the test finishes.
// Running each test inside its own rolled-back transaction keeps tests
// isolated without truncating tables between runs.
func BeginTx(t *testing.T, pool *pgxpool.Pool) pgx.Tx {
	t.Helper()

	tx, err := pool.Begin(context.Background())
	if err != nil {
		t.Fatalf("testutil.BeginTx: begin: %v", err)
	}
	t.Cleanup(func() { _ = tx.Rollback(context.Background()) })
	return tx
}

// InsertTrip inserts a minimal trip row for the given owner directly via SQL,
// bypassing the repo layer, and returns its id. The seq column is assigned by
// the insert trigger.
func InsertTrip(t *testing.T, tx pgx.Tx, ownerID uuid.UUID) uuid.UUID {
	t.Helper()

	id := uuid.New()
	_, err := tx.Exec(context.Background(), `
		INSERT INTO trips (id, owner_id, origin, destination, mode, status, departure_at, travelers)
		VALUES ($1, $2, 'Lisbon', 'Porto', 'car', 'planning', $3, '{}')`,
		id, ownerID, time.Now().UTC().Add(24*time.Hour))
	if err != nil {
		t.Fatalf("testutil.InsertTrip: %v", err)
	}
	return id
}

// InsertExpense inserts an expense row for the given trip directly via SQL
// and returns its id. The trip total trigger fires as it would in production.
func InsertExpense(t *testing.T, tx pgx.Tx, tripID uuid.UUID, amount string) uuid.UUID {
	t.Helper()

	id := uuid.New()
	_, err := tx.Exec(context.Background(), `
		INSERT INTO expenses (id, trip_id, owner_id, description, amount, category, expense_date)
		SELECT $1, t.id, t.owner_id, 'fuel stop', CAST($2 AS numeric), 'transport', CURRENT_DATE
		FROM trips t
		WHERE t.id = $3`,
		id, amount, tripID)
	if err != nil {
		t.Fatalf("testutil.InsertExpense: %v", err)
	}
	return id
}

// requireDSN returns the TEST_DATABASE_URL environment variable value,
// skipping the test if it is not set.
func requireDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping integration test")
	}
	return dsn
}
