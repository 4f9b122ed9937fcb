// Package postgres implements the engine's persistent store on PostgreSQL.
//
// Three tables back the three entities: campaign_schedules,
// campaign_metrics, and notification_logs. The notification_status column is
// a fixed-shape JSONB document updated only through UpdateNotification's
// read-modify-write, which runs inside a transaction with a row lock so
// concurrent stage operations on the same schedule serialize.
package postgres

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
)

// Store provides typed operations on schedules, metrics, and logs.
type Store struct {
	db *sql.DB
}

// NewStore creates a Postgres-backed store.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// Open connects to Postgres and configures the bounded pool.
func Open(url string, maxOpen, maxIdle int) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}
