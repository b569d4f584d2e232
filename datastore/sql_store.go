package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// dialect captures what differs between the SQL backends.
type dialect struct {
	name              string
	numberedParams    bool
	isUniqueViolation func(error) bool
}

// SQLStore implements DeliveryStore on database/sql. Records live in
// delivery_records, keyed by order_id; send attempts in delivery_attempts.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	// Serializes record writes so the order_id check and insert never interleave.
	writeMu sync.Mutex
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS delivery_records (
		order_id     TEXT PRIMARY KEY,
		id           TEXT NOT NULL,
		title        TEXT NOT NULL,
		plan_months  INTEGER NOT NULL,
		delivered_at BIGINT NOT NULL,
		success      BOOLEAN NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS delivery_attempts (
		id            TEXT PRIMARY KEY,
		order_id      TEXT NOT NULL,
		created_at    BIGINT NOT NULL,
		status        TEXT NOT NULL,
		error_message TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_delivery_attempts_order_id ON delivery_attempts (order_id)`,
}

func newSQLStore(db *sql.DB, d dialect) *SQLStore {
	return &SQLStore{db: db, dialect: d}
}

func (s *SQLStore) ensureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply %s schema: %w", s.dialect.name, err)
		}
	}
	return nil
}

// rebind turns ? placeholders into $n for dialects that need numbered params.
func (s *SQLStore) rebind(query string) string {
	if !s.dialect.numberedParams {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$")
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Close closes the database handle.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

var _ DeliveryStore = (*SQLStore)(nil)
