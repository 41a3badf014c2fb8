// Package store keeps named save slots in a SQLite database.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/pthm-cable/sprout/components"
	"github.com/pthm-cable/sprout/telemetry"
)

// ErrNotFound is returned when a slot does not exist.
var ErrNotFound = errors.New("save slot not found")

// Slot describes a saved game without its document.
type Slot struct {
	ID        string  `db:"id"`
	Name      string  `db:"name"`
	Tick      int64   `db:"tick"`
	Clock     float64 `db:"clock"`
	Biomass   float64 `db:"biomass"`
	CreatedAt int64   `db:"created_at"` // unix seconds
}

// Created returns the creation time.
func (s Slot) Created() time.Time {
	return time.Unix(s.CreatedAt, 0)
}

// DB wraps a SQLite connection for save slots.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS slots (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		tick INTEGER NOT NULL,
		clock REAL NOT NULL,
		biomass REAL NOT NULL,
		created_at INTEGER NOT NULL,
		document BLOB NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_slots_created ON slots(created_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Save stores a document under a new slot and returns the slot ID.
func (db *DB) Save(name string, doc *telemetry.Document) (string, error) {
	data, err := telemetry.MarshalDocument(doc)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	_, err = db.conn.Exec(
		`INSERT INTO slots (id, name, tick, clock, biomass, created_at, document)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, name, doc.Tick, doc.Environment.Clock, biomass(doc), time.Now().Unix(), data,
	)
	if err != nil {
		return "", fmt.Errorf("save slot %q: %w", name, err)
	}

	slog.Info("game saved", "slot", id, "name", name, "tick", doc.Tick, "bytes", len(data))
	return id, nil
}

// Load returns the document stored in a slot.
func (db *DB) Load(id string) (*telemetry.Document, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("slot id %q: %w", id, err)
	}

	var data []byte
	err := db.conn.Get(&data, "SELECT document FROM slots WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("slot %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load slot %s: %w", id, err)
	}
	return telemetry.UnmarshalDocument(data)
}

// List returns all slots, newest first.
func (db *DB) List() ([]Slot, error) {
	var slots []Slot
	err := db.conn.Select(&slots,
		"SELECT id, name, tick, clock, biomass, created_at FROM slots ORDER BY created_at DESC, rowid DESC",
	)
	return slots, err
}

// Delete removes a slot.
func (db *DB) Delete(id string) error {
	res, err := db.conn.Exec("DELETE FROM slots WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("slot %s: %w", id, ErrNotFound)
	}
	return nil
}

func biomass(doc *telemetry.Document) float64 {
	var total float64
	for _, kind := range components.OrganKinds {
		for _, o := range doc.Organs(kind) {
			total += o.Mass
		}
	}
	return total
}
