// Package warehouse loads validated observation snapshots into the
// PostgreSQL fact table. Loads are idempotent: the same snapshot can
// be applied any number of times with the same end state.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// LoadError reports a transaction failure. The transaction has been
// rolled back and the fact table is unchanged.
type LoadError struct {
	Key string // offending row key, empty when the failure is not row-bound
	Err error
}

func (e *LoadError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("load failed at row %s: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("load failed: %v", e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Row is one fact-table record keyed by (time, geo, coicop, unit)
type Row struct {
	Time        string // DATE, month start
	Geo         string
	Coicop      string
	Unit        string
	Value       float64
	ProcessedAt string // TIMESTAMPTZ, RFC 3339
	RawBlob     string
}

// Key returns the primary-key tuple for error reporting
func (r Row) Key() string {
	return fmt.Sprintf("%s|%s|%s|%s", r.Time, r.Geo, r.Coicop, r.Unit)
}

// Loader applies snapshots to one fact table
type Loader struct {
	db     *sql.DB
	table  string
	logger *zap.Logger
}

// NewLoader opens the warehouse connection and verifies it
func NewLoader(connStr, table string, logger *zap.Logger) (*Loader, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open warehouse connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping warehouse: %w", err)
	}
	return &Loader{db: db, table: table, logger: logger}, nil
}

func (l *Loader) Close() error {
	return l.db.Close()
}

// EnsureSchema creates the fact table and its key index if missing
func (l *Loader) EnsureSchema(ctx context.Context) error {
	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			time             DATE NOT NULL,
			geo              VARCHAR(10) NOT NULL,
			coicop           VARCHAR(10) NOT NULL,
			unit             VARCHAR(20) NOT NULL,
			value            DOUBLE PRECISION NOT NULL,
			processed_at_utc TIMESTAMPTZ NOT NULL,
			raw_blob         VARCHAR(300) NOT NULL
		)`, l.table)
	if _, err := l.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table %s: %w", l.table, err)
	}

	createIndex := fmt.Sprintf(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_key ON %s (time, geo, coicop, unit)`,
		l.table, l.table)
	if _, err := l.db.ExecContext(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create key index on %s: %w", l.table, err)
	}

	l.logger.Info("Warehouse schema ready", zap.String("table", l.table))
	return nil
}

// Load upserts the snapshot in a single transaction. Either every row
// lands or none does. Existing keys keep their row but take the new
// value, processing timestamp, and blob reference.
func (l *Loader) Load(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		l.logger.Info("Empty snapshot, nothing to load")
		return nil
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return &LoadError{Err: fmt.Errorf("failed to begin transaction: %w", err)}
	}

	upsert := fmt.Sprintf(`
		INSERT INTO %s (time, geo, coicop, unit, value, processed_at_utc, raw_blob)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (time, geo, coicop, unit) DO UPDATE SET
			value            = EXCLUDED.value,
			processed_at_utc = EXCLUDED.processed_at_utc,
			raw_blob         = EXCLUDED.raw_blob`, l.table)

	stmt, err := tx.PrepareContext(ctx, upsert)
	if err != nil {
		tx.Rollback()
		return &LoadError{Err: fmt.Errorf("failed to prepare upsert: %w", err)}
	}
	defer stmt.Close()

	for _, row := range rows {
		_, err := stmt.ExecContext(ctx,
			row.Time, row.Geo, row.Coicop, row.Unit,
			row.Value, row.ProcessedAt, row.RawBlob)
		if err != nil {
			tx.Rollback()
			return &LoadError{Key: row.Key(), Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &LoadError{Err: fmt.Errorf("failed to commit: %w", err)}
	}

	l.logger.Info("Snapshot loaded",
		zap.String("table", l.table),
		zap.Int("rows", len(rows)))
	return nil
}
