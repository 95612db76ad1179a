package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"guard.share/internal/models"
)

var _ Log = (*SQLiteLog)(nil)

// SQLiteLog persists the audit trail so it survives restarts and can be
// mined for incident response.
type SQLiteLog struct {
	db     *sql.DB
	logger *log.Logger
}

// NewSQLiteLog opens (or creates) the audit database at dbPath.
func NewSQLiteLog(dbPath string, logger *log.Logger) (*SQLiteLog, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	// WAL mode for concurrent readers under write load
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	if logger == nil {
		logger = log.Default()
	}
	return &SQLiteLog{db: db, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS access_audit (
		id TEXT PRIMARY KEY,
		share_token TEXT NOT NULL DEFAULT '',
		origin_key TEXT NOT NULL,
		operation TEXT NOT NULL,
		outcome TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		timestamp DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON access_audit(timestamp);
	CREATE INDEX IF NOT EXISTS idx_audit_origin ON access_audit(origin_key, timestamp);
	`

	_, err := db.Exec(schema)
	return err
}

// Record appends one entry. A failed insert is logged and swallowed: the
// access decision must reach the caller even when the sink is down.
func (l *SQLiteLog) Record(ctx context.Context, entry models.AuditEntry) {
	query := `INSERT INTO access_audit (id, share_token, origin_key, operation, outcome, reason, timestamp)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := l.db.ExecContext(ctx, query,
		entry.ID, entry.ShareToken, entry.OriginKey, entry.Operation,
		string(entry.Outcome), string(entry.Reason), entry.Timestamp)
	if err != nil {
		l.logger.Printf("lvl=error msg=\"audit write failed\" origin=%s outcome=%s err=%q",
			entry.OriginKey, entry.Outcome, err)
	}
}

func (l *SQLiteLog) Since(ctx context.Context, cutoff time.Time) ([]models.AuditEntry, error) {
	query := `SELECT id, share_token, origin_key, operation, outcome, reason, timestamp
	          FROM access_audit WHERE timestamp >= ? ORDER BY timestamp`
	rows, err := l.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("audit query failed: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var outcome, reason string
		if err := rows.Scan(&e.ID, &e.ShareToken, &e.OriginKey, &e.Operation,
			&outcome, &reason, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Outcome = models.Outcome(outcome)
		e.Reason = models.DenyReason(reason)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (l *SQLiteLog) CountByOrigin(ctx context.Context, originKey string, cutoff time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM access_audit WHERE origin_key = ? AND timestamp >= ?`
	var count int
	if err := l.db.QueryRowContext(ctx, query, originKey, cutoff).Scan(&count); err != nil {
		return 0, fmt.Errorf("audit count failed: %w", err)
	}
	return count, nil
}

func (l *SQLiteLog) Close() error {
	return l.db.Close()
}
