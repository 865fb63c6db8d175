package durable

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a Store backed by a SQLite database, one row per journal
// record. SQLite serializes writes, which makes each append atomic with
// respect to crashes.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a journal database at the given path.
// The schema is created automatically on first use.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS journal (
		session_id  TEXT    NOT NULL,
		seq         INTEGER NOT NULL,
		kind        TEXT    NOT NULL,
		name        TEXT    NOT NULL,
		payload     BLOB,
		failed      INTEGER NOT NULL DEFAULT 0,
		error       TEXT    NOT NULL DEFAULT '',
		recorded_at TEXT    NOT NULL,
		PRIMARY KEY (session_id, seq)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Append(sessionID string, rec Record) error {
	_, err := s.db.Exec(
		`INSERT INTO journal (session_id, seq, kind, name, payload, failed, error, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, rec.Seq, string(rec.Kind), rec.Name, []byte(rec.Payload),
		boolToInt(rec.Failed), rec.Error, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("append record %d for %s: %w", rec.Seq, sessionID, err)
	}
	return nil
}

func (s *SQLiteStore) Load(sessionID string) ([]Record, error) {
	rows, err := s.db.Query(
		`SELECT seq, kind, name, payload, failed, error
		 FROM journal WHERE session_id = ? ORDER BY seq`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("load journal for %s: %w", sessionID, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var kind string
		var payload []byte
		var failed int
		if err := rows.Scan(&rec.Seq, &kind, &rec.Name, &payload, &failed, &rec.Error); err != nil {
			return nil, fmt.Errorf("scan record for %s: %w", sessionID, err)
		}
		rec.Kind = RecordKind(kind)
		rec.Payload = payload
		rec.Failed = failed != 0
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal for %s: %w", sessionID, err)
	}
	return records, nil
}

func (s *SQLiteStore) Sessions() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT session_id FROM journal ORDER BY session_id`)
	if err != nil {
		return nil, fmt.Errorf("list journaled sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) Remove(sessionID string) error {
	_, err := s.db.Exec(`DELETE FROM journal WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("remove journal for %s: %w", sessionID, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
