package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/maquette/dbopen"
	"github.com/hazyhaar/maquette/idgen"
)

// ErrNotFound is returned when a report id does not exist.
var ErrNotFound = errors.New("report: not found")

// Schema for the reports table.
const Schema = `
CREATE TABLE IF NOT EXISTS reports (
	id TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL,
	source_ref TEXT NOT NULL,
	implementation_url TEXT NOT NULL,
	aggregate REAL NOT NULL,
	payload TEXT NOT NULL,
	screenshot BLOB
);
CREATE INDEX IF NOT EXISTS idx_reports_created ON reports(created_at);
`

// Store persists reports in SQLite.
type Store struct {
	db    *sql.DB
	newID idgen.Generator
}

// NewStore creates a Store on an opened database (see dbopen) and applies
// the schema.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("report: apply schema: %w", err)
	}
	return &Store{db: db, newID: idgen.Prefixed("rep_", idgen.Default)}, nil
}

// Insert persists a report, assigning its ID and CreatedAt.
func (s *Store) Insert(ctx context.Context, r *Report) error {
	if r.Result == nil {
		return fmt.Errorf("report: insert without result")
	}
	r.ID = s.newID()
	r.CreatedAt = time.Now().UTC()

	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("report: marshal payload: %w", err)
	}

	_, err = dbopen.Exec(ctx, s.db,
		`INSERT INTO reports (id, created_at, source_ref, implementation_url, aggregate, payload, screenshot)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CreatedAt.Unix(), r.SourceRef, r.ImplementationURL,
		r.Result.Aggregate, string(payload), r.Screenshot)
	if err != nil {
		return fmt.Errorf("report: insert: %w", err)
	}
	return nil
}

// Get loads one report by id.
func (s *Store) Get(ctx context.Context, id string) (*Report, error) {
	var payload string
	var screenshot []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, screenshot FROM reports WHERE id = ?`, id).
		Scan(&payload, &screenshot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("report: get %s: %w", id, err)
	}

	var r Report
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, fmt.Errorf("report: decode %s: %w", id, err)
	}
	r.Screenshot = screenshot
	return &r, nil
}

// Summary is one row of a report listing.
type Summary struct {
	ID                string    `json:"id"`
	CreatedAt         time.Time `json:"created_at"`
	SourceRef         string    `json:"source_ref"`
	ImplementationURL string    `json:"implementation_url"`
	Aggregate         float64   `json:"aggregate"`
}

// List returns the newest reports, most recent first.
func (s *Store) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, source_ref, implementation_url, aggregate
		 FROM reports ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("report: list: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var ts int64
		if err := rows.Scan(&sum.ID, &ts, &sum.SourceRef, &sum.ImplementationURL, &sum.Aggregate); err != nil {
			return nil, fmt.Errorf("report: scan: %w", err)
		}
		sum.CreatedAt = time.Unix(ts, 0).UTC()
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Cleanup deletes reports older than the retention window. Returns the
// number removed.
func (s *Store) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).Unix()
	res, err := dbopen.Exec(ctx, s.db, `DELETE FROM reports WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("report: cleanup: %w", err)
	}
	return res.RowsAffected()
}
