package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Miminimi234/lawl/normalize"
)

// Store wraps the SQLite case database.
type Store struct {
	db *sql.DB
}

// DB exposes the underlying handle for read-only reporting tools.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS cases (
    id                  TEXT PRIMARY KEY,
    court               TEXT,
    citation            TEXT,
    decision_date       TEXT,
    title               TEXT,
    jurisdiction        TEXT,
    reporter            TEXT,
    case_type           TEXT,
    raw_path            TEXT,
    full_text_available INTEGER DEFAULT 0,
    inserted_at         TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_cases_date         ON cases(decision_date);
CREATE INDEX IF NOT EXISTS idx_cases_court        ON cases(court);
CREATE INDEX IF NOT EXISTS idx_cases_citation     ON cases(citation);
CREATE INDEX IF NOT EXISTS idx_cases_jurisdiction ON cases(jurisdiction);
CREATE INDEX IF NOT EXISTS idx_cases_type         ON cases(case_type);
`
	_, err := s.db.Exec(ddl)
	return err
}

// Count returns the number of case rows.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cases").Scan(&n)
	return n, err
}

// Has reports whether a case with the given identifier exists.
func (s *Store) Has(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM cases WHERE id = ?", id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// Get returns the case with the given identifier, or (nil, nil) if absent.
func (s *Store) Get(ctx context.Context, id string) (*normalize.Record, error) {
	row := s.db.QueryRowContext(ctx, selectCols+" FROM cases WHERE id = ?", id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ByCourt returns up to limit cases for an exact court name.
func (s *Store) ByCourt(ctx context.Context, court string, limit int) ([]normalize.Record, error) {
	return s.query(ctx, selectCols+" FROM cases WHERE court = ? ORDER BY decision_date LIMIT ?", court, limit)
}

// ByCitation returns cases matching an exact citation.
func (s *Store) ByCitation(ctx context.Context, cite string) ([]normalize.Record, error) {
	return s.query(ctx, selectCols+" FROM cases WHERE citation = ?", cite)
}

// ByDateRange returns up to limit cases decided in [from, to], inclusive.
// Dates are ISO strings, so lexicographic range predicates are correct.
func (s *Store) ByDateRange(ctx context.Context, from, to string, limit int) ([]normalize.Record, error) {
	return s.query(ctx,
		selectCols+" FROM cases WHERE decision_date >= ? AND decision_date <= ? ORDER BY decision_date LIMIT ?",
		from, to, limit)
}

// CourtCount is one row of the per-court breakdown.
type CourtCount struct {
	Court string
	Count int64
}

// Stats summarizes the finished store for offline reporting.
type Stats struct {
	TotalCases int64
	MinDate    string
	MaxDate    string
	TopCourts  []CourtCount
}

// Stats computes row counts, the decision date range, and the per-court
// breakdown. Everything is answerable from the local file; no network.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cases").Scan(&st.TotalCases); err != nil {
		return nil, fmt.Errorf("store: count: %w", err)
	}

	var minDate, maxDate sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT MIN(decision_date), MAX(decision_date) FROM cases WHERE decision_date IS NOT NULL").
		Scan(&minDate, &maxDate)
	if err != nil {
		return nil, fmt.Errorf("store: date range: %w", err)
	}
	st.MinDate, st.MaxDate = minDate.String, maxDate.String

	rows, err := s.db.QueryContext(ctx, `
		SELECT court, COUNT(*) AS cnt
		FROM cases
		WHERE court IS NOT NULL
		GROUP BY court
		ORDER BY cnt DESC
		LIMIT 5`)
	if err != nil {
		return nil, fmt.Errorf("store: court counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var cc CourtCount
		if err := rows.Scan(&cc.Court, &cc.Count); err != nil {
			return nil, err
		}
		st.TopCourts = append(st.TopCourts, cc)
	}
	return st, rows.Err()
}

const selectCols = `SELECT id, court, citation, decision_date, title,
	jurisdiction, reporter, case_type, raw_path, full_text_available`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*normalize.Record, error) {
	var rec normalize.Record
	var court, citation, date, title, jurisdiction, reporter, caseType, rawPath sql.NullString
	var fullText sql.NullInt64
	err := row.Scan(&rec.ID, &court, &citation, &date, &title,
		&jurisdiction, &reporter, &caseType, &rawPath, &fullText)
	if err != nil {
		return nil, err
	}
	rec.Court = court.String
	rec.Citation = citation.String
	rec.DecisionDate = date.String
	rec.Title = title.String
	rec.Jurisdiction = jurisdiction.String
	rec.Reporter = reporter.String
	rec.CaseType = caseType.String
	rec.RawPath = rawPath.String
	rec.FullText = fullText.Int64 != 0
	return &rec, nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]normalize.Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []normalize.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}
