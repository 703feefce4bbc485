package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Miminimi234/lawl/normalize"
)

// DefaultBatchSize is the number of records per transaction when none is
// configured.
const DefaultBatchSize = 500

// LoadCounts tallies a load run. Counts only advance when a batch commits,
// so they always describe durably visible rows.
type LoadCounts struct {
	Seen             int
	Inserted         int
	DuplicateSkipped int
}

// Loader is the sole write path into the store. It accumulates records and
// commits them in atomic batches: a crash or cancellation mid-batch leaves
// previously committed batches intact and the in-flight batch invisible.
type Loader struct {
	store     *Store
	batchSize int
	buf       []normalize.Record
	counts    LoadCounts
}

// NewLoader creates a Loader writing to s in batches of batchSize
// (DefaultBatchSize when <= 0).
func NewLoader(s *Store, batchSize int) *Loader {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Loader{
		store:     s,
		batchSize: batchSize,
		buf:       make([]normalize.Record, 0, batchSize),
	}
}

// Add buffers one record, flushing a full batch. Records with an empty
// identifier are rejected: the identifier is the store's primary key.
func (l *Loader) Add(ctx context.Context, rec normalize.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("store: record without identifier (raw_path=%s)", rec.RawPath)
	}
	l.buf = append(l.buf, rec)
	if len(l.buf) >= l.batchSize {
		return l.Flush(ctx)
	}
	return nil
}

// Flush commits all buffered records in one transaction. Existing
// identifiers are left unchanged (INSERT OR IGNORE): re-ingesting a loaded
// dataset is a fast no-op, counted as duplicates. On error the batch is
// rolled back and the error carries the committed-so-far counts so a
// resumed run can be assessed.
func (l *Loader) Flush(ctx context.Context) error {
	if len(l.buf) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("store: load cancelled after %d inserted, %d duplicate: %w",
			l.counts.Inserted, l.counts.DuplicateSkipped, err)
	}

	batch := l.buf
	var inserted, duplicate int
	err := l.store.RunTx(ctx, func(tx *sql.Tx) error {
		// Recompute per attempt: RunTx may re-run fn on SQLITE_BUSY.
		inserted, duplicate = 0, 0
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO cases
			(id, court, citation, decision_date, title, jurisdiction,
			 reporter, case_type, raw_path, full_text_available)
			VALUES (?,?,?,?,?,?,?,?,?,?)`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, rec := range batch {
			res, err := stmt.ExecContext(ctx,
				rec.ID,
				nullable(rec.Court),
				nullable(rec.Citation),
				nullable(rec.DecisionDate),
				nullable(rec.Title),
				nullable(rec.Jurisdiction),
				nullable(rec.Reporter),
				nullable(rec.CaseType),
				nullable(rec.RawPath),
				boolInt(rec.FullText),
			)
			if err != nil {
				return fmt.Errorf("insert case %s: %w", rec.ID, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				inserted++
			} else {
				duplicate++
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: batch failed after %d inserted, %d duplicate committed: %w",
			l.counts.Inserted, l.counts.DuplicateSkipped, err)
	}

	l.counts.Seen += len(batch)
	l.counts.Inserted += inserted
	l.counts.DuplicateSkipped += duplicate
	l.buf = l.buf[:0]
	return nil
}

// Counts returns the committed totals so far.
func (l *Loader) Counts() LoadCounts { return l.counts }

// nullable maps empty strings to NULL so optional canonical fields stay
// genuinely absent in the store.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
