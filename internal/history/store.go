// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package history records conversion outcomes in a SQLite database so past
// batches can be listed: file name, conversion time, status and image counts.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/pdf2md/pkg/types"
)

const (
	dbFile       = "history.db"
	defaultLimit = 20

	// timeLayout has fixed width so stored timestamps sort as text.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// ErrNoDir is returned when the history directory is not configured.
var ErrNoDir = errors.New("history directory is not set")

// Store manages the history database.
type Store struct {
	db *sql.DB
}

// Entry is one recorded document outcome.
type Entry struct {
	BatchID string
	types.DocumentSummary
}

// Query filters Recent. Zero values match everything; Limit defaults to 20.
type Query struct {
	Limit    int
	Status   types.ConversionStatus
	Document string
	Since    time.Time
}

// Totals aggregates the whole history.
type Totals struct {
	Batches   int
	Documents int
	Converted int
	Failed    int
	Images    int
}

// NewStore opens or creates dir/history.db and its schema.
func NewStore(cfg types.HistoryConfig) (*Store, error) {
	if cfg.Dir == "" {
		return nil, ErrNoDir
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	dbPath := filepath.Join(cfg.Dir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS conversions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			batch_id TEXT NOT NULL,
			document_id TEXT NOT NULL,
			source TEXT NOT NULL,
			output TEXT,
			status TEXT NOT NULL,
			error TEXT,
			pages INTEGER,
			images INTEGER,
			image_source TEXT,
			inline_images INTEGER,
			appended_images INTEGER,
			duration_ms INTEGER,
			converted_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversions_converted_at ON conversions(converted_at)`,
		`CREATE INDEX IF NOT EXISTS idx_conversions_document ON conversions(document_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Record appends one document outcome to the history.
func (s *Store) Record(ctx context.Context, batchID string, sum types.DocumentSummary) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversions (batch_id, document_id, source, output, status, error,
			pages, images, image_source, inline_images, appended_images, duration_ms, converted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		batchID, sum.ID, sum.Source, sum.Output, string(sum.Status), sum.Error,
		sum.Pages, sum.Images, string(sum.ImageSource), sum.Inline, sum.Appended,
		sum.Duration.Milliseconds(), sum.ConvertedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("recording %s: %w", sum.ID, err)
	}
	return nil
}

// Recent returns matching entries, newest first.
func (s *Store) Recent(ctx context.Context, q Query) ([]Entry, error) {
	var qb strings.Builder
	var args []any
	qb.WriteString(`SELECT batch_id, document_id, source, output, status, error,
		pages, images, image_source, inline_images, appended_images, duration_ms, converted_at
		FROM conversions WHERE 1=1`)
	if q.Status != "" {
		qb.WriteString(` AND status = ?`)
		args = append(args, string(q.Status))
	}
	if q.Document != "" {
		qb.WriteString(` AND document_id LIKE ?`)
		args = append(args, "%"+q.Document+"%")
	}
	if !q.Since.IsZero() {
		qb.WriteString(` AND converted_at >= ?`)
		args = append(args, q.Since.UTC().Format(timeLayout))
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	qb.WriteString(` ORDER BY converted_at DESC, id DESC LIMIT ?`)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                   Entry
			status, imageSource string
			output, errText     sql.NullString
			durationMS          int64
			convertedAt         string
		)
		if err := rows.Scan(
			&e.BatchID, &e.ID, &e.Source, &output, &status, &errText,
			&e.Pages, &e.Images, &imageSource, &e.Inline, &e.Appended, &durationMS, &convertedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		e.Output = output.String
		e.Error = errText.String
		e.Status = types.ConversionStatus(status)
		e.ImageSource = types.ImageSource(imageSource)
		e.Duration = time.Duration(durationMS) * time.Millisecond
		if t, err := time.Parse(timeLayout, convertedAt); err == nil {
			e.ConvertedAt = t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Totals summarizes every recorded conversion.
func (s *Store) Totals(ctx context.Context) (Totals, error) {
	var t Totals
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT batch_id), COUNT(*),
			COALESCE(SUM(status = ?), 0), COALESCE(SUM(status = ?), 0),
			COALESCE(SUM(images), 0)
		 FROM conversions`,
		string(types.ConversionDone), string(types.ConversionFailed),
	).Scan(&t.Batches, &t.Documents, &t.Converted, &t.Failed, &t.Images)
	if err != nil {
		return Totals{}, fmt.Errorf("summing history: %w", err)
	}
	return t, nil
}

// Prune deletes entries converted before cutoff and returns how many were
// removed. A zero cutoff clears the history.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if cutoff.IsZero() {
		res, err = s.db.ExecContext(ctx, `DELETE FROM conversions`)
	} else {
		res, err = s.db.ExecContext(ctx, `DELETE FROM conversions WHERE converted_at < ?`,
			cutoff.UTC().Format(timeLayout))
	}
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}
	return res.RowsAffected()
}
