package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists journal entries in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or connects to the journal database at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("history path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record inserts entry and returns its row ID.
func (s *Store) Record(ctx context.Context, entry Entry) (int64, error) {
	if strings.TrimSpace(entry.Kind) == "" {
		return 0, errors.New("history entry kind is required")
	}
	anomalies, err := encodeAnomalies(entry.Anomalies)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO dispatches (
            run_id, kind, source_path, identity, outcome, output_path, final_path,
            terminal_state, anomalies_json, detail, started_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID,
		entry.Kind,
		entry.SourcePath,
		entry.Identity,
		entry.Outcome,
		nullableString(entry.OutputPath),
		nullableString(entry.FinalPath),
		nullableString(entry.Terminal),
		anomalies,
		nullableString(entry.Detail),
		formatTime(entry.StartedAt),
		formatTime(entry.FinishedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert history entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// Recent returns up to limit entries, newest first. A non-positive limit
// returns every entry.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT id, run_id, kind, source_path, identity, outcome, output_path, final_path,
            terminal_state, anomalies_json, detail, started_at, finished_at
        FROM dispatches ORDER BY finished_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

// Summary aggregates the whole journal.
func (s *Store) Summary(ctx context.Context) (Summary, error) {
	summary := Summary{ByOutcome: make(map[string]int)}
	rows, err := s.db.QueryContext(ctx, `SELECT outcome, COUNT(1) FROM dispatches GROUP BY outcome`)
	if err != nil {
		return summary, fmt.Errorf("query history summary: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return summary, fmt.Errorf("scan history summary: %w", err)
		}
		summary.ByOutcome[outcome] = count
		summary.Total += count
	}
	if err := rows.Err(); err != nil {
		return summary, fmt.Errorf("iterate history summary: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM dispatches WHERE anomalies_json IS NOT NULL`,
	).Scan(&summary.WithAnomalies); err != nil {
		return summary, fmt.Errorf("count anomalies: %w", err)
	}

	var last sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(finished_at) FROM dispatches`).Scan(&last); err != nil {
		return summary, fmt.Errorf("read last dispatch: %w", err)
	}
	if last.Valid {
		summary.LastFinished = parseTime(last.String)
	}
	return summary, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		entry                                  Entry
		output, final, terminal, anomalies, dt sql.NullString
		started, finished                      string
	)
	if err := row.Scan(
		&entry.ID,
		&entry.RunID,
		&entry.Kind,
		&entry.SourcePath,
		&entry.Identity,
		&entry.Outcome,
		&output,
		&final,
		&terminal,
		&anomalies,
		&dt,
		&started,
		&finished,
	); err != nil {
		return Entry{}, fmt.Errorf("scan history entry: %w", err)
	}
	entry.OutputPath = output.String
	entry.FinalPath = final.String
	entry.Terminal = terminal.String
	entry.Detail = dt.String
	entry.StartedAt = parseTime(started)
	entry.FinishedAt = parseTime(finished)
	if anomalies.Valid && anomalies.String != "" {
		if err := json.Unmarshal([]byte(anomalies.String), &entry.Anomalies); err != nil {
			return Entry{}, fmt.Errorf("decode anomalies for entry %d: %w", entry.ID, err)
		}
	}
	return entry, nil
}

func encodeAnomalies(anomalies []string) (sql.NullString, error) {
	if len(anomalies) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(anomalies)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode anomalies: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullableString(value string) sql.NullString {
	if strings.TrimSpace(value) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

// timeLayout is fixed-width so ORDER BY and MAX over the text column follow
// chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
