// Package history journals every dispatch the monitor makes into a SQLite
// database under the state directory.
//
// The journal is observational. The monitor never reads it back to decide
// whether a file was processed; that decision belongs to the in-memory ledger
// and the marker in the file name.
package history

import "time"

// Entry kinds.
const (
	KindRender     = "render"
	KindRelocation = "relocation"
)

// Entry is one journaled dispatch or relocation retry.
type Entry struct {
	ID         int64
	RunID      string
	Kind       string
	SourcePath string
	Identity   string
	// Outcome is the render outcome kind for render entries and
	// "relocated" or "stuck_marked" for relocation retries.
	Outcome    string
	OutputPath string
	FinalPath  string
	Terminal   string
	Anomalies  []string
	Detail     string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Elapsed returns how long the dispatch took.
func (e Entry) Elapsed() time.Duration {
	if e.StartedAt.IsZero() || e.FinishedAt.Before(e.StartedAt) {
		return 0
	}
	return e.FinishedAt.Sub(e.StartedAt)
}

// Summary aggregates the journal.
type Summary struct {
	Total         int
	ByOutcome     map[string]int
	WithAnomalies int
	LastFinished  time.Time
}
