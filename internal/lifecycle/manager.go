// Package lifecycle moves a rendered source file through marking and
// relocation.
//
// Marking (renaming the source with the completion marker) is the durable
// record that a file was processed; relocation to the processed directory is
// optional and retried on later ticks when it fails. Every step degrades to a
// fallback instead of failing: rename falls back to copy-then-delete, and a
// relocation that cannot delete its source removes its own copy again so no
// second artifact is left behind.
package lifecycle

import (
	"log/slog"
	"path/filepath"

	"slowmo/internal/logging"
	"slowmo/internal/media"
	"slowmo/internal/pathutil"
	"slowmo/internal/platform"
)

// Recorder receives identities that must not be processed again this run.
type Recorder interface {
	MarkHandled(identity string)
}

// Options configures a Manager.
type Options struct {
	Marker       string
	ProcessedDir string
	FS           FS
	Platform     platform.Capabilities
	Ledger       Recorder
	Logger       *slog.Logger
}

// Manager runs the post-render state machine. It is used from the monitor's
// single goroutine only.
type Manager struct {
	marker       string
	processedDir string
	fs           FS
	platform     platform.Capabilities
	ledger       Recorder
	logger       *slog.Logger

	// stuckReported holds identities whose stuck relocation was already
	// alerted; later retries stay quiet until the file moves.
	stuckReported map[string]bool
}

// NewManager builds a Manager; a nil FS or Platform falls back to the host.
func NewManager(opts Options) *Manager {
	caps := opts.Platform
	if caps == nil {
		caps = platform.Default()
	}
	fsys := opts.FS
	if fsys == nil {
		fsys = NewOSFS(caps)
	}
	return &Manager{
		marker:       opts.Marker,
		processedDir: opts.ProcessedDir,
		fs:           fsys,
		platform:     caps,
		ledger:       opts.Ledger,
		logger:       logging.NewComponentLogger(opts.Logger, "lifecycle"),

		stuckReported: make(map[string]bool),
	}
}

// Complete takes a successfully rendered source from RENDERED to DONE.
func (m *Manager) Complete(file media.SourceFile) RelocationState {
	state := RelocationState{OriginalPath: file.Path, CurrentPath: file.Path}
	state.enter(StateRendered)
	logger := m.logger.With(logging.String(logging.FieldIdentity, file.Identity))

	state.enter(StateMarking)
	marked, ok := m.mark(logger, file, &state)
	if !ok {
		state.enter(StateDone)
		return state
	}
	state.enter(StateMarked)
	m.relocate(logger, marked, &state)
	state.enter(StateDone)
	return state
}

// Relocate re-enters the state machine at MARKED for a file that already
// carries the marker, typically one a previous tick could not move.
func (m *Manager) Relocate(file media.SourceFile) RelocationState {
	state := RelocationState{OriginalPath: file.Path, CurrentPath: file.Path, Marked: true}
	state.enter(StateMarked)
	logger := m.logger.With(logging.String(logging.FieldIdentity, file.Identity))
	m.relocate(logger, file, &state)
	state.enter(StateDone)
	return state
}

// ProcessedConfigured reports whether relocation has a destination.
func (m *Manager) ProcessedConfigured() bool {
	return m.processedDir != ""
}

func (m *Manager) mark(logger *slog.Logger, file media.SourceFile, state *RelocationState) (media.SourceFile, bool) {
	m.handle(file.Identity)

	if err := m.platform.ClearReadOnly(file.Path); err != nil {
		logger.Debug("read-only attribute not cleared", logging.String(logging.FieldPath, file.Path), logging.Error(err))
	}

	dir := filepath.Dir(file.Path)
	target, err := uniquePath(m.fs, dir, pathutil.WithMarker(file.Name, m.marker))
	if err != nil {
		m.flagUnmarked(logger, file, state, err)
		return file, false
	}

	renameErr := m.fs.Rename(file.Path, target)
	if renameErr == nil {
		marked := m.markedFile(file, target)
		state.CurrentPath = target
		state.Marked = true
		logger.Info("source marked",
			logging.String(logging.FieldEventType, "source_marked"),
			logging.String("marked_path", target),
		)
		return marked, true
	}
	logger.Debug("rename failed; falling back to copy",
		logging.String(logging.FieldPath, file.Path),
		logging.Error(renameErr),
	)

	if err := m.fs.Copy(file.Path, target); err != nil {
		m.flagUnmarked(logger, file, state, err)
		return file, false
	}
	marked := m.markedFile(file, target)
	state.CurrentPath = target
	state.Marked = true

	if err := m.fs.Remove(file.Path); err != nil {
		state.flag(AnomalyDuplicateOriginal)
		logging.WarnWithContext(logger, "marked copy created but original could not be deleted", "duplicate_original",
			logging.String(logging.FieldPath, file.Path),
			logging.String("marked_path", target),
			logging.Error(err),
			logging.Alert(string(AnomalyDuplicateOriginal)),
			logging.String(logging.FieldErrorHint, "close any program holding the file, then delete the unmarked original by hand"),
			logging.String(logging.FieldImpact, "both files remain in the input directory; the original will be rendered again after a restart"),
		)
		return marked, true
	}
	logger.Info("source marked via copy",
		logging.String(logging.FieldEventType, "source_marked"),
		logging.String("marked_path", target),
	)
	return marked, true
}

func (m *Manager) flagUnmarked(logger *slog.Logger, file media.SourceFile, state *RelocationState, err error) {
	state.flag(AnomalyUnmarked)
	logging.WarnWithContext(logger, "source could not be marked", "source_unmarked",
		logging.String(logging.FieldPath, file.Path),
		logging.Error(err),
		logging.Alert(string(AnomalyUnmarked)),
		logging.String(logging.FieldErrorHint, "check permissions on the input directory"),
		logging.String(logging.FieldImpact, "the file stays unmarked and will be rendered again after a restart"),
	)
}

// markedFile records the new identity and returns the file at its new path.
func (m *Manager) markedFile(file media.SourceFile, target string) media.SourceFile {
	marked := file
	marked.Path = target
	marked.Name = filepath.Base(target)
	marked.Ext = filepath.Ext(marked.Name)
	if identity, err := pathutil.Identity(target); err == nil {
		marked.Identity = identity
	}
	m.handle(marked.Identity)
	return marked
}

func (m *Manager) relocate(logger *slog.Logger, file media.SourceFile, state *RelocationState) {
	m.handle(file.Identity)
	if m.processedDir == "" {
		logger.Debug("no processed directory configured; marked file stays in input",
			logging.String(logging.FieldPath, file.Path),
		)
		return
	}
	state.enter(StateRelocating)

	if err := m.fs.MkdirAll(m.processedDir); err != nil {
		m.stuck(logger, file, state, "processed directory unavailable", err)
		return
	}
	dst, err := uniquePath(m.fs, m.processedDir, file.Name)
	if err != nil {
		m.stuck(logger, file, state, "no destination name in processed directory", err)
		return
	}
	if err := m.fs.Copy(file.Path, dst); err != nil {
		m.stuck(logger, file, state, "copy to processed directory failed", err)
		return
	}
	if err := m.fs.Remove(file.Path); err != nil {
		if rmErr := m.fs.Remove(dst); rmErr != nil {
			state.flag(AnomalyProcessedCopyLeft)
			logging.WarnWithContext(logger, "processed copy could not be rolled back", "processed_copy_not_removed",
				logging.String(logging.FieldPath, dst),
				logging.Error(rmErr),
				logging.Alert(string(AnomalyProcessedCopyLeft)),
				logging.String(logging.FieldErrorHint, "delete the copy in the processed directory by hand"),
				logging.String(logging.FieldImpact, "a later relocation will write a second copy under a numbered name"),
			)
		}
		m.stuck(logger, file, state, "source still locked after copy", err)
		return
	}

	state.CurrentPath = dst
	state.Relocated = true
	state.enter(StateRelocated)
	delete(m.stuckReported, file.Identity)
	logger.Info("source relocated",
		logging.String(logging.FieldEventType, "source_relocated"),
		logging.String(logging.FieldPath, dst),
	)
}

// stuck leaves the marked file in place. The stuck_marked anomaly is raised
// on the first failure per identity only; retries log at DEBUG.
func (m *Manager) stuck(logger *slog.Logger, file media.SourceFile, state *RelocationState, reason string, err error) {
	state.enter(StateStuckMarked)
	if m.stuckReported[file.Identity] {
		logger.Debug("relocation still deferred",
			logging.String(logging.FieldPath, file.Path),
			logging.String("reason", reason),
			logging.Error(err),
		)
		return
	}
	m.stuckReported[file.Identity] = true
	state.flag(AnomalyStuckMarked)
	logging.WarnWithContext(logger, "marked file left in input directory", "relocation_deferred",
		logging.String(logging.FieldPath, file.Path),
		logging.String("reason", reason),
		logging.Error(err),
		logging.Alert(string(AnomalyStuckMarked)),
		logging.String(logging.FieldErrorHint, "relocation is retried every tick; check the processed directory and file locks"),
		logging.String(logging.FieldImpact, "render is complete; only the move is pending"),
	)
}

func (m *Manager) handle(identity string) {
	if m.ledger != nil {
		m.ledger.MarkHandled(identity)
	}
}
