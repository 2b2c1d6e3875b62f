package lifecycle

// State is a step of the post-render file lifecycle.
type State int

const (
	StateRendered State = iota
	StateMarking
	StateMarked
	StateRelocating
	StateRelocated
	StateStuckMarked
	StateDone
)

func (s State) String() string {
	switch s {
	case StateRendered:
		return "rendered"
	case StateMarking:
		return "marking"
	case StateMarked:
		return "marked"
	case StateRelocating:
		return "relocating"
	case StateRelocated:
		return "relocated"
	case StateStuckMarked:
		return "stuck_marked"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Anomaly names a condition an operator should look at. Anomalies never stop
// the monitor; they are logged with an alert attribute and journaled.
type Anomaly string

const (
	// AnomalyDuplicateOriginal: the marked copy exists but the unmarked
	// original could not be deleted, so both remain in the input directory.
	AnomalyDuplicateOriginal Anomaly = "duplicate_original"
	// AnomalyUnmarked: neither rename nor copy produced a marked file. The
	// source will be picked up again after a restart.
	AnomalyUnmarked Anomaly = "unmarked"
	// AnomalyStuckMarked: the marked file could not be moved to the processed
	// directory this time. Relocation is retried on later ticks.
	AnomalyStuckMarked Anomaly = "stuck_marked"
	// AnomalyProcessedCopyLeft: relocation could neither delete the input
	// file nor roll back its copy in the processed directory.
	AnomalyProcessedCopyLeft Anomaly = "processed_copy_not_removed"
)

// RelocationState tracks one rendered file through marking and relocation.
// It is discarded once the file reaches StateDone; the marker suffix in the
// file name is the only durable record.
type RelocationState struct {
	OriginalPath string
	CurrentPath  string
	Marked       bool
	Relocated    bool
	// Terminal is the last meaningful state before StateDone: StateRelocated,
	// StateStuckMarked, StateMarked (no processed directory configured) or
	// StateMarking (marking unresolved).
	Terminal  State
	Anomalies []Anomaly
	Trail     []State
}

func (r *RelocationState) enter(s State) {
	r.Trail = append(r.Trail, s)
	if s != StateDone {
		r.Terminal = s
	}
}

func (r *RelocationState) flag(a Anomaly) {
	r.Anomalies = append(r.Anomalies, a)
}

// HasAnomaly reports whether a was raised while processing.
func (r RelocationState) HasAnomaly(a Anomaly) bool {
	for _, got := range r.Anomalies {
		if got == a {
			return true
		}
	}
	return false
}
