// Package ledger records which file identities the monitor has already taken
// responsibility for during the current process lifetime.
//
// The ledger is deliberately in-memory: after a restart, correctness relies on
// the completion marker persisted in file names, which the scanner detects.
package ledger

// Ledger is a set of handled identities. It is not safe for concurrent use;
// the monitor loop is its only writer.
type Ledger struct {
	handled map[string]struct{}
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{handled: make(map[string]struct{})}
}

// MarkHandled records identity as handled. Marking twice is a no-op.
func (l *Ledger) MarkHandled(identity string) {
	if identity == "" {
		return
	}
	l.handled[identity] = struct{}{}
}

// IsHandled reports whether identity has been marked.
func (l *Ledger) IsHandled(identity string) bool {
	_, ok := l.handled[identity]
	return ok
}

// Forget removes identity so a later scan may select the file again.
func (l *Ledger) Forget(identity string) {
	delete(l.handled, identity)
}

// Len returns the number of handled identities.
func (l *Ledger) Len() int {
	return len(l.handled)
}
