// Package budget implements the scan-budget accounting a StreamingReader
// consults between records. A Manager counts rows and bytes against the
// limits it was built with and can also be stopped from outside with a
// caller-chosen reason; it tracks whether a limit has been reached and
// why, so that the reader can check it at the one place it is allowed
// to: between records, never mid-record.
package budget

// Reason names why a budget stopped accepting more entries.
type Reason string

const (
	// ReasonNone means the budget has not stopped.
	ReasonNone Reason = ""
	// ReasonRowLimit means the caller-supplied row limit was reached.
	ReasonRowLimit Reason = "row_limit"
	// ReasonByteLimit means the caller-supplied byte limit was reached.
	ReasonByteLimit Reason = "byte_limit"
	// ReasonExternal means the caller stopped the budget directly, e.g.
	// in response to a deadline the cursor-budget subsystem tracks and
	// this package does not.
	ReasonExternal Reason = "external"
	// ReasonExhausted means the underlying cursor had no more entries;
	// this is the only reason reported when the budget never stopped.
	ReasonExhausted Reason = "exhausted"
)

// Manager tracks how many rows and bytes a scan has consumed against
// caller-supplied limits. A limit of 0 means unlimited for that
// dimension. Manager is owned by exactly one StreamingReader and is never
// shared across cursors.
type Manager struct {
	rowLimit  int
	byteLimit int64

	rows      int
	bytes     int64
	stopped   bool
	reason    Reason
}

// New creates a Manager with the given row and byte limits. A zero limit
// means that dimension is unbounded.
func New(rowLimit int, byteLimit int64) *Manager {
	return &Manager{rowLimit: rowLimit, byteLimit: byteLimit}
}

// TryRecord accounts for one more entry of n bytes pulled from the inner
// cursor. It never refuses the entry — the caller has already consumed
// it — it only updates whether the budget is now stopped.
func (m *Manager) TryRecord(n int64) {
	if m.stopped {
		return
	}
	m.rows++
	m.bytes += n
	if m.rowLimit > 0 && m.rows >= m.rowLimit {
		m.stopped = true
		m.reason = ReasonRowLimit
		return
	}
	if m.byteLimit > 0 && m.bytes >= m.byteLimit {
		m.stopped = true
		m.reason = ReasonByteLimit
	}
}

// Stop marks the budget stopped for an externally observed reason, such
// as a deadline the caller's own cursor-budget subsystem tracks.
func (m *Manager) Stop(reason Reason) {
	if m.stopped {
		return
	}
	m.stopped = true
	m.reason = reason
}

// IsStopped reports whether the budget has been exceeded or externally
// stopped.
func (m *Manager) IsStopped() bool {
	return m.stopped
}

// StoppedReason returns why the budget stopped, or ReasonNone if it has
// not.
func (m *Manager) StoppedReason() Reason {
	return m.reason
}

// Rows returns the number of entries recorded so far.
func (m *Manager) Rows() int {
	return m.rows
}

// Bytes returns the number of bytes recorded so far.
func (m *Manager) Bytes() int64 {
	return m.bytes
}
