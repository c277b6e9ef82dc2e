package vm

// Status is a node's runtime condition as reconstructed from its handle
// files.
type Status int

const (
	StatusStopped Status = iota // No handle files
	StatusRunning               // Port, pid and uuid recorded, process alive
	StatusPartial               // Some handle files missing
	StatusStale                 // Pid recorded but the process is gone
)

func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusRunning:
		return "running"
	case StatusPartial:
		return "partial"
	case StatusStale:
		return "stale"
	default:
		return "unknown"
	}
}

// Drift reports whether the status needs operator attention.
func (s Status) Drift() bool {
	return s == StatusPartial || s == StatusStale
}

// Status reports the node's condition. Unreadable handle files are
// returned as diagnostics; the status is computed from what could be read.
func (m *Manager) Status(name string) (Status, []error) {
	h, diags := m.cfg.Store.Handle(name)

	switch {
	case h.Empty() && len(diags) == 0:
		return StatusStopped, nil
	case h.PID != nil && !m.cfg.Killer.Alive(*h.PID):
		return StatusStale, diags
	case h.Complete() && len(diags) == 0:
		return StatusRunning, nil
	default:
		return StatusPartial, diags
	}
}
