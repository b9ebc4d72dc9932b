package worker

// RestartOrder selects the sequencing of a worker group restart.
type RestartOrder int

const (
	// ShutdownFirst stops the old processes before starting replacements.
	// No two processes ever share a name, at the cost of a serving gap.
	ShutdownFirst RestartOrder = iota
	// StartupFirst starts replacements before retiring the old processes
	// (zero downtime). Old and new must be able to coexist; that is the
	// entry point's responsibility, not warden's.
	StartupFirst
)

const startupFirstToken = "STARTUP_FIRST"

func (o RestartOrder) String() string {
	if o == StartupFirst {
		return startupFirstToken
	}
	return "SHUTDOWN_FIRST"
}

// ParseRestartOrder decodes the trailing control-message token. Absence of
// the zero-downtime token means ShutdownFirst.
func ParseRestartOrder(s string) RestartOrder {
	if s == startupFirstToken {
		return StartupFirst
	}
	return ShutdownFirst
}
