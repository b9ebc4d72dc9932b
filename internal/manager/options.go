package manager

// manageConfig carries the per-group policy flags for Manage. The defaults
// match a durable, tracked, auto-started single-process group.
type manageConfig struct {
	workers     int
	restartable bool
	tracked     bool
	autoStart   bool
	transient   bool
	deferStart  bool
}

func defaultManageConfig() manageConfig {
	return manageConfig{workers: 1, tracked: true, autoStart: true}
}

// Option adjusts one policy flag of a managed worker group.
type Option func(*manageConfig)

// Workers sets the replica count of the group.
func Workers(n int) Option { return func(c *manageConfig) { c.workers = n } }

// Restartable marks the group as restartable via Restart and the monitor
// loop.
func Restartable() Option { return func(c *manageConfig) { c.restartable = true } }

// Untracked allows the group to be removed at runtime with RemoveWorker.
func Untracked() Option { return func(c *manageConfig) { c.tracked = false } }

// NoAutoStart registers the group without spawning its processes; the
// caller starts them later through the returned Worker.
func NoAutoStart() Option { return func(c *manageConfig) { c.autoStart = false } }

// Transient places the group in the transient registry, making it subject
// to Scale. Transient groups must also be Restartable.
func Transient() Option { return func(c *manageConfig) { c.transient = true } }

// deferStart keeps auto-start semantics but postpones the spawn to Serve.
// Used for the server fleet, which is registered at construction time.
func deferStart() Option { return func(c *manageConfig) { c.deferStart = true } }
