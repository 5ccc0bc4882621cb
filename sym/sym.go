// Package sym defines canonical log glyphs for Mainspring subsystems.
// These symbols are stable across CLI output and documentation.
package sym

// Subsystem markers.
const (
	Sched  = "↻" // recurrence scheduling and trigger registry
	WO     = "⚙" // work-order generation
	Mail   = "✉" // notification delivery
	DB     = "⊔" // database/storage layer
	Config = "≡" // configuration and system settings
	Open   = "✿" // graceful startup
	Close  = "❀" // graceful shutdown
)
