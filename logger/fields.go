package logger

import (
	"go.uber.org/zap"

	"github.com/fernwall/mainspring/sym"
)

// Standard field names for consistent structured logging across Mainspring.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity
	FieldScheduleID  = "schedule_id"
	FieldPMID        = "pm_id"
	FieldWorkOrderID = "work_order_id"
	FieldTriggerKey  = "trigger_key"

	// Components
	FieldComponent = "component"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldFireAt     = "fire_at"
	FieldNextRunAt  = "next_run_at"

	// Errors
	FieldError = "error"

	// Status
	FieldState = "state"

	// Presentation
	FieldSymbol = "symbol" // subsystem glyph (↻, ⚙, ✉, ⊔)
)

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	orch := &Orchestrator{logger: logger.ComponentLogger("scheduling.orchestrator")}
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// ChildLogger creates a child logger with additional context fields.
func ChildLogger(parent *zap.SugaredLogger, keysAndValues ...interface{}) *zap.SugaredLogger {
	return parent.With(keysAndValues...)
}

// AddSchedSymbol returns a logger with the scheduling glyph pre-attached.
func AddSchedSymbol(log *zap.SugaredLogger) *zap.SugaredLogger {
	return log.With(FieldSymbol, sym.Sched)
}

// AddWOSymbol returns a logger with the work-order glyph pre-attached.
func AddWOSymbol(log *zap.SugaredLogger) *zap.SugaredLogger {
	return log.With(FieldSymbol, sym.WO)
}

// AddMailSymbol returns a logger with the notification glyph pre-attached.
func AddMailSymbol(log *zap.SugaredLogger) *zap.SugaredLogger {
	return log.With(FieldSymbol, sym.Mail)
}
