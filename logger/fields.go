package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for structured logging.
// Use these constants instead of raw strings to keep keys consistent.
const (
	// Scheduler identity
	FieldScheduler         = "scheduler"
	FieldSchedulerInstance = "scheduler_instance"
	FieldFireInstanceID    = "fire_instance_id"
	FieldJob               = "job"
	FieldTrigger           = "trigger"

	// Components
	FieldComponent = "component"
	FieldPlugin    = "plugin"
	FieldStoreType = "store_type"

	// Operations
	FieldOperation = "operation"
	FieldTable     = "table"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldCutoff     = "cutoff"
	FieldNextPurge  = "next_purge"

	// Errors
	FieldError     = "error"
	FieldErrorCode = "error_code"

	// Counts
	FieldCount = "count"
	FieldLimit = "limit"

	// Status
	FieldState = "state"

	// Files, paths and network
	FieldPath    = "path"
	FieldAddress = "address"
	FieldVersion = "version"
)

type contextKey string

const (
	fireInstanceKey contextKey = "logger_fire_instance_id"
	componentKey    contextKey = "logger_component"
)

// WithFireInstanceID adds a fire instance id to the context for logging
func WithFireInstanceID(ctx context.Context, fireInstanceID string) context.Context {
	return context.WithValue(ctx, fireInstanceKey, fireInstanceID)
}

// WithComponent adds a component name to the context for logging
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if id, ok := ctx.Value(fireInstanceKey).(string); ok && id != "" {
		fields = append(fields, FieldFireInstanceID, id)
	}
	if component, ok := ctx.Value(componentKey).(string); ok && component != "" {
		fields = append(fields, FieldComponent, component)
	}

	return fields
}

// LoggerFromContext returns base enriched with fields carried by ctx.
// A nil base falls back to the global Logger.
func LoggerFromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if base == nil {
		base = Logger
	}
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	func NewPurger() *Purger {
//	    return &Purger{
//	        logger: logger.ComponentLogger("history.purger"),
//	    }
//	}
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.SugaredLogger) *zap.SugaredLogger {
	if l == nil {
		return zap.NewNop().Sugar()
	}
	return l
}
