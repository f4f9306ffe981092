package logger

import (
	"go.uber.org/zap"
)

// Standard field names for consistent structured logging.
// Use these constants instead of raw strings.
const (
	// Identity
	FieldUserID    = "user_id"
	FieldComponent = "component"
	FieldOperation = "operation"

	// Twin addressing
	FieldDomain    = "domain"
	FieldField     = "field"
	FieldState     = "state"
	FieldDataType  = "data_type"
	FieldTimestamp = "timestamp"
	FieldVersion   = "version"

	// Biomarkers
	FieldBiomarker = "biomarker"
	FieldUnit      = "unit"
	FieldValue     = "value"

	// Reasoning context
	FieldTokens    = "tokens"
	FieldMaxTokens = "max_tokens"
	FieldDropped   = "dropped"

	// Timing
	FieldDurationMS = "duration_ms"

	// Errors
	FieldError     = "error"
	FieldErrorCode = "error_code"

	// Counts and paths
	FieldCount = "count"
	FieldPath  = "path"
)

// Component names used with ComponentLogger.
const (
	ComponentTwin      = "twin"
	ComponentRegistry  = "biomarker.registry"
	ComponentWatcher   = "biomarker.watcher"
	ComponentValidator = "validation"
	ComponentReasoning = "reasoning"
	ComponentStore     = "store"
	ComponentDB        = "db"
)

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	type Generator struct {
//	    logger *zap.SugaredLogger
//	}
//
//	func NewGenerator() *Generator {
//	    return &Generator{logger: logger.ComponentLogger(logger.ComponentReasoning)}
//	}
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// OrComponent returns l when non-nil, otherwise the named component logger.
func OrComponent(l *zap.SugaredLogger, name string) *zap.SugaredLogger {
	if l != nil {
		return l
	}
	return ComponentLogger(name)
}

// ChildLogger creates a child logger with additional context.
//
// Example:
//
//	twinLogger := logger.ChildLogger(baseLogger, logger.FieldUserID, t.UserID())
func ChildLogger(parent *zap.SugaredLogger, keysAndValues ...interface{}) *zap.SugaredLogger {
	return parent.With(keysAndValues...)
}
