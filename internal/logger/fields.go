package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	// FieldUserID is the structured log field key for the acting user.
	FieldUserID = "user_id"
	// FieldRole is the structured log field key for the acting user's role.
	FieldRole = "role"
	// FieldRequestID is the structured log field key for a request or job id.
	FieldRequestID = "request_id"
)

// WithFields safely attaches the provided fields to the logger.
// If the logger is nil or no fields are supplied, the input logger is returned
// unchanged, defaulting to a no-op logger when nil.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// ActorFields describes who performs an action. Zero ids and blank values
// are omitted.
func ActorFields(userID uint, role, requestID string) []zap.Field {
	fields := make([]zap.Field, 0, 3)
	if userID != 0 {
		fields = append(fields, zap.Uint(FieldUserID, userID))
	}

	if role = strings.TrimSpace(role); role != "" {
		fields = append(fields, zap.String(FieldRole, role))
	}

	if requestID = strings.TrimSpace(requestID); requestID != "" {
		fields = append(fields, zap.String(FieldRequestID, requestID))
	}

	return fields
}

// WithActor attaches ActorFields to the logger.
func WithActor(logger *zap.Logger, userID uint, role, requestID string) *zap.Logger {
	return WithFields(logger, ActorFields(userID, role, requestID)...)
}
