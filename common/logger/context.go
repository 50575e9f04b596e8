package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// A run context carries RunID; generator slots add CandidateIndex; the engine adds
// Wave and ArtifactID per scheduled artifact.
type LogFields struct {
	RunID          *int64  // Planning/execution run ID
	CandidateIndex *int    // Candidate slot during generation
	ArtifactID     *string // Artifact being executed
	Wave           *int    // Wave index during execution
	MessageID      *string // Redis stream message ID
	Component      string  // Component name, e.g. "harmony.engine"
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, next LogFields) LogFields {
	result := existing

	if next.RunID != nil {
		result.RunID = next.RunID
	}
	if next.CandidateIndex != nil {
		result.CandidateIndex = next.CandidateIndex
	}
	if next.ArtifactID != nil {
		result.ArtifactID = next.ArtifactID
	}
	if next.Wave != nil {
		result.Wave = next.Wave
	}
	if next.MessageID != nil {
		result.MessageID = next.MessageID
	}
	if next.Component != "" {
		result.Component = next.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{RunID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen characters, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
