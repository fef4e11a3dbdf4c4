package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields are added to every record logged with a context carrying them
type LogFields struct {
	Command  string  // CLI command, e.g. "search"
	Query    *string // raw search query
	SearchID string  // saved search ID
}

// WithLogFields enriches ctx with fields. Newer non-empty values win.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	merged := GetLogFields(ctx)
	if fields.Command != "" {
		merged.Command = fields.Command
	}
	if fields.Query != nil {
		merged.Query = fields.Query
	}
	if fields.SearchID != "" {
		merged.SearchID = fields.SearchID
	}
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields returns the fields in ctx, or zero fields
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

// Ptr returns a pointer to v, for setting optional LogFields inline
func Ptr[T any](v T) *T {
	return &v
}

// Truncate shortens s to maxLen bytes, appending "..." if truncated
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
