package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/wesm/open-issue-finder/config"
)

// Setup builds the process logger from cfg, writing to w, and installs it as
// the slog default
func Setup(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = NewContextHandler(slog.NewJSONHandler(w, opts))
	} else {
		handler = NewContextHandler(slog.NewTextHandler(w, opts))
	}

	l := slog.New(handler)
	slog.SetDefault(l)
	return l, nil
}

// ParseLevel accepts debug, info, warn or error; empty means info
func ParseLevel(s string) (slog.Level, error) {
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("failed to parse log level %q: %w", s, err)
	}
	return level, nil
}

// ContextHandler adds the LogFields carried by the record's context
type ContextHandler struct {
	slog.Handler
}

// NewContextHandler wraps h
func NewContextHandler(h slog.Handler) *ContextHandler {
	return &ContextHandler{Handler: h}
}

// Handle adds the context fields to r and passes it on
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	fields := GetLogFields(ctx)
	if fields.Command != "" {
		r.AddAttrs(slog.String("command", fields.Command))
	}
	if fields.Query != nil {
		r.AddAttrs(slog.String("query", Truncate(*fields.Query, 120)))
	}
	if fields.SearchID != "" {
		r.AddAttrs(slog.String("search_id", fields.SearchID))
	}
	return h.Handler.Handle(ctx, r)
}

// WithAttrs keeps the wrapper around the derived handler
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

// WithGroup keeps the wrapper around the derived handler
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithGroup(name)}
}
