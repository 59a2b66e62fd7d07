package logging

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// HistoryHandler is a slog.Handler that records entries into a History.
type HistoryHandler struct {
	history *History
	level   slog.Leveler
	attrs   []slog.Attr
	groups  []string
}

// NewHistoryHandler creates a handler writing to h.
func NewHistoryHandler(h *History, level slog.Leveler) *HistoryHandler {
	return &HistoryHandler{history: h, level: level}
}

// Enabled implements slog.Handler.
func (h *HistoryHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *HistoryHandler) Handle(_ context.Context, r slog.Record) error {
	entry := Entry{
		Timestamp: r.Time,
		Level:     levelName(r.Level),
		Module:    "main",
		Message:   r.Message,
	}

	add := func(a slog.Attr) {
		if a.Key == "module" && len(h.groups) == 0 {
			entry.Module = a.Value.String()
			return
		}
		if entry.Attributes == nil {
			entry.Attributes = make(map[string]any)
		}
		flattenAttr(entry.Attributes, h.groups, a)
	}
	for _, a := range h.attrs {
		add(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		add(a)
		return true
	})

	h.history.Add(entry)
	return nil
}

// WithAttrs implements slog.Handler.
func (h *HistoryHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	dup := *h
	dup.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &dup
}

// WithGroup implements slog.Handler.
func (h *HistoryHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	dup := *h
	dup.groups = append(append([]string(nil), h.groups...), name)
	return &dup
}

// flattenAttr stores a into attrs using dot-separated keys for groups.
func flattenAttr(attrs map[string]any, groups []string, a slog.Attr) {
	key := a.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}

	switch a.Value.Kind() {
	case slog.KindGroup:
		sub := append(append([]string(nil), groups...), a.Key)
		for _, ga := range a.Value.Group() {
			flattenAttr(attrs, sub, ga)
		}
	case slog.KindTime:
		attrs[key] = a.Value.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		attrs[key] = a.Value.Duration().String()
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			attrs[key] = err.Error()
		} else {
			attrs[key] = a.Value.Any()
		}
	default:
		attrs[key] = a.Value.Any()
	}
}

func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
