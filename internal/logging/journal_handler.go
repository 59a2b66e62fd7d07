package logging

import (
	"context"
	"log/slog"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
)

// JournalHandler writes records to the systemd journal. Attributes become
// upper-case journal fields; groups prefix their keys with GROUP_.
type JournalHandler struct {
	level  slog.Leveler
	fields map[string]string // resolved WithAttrs fields plus SYSLOG_IDENTIFIER
	prefix string            // open groups, e.g. "RELAY_"
}

// NewJournalHandler creates a journal handler tagging entries with identifier.
func NewJournalHandler(identifier string, level slog.Leveler) *JournalHandler {
	return &JournalHandler{
		level:  level,
		fields: map[string]string{"SYSLOG_IDENTIFIER": identifier},
	}
}

// Enabled implements slog.Handler.
func (h *JournalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *JournalHandler) Handle(_ context.Context, r slog.Record) error {
	fields := maps.Clone(h.fields)
	r.Attrs(func(a slog.Attr) bool {
		putField(fields, h.prefix, a)
		return true
	})
	return journal.Send(r.Message, journalPriority(r.Level), fields)
}

// WithAttrs implements slog.Handler.
func (h *JournalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	fields := maps.Clone(h.fields)
	for _, a := range attrs {
		putField(fields, h.prefix, a)
	}
	return &JournalHandler{level: h.level, fields: fields, prefix: h.prefix}
}

// WithGroup implements slog.Handler.
func (h *JournalHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &JournalHandler{level: h.level, fields: h.fields, prefix: h.prefix + fieldName(name) + "_"}
}

func journalPriority(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

// putField stores a under prefix+KEY, expanding groups.
func putField(fields map[string]string, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		inner := prefix
		if a.Key != "" {
			inner += fieldName(a.Key) + "_"
		}
		for _, ga := range a.Value.Group() {
			putField(fields, inner, ga)
		}
		return
	}
	fields[prefix+fieldName(a.Key)] = fieldValue(a.Value)
}

func fieldValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'g', -1, 64)
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	default:
		return v.String()
	}
}

// fieldName maps a key to the journal's [A-Z0-9_] alphabet. Journal fields
// may not start with an underscore.
func fieldName(key string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, key)
	return strings.TrimLeft(name, "_")
}

// IsJournalAvailable checks if systemd journal is available.
func IsJournalAvailable() bool {
	return journal.Enabled()
}
