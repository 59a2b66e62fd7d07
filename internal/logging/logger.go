package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

// DefaultHistorySize is the number of recent entries kept for the status API.
const DefaultHistorySize = 500

// Identifier is the syslog identifier used for journal entries.
const Identifier = "avsync"

// Logger is the subset of *slog.Logger that components depend on.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config represents logging configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

var (
	mutex         sync.RWMutex
	globalConfig  Config
	isInitialized bool
	globalLevel   = &slog.LevelVar{}
	modules       = make(map[string]*moduleLogger)
	history       = NewHistory(DefaultHistorySize)
)

type moduleLogger struct {
	logger *slog.Logger
	level  *slog.LevelVar
}

// Initialize applies config to the default logger and every module logger
// created so far. Module loggers keep their identity; only their level and
// output chain change. It must run before loggers are used concurrently.
func Initialize(config Config) {
	mutex.Lock()
	defer mutex.Unlock()

	globalConfig = config
	isInitialized = true

	globalLevel.Set(levelOrDefault(config.Level, slog.LevelInfo))

	for name, m := range modules {
		m.level.Set(moduleLevel(name))
		*m.logger = *slog.New(newHandler(config.Format, m.level)).With("module", name)
	}

	slog.SetDefault(slog.New(newHandler(config.Format, globalLevel)))
}

// GetLogger returns the logger for a module, creating it on first use.
func GetLogger(module string) *slog.Logger {
	mutex.RLock()
	m, ok := modules[module]
	mutex.RUnlock()
	if ok {
		return m.logger
	}

	mutex.Lock()
	defer mutex.Unlock()
	if m, ok := modules[module]; ok {
		return m.logger
	}

	level := &slog.LevelVar{}
	format := "text"
	if isInitialized {
		level.Set(moduleLevel(module))
		format = globalConfig.Format
	}
	m = &moduleLogger{
		logger: slog.New(newHandler(format, level)).With("module", module),
		level:  level,
	}
	modules[module] = m
	return m.logger
}

// Reconfigure applies new levels from config without rebuilding handlers. It
// is safe to call while loggers are in use; the output format is not changed.
func Reconfigure(config Config) {
	mutex.Lock()
	defer mutex.Unlock()

	globalConfig.Level = config.Level
	globalConfig.Modules = config.Modules
	globalLevel.Set(levelOrDefault(config.Level, slog.LevelInfo))
	for name, m := range modules {
		m.level.Set(moduleLevel(name))
	}
}

// SetModuleLevel changes a module's level at runtime.
func SetModuleLevel(module, level string) bool {
	parsed := parseLevel(level)
	if parsed == nil {
		return false
	}
	GetLogger(module)
	mutex.Lock()
	defer mutex.Unlock()
	modules[module].level.Set(*parsed)
	return true
}

// RecentHistory returns the in-memory log history.
func RecentHistory() *History {
	return history
}

// moduleLevel must be called with mutex held.
func moduleLevel(module string) slog.Level {
	level := levelOrDefault(globalConfig.Level, slog.LevelInfo)
	if s, ok := globalConfig.Modules[module]; ok {
		level = levelOrDefault(s, level)
	}
	return level
}

// newHandler builds the output chain: stdout when something is attached,
// the journal when running under systemd, and always the history.
func newHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var stdout slog.Handler
	if format == "json" {
		stdout = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		stdout = slog.NewTextHandler(os.Stdout, opts)
	}

	var handlers []slog.Handler
	if isStdoutAvailable() {
		handlers = append(handlers, stdout)
	}
	if IsJournalAvailable() {
		handlers = append(handlers, NewJournalHandler(Identifier, level))
	}
	handlers = append(handlers, NewHistoryHandler(history, level))

	if len(handlers) == 1 {
		return handlers[0]
	}
	return fanout(handlers)
}

// isStdoutAvailable reports whether stdout is a terminal, pipe, socket or file.
func isStdoutAvailable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return (mode&os.ModeCharDevice) != 0 || (mode&os.ModeNamedPipe) != 0 || (mode&os.ModeSocket) != 0 || mode.IsRegular()
}

func levelOrDefault(s string, def slog.Level) slog.Level {
	if l := parseLevel(s); l != nil {
		return *l
	}
	return def
}

// parseLevel converts string level to slog.Level.
func parseLevel(level string) *slog.Level {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		return nil
	}
	return &l
}
