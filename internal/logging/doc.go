// Package logging provides structured logging with per-module log levels.
//
// Every component asks for a named logger once and keeps it:
//
//	logger := logging.GetLogger("reader")
//	logger.Info("Opened stream", "url", url)
//
// Records go to stdout when something is attached to it, to the systemd
// journal (tagged "avsync") when journald is reachable, and always to an
// in-memory history served by the status API.
//
// Levels are set globally and overridden per module:
//
//	[logging]
//	level = "info"
//	format = "text"
//
//	[logging.modules]
//	reader = "debug"
//	audio = "warn"
//
// Filter journal output by module:
//
//	journalctl -t avsync MODULE=streamer
package logging
