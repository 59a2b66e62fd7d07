package ffmpeg

import "strings"

var logLevels = map[string]bool{
	"quiet": true, "panic": true, "fatal": true, "error": true, "warning": true,
	"info": true, "verbose": true, "debug": true, "trace": true,
}

// ParseLogLevel splits a line written with -loglevel level+<x> into its
// level and message. The level tag is either first ("[error] msg") or
// follows a component tag ("[h264 @ 0x55d0] [error] msg"); the component
// tag stays in the message. Untagged lines are info.
func ParseLogLevel(line string) (level, msg string) {
	var component string
	rest := line
	for range 2 {
		if !strings.HasPrefix(rest, "[") {
			break
		}
		tag, tail, ok := strings.Cut(rest[1:], "] ")
		if !ok {
			break
		}
		if logLevels[tag] {
			return tag, component + tail
		}
		if component != "" {
			break
		}
		component = "[" + tag + "] "
		rest = tail
	}
	return "info", line
}
