package ffmpeg

import (
	"fmt"
	"strings"
)

// OptionType is a named ffmpeg behavior flag.
type OptionType string

// Supported options.
const (
	OptionGeneratePTS        OptionType = "genpts"
	OptionIgnoreDTS          OptionType = "igndts"
	OptionIgnoreErrors       OptionType = "ignore_err"
	OptionWallclockTimestamp OptionType = "wallclock_ts"
	OptionThreadQueue1024    OptionType = "thread_queue_1024"
	OptionThreadQueue4096    OptionType = "thread_queue_4096"
	OptionLowLatency         OptionType = "low_latency"
)

// Option describes a flag and how it interacts with others.
type Option struct {
	Key            OptionType   `json:"key"`
	Description    string       `json:"description"`
	ExclusiveGroup string       `json:"exclusive_group,omitempty"`
	ConflictsWith  []OptionType `json:"conflicts_with,omitempty"`
}

// AllOptions lists every supported option.
var AllOptions = []Option{
	{Key: OptionGeneratePTS, Description: "Generate missing presentation timestamps", ConflictsWith: []OptionType{OptionWallclockTimestamp}},
	{Key: OptionIgnoreDTS, Description: "Ignore decode timestamps of damaged input"},
	{Key: OptionIgnoreErrors, Description: "Keep decoding past bitstream errors"},
	{Key: OptionWallclockTimestamp, Description: "Stamp raw input with the wall clock", ConflictsWith: []OptionType{OptionGeneratePTS}},
	{Key: OptionThreadQueue1024, Description: "1024 packet input queue", ExclusiveGroup: "thread_queue"},
	{Key: OptionThreadQueue4096, Description: "4096 packet input queue", ExclusiveGroup: "thread_queue"},
	{Key: OptionLowLatency, Description: "Flush packets immediately and disable reordering delay"},
}

// DefaultOptions are applied when none are configured.
var DefaultOptions = []OptionType{OptionThreadQueue1024, OptionLowLatency}

// GetOptionByKey returns an option by its key
func GetOptionByKey(key OptionType) *Option {
	for i := range AllOptions {
		if AllOptions[i].Key == key {
			return &AllOptions[i]
		}
	}
	return nil
}

// ParseOptions converts config strings into options, rejecting unknown keys.
func ParseOptions(keys []string) ([]OptionType, error) {
	opts := make([]OptionType, 0, len(keys))
	for _, k := range keys {
		opt := OptionType(strings.TrimSpace(k))
		if opt == "" {
			continue
		}
		if GetOptionByKey(opt) == nil {
			return nil, fmt.Errorf("unknown ffmpeg option %q", k)
		}
		opts = append(opts, opt)
	}
	return opts, ValidateOptions(opts)
}

// ValidateOptions checks for conflicts and exclusive group violations
func ValidateOptions(selected []OptionType) error {
	groups := make(map[string]OptionType)
	set := make(map[OptionType]bool, len(selected))
	for _, key := range selected {
		set[key] = true
	}

	for _, key := range selected {
		opt := GetOptionByKey(key)
		if opt == nil {
			continue
		}
		if opt.ExclusiveGroup != "" {
			if prev, ok := groups[opt.ExclusiveGroup]; ok && prev != key {
				return fmt.Errorf("options %s and %s are mutually exclusive", prev, key)
			}
			groups[opt.ExclusiveGroup] = key
		}
		for _, c := range opt.ConflictsWith {
			if set[c] {
				return fmt.Errorf("option %s conflicts with %s", key, c)
			}
		}
	}
	return nil
}

// inputArgs returns the flags an option set contributes before an -i.
func inputArgs(options []OptionType) []string {
	var args, fflags []string
	for _, option := range options {
		switch option {
		case OptionGeneratePTS:
			fflags = append(fflags, "+genpts")
		case OptionIgnoreDTS:
			fflags = append(fflags, "+igndts")
		case OptionLowLatency:
			fflags = append(fflags, "+nobuffer")
		case OptionIgnoreErrors:
			args = append(args, "-err_detect", "ignore_err")
		case OptionWallclockTimestamp:
			args = append(args, "-use_wallclock_as_timestamps", "1")
		case OptionThreadQueue1024:
			args = append(args, "-thread_queue_size", "1024")
		case OptionThreadQueue4096:
			args = append(args, "-thread_queue_size", "4096")
		}
	}
	if len(fflags) > 0 {
		args = append(args, "-fflags", strings.Join(fflags, ""))
	}
	return args
}

// outputArgs returns the flags an option set contributes before the output.
func outputArgs(options []OptionType) []string {
	for _, option := range options {
		if option == OptionLowLatency {
			return []string{"-flags", "+low_delay", "-flush_packets", "1"}
		}
	}
	return nil
}

// isHardwareEncoder checks if the given codec name represents a hardware encoder
func isHardwareEncoder(codec string) bool {
	for _, hw := range []string{"nvenc", "amf", "vaapi", "qsv", "videotoolbox", "rkmpp", "v4l2m2m"} {
		if strings.Contains(codec, hw) {
			return true
		}
	}
	return false
}
