// Package tally drives an on-air indicator LED from sender and receiver
// state.
package tally

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/smazurov/avsync/internal/logging"
)

// Mode is what the indicator shows.
type Mode int

// Indicator modes.
const (
	Off Mode = iota
	On
	Blink
)

func (m Mode) String() string {
	switch m {
	case On:
		return "on"
	case Blink:
		return "blink"
	default:
		return "off"
	}
}

// Light is a single indicator.
type Light interface {
	Set(mode Mode) error
	Name() string
}

// AutoDetect selects the board's status LED.
const AutoDetect = "auto"

const (
	defaultSysfsRoot    = "/sys/class/leds"
	deviceTreeModelPath = "/proc/device-tree/model"
)

// boardLEDs maps a device tree model substring to the LED used as tally.
var boardLEDs = []struct {
	model string
	led   string
}{
	{"NanoPC-T6", "usr_led"},
	{"Orange Pi", "green_led"},
	{"Raspberry Pi", "ACT"},
}

// SysfsLight controls an LED under /sys/class/leds through its trigger and
// brightness attributes.
type SysfsLight struct {
	dir  string
	name string
}

// NewSysfsLight returns the LED named name under root. An empty root uses
// /sys/class/leds.
func NewSysfsLight(root, name string) (*SysfsLight, error) {
	if root == "" {
		root = defaultSysfsRoot
	}
	dir := filepath.Join(root, name)
	if _, err := os.Stat(filepath.Join(dir, "brightness")); err != nil {
		return nil, fmt.Errorf("LED %q not found at %s: %w", name, dir, err)
	}
	return &SysfsLight{dir: dir, name: name}, nil
}

// Name implements Light.
func (l *SysfsLight) Name() string { return l.name }

// Set implements Light. Blink uses the kernel heartbeat trigger; On and Off
// clear the trigger and write the brightness directly.
func (l *SysfsLight) Set(mode Mode) error {
	trigger, brightness := "none", "0"
	switch mode {
	case On:
		brightness = "1"
	case Blink:
		trigger, brightness = "heartbeat", "1"
	}
	if err := l.write("trigger", trigger); err != nil {
		return fmt.Errorf("failed to set LED trigger: %w", err)
	}
	if err := l.write("brightness", brightness); err != nil {
		return fmt.Errorf("failed to set LED brightness: %w", err)
	}
	return nil
}

func (l *SysfsLight) write(attr, value string) error {
	return os.WriteFile(filepath.Join(l.dir, attr), []byte(value), 0o644)
}

// New returns the light named by name: AutoDetect picks the board's status
// LED, anything else is a sysfs LED name. It returns nil when no LED can be
// used, which disables the indicator.
func New(name string, logger logging.Logger) Light {
	if name == "" {
		return nil
	}
	if name == AutoDetect {
		model := detectBoard(deviceTreeModelPath)
		name = boardLED(model)
		if name == "" {
			logger.Info("No tally LED known for this board", "board_model", model)
			return nil
		}
		logger.Info("Detected board for tally LED", "board_model", model, "led", name)
	}
	light, err := NewSysfsLight("", name)
	if err != nil {
		logger.Warn("Tally LED unavailable", "error", err)
		return nil
	}
	return light
}

func boardLED(model string) string {
	for _, b := range boardLEDs {
		if strings.Contains(model, b.model) {
			return b.led
		}
	}
	return ""
}

// detectBoard reads the device tree model to identify the board.
func detectBoard(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "unknown"
	}
	// Device tree strings are NUL terminated
	return strings.TrimRight(string(data), "\x00")
}
