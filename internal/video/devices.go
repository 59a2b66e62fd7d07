package video

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/smazurov/avsync/internal/ffmpeg"
	"github.com/smazurov/avsync/internal/logging"
	"github.com/smazurov/avsync/internal/media"
	"github.com/smazurov/avsync/internal/process"
)

// Default locations of V4L2 nodes.
const (
	DefaultSysfsRoot = "/sys/class/video4linux"
	DefaultDevRoot   = "/dev"
)

const probeTimeout = 5 * time.Second

// listDevices enumerates V4L2 capture nodes from sysfs. Metadata nodes
// (sysfs index other than 0) are skipped so each camera appears once.
func listDevices(sysfsRoot string) ([]media.Device, error) {
	entries, err := os.ReadDir(sysfsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", sysfsRoot, err)
	}

	var devices []media.Device
	for _, e := range entries {
		num, ok := strings.CutPrefix(e.Name(), "video")
		if !ok {
			continue
		}
		index, err := strconv.Atoi(num)
		if err != nil {
			continue
		}
		dir := filepath.Join(sysfsRoot, e.Name())
		if idx, err := os.ReadFile(filepath.Join(dir, "index")); err == nil && strings.TrimSpace(string(idx)) != "0" {
			continue
		}
		name := e.Name()
		if b, err := os.ReadFile(filepath.Join(dir, "name")); err == nil {
			name = strings.TrimSpace(string(b))
		}
		devices = append(devices, media.Device{Index: index, Name: name})
	}

	sort.Slice(devices, func(i, j int) bool { return devices[i].Index < devices[j].Index })
	if len(devices) > 0 {
		devices[0].IsDefault = true
	}
	return devices, nil
}

// parseFrameSizes extracts discrete WxH sizes from ffmpeg's v4l2
// -list_formats output, e.g.
// "[video4linux2,v4l2 @ 0x55] Raw : yuyv422 : YUYV 4:2:2 : 640x480 1280x720".
func parseFrameSizes(lines []string) []image.Point {
	var sizes []image.Point
	for _, line := range lines {
		if !strings.Contains(line, "Raw") && !strings.Contains(line, "Compressed") {
			continue
		}
		i := strings.LastIndex(line, " : ")
		if i < 0 {
			continue
		}
		for _, tok := range strings.Fields(line[i+3:]) {
			w, h, ok := strings.Cut(tok, "x")
			if !ok {
				continue
			}
			wi, err1 := strconv.Atoi(w)
			hi, err2 := strconv.Atoi(h)
			if err1 != nil || err2 != nil || wi <= 0 || hi <= 0 {
				continue
			}
			sizes = append(sizes, image.Pt(wi, hi))
		}
	}
	return sizes
}

// largest returns the size with the biggest area.
func largest(sizes []image.Point) (image.Point, bool) {
	var best image.Point
	for _, s := range sizes {
		if s.X*s.Y > best.X*best.Y {
			best = s
		}
	}
	return best, best.X > 0
}

// lineCollector is a logging.Logger that keeps every message.
type lineCollector struct {
	mu    sync.Mutex
	lines []string
}

func (c *lineCollector) add(msg string) {
	c.mu.Lock()
	c.lines = append(c.lines, msg)
	c.mu.Unlock()
}

func (c *lineCollector) Debug(msg string, _ ...any) { c.add(msg) }
func (c *lineCollector) Info(msg string, _ ...any)  { c.add(msg) }
func (c *lineCollector) Warn(msg string, _ ...any)  { c.add(msg) }
func (c *lineCollector) Error(msg string, _ ...any) { c.add(msg) }

// probeFormats runs ffmpeg's format listing for a device and returns its
// log lines. ffmpeg exits non-zero after listing, so the exit code is ignored.
func probeFormats(launcher, devicePath string, logger logging.Logger) ([]string, error) {
	out := &lineCollector{}
	args := []string{"-hide_banner", "-loglevel", "level+info", "-f", "v4l2", "-list_formats", "all", "-i", devicePath}
	p, err := process.Start(process.Config{
		Name:         "camera-probe",
		Launcher:     launcher,
		Args:         args,
		OutputLogger: out,
		Parser:       ffmpeg.ParseLogLevel,
	}, logger)
	if err != nil {
		return nil, err
	}

	select {
	case <-p.Done():
	case <-time.After(probeTimeout):
		p.Stop()
	}

	out.mu.Lock()
	defer out.mu.Unlock()
	return out.lines, nil
}
