package metrics

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// ReadProgress consumes ffmpeg "-progress" output (key=value lines, each
// block ending with progress=continue or progress=end) and records it for
// the pipeline. It returns when r is exhausted and removes the pipeline's
// metrics.
func ReadProgress(pipeline string, r io.Reader) {
	defer DeleteFFmpegMetrics(pipeline)

	scanner := bufio.NewScanner(r)
	progressData := make(map[string]string)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		progressData[strings.TrimSpace(key)] = strings.TrimSpace(value)

		if strings.TrimSpace(key) == "progress" {
			recordProgress(pipeline, progressData)
			progressData = make(map[string]string)
		}
	}
}

func recordProgress(pipeline string, data map[string]string) {
	if fps, err := strconv.ParseFloat(data["fps"], 64); err == nil {
		SetFFmpegFPS(pipeline, fps)
	}
	if dropped, err := strconv.ParseFloat(data["drop_frames"], 64); err == nil {
		SetFFmpegDroppedFrames(pipeline, dropped)
	}
	if dup, err := strconv.ParseFloat(data["dup_frames"], 64); err == nil {
		SetFFmpegDuplicateFrames(pipeline, dup)
	}
	speedStr := strings.TrimSuffix(data["speed"], "x")
	if speed, err := strconv.ParseFloat(strings.TrimSpace(speedStr), 64); err == nil {
		SetFFmpegSpeed(pipeline, speed)
	}
}
