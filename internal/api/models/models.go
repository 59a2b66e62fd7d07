// Package models holds the request and response bodies of the HTTP API.
package models

import (
	"github.com/smazurov/avsync/internal/ffmpeg"
	"github.com/smazurov/avsync/internal/logging"
	"github.com/smazurov/avsync/internal/reader"
	"github.com/smazurov/avsync/internal/streamer"
)

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

type VersionData struct {
	Version   string `json:"version" example:"1.0.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2026-01-27T10:30:00Z" doc:"Build date"`
	GoVersion string `json:"go_version" example:"go1.24.11" doc:"Go version used to build"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"Target platform"`
}

type VersionResponse struct {
	Body VersionData
}

// StartRequest starts the sender or receiver. An empty URL reuses the last one.
type StartRequest struct {
	Body struct {
		URL string `json:"url,omitempty" example:"rtsp://localhost:8554/cam" doc:"Destination or source URL"`
	}
}

// ActionData acknowledges a control call.
type ActionData struct {
	Status  string `json:"status" example:"ok" doc:"Result"`
	Message string `json:"message,omitempty" doc:"Details"`
}

type ActionResponse struct {
	Body ActionData
}

type SenderStatusResponse struct {
	Body streamer.Status
}

type ReceiverStatusResponse struct {
	Body reader.Status
}

// FrameResponse is the latest frame encoded as JPEG.
type FrameResponse struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

type RelayStreamsData struct {
	Streams []string `json:"streams" example:"[\"cam\"]" doc:"Paths currently published to the relay"`
	Count   int      `json:"count" example:"1" doc:"Number of published paths"`
}

type RelayStreamsResponse struct {
	Body RelayStreamsData
}

type LogsRequest struct {
	Limit int `query:"limit" minimum:"0" default:"100" doc:"Maximum number of entries, 0 for all"`
}

type LogsData struct {
	Entries []logging.Entry `json:"entries" doc:"Recent log entries, oldest first"`
	Count   int             `json:"count" doc:"Number of entries returned"`
}

type LogsResponse struct {
	Body LogsData
}

type OptionsData struct {
	Options  []ffmpeg.Option     `json:"options" doc:"Available FFmpeg options"`
	Defaults []ffmpeg.OptionType `json:"defaults" doc:"Options applied when none are configured"`
	Active   []ffmpeg.OptionType `json:"active" doc:"Options this process passes to ffmpeg"`
}

type OptionsResponse struct {
	Body OptionsData
}
