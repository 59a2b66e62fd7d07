package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/avsync/internal/api/models"
	"github.com/smazurov/avsync/internal/ffmpeg"
)

func (s *Server) registerOptionsRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-ffmpeg-options",
		Method:      http.MethodGet,
		Path:        "/api/options",
		Summary:     "FFmpeg Options",
		Description: "List the ffmpeg options accepted by the encoder, video decoder and camera, the defaults, and the options in effect",
		Tags:        []string{"configuration"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.OptionsResponse, error) {
		active := s.options.FFmpegOptions
		if active == nil {
			active = ffmpeg.DefaultOptions
		}
		resp := &models.OptionsResponse{}
		resp.Body.Options = ffmpeg.AllOptions
		resp.Body.Defaults = ffmpeg.DefaultOptions
		resp.Body.Active = active
		return resp, nil
	})
}
