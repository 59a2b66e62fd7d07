package api

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/avsync/internal/api/models"
	"github.com/smazurov/avsync/internal/media"
	"github.com/smazurov/avsync/internal/reader"
	"github.com/smazurov/avsync/internal/streamer"
)

const jpegQuality = 80

// controlError maps a Start failure to an HTTP error.
func controlError(err error) error {
	if errors.Is(err, streamer.ErrNoURL) || errors.Is(err, reader.ErrNoURL) {
		return huma.Error400BadRequest("No URL given and none stored", err)
	}
	var me *media.Error
	if errors.As(err, &me) {
		switch me.Kind {
		case media.KindDeviceNotFound:
			return huma.Error404NotFound(me.Message, err)
		case media.KindInvalidFormat:
			return huma.Error422UnprocessableEntity(me.Message, err)
		}
		return huma.Error503ServiceUnavailable(me.Message, err)
	}
	return huma.Error500InternalServerError("Start failed", err)
}

func ok(msg string) *models.ActionResponse {
	return &models.ActionResponse{Body: models.ActionData{Status: "ok", Message: msg}}
}

func encodeFrame(img image.Image) (*models.FrameResponse, error) {
	if img == nil {
		return nil, huma.Error404NotFound("No frame available")
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, huma.Error500InternalServerError("Failed to encode frame", err)
	}
	return &models.FrameResponse{ContentType: "image/jpeg", Body: buf.Bytes()}, nil
}

type control struct {
	prefix string
	tag    string
	start  func(ctx context.Context, url string) error
	stop   func()
	mute   func()
	unmute func()
	frame  func() image.Image
}

// registerControl registers the start/stop/mute/unmute/frame routes shared
// by the sender and the receiver.
func (s *Server) registerControl(c control) {
	huma.Register(s.api, huma.Operation{
		OperationID: c.tag + "-start",
		Method:      http.MethodPost,
		Path:        c.prefix + "/start",
		Summary:     "Start " + c.tag,
		Description: "Start a session. An empty URL reuses the last one.",
		Tags:        []string{c.tag},
		Security:    withAuth(),
		Errors:      []int{400, 401, 404, 422, 503},
	}, func(_ context.Context, input *models.StartRequest) (*models.ActionResponse, error) {
		if err := c.start(s.baseCtx, input.Body.URL); err != nil {
			return nil, controlError(err)
		}
		return ok(c.tag + " started"), nil
	})

	simple := func(action string, fn func()) {
		huma.Register(s.api, huma.Operation{
			OperationID: c.tag + "-" + action,
			Method:      http.MethodPost,
			Path:        c.prefix + "/" + action,
			Summary:     action + " " + c.tag,
			Tags:        []string{c.tag},
			Security:    withAuth(),
			Errors:      []int{401},
		}, func(_ context.Context, _ *struct{}) (*models.ActionResponse, error) {
			fn()
			return ok(""), nil
		})
	}
	simple("stop", c.stop)
	simple("mute", c.mute)
	simple("unmute", c.unmute)

	huma.Register(s.api, huma.Operation{
		OperationID: c.tag + "-frame",
		Method:      http.MethodGet,
		Path:        c.prefix + "/frame",
		Summary:     "Latest " + c.tag + " frame",
		Description: "The most recent video frame as JPEG",
		Tags:        []string{c.tag},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(_ context.Context, _ *struct{}) (*models.FrameResponse, error) {
		return encodeFrame(c.frame())
	})
}

func (s *Server) registerSenderRoutes() {
	snd := s.options.Sender
	s.registerControl(control{
		prefix: "/api/sender",
		tag:    "sender",
		start:  snd.Start,
		stop:   snd.Stop,
		mute:   snd.Mute,
		unmute: snd.Unmute,
		frame:  snd.LastFrame,
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "sender-status",
		Method:      http.MethodGet,
		Path:        "/api/sender/status",
		Summary:     "Sender status",
		Tags:        []string{"sender"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.SenderStatusResponse, error) {
		return &models.SenderStatusResponse{Body: snd.Status()}, nil
	})
}

func (s *Server) registerReceiverRoutes() {
	rcv := s.options.Receiver
	s.registerControl(control{
		prefix: "/api/receiver",
		tag:    "receiver",
		start:  rcv.Start,
		stop:   rcv.Stop,
		mute:   rcv.Mute,
		unmute: rcv.Unmute,
		frame:  rcv.LastFrame,
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "receiver-status",
		Method:      http.MethodGet,
		Path:        "/api/receiver/status",
		Summary:     "Receiver status",
		Tags:        []string{"receiver"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.ReceiverStatusResponse, error) {
		return &models.ReceiverStatusResponse{Body: rcv.Status()}, nil
	})
}
