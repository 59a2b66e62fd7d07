package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/avsync/internal/api/models"
	"github.com/smazurov/avsync/internal/media"
)

func (s *Server) registerDeviceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-audio-devices",
		Method:      http.MethodGet,
		Path:        "/api/devices/audio",
		Summary:     "List Audio Devices",
		Description: "List capture and playback devices with the index used to select them",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(_ context.Context, _ *struct{}) (*models.AudioDevicesResponse, error) {
		data := models.AudioDevicesData{
			Inputs:        []media.Device{},
			Outputs:       []media.Device{},
			SelectedInput: -1,
		}
		if snd := s.options.Sender; snd != nil {
			inputs, err := snd.AudioDevices()
			if err != nil {
				return nil, huma.Error500InternalServerError("Failed to enumerate capture devices", err)
			}
			data.Inputs = inputs
			data.SelectedInput = snd.Status().AudioDeviceIndex
		}
		if out := s.options.AudioOutputs; out != nil {
			outputs, err := out.AvailableDevices()
			if err != nil {
				return nil, huma.Error500InternalServerError("Failed to enumerate playback devices", err)
			}
			data.Outputs = outputs
		}
		return &models.AudioDevicesResponse{Body: data}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-cameras",
		Method:      http.MethodGet,
		Path:        "/api/devices/cameras",
		Summary:     "List Cameras",
		Description: "List video capture devices",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(_ context.Context, _ *struct{}) (*models.CameraDevicesResponse, error) {
		data := models.CameraDevicesData{Devices: []media.Device{}, Selected: -1}
		if snd := s.options.Sender; snd != nil {
			cams, err := snd.CameraDevices()
			if err != nil {
				return nil, huma.Error500InternalServerError("Failed to enumerate cameras", err)
			}
			data.Devices = cams
			data.Selected = snd.Status().CameraIndex
		}
		return &models.CameraDevicesResponse{Body: data}, nil
	})
}

func (s *Server) registerRelayRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-relay-streams",
		Method:      http.MethodGet,
		Path:        "/api/relay/streams",
		Summary:     "Relay Streams",
		Description: "List the paths currently published to the local RTSP relay",
		Tags:        []string{"relay"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.RelayStreamsResponse, error) {
		streams := s.options.Relay.ListStreams()
		return &models.RelayStreamsResponse{
			Body: models.RelayStreamsData{Streams: streams, Count: len(streams)},
		}, nil
	})
}
