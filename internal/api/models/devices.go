package models

import "github.com/smazurov/avsync/internal/media"

type AudioDevicesData struct {
	Inputs        []media.Device `json:"inputs" doc:"Capture devices"`
	Outputs       []media.Device `json:"outputs" doc:"Playback devices"`
	SelectedInput int            `json:"selected_input" doc:"Microphone used by the sender"`
}

type AudioDevicesResponse struct {
	Body AudioDevicesData
}

type CameraDevicesData struct {
	Devices  []media.Device `json:"devices" doc:"Video capture devices"`
	Selected int            `json:"selected" doc:"Camera used by the sender"`
}

type CameraDevicesResponse struct {
	Body CameraDevicesData
}
