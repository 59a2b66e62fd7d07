//go:build cgo

package audio

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/smazurov/avsync/internal/logging"
	"github.com/smazurov/avsync/internal/media"
)

// MalgoBackend opens devices through miniaudio, which picks the native API
// of the platform (ALSA/PulseAudio, CoreAudio, WASAPI).
type MalgoBackend struct {
	logger logging.Logger
	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
}

// NewMalgoBackend initializes a miniaudio context.
func NewMalgoBackend(logger logging.Logger) (*MalgoBackend, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("miniaudio", "message", strings.TrimSpace(message))
	})
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	return &MalgoBackend{logger: logger, ctx: ctx}, nil
}

// Close releases the miniaudio context.
func (b *MalgoBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx == nil {
		return nil
	}
	err := b.ctx.Uninit()
	b.ctx.Free()
	b.ctx = nil
	return err
}

func malgoDeviceType(dir Direction) malgo.DeviceType {
	if dir == Playback {
		return malgo.Playback
	}
	return malgo.Capture
}

func malgoFormat(e media.SampleEncoding) (malgo.FormatType, error) {
	switch e {
	case media.SignedInt16:
		return malgo.FormatS16, nil
	case media.SignedInt24:
		return malgo.FormatS24, nil
	case media.SignedInt32:
		return malgo.FormatS32, nil
	case media.Float32:
		return malgo.FormatF32, nil
	default:
		return malgo.FormatUnknown, fmt.Errorf("sample encoding %s is not supported by miniaudio", e)
	}
}

func (b *MalgoBackend) deviceInfos(dir Direction) ([]malgo.DeviceInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx == nil {
		return nil, ErrBackendUnavailable
	}
	return b.ctx.Devices(malgoDeviceType(dir))
}

// Devices implements Backend.
func (b *MalgoBackend) Devices(dir Direction) ([]media.Device, error) {
	infos, err := b.deviceInfos(dir)
	if err != nil {
		return nil, err
	}
	devices := make([]media.Device, 0, len(infos))
	for i, info := range infos {
		devices = append(devices, media.Device{
			Index:     i,
			Name:      info.Name(),
			IsDefault: info.IsDefault != 0,
		})
	}
	return devices, nil
}

// DefaultDevice implements Backend.
func (b *MalgoBackend) DefaultDevice(dir Direction) (int, error) {
	devices, err := b.Devices(dir)
	if err != nil {
		return -1, err
	}
	for _, d := range devices {
		if d.IsDefault {
			return d.Index, nil
		}
	}
	if len(devices) > 0 {
		return devices[0].Index, nil
	}
	return -1, media.NewError(media.KindDeviceNotFound, "no "+dir.String()+" device available", nil)
}

// Open implements Backend.
func (b *MalgoBackend) Open(cfg StreamConfig, handler DataHandler) (Stream, error) {
	infos, err := b.deviceInfos(cfg.Direction)
	if err != nil {
		return nil, err
	}
	if cfg.DeviceIndex < 0 || cfg.DeviceIndex >= len(infos) {
		return nil, fmt.Errorf("device index %d out of range", cfg.DeviceIndex)
	}
	format, err := malgoFormat(cfg.Format.Encoding)
	if err != nil {
		return nil, err
	}

	devCfg := malgo.DefaultDeviceConfig(malgoDeviceType(cfg.Direction))
	devCfg.SampleRate = uint32(cfg.Format.SampleRate)
	devCfg.PeriodSizeInFrames = uint32(cfg.BufferFrames)
	devCfg.Alsa.NoMMap = 1

	info := infos[cfg.DeviceIndex]
	var callbacks malgo.DeviceCallbacks
	if cfg.Direction == Playback {
		devCfg.Playback.Format = format
		devCfg.Playback.Channels = uint32(cfg.Format.ChannelCount)
		devCfg.Playback.DeviceID = info.ID.Pointer()
		callbacks.Data = func(out, _ []byte, _ uint32) {
			handler(out, nil)
		}
	} else {
		devCfg.Capture.Format = format
		devCfg.Capture.Channels = uint32(cfg.Format.ChannelCount)
		devCfg.Capture.DeviceID = info.ID.Pointer()
		callbacks.Data = func(_, in []byte, _ uint32) {
			handler(nil, in)
		}
	}

	b.mu.Lock()
	if b.ctx == nil {
		b.mu.Unlock()
		return nil, ErrBackendUnavailable
	}
	device, err := malgo.InitDevice(b.ctx.Context, devCfg, callbacks)
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}

	b.logger.Debug("Opened device stream",
		"direction", cfg.Direction.String(),
		"device", info.Name(),
		"buffer_frames", cfg.BufferFrames)

	return &malgoStream{device: device, info: info}, nil
}

type malgoStream struct {
	device *malgo.Device
	// info keeps the device ID referenced by the config alive.
	info malgo.DeviceInfo
}

func (s *malgoStream) Start() error { return s.device.Start() }

func (s *malgoStream) Stop() error { return s.device.Stop() }

func (s *malgoStream) Close() error {
	s.device.Uninit()
	return nil
}
