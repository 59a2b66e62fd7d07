package tally

import (
	"sync"

	"github.com/smazurov/avsync/internal/events"
	"github.com/smazurov/avsync/internal/logging"
	"github.com/smazurov/avsync/internal/media"
)

// Indicator shows On while the sender is live, Blink while the sender is
// suspended or only the receiver is running, and Off otherwise.
type Indicator struct {
	light  Light
	bus    *events.Bus
	logger logging.Logger

	mu          sync.Mutex
	senderState string
	receiving   bool
	mode        Mode
	unsubscribe []func()
}

// NewIndicator creates an indicator for light. Call Start to follow bus.
func NewIndicator(light Light, bus *events.Bus, logger logging.Logger) *Indicator {
	return &Indicator{
		light:       light,
		bus:         bus,
		logger:      logger,
		senderState: string(media.StateStopped),
	}
}

// Start subscribes to state events and turns the light off.
func (i *Indicator) Start() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.unsubscribe = append(i.unsubscribe,
		i.bus.Subscribe(func(e events.SenderStateChangedEvent) {
			i.update(func() { i.senderState = e.State })
		}),
		i.bus.Subscribe(func(e events.ReceiverStateChangedEvent) {
			i.update(func() { i.receiving = e.Running })
		}),
	)
	i.apply(Off)
	i.logger.Info("Tally indicator started", "led", i.light.Name())
}

// Stop unsubscribes and turns the light off.
func (i *Indicator) Stop() {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, u := range i.unsubscribe {
		u()
	}
	i.unsubscribe = nil
	i.apply(Off)
}

// Mode returns the mode last applied.
func (i *Indicator) Mode() Mode {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.mode
}

func (i *Indicator) update(change func()) {
	i.mu.Lock()
	defer i.mu.Unlock()
	change()
	i.apply(i.modeLocked())
}

func (i *Indicator) modeLocked() Mode {
	switch {
	case i.senderState == string(media.StateActive):
		return On
	case i.senderState == string(media.StateSuspended), i.receiving:
		return Blink
	default:
		return Off
	}
}

func (i *Indicator) apply(mode Mode) {
	if err := i.light.Set(mode); err != nil {
		i.logger.Warn("Failed to set tally LED", "mode", mode.String(), "error", err)
		return
	}
	if mode != i.mode {
		i.logger.Debug("Tally LED changed", "mode", mode.String())
	}
	i.mode = mode
}
