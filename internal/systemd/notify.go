// Package systemd reports service readiness and liveness to systemd.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/smazurov/avsync/internal/logging"
)

// notifyFunc matches daemon.SdNotify.
type notifyFunc func(unsetEnvironment bool, state string) (bool, error)

// Notifier sends sd_notify messages. Outside systemd every call is a no-op.
type Notifier struct {
	notify   notifyFunc
	interval func() (time.Duration, error)
	logger   logging.Logger
}

// NewNotifier creates a notifier using $NOTIFY_SOCKET.
func NewNotifier(logger logging.Logger) *Notifier {
	return &Notifier{
		notify:   daemon.SdNotify,
		interval: func() (time.Duration, error) { return daemon.SdWatchdogEnabled(false) },
		logger:   logger,
	}
}

// Ready tells systemd that startup finished.
func (n *Notifier) Ready() { n.send(daemon.SdNotifyReady) }

// Stopping tells systemd that shutdown began.
func (n *Notifier) Stopping() { n.send(daemon.SdNotifyStopping) }

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(msg string) { n.send("STATUS=" + msg) }

// Watchdog pings the systemd watchdog at half its interval while healthy
// reports true, until ctx ends. It returns at once when the unit has no
// watchdog.
func (n *Notifier) Watchdog(ctx context.Context, healthy func() bool) {
	interval, err := n.interval()
	if err != nil {
		n.logger.Warn("Failed to read watchdog interval", "error", err)
		return
	}
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	n.logger.Debug("Watchdog enabled", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if healthy != nil && !healthy() {
				n.logger.Warn("Skipping watchdog ping, service unhealthy")
				continue
			}
			n.send(daemon.SdNotifyWatchdog)
		}
	}
}

func (n *Notifier) send(state string) {
	sent, err := n.notify(false, state)
	if err != nil {
		n.logger.Warn("sd_notify failed", "state", state, "error", err)
		return
	}
	if sent {
		n.logger.Debug("sd_notify sent", "state", state)
	}
}
