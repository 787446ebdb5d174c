// Package dispatch fans fired alerts out to the notification channels: the
// persistent history log, in-app toasts, the platform notification surface
// and the alert sound. Channels fail independently; one failing channel never
// blocks the others.
package dispatch

import (
	"time"

	"go.uber.org/zap"

	"premium-watch-go/infrastructure/logger"
	"premium-watch-go/monitor"
)

// Alert is one fired alert as handed to the channels.
type Alert struct {
	Title   string
	Body    string
	FiredAt time.Time
}

// Channel is one delivery target.
type Channel interface {
	Name() string
	Send(Alert) error
}

// Dispatcher delivers each alert to every channel in registration order.
type Dispatcher struct {
	channels []Channel
	log      *logger.Logger
	mon      *monitor.Monitor
	now      func() time.Time
}

// New builds a dispatcher over the given channels.
func New(log *logger.Logger, mon *monitor.Monitor, channels ...Channel) *Dispatcher {
	if log == nil {
		log = logger.Nop()
	}
	return &Dispatcher{
		channels: channels,
		log:      log.Named("dispatch"),
		mon:      mon,
		now:      time.Now,
	}
}

// Dispatch delivers the alert to every channel. Failures are logged and
// counted per channel, then skipped.
func (d *Dispatcher) Dispatch(title, body string) {
	a := Alert{Title: title, Body: body, FiredAt: d.now()}
	for _, ch := range d.channels {
		if err := ch.Send(a); err != nil {
			d.mon.RecordDispatchFailure(ch.Name())
			d.log.Warn("dispatch channel failed",
				zap.String("channel", ch.Name()), zap.Error(err))
		}
	}
}
