// Package event is the in-process fan-out between the gateway core
// and the message-bus publishers. The orchestrator publishes an event
// only after the underlying database transaction has committed, so
// subscribers never observe state that could still roll back.
package event

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dicomiot/dhome-core/internal/alarm"
	"github.com/dicomiot/dhome-core/internal/device"
	"github.com/dicomiot/dhome-core/internal/notification"
)

// DeviceAdded fires after a join interview has been committed.
type DeviceAdded struct {
	View        *device.DeviceView
	SecureRules []alarm.RuleView
}

// DeviceRemoved fires after a device and its channels are deleted.
type DeviceRemoved struct {
	DeviceID string
	IEEE     string
}

// ChannelRemoved fires after a single channel is deleted.
type ChannelRemoved struct {
	ChannelID     string
	IEEE          string
	DeviceRemoved bool
}

// ChannelUpdated fires after an attribute report changed a channel's
// status vector.
type ChannelUpdated struct {
	Update device.ChannelUpdate
}

// RuleExecuted fires after a rule ran, carrying the mode it engaged.
type RuleExecuted struct {
	Rule *alarm.Rule
}

// NotificationAdded fires after a notification was committed.
type NotificationAdded struct {
	Notification *notification.Notification
}

// DoorbellRang fires on a doorbell press relayed from the cloud.
type DoorbellRang struct{}

// Handler receives every published event and type-switches on the
// ones it cares about.
type Handler func(ctx context.Context, e any)

// Bus is a synchronous fan-out. Publish calls each handler in
// subscription order on the caller's goroutine; a panicking handler
// is logged and skipped, never taking the publisher down.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
	logger   *slog.Logger
}

// NewBus creates an event bus. logger may be nil.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger}
}

// Subscribe registers a handler for all future events.
func (b *Bus) Subscribe(h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish delivers the event to every subscriber.
func (b *Bus) Publish(ctx context.Context, e any) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.dispatch(ctx, h, e)
	}
}

func (b *Bus) dispatch(ctx context.Context, h Handler, e any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", eventName(e),
				"panic", r)
		}
	}()
	h(ctx, e)
}

func eventName(e any) string {
	switch e.(type) {
	case DeviceAdded:
		return "device_added"
	case DeviceRemoved:
		return "device_removed"
	case ChannelRemoved:
		return "channel_removed"
	case ChannelUpdated:
		return "channel_updated"
	case RuleExecuted:
		return "rule_executed"
	case NotificationAdded:
		return "notification_added"
	case DoorbellRang:
		return "doorbell_rang"
	default:
		return "unknown"
	}
}
