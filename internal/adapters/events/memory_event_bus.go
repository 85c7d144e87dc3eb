package events

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/zatekoja/hospital-appointment-api/internal/domain/entities"
	"github.com/zatekoja/hospital-appointment-api/internal/domain/providers"
)

// subscriberBuffer is the per-subscriber queue depth before events are dropped
const subscriberBuffer = 100

// ErrBusClosed is returned by operations on a closed event bus
var ErrBusClosed = errors.New("event bus is closed")

// MemoryEventBus implements the EventBus interface in-process. It is used
// when Redis is disabled, so live streams only see bookings made by this
// process.
type MemoryEventBus struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan *entities.AppointmentEvent]struct{}
	closed      bool
	logger      zerolog.Logger
}

// NewMemoryEventBus creates a new in-process event bus
func NewMemoryEventBus(logger zerolog.Logger) providers.EventBus {
	return &MemoryEventBus{
		subscribers: make(map[string]map[chan *entities.AppointmentEvent]struct{}),
		logger:      logger,
	}
}

// Publish delivers event to every current subscriber of channel without
// blocking; a full subscriber misses the event.
func (b *MemoryEventBus) Publish(ctx context.Context, channel string, event *entities.AppointmentEvent) error {
	if event == nil {
		return errors.New("event is required")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBusClosed
	}

	for subscriber := range b.subscribers[channel] {
		select {
		case subscriber <- event:
		default:
			b.logger.Warn().
				Str("channel", channel).
				Str("event_id", event.ID).
				Msg("subscriber channel full, skipping event")
		}
	}
	return nil
}

// Subscribe returns a channel that receives events until ctx is done
func (b *MemoryEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.AppointmentEvent, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBusClosed
	}
	if b.subscribers[channel] == nil {
		b.subscribers[channel] = make(map[chan *entities.AppointmentEvent]struct{})
	}
	eventChan := make(chan *entities.AppointmentEvent, subscriberBuffer)
	b.subscribers[channel][eventChan] = struct{}{}
	count := len(b.subscribers[channel])
	b.mu.Unlock()

	b.logger.Debug().Str("channel", channel).Int("subscribers", count).Msg("subscribed")

	go func() {
		<-ctx.Done()
		b.removeSubscriber(channel, eventChan)
	}()

	return eventChan, nil
}

func (b *MemoryEventBus) removeSubscriber(channel string, eventChan chan *entities.AppointmentEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subscribers, ok := b.subscribers[channel]
	if !ok {
		return
	}
	if _, ok := subscribers[eventChan]; !ok {
		return
	}
	delete(subscribers, eventChan)
	close(eventChan)
	if len(subscribers) == 0 {
		delete(b.subscribers, channel)
	}
}

// Unsubscribe closes every subscriber of channel
func (b *MemoryEventBus) Unsubscribe(ctx context.Context, channel string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for subscriber := range b.subscribers[channel] {
		close(subscriber)
	}
	delete(b.subscribers, channel)
	return nil
}

// Close closes all subscriptions; later calls to Publish and Subscribe fail
func (b *MemoryEventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for channel, subscribers := range b.subscribers {
		for subscriber := range subscribers {
			close(subscriber)
		}
		delete(b.subscribers, channel)
	}
	b.logger.Debug().Msg("event bus closed")
	return nil
}
