package events

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/hospital-appointment-api/internal/domain/entities"
	"github.com/zatekoja/hospital-appointment-api/internal/domain/providers"
)

func sampleEvent(name string) *entities.AppointmentEvent {
	return entities.NewAppointmentEvent(entities.AppointmentEventTypeBooked, entities.Appointment{
		Name:   name,
		Status: entities.AppointmentStatusWaiting,
	})
}

func waitForEvent(t *testing.T, ch <-chan *entities.AppointmentEvent) *entities.AppointmentEvent {
	t.Helper()
	select {
	case event, ok := <-ch:
		require.True(t, ok, "channel closed before event arrived")
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func waitForClose(t *testing.T, ch <-chan *entities.AppointmentEvent) {
	t.Helper()
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "expected channel to be closed")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestMemoryEventBus_Fanout(t *testing.T) {
	bus := NewMemoryEventBus(zerolog.Nop())
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub1, err := bus.Subscribe(ctx, providers.EventChannelAppointmentsBooked)
	require.NoError(t, err)
	sub2, err := bus.Subscribe(ctx, providers.EventChannelAppointmentsBooked)
	require.NoError(t, err)

	event := sampleEvent("Ayesha")
	require.NoError(t, bus.Publish(context.Background(), providers.EventChannelAppointmentsBooked, event))

	assert.Equal(t, event.ID, waitForEvent(t, sub1).ID)
	assert.Equal(t, event.ID, waitForEvent(t, sub2).ID)
}

func TestMemoryEventBus_ChannelsAreIsolated(t *testing.T) {
	bus := NewMemoryEventBus(zerolog.Nop())
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	other, err := bus.Subscribe(ctx, "other")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, providers.EventChannelAppointmentsBooked, sampleEvent("x")))

	select {
	case event := <-other:
		t.Fatalf("unexpected event %v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryEventBus_ContextCancelRemovesSubscriber(t *testing.T) {
	bus := NewMemoryEventBus(zerolog.Nop())
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := bus.Subscribe(ctx, providers.EventChannelAppointmentsBooked)
	require.NoError(t, err)

	cancel()
	waitForClose(t, sub)

	assert.NoError(t, bus.Publish(context.Background(), providers.EventChannelAppointmentsBooked, sampleEvent("late")))
}

func TestMemoryEventBus_FullSubscriberDropsEvents(t *testing.T) {
	bus := NewMemoryEventBus(zerolog.Nop())
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := bus.Subscribe(ctx, providers.EventChannelAppointmentsBooked)
	require.NoError(t, err)

	for i := 0; i < subscriberBuffer+10; i++ {
		require.NoError(t, bus.Publish(ctx, providers.EventChannelAppointmentsBooked, sampleEvent("flood")))
	}
	assert.Len(t, sub, subscriberBuffer)
}

func TestMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := NewMemoryEventBus(zerolog.Nop())
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := bus.Subscribe(ctx, providers.EventChannelAppointmentsBooked)
	require.NoError(t, err)

	require.NoError(t, bus.Unsubscribe(ctx, providers.EventChannelAppointmentsBooked))
	waitForClose(t, sub)

	// the context watcher must not close the channel a second time
	cancel()
	time.Sleep(20 * time.Millisecond)
}

func TestMemoryEventBus_Close(t *testing.T) {
	bus := NewMemoryEventBus(zerolog.Nop())

	sub, err := bus.Subscribe(context.Background(), providers.EventChannelAppointmentsBooked)
	require.NoError(t, err)

	require.NoError(t, bus.Close())
	waitForClose(t, sub)
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(context.Background(), providers.EventChannelAppointmentsBooked, sampleEvent("x")), ErrBusClosed)
	_, err = bus.Subscribe(context.Background(), providers.EventChannelAppointmentsBooked)
	assert.ErrorIs(t, err, ErrBusClosed)
}

func TestMemoryEventBus_RejectsNilEvent(t *testing.T) {
	bus := NewMemoryEventBus(zerolog.Nop())
	defer bus.Close()

	assert.Error(t, bus.Publish(context.Background(), providers.EventChannelAppointmentsBooked, nil))
}
