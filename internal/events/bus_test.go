package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"printer-service/internal/model"
)

func startBus(t *testing.T) *Bus {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	bus := NewBus(zap.NewNop())
	go bus.Run(ctx)
	return bus
}

func receive(t *testing.T, ch <-chan model.Event) model.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return model.Event{}
	}
}

func TestBusTopicFiltering(t *testing.T) {
	require := require.New(t)
	bus := startBus(t)

	_, states := bus.Subscribe(model.EventStateChanged)
	_, all := bus.Subscribe()

	bus.Publish(model.NewEvent(model.EventSerialTrace, "dummy", model.SerialTraceData{Direction: "tx", Line: "G28"}))
	bus.Publish(model.NewEvent(model.EventStateChanged, "dummy", model.StateChangedData{
		Previous: model.StateClosed,
		Current:  model.StateConnecting,
	}))

	ev := receive(t, states)
	require.Equal(model.EventStateChanged, ev.Type)

	require.Equal(model.EventSerialTrace, receive(t, all).Type)
	require.Equal(model.EventStateChanged, receive(t, all).Type)

	select {
	case ev := <-states:
		t.Fatalf("unexpected event %s", ev.Type)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	require := require.New(t)
	bus := startBus(t)

	id, ch := bus.Subscribe()
	require.Equal(1, bus.SubscriberCount())

	bus.Unsubscribe(id)
	require.Zero(bus.SubscriberCount())

	_, open := <-ch
	require.False(open)

	// unknown IDs are ignored
	bus.Unsubscribe(id)
	bus.Publish(model.NewEvent(model.EventResponse, "dummy", nil))
}
