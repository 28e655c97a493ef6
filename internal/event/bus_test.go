package event

import (
	"context"
	"testing"

	"github.com/dicomiot/dhome-core/internal/device"
)

func TestPublishOrder(t *testing.T) {
	bus := NewBus(nil)

	var got []string
	bus.Subscribe(func(_ context.Context, e any) {
		got = append(got, "first:"+eventName(e))
	})
	bus.Subscribe(func(_ context.Context, e any) {
		got = append(got, "second:"+eventName(e))
	})

	bus.Publish(context.Background(), ChannelUpdated{Update: device.ChannelUpdate{ID: "chan-1"}})

	want := []string{"first:channel_updated", "second:channel_updated"}
	if len(got) != len(want) {
		t.Fatalf("deliveries = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delivery %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestPanickingHandlerIsIsolated(t *testing.T) {
	bus := NewBus(nil)

	bus.Subscribe(func(_ context.Context, _ any) {
		panic("boom")
	})
	delivered := false
	bus.Subscribe(func(_ context.Context, _ any) {
		delivered = true
	})

	bus.Publish(context.Background(), DoorbellRang{})

	if !delivered {
		t.Error("panic in one handler blocked delivery to the next")
	}
}

func TestNilHandlerIgnored(t *testing.T) {
	bus := NewBus(nil)
	bus.Subscribe(nil)
	// Must not panic.
	bus.Publish(context.Background(), DeviceRemoved{DeviceID: "dev-1"})
}
