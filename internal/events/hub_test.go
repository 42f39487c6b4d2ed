package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHubRoutesByUser(t *testing.T) {
	hub := NewHub()
	elder := hub.Subscribe(4, "e1")
	carer := hub.Subscribe(4, "e1", "e2")
	other := hub.Subscribe(4, "e3")
	defer hub.Unsubscribe(elder)
	defer hub.Unsubscribe(carer)
	defer hub.Unsubscribe(other)

	hub.Publish(Event{Type: MedicineTaken, UserID: "e1", MedicineID: "m1"})

	got := <-elder
	require.Equal(t, MedicineTaken, got.Type)
	require.Equal(t, "m1", got.MedicineID)
	require.False(t, got.Timestamp.IsZero())

	got = <-carer
	require.Equal(t, "m1", got.MedicineID)

	require.Len(t, other, 0)
}

func TestHubDropsWhenSubscriberIsFull(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe(1, "e1")
	defer hub.Unsubscribe(ch)

	hub.Publish(Event{Type: MedicineSkipped, UserID: "e1"})
	hub.Publish(Event{Type: MedicineSnoozed, UserID: "e1"})

	require.Len(t, ch, 1)
	require.Equal(t, MedicineSkipped, (<-ch).Type)
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe(1, "e1")
	require.Equal(t, 1, hub.Subscribers())

	hub.Unsubscribe(ch)
	_, ok := <-ch
	require.False(t, ok)
	require.Equal(t, 0, hub.Subscribers())

	hub.Unsubscribe(ch)
	hub.Publish(Event{UserID: "e1"})
}
