package redisclient

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dentalcare/slot-booking/internal/appointment"
)

func TestEventPublisherPublish(t *testing.T) {
	_, client := newTestRedis(t)
	ctx := context.Background()

	sub := client.Subscribe(ctx, "booking-events")
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	ev := appointment.Event{
		Type:          appointment.EventAppointmentCreated,
		AppointmentID: uuid.New(),
		DentistID:     uuid.New(),
		Date:          "2030-05-06",
		Time:          "10:00",
		Status:        appointment.StatusConfirmed,
		OccurredAt:    time.Date(2030, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, NewEventPublisher(client, "booking-events").Publish(ctx, ev))

	select {
	case msg := <-sub.Channel():
		var got appointment.Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, ev.AppointmentID, got.AppointmentID)
		assert.Equal(t, "10:00", got.Time)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}
