package realtime

import (
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/sangam/metric"
	"github.com/c360studio/sangam/storage"
)

func TestNotifierPush(t *testing.T) {
	hub := NewHub(NewLocalBroker(), nil)
	defer hub.Close()
	m := metric.New()
	n := NewNotifier(hub, m, nil)

	var got []NotificationEvent
	unsub, err := hub.Subscribe(NotifySubject(7), func(data []byte) {
		var ev NotificationEvent
		require.NoError(t, json.Unmarshal(data, &ev))
		got = append(got, ev)
	})
	require.NoError(t, err)
	defer unsub()

	n.Push(&storage.Notification{ID: 1, UserID: 7, Type: storage.NotifyBooking, Title: "New Session Booking"})
	n.Push(&storage.Notification{ID: 2, UserID: 8, Type: storage.NotifyBooking})

	require.Len(t, got, 1)
	assert.Equal(t, EventNotification, got[0].Type)
	assert.Equal(t, "New Session Booking", got[0].Notification.Title)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Notifications.WithLabelValues("BOOKING")))
}

func TestNilNotifier(t *testing.T) {
	var n *Notifier
	assert.NotPanics(t, func() { n.Push(&storage.Notification{UserID: 1}) })
	assert.NotPanics(t, func() { NewNotifier(nil, nil, nil).Push(&storage.Notification{UserID: 1}) })
}
