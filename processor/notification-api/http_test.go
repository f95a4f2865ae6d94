package notificationapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/sangam/api/apitest"
	"github.com/c360studio/sangam/metric"
	"github.com/c360studio/sangam/realtime"
	"github.com/c360studio/sangam/storage"
	"github.com/c360studio/sangam/storage/storagetest"
)

// setupTestComponent creates a Component backed by a temp store and an
// in-process hub.
func setupTestComponent(t *testing.T) *Component {
	t.Helper()

	hub := realtime.NewHub(realtime.NewLocalBroker(), nil)
	t.Cleanup(hub.Close)
	return &Component{
		name:     "notification-api",
		config:   DefaultConfig(),
		store:    storagetest.Open(t),
		issuer:   apitest.NewIssuer(t),
		hub:      hub,
		metrics:  metric.New(),
		upgrader: realtime.Upgrader(nil),
		logger:   slog.Default(),
	}
}

// registerHandlers wires the component's handlers into a fresh mux and returns a test server.
func registerHandlers(c *Component) *httptest.Server {
	mux := http.NewServeMux()
	c.RegisterHTTPHandlers("api/core", mux)
	return httptest.NewServer(mux)
}

func notify(t *testing.T, c *Component, userID int64, title string) *storage.Notification {
	t.Helper()
	n := &storage.Notification{UserID: userID, Type: storage.NotifyBooking, Title: title, Message: title}
	require.NoError(t, c.store.CreateNotification(context.Background(), n))
	return n
}

func TestNotificationEndpoints(t *testing.T) {
	c := setupTestComponent(t)
	srv := registerHandlers(c)
	defer srv.Close()

	alice := storagetest.CreateUser(t, c.store, "alice", storage.RoleFounder)
	bob := storagetest.CreateUser(t, c.store, "bob", storage.RoleInvestor)
	first := notify(t, c, alice.ID, "first")
	notify(t, c, alice.ID, "second")
	theirs := notify(t, c, bob.ID, "bob's")
	token := apitest.Token(t, c.issuer, alice)
	base := srv.URL + "/api/core/notifications/"

	list := apitest.Do(t, http.MethodGet, base, token, nil)
	require.Equal(t, http.StatusOK, list.Status)
	var got []storage.Notification
	list.Decode(t, &got)
	require.Len(t, got, 2)
	assert.Equal(t, "second", got[0].Title)

	count := apitest.Do(t, http.MethodGet, base+"unread-count/", token, nil)
	assert.JSONEq(t, `{"count":2}`, string(count.Body))

	read := apitest.Do(t, http.MethodPost, base+apitest.ID(first.ID)+"/read/", token, nil)
	require.Equal(t, http.StatusOK, read.Status)
	assert.Equal(t, true, read.Map(t)["read"])
	assert.Equal(t, "first", read.Map(t)["title"])

	foreign := apitest.Do(t, http.MethodPost, base+apitest.ID(theirs.ID)+"/read/", token, nil)
	assert.Equal(t, http.StatusNotFound, foreign.Status)
	assert.JSONEq(t, `{"error":"Not found"}`, string(foreign.Body))

	count = apitest.Do(t, http.MethodGet, base+"unread-count/", token, nil)
	assert.JSONEq(t, `{"count":1}`, string(count.Body))

	all := apitest.Do(t, http.MethodPost, base+"read-all/", token, nil)
	require.Equal(t, http.StatusOK, all.Status)
	assert.JSONEq(t, `{"ok":true}`, string(all.Body))

	count = apitest.Do(t, http.MethodGet, base+"unread-count/", token, nil)
	assert.JSONEq(t, `{"count":0}`, string(count.Body))

	bobCount := apitest.Do(t, http.MethodGet, base+"unread-count/", apitest.Token(t, c.issuer, bob), nil)
	assert.JSONEq(t, `{"count":1}`, string(bobCount.Body))
}

func TestLiveFeed(t *testing.T) {
	c := setupTestComponent(t)
	srv := registerHandlers(c)
	defer srv.Close()

	alice := storagetest.CreateUser(t, c.store, "alice", storage.RoleFounder)
	notify(t, c, alice.ID, "waiting")

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/notifications/?token=" + apitest.Token(t, c.issuer, alice)
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	read := func(dst any) {
		t.Helper()
		require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, data, err := ws.ReadMessage()
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, dst))
	}

	var count UnreadCount
	read(&count)
	assert.Equal(t, UnreadCount{Type: EventUnreadCount, Count: 1}, count)

	// The feed is subscribed before the count frame is written, so nothing
	// created after the count can slip past the client.
	assert.Equal(t, 1, c.hub.Subscribers(realtime.NotifySubject(alice.ID)))

	notifier := realtime.NewNotifier(c.hub, nil, nil)
	notifier.Push(notify(t, c, alice.ID, "Trial Proposal"))

	var ev realtime.NotificationEvent
	read(&ev)
	assert.Equal(t, realtime.EventNotification, ev.Type)
	assert.Equal(t, "Trial Proposal", ev.Notification.Title)
}

func TestLiveFeedRequiresToken(t *testing.T) {
	c := setupTestComponent(t)
	srv := registerHandlers(c)
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/notifications/", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
