package chatapi

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
	"github.com/microcosm-cc/bluemonday"
	"github.com/prometheus/client_golang/prometheus/testutil"
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
	m := metric.New()
	return &Component{
		name:     "chat-api",
		config:   DefaultConfig(),
		store:    storagetest.Open(t),
		issuer:   apitest.NewIssuer(t),
		hub:      hub,
		notifier: realtime.NewNotifier(hub, m, nil),
		metrics:  m,
		upgrader: realtime.Upgrader(nil),
		policy:   bluemonday.StrictPolicy(),
		logger:   slog.Default(),
	}
}

// registerHandlers wires the component's handlers into a fresh mux and returns a test server.
func registerHandlers(c *Component) *httptest.Server {
	mux := http.NewServeMux()
	c.RegisterHTTPHandlers("api/core", mux)
	return httptest.NewServer(mux)
}

func dial(t *testing.T, srv *httptest.Server, receiverID int64, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat/" + apitest.ID(receiverID) + "/?token=" + token
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readJSON(t *testing.T, ws *websocket.Conn, dst any) {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, dst))
}

func TestHistoryAndMarkAsRead(t *testing.T) {
	c := setupTestComponent(t)
	srv := registerHandlers(c)
	defer srv.Close()

	ctx := context.Background()
	alice := storagetest.CreateUser(t, c.store, "alice", storage.RoleFounder)
	bob := storagetest.CreateUser(t, c.store, "bob", storage.RoleInvestor)
	carol := storagetest.CreateUser(t, c.store, "carol", storage.RoleExpert)
	for _, m := range []*storage.Message{
		{SenderID: alice.ID, ReceiverID: bob.ID, Content: "hi bob"},
		{SenderID: bob.ID, ReceiverID: alice.ID, Content: "hi alice"},
		{SenderID: bob.ID, ReceiverID: alice.ID, Content: "free tomorrow?"},
		{SenderID: carol.ID, ReceiverID: alice.ID, Content: "unrelated"},
	} {
		_, err := c.store.SendMessage(ctx, m)
		require.NoError(t, err)
	}
	token := apitest.Token(t, c.issuer, alice)

	resp := apitest.Do(t, http.MethodGet, srv.URL+"/api/core/chat/history/"+apitest.ID(bob.ID)+"/", token, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	var msgs []storage.Message
	resp.Decode(t, &msgs)
	require.Len(t, msgs, 3)
	assert.Equal(t, "hi bob", msgs[0].Content)
	assert.Equal(t, "bob", msgs[2].SenderUsername)

	missing := apitest.Do(t, http.MethodGet, srv.URL+"/api/core/chat/history/999/", token, nil)
	assert.Equal(t, http.StatusNotFound, missing.Status)
	assert.JSONEq(t, `{"error":"User not found"}`, string(missing.Body))

	read := apitest.Do(t, http.MethodPost, srv.URL+"/api/core/chat/mark-as-read/"+apitest.ID(bob.ID)+"/", token, nil)
	require.Equal(t, http.StatusOK, read.Status)
	assert.JSONEq(t, `{"ok":true,"updated":2}`, string(read.Body))

	again := apitest.Do(t, http.MethodPost, srv.URL+"/api/core/chat/mark-as-read/"+apitest.ID(bob.ID)+"/", token, nil)
	assert.JSONEq(t, `{"ok":true,"updated":0}`, string(again.Body))
}

func TestSocketRequiresToken(t *testing.T) {
	c := setupTestComponent(t)
	srv := registerHandlers(c)
	defer srv.Close()

	bob := storagetest.CreateUser(t, c.store, "bob", storage.RoleInvestor)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat/" + apitest.ID(bob.ID) + "/"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestChatRoom(t *testing.T) {
	c := setupTestComponent(t)
	srv := registerHandlers(c)
	defer srv.Close()

	alice := storagetest.CreateUser(t, c.store, "alice", storage.RoleFounder)
	bob := storagetest.CreateUser(t, c.store, "bob", storage.RoleInvestor)

	pushed := make(chan realtime.NotificationEvent, 4)
	unsub, err := c.hub.Subscribe(realtime.NotifySubject(bob.ID), func(data []byte) {
		var ev realtime.NotificationEvent
		assert.NoError(t, json.Unmarshal(data, &ev))
		pushed <- ev
	})
	require.NoError(t, err)
	defer unsub()

	aliceWS := dial(t, srv, bob.ID, apitest.Token(t, c.issuer, alice))
	bobWS := dial(t, srv, alice.ID, apitest.Token(t, c.issuer, bob))

	subject := realtime.ChatSubject(realtime.ChatRoom(alice.ID, bob.ID))
	require.Eventually(t, func() bool { return c.hub.Subscribers(subject) == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(c.metrics.WebSocketClients.WithLabelValues("chat")))

	require.NoError(t, aliceWS.WriteJSON(map[string]string{"message": "<script>x</script>Namaste"}))

	for _, ws := range []*websocket.Conn{aliceWS, bobWS} {
		var ev ChatEvent
		readJSON(t, ws, &ev)
		assert.Equal(t, EventChatMessage, ev.Type)
		assert.Equal(t, "Namaste", ev.Message)
		assert.Equal(t, alice.ID, ev.SenderID)
		assert.Equal(t, bob.ID, ev.ReceiverID)
		assert.False(t, ev.Timestamp.IsZero())
	}

	msgs, err := c.store.Conversation(context.Background(), alice.ID, bob.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.ChatMessages))
	select {
	case ev := <-pushed:
		assert.Equal(t, storage.NotifyMessage, ev.Notification.Type)
		assert.Equal(t, "You received a message from alice.", ev.Notification.Message)
	case <-time.After(5 * time.Second):
		t.Fatal("no notification pushed to the receiver")
	}

	t.Run("rejected frames only reach the sender", func(t *testing.T) {
		require.NoError(t, bobWS.WriteMessage(websocket.TextMessage, []byte("not json")))
		var ev ErrorEvent
		readJSON(t, bobWS, &ev)
		assert.Equal(t, EventError, ev.Type)

		require.NoError(t, bobWS.WriteJSON(map[string]string{"message": "   "}))
		readJSON(t, bobWS, &ev)
		assert.Equal(t, "Message cannot be empty", ev.Error)
	})
}

func TestSocketSelfChat(t *testing.T) {
	c := setupTestComponent(t)
	srv := registerHandlers(c)
	defer srv.Close()

	alice := storagetest.CreateUser(t, c.store, "alice", storage.RoleFounder)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat/" + apitest.ID(alice.ID) + "/?token=" + apitest.Token(t, c.issuer, alice)
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStopClosesSockets(t *testing.T) {
	c := setupTestComponent(t)
	srv := registerHandlers(c)
	defer srv.Close()

	require.NoError(t, c.Start(context.Background()))

	alice := storagetest.CreateUser(t, c.store, "alice", storage.RoleFounder)
	bob := storagetest.CreateUser(t, c.store, "bob", storage.RoleInvestor)
	ws := dial(t, srv, bob.ID, apitest.Token(t, c.issuer, alice))

	subject := realtime.ChatSubject(realtime.ChatRoom(alice.ID, bob.ID))
	require.Eventually(t, func() bool { return c.hub.Subscribers(subject) == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, c.Stop(time.Second))

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	require.Eventually(t, func() bool { return c.hub.Subscribers(subject) == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.WebSocketPrefix = "/"
	assert.Error(t, cfg.Validate())
}
