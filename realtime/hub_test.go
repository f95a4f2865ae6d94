package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/c360studio/sangam/natsutil/natstest"
)

func TestChatRoom(t *testing.T) {
	assert.Equal(t, "chat_3_12", ChatRoom(12, 3))
	assert.Equal(t, "chat_3_12", ChatRoom(3, 12))
	assert.Equal(t, "sangam.chat.chat_3_12", ChatSubject(ChatRoom(3, 12)))
	assert.Equal(t, "sangam.notify.42", NotifySubject(42))
}

func TestHubFanOut(t *testing.T) {
	broker := NewLocalBroker()
	hub := NewHub(broker, nil)
	defer hub.Close()

	var (
		mu  sync.Mutex
		got []string
	)
	record := func(tag string) Handler {
		return func(data []byte) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, tag+":"+string(data))
		}
	}

	unsubA, err := hub.Subscribe("room", record("a"))
	require.NoError(t, err)
	unsubB, err := hub.Subscribe("room", record("b"))
	require.NoError(t, err)
	assert.Equal(t, 2, hub.Subscribers("room"))

	require.NoError(t, hub.Publish("room", "hi"))
	mu.Lock()
	assert.ElementsMatch(t, []string{`a:"hi"`, `b:"hi"`}, got)
	got = nil
	mu.Unlock()

	unsubA()
	unsubA() // idempotent
	require.NoError(t, hub.Publish("room", 1))
	mu.Lock()
	assert.Equal(t, []string{"b:1"}, got)
	mu.Unlock()

	unsubB()
	assert.Zero(t, hub.Subscribers("room"))
	broker.mu.RLock()
	assert.Empty(t, broker.subs, "last local handler drops the broker subscription")
	broker.mu.RUnlock()
}

func TestHubOverNATS(t *testing.T) {
	nc := natstest.Start(t)

	// Two hubs on separate connections model two server processes.
	other, err := natstestConn(t, nc.ClientURL())
	require.NoError(t, err)

	sender := NewHub(NewNATSBroker(nc.NC), nil)
	receiver := NewHub(NewNATSBroker(other), nil)
	defer sender.Close()
	defer receiver.Close()

	received := make(chan []byte, 1)
	unsub, err := receiver.Subscribe(NotifySubject(5), func(data []byte) { received <- data })
	require.NoError(t, err)
	defer unsub()
	require.NoError(t, other.Flush())

	require.NoError(t, sender.Publish(NotifySubject(5), map[string]string{"title": "hello"}))

	select {
	case data := <-received:
		var msg map[string]string
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, "hello", msg["title"])
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for cross-connection delivery")
	}
}

func TestSocketEcho(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := Upgrade(Upgrader(nil), w, r, nil)
		if err != nil {
			return
		}
		wg.Add(1)
		defer wg.Done()
		s.Run(ctx, func(data []byte) {
			_ = s.Send([]byte(strings.ToUpper(string(data))))
		})
	}))
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("namaste")))
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "NAMASTE", string(data))

	require.NoError(t, ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	ws.Close()
	wg.Wait()
	srv.CloseClientConnections()
}

func TestSocketSendAfterClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := Upgrade(Upgrader(nil), w, r, nil)
		if err != nil {
			return
		}
		s.Close()
		assert.Error(t, s.Send([]byte("late")))
	}))
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	ws.Close()
}

func TestSocketForward(t *testing.T) {
	hub := NewHub(NewLocalBroker(), nil)
	defer hub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	subscribed := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := Upgrade(Upgrader(nil), w, r, nil)
		if err != nil {
			return
		}
		unsub, err := s.Forward(hub, NotifySubject(3))
		if !assert.NoError(t, err) {
			s.Close()
			return
		}
		defer unsub()
		close(subscribed)
		s.Run(ctx, func([]byte) {})
	}))
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer ws.Close()

	<-subscribed
	require.NoError(t, hub.Publish(NotifySubject(3), map[string]string{"type": "notification"}))

	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"notification"}`, string(data))
}

func TestSocketGreetPrecedesQueued(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := Upgrade(Upgrader(nil), w, r, nil)
		if err != nil {
			return
		}
		require.NoError(t, s.Send([]byte("queued")))
		s.Greet([]byte("greeting"))
		s.Run(ctx, func([]byte) {})
	}))
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer ws.Close()

	for _, want := range []string{"greeting", "queued"} {
		_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := ws.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, want, string(data))
	}
}
