package socketio

import (
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/estately/presence-relay/config"
	"github.com/estately/presence-relay/internal/adapter/pubsub"
	"github.com/estately/presence-relay/internal/domain/registry"
	"github.com/estately/presence-relay/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sioclient "github.com/zishang520/socket.io/clients/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"
)

type testServer struct {
	url string
	reg *registry.Registry
}

func startServer(t *testing.T) *testServer {
	t.Helper()

	cfg := &config.Config{
		SocketIO: config.SocketIOConfig{Path: "/socket.io/"},
		Transport: config.TransportConfig{
			PingInterval: time.Second,
			PingTimeout:  5 * time.Second,
			MailboxSize:  16,
		},
	}
	logger := slog.New(slog.DiscardHandler)

	reg := registry.New()
	dispatcher := pubsub.NewEventDispatcher(nil, 1, logger)
	topics := pubsub.NewTopics("test")
	counters := service.NewCounters()
	presence := service.NewPresenceService(reg, dispatcher, topics, counters, logger)
	relay, err := service.NewRelayService(reg, dispatcher, topics, counters, service.RelayOptions{})
	require.NoError(t, err)

	s := NewServer(cfg, logger, presence, relay)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Close()
		srv.Close()
	})
	return &testServer{url: srv.URL, reg: reg}
}

// recorder collects every payload a client socket receives, per event.
type recorder struct {
	mu     sync.Mutex
	events map[string][]any
}

func record(sock *sioclient.Socket, names ...string) *recorder {
	r := &recorder{events: map[string][]any{}}
	for _, name := range names {
		sock.On(types.EventName(name), func(args ...any) {
			r.mu.Lock()
			defer r.mu.Unlock()
			var payload any
			if len(args) > 0 {
				payload = args[0]
			}
			r.events[name] = append(r.events[name], payload)
		})
	}
	return r
}

func (r *recorder) get(name string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.events[name]...)
}

// lastRoster returns the newest onlineUsers payload, or nil if none arrived
// or it was not a list of strings.
func (r *recorder) lastRoster() []string {
	got := r.get("onlineUsers")
	if len(got) == 0 {
		return nil
	}
	raw, ok := got[len(got)-1].([]any)
	if !ok {
		return nil
	}
	users := make([]string, 0, len(raw))
	for _, u := range raw {
		id, ok := u.(string)
		if !ok {
			return nil
		}
		users = append(users, id)
	}
	return users
}

func dialSocket(t *testing.T, ts *testServer, auth map[string]any) *sioclient.Socket {
	t.Helper()

	opts := sioclient.DefaultOptions()
	opts.SetPath("/socket.io/")
	opts.SetTransports(types.NewSet(sioclient.Polling, sioclient.WebSocket))
	opts.SetAuth(auth)

	sock, err := sioclient.Connect(ts.url, opts)
	require.NoError(t, err)
	t.Cleanup(func() { sock.Close() })
	return sock
}

func waitConnected(t *testing.T, sock *sioclient.Socket) {
	t.Helper()
	require.Eventually(t, sock.Connected, 5*time.Second, 10*time.Millisecond)
}

func TestServer_MissingUserIDIsDisconnected(t *testing.T) {
	ts := startServer(t)

	disconnected := make(chan struct{}, 1)
	sock := dialSocket(t, ts, map[string]any{"token": "x"})
	sock.On(types.EventName("disconnect"), func(args ...any) {
		select {
		case disconnected <- struct{}{}:
		default:
		}
	})

	select {
	case <-disconnected:
	case <-time.After(5 * time.Second):
		t.Fatal("socket without userId was not disconnected")
	}
	assert.Zero(t, ts.reg.Stats().Sessions)
	assert.Empty(t, ts.reg.Snapshot())
}

func TestServer_PresenceRelayAndAck(t *testing.T) {
	ts := startServer(t)

	a := dialSocket(t, ts, map[string]any{"userId": "A"})
	recA := record(a, "onlineUsers", "getMessage")
	waitConnected(t, a)
	require.Eventually(t, func() bool { return len(ts.reg.Snapshot()) == 1 }, 5*time.Second, 10*time.Millisecond)

	b := dialSocket(t, ts, map[string]any{"userId": "B"})
	recB := record(b, "onlineUsers", "getMessage")
	waitConnected(t, b)

	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"A", "B"}, recA.lastRoster())
	}, 5*time.Second, 10*time.Millisecond)

	acks := make(chan map[string]any, 1)
	require.NoError(t, a.Emit("sendMessage", map[string]any{
		"receiverId": "B",
		"text":       "hello",
		"chatId":     "c1",
		"messageId":  "m1",
	}, func(args []any, err error) {
		if err != nil || len(args) == 0 {
			acks <- nil
			return
		}
		resp, _ := args[0].(map[string]any)
		acks <- resp
	}))

	select {
	case ack := <-acks:
		assert.Equal(t, map[string]any{"ok": true, "delivered": true}, ack)
	case <-time.After(5 * time.Second):
		t.Fatal("sendMessage was not acknowledged")
	}

	require.Eventually(t, func() bool {
		return len(recB.get("getMessage")) == 1 && len(recA.get("getMessage")) == 1
	}, 5*time.Second, 10*time.Millisecond)

	got := recB.get("getMessage")[0].(map[string]any)
	assert.Equal(t, "m1", got["id"])
	assert.Equal(t, "A", got["senderId"])
	assert.Equal(t, "B", got["receiverId"])
	assert.Equal(t, "hello", got["text"])
	assert.NotEmpty(t, got["createdAt"])
	assert.Equal(t, got, recA.get("getMessage")[0])

	a.Close()
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"B"}, recB.lastRoster())
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"B"}, ts.reg.Snapshot())
}

func TestServer_EchoWithoutReceiver(t *testing.T) {
	ts := startServer(t)

	a := dialSocket(t, ts, map[string]any{"userId": "A"})
	rec := record(a, "getMessage")
	waitConnected(t, a)
	require.Eventually(t, func() bool { return len(ts.reg.Snapshot()) == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, a.Emit("sendMessage", map[string]any{"text": "draft", "messageId": "d1"}))

	require.Eventually(t, func() bool { return len(rec.get("getMessage")) == 1 }, 5*time.Second, 10*time.Millisecond)
	echo := rec.get("getMessage")[0].(map[string]any)
	assert.Equal(t, "d1", echo["id"])
	assert.Equal(t, "A", echo["senderId"])
}
