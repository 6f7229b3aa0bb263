package service

import (
	"context"
	"testing"

	"github.com/estately/presence-relay/internal/domain/event"
	"github.com/estately/presence-relay/internal/domain/model"
	"github.com/estately/presence-relay/internal/domain/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresence_ConnectBroadcastsAndPublishes(t *testing.T) {
	f := newFixture(t)
	a := f.connect(t, "A")
	b := f.connect(t, "B")

	assert.Equal(t, []string{"A", "B"}, lastSnapshot(t, inbox(a)))
	assert.Equal(t, []string{"A", "B"}, lastSnapshot(t, inbox(b)))
	assert.Equal(t, []string{"A", "B"}, f.presence.Snapshot())

	published := f.disp.byTopic(f.topics.PresenceChanged)
	require.Len(t, published, 2)
	last := published[1].Payload.(model.PresenceChanged)
	assert.Equal(t, "B", last.UserID)
	assert.True(t, last.Online)
}

func TestPresence_RejectedConnectLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	c := registry.NewConnector(context.Background(), "A", 4, registry.ConnectMetadata{})
	c.Close()

	err := f.presence.Connect(context.Background(), c)
	require.ErrorIs(t, err, registry.ErrConnectionClosed)
	assert.Empty(t, f.presence.Snapshot())
	assert.Empty(t, f.disp.byTopic(f.topics.PresenceChanged))
}

func TestPresence_DisconnectOnceOnly(t *testing.T) {
	f := newFixture(t)
	a := f.connect(t, "A")
	b := f.connect(t, "B")
	inbox(b)

	require.True(t, f.presence.Disconnect(context.Background(), a))
	require.False(t, f.presence.Disconnect(context.Background(), a))

	got := named(inbox(b), event.NameOnlineUsers)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"B"}, got[0].(*event.PresenceEvent).Users())

	// Disconnect closes the handle.
	select {
	case <-a.Done():
	default:
		t.Fatal("connection left open")
	}

	offline := f.disp.byTopic(f.topics.PresenceChanged)
	last := offline[len(offline)-1].Payload.(model.PresenceChanged)
	assert.Equal(t, "A", last.UserID)
	assert.False(t, last.Online)
}

func TestPresence_DuplicateDisconnectPublishesNoOffline(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "A")
	dup := f.connect(t, "A")

	require.Len(t, f.disp.byTopic(f.topics.PresenceChanged), 1)
	require.True(t, f.presence.Disconnect(context.Background(), dup))
	require.Len(t, f.disp.byTopic(f.topics.PresenceChanged), 1)
	assert.Equal(t, []string{"A"}, f.presence.Snapshot())
}

func TestPresence_Stats(t *testing.T) {
	f := newFixture(t, registry.WithPolicy(registry.LastWins))
	f.connect(t, "A")
	f.connect(t, "A")
	f.counters.Relayed.Add(3)
	f.counters.Delivered.Add(2)

	st := f.presence.Stats()
	assert.Equal(t, 1, st.OnlineUsers)
	assert.Equal(t, 2, st.Sessions)
	assert.Equal(t, "last_wins", st.Policy)
	assert.Equal(t, uint64(3), st.Relayed)
	assert.Equal(t, uint64(2), st.Delivered)
}
