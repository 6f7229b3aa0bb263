package service

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/estately/presence-relay/internal/adapter/pubsub"
	"github.com/estately/presence-relay/internal/domain/event"
	"github.com/estately/presence-relay/internal/domain/model"
	"github.com/estately/presence-relay/internal/domain/registry"
	"github.com/stretchr/testify/require"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	events []*model.OutboundEvent
}

func (d *recordingDispatcher) Dispatch(ev *model.OutboundEvent) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
	return true
}

func (d *recordingDispatcher) Publisher() message.Publisher    { return nil }
func (d *recordingDispatcher) Close(ctx context.Context) error { return nil }

func (d *recordingDispatcher) byTopic(topic string) []*model.OutboundEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*model.OutboundEvent
	for _, ev := range d.events {
		if ev.Topic == topic {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	reg      *registry.Registry
	disp     *recordingDispatcher
	topics   pubsub.Topics
	counters *Counters
	presence *PresenceService
}

func newFixture(t *testing.T, opts ...registry.Option) *fixture {
	t.Helper()
	f := &fixture{
		reg:      registry.New(opts...),
		disp:     &recordingDispatcher{},
		topics:   pubsub.NewTopics("test"),
		counters: NewCounters(),
	}
	f.presence = NewPresenceService(f.reg, f.disp, f.topics, f.counters, slog.New(slog.DiscardHandler))
	return f
}

func (f *fixture) relay(t *testing.T, opts RelayOptions) *RelayService {
	t.Helper()
	r, err := NewRelayService(f.reg, f.disp, f.topics, f.counters, opts)
	require.NoError(t, err)
	return r
}

func (f *fixture) connect(t *testing.T, userID string) registry.Mailbox {
	t.Helper()
	c := registry.NewConnector(context.Background(), userID, 64, registry.ConnectMetadata{Transport: "test"})
	require.NoError(t, f.presence.Connect(context.Background(), c))
	t.Cleanup(func() { f.presence.Disconnect(context.Background(), c) })
	return c
}

// inbox takes everything queued on c.
func inbox(c registry.Mailbox) []event.Eventer {
	return c.Drain()
}

func named(events []event.Eventer, name string) []event.Eventer {
	var out []event.Eventer
	for _, ev := range events {
		if ev.GetName() == name {
			out = append(out, ev)
		}
	}
	return out
}

func lastSnapshot(t *testing.T, events []event.Eventer) []string {
	t.Helper()
	snaps := named(events, event.NameOnlineUsers)
	require.NotEmpty(t, snaps)
	return snaps[len(snaps)-1].(*event.PresenceEvent).Users()
}
