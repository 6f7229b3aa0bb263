package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/estately/presence-relay/internal/domain/event"
	"github.com/estately/presence-relay/internal/domain/model"
	"github.com/estately/presence-relay/internal/domain/registry"
	"github.com/estately/presence-relay/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 5, 6, 7, 8, 9, 10_000_000, time.UTC)

func clock() time.Time { return fixedNow }

func messages(events []event.Eventer) []model.MessageEnvelope {
	var out []model.MessageEnvelope
	for _, ev := range named(events, event.NameGetMessage) {
		out = append(out, ev.(*event.MessageEvent).Envelope())
	}
	return out
}

func TestRelay_DeliversAndEchoes(t *testing.T) {
	f := newFixture(t)
	r := f.relay(t, RelayOptions{Now: clock})
	a, b := f.connect(t, "A"), f.connect(t, "B")
	inbox(a)
	inbox(b)

	res := r.Relay(context.Background(), a, model.SendMessagePayload{
		ReceiverID: "B", Text: "hi", ChatID: "c1", MessageID: "m1",
	})
	assert.True(t, res.Delivered)
	assert.True(t, res.Echoed)
	assert.Equal(t, metrics.OutcomeDelivered, res.Outcome())

	want := model.MessageEnvelope{
		ID:         "m1",
		Text:       "hi",
		ChatID:     "c1",
		SenderID:   "A",
		ReceiverID: "B",
		CreatedAt:  "2024-05-06T07:08:09.010Z",
	}
	assert.Equal(t, []model.MessageEnvelope{want}, messages(inbox(b)))
	assert.Equal(t, []model.MessageEnvelope{want}, messages(inbox(a)))

	relayed := f.disp.byTopic(f.topics.MessageRelayed)
	require.Len(t, relayed, 1)
	assert.True(t, relayed[0].Payload.(model.MessageRelayed).Delivered)
	assert.Equal(t, uint64(1), f.counters.Delivered.Load())
}

func TestRelay_SenderIdentityComesFromConnection(t *testing.T) {
	f := newFixture(t)
	r := f.relay(t, RelayOptions{Now: clock})
	a, b := f.connect(t, "A"), f.connect(t, "B")
	inbox(b)

	res := r.Relay(context.Background(), a, model.SendMessagePayload{ReceiverID: "B", MessageID: "m1"})
	assert.Equal(t, "A", res.Envelope.SenderID)
	assert.Equal(t, "A", messages(inbox(b))[0].SenderID)
}

func TestRelay_OfflineReceiverEchoesOnly(t *testing.T) {
	f := newFixture(t)
	r := f.relay(t, RelayOptions{Now: clock})
	a := f.connect(t, "A")
	inbox(a)

	res := r.Relay(context.Background(), a, model.SendMessagePayload{ReceiverID: "C", Text: "x", MessageID: "m2"})
	assert.False(t, res.Resolved)
	assert.False(t, res.Delivered)
	assert.Equal(t, metrics.OutcomeOffline, res.Outcome())

	got := inbox(a)
	assert.Len(t, messages(got), 1)
	assert.Empty(t, named(got, event.NameMessageUndelivered))
	assert.Zero(t, f.counters.Delivered.Load())
	assert.Equal(t, uint64(1), f.counters.Relayed.Load())
}

func TestRelay_NotifyUndelivered(t *testing.T) {
	f := newFixture(t)
	r := f.relay(t, RelayOptions{NotifyUndelivered: true, Now: clock})
	a := f.connect(t, "A")
	inbox(a)

	r.Relay(context.Background(), a, model.SendMessagePayload{ReceiverID: "C", MessageID: "m2"})

	undelivered := named(inbox(a), event.NameMessageUndelivered)
	require.Len(t, undelivered, 1)
	assert.Equal(t, &model.UndeliveredPayload{ID: "m2", ReceiverID: "C"}, undelivered[0].GetPayload())
}

func TestRelay_SelfChatDeliveredOnce(t *testing.T) {
	f := newFixture(t)
	r := f.relay(t, RelayOptions{Now: clock})
	a := f.connect(t, "A")
	inbox(a)

	res := r.Relay(context.Background(), a, model.SendMessagePayload{ReceiverID: "A", MessageID: "m3"})
	assert.True(t, res.Delivered)
	assert.Len(t, messages(inbox(a)), 1)
}

func TestRelay_EmptyReceiverStillEchoes(t *testing.T) {
	f := newFixture(t)
	r := f.relay(t, RelayOptions{NotifyUndelivered: true, Now: clock})
	a := f.connect(t, "A")
	inbox(a)

	res := r.Relay(context.Background(), a, model.SendMessagePayload{Text: "hi", MessageID: "m1"})
	assert.True(t, res.Ignored)
	assert.True(t, res.Echoed)
	assert.False(t, res.Resolved)
	assert.Equal(t, metrics.OutcomeIgnored, res.Outcome())

	got := inbox(a)
	require.Len(t, messages(got), 1)
	assert.Equal(t, model.MessageEnvelope{
		ID:        "m1",
		Text:      "hi",
		SenderID:  "A",
		CreatedAt: "2024-05-06T07:08:09.010Z",
	}, messages(got)[0])
	assert.Empty(t, named(got, event.NameMessageUndelivered))
	assert.Zero(t, f.counters.Delivered.Load())
}

func TestRelay_DuplicateConnectionsReceiveViaAuthoritativeOnly(t *testing.T) {
	f := newFixture(t)
	r := f.relay(t, RelayOptions{Now: clock})
	a := f.connect(t, "A")
	b1, b2 := f.connect(t, "B"), f.connect(t, "B")
	inbox(b1)
	inbox(b2)

	r.Relay(context.Background(), a, model.SendMessagePayload{ReceiverID: "B", MessageID: "m4"})
	assert.Len(t, messages(inbox(b1)), 1)
	assert.Empty(t, messages(inbox(b2)))
}

func TestRelay_Dedup(t *testing.T) {
	f := newFixture(t)
	r := f.relay(t, RelayOptions{DedupSize: 16, Now: clock})
	a, b := f.connect(t, "A"), f.connect(t, "B")
	inbox(a)
	inbox(b)

	p := model.SendMessagePayload{ReceiverID: "B", MessageID: "m5"}
	first := r.Relay(context.Background(), a, p)
	second := r.Relay(context.Background(), a, p)
	assert.False(t, first.Duplicate)
	assert.True(t, second.Duplicate)
	assert.Len(t, messages(inbox(b)), 1)

	// Message ids are scoped per sender.
	res := r.Relay(context.Background(), b, model.SendMessagePayload{ReceiverID: "A", MessageID: "m5"})
	assert.False(t, res.Duplicate)
}

func TestRelay_DedupDisabledByDefault(t *testing.T) {
	f := newFixture(t)
	r := f.relay(t, RelayOptions{Now: clock})
	a, b := f.connect(t, "A"), f.connect(t, "B")
	inbox(b)

	p := model.SendMessagePayload{ReceiverID: "B", MessageID: "m6"}
	r.Relay(context.Background(), a, p)
	r.Relay(context.Background(), a, p)
	assert.Len(t, messages(inbox(b)), 2)
}

// The full lifecycle from the protocol description: A and B come online,
// exchange a message, then A leaves.
func TestScenario_TwoUsersChat(t *testing.T) {
	f := newFixture(t)
	r := NewRelayMiddleware(f.relay(t, RelayOptions{Now: clock}), slog.New(slog.DiscardHandler))

	a := f.connect(t, "A")
	assert.Equal(t, []string{"A"}, lastSnapshot(t, inbox(a)))

	b := f.connect(t, "B")
	assert.Equal(t, []string{"A", "B"}, lastSnapshot(t, inbox(a)))
	assert.Equal(t, []string{"A", "B"}, lastSnapshot(t, inbox(b)))

	r.Relay(context.Background(), a, model.SendMessagePayload{ReceiverID: "B", Text: "hello", ChatID: "c", MessageID: "1"})
	assert.Equal(t, "hello", messages(inbox(b))[0].Text)
	assert.Equal(t, "hello", messages(inbox(a))[0].Text)

	require.True(t, f.presence.Disconnect(context.Background(), a))
	assert.Equal(t, []string{"B"}, lastSnapshot(t, inbox(b)))

	res := r.Relay(context.Background(), b, model.SendMessagePayload{ReceiverID: "A", Text: "bye", MessageID: "2"})
	assert.False(t, res.Delivered)
	assert.Len(t, messages(inbox(b)), 1)
}

func TestRelay_EchoesKeepCallOrderUnderBackpressure(t *testing.T) {
	f := newFixture(t)
	r := f.relay(t, RelayOptions{Now: clock})
	a := registry.NewConnector(context.Background(), "A", 2, registry.ConnectMetadata{})
	require.NoError(t, f.presence.Connect(context.Background(), a))
	t.Cleanup(func() { f.presence.Disconnect(context.Background(), a) })

	for _, id := range []string{"m1", "m2", "m3"} {
		r.Relay(context.Background(), a, model.SendMessagePayload{ReceiverID: "Z", MessageID: id})
	}

	var ids []string
	for _, env := range messages(inbox(a)) {
		ids = append(ids, env.ID)
	}
	assert.Equal(t, []string{"m1", "m2"}, ids)
}

func TestRelay_OutcomeMetrics(t *testing.T) {
	f := newFixture(t)
	r := f.relay(t, RelayOptions{DedupSize: 4, Now: clock})
	a := f.connect(t, "A")

	counter := func(outcome string) float64 {
		return testutil.ToFloat64(metrics.MessagesRelayed.WithLabelValues(outcome))
	}
	offline, dup, ignored := counter(metrics.OutcomeOffline), counter(metrics.OutcomeDuplicate), counter(metrics.OutcomeIgnored)

	p := model.SendMessagePayload{ReceiverID: "Z", MessageID: "m9"}
	r.Relay(context.Background(), a, p)
	r.Relay(context.Background(), a, p)
	r.Relay(context.Background(), a, model.SendMessagePayload{})

	assert.Equal(t, offline+1, counter(metrics.OutcomeOffline))
	assert.Equal(t, dup+1, counter(metrics.OutcomeDuplicate))
	assert.Equal(t, ignored+1, counter(metrics.OutcomeIgnored))
}
