package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convo/internal/model"
)

type recordingPublisher struct {
	mu   sync.Mutex
	got  []Broadcast
	fail bool
}

func (p *recordingPublisher) Publish(_ context.Context, b Broadcast) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, b)
	if p.fail {
		return errors.New("transport down")
	}
	return nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	got  []model.NewMessagePayload
	fail bool
}

func (n *recordingNotifier) Notify(_ context.Context, p model.NewMessagePayload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, p)
	if n.fail {
		return errors.New("queue down")
	}
	return nil
}

func TestChannelNames(t *testing.T) {
	assert.Equal(t, "user.u1", UserChannel("u1"))
	assert.Equal(t, "chat.c1", ChatChannel("c1"))
	assert.Equal(t, "group.private.g1", GroupPrivateChannel("g1"))
	assert.Equal(t, "group.public.g1", GroupPublicChannel("g1"))
	assert.Equal(t, "group.presence.g1", GroupPresenceChannel("g1"))
	assert.Equal(t, "chat.c1", ContainerChannel(model.ChatRef("c1")))
	assert.Equal(t, "group.private.g1", ContainerChannel(model.GroupRef("g1")))
}

func TestDispatchDeliversAllEffects(t *testing.T) {
	pub := &recordingPublisher{}
	n := &recordingNotifier{}
	d := NewSyncDispatcher(pub, n)

	var fx Effects
	fx.Publish("chat.c1", EventMessageCreated, map[string]string{"id": "m1"}, "a", false)
	fx.Publish("chat.c1", EventUserEnteredChat, nil, "a", true)
	fx.Notify(model.NewMessagePayload{RecipientID: "b", Message: NewMessageText})

	d.Dispatch(context.Background(), fx)

	require.Len(t, pub.got, 2)
	assert.Equal(t, EventMessageCreated, pub.got[0].Event)
	assert.False(t, pub.got[0].ExcludeActor)
	assert.True(t, pub.got[1].ExcludeActor)
	assert.Equal(t, "a", pub.got[1].ActorID)
	require.Len(t, n.got, 1)
	assert.Equal(t, "b", n.got[0].RecipientID)
}

func TestDispatchSwallowsFailures(t *testing.T) {
	pub := &recordingPublisher{fail: true}
	n := &recordingNotifier{fail: true}
	d := NewSyncDispatcher(pub, n)

	var fx Effects
	fx.Publish("chat.c1", EventChatCreated, nil, "a", false)
	fx.Publish("chat.c1", EventChatDeleted, nil, "a", false)
	fx.Notify(model.NewMessagePayload{RecipientID: "b"})
	fx.Notify(model.NewMessagePayload{RecipientID: "c"})

	assert.NotPanics(t, func() { d.Dispatch(context.Background(), fx) })
	assert.Len(t, pub.got, 2, "a failed publish must not stop the rest")
	assert.Len(t, n.got, 2)
}

func TestDispatchAsyncWaits(t *testing.T) {
	n := &recordingNotifier{}
	d := NewDispatcher(nil, n)

	var fx Effects
	fx.Notify(model.NewMessagePayload{RecipientID: "b"})
	d.Dispatch(context.Background(), fx)
	d.Wait()

	assert.Len(t, n.got, 1)
}

func TestDispatchNilSafe(t *testing.T) {
	var d *Dispatcher
	assert.NotPanics(t, func() { d.Dispatch(context.Background(), Effects{}) })

	d = NewSyncDispatcher(nil, nil)
	var fx Effects
	fx.Publish("chat.c1", EventChatCreated, nil, "a", false)
	fx.Notify(model.NewMessagePayload{RecipientID: "b"})
	assert.NotPanics(t, func() { d.Dispatch(context.Background(), fx) })
}

func TestMultiPublisher(t *testing.T) {
	ok := &recordingPublisher{}
	bad := &recordingPublisher{fail: true}
	m := MultiPublisher{bad, ok}

	err := m.Publish(context.Background(), Broadcast{Channel: "chat.c1", Event: EventChatCreated})
	assert.Error(t, err)
	assert.Len(t, ok.got, 1)
	assert.Len(t, bad.got, 1)
}

func TestRevokeTravelsThroughUserChannel(t *testing.T) {
	var fx Effects
	fx.Revoke("u1")
	assert.True(t, fx.Empty())

	fx.Revoke("u1", GroupMemberChannels("g1")...)
	require.Len(t, fx.Broadcasts, 1)
	b := fx.Broadcasts[0]
	assert.Equal(t, "user.u1", b.Channel)
	assert.Equal(t, EventSubscriptionRevoked, b.Event)

	want := RevokedPayload{UserID: "u1", Channels: []string{"group.private.g1", "group.presence.g1"}}
	got, ok := DecodeRevoked(b.Payload)
	require.True(t, ok)
	assert.Equal(t, want, got)

	// После Redis-ретранслятора payload приходит сырым JSON.
	raw, err := json.Marshal(b.Payload)
	require.NoError(t, err)
	got, ok = DecodeRevoked(json.RawMessage(raw))
	require.True(t, ok)
	assert.Equal(t, want, got)

	_, ok = DecodeRevoked(json.RawMessage(`{"channels":["x"]}`))
	assert.False(t, ok)
}
