package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func testClient(h *Hub, id string, buffer int) *Client {
	return &Client{ID: id, hub: h, send: make(chan WSMessage, buffer)}
}

func drain(c *Client) []WSMessage {
	var out []WSMessage
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return out
			}
			out = append(out, msg)
		default:
			return out
		}
	}
}

type publishedEvent struct {
	channel string
	event   string
	payload []byte
}

type fakeRelay struct {
	mu        sync.Mutex
	published []publishedEvent
	handlers  map[string]func(event string, payload []byte)
}

func (f *fakeRelay) Publish(_ context.Context, channel, event string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedEvent{channel: channel, event: event, payload: payload})
	return nil
}

func (f *fakeRelay) Subscribe(channel string, handler func(event string, payload []byte)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers == nil {
		f.handlers = make(map[string]func(string, []byte))
	}
	f.handlers[channel] = handler
	return func() {}, nil
}

func (f *fakeRelay) channels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, p := range f.published {
		out = append(out, p.channel)
	}
	return out
}

func (f *fakeRelay) handler(channel string) func(string, []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handlers[channel]
}

func TestHubBroadcastAndSendToClient(t *testing.T) {
	h := NewHub(nil, nil, nil, "test", 0)
	a := testClient(h, "a", 4)
	b := testClient(h, "b", 4)
	h.Register(a)
	h.Register(b)
	assert.Equal(t, 2, h.ClientCount())

	h.Broadcast("state_update", map[string]int{"n": 1})
	h.SendToClient("b", "answer_accepted", map[string]int{"n": 2})
	h.SendToClient("missing", "answer_accepted", nil)

	gotA := drain(a)
	gotB := drain(b)
	require.Len(t, gotA, 1)
	require.Len(t, gotB, 2)
	assert.Equal(t, "state_update", gotA[0].Event)
	assert.JSONEq(t, `{"n":1}`, string(gotA[0].Data))
	assert.Equal(t, "answer_accepted", gotB[1].Event)
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	h := NewHub(nil, nil, nil, "test", 0)
	slow := testClient(h, "slow", 1)
	fast := testClient(h, "fast", 8)
	h.Register(slow)
	h.Register(fast)

	for i := 0; i < 3; i++ {
		h.Broadcast("state_update", i)
	}

	assert.Len(t, drain(slow), 1)
	assert.Len(t, drain(fast), 3)
}

func TestHubUnregisterClosesSendQueue(t *testing.T) {
	h := NewHub(nil, nil, nil, "test", 0)
	c := testClient(h, "a", 1)
	h.Register(c)
	h.Unregister(c)
	h.Unregister(c)

	_, ok := <-c.send
	assert.False(t, ok)
	assert.Zero(t, h.ClientCount())

	h.Broadcast("state_update", 1)
}

func TestHubMirrorsBroadcastsToRelay(t *testing.T) {
	relay := &fakeRelay{}
	h := NewHub(nil, relay, relay, "livepoll:session", 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	h.Broadcast("state_update", map[string]bool{"ok": true})

	require.Eventually(t, func() bool {
		return len(relay.channels()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"livepoll:session" + ChannelEvents}, relay.channels())
}

func TestHubPublishOnlyRoutesThroughRelay(t *testing.T) {
	relay := &fakeRelay{}
	h := NewHub(nil, relay, relay, "livepoll:session", 0)
	c := testClient(h, "a", 4)
	h.Register(c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)
	require.Eventually(t, h.chatRelayed.Load, time.Second, 5*time.Millisecond)

	h.PublishOnly(EventChatMessage, map[string]string{"message": "hi"})
	assert.Empty(t, drain(c), "chat must arrive via the subscription, not locally")

	require.Eventually(t, func() bool {
		return len(relay.channels()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"livepoll:session" + ChannelChat}, relay.channels())

	relay.handler("livepoll:session"+ChannelChat)(EventChatMessage, []byte(`{"message":"hi"}`))
	got := drain(c)
	require.Len(t, got, 1)
	assert.Equal(t, EventChatMessage, got[0].Event)
}

type failingSubscriber struct{}

func (failingSubscriber) Subscribe(string, func(string, []byte)) (func(), error) {
	return nil, errors.New("connection refused")
}

func TestHubPublishOnlyFallsBackWhenSubscriptionFails(t *testing.T) {
	relay := &fakeRelay{}
	core, logs := observer.New(zap.WarnLevel)
	h := NewHub(zap.New(core), relay, failingSubscriber{}, "livepoll:session", 0)
	c := testClient(h, "a", 4)
	h.Register(c)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { h.Run(ctx); close(done) }()
	require.Eventually(t, func() bool { return logs.Len() == 1 }, time.Second, 5*time.Millisecond)

	h.PublishOnly(EventChatMessage, map[string]string{"message": "hi"})
	got := drain(c)
	require.Len(t, got, 1)
	assert.Equal(t, EventChatMessage, got[0].Event)

	cancel()
	<-done
	for _, ch := range relay.channels() {
		assert.NotEqual(t, "livepoll:session"+ChannelChat, ch)
	}
}

func TestHubPublishOnlyIsLocalBeforeRun(t *testing.T) {
	relay := &fakeRelay{}
	h := NewHub(nil, relay, relay, "livepoll:session", 0)
	c := testClient(h, "a", 4)
	h.Register(c)

	h.PublishOnly(EventChatMessage, map[string]string{"message": "hi"})
	assert.Len(t, drain(c), 1)
}

func TestHubPublishOnlyLogsMarshalFailure(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	h := NewHub(zap.New(core), nil, nil, "test", 0)
	c := testClient(h, "a", 4)
	h.Register(c)

	h.PublishOnly(EventChatMessage, make(chan int))

	assert.Empty(t, drain(c))
	require.Equal(t, 1, logs.FilterMessage("marshal event").Len())
	assert.Equal(t, EventChatMessage, logs.All()[0].ContextMap()["event"])
}

func TestHubPublishOnlyWithoutRedisIsLocal(t *testing.T) {
	h := NewHub(nil, nil, nil, "test", 0)
	c := testClient(h, "a", 4)
	h.Register(c)

	h.PublishOnly(EventChatMessage, map[string]string{"message": "hi"})

	got := drain(c)
	require.Len(t, got, 1)
	var body map[string]string
	require.NoError(t, json.Unmarshal(got[0].Data, &body))
	assert.Equal(t, "hi", body["message"])
}

func TestRelayEnvelope(t *testing.T) {
	body, err := encodeRelay("state_update", []byte(`{"a":1}`), time.UnixMilli(1700000000000))
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"state_update","data":{"a":1},"at":1700000000000}`, string(body))

	event, data, err := decodeRelay(body)
	require.NoError(t, err)
	assert.Equal(t, "state_update", event)
	assert.JSONEq(t, `{"a":1}`, string(data))

	_, _, err = decodeRelay([]byte(`{"data":{}}`))
	assert.Error(t, err)
	_, _, err = decodeRelay([]byte(`not json`))
	assert.Error(t, err)
}
