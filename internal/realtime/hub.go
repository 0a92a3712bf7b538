package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60

	// DefaultSendBuffer is the per-connection outbound queue length.
	DefaultSendBuffer = 256

	outboxSize   = 1024
	relayTimeout = 5 * time.Second
)

// Relay channel suffixes: events are mirrored for external observers, chat is
// relayed across gateway instances.
const (
	ChannelEvents = ":events"
	ChannelChat   = ":chat"
)

// RedisPublisher publishes an event to a Redis channel.
type RedisPublisher interface {
	Publish(ctx context.Context, channel, event string, payload []byte) error
}

// RedisSubscriber subscribes to a Redis channel and invokes handler for incoming events.
type RedisSubscriber interface {
	Subscribe(channel string, handler func(event string, payload []byte)) (cancel func(), err error)
}

type relayEvent struct {
	channel string
	event   string
	data    []byte
}

// Hub tracks connected clients by connection id and fans events out to them.
// Delivery is best effort: a client whose buffer is full misses the event.
type Hub struct {
	clients    map[string]*Client
	mu         sync.RWMutex
	logger     *zap.Logger
	redis      RedisPublisher
	redisSub   RedisSubscriber
	channel    string
	sendBuffer int
	outbox     chan relayEvent
	// chatRelayed is set while the chat subscription is live.
	chatRelayed atomic.Bool
}

// NewHub creates a hub. redisPub and redisSub may be nil, in which case chat is
// relayed locally and events are not mirrored.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber, channel string, sendBuffer int) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sendBuffer <= 0 {
		sendBuffer = DefaultSendBuffer
	}
	h := &Hub{
		clients:    make(map[string]*Client),
		logger:     logger,
		redis:      redisPub,
		redisSub:   redisSub,
		channel:    channel,
		sendBuffer: sendBuffer,
	}
	if redisPub != nil {
		h.outbox = make(chan relayEvent, outboxSize)
	}
	return h
}

// Run drains the relay outbox and holds the chat subscription until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	if h.redisSub != nil {
		cancel, err := h.redisSub.Subscribe(h.channel+ChannelChat, func(event string, payload []byte) {
			h.broadcastLocal(event, payload)
		})
		if err != nil {
			h.logger.Warn("chat relay subscription failed, chat stays local", zap.Error(err))
		} else {
			h.chatRelayed.Store(true)
			defer func() {
				h.chatRelayed.Store(false)
				cancel()
			}()
		}
	}
	if h.outbox == nil {
		<-ctx.Done()
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-h.outbox:
			pubCtx, cancel := context.WithTimeout(ctx, relayTimeout)
			if err := h.redis.Publish(pubCtx, ev.channel, ev.event, ev.data); err != nil {
				h.logger.Debug("relay publish failed", zap.String("event", ev.event), zap.Error(err))
			}
			cancel()
		}
	}
}

// Register adds a client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("client connected", zap.String("client_id", c.ID), zap.Int("clients", count))
}

// Unregister removes a client and closes its send queue.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if cur, ok := h.clients[c.ID]; ok && cur == c {
		delete(h.clients, c.ID)
		close(c.send)
	}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("client disconnected", zap.String("client_id", c.ID), zap.Int("clients", count))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends an event to every client and mirrors it to Redis when configured.
func (h *Hub) Broadcast(event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("marshal event", zap.String("event", event), zap.Error(err))
		return
	}
	h.broadcastLocal(event, data)
	h.enqueueRelay(h.channel+ChannelEvents, event, data)
}

// SendToClient sends an event to a single client; unknown ids are ignored.
func (h *Hub) SendToClient(clientID string, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("marshal event", zap.String("event", event), zap.Error(err))
		return
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[clientID]
	if !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
		h.logger.Debug("client buffer full, dropping event", zap.String("client_id", clientID), zap.String("event", event))
	}
}

// PublishOnly routes an event through Redis so the subscriber delivers it once on
// every instance, including this one. Until the chat subscription is live it is
// broadcast locally.
func (h *Hub) PublishOnly(event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("marshal event", zap.String("event", event), zap.Error(err))
		return
	}
	if h.redis != nil && h.chatRelayed.Load() {
		h.enqueueRelay(h.channel+ChannelChat, event, data)
		return
	}
	h.broadcastLocal(event, data)
}

func (h *Hub) broadcastLocal(event string, data []byte) {
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

func (h *Hub) enqueueRelay(channel, event string, data []byte) {
	if h.outbox == nil {
		return
	}
	select {
	case h.outbox <- relayEvent{channel: channel, event: event, data: data}:
	default:
		h.logger.Debug("relay outbox full, dropping event", zap.String("event", event))
	}
}
