package setaside

import (
	"context"
	"sort"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/oklog/ulid/v2"
)

// Channel is one subscriber's connection. Send must be safe for concurrent use and
// should return once the message is handed to the transport.
type Channel interface {
	ID() string
	Send(ctx context.Context, msg Outbound) error
}

// NewChannelID returns a unique, time-ordered channel id.
func NewChannelID() string {
	return ulid.Make().String()
}

// Registry tracks connected subscriber channels.
type Registry struct {
	logger log.Logger

	mu       sync.RWMutex
	channels map[string]Channel
}

// NewRegistry returns an empty registry.
func NewRegistry(logger log.Logger) *Registry {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Registry{
		logger:   log.With(logger, "component", "registry"),
		channels: make(map[string]Channel),
	}
}

// Connect adds ch to the set of subscribers. Connecting an id twice replaces the
// earlier channel.
func (r *Registry) Connect(ch Channel) {
	r.mu.Lock()
	_, existed := r.channels[ch.ID()]
	r.channels[ch.ID()] = ch
	n := len(r.channels)
	r.mu.Unlock()

	if !existed {
		stats.subscribers.Inc()
	}
	level.Debug(r.logger).Log("op", "connect", "channel", ch.ID(), "connected", n)
}

// Disconnect removes ch. Disconnecting an unknown channel does nothing.
func (r *Registry) Disconnect(ch Channel) {
	r.mu.Lock()
	_, ok := r.channels[ch.ID()]
	delete(r.channels, ch.ID())
	r.mu.Unlock()

	if ok {
		stats.subscribers.Dec()
		level.Debug(r.logger).Log("op", "disconnect", "channel", ch.ID())
	}
}

// Connected reports whether ch is currently connected.
func (r *Registry) Connected(ch Channel) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.channels[ch.ID()]
	return ok
}

// Len returns the number of connected channels.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

// Broadcast delivers msg to every connected channel. A failed send is logged and
// does not stop delivery to the others.
func (r *Registry) Broadcast(ctx context.Context, msg Outbound) {
	for _, ch := range r.snapshot() {
		r.send(ctx, ch, msg)
	}
}

// Reply delivers msg to ch alone. A channel that has gone away is skipped silently.
func (r *Registry) Reply(ctx context.Context, ch Channel, msg Outbound) {
	if !r.Connected(ch) {
		level.Debug(r.logger).Log("op", "reply", "channel", ch.ID(), "type", msg.Type, "msg", "channel gone, dropping")
		return
	}
	r.send(ctx, ch, msg)
}

func (r *Registry) snapshot() []Channel {
	r.mu.RLock()
	out := make([]Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		out = append(out, ch)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (r *Registry) send(ctx context.Context, ch Channel, msg Outbound) {
	err := ch.Send(ctx, msg)
	stats.Sent(msg.Type, err)
	if err != nil {
		level.Warn(r.logger).Log("op", "send", "channel", ch.ID(), "type", msg.Type, "error", err)
	}
}
