package httpapi

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-kit/log/level"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/hyperengineering/setaside"
)

// outboxSize is how many messages may wait for a slow subscriber before it is
// disconnected.
const outboxSize = 64

var (
	errSlowSubscriber = errors.New("subscriber too slow, disconnecting")
	errChannelClosed  = errors.New("channel closed")
)

// wsChannel is a subscriber connected over WebSocket. Send queues the message for
// the channel's writer so one stalled socket never holds up the others.
type wsChannel struct {
	id      string
	conn    *websocket.Conn
	timeout time.Duration

	outbox chan setaside.Outbound
	done   chan struct{}
	once   sync.Once
}

func newWSChannel(id string, conn *websocket.Conn, timeout time.Duration, size int) *wsChannel {
	return &wsChannel{
		id:      id,
		conn:    conn,
		timeout: timeout,
		outbox:  make(chan setaside.Outbound, size),
		done:    make(chan struct{}),
	}
}

func (c *wsChannel) ID() string { return c.id }

// Send queues msg. A full outbox closes the channel.
func (c *wsChannel) Send(ctx context.Context, msg setaside.Outbound) error {
	select {
	case <-c.done:
		return errChannelClosed
	default:
	}
	select {
	case c.outbox <- msg:
		return nil
	case <-c.done:
		return errChannelClosed
	default:
		c.close()
		return errSlowSubscriber
	}
}

func (c *wsChannel) close() {
	c.once.Do(func() { close(c.done) })
}

// writeLoop writes queued messages as JSON text frames until the channel closes,
// the connection fails or ctx ends. Any of those closes the connection.
func (c *wsChannel) writeLoop(ctx context.Context) error {
	defer c.conn.CloseNow()
	defer c.close()
	for {
		select {
		case msg := <-c.outbox:
			wctx, cancel := context.WithTimeout(ctx, c.timeout)
			err := wsjson.Write(wctx, c.conn, msg)
			cancel()
			if err != nil {
				return err
			}
		case <-c.done:
			return errSlowSubscriber
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// serveWS registers the connection as a subscriber and feeds its requests to the
// coordinator until it closes.
func (s *server) serveWS(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{}
	if allowsAny(s.opts.AllowedOrigins) {
		opts.InsecureSkipVerify = true
	} else {
		opts.OriginPatterns = originPatterns(s.opts.AllowedOrigins)
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		level.Warn(s.logger).Log("op", "accept", "error", err)
		return
	}
	defer conn.CloseNow()

	ch := newWSChannel(setaside.NewChannelID(), conn, s.opts.SendTimeout, outboxSize)
	registry := s.coord.Registry()
	registry.Connect(ch)
	defer registry.Disconnect(ch)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		if err := ch.writeLoop(ctx); errors.Is(err, errSlowSubscriber) {
			level.Warn(s.logger).Log("op", "write", "channel", ch.id, "error", err)
		}
	}()

	logger := level.Debug(s.logger)
	if sub, ok := Subject(r.Context()); ok {
		logger.Log("op", "subscribe", "channel", ch.id, "subject", sub)
	} else {
		logger.Log("op", "subscribe", "channel", ch.id)
	}

	for {
		var msg setaside.Inbound
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				logger.Log("op", "unsubscribe", "channel", ch.id)
			default:
				if !errors.Is(err, context.Canceled) {
					level.Warn(s.logger).Log("op", "read", "channel", ch.id, "error", err)
				}
			}
			return
		}
		s.coord.HandleMessage(ctx, ch, msg)
	}
}
