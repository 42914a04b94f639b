// ABOUTME: Websocket connection to a single relay with multiplexed subscriptions.
// ABOUTME: A read loop dispatches EVENT/EOSE/CLOSED messages to per-subscription channels.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/oklog/ulid/v2"
	"nhooyr.io/websocket"
)

var (
	// ErrConnClosed is returned when the relay connection drops mid-subscription.
	ErrConnClosed = errors.New("relay connection closed")
	// ErrSubscriptionClosed is returned when a relay ends a subscription with CLOSED.
	ErrSubscriptionClosed = errors.New("subscription closed by relay")
)

const (
	readLimit         = 4 << 20
	subscriptionQueue = 64
	closeWriteTimeout = time.Second
)

// DialError reports a relay that could not be reached.
type DialError struct {
	URL string
	Err error
}

func (e *DialError) Error() string {
	return fmt.Sprintf("dial relay %s: %v", e.URL, e.Err)
}

func (e *DialError) Unwrap() error {
	return e.Err
}

// Conn is a live connection to one relay.
type Conn struct {
	url    string
	ws     *websocket.Conn
	logger *log.Logger

	writeMu sync.Mutex

	subsMu sync.Mutex
	subs   map[string]*subscription

	done     chan struct{}
	doneOnce sync.Once
	err      error
}

type subscription struct {
	events chan Event
	eose   chan struct{}
	closed chan string
	stop   chan struct{}

	eoseOnce sync.Once
}

// Dial opens a websocket connection to a relay and starts its read loop.
func Dial(ctx context.Context, url string, logger *log.Logger) (*Conn, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, &DialError{URL: url, Err: err}
	}
	ws.SetReadLimit(readLimit)

	c := &Conn{
		url:    url,
		ws:     ws,
		logger: logger,
		subs:   make(map[string]*subscription),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// URL returns the relay address.
func (c *Conn) URL() string {
	return c.url
}

// Closed reports whether the connection has shut down.
func (c *Conn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Close shuts down the connection.
func (c *Conn) Close() error {
	c.shutdown(ErrConnClosed)
	return c.ws.Close(websocket.StatusNormalClosure, "")
}

// Subscribe sends a REQ for filter and forwards matching events to out until
// ctx is done. End-of-stored-events does not end the subscription. A nil
// return means the context expired normally; an error means the relay
// dropped the connection or closed the subscription.
func (c *Conn) Subscribe(ctx context.Context, filter Filter, out chan<- Event) error {
	if c.Closed() {
		return fmt.Errorf("relay %s: %w", c.url, ErrConnClosed)
	}

	id := ulid.Make().String()
	sub := &subscription{
		events: make(chan Event, subscriptionQueue),
		eose:   make(chan struct{}),
		closed: make(chan string, 1),
		stop:   make(chan struct{}),
	}
	c.subsMu.Lock()
	c.subs[id] = sub
	c.subsMu.Unlock()
	defer c.unsubscribe(id, sub)

	req, err := EncodeReq(id, filter)
	if err != nil {
		return err
	}
	if err := c.write(ctx, req); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("send REQ to %s: %w", c.url, err)
	}

	eose := sub.eose
	for {
		select {
		case ev := <-sub.events:
			select {
			case out <- ev:
			case <-ctx.Done():
				c.sendClose(id)
				return nil
			}
		case <-eose:
			c.logger.Debug("end of stored events", "relay", c.url, "sub", id)
			eose = nil
		case reason := <-sub.closed:
			return fmt.Errorf("relay %s: %w: %s", c.url, ErrSubscriptionClosed, reason)
		case <-c.done:
			return fmt.Errorf("relay %s: %w", c.url, c.err)
		case <-ctx.Done():
			c.sendClose(id)
			return nil
		}
	}
}

func (c *Conn) unsubscribe(id string, sub *subscription) {
	c.subsMu.Lock()
	delete(c.subs, id)
	c.subsMu.Unlock()
	close(sub.stop)
}

func (c *Conn) sendClose(id string) {
	if c.Closed() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), closeWriteTimeout)
	defer cancel()
	if err := c.write(ctx, EncodeClose(id)); err != nil {
		c.logger.Debug("send CLOSE failed", "relay", c.url, "sub", id, "err", err)
	}
}

func (c *Conn) write(ctx context.Context, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.Write(ctx, websocket.MessageText, data)
}

func (c *Conn) readLoop() {
	for {
		_, data, err := c.ws.Read(context.Background())
		if err != nil {
			c.shutdown(fmt.Errorf("%w: %v", ErrConnClosed, err))
			return
		}

		msg, err := DecodeMessage(data)
		if err != nil {
			c.logger.Debug("skipping malformed relay message", "relay", c.url, "err", err)
			continue
		}

		switch msg.Label {
		case LabelEvent:
			if sub := c.lookup(msg.SubID); sub != nil {
				select {
				case sub.events <- *msg.Event:
				case <-sub.stop:
				case <-c.done:
					return
				}
			}
		case LabelEOSE:
			if sub := c.lookup(msg.SubID); sub != nil {
				sub.eoseOnce.Do(func() { close(sub.eose) })
			}
		case LabelClosed:
			c.logger.Debug("relay closed subscription", "relay", c.url, "sub", msg.SubID, "reason", msg.Text)
			if sub := c.lookup(msg.SubID); sub != nil {
				select {
				case sub.closed <- msg.Text:
				default:
				}
			}
		case LabelNotice:
			c.logger.Debug("relay notice", "relay", c.url, "notice", msg.Text)
		}
	}
}

func (c *Conn) lookup(id string) *subscription {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	return c.subs[id]
}

func (c *Conn) shutdown(err error) {
	c.doneOnce.Do(func() {
		c.err = err
		close(c.done)
	})
}
