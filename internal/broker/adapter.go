package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ErrNotConnected is returned by Publish while the broker connection
// is down.  State is always committed to the database before a
// publish is attempted, so callers log this and move on; the
// broadcast is delayed, never the commit.
var ErrNotConnected = errors.New("broker not connected")

const (
	exchangeName = "cinema.events"
	queueName    = "cinema.backend"

	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// HandlerFunc processes one inbound message.  Returning an error
// rejects that message only; the connection and other messages are
// unaffected.
type HandlerFunc func(ctx context.Context, topic string, payload []byte) error

// Route pairs a topic pattern with its handler.  Routes are matched
// in order; the first match wins.
type Route struct {
	Pattern string
	Handler HandlerFunc
}

// Adapter owns the broker connection for the whole process: it
// connects at startup, reconnects with exponential backoff,
// rebinds its subscriptions after every reconnect and disconnects
// cleanly on shutdown.  It is constructed once in main and injected
// wherever messages are published — there is no ambient singleton.
type Adapter struct {
	url    string
	routes []Route
	log    *zap.Logger

	mu     sync.Mutex
	conn   *amqp.Connection
	pubCh  *amqp.Channel
	closed bool
}

// New builds an Adapter.  The ordered route table is fixed at
// construction; there is no runtime handler registration.
func New(url string, routes []Route, log *zap.Logger) *Adapter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{url: url, routes: routes, log: log}
}

// Run connects and consumes until ctx is cancelled or Close is
// called.  Connection failures are retried with exponential backoff;
// an established session that drops is re-dialed and re-subscribed.
func (a *Adapter) Run(ctx context.Context) {
	backoff := initialBackoff
	for {
		if ctx.Err() != nil || a.isClosed() {
			return
		}
		conn, err := amqp.Dial(a.url)
		if err != nil {
			a.log.Warn("broker dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return
			}
			if backoff < maxBackoff {
				backoff *= 2
			}
			continue
		}
		backoff = initialBackoff
		a.log.Info("broker connected", zap.String("url", a.url))

		if err := a.session(ctx, conn); err != nil {
			a.log.Warn("broker session ended", zap.Error(err))
		}
		a.detach()
		_ = conn.Close()
		if ctx.Err() != nil || a.isClosed() {
			return
		}
		if !sleep(ctx, backoff) {
			return
		}
	}
}

// session sets up channels, declares the topology, resubscribes the
// route patterns and consumes deliveries until the connection drops.
func (a *Adapter) session(ctx context.Context, conn *amqp.Connection) error {
	pubCh, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("publish channel: %w", err)
	}
	consCh, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("consume channel: %w", err)
	}
	for _, ch := range []*amqp.Channel{pubCh, consCh} {
		if err := ch.ExchangeDeclare(exchangeName, "topic", true, false, false, false, nil); err != nil {
			return fmt.Errorf("exchange declare: %w", err)
		}
	}
	if _, err := consCh.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	for _, route := range a.routes {
		if err := consCh.QueueBind(queueName, bindingKey(route.Pattern), exchangeName, false, nil); err != nil {
			return fmt.Errorf("queue bind %q: %w", route.Pattern, err)
		}
	}
	if err := consCh.Qos(50, 0, false); err != nil {
		a.log.Warn("set QoS failed", zap.Error(err))
	}
	deliveries, err := consCh.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	a.mu.Lock()
	a.conn = conn
	a.pubCh = pubCh
	a.mu.Unlock()

	closeCh := conn.NotifyClose(make(chan *amqp.Error, 1))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-closeCh:
			if err == nil {
				return errors.New("connection closed")
			}
			return err
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			a.dispatch(ctx, d)
		}
	}
}

// dispatch routes one delivery through the ordered pattern table.
// Unmatched topics are logged and dropped; a handler error rejects
// only the offending message.
func (a *Adapter) dispatch(ctx context.Context, d amqp.Delivery) {
	topic := logicalTopic(d.RoutingKey)
	for _, route := range a.routes {
		if !TopicMatches(route.Pattern, topic) {
			continue
		}
		if err := route.Handler(ctx, topic, d.Body); err != nil {
			a.log.Warn("message rejected",
				zap.String("topic", topic), zap.Error(err))
			_ = d.Nack(false, false)
			return
		}
		_ = d.Ack(false)
		return
	}
	a.log.Warn("no handler for topic", zap.String("topic", topic))
	_ = d.Ack(false)
}

// Publish sends one JSON message to the given logical topic.
// Delivery is best-effort and at most once: a failure is reported to
// the caller and never retried here.
func (a *Adapter) Publish(ctx context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pubCh == nil {
		return ErrNotConnected
	}
	return a.pubCh.PublishWithContext(ctx,
		exchangeName,
		routingKey(topic),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now().UTC(),
			Body:        body,
		})
}

// Close tears the connection down.  In-flight publishes finish under
// the mutex before the channel goes away; Run exits on the resulting
// connection close notification.
func (a *Adapter) Close() {
	a.mu.Lock()
	a.closed = true
	conn := a.conn
	pubCh := a.pubCh
	a.conn = nil
	a.pubCh = nil
	a.mu.Unlock()
	if pubCh != nil {
		_ = pubCh.Close()
	}
	if conn != nil {
		_ = conn.Close()
	}
}

func (a *Adapter) detach() {
	a.mu.Lock()
	a.conn = nil
	a.pubCh = nil
	a.mu.Unlock()
}

func (a *Adapter) isClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

// sleep waits d or until ctx is cancelled; it reports whether the
// full duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
