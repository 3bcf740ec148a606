package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	amqp "github.com/rabbitmq/amqp091-go"
)

type publishRecord struct {
	Exchange   string
	RoutingKey string
	Msg        amqp.Publishing
}

type fakeChannel struct {
	mu         sync.Mutex
	published  []publishRecord
	publishErr error
	declareErr error
	exchanges  []string
	queues     []string
	bindings   [][2]string
	consumed   []string
	deliveries chan amqp.Delivery
	cancelled  bool
	closed     bool
	closeCalls int
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{deliveries: make(chan amqp.Delivery, 64)}
}

func (c *fakeChannel) Publish(_ context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, publishRecord{Exchange: exchange, RoutingKey: routingKey, Msg: msg})
	return nil
}

func (c *fakeChannel) Consume(queue, _ string) (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consumed = append(c.consumed, queue)
	return c.deliveries, nil
}

func (c *fakeChannel) Cancel(string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.cancelled {
		c.cancelled = true
		close(c.deliveries)
	}
	return nil
}

func (c *fakeChannel) ExchangeDeclare(name, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.declareErr != nil {
		return c.declareErr
	}
	c.exchanges = append(c.exchanges, name)
	return nil
}

func (c *fakeChannel) QueueDeclare(name string, _, _ bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.declareErr != nil {
		return "", c.declareErr
	}
	if name == "" {
		name = fmt.Sprintf("amq.gen-%d", len(c.queues))
	}
	c.queues = append(c.queues, name)
	return name, nil
}

func (c *fakeChannel) QueueBind(queue, exchange string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bindings = append(c.bindings, [2]string{queue, exchange})
	return nil
}

func (c *fakeChannel) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.closeCalls++
	return nil
}

func (c *fakeChannel) deliver(body, correlationID string) {
	c.deliveries <- amqp.Delivery{Body: []byte(body), CorrelationId: correlationID}
}

func (c *fakeChannel) records() []publishRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]publishRecord(nil), c.published...)
}

// channelFactory hands out fake channels and remembers them.
type channelFactory struct {
	mu       sync.Mutex
	channels []*fakeChannel
	prepare  func(*fakeChannel)
	openErr  error
}

func (f *channelFactory) open() (Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	ch := newFakeChannel()
	if f.prepare != nil {
		f.prepare(ch)
	}
	f.channels = append(f.channels, ch)
	return ch, nil
}

func (f *channelFactory) opened() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.channels)
}

func (f *channelFactory) last() *fakeChannel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channels[len(f.channels)-1]
}

type fakeConnection struct {
	factory *channelFactory
	closed  atomic.Bool
	notify  chan *amqp.Error
}

func (c *fakeConnection) Channel() (Channel, error) { return c.factory.open() }

func (c *fakeConnection) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	c.notify = receiver
	return receiver
}

func (c *fakeConnection) IsClosed() bool { return c.closed.Load() }

func (c *fakeConnection) Close() error {
	if c.closed.CompareAndSwap(false, true) && c.notify != nil {
		close(c.notify)
	}
	return nil
}

// fakeDialer fails the first failures dials, then hands out fake connections.
type fakeDialer struct {
	mu       sync.Mutex
	failures int
	dials    int
	configs  []amqp.Config
	conns    []*fakeConnection
}

func (d *fakeDialer) dial(_ string, cfg amqp.Config) (connection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	d.configs = append(d.configs, cfg)
	if d.dials <= d.failures {
		return nil, fmt.Errorf("dial tcp: connection refused")
	}
	conn := &fakeConnection{factory: &channelFactory{}}
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}
