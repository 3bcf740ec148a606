package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	amqp "github.com/rabbitmq/amqp091-go"
)

var errNacked = errors.New("publish nacked by broker")

// Channel is the subset of an AMQP channel the adapter works with.
// Publish blocks until the broker confirms the message.
type Channel interface {
	Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error
	Consume(queue, consumerTag string) (<-chan amqp.Delivery, error)
	Cancel(consumerTag string) error
	ExchangeDeclare(name, kind string) error
	QueueDeclare(name string, durable, exclusive bool) (string, error)
	QueueBind(queue, exchange string) error
	IsClosed() bool
	Close() error
}

type connection interface {
	Channel() (Channel, error)
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	IsClosed() bool
	Close() error
}

type dialFunc func(url string, cfg amqp.Config) (connection, error)

func dialAMQP(url string, cfg amqp.Config) (connection, error) {
	conn, err := amqp.DialConfig(url, cfg)
	if err != nil {
		return nil, err
	}
	return &amqpConnection{conn: conn}, nil
}

type amqpConnection struct {
	conn *amqp.Connection
}

// Channel opens a channel in publisher-confirm mode.
func (c *amqpConnection) Channel() (Channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}
	return &amqpChannel{ch: ch}, nil
}

func (c *amqpConnection) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	return c.conn.NotifyClose(receiver)
}

func (c *amqpConnection) IsClosed() bool { return c.conn.IsClosed() }

func (c *amqpConnection) Close() error { return c.conn.Close() }

type amqpChannel struct {
	ch *amqp.Channel
}

func (c *amqpChannel) Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	confirm, err := c.ch.PublishWithDeferredConfirmWithContext(
		ctx,
		exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		msg,
	)
	if err != nil {
		return err
	}
	if confirm == nil {
		return nil
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("wait for confirm: %w", err)
	}
	if !acked {
		return errNacked
	}
	return nil
}

func (c *amqpChannel) Consume(queue, consumerTag string) (<-chan amqp.Delivery, error) {
	return c.ch.Consume(
		queue,
		consumerTag,
		true,  // auto-ack: a delivery counts as consumed whatever the handler does
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
}

func (c *amqpChannel) Cancel(consumerTag string) error {
	return c.ch.Cancel(consumerTag, false)
}

func (c *amqpChannel) ExchangeDeclare(name, kind string) error {
	return c.ch.ExchangeDeclare(name, kind, true, false, false, false, nil)
}

func (c *amqpChannel) QueueDeclare(name string, durable, exclusive bool) (string, error) {
	q, err := c.ch.QueueDeclare(name, durable, exclusive, exclusive, false, nil)
	if err != nil {
		return "", err
	}
	return q.Name, nil
}

func (c *amqpChannel) QueueBind(queue, exchange string) error {
	return c.ch.QueueBind(queue, "", exchange, false, nil)
}

func (c *amqpChannel) IsClosed() bool { return c.ch.IsClosed() }

func (c *amqpChannel) Close() error { return c.ch.Close() }

// SanitizeURL hides the password of a broker URL for logging.
func SanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	return u.Redacted()
}
