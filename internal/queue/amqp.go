package queue

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

const retryHeader = "x-retry-count"

// AMQPQueue publishes JSON payloads to durable RabbitMQ queues named after
// the topic. Deliveries are acked on receipt, so a job whose worker dies is
// not redelivered. Failed handlers are republished with a retry counter
// until MaxRetries is reached.
type AMQPQueue struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	mu     sync.Mutex
	closed chan error

	MaxRetries int
	Logger     *zap.Logger
}

func DialAMQP(url string, logger *zap.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &AMQPQueue{conn: conn, ch: ch, MaxRetries: 3, Logger: logger, closed: make(chan error, 1)}
	go q.watch(ch.NotifyClose(make(chan *amqp.Error, 1)))
	return q, nil
}

func (q *AMQPQueue) watch(notify <-chan *amqp.Error) {
	if e, ok := <-notify; ok && e != nil {
		q.closed <- fmt.Errorf("rabbitmq channel closed: %w", e)
	}
	close(q.closed)
}

// Closed yields an error when the broker closes the channel and is closed
// without a value after Close. Consumers stop in both cases.
func (q *AMQPQueue) Closed() <-chan error {
	return q.closed
}

func (q *AMQPQueue) declare(topic string) error {
	_, err := q.ch.QueueDeclare(
		topic, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	return err
}

func (q *AMQPQueue) Publish(topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	return q.publish(topic, body, 0)
}

func (q *AMQPQueue) publish(topic string, body []byte, retries int32) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.declare(topic); err != nil {
		return fmt.Errorf("declare queue %s: %w", topic, err)
	}
	return q.ch.Publish("", topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      amqp.Table{retryHeader: retries},
		Body:         body,
	})
}

// Subscribe consumes topic in a background goroutine until Close. The
// handler receives the raw JSON body.
func (q *AMQPQueue) Subscribe(topic string, handler func(payload any) error) error {
	q.mu.Lock()
	if err := q.declare(topic); err != nil {
		q.mu.Unlock()
		return fmt.Errorf("declare queue %s: %w", topic, err)
	}
	msgs, err := q.ch.Consume(
		topic,
		"",
		false, // acked in handle
		false,
		false,
		false,
		nil,
	)
	q.mu.Unlock()
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	go func() {
		for d := range msgs {
			q.handle(topic, d, handler)
		}
		q.Logger.Warn("consumer stopped", zap.String("topic", topic))
	}()
	return nil
}

func (q *AMQPQueue) handle(topic string, d amqp.Delivery, handler func(payload any) error) {
	// ack first: a run can outlast the broker's ack timeout
	if err := d.Ack(false); err != nil {
		q.Logger.Error("ack failed, skipping delivery", zap.String("topic", topic), zap.Error(err))
		return
	}

	err := handler(d.Body)
	if err == nil {
		return
	}
	retries := retryCount(d.Headers)
	if int(retries) >= q.MaxRetries {
		q.Logger.Error("job permanently failed", zap.String("topic", topic), zap.Error(err))
		return
	}
	q.Logger.Warn("job failed, requeueing", zap.String("topic", topic), zap.Int32("retry", retries+1), zap.Error(err))
	if perr := q.publish(topic, d.Body, retries+1); perr != nil {
		q.Logger.Error("requeue failed, job dropped", zap.String("topic", topic), zap.Error(perr))
	}
}

func retryCount(h amqp.Table) int32 {
	switch v := h[retryHeader].(type) {
	case int32:
		return v
	case int64:
		return int32(v)
	case int:
		return int32(v)
	}
	return 0
}

func (q *AMQPQueue) Close() error {
	q.ch.Close()
	return q.conn.Close()
}
