package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"phyrisk/internal/platform/rabbitmq"
)

// ErrDrop marks a delivery that can never succeed; it is discarded instead of retried.
var ErrDrop = errors.New("drop delivery")

// Handler processes one delivery body.
type Handler interface {
	Handle(ctx context.Context, body []byte) error
}

// Consumer runs a Handler over a durable queue with manual acks. A failed
// delivery is requeued once, then dropped; deliveries interrupted by Close
// are always requeued.
type Consumer struct {
	conn      *amqp.Connection
	queueName string
	handler   Handler
	prefetch  int
	logger    *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewConsumer(conn *amqp.Connection, queueName string, handler Handler, prefetch int, logger *zap.Logger) *Consumer {
	if prefetch <= 0 {
		prefetch = 8
	}
	return &Consumer{
		conn:      conn,
		queueName: queueName,
		handler:   handler,
		prefetch:  prefetch,
		logger:    logger.With(zap.String("queue", queueName)),
	}
}

func (c *Consumer) Start(ctx context.Context) error {
	if c.cancel != nil {
		return nil
	}

	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if err := rabbitmq.DeclareQueue(ch, c.queueName); err != nil {
		_ = ch.Close()
		return err
	}
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("set worker qos failed: %w", err)
	}
	deliveries, err := ch.Consume(c.queueName, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					c.logger.Warn("delivery channel closed")
					return
				}
				c.dispatch(workerCtx, d)
			}
		}
	}()

	c.logger.Info("worker started")
	return nil
}

func (c *Consumer) dispatch(ctx context.Context, d amqp.Delivery) {
	err := c.handler.Handle(ctx, d.Body)
	if err == nil {
		_ = d.Ack(false)
		return
	}

	// work cut short by shutdown goes back even if it was redelivered
	requeue := !errors.Is(err, ErrDrop) && (!d.Redelivered || ctx.Err() != nil)
	c.logger.Error("handle delivery failed", zap.Bool("requeue", requeue), zap.Error(err))
	_ = d.Nack(false, requeue)
}

func (c *Consumer) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}
