package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// New returns nil without error when url is empty so callers can fall back to inline work.
func New(ctx context.Context, url string) (*amqp.Connection, error) {
	if url == "" {
		return nil, nil
	}

	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Dial:      amqp.DefaultDial(5 * time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq failed: %w", err)
	}

	checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		ch, chErr := conn.Channel()
		if chErr != nil {
			done <- chErr
			return
		}
		done <- ch.Close()
	}()

	select {
	case <-checkCtx.Done():
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq health check timeout: %w", checkCtx.Err())
	case err := <-done:
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("open rabbitmq channel failed: %w", err)
		}
		return conn, nil
	}
}

// DeclareQueue declares a durable, non-exclusive queue.
func DeclareQueue(ch *amqp.Channel, name string) error {
	_, err := ch.QueueDeclare(
		name,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue %s failed: %w", name, err)
	}
	return nil
}
