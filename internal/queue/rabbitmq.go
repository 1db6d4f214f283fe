package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"voicelink-backend/pkg/logger"
)

const (
	transcriptionExchange   = "transcription_exchange"
	transcriptionQueue      = "transcription_queue"
	transcriptionRoutingKey = "transcription.request"
)

// Config holds RabbitMQ connection settings
type Config struct {
	Host string
	Port int
	User string
	Pass string
}

// Connect dials RabbitMQ with exponential backoff and closes the
// connection when ctx is cancelled
func Connect(ctx context.Context, cfg *Config) (*amqp.Connection, error) {
	addr := fmt.Sprintf("amqp://%s:%s@%s:%d/", cfg.User, cfg.Pass, cfg.Host, cfg.Port)

	operation := func() (*amqp.Connection, error) {
		conn, err := amqp.Dial(addr)
		if err != nil {
			logger.Warn("failed to connect to RabbitMQ, retrying",
				zap.String("host", cfg.Host),
				zap.Error(err))
			return nil, err
		}
		return conn, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = 10 * time.Second
	conn, err := backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(5))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	logger.Info("connected to RabbitMQ", zap.String("host", cfg.Host))

	go func() {
		<-ctx.Done()
		if err := conn.Close(); err != nil {
			logger.Warn("failed to close RabbitMQ connection", zap.Error(err))
		}
	}()

	return conn, nil
}

// declareTopology sets up the transcription exchange, queue, and binding
func declareTopology(ch *amqp.Channel) (amqp.Queue, error) {
	if err := ch.ExchangeDeclare(transcriptionExchange, "direct", true, false, false, false, nil); err != nil {
		return amqp.Queue{}, fmt.Errorf("failed to declare exchange: %w", err)
	}
	q, err := ch.QueueDeclare(transcriptionQueue, true, false, false, false, nil)
	if err != nil {
		return amqp.Queue{}, fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, transcriptionRoutingKey, transcriptionExchange, false, nil); err != nil {
		return amqp.Queue{}, fmt.Errorf("failed to bind queue: %w", err)
	}
	return q, nil
}
