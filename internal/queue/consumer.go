package queue

import (
	"context"
	"encoding/json"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"voicelink-backend/pkg/logger"
)

// JobHandler processes one transcription job. A handler error is logged and
// the message acknowledged anyway: the orchestrator does not retry
// automatically, callers re-enqueue when they want another attempt.
type JobHandler func(ctx context.Context, job TranscriptionJob) error

// Consumer drains the transcription queue with a bounded worker pool
type Consumer struct {
	conn       *amqp.Connection
	numWorkers int
	handler    JobHandler
}

// NewConsumer creates a consumer with the given parallelism
func NewConsumer(conn *amqp.Connection, numWorkers int, handler JobHandler) *Consumer {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &Consumer{
		conn:       conn,
		numWorkers: numWorkers,
		handler:    handler,
	}
}

// Consume blocks until ctx is cancelled or the delivery channel closes
func (c *Consumer) Consume(ctx context.Context) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	q, err := declareTopology(ch)
	if err != nil {
		return err
	}

	if err := ch.Qos(c.numWorkers, 0, false); err != nil {
		return err
	}

	deliveries, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	jobs := make(chan amqp.Delivery, c.numWorkers)
	var wg sync.WaitGroup
	for i := 0; i < c.numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for msg := range jobs {
				c.handleDelivery(ctx, msg)
			}
		}()
	}

	for {
		select {
		case delivery, ok := <-deliveries:
			if !ok {
				close(jobs)
				wg.Wait()
				return nil
			}
			jobs <- delivery
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return ctx.Err()
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, msg amqp.Delivery) {
	var job TranscriptionJob
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		logger.Error("failed to decode transcription job", zap.Error(err))
		msg.Ack(false)
		return
	}

	if err := c.handler(ctx, job); err != nil {
		logger.Warn("transcription job failed",
			zap.String("recording_id", job.RecordingID.String()),
			zap.Error(err))
	}
	if err := msg.Ack(false); err != nil {
		logger.Warn("failed to acknowledge message", zap.Error(err))
	}
}
