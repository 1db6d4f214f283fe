package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// TranscriptionJob is the queue payload for one transcription request
type TranscriptionJob struct {
	RecordingID uuid.UUID `json:"recording_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// Publisher sends transcription jobs to the broker
type Publisher struct {
	ch *amqp.Channel
}

// NewPublisher opens a channel and declares the transcription topology
func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if _, err := declareTopology(ch); err != nil {
		ch.Close()
		return nil, err
	}
	return &Publisher{ch: ch}, nil
}

// PublishTranscriptionJob enqueues one recording for transcription
func (p *Publisher) PublishTranscriptionJob(ctx context.Context, recordingID uuid.UUID) error {
	body, err := json.Marshal(TranscriptionJob{
		RecordingID: recordingID,
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	err = p.ch.PublishWithContext(ctx, transcriptionExchange, transcriptionRoutingKey, false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("failed to publish job: %w", err)
	}
	return nil
}

// Close releases the channel
func (p *Publisher) Close() error {
	return p.ch.Close()
}
