package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"voicelink-backend/internal/domain"
	"voicelink-backend/internal/handler/ws"
	transcriptionsvc "voicelink-backend/internal/service/transcription"
	"voicelink-backend/internal/store"
	apperrors "voicelink-backend/pkg/errors"
	"voicelink-backend/pkg/logger"
)

// transcriptChannel carries completed transcripts between processes. The
// transcription worker owns no live sessions, so it publishes here and the
// call service reconciles the text into its session store.
const transcriptChannel = "transcripts:completed"

// TranscriptEvent is the cross-process payload for one finished transcript
type TranscriptEvent struct {
	CallID      uuid.UUID `json:"call_id"`
	RecordingID uuid.UUID `json:"recording_id"`
	Text        string    `json:"text"`
	Language    string    `json:"language,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// TranscriptPublisher broadcasts completed transcripts over Redis
type TranscriptPublisher struct {
	client *redis.Client
}

// NewTranscriptPublisher creates a publisher on the shared Redis client
func NewTranscriptPublisher(client *redis.Client) *TranscriptPublisher {
	return &TranscriptPublisher{client: client}
}

// PublishTranscript implements transcription.ResultPublisher
func (p *TranscriptPublisher) PublishTranscript(ctx context.Context, callID, recordingID uuid.UUID, result *transcriptionsvc.Result) error {
	data, err := json.Marshal(&TranscriptEvent{
		CallID:      callID,
		RecordingID: recordingID,
		Text:        result.Text,
		Language:    result.Language,
		CompletedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal transcript event: %w", err)
	}
	if err := p.client.Publish(ctx, transcriptChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish transcript event: %w", err)
	}
	return nil
}

// TranscriptApplier subscribes to completed transcripts and reconciles them
// into this instance's session store, then notifies the call's parties.
type TranscriptApplier struct {
	client   *redis.Client
	sessions store.SessionStore
	hub      *ws.EventHub
}

// NewTranscriptApplier creates an applier. hub may be nil when no WebSocket
// fan-out is configured.
func NewTranscriptApplier(client *redis.Client, sessions store.SessionStore, hub *ws.EventHub) *TranscriptApplier {
	return &TranscriptApplier{client: client, sessions: sessions, hub: hub}
}

// Run blocks consuming transcript events until ctx is cancelled
func (a *TranscriptApplier) Run(ctx context.Context) {
	pubsub := a.client.Subscribe(ctx, transcriptChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		logger.Error("Failed to subscribe to transcript channel", zap.Error(err))
		return
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-ch:
			if msg == nil {
				continue
			}
			var event TranscriptEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				logger.Warn("Failed to unmarshal transcript event", zap.Error(err))
				continue
			}
			a.Apply(ctx, &event)
		}
	}
}

// Apply writes the transcript onto the session and fans a
// transcription-ready event out to the call's parties. A session that no
// longer exists is a tolerated no-op: the transcript already lives on the
// durable recording record.
func (a *TranscriptApplier) Apply(ctx context.Context, event *TranscriptEvent) {
	session, err := a.sessions.Update(ctx, event.CallID, func(c *domain.CallSession) error {
		c.TranscriptText = event.Text
		return nil
	})
	if err != nil {
		if !apperrors.HasCode(err, apperrors.ErrCodeCallNotFound) {
			logger.Warn("failed to apply transcript to session",
				zap.String("call_id", event.CallID.String()),
				zap.Error(err))
		}
		return
	}

	logger.Info("transcript applied to session",
		zap.String("call_id", event.CallID.String()),
		zap.String("recording_id", event.RecordingID.String()))

	if a.hub == nil {
		return
	}
	for _, target := range parties(session) {
		pubErr := a.hub.Publish(ctx, &ws.CallEventMessage{
			Type:     ws.EventTypeTranscription,
			CallID:   session.ID,
			TargetID: target,
			Status:   session.Status,
		})
		if pubErr != nil {
			logger.Warn("failed to publish transcription event",
				zap.String("user_id", target.String()),
				zap.Error(pubErr))
		}
	}
}
