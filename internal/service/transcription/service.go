package transcription

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"voicelink-backend/internal/domain"
	"voicelink-backend/internal/service/recording"
	"voicelink-backend/internal/store"
	apperrors "voicelink-backend/pkg/errors"
	"voicelink-backend/pkg/logger"
	"voicelink-backend/pkg/metrics"
)

// JobPublisher enqueues transcription jobs for asynchronous execution by
// the transcription worker. The RabbitMQ implementation lives in
// internal/queue.
type JobPublisher interface {
	PublishTranscriptionJob(ctx context.Context, recordingID uuid.UUID) error
}

// ResultPublisher broadcasts a completed transcript so every process can
// reconcile it into its own session state. The worker's local session store
// is empty; without this the parent session would never receive the text.
// The Redis implementation lives in internal/notify.
type ResultPublisher interface {
	PublishTranscript(ctx context.Context, callID, recordingID uuid.UUID, result *Result) error
}

// Service converts finished recordings into text via the external
// speech-to-text collaborator and reconciles the result back into owned
// state. Transcription never blocks the call-ending path.
type Service struct {
	sessions   store.SessionStore
	recordings store.RecordingStore
	blobs      recording.BlobStorage
	speech     SpeechClient
	publisher  JobPublisher
	results    ResultPublisher
	metrics    *metrics.Metrics
}

// NewService creates a new transcription orchestrator. publisher may be nil
// when no queue is wired; Enqueue then falls back to an in-process goroutine.
func NewService(sessions store.SessionStore, recordings store.RecordingStore, blobs recording.BlobStorage, speech SpeechClient, publisher JobPublisher) *Service {
	return &Service{
		sessions:   sessions,
		recordings: recordings,
		blobs:      blobs,
		speech:     speech,
		publisher:  publisher,
	}
}

// SetResultPublisher wires cross-process transcript reconciliation.
// Optional; in single-process deployments the local session update covers it.
func (s *Service) SetResultPublisher(results ResultPublisher) {
	s.results = results
}

// SetMetrics wires the service's instrumentation. Optional.
func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// RequestTranscription fetches the recording's audio, submits it to the
// speech service, and writes the transcript back to both the recording and
// its parent session. Idempotent: re-running overwrites rather than
// appends, and concurrent requests are last-write-wins. On failure prior
// state is left untouched and the operation is safely retryable; nothing is
// retried automatically and no partial transcript is ever persisted.
//
// No per-session lock is held across the network await: the recording
// reference is read first, the lock released, and state re-acquired only to
// write back the result.
func (s *Service) RequestTranscription(ctx context.Context, recordingID uuid.UUID) (*Result, error) {
	rec, err := s.recordings.Get(ctx, recordingID)
	if err != nil {
		return nil, err
	}

	audio, err := s.blobs.Get(ctx, rec.ObjectKey)
	if err != nil {
		s.recordOutcome("failed")
		return nil, apperrors.TranscriptionFailedError("failed to fetch recording audio", err)
	}
	if len(audio) == 0 {
		s.recordOutcome("failed")
		return nil, apperrors.TranscriptionFailedError("recording audio is empty", nil)
	}

	started := time.Now()
	result, err := s.speech.Transcribe(ctx, audio, rec.ObjectKey)
	if err != nil {
		s.recordOutcome("failed")
		return nil, apperrors.TranscriptionFailedError("speech-to-text request failed", err)
	}
	if s.metrics != nil {
		s.metrics.RecordTranscriptionDuration(time.Since(started))
	}
	if result.Text == "" {
		s.recordOutcome("failed")
		return nil, apperrors.TranscriptionFailedError("speech-to-text returned empty transcript", nil)
	}

	// Write back. A recording or session deleted while the request was in
	// flight silently drops the late result.
	if err := s.recordings.AttachTranscript(ctx, recordingID, result.Text); err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeRecordingNotFound) {
			logger.Info("dropping transcript for deleted recording",
				zap.String("recording_id", recordingID.String()))
			s.recordOutcome("dropped")
			return result, nil
		}
		s.recordOutcome("failed")
		return nil, apperrors.TranscriptionFailedError("failed to store transcript", err)
	}

	_, err = s.sessions.Update(ctx, rec.CallID, func(c *domain.CallSession) error {
		c.TranscriptText = result.Text
		return nil
	})
	if err != nil && !apperrors.HasCode(err, apperrors.ErrCodeCallNotFound) {
		s.recordOutcome("failed")
		return nil, apperrors.TranscriptionFailedError("failed to update session transcript", err)
	}

	// The local session store may not own this session (the worker's is
	// empty); broadcast so the owning process reconciles it too.
	if s.results != nil {
		if pubErr := s.results.PublishTranscript(ctx, rec.CallID, recordingID, result); pubErr != nil {
			logger.Warn("failed to broadcast completed transcript",
				zap.String("recording_id", recordingID.String()),
				zap.Error(pubErr))
		}
	}

	s.recordOutcome("completed")
	logger.Info("transcription completed",
		zap.String("recording_id", recordingID.String()),
		zap.String("call_id", rec.CallID.String()),
		zap.String("language", result.Language))

	return result, nil
}

func (s *Service) recordOutcome(status string) {
	if s.metrics != nil {
		s.metrics.RecordTranscription(status)
	}
}

// Enqueue requests transcription asynchronously. Fire-and-forget from the
// caller's perspective: the result is reconciled whenever it arrives.
func (s *Service) Enqueue(ctx context.Context, recordingID uuid.UUID) error {
	// Validate the recording exists so callers get NOT_FOUND synchronously
	if _, err := s.recordings.Get(ctx, recordingID); err != nil {
		return err
	}

	if s.publisher != nil {
		return s.publisher.PublishTranscriptionJob(ctx, recordingID)
	}

	// No queue wired: run in-process, detached from the caller's context
	go func() {
		if _, err := s.RequestTranscription(context.Background(), recordingID); err != nil {
			logger.Warn("async transcription failed",
				zap.String("recording_id", recordingID.String()),
				zap.Error(err))
		}
	}()
	return nil
}
