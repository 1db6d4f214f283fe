package recording

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"voicelink-backend/internal/domain"
	callsvc "voicelink-backend/internal/service/call"
	"voicelink-backend/internal/store"
	apperrors "voicelink-backend/pkg/errors"
	"voicelink-backend/pkg/logger"
	"voicelink-backend/pkg/metrics"
)

// BlobStorage persists finished audio artifacts. The MinIO implementation
// lives in internal/storage.
type BlobStorage interface {
	Put(ctx context.Context, objectName string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, objectName string) ([]byte, error)
	Remove(ctx context.Context, objectName string) error
}

// Events broadcasts recording state changes to the call's parties. The
// notifier implementation fans them out over WebSocket.
type Events interface {
	RecordingChanged(ctx context.Context, session *domain.CallSession, state string)
}

// Service coordinates start/stop of audio capture and persists the
// resulting artifacts. At most one capture is outstanding per session.
type Service struct {
	sessions   store.SessionStore
	recordings store.RecordingStore
	blobs      BlobStorage
	profile    CaptureProfile
	guard      callsvc.Guard
	events     Events
	metrics    *metrics.Metrics

	mu     sync.Mutex
	active map[uuid.UUID]*Capture // keyed by call id
}

// NewService creates a new recording manager
func NewService(sessions store.SessionStore, recordings store.RecordingStore, blobs BlobStorage, profile CaptureProfile) *Service {
	if profile.SampleRateHz == 0 {
		profile = DefaultCaptureProfile()
	}
	return &Service{
		sessions:   sessions,
		recordings: recordings,
		blobs:      blobs,
		profile:    profile,
		active:     make(map[uuid.UUID]*Capture),
	}
}

// SetEvents wires recording state broadcasts. Optional.
func (s *Service) SetEvents(events Events) {
	s.events = events
}

// SetMetrics wires the service's instrumentation. Optional.
func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Start begins capturing audio for an active call. Fails with
// NOT_AUTHORIZED for non-parties and ALREADY_RECORDING when a capture is
// already outstanding; capture is never stacked.
func (s *Service) Start(ctx context.Context, callID, requesterID uuid.UUID) (*Capture, error) {
	session, err := s.sessions.Update(ctx, callID, func(c *domain.CallSession) error {
		if err := s.guard.Authorize(c, requesterID); err != nil {
			return err
		}
		if c.Status != domain.CallStatusActive {
			return apperrors.InvalidTransitionError(string(c.Status), "start_recording")
		}
		if c.IsRecording {
			return apperrors.AlreadyRecordingError()
		}
		c.IsRecording = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	capture := &Capture{
		ID:        uuid.New(),
		CallID:    callID,
		StartedAt: time.Now().UTC(),
		Profile:   s.profile,
	}

	s.mu.Lock()
	s.active[callID] = capture
	inProgress := len(s.active)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordRecording("started")
		s.metrics.SetRecordingsInProgress(inProgress)
	}
	if s.events != nil {
		s.events.RecordingChanged(ctx, session, "started")
	}

	logger.Info("recording started",
		zap.String("call_id", callID.String()),
		zap.String("capture_id", capture.ID.String()))

	return capture, nil
}

// Stop finalizes a capture, uploads the artifact, and records a
// CallRecording. A capture that produced zero bytes yields RECORDING_FAILED;
// in every outcome IsRecording is cleared so the session is never left
// stuck recording.
func (s *Service) Stop(ctx context.Context, callID uuid.UUID, capture *Capture) (*domain.CallRecording, error) {
	if capture == nil || capture.CallID != callID {
		return nil, apperrors.ValidationError("capture handle does not belong to this call")
	}

	s.mu.Lock()
	delete(s.active, callID)
	inProgress := len(s.active)
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.SetRecordingsInProgress(inProgress)
	}

	audio := capture.finalize()
	if len(audio) == 0 {
		s.clearRecordingFlag(ctx, callID)
		s.recordOutcome("failed")
		return nil, apperrors.RecordingFailedError("capture produced no audio", nil)
	}

	objectName := capture.ObjectName()
	audioURL, err := s.blobs.Put(ctx, objectName, audio, capture.Profile.ContentType())
	if err != nil {
		s.clearRecordingFlag(ctx, callID)
		s.recordOutcome("failed")
		return nil, apperrors.RecordingFailedError("failed to persist audio artifact", err)
	}

	rec := &domain.CallRecording{
		ID:              capture.ID,
		CallID:          callID,
		AudioURL:        audioURL,
		ObjectKey:       objectName,
		DurationSeconds: int(time.Since(capture.StartedAt).Seconds()),
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.recordings.Create(ctx, rec); err != nil {
		s.clearRecordingFlag(ctx, callID)
		s.recordOutcome("failed")
		return nil, apperrors.RecordingFailedError("failed to store recording record", err)
	}

	session, err := s.sessions.Update(ctx, callID, func(c *domain.CallSession) error {
		c.IsRecording = false
		c.RecordingURL = audioURL
		return nil
	})
	if err != nil {
		logger.Warn("recording stored but session update failed",
			zap.String("call_id", callID.String()),
			zap.Error(err))
	} else if s.events != nil {
		s.events.RecordingChanged(ctx, session, "stopped")
	}

	if s.metrics != nil {
		s.metrics.RecordRecording("completed")
		s.metrics.AddRecordingBytes(int64(len(audio)))
	}

	logger.Info("recording finalized",
		zap.String("call_id", callID.String()),
		zap.String("recording_id", rec.ID.String()),
		zap.Int("duration_seconds", rec.DurationSeconds))

	return rec, nil
}

// AppendAudio writes a chunk of captured audio into the open capture for
// the call. Only parties to the call may append.
func (s *Service) AppendAudio(ctx context.Context, callID, requesterID uuid.UUID, data []byte) error {
	session, err := s.sessions.Get(ctx, callID)
	if err != nil {
		return err
	}
	if err := s.guard.Authorize(session, requesterID); err != nil {
		return err
	}

	s.mu.Lock()
	capture, ok := s.active[callID]
	s.mu.Unlock()
	if !ok {
		return apperrors.RecordingNotFoundError()
	}

	if _, err := capture.Write(data); err != nil {
		return apperrors.RecordingFailedError("failed to buffer audio chunk", err)
	}
	return nil
}

// StopByCall finalizes the open capture on behalf of an authorized
// requester. This is the HTTP-facing variant of Stop, where the client
// holds no capture handle.
func (s *Service) StopByCall(ctx context.Context, callID, requesterID uuid.UUID) (*domain.CallRecording, error) {
	session, err := s.sessions.Get(ctx, callID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.Authorize(session, requesterID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	capture, ok := s.active[callID]
	s.mu.Unlock()
	if !ok {
		return nil, apperrors.RecordingNotFoundError()
	}

	return s.Stop(ctx, callID, capture)
}

// StopActive finalizes whatever capture is outstanding for the call. Used
// by the hangup path so no session terminates while still recording. A call
// without an open capture is a no-op.
func (s *Service) StopActive(ctx context.Context, callID uuid.UUID) error {
	s.mu.Lock()
	capture, ok := s.active[callID]
	s.mu.Unlock()

	if !ok {
		// Flag may still be set if the process that started the capture
		// died; clear it so the session cannot end stuck recording.
		s.clearRecordingFlag(ctx, callID)
		return nil
	}

	_, err := s.Stop(ctx, callID, capture)
	return err
}

// Get returns a recording by id
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.CallRecording, error) {
	return s.recordings.Get(ctx, id)
}

// ListForCall returns all recordings captured for a call
func (s *Service) ListForCall(ctx context.Context, callID uuid.UUID) ([]*domain.CallRecording, error) {
	return s.recordings.ListForCall(ctx, callID)
}

// Audio fetches the raw audio bytes of a stored recording
func (s *Service) Audio(ctx context.Context, rec *domain.CallRecording) ([]byte, error) {
	data, err := s.blobs.Get(ctx, rec.ObjectKey)
	if err != nil {
		return nil, apperrors.StorageError(err)
	}
	return data, nil
}

// Purge is the administrative deletion of a recording: removes the stored
// object and record, then clears the parent session's recording fields.
func (s *Service) Purge(ctx context.Context, recordingID uuid.UUID, role string) error {
	if err := s.guard.AuthorizeRole(role); err != nil {
		return err
	}

	rec, err := s.recordings.Get(ctx, recordingID)
	if err != nil {
		return err
	}

	if err := s.blobs.Remove(ctx, rec.ObjectKey); err != nil {
		logger.Warn("failed to remove audio object during purge",
			zap.String("object_key", rec.ObjectKey),
			zap.Error(err))
	}
	if err := s.recordings.Delete(ctx, recordingID); err != nil {
		return err
	}

	_, err = s.sessions.Update(ctx, rec.CallID, func(c *domain.CallSession) error {
		c.RecordingURL = ""
		c.TranscriptText = ""
		return nil
	})
	if err != nil && !apperrors.HasCode(err, apperrors.ErrCodeCallNotFound) {
		return err
	}

	logger.Info("recording purged",
		zap.String("recording_id", recordingID.String()),
		zap.String("call_id", rec.CallID.String()))
	return nil
}

func (s *Service) recordOutcome(status string) {
	if s.metrics != nil {
		s.metrics.RecordRecording(status)
	}
}

func (s *Service) clearRecordingFlag(ctx context.Context, callID uuid.UUID) {
	_, err := s.sessions.Update(ctx, callID, func(c *domain.CallSession) error {
		c.IsRecording = false
		return nil
	})
	if err != nil && !apperrors.HasCode(err, apperrors.ErrCodeCallNotFound) {
		logger.Warn("failed to clear recording flag",
			zap.String("call_id", callID.String()),
			zap.Error(err))
	}
}
