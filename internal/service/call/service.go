package call

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"voicelink-backend/internal/domain"
	"voicelink-backend/internal/store"
	apperrors "voicelink-backend/pkg/errors"
	"voicelink-backend/pkg/logger"
	"voicelink-backend/pkg/metrics"
)

// maxDurationSeconds caps the caller-supplied elapsed time at hangup.
// Anything above 24h (or negative) is clamped to 0.
const maxDurationSeconds = 24 * 60 * 60

// Identity is a display snapshot resolved once at session creation.
// The engine never re-resolves it afterwards.
type Identity struct {
	DisplayName string
	AvatarURL   string
}

// Directory resolves user identities for snapshotting into sessions
type Directory interface {
	Lookup(ctx context.Context, userID uuid.UUID) (*Identity, error)
}

// Notifier is informed of lifecycle transitions to drive device alerts and
// connected-client events. Delivery is out of scope; the engine only emits.
type Notifier interface {
	CallInitiated(ctx context.Context, session *domain.CallSession)
	CallRinging(ctx context.Context, session *domain.CallSession)
	CallAccepted(ctx context.Context, session *domain.CallSession, actorID uuid.UUID)
	CallDeclined(ctx context.Context, session *domain.CallSession, actorID uuid.UUID)
	CallMissed(ctx context.Context, session *domain.CallSession)
	CallEnded(ctx context.Context, session *domain.CallSession)
	ParticipantUpdated(ctx context.Context, session *domain.CallSession, actorID uuid.UUID)
}

// Recorder is the hook the lifecycle uses to finalize an open capture
// before a hangup commits
type Recorder interface {
	StopActive(ctx context.Context, callID uuid.UUID) error
}

// EventLog is the append-only audit log of transitions and admin operations
type EventLog interface {
	Append(ctx context.Context, event *domain.CallEvent) error
}

// Archive persists terminal sessions for durable call history
type Archive interface {
	ArchiveCall(ctx context.Context, session *domain.CallSession) error
	ListUserCalls(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.CallSession, error)
}

// Service enforces the call state machine and authorization
type Service struct {
	sessions  store.SessionStore
	directory Directory
	notifier  Notifier
	recorder  Recorder
	events    EventLog
	archive   Archive
	metrics   *metrics.Metrics
	guard     Guard
}

// NewService creates a new call lifecycle service. notifier, recorder,
// events, and archive may be nil when the corresponding collaborator is
// not wired (e.g. in limited mode).
func NewService(sessions store.SessionStore, directory Directory, notifier Notifier, recorder Recorder, events EventLog, archive Archive) *Service {
	return &Service{
		sessions:  sessions,
		directory: directory,
		notifier:  notifier,
		recorder:  recorder,
		events:    events,
		archive:   archive,
	}
}

// SetRecorder wires the recording manager after construction. The recorder
// depends on the session store, so the two services are created first and
// linked afterwards.
func (s *Service) SetRecorder(recorder Recorder) {
	s.recorder = recorder
}

// SetMetrics wires the service's instrumentation. Optional; a nil metrics
// sink disables recording.
func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// InitiateCallInput contains call initiation data
type InitiateCallInput struct {
	MediaKind   domain.MediaKind
	InitiatorID uuid.UUID

	// 1:1 calls
	PeerID uuid.UUID

	// Group calls
	GroupID   uuid.UUID
	GroupName string
	MemberIDs []uuid.UUID
}

// InitiateCall creates a new session in the calling state
func (s *Service) InitiateCall(ctx context.Context, input *InitiateCallInput) (*domain.CallSession, error) {
	isGroup := len(input.MemberIDs) > 0
	if isGroup && input.PeerID != uuid.Nil {
		return nil, apperrors.ValidationError("a call is either 1:1 or group, not both")
	}
	if !isGroup && input.PeerID == uuid.Nil {
		return nil, apperrors.ValidationError("peer_id or member_ids required")
	}
	if input.MediaKind != domain.MediaKindAudio && input.MediaKind != domain.MediaKindVideo {
		return nil, apperrors.ValidationError("media_kind must be audio or video")
	}

	now := time.Now().UTC()
	session := &domain.CallSession{
		ID:          uuid.New(),
		InitiatorID: input.InitiatorID,
		IsGroupCall: isGroup,
		MediaKind:   input.MediaKind,
		Status:      domain.CallStatusCalling,
		StartedAt:   now,
		CreatedAt:   now,
	}

	initiator := s.lookupIdentity(ctx, input.InitiatorID)
	session.InitiatorName = initiator.DisplayName
	session.InitiatorAvatar = initiator.AvatarURL

	if isGroup {
		session.GroupID = input.GroupID
		session.GroupName = input.GroupName
		session.Participants = make([]domain.CallParticipant, 0, len(input.MemberIDs))
		for _, memberID := range input.MemberIDs {
			member := s.lookupIdentity(ctx, memberID)
			session.Participants = append(session.Participants, domain.CallParticipant{
				CallID:         session.ID,
				UserID:         memberID,
				DisplayName:    member.DisplayName,
				JoinStatus:     domain.JoinStatusWaiting,
				IsVideoEnabled: input.MediaKind == domain.MediaKindVideo,
			})
		}
	} else {
		peer := s.lookupIdentity(ctx, input.PeerID)
		session.PeerID = input.PeerID
		session.PeerName = peer.DisplayName
		session.PeerAvatar = peer.AvatarURL
	}

	created, err := s.sessions.Create(ctx, session)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, created, input.InitiatorID, "initiate", "")
	if s.notifier != nil {
		s.notifier.CallInitiated(ctx, created)
	}
	return created, nil
}

// Ring marks the peer device as notified
func (s *Service) Ring(ctx context.Context, callID, requesterID uuid.UUID) (*domain.CallSession, error) {
	session, err := s.transition(ctx, callID, requesterID, "ring", domain.CallStatusRinging,
		domain.CallStatusCalling)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.CallRinging(ctx, session)
	}
	return session, nil
}

// Accept moves a calling or ringing session to active
func (s *Service) Accept(ctx context.Context, callID, requesterID uuid.UUID) (*domain.CallSession, error) {
	session, err := s.transition(ctx, callID, requesterID, "accept", domain.CallStatusActive,
		domain.CallStatusCalling, domain.CallStatusRinging)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.CallAccepted(ctx, session, requesterID)
	}
	return session, nil
}

// Decline rejects a calling or ringing session (terminal)
func (s *Service) Decline(ctx context.Context, callID, requesterID uuid.UUID) (*domain.CallSession, error) {
	session, err := s.terminate(ctx, callID, requesterID, "reject", domain.CallStatusDeclined, 0)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.CallDeclined(ctx, session, requesterID)
	}
	return session, nil
}

// MarkMissed marks an unanswered session as missed (terminal)
func (s *Service) MarkMissed(ctx context.Context, callID, requesterID uuid.UUID) (*domain.CallSession, error) {
	session, err := s.terminate(ctx, callID, requesterID, "timeout", domain.CallStatusMissed, 0)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.CallMissed(ctx, session)
	}
	return session, nil
}

// HangupOutput carries the final session plus a non-fatal duration warning
type HangupOutput struct {
	Session *domain.CallSession
	// Warning is set when the caller-supplied duration was clamped
	Warning *apperrors.AppError
}

// Hangup ends an active call. The caller-supplied elapsed seconds become the
// authoritative duration; out-of-range values are clamped to 0 with an
// INVALID_DURATION warning rather than failing the hangup. Any open
// recording is stopped before the terminal transition commits, so no
// session reaches ended with IsRecording still set.
func (s *Service) Hangup(ctx context.Context, callID, requesterID uuid.UUID, elapsedSeconds int) (*HangupOutput, error) {
	current, err := s.sessions.Get(ctx, callID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.Authorize(current, requesterID); err != nil {
		return nil, err
	}
	if current.Status != domain.CallStatusActive {
		s.recordInvalid("hangup")
		return nil, apperrors.InvalidTransitionError(string(current.Status), "hangup")
	}

	// Finalize any open capture first. Consulted unconditionally rather
	// than gated on the IsRecording snapshot, which can be stale by the
	// time it is read. A recording failure is logged but never blocks the
	// hangup.
	s.stopRecorder(ctx, callID)

	duration := elapsedSeconds
	var warning *apperrors.AppError
	if duration < 0 || duration > maxDurationSeconds {
		warning = apperrors.InvalidDurationError(elapsedSeconds)
		duration = 0
	}

	session, err := s.sessions.Update(ctx, callID, func(c *domain.CallSession) error {
		if c.Status != domain.CallStatusActive {
			return apperrors.InvalidTransitionError(string(c.Status), "hangup")
		}
		now := time.Now().UTC()
		c.Status = domain.CallStatusEnded
		c.EndedAt = &now
		c.DurationSeconds = duration
		c.IsRecording = false
		return nil
	})
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeInvalidTransition) {
			s.recordInvalid("hangup")
		}
		return nil, err
	}

	// Sweep again: a capture started between the stop above and the
	// terminal commit would otherwise be orphaned. Start can no longer
	// succeed on the ended session, so this closes the window.
	s.stopRecorder(ctx, callID)

	if s.metrics != nil {
		s.metrics.RecordCallTransition("hangup", string(domain.CallStatusEnded))
		s.metrics.RecordCall(string(session.MediaKind), string(domain.CallStatusEnded))
		s.metrics.RecordCallDuration(string(session.MediaKind), time.Duration(duration)*time.Second)
		s.metrics.DecrementActiveCalls()
	}

	s.logEvent(ctx, session, requesterID, "hangup", "")
	s.archiveTerminal(ctx, session)
	if s.notifier != nil {
		s.notifier.CallEnded(ctx, session)
	}

	return &HangupOutput{Session: session, Warning: warning}, nil
}

// ParticipantUpdate mutates the requester's own group participant entry.
// Nil fields are left unchanged.
type ParticipantUpdate struct {
	JoinStatus     *domain.JoinStatus
	IsMuted        *bool
	IsVideoEnabled *bool
}

// SetParticipantState updates join/mute/video state for the requester in a
// group call. Entries are never deleted individually.
func (s *Service) SetParticipantState(ctx context.Context, callID, requesterID uuid.UUID, update *ParticipantUpdate) (*domain.CallSession, error) {
	session, err := s.sessions.Update(ctx, callID, func(c *domain.CallSession) error {
		if err := s.guard.Authorize(c, requesterID); err != nil {
			return err
		}
		if !c.IsGroupCall {
			return apperrors.ValidationError("participant state applies to group calls only")
		}
		if c.Status.IsTerminal() {
			return apperrors.InvalidTransitionError(string(c.Status), "participant_update")
		}
		for i := range c.Participants {
			if c.Participants[i].UserID != requesterID {
				continue
			}
			if update.JoinStatus != nil {
				c.Participants[i].JoinStatus = *update.JoinStatus
			}
			if update.IsMuted != nil {
				c.Participants[i].IsMuted = *update.IsMuted
			}
			if update.IsVideoEnabled != nil {
				c.Participants[i].IsVideoEnabled = *update.IsVideoEnabled
			}
			return nil
		}
		return apperrors.NotAuthorizedError("requester is not a listed participant")
	})
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.ParticipantUpdated(ctx, session, requesterID)
	}
	return session, nil
}

// GetCall returns the session if the requester is a party to it
func (s *Service) GetCall(ctx context.Context, callID, requesterID uuid.UUID) (*domain.CallSession, error) {
	session, err := s.sessions.Get(ctx, callID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.Authorize(session, requesterID); err != nil {
		return nil, err
	}
	return session, nil
}

// ListUserCalls returns the user's sessions, newest first
func (s *Service) ListUserCalls(ctx context.Context, userID uuid.UUID) ([]*domain.CallSession, error) {
	return s.sessions.ListForUser(ctx, userID)
}

// ListAllCalls is the admin bulk listing across all users. It bypasses the
// membership check but is audit-logged.
func (s *Service) ListAllCalls(ctx context.Context, actorID uuid.UUID, role string) ([]*domain.CallSession, error) {
	if err := s.guard.AuthorizeRole(role); err != nil {
		return nil, err
	}
	if s.events != nil {
		s.appendEvent(ctx, &domain.CallEvent{
			ActorID:   actorID,
			Event:     "admin_list_all",
			Timestamp: time.Now().UTC(),
		})
	}
	return s.sessions.ListAll(ctx)
}

// DeleteCall removes a session entirely (admin forced deletion). Late
// transcription results against the deleted session are silently dropped.
func (s *Service) DeleteCall(ctx context.Context, callID, actorID uuid.UUID, role string) error {
	if err := s.guard.AuthorizeRole(role); err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, callID); err != nil {
		return err
	}
	s.appendEvent(ctx, &domain.CallEvent{
		CallID:    callID,
		ActorID:   actorID,
		Event:     "admin_delete_call",
		Timestamp: time.Now().UTC(),
	})
	return nil
}

// ListUserCallHistory reads archived terminal calls from durable storage
func (s *Service) ListUserCallHistory(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.CallSession, error) {
	if s.archive == nil {
		return nil, apperrors.ServiceUnavailableError("call history storage is not available")
	}
	if limit == 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return s.archive.ListUserCalls(ctx, userID, limit, offset)
}

// transition applies an authorized non-terminal state change
func (s *Service) transition(ctx context.Context, callID, requesterID uuid.UUID, event string, to domain.CallStatus, allowedFrom ...domain.CallStatus) (*domain.CallSession, error) {
	session, err := s.sessions.Update(ctx, callID, func(c *domain.CallSession) error {
		if err := s.guard.Authorize(c, requesterID); err != nil {
			return err
		}
		for _, from := range allowedFrom {
			if c.Status == from {
				c.Status = to
				if to == domain.CallStatusActive && c.IsGroupCall {
					markJoined(c, requesterID)
				}
				return nil
			}
		}
		return apperrors.InvalidTransitionError(string(c.Status), event)
	})
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeInvalidTransition) {
			s.recordInvalid(event)
		}
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordCallTransition(event, string(to))
		if to == domain.CallStatusActive {
			s.metrics.IncrementActiveCalls()
		}
	}
	s.logEvent(ctx, session, requesterID, event, "")
	return session, nil
}

// terminate applies an authorized transition into a terminal state and
// archives the session
func (s *Service) terminate(ctx context.Context, callID, requesterID uuid.UUID, event string, to domain.CallStatus, duration int) (*domain.CallSession, error) {
	session, err := s.sessions.Update(ctx, callID, func(c *domain.CallSession) error {
		if err := s.guard.Authorize(c, requesterID); err != nil {
			return err
		}
		if c.Status != domain.CallStatusCalling && c.Status != domain.CallStatusRinging {
			return apperrors.InvalidTransitionError(string(c.Status), event)
		}
		now := time.Now().UTC()
		c.Status = to
		c.EndedAt = &now
		c.DurationSeconds = duration
		return nil
	})
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeInvalidTransition) {
			s.recordInvalid(event)
		}
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordCallTransition(event, string(to))
		s.metrics.RecordCall(string(session.MediaKind), string(to))
	}
	s.logEvent(ctx, session, requesterID, event, "")
	s.archiveTerminal(ctx, session)
	return session, nil
}

// stopRecorder finalizes any open capture for the call; errors never
// propagate to the lifecycle operation
func (s *Service) stopRecorder(ctx context.Context, callID uuid.UUID) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.StopActive(ctx, callID); err != nil {
		logger.Warn("failed to finalize recording during hangup",
			zap.String("call_id", callID.String()),
			zap.Error(err))
	}
}

func (s *Service) recordInvalid(event string) {
	if s.metrics != nil {
		s.metrics.RecordInvalidTransition(event)
	}
}

func markJoined(c *domain.CallSession, userID uuid.UUID) {
	for i := range c.Participants {
		if c.Participants[i].UserID == userID {
			c.Participants[i].JoinStatus = domain.JoinStatusJoined
		}
	}
}

func (s *Service) lookupIdentity(ctx context.Context, userID uuid.UUID) Identity {
	if s.directory == nil {
		return Identity{}
	}
	identity, err := s.directory.Lookup(ctx, userID)
	if err != nil || identity == nil {
		logger.Warn("identity lookup failed, snapshotting empty name",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return Identity{}
	}
	return *identity
}

func (s *Service) archiveTerminal(ctx context.Context, session *domain.CallSession) {
	if s.archive == nil {
		return
	}
	if err := s.archive.ArchiveCall(ctx, session); err != nil {
		logger.Warn("failed to archive terminal call",
			zap.String("call_id", session.ID.String()),
			zap.Error(err))
	}
}

func (s *Service) logEvent(ctx context.Context, session *domain.CallSession, actorID uuid.UUID, event, detail string) {
	s.appendEvent(ctx, &domain.CallEvent{
		CallID:    session.ID,
		ActorID:   actorID,
		Event:     event,
		Status:    session.Status,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	})
}

func (s *Service) appendEvent(ctx context.Context, event *domain.CallEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Append(ctx, event); err != nil {
		logger.Warn("failed to append call event",
			zap.String("event", event.Event),
			zap.Error(err))
	}
}
