package domain

import (
	"time"

	"github.com/google/uuid"
)

// CallStatus represents the lifecycle state of a call session
type CallStatus string

const (
	CallStatusCalling  CallStatus = "calling"
	CallStatusRinging  CallStatus = "ringing"
	CallStatusActive   CallStatus = "active"
	CallStatusEnded    CallStatus = "ended"
	CallStatusMissed   CallStatus = "missed"
	CallStatusDeclined CallStatus = "declined"
)

// IsTerminal reports whether no further transition is permitted from s
func (s CallStatus) IsTerminal() bool {
	return s == CallStatusEnded || s == CallStatusMissed || s == CallStatusDeclined
}

// MediaKind distinguishes audio-only calls from video calls
type MediaKind string

const (
	MediaKindAudio MediaKind = "audio"
	MediaKindVideo MediaKind = "video"
)

// JoinStatus tracks a group call participant's presence
type JoinStatus string

const (
	JoinStatusWaiting JoinStatus = "waiting"
	JoinStatusJoined  JoinStatus = "joined"
	JoinStatusLeft    JoinStatus = "left"
)

// CallSession is one conversation instance from initiation to a terminal state.
// Exactly one of PeerID (1:1) or Participants (group) is populated, governed
// by IsGroupCall. All fields are flat so sessions can live in any keyed store.
type CallSession struct {
	ID              uuid.UUID         `json:"id"`
	InitiatorID     uuid.UUID         `json:"initiator_id"`
	InitiatorName   string            `json:"initiator_name"`
	InitiatorAvatar string            `json:"initiator_avatar,omitempty"`
	IsGroupCall     bool              `json:"is_group_call"`
	GroupID         uuid.UUID         `json:"group_id,omitempty"`
	GroupName       string            `json:"group_name,omitempty"`
	PeerID          uuid.UUID         `json:"peer_id,omitempty"`
	PeerName        string            `json:"peer_name,omitempty"`
	PeerAvatar      string            `json:"peer_avatar,omitempty"`
	Participants    []CallParticipant `json:"participants,omitempty"`
	MediaKind       MediaKind         `json:"media_kind"`
	Status          CallStatus        `json:"status"`
	StartedAt       time.Time         `json:"started_at"`
	EndedAt         *time.Time        `json:"ended_at,omitempty"`
	DurationSeconds int               `json:"duration_seconds"`
	IsRecording     bool              `json:"is_recording"`
	RecordingURL    string            `json:"recording_url,omitempty"`
	TranscriptText  string            `json:"transcript_text,omitempty"`
	Notes           string            `json:"notes,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// HasParticipant reports whether userID is a party to the session:
// the initiator, the 1:1 peer, or a listed group participant.
func (c *CallSession) HasParticipant(userID uuid.UUID) bool {
	if c.InitiatorID == userID {
		return true
	}
	if !c.IsGroupCall {
		return c.PeerID == userID
	}
	for i := range c.Participants {
		if c.Participants[i].UserID == userID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers never hold references into the store
func (c *CallSession) Clone() *CallSession {
	dup := *c
	if c.EndedAt != nil {
		t := *c.EndedAt
		dup.EndedAt = &t
	}
	if c.Participants != nil {
		dup.Participants = make([]CallParticipant, len(c.Participants))
		copy(dup.Participants, c.Participants)
	}
	return &dup
}

// CallParticipant represents a member of a group call
type CallParticipant struct {
	CallID         uuid.UUID  `json:"call_id"`
	UserID         uuid.UUID  `json:"user_id"`
	DisplayName    string     `json:"display_name"`
	JoinStatus     JoinStatus `json:"join_status"`
	IsMuted        bool       `json:"is_muted"`
	IsVideoEnabled bool       `json:"is_video_enabled"`
}

// CallRecording is a captured audio artifact associated with exactly one call.
// Never mutated after creation except to attach a transcript.
type CallRecording struct {
	ID              uuid.UUID `json:"id"`
	CallID          uuid.UUID `json:"call_id"`
	AudioURL        string    `json:"audio_url"`
	ObjectKey       string    `json:"object_key"`
	DurationSeconds int       `json:"duration_seconds"`
	TranscriptText  string    `json:"transcript_text,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// CallEvent is one entry in the append-only call audit log
type CallEvent struct {
	CallID    uuid.UUID  `json:"call_id"`
	ActorID   uuid.UUID  `json:"actor_id"`
	Event     string     `json:"event"`
	Status    CallStatus `json:"status"`
	Detail    string     `json:"detail,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}
