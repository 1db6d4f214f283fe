package store

import (
	"context"

	"github.com/google/uuid"

	"voicelink-backend/internal/domain"
)

// SessionStore is the authoritative keyed registry of call sessions.
// All components read and write sessions through it; nothing holds direct
// references to stored state, so concurrent access always observes the
// latest committed session.
type SessionStore interface {
	// Create stores a new session, rejecting id collisions
	Create(ctx context.Context, session *domain.CallSession) (*domain.CallSession, error)

	// Get returns the session or a NOT_FOUND error
	Get(ctx context.Context, id uuid.UUID) (*domain.CallSession, error)

	// ListForUser returns every session where the user is initiator, peer,
	// or a listed participant, newest first
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.CallSession, error)

	// ListAll returns every session newest first (admin bulk listing)
	ListAll(ctx context.Context) ([]*domain.CallSession, error)

	// Update applies the mutator atomically under the session's critical
	// section and bumps UpdatedAt. Transitions on a single id are strictly
	// serialized; operations on different ids never contend.
	Update(ctx context.Context, id uuid.UUID, mutate func(*domain.CallSession) error) (*domain.CallSession, error)

	// Delete removes the session and its participants
	Delete(ctx context.Context, id uuid.UUID) error
}

// RecordingStore holds recording artifacts keyed by id
type RecordingStore interface {
	Create(ctx context.Context, rec *domain.CallRecording) error
	Get(ctx context.Context, id uuid.UUID) (*domain.CallRecording, error)
	ListForCall(ctx context.Context, callID uuid.UUID) ([]*domain.CallRecording, error)

	// AttachTranscript overwrites the transcript text (last write wins)
	AttachTranscript(ctx context.Context, id uuid.UUID, text string) error

	// Delete removes the recording record (administrative purge)
	Delete(ctx context.Context, id uuid.UUID) error
}
