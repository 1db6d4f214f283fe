package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"voicelink-backend/internal/domain"
	apperrors "voicelink-backend/pkg/errors"
)

func newSession(initiator, peer uuid.UUID) *domain.CallSession {
	return &domain.CallSession{
		ID:          uuid.New(),
		InitiatorID: initiator,
		PeerID:      peer,
		MediaKind:   domain.MediaKindAudio,
		Status:      domain.CallStatusCalling,
		StartedAt:   time.Now().UTC(),
	}
}

func TestCreateAndGet(t *testing.T) {
	s := NewMemorySessionStore()
	session := newSession(uuid.New(), uuid.New())

	stored, err := s.Create(context.Background(), session)
	assert.NoError(t, err)
	assert.False(t, stored.CreatedAt.IsZero())
	assert.False(t, stored.UpdatedAt.IsZero())

	got, err := s.Get(context.Background(), session.ID)
	assert.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)
	assert.Equal(t, domain.CallStatusCalling, got.Status)
}

func TestCreate_IDCollision(t *testing.T) {
	s := NewMemorySessionStore()
	session := newSession(uuid.New(), uuid.New())

	_, err := s.Create(context.Background(), session)
	assert.NoError(t, err)

	_, err = s.Create(context.Background(), session)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConflict))
}

func TestGet_NotFound(t *testing.T) {
	s := NewMemorySessionStore()

	_, err := s.Get(context.Background(), uuid.New())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeCallNotFound))
}

func TestGet_ReturnsCopy(t *testing.T) {
	s := NewMemorySessionStore()
	session := newSession(uuid.New(), uuid.New())
	s.Create(context.Background(), session)

	got, _ := s.Get(context.Background(), session.ID)
	got.Status = domain.CallStatusEnded

	again, _ := s.Get(context.Background(), session.ID)
	assert.Equal(t, domain.CallStatusCalling, again.Status)
}

func TestListForUser_NewestFirst(t *testing.T) {
	s := NewMemorySessionStore()
	userID := uuid.New()

	first := newSession(userID, uuid.New())
	first.CreatedAt = time.Now().Add(-2 * time.Hour)
	second := newSession(uuid.New(), userID)
	second.CreatedAt = time.Now().Add(-1 * time.Hour)
	unrelated := newSession(uuid.New(), uuid.New())

	s.Create(context.Background(), first)
	s.Create(context.Background(), second)
	s.Create(context.Background(), unrelated)

	sessions, err := s.ListForUser(context.Background(), userID)
	assert.NoError(t, err)
	assert.Len(t, sessions, 2)
	assert.Equal(t, second.ID, sessions[0].ID)
	assert.Equal(t, first.ID, sessions[1].ID)
}

func TestListForUser_GroupParticipant(t *testing.T) {
	s := NewMemorySessionStore()
	memberID := uuid.New()

	session := newSession(uuid.New(), uuid.Nil)
	session.IsGroupCall = true
	session.PeerID = uuid.Nil
	session.Participants = []domain.CallParticipant{
		{CallID: session.ID, UserID: memberID, JoinStatus: domain.JoinStatusWaiting},
	}
	s.Create(context.Background(), session)

	sessions, err := s.ListForUser(context.Background(), memberID)
	assert.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestUpdate_MutatorErrorLeavesSessionUntouched(t *testing.T) {
	s := NewMemorySessionStore()
	session := newSession(uuid.New(), uuid.New())
	s.Create(context.Background(), session)

	_, err := s.Update(context.Background(), session.ID, func(c *domain.CallSession) error {
		c.Status = domain.CallStatusEnded
		return apperrors.InvalidTransitionError(string(c.Status), "hangup")
	})
	assert.Error(t, err)

	got, _ := s.Get(context.Background(), session.ID)
	assert.Equal(t, domain.CallStatusCalling, got.Status)
}

func TestUpdate_BumpsUpdatedAt(t *testing.T) {
	s := NewMemorySessionStore()
	session := newSession(uuid.New(), uuid.New())
	stored, _ := s.Create(context.Background(), session)

	time.Sleep(5 * time.Millisecond)
	updated, err := s.Update(context.Background(), session.ID, func(c *domain.CallSession) error {
		c.Status = domain.CallStatusRinging
		return nil
	})
	assert.NoError(t, err)
	assert.True(t, updated.UpdatedAt.After(stored.UpdatedAt))
}

func TestUpdate_ConcurrentWritesSerialized(t *testing.T) {
	s := NewMemorySessionStore()
	session := newSession(uuid.New(), uuid.New())
	s.Create(context.Background(), session)

	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Update(context.Background(), session.ID, func(c *domain.CallSession) error {
				c.DurationSeconds++
				return nil
			})
		}()
	}
	wg.Wait()

	got, _ := s.Get(context.Background(), session.ID)
	assert.Equal(t, writers, got.DurationSeconds)
}

func TestDelete(t *testing.T) {
	s := NewMemorySessionStore()
	session := newSession(uuid.New(), uuid.New())
	s.Create(context.Background(), session)

	assert.NoError(t, s.Delete(context.Background(), session.ID))

	_, err := s.Get(context.Background(), session.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeCallNotFound))

	err = s.Delete(context.Background(), session.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeCallNotFound))
}

func TestRecordingStore_AttachTranscriptOverwrites(t *testing.T) {
	s := NewMemoryRecordingStore()
	rec := &domain.CallRecording{
		ID:        uuid.New(),
		CallID:    uuid.New(),
		AudioURL:  "https://storage.local/recordings/a.ogg",
		CreatedAt: time.Now().UTC(),
	}
	assert.NoError(t, s.Create(context.Background(), rec))

	assert.NoError(t, s.AttachTranscript(context.Background(), rec.ID, "first"))
	assert.NoError(t, s.AttachTranscript(context.Background(), rec.ID, "second"))

	got, err := s.Get(context.Background(), rec.ID)
	assert.NoError(t, err)
	assert.Equal(t, "second", got.TranscriptText)
}

func TestRecordingStore_NotFound(t *testing.T) {
	s := NewMemoryRecordingStore()

	_, err := s.Get(context.Background(), uuid.New())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRecordingNotFound))

	err = s.AttachTranscript(context.Background(), uuid.New(), "text")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRecordingNotFound))
}
