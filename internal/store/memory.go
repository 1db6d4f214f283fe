package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"voicelink-backend/internal/domain"
	apperrors "voicelink-backend/pkg/errors"
)

// shardCount spreads sessions across independently locked shards so calls
// on different ids never contend
const shardCount = 32

// MemorySessionStore is a sharded in-memory SessionStore. Each session id
// maps to one shard; mutations run under that shard's write lock, which
// serializes transitions per id without a global lock.
type MemorySessionStore struct {
	shards [shardCount]*sessionShard
}

type sessionShard struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*domain.CallSession
}

// NewMemorySessionStore creates an empty session store
func NewMemorySessionStore() *MemorySessionStore {
	s := &MemorySessionStore{}
	for i := range s.shards {
		s.shards[i] = &sessionShard{sessions: make(map[uuid.UUID]*domain.CallSession)}
	}
	return s
}

func (s *MemorySessionStore) shardFor(id uuid.UUID) *sessionShard {
	// First byte of the uuid is uniformly distributed for v4 ids
	return s.shards[id[0]%shardCount]
}

// Create stores a new session, rejecting id collisions
func (s *MemorySessionStore) Create(ctx context.Context, session *domain.CallSession) (*domain.CallSession, error) {
	shard := s.shardFor(session.ID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if _, exists := shard.sessions[session.ID]; exists {
		return nil, apperrors.ConflictError("call session id already exists")
	}

	now := time.Now().UTC()
	stored := session.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	shard.sessions[stored.ID] = stored

	return stored.Clone(), nil
}

// Get returns a copy of the session or CALL_NOT_FOUND
func (s *MemorySessionStore) Get(ctx context.Context, id uuid.UUID) (*domain.CallSession, error) {
	shard := s.shardFor(id)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	session, exists := shard.sessions[id]
	if !exists {
		return nil, apperrors.CallNotFoundError()
	}
	return session.Clone(), nil
}

// ListForUser returns all sessions the user is a party to, newest first
func (s *MemorySessionStore) ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.CallSession, error) {
	var result []*domain.CallSession
	for _, shard := range s.shards {
		shard.mu.RLock()
		for _, session := range shard.sessions {
			if session.HasParticipant(userID) {
				result = append(result, session.Clone())
			}
		}
		shard.mu.RUnlock()
	}
	sortNewestFirst(result)
	return result, nil
}

// ListAll returns every session newest first
func (s *MemorySessionStore) ListAll(ctx context.Context) ([]*domain.CallSession, error) {
	var result []*domain.CallSession
	for _, shard := range s.shards {
		shard.mu.RLock()
		for _, session := range shard.sessions {
			result = append(result, session.Clone())
		}
		shard.mu.RUnlock()
	}
	sortNewestFirst(result)
	return result, nil
}

// Update applies the mutator under the shard write lock and bumps UpdatedAt.
// A mutator error leaves the stored session untouched.
func (s *MemorySessionStore) Update(ctx context.Context, id uuid.UUID, mutate func(*domain.CallSession) error) (*domain.CallSession, error) {
	shard := s.shardFor(id)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	session, exists := shard.sessions[id]
	if !exists {
		return nil, apperrors.CallNotFoundError()
	}

	// Mutate a copy so a failed mutator cannot leave partial writes behind
	working := session.Clone()
	if err := mutate(working); err != nil {
		return nil, err
	}
	working.UpdatedAt = time.Now().UTC()
	shard.sessions[id] = working

	return working.Clone(), nil
}

// Delete removes the session and its participants
func (s *MemorySessionStore) Delete(ctx context.Context, id uuid.UUID) error {
	shard := s.shardFor(id)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if _, exists := shard.sessions[id]; !exists {
		return apperrors.CallNotFoundError()
	}
	delete(shard.sessions, id)
	return nil
}

func sortNewestFirst(sessions []*domain.CallSession) {
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
}

// MemoryRecordingStore is an in-memory RecordingStore used in tests and when
// the service runs without relational persistence.
type MemoryRecordingStore struct {
	mu         sync.RWMutex
	recordings map[uuid.UUID]*domain.CallRecording
}

// NewMemoryRecordingStore creates an empty recording store
func NewMemoryRecordingStore() *MemoryRecordingStore {
	return &MemoryRecordingStore{recordings: make(map[uuid.UUID]*domain.CallRecording)}
}

// Create stores a new recording record
func (s *MemoryRecordingStore) Create(ctx context.Context, rec *domain.CallRecording) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.recordings[rec.ID]; exists {
		return apperrors.ConflictError("recording id already exists")
	}
	dup := *rec
	s.recordings[rec.ID] = &dup
	return nil
}

// Get returns a copy of the recording or RECORDING_NOT_FOUND
func (s *MemoryRecordingStore) Get(ctx context.Context, id uuid.UUID) (*domain.CallRecording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.recordings[id]
	if !exists {
		return nil, apperrors.RecordingNotFoundError()
	}
	dup := *rec
	return &dup, nil
}

// ListForCall returns recordings for a call, oldest first
func (s *MemoryRecordingStore) ListForCall(ctx context.Context, callID uuid.UUID) ([]*domain.CallRecording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.CallRecording
	for _, rec := range s.recordings {
		if rec.CallID == callID {
			dup := *rec
			result = append(result, &dup)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// AttachTranscript overwrites the transcript text (last write wins)
func (s *MemoryRecordingStore) AttachTranscript(ctx context.Context, id uuid.UUID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.recordings[id]
	if !exists {
		return apperrors.RecordingNotFoundError()
	}
	rec.TranscriptText = text
	return nil
}

// Delete removes the recording record
func (s *MemoryRecordingStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.recordings[id]; !exists {
		return apperrors.RecordingNotFoundError()
	}
	delete(s.recordings, id)
	return nil
}
