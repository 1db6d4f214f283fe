package recording

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"voicelink-backend/internal/domain"
	callsvc "voicelink-backend/internal/service/call"
	"voicelink-backend/internal/store"
	apperrors "voicelink-backend/pkg/errors"
)

// MockBlobStorage is a mock implementation of BlobStorage
type MockBlobStorage struct {
	mock.Mock
}

func (m *MockBlobStorage) Put(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	args := m.Called(ctx, objectName, data, contentType)
	return args.String(0), args.Error(1)
}

func (m *MockBlobStorage) Get(ctx context.Context, objectName string) ([]byte, error) {
	args := m.Called(ctx, objectName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockBlobStorage) Remove(ctx context.Context, objectName string) error {
	args := m.Called(ctx, objectName)
	return args.Error(0)
}

// MockEvents is a mock implementation of Events
type MockEvents struct {
	mock.Mock
}

func (m *MockEvents) RecordingChanged(ctx context.Context, session *domain.CallSession, state string) {
	m.Called(ctx, session, state)
}

func newTestService(t *testing.T) (*Service, *store.MemorySessionStore, *MockBlobStorage) {
	t.Helper()
	sessions := store.NewMemorySessionStore()
	recordings := store.NewMemoryRecordingStore()
	blobs := new(MockBlobStorage)
	return NewService(sessions, recordings, blobs, CaptureProfile{}), sessions, blobs
}

// seedActiveCall creates a 1:1 session in the active state
func seedActiveCall(t *testing.T, sessions *store.MemorySessionStore) (*domain.CallSession, uuid.UUID) {
	t.Helper()
	initiatorID := uuid.New()
	session, err := sessions.Create(context.Background(), &domain.CallSession{
		ID:          uuid.New(),
		InitiatorID: initiatorID,
		PeerID:      uuid.New(),
		MediaKind:   domain.MediaKindAudio,
		Status:      domain.CallStatusActive,
	})
	require.NoError(t, err)
	return session, initiatorID
}

func TestStart_SetsRecordingFlag(t *testing.T) {
	svc, sessions, _ := newTestService(t)
	session, userID := seedActiveCall(t, sessions)

	capture, err := svc.Start(context.Background(), session.ID, userID)

	require.NoError(t, err)
	assert.Equal(t, session.ID, capture.CallID)
	assert.NotEqual(t, uuid.Nil, capture.ID)
	assert.Equal(t, DefaultCaptureProfile(), capture.Profile)

	current, err := sessions.Get(context.Background(), session.ID)
	require.NoError(t, err)
	assert.True(t, current.IsRecording)
}

func TestStart_SecondCaptureRejected(t *testing.T) {
	svc, sessions, _ := newTestService(t)
	session, userID := seedActiveCall(t, sessions)
	ctx := context.Background()

	_, err := svc.Start(ctx, session.ID, userID)
	require.NoError(t, err)

	_, err = svc.Start(ctx, session.ID, userID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeAlreadyRecording))
}

func TestStart_RequiresActiveCall(t *testing.T) {
	svc, sessions, _ := newTestService(t)
	initiatorID := uuid.New()
	session, err := sessions.Create(context.Background(), &domain.CallSession{
		ID:          uuid.New(),
		InitiatorID: initiatorID,
		PeerID:      uuid.New(),
		Status:      domain.CallStatusRinging,
	})
	require.NoError(t, err)

	_, err = svc.Start(context.Background(), session.ID, initiatorID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidTransition))
}

func TestStart_NonPartyRejected(t *testing.T) {
	svc, sessions, _ := newTestService(t)
	session, _ := seedActiveCall(t, sessions)

	_, err := svc.Start(context.Background(), session.ID, uuid.New())

	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotAuthorized))

	current, getErr := sessions.Get(context.Background(), session.ID)
	require.NoError(t, getErr)
	assert.False(t, current.IsRecording)
}

func TestStop_PersistsArtifact(t *testing.T) {
	svc, sessions, blobs := newTestService(t)
	session, userID := seedActiveCall(t, sessions)
	ctx := context.Background()

	capture, err := svc.Start(ctx, session.ID, userID)
	require.NoError(t, err)

	audio := []byte("opus-frames")
	_, err = capture.Write(audio)
	require.NoError(t, err)

	blobs.On("Put", mock.Anything, capture.ObjectName(), audio, "audio/ogg").
		Return("https://blobs/"+capture.ObjectName(), nil).Once()

	rec, err := svc.Stop(ctx, session.ID, capture)

	require.NoError(t, err)
	assert.Equal(t, capture.ID, rec.ID)
	assert.Equal(t, session.ID, rec.CallID)
	assert.Equal(t, "https://blobs/"+capture.ObjectName(), rec.AudioURL)

	current, err := sessions.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, current.IsRecording)
	assert.Equal(t, rec.AudioURL, current.RecordingURL)
	blobs.AssertExpectations(t)
}

func TestStop_ZeroBytesFails(t *testing.T) {
	svc, sessions, _ := newTestService(t)
	session, userID := seedActiveCall(t, sessions)
	ctx := context.Background()

	capture, err := svc.Start(ctx, session.ID, userID)
	require.NoError(t, err)

	_, err = svc.Stop(ctx, session.ID, capture)

	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRecordingFailed))

	// The flag must be cleared so the session is not stuck recording
	current, getErr := sessions.Get(ctx, session.ID)
	require.NoError(t, getErr)
	assert.False(t, current.IsRecording)
	assert.Empty(t, current.RecordingURL)
}

func TestStop_UploadFailureClearsFlag(t *testing.T) {
	svc, sessions, blobs := newTestService(t)
	session, userID := seedActiveCall(t, sessions)
	ctx := context.Background()

	capture, err := svc.Start(ctx, session.ID, userID)
	require.NoError(t, err)
	_, err = capture.Write([]byte("audio"))
	require.NoError(t, err)

	blobs.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", assert.AnError).Once()

	_, err = svc.Stop(ctx, session.ID, capture)

	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRecordingFailed))

	current, getErr := sessions.Get(ctx, session.ID)
	require.NoError(t, getErr)
	assert.False(t, current.IsRecording)
}

func TestStopActive_NoCaptureIsNoOp(t *testing.T) {
	svc, sessions, _ := newTestService(t)
	session, _ := seedActiveCall(t, sessions)

	err := svc.StopActive(context.Background(), session.ID)

	assert.NoError(t, err)
}

func TestStopActive_ClearsStaleFlag(t *testing.T) {
	svc, sessions, _ := newTestService(t)
	session, _ := seedActiveCall(t, sessions)
	ctx := context.Background()

	_, err := sessions.Update(ctx, session.ID, func(c *domain.CallSession) error {
		c.IsRecording = true
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, svc.StopActive(ctx, session.ID))

	current, err := sessions.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, current.IsRecording)
}

func TestAppendAudio(t *testing.T) {
	svc, sessions, blobs := newTestService(t)
	session, userID := seedActiveCall(t, sessions)
	ctx := context.Background()

	// No open capture
	err := svc.AppendAudio(ctx, session.ID, userID, []byte("chunk"))
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRecordingNotFound))

	capture, err := svc.Start(ctx, session.ID, userID)
	require.NoError(t, err)

	// Non-party cannot append
	err = svc.AppendAudio(ctx, session.ID, uuid.New(), []byte("chunk"))
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotAuthorized))

	require.NoError(t, svc.AppendAudio(ctx, session.ID, userID, []byte("chunk-1")))
	require.NoError(t, svc.AppendAudio(ctx, session.ID, userID, []byte("chunk-2")))

	blobs.On("Put", mock.Anything, mock.Anything, []byte("chunk-1chunk-2"), mock.Anything).
		Return("https://blobs/x", nil).Once()

	_, err = svc.Stop(ctx, session.ID, capture)
	require.NoError(t, err)
	blobs.AssertExpectations(t)
}

// TestRecordingStateEvents verifies the parties hear about captures
// starting and stopping.
func TestRecordingStateEvents(t *testing.T) {
	svc, sessions, blobs := newTestService(t)
	events := new(MockEvents)
	svc.SetEvents(events)
	session, userID := seedActiveCall(t, sessions)
	ctx := context.Background()

	events.On("RecordingChanged", mock.Anything, mock.Anything, "started").Once()
	capture, err := svc.Start(ctx, session.ID, userID)
	require.NoError(t, err)

	_, err = capture.Write([]byte("audio"))
	require.NoError(t, err)

	blobs.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("https://blobs/x", nil).Once()
	events.On("RecordingChanged", mock.Anything, mock.Anything, "stopped").Once()

	_, err = svc.Stop(ctx, session.ID, capture)
	require.NoError(t, err)
	events.AssertExpectations(t)
}

func TestStop_WrongCallRejected(t *testing.T) {
	svc, sessions, _ := newTestService(t)
	session, userID := seedActiveCall(t, sessions)
	other, _ := seedActiveCall(t, sessions)
	ctx := context.Background()

	capture, err := svc.Start(ctx, session.ID, userID)
	require.NoError(t, err)

	_, err = svc.Stop(ctx, other.ID, capture)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
}

func TestPurge_AdminOnly(t *testing.T) {
	sessions := store.NewMemorySessionStore()
	recordings := store.NewMemoryRecordingStore()
	blobs := new(MockBlobStorage)
	svc := NewService(sessions, recordings, blobs, CaptureProfile{})
	ctx := context.Background()

	session, err := sessions.Create(ctx, &domain.CallSession{
		ID:           uuid.New(),
		InitiatorID:  uuid.New(),
		PeerID:       uuid.New(),
		Status:       domain.CallStatusEnded,
		RecordingURL: "https://blobs/a",
	})
	require.NoError(t, err)

	rec := &domain.CallRecording{
		ID:        uuid.New(),
		CallID:    session.ID,
		AudioURL:  "https://blobs/a",
		ObjectKey: "calls/a.ogg",
	}
	require.NoError(t, recordings.Create(ctx, rec))

	err = svc.Purge(ctx, rec.ID, "user")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotAuthorized))

	blobs.On("Remove", mock.Anything, rec.ObjectKey).Return(nil).Once()

	require.NoError(t, svc.Purge(ctx, rec.ID, callsvc.RoleAdmin))

	_, err = recordings.Get(ctx, rec.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRecordingNotFound))

	current, err := sessions.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, current.RecordingURL)
	blobs.AssertExpectations(t)
}
