package transcription

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"voicelink-backend/internal/domain"
	"voicelink-backend/internal/store"
	apperrors "voicelink-backend/pkg/errors"
)

// MockSpeechClient is a mock implementation of SpeechClient
type MockSpeechClient struct {
	mock.Mock
}

func (m *MockSpeechClient) Transcribe(ctx context.Context, audio []byte, filename string) (*Result, error) {
	args := m.Called(ctx, audio, filename)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Result), args.Error(1)
}

// MockBlobStorage is a mock implementation of recording.BlobStorage
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

// MockPublisher is a mock implementation of JobPublisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishTranscriptionJob(ctx context.Context, recordingID uuid.UUID) error {
	args := m.Called(ctx, recordingID)
	return args.Error(0)
}

// MockResultPublisher is a mock implementation of ResultPublisher
type MockResultPublisher struct {
	mock.Mock
}

func (m *MockResultPublisher) PublishTranscript(ctx context.Context, callID, recordingID uuid.UUID, result *Result) error {
	args := m.Called(ctx, callID, recordingID, result)
	return args.Error(0)
}

type fixture struct {
	sessions   *store.MemorySessionStore
	recordings *store.MemoryRecordingStore
	blobs      *MockBlobStorage
	speech     *MockSpeechClient
	svc        *Service

	session *domain.CallSession
	rec     *domain.CallRecording
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		sessions:   store.NewMemorySessionStore(),
		recordings: store.NewMemoryRecordingStore(),
		blobs:      new(MockBlobStorage),
		speech:     new(MockSpeechClient),
	}
	f.svc = NewService(f.sessions, f.recordings, f.blobs, f.speech, nil)

	ctx := context.Background()
	session, err := f.sessions.Create(ctx, &domain.CallSession{
		ID:          uuid.New(),
		InitiatorID: uuid.New(),
		PeerID:      uuid.New(),
		Status:      domain.CallStatusEnded,
	})
	require.NoError(t, err)
	f.session = session

	f.rec = &domain.CallRecording{
		ID:        uuid.New(),
		CallID:    session.ID,
		AudioURL:  "https://blobs/calls/a.ogg",
		ObjectKey: "calls/a.ogg",
	}
	require.NoError(t, f.recordings.Create(ctx, f.rec))
	return f
}

func TestRequestTranscription_AttachesTranscript(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.blobs.On("Get", mock.Anything, f.rec.ObjectKey).Return([]byte("audio"), nil).Once()
	f.speech.On("Transcribe", mock.Anything, []byte("audio"), f.rec.ObjectKey).
		Return(&Result{Text: "hello world", Language: "en"}, nil).Once()

	result, err := f.svc.RequestTranscription(ctx, f.rec.ID)

	require.NoError(t, err)
	assert.Equal(t, "hello world", result.Text)

	stored, err := f.recordings.Get(ctx, f.rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello world", stored.TranscriptText)

	session, err := f.sessions.Get(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello world", session.TranscriptText)
	f.speech.AssertExpectations(t)
}

func TestRequestTranscription_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.blobs.On("Get", mock.Anything, f.rec.ObjectKey).Return([]byte("audio"), nil).Twice()
	f.speech.On("Transcribe", mock.Anything, mock.Anything, mock.Anything).
		Return(&Result{Text: "first"}, nil).Once()
	f.speech.On("Transcribe", mock.Anything, mock.Anything, mock.Anything).
		Return(&Result{Text: "second"}, nil).Once()

	_, err := f.svc.RequestTranscription(ctx, f.rec.ID)
	require.NoError(t, err)
	_, err = f.svc.RequestTranscription(ctx, f.rec.ID)
	require.NoError(t, err)

	// Re-running overwrites rather than appends
	stored, err := f.recordings.Get(ctx, f.rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "second", stored.TranscriptText)
}

func TestRequestTranscription_FailureLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.blobs.On("Get", mock.Anything, f.rec.ObjectKey).Return([]byte("audio"), nil).Once()
	f.speech.On("Transcribe", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, assert.AnError).Once()

	_, err := f.svc.RequestTranscription(ctx, f.rec.ID)

	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeTranscriptionFailed))

	stored, getErr := f.recordings.Get(ctx, f.rec.ID)
	require.NoError(t, getErr)
	assert.Empty(t, stored.TranscriptText)

	session, getErr := f.sessions.Get(ctx, f.session.ID)
	require.NoError(t, getErr)
	assert.Empty(t, session.TranscriptText)
}

func TestRequestTranscription_EmptyTranscriptFails(t *testing.T) {
	f := newFixture(t)

	f.blobs.On("Get", mock.Anything, f.rec.ObjectKey).Return([]byte("audio"), nil).Once()
	f.speech.On("Transcribe", mock.Anything, mock.Anything, mock.Anything).
		Return(&Result{Text: ""}, nil).Once()

	_, err := f.svc.RequestTranscription(context.Background(), f.rec.ID)

	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeTranscriptionFailed))
}

func TestRequestTranscription_UnknownRecording(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RequestTranscription(context.Background(), uuid.New())

	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRecordingNotFound))
}

func TestRequestTranscription_DeletedSessionDropsLateResult(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.sessions.Delete(ctx, f.session.ID))

	f.blobs.On("Get", mock.Anything, f.rec.ObjectKey).Return([]byte("audio"), nil).Once()
	f.speech.On("Transcribe", mock.Anything, mock.Anything, mock.Anything).
		Return(&Result{Text: "late"}, nil).Once()

	_, err := f.svc.RequestTranscription(ctx, f.rec.ID)

	// The deleted session is tolerated; the transcript still lands on the
	// durable recording record.
	require.NoError(t, err)
	stored, err := f.recordings.Get(ctx, f.rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "late", stored.TranscriptText)
}

// TestRequestTranscription_BroadcastsResult verifies a completed transcript
// is published for other processes even when the local session store does
// not hold the parent session, as in the worker deployment.
func TestRequestTranscription_BroadcastsResult(t *testing.T) {
	f := newFixture(t)
	results := new(MockResultPublisher)
	f.svc.SetResultPublisher(results)
	ctx := context.Background()

	// Simulate the worker: the session lives in another process
	require.NoError(t, f.sessions.Delete(ctx, f.session.ID))

	f.blobs.On("Get", mock.Anything, f.rec.ObjectKey).Return([]byte("audio"), nil).Once()
	f.speech.On("Transcribe", mock.Anything, mock.Anything, mock.Anything).
		Return(&Result{Text: "hello world", Language: "en"}, nil).Once()
	results.On("PublishTranscript", mock.Anything, f.session.ID, f.rec.ID,
		mock.MatchedBy(func(r *Result) bool { return r.Text == "hello world" })).
		Return(nil).Once()

	_, err := f.svc.RequestTranscription(ctx, f.rec.ID)

	require.NoError(t, err)
	results.AssertExpectations(t)
}

func TestRequestTranscription_NoBroadcastOnFailure(t *testing.T) {
	f := newFixture(t)
	results := new(MockResultPublisher)
	f.svc.SetResultPublisher(results)

	f.blobs.On("Get", mock.Anything, f.rec.ObjectKey).Return([]byte("audio"), nil).Once()
	f.speech.On("Transcribe", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, assert.AnError).Once()

	_, err := f.svc.RequestTranscription(context.Background(), f.rec.ID)

	require.Error(t, err)
	results.AssertNotCalled(t, "PublishTranscript", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEnqueue_PublishesJob(t *testing.T) {
	f := newFixture(t)
	publisher := new(MockPublisher)
	svc := NewService(f.sessions, f.recordings, f.blobs, f.speech, publisher)

	publisher.On("PublishTranscriptionJob", mock.Anything, f.rec.ID).Return(nil).Once()

	require.NoError(t, svc.Enqueue(context.Background(), f.rec.ID))
	publisher.AssertExpectations(t)
}

func TestEnqueue_UnknownRecordingFailsSynchronously(t *testing.T) {
	f := newFixture(t)
	publisher := new(MockPublisher)
	svc := NewService(f.sessions, f.recordings, f.blobs, f.speech, publisher)

	err := svc.Enqueue(context.Background(), uuid.New())

	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRecordingNotFound))
	publisher.AssertNotCalled(t, "PublishTranscriptionJob", mock.Anything, mock.Anything)
}
