package cockroach

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"voicelink-backend/internal/domain"
	apperrors "voicelink-backend/pkg/errors"
)

// RecordingRepository stores recording artifacts in CockroachDB. Implements
// store.RecordingStore for durable deployments.
type RecordingRepository struct {
	pool *pgxpool.Pool
}

// NewRecordingRepository creates a new recording repository
func NewRecordingRepository(pool *pgxpool.Pool) *RecordingRepository {
	return &RecordingRepository{pool: pool}
}

// Create inserts a new recording record
func (r *RecordingRepository) Create(ctx context.Context, rec *domain.CallRecording) error {
	query := `
		INSERT INTO call_recordings (
			recording_id, call_id, audio_url, object_key, duration_seconds, transcript_text, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		rec.ID,
		rec.CallID,
		rec.AudioURL,
		rec.ObjectKey,
		rec.DurationSeconds,
		rec.TranscriptText,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create recording: %w", err)
	}
	return nil
}

// Get retrieves a recording by id
func (r *RecordingRepository) Get(ctx context.Context, id uuid.UUID) (*domain.CallRecording, error) {
	query := `
		SELECT recording_id, call_id, audio_url, object_key, duration_seconds, transcript_text, created_at
		FROM call_recordings
		WHERE recording_id = $1
	`

	rec := &domain.CallRecording{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&rec.ID,
		&rec.CallID,
		&rec.AudioURL,
		&rec.ObjectKey,
		&rec.DurationSeconds,
		&rec.TranscriptText,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.RecordingNotFoundError()
		}
		return nil, fmt.Errorf("failed to get recording: %w", err)
	}
	return rec, nil
}

// ListForCall retrieves all recordings for a call, oldest first
func (r *RecordingRepository) ListForCall(ctx context.Context, callID uuid.UUID) ([]*domain.CallRecording, error) {
	query := `
		SELECT recording_id, call_id, audio_url, object_key, duration_seconds, transcript_text, created_at
		FROM call_recordings
		WHERE call_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.pool.Query(ctx, query, callID)
	if err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}
	defer rows.Close()

	var recordings []*domain.CallRecording
	for rows.Next() {
		rec := &domain.CallRecording{}
		err := rows.Scan(
			&rec.ID,
			&rec.CallID,
			&rec.AudioURL,
			&rec.ObjectKey,
			&rec.DurationSeconds,
			&rec.TranscriptText,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recording: %w", err)
		}
		recordings = append(recordings, rec)
	}

	return recordings, nil
}

// AttachTranscript overwrites the stored transcript (last write wins)
func (r *RecordingRepository) AttachTranscript(ctx context.Context, id uuid.UUID, text string) error {
	query := `
		UPDATE call_recordings
		SET transcript_text = $2
		WHERE recording_id = $1
	`

	tag, err := r.pool.Exec(ctx, query, id, text)
	if err != nil {
		return fmt.Errorf("failed to attach transcript: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.RecordingNotFoundError()
	}
	return nil
}

// Delete removes a recording record (administrative purge)
func (r *RecordingRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM call_recordings WHERE recording_id = $1`

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete recording: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.RecordingNotFoundError()
	}
	return nil
}
