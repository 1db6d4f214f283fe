package cockroach

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"voicelink-backend/internal/domain"
)

// CallHistoryRepository persists terminal call sessions for durable history.
// Live sessions stay in the session store; only ended/missed/declined calls
// land here.
type CallHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewCallHistoryRepository creates a new call history repository
func NewCallHistoryRepository(pool *pgxpool.Pool) *CallHistoryRepository {
	return &CallHistoryRepository{pool: pool}
}

// ArchiveCall upserts a terminal session. Re-archiving the same call (e.g.
// after a transcript lands) overwrites the previous row.
func (r *CallHistoryRepository) ArchiveCall(ctx context.Context, session *domain.CallSession) error {
	query := `
		INSERT INTO call_history (
			call_id, initiator_id, initiator_name, is_group_call, group_id, group_name,
			peer_id, peer_name, media_kind, status, started_at, ended_at,
			duration_seconds, recording_url, transcript_text, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (call_id) DO UPDATE SET
			status = EXCLUDED.status,
			ended_at = EXCLUDED.ended_at,
			duration_seconds = EXCLUDED.duration_seconds,
			recording_url = EXCLUDED.recording_url,
			transcript_text = EXCLUDED.transcript_text,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.pool.Exec(ctx, query,
		session.ID,
		session.InitiatorID,
		session.InitiatorName,
		session.IsGroupCall,
		session.GroupID,
		session.GroupName,
		session.PeerID,
		session.PeerName,
		string(session.MediaKind),
		string(session.Status),
		session.StartedAt,
		session.EndedAt,
		session.DurationSeconds,
		session.RecordingURL,
		session.TranscriptText,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to archive call: %w", err)
	}

	if session.IsGroupCall {
		if err := r.archiveParticipants(ctx, session); err != nil {
			return err
		}
	}
	return nil
}

func (r *CallHistoryRepository) archiveParticipants(ctx context.Context, session *domain.CallSession) error {
	query := `
		INSERT INTO call_history_participants (call_id, user_id, display_name, join_status, is_muted, is_video_enabled)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (call_id, user_id) DO UPDATE SET
			join_status = EXCLUDED.join_status,
			is_muted = EXCLUDED.is_muted,
			is_video_enabled = EXCLUDED.is_video_enabled
	`
	for _, p := range session.Participants {
		_, err := r.pool.Exec(ctx, query,
			p.CallID, p.UserID, p.DisplayName, string(p.JoinStatus), p.IsMuted, p.IsVideoEnabled)
		if err != nil {
			return fmt.Errorf("failed to archive participant: %w", err)
		}
	}
	return nil
}

// ListUserCalls retrieves archived calls where the user was a party,
// newest first
func (r *CallHistoryRepository) ListUserCalls(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.CallSession, error) {
	query := `
		SELECT DISTINCT h.call_id, h.initiator_id, h.initiator_name, h.is_group_call,
		       h.group_id, h.group_name, h.peer_id, h.peer_name, h.media_kind, h.status,
		       h.started_at, h.ended_at, h.duration_seconds, h.recording_url,
		       h.transcript_text, h.created_at, h.updated_at
		FROM call_history h
		LEFT JOIN call_history_participants p ON h.call_id = p.call_id
		WHERE h.initiator_id = $1 OR h.peer_id = $1 OR p.user_id = $1
		ORDER BY h.created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list user calls: %w", err)
	}
	defer rows.Close()

	var sessions []*domain.CallSession
	for rows.Next() {
		var (
			session   domain.CallSession
			mediaKind string
			status    string
		)
		err := rows.Scan(
			&session.ID,
			&session.InitiatorID,
			&session.InitiatorName,
			&session.IsGroupCall,
			&session.GroupID,
			&session.GroupName,
			&session.PeerID,
			&session.PeerName,
			&mediaKind,
			&status,
			&session.StartedAt,
			&session.EndedAt,
			&session.DurationSeconds,
			&session.RecordingURL,
			&session.TranscriptText,
			&session.CreatedAt,
			&session.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call history row: %w", err)
		}
		session.MediaKind = domain.MediaKind(mediaKind)
		session.Status = domain.CallStatus(status)
		sessions = append(sessions, &session)
	}

	return sessions, nil
}
