package cassandra

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"voicelink-backend/internal/domain"
)

// CallEventRepository is the append-only call audit log backed by
// Cassandra. Every lifecycle transition and administrative operation lands
// here; entries are never updated or deleted.
type CallEventRepository struct {
	session *gocql.Session
}

// NewCallEventRepository creates a new call event repository
func NewCallEventRepository(session *gocql.Session) *CallEventRepository {
	return &CallEventRepository{session: session}
}

// Append writes one event
func (r *CallEventRepository) Append(ctx context.Context, event *domain.CallEvent) error {
	query := `
		INSERT INTO call_events (call_id, event_time, actor_id, event, status, detail)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	err := r.session.Query(query,
		event.CallID,
		event.Timestamp,
		event.ActorID,
		event.Event,
		string(event.Status),
		event.Detail,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to append call event: %w", err)
	}
	return nil
}

// ListForCall retrieves the event history for one call, oldest first
func (r *CallEventRepository) ListForCall(ctx context.Context, callID uuid.UUID, limit int) ([]*domain.CallEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT call_id, event_time, actor_id, event, status, detail
		FROM call_events
		WHERE call_id = ?
		ORDER BY event_time ASC
		LIMIT ?
	`

	iter := r.session.Query(query, callID, limit).WithContext(ctx).Iter()

	var events []*domain.CallEvent
	var (
		scanCallID  gocql.UUID
		eventTime   time.Time
		scanActorID gocql.UUID
		eventName   string
		status      string
		detail      string
	)
	for iter.Scan(&scanCallID, &eventTime, &scanActorID, &eventName, &status, &detail) {
		events = append(events, &domain.CallEvent{
			CallID:    uuid.UUID(scanCallID),
			ActorID:   uuid.UUID(scanActorID),
			Event:     eventName,
			Status:    domain.CallStatus(status),
			Detail:    detail,
			Timestamp: eventTime,
		})
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list call events: %w", err)
	}

	return events, nil
}
