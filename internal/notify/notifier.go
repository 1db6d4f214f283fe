package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"voicelink-backend/internal/domain"
	"voicelink-backend/internal/handler/ws"
	"voicelink-backend/pkg/logger"
	"voicelink-backend/pkg/push"
)

// CallNotifier fans lifecycle transitions out to the other parties of a
// call: a push notification for devices that are backgrounded and a
// WebSocket event for connected clients. Delivery is best effort; failures
// are logged and never surface to the lifecycle operation.
type CallNotifier struct {
	push *push.Service
	hub  *ws.EventHub
}

// NewCallNotifier creates a notifier. Either collaborator may be nil when
// the corresponding channel is not configured.
func NewCallNotifier(pushService *push.Service, hub *ws.EventHub) *CallNotifier {
	return &CallNotifier{push: pushService, hub: hub}
}

// CallInitiated tells the callee devices a call session now exists.
// No push yet; the push alert fires on the ring transition.
func (n *CallNotifier) CallInitiated(ctx context.Context, session *domain.CallSession) {
	for _, target := range callees(session) {
		n.publish(ctx, session, target, ws.EventTypeIncoming)
	}
}

// CallRinging alerts the callee devices that a call is waiting
func (n *CallNotifier) CallRinging(ctx context.Context, session *domain.CallSession) {
	title := "Incoming call"
	body := fmt.Sprintf("%s is calling", displayName(session))
	if session.MediaKind == domain.MediaKindVideo {
		body = fmt.Sprintf("%s is video calling", displayName(session))
	}

	notification := &push.Notification{
		Title:    title,
		Body:     body,
		Priority: "high",
		Sound:    "ringtone.caf",
		Category: "INCOMING_CALL",
		Data: map[string]string{
			"call_id":    session.ID.String(),
			"media_kind": string(session.MediaKind),
		},
	}

	for _, target := range callees(session) {
		n.sendPush(ctx, target, notification)
		n.publish(ctx, session, target, ws.EventTypeRinging)
	}
}

// CallAccepted tells every party the call is now active
func (n *CallNotifier) CallAccepted(ctx context.Context, session *domain.CallSession, actorID uuid.UUID) {
	for _, target := range parties(session) {
		n.publishFrom(ctx, session, actorID, target, ws.EventTypeAccepted, "")
	}
}

// CallDeclined tells every party the call was rejected
func (n *CallNotifier) CallDeclined(ctx context.Context, session *domain.CallSession, actorID uuid.UUID) {
	for _, target := range parties(session) {
		n.publishFrom(ctx, session, actorID, target, ws.EventTypeDeclined, "")
	}
}

// ParticipantUpdated tells every party a group member changed their
// join/mute/video state
func (n *CallNotifier) ParticipantUpdated(ctx context.Context, session *domain.CallSession, actorID uuid.UUID) {
	for _, target := range parties(session) {
		n.publishFrom(ctx, session, actorID, target, ws.EventTypeParticipant, "")
	}
}

// RecordingChanged tells every party the recording state flipped.
// state is "started" or "stopped".
func (n *CallNotifier) RecordingChanged(ctx context.Context, session *domain.CallSession, state string) {
	for _, target := range parties(session) {
		n.publishFrom(ctx, session, session.InitiatorID, target, ws.EventTypeRecording, state)
	}
}

// CallMissed tells the callee devices the call went unanswered
func (n *CallNotifier) CallMissed(ctx context.Context, session *domain.CallSession) {
	notification := &push.Notification{
		Title: "Missed call",
		Body:  fmt.Sprintf("You missed a call from %s", displayName(session)),
		Data: map[string]string{
			"call_id": session.ID.String(),
		},
	}

	for _, target := range callees(session) {
		n.sendPush(ctx, target, notification)
		n.publish(ctx, session, target, ws.EventTypeMissed)
	}
}

// CallEnded informs every party that the session reached a terminal state.
// No push is sent; an in-call client is foregrounded and the event alone
// is enough to dismiss the call UI.
func (n *CallNotifier) CallEnded(ctx context.Context, session *domain.CallSession) {
	for _, target := range parties(session) {
		n.publish(ctx, session, target, ws.EventTypeEnded)
	}
}

func (n *CallNotifier) sendPush(ctx context.Context, userID uuid.UUID, notification *push.Notification) {
	if n.push == nil {
		return
	}
	if _, err := n.push.SendToUser(ctx, userID, notification); err != nil {
		logger.Warn("failed to send call push notification",
			zap.String("user_id", userID.String()),
			zap.Error(err))
	}
}

func (n *CallNotifier) publish(ctx context.Context, session *domain.CallSession, target uuid.UUID, eventType string) {
	n.publishFrom(ctx, session, session.InitiatorID, target, eventType, "")
}

func (n *CallNotifier) publishFrom(ctx context.Context, session *domain.CallSession, sender, target uuid.UUID, eventType, detail string) {
	if n.hub == nil {
		return
	}
	err := n.hub.Publish(ctx, &ws.CallEventMessage{
		Type:     eventType,
		CallID:   session.ID,
		SenderID: sender,
		TargetID: target,
		Status:   session.Status,
		Detail:   detail,
	})
	if err != nil {
		logger.Warn("failed to publish call event",
			zap.String("user_id", target.String()),
			zap.Error(err))
	}
}

// callees returns everyone except the initiator
func callees(session *domain.CallSession) []uuid.UUID {
	if !session.IsGroupCall {
		return []uuid.UUID{session.PeerID}
	}
	targets := make([]uuid.UUID, 0, len(session.Participants))
	for _, p := range session.Participants {
		if p.UserID != session.InitiatorID {
			targets = append(targets, p.UserID)
		}
	}
	return targets
}

// parties returns everyone on the call, initiator included
func parties(session *domain.CallSession) []uuid.UUID {
	if !session.IsGroupCall {
		return []uuid.UUID{session.InitiatorID, session.PeerID}
	}
	targets := make([]uuid.UUID, 0, len(session.Participants)+1)
	targets = append(targets, session.InitiatorID)
	for _, p := range session.Participants {
		if p.UserID != session.InitiatorID {
			targets = append(targets, p.UserID)
		}
	}
	return targets
}

func displayName(session *domain.CallSession) string {
	if session.InitiatorName != "" {
		return session.InitiatorName
	}
	return "Someone"
}
