package call

import (
	"github.com/google/uuid"

	"voicelink-backend/internal/domain"
	apperrors "voicelink-backend/pkg/errors"
)

// RoleAdmin is the elevated role that bypasses the membership check.
// Admin operations are still audit-logged.
const RoleAdmin = "admin"

// Guard is the cross-cutting authorization check applied to every session
// and recording mutation. For 1:1 calls the requester must be the initiator
// or the peer; for group calls the initiator or a listed participant.
type Guard struct{}

// Authorize returns NOT_AUTHORIZED unless userID is a party to the session
func (Guard) Authorize(session *domain.CallSession, userID uuid.UUID) error {
	if session.HasParticipant(userID) {
		return nil
	}
	return apperrors.NotAuthorizedError("requester is not a party to this call")
}

// AuthorizeRole returns NOT_AUTHORIZED unless the role is elevated
func (Guard) AuthorizeRole(role string) error {
	if role == RoleAdmin {
		return nil
	}
	return apperrors.NotAuthorizedError("elevated role required")
}
