package call

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"voicelink-backend/internal/domain"
	"voicelink-backend/internal/service/call"
	"voicelink-backend/pkg/pagination"
	"voicelink-backend/pkg/response"
)

// Handler handles call lifecycle HTTP requests
type Handler struct {
	callService *call.Service
}

// NewHandler creates a new call handler
func NewHandler(callService *call.Service) *Handler {
	return &Handler{
		callService: callService,
	}
}

// currentUserID extracts the authenticated user from the Gin context
func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, "Not authenticated")
		return uuid.Nil, false
	}
	userID, ok := userIDVal.(uuid.UUID)
	if !ok {
		response.InternalError(c, "Invalid user ID")
		return uuid.Nil, false
	}
	return userID, true
}

// callIDParam parses the :id path parameter
func callIDParam(c *gin.Context) (uuid.UUID, bool) {
	callID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid call ID")
		return uuid.Nil, false
	}
	return callID, true
}

// InitiateCallRequest represents call initiation request
type InitiateCallRequest struct {
	MediaKind string   `json:"media_kind" binding:"required,oneof=audio video"`
	PeerID    string   `json:"peer_id,omitempty"`
	GroupID   string   `json:"group_id,omitempty"`
	GroupName string   `json:"group_name,omitempty"`
	MemberIDs []string `json:"member_ids,omitempty"`
}

// InitiateCall starts a new call session
// POST /v1/calls
func (h *Handler) InitiateCall(c *gin.Context) {
	var req InitiateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	input := &call.InitiateCallInput{
		MediaKind:   domain.MediaKind(req.MediaKind),
		InitiatorID: userID,
		GroupName:   req.GroupName,
	}

	if req.PeerID != "" {
		peerID, err := uuid.Parse(req.PeerID)
		if err != nil {
			response.ValidationError(c, "Invalid peer ID")
			return
		}
		input.PeerID = peerID
	}
	if req.GroupID != "" {
		groupID, err := uuid.Parse(req.GroupID)
		if err != nil {
			response.ValidationError(c, "Invalid group ID")
			return
		}
		input.GroupID = groupID
	}
	for _, idStr := range req.MemberIDs {
		memberID, err := uuid.Parse(idStr)
		if err != nil {
			response.ValidationError(c, "Invalid member ID: "+idStr)
			return
		}
		input.MemberIDs = append(input.MemberIDs, memberID)
	}

	session, err := h.callService.InitiateCall(c.Request.Context(), input)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, session)
}

// Ring marks the callee devices as alerted
// POST /v1/calls/:id/ring
func (h *Handler) Ring(c *gin.Context) {
	h.transition(c, h.callService.Ring)
}

// Accept answers a call
// POST /v1/calls/:id/accept
func (h *Handler) Accept(c *gin.Context) {
	h.transition(c, h.callService.Accept)
}

// Decline rejects a call before it is answered
// POST /v1/calls/:id/decline
func (h *Handler) Decline(c *gin.Context) {
	h.transition(c, h.callService.Decline)
}

// MarkMissed flags an unanswered call as missed
// POST /v1/calls/:id/missed
func (h *Handler) MarkMissed(c *gin.Context) {
	h.transition(c, h.callService.MarkMissed)
}

func (h *Handler) transition(c *gin.Context, op func(ctx context.Context, callID, userID uuid.UUID) (*domain.CallSession, error)) {
	callID, ok := callIDParam(c)
	if !ok {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	session, err := op(c.Request.Context(), callID, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, session)
}

// HangupRequest carries the client-measured call duration
type HangupRequest struct {
	DurationSeconds int `json:"duration_seconds"`
}

// Hangup ends an active call
// POST /v1/calls/:id/hangup
func (h *Handler) Hangup(c *gin.Context) {
	callID, ok := callIDParam(c)
	if !ok {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	// An absent body is a hangup with no measured duration
	var req HangupRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.ValidationError(c, err.Error())
		return
	}

	output, err := h.callService.Hangup(c.Request.Context(), callID, userID, req.DurationSeconds)
	if err != nil {
		response.FromError(c, err)
		return
	}

	body := gin.H{"call": output.Session}
	if output.Warning != nil {
		body["warning"] = gin.H{
			"code":    output.Warning.Code,
			"message": output.Warning.Message,
		}
	}
	response.Success(c, http.StatusOK, body)
}

// ParticipantRequest updates the requester's own group participant entry
type ParticipantRequest struct {
	JoinStatus     *string `json:"join_status,omitempty" binding:"omitempty,oneof=waiting joined left"`
	IsMuted        *bool   `json:"is_muted,omitempty"`
	IsVideoEnabled *bool   `json:"is_video_enabled,omitempty"`
}

// UpdateParticipant updates join/mute/video state in a group call
// PATCH /v1/calls/:id/participant
func (h *Handler) UpdateParticipant(c *gin.Context) {
	callID, ok := callIDParam(c)
	if !ok {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req ParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	update := &call.ParticipantUpdate{
		IsMuted:        req.IsMuted,
		IsVideoEnabled: req.IsVideoEnabled,
	}
	if req.JoinStatus != nil {
		status := domain.JoinStatus(*req.JoinStatus)
		update.JoinStatus = &status
	}

	session, err := h.callService.SetParticipantState(c.Request.Context(), callID, userID, update)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, session)
}

// GetCall retrieves one call session
// GET /v1/calls/:id
func (h *Handler) GetCall(c *gin.Context) {
	callID, ok := callIDParam(c)
	if !ok {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	session, err := h.callService.GetCall(c.Request.Context(), callID, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, session)
}

// ListCalls lists the requester's sessions, newest first
// GET /v1/calls
func (h *Handler) ListCalls(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	sessions, err := h.callService.ListUserCalls(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"calls": sessions})
}

// ListHistory lists the requester's archived terminal calls
// GET /v1/calls/history
func (h *Handler) ListHistory(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	params, err := pagination.ParsePaginationParams(c.Query("page"), c.Query("limit"), "", "")
	if err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	sessions, err := h.callService.ListUserCallHistory(c.Request.Context(), userID, params.Limit, params.Offset)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"calls": sessions,
		"page":  params.Page,
		"limit": params.Limit,
	})
}

// AdminListCalls lists every session in the store (admin only)
// GET /v1/admin/calls
func (h *Handler) AdminListCalls(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	role := c.GetString("role")

	sessions, err := h.callService.ListAllCalls(c.Request.Context(), userID, role)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"calls": sessions})
}

// AdminDeleteCall removes a session entirely (admin only)
// DELETE /v1/admin/calls/:id
func (h *Handler) AdminDeleteCall(c *gin.Context) {
	callID, ok := callIDParam(c)
	if !ok {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	role := c.GetString("role")

	if err := h.callService.DeleteCall(c.Request.Context(), callID, userID, role); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "Call deleted",
		"call_id": callID,
	})
}
