package push

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"voicelink-backend/pkg/logger"
	"voicelink-backend/pkg/push"
	"voicelink-backend/pkg/response"
)

// Handler handles push token HTTP requests
type Handler struct {
	pushService *push.Service
}

// NewHandler creates a new push token handler
func NewHandler(pushService *push.Service) *Handler {
	return &Handler{
		pushService: pushService,
	}
}

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

// RegisterTokenRequest represents request to register a push token
type RegisterTokenRequest struct {
	Token    string         `json:"token" binding:"required"`
	Type     push.TokenType `json:"type" binding:"required,oneof=fcm apns"`
	Platform string         `json:"platform" binding:"omitempty,oneof=ios android"`
}

// RegisterToken registers a device token for the authenticated user
// POST /v1/push/tokens
func (h *Handler) RegisterToken(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req RegisterTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	token := &push.Token{
		UserID:   userID,
		Token:    req.Token,
		Type:     req.Type,
		Platform: req.Platform,
	}

	if err := h.pushService.RegisterToken(c.Request.Context(), token); err != nil {
		logger.Error("Failed to register push token",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		response.InternalError(c, "Failed to register token")
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"message":  "Token registered",
		"token_id": token.ID,
	})
}

// UnregisterTokenRequest represents request to unregister a push token
type UnregisterTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// UnregisterToken removes a device token for the authenticated user
// DELETE /v1/push/tokens
func (h *Handler) UnregisterToken(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req UnregisterTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	if err := h.pushService.UnregisterToken(c.Request.Context(), userID, req.Token); err != nil {
		logger.Error("Failed to unregister push token",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		response.InternalError(c, "Failed to unregister token")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Token unregistered"})
}
