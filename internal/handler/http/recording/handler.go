package recording

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"voicelink-backend/internal/service/recording"
	"voicelink-backend/internal/service/transcription"
	"voicelink-backend/pkg/response"
)

// maxChunkBytes bounds one uploaded audio chunk
const maxChunkBytes = 4 << 20

// Handler handles recording and transcription HTTP requests
type Handler struct {
	recordingService     *recording.Service
	transcriptionService *transcription.Service
}

// NewHandler creates a new recording handler. transcriptionService may be
// nil when speech-to-text is not configured.
func NewHandler(recordingService *recording.Service, transcriptionService *transcription.Service) *Handler {
	return &Handler{
		recordingService:     recordingService,
		transcriptionService: transcriptionService,
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

func idParam(c *gin.Context, message string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, message)
		return uuid.Nil, false
	}
	return id, true
}

// StartRecording opens a capture for an active call
// POST /v1/calls/:id/recording/start
func (h *Handler) StartRecording(c *gin.Context) {
	callID, ok := idParam(c, "Invalid call ID")
	if !ok {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	capture, err := h.recordingService.Start(c.Request.Context(), callID, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"capture_id": capture.ID,
		"call_id":    capture.CallID,
		"started_at": capture.StartedAt,
		"profile":    capture.Profile,
	})
}

// AppendChunk buffers one chunk of captured audio
// POST /v1/calls/:id/recording/chunk
func (h *Handler) AppendChunk(c *gin.Context) {
	callID, ok := idParam(c, "Invalid call ID")
	if !ok {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxChunkBytes))
	if err != nil {
		response.ValidationError(c, "Failed to read audio chunk")
		return
	}
	if len(data) == 0 {
		response.ValidationError(c, "Empty audio chunk")
		return
	}

	if err := h.recordingService.AppendAudio(c.Request.Context(), callID, userID, data); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"bytes": len(data)})
}

// StopRecording finalizes the open capture and stores the artifact
// POST /v1/calls/:id/recording/stop
func (h *Handler) StopRecording(c *gin.Context) {
	callID, ok := idParam(c, "Invalid call ID")
	if !ok {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	rec, err := h.recordingService.StopByCall(c.Request.Context(), callID, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, rec)
}

// GetRecording retrieves a recording record
// GET /v1/recordings/:id
func (h *Handler) GetRecording(c *gin.Context) {
	recordingID, ok := idParam(c, "Invalid recording ID")
	if !ok {
		return
	}

	rec, err := h.recordingService.Get(c.Request.Context(), recordingID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, rec)
}

// ListCallRecordings lists recordings captured for a call
// GET /v1/calls/:id/recordings
func (h *Handler) ListCallRecordings(c *gin.Context) {
	callID, ok := idParam(c, "Invalid call ID")
	if !ok {
		return
	}

	recs, err := h.recordingService.ListForCall(c.Request.Context(), callID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"recordings": recs})
}

// DownloadAudio streams the stored audio bytes
// GET /v1/recordings/:id/audio
func (h *Handler) DownloadAudio(c *gin.Context) {
	recordingID, ok := idParam(c, "Invalid recording ID")
	if !ok {
		return
	}

	rec, err := h.recordingService.Get(c.Request.Context(), recordingID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	audio, err := h.recordingService.Audio(c.Request.Context(), rec)
	if err != nil {
		response.FromError(c, err)
		return
	}

	c.Data(http.StatusOK, "audio/ogg", audio)
}

// RequestTranscription enqueues speech-to-text for a recording
// POST /v1/recordings/:id/transcribe
func (h *Handler) RequestTranscription(c *gin.Context) {
	recordingID, ok := idParam(c, "Invalid recording ID")
	if !ok {
		return
	}

	if h.transcriptionService == nil {
		response.Error(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Transcription is not configured")
		return
	}

	if err := h.transcriptionService.Enqueue(c.Request.Context(), recordingID); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusAccepted, gin.H{
		"message":      "Transcription requested",
		"recording_id": recordingID,
	})
}

// AdminPurgeRecording removes a recording, its stored audio, and the parent
// session's recording fields (admin only)
// DELETE /v1/admin/recordings/:id
func (h *Handler) AdminPurgeRecording(c *gin.Context) {
	recordingID, ok := idParam(c, "Invalid recording ID")
	if !ok {
		return
	}
	role := c.GetString("role")

	if err := h.recordingService.Purge(c.Request.Context(), recordingID, role); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message":      "Recording purged",
		"recording_id": recordingID,
	})
}
