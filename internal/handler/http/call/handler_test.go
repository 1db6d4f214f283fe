package call

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicelink-backend/internal/domain"
	callsvc "voicelink-backend/internal/service/call"
	"voicelink-backend/internal/store"
)

type hangupResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Call struct {
			Status          string `json:"status"`
			DurationSeconds int    `json:"duration_seconds"`
		} `json:"call"`
		Warning *struct {
			Code string `json:"code"`
		} `json:"warning"`
	} `json:"data"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
}

// newHangupFixture builds a router with an authenticated user and an active
// 1:1 call owned by that user.
func newHangupFixture(t *testing.T) (*gin.Engine, uuid.UUID) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sessions := store.NewMemorySessionStore()
	svc := callsvc.NewService(sessions, nil, nil, nil, nil, nil)
	handler := NewHandler(svc)

	userID := uuid.New()
	session, err := svc.InitiateCall(context.Background(), &callsvc.InitiateCallInput{
		MediaKind:   domain.MediaKindAudio,
		InitiatorID: userID,
		PeerID:      uuid.New(),
	})
	require.NoError(t, err)
	_, err = sessions.Update(context.Background(), session.ID, func(c *domain.CallSession) error {
		c.Status = domain.CallStatusActive
		return nil
	})
	require.NoError(t, err)

	router := gin.New()
	router.POST("/v1/calls/:id/hangup", func(c *gin.Context) {
		c.Set("user_id", userID)
		handler.Hangup(c)
	})
	return router, session.ID
}

func TestHangup_EmptyBodyDefaultsDurationToZero(t *testing.T) {
	router, callID := newHangupFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/calls/"+callID.String()+"/hangup", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body hangupResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, string(domain.CallStatusEnded), body.Data.Call.Status)
	assert.Zero(t, body.Data.Call.DurationSeconds)
	assert.Nil(t, body.Data.Warning)
}

func TestHangup_MeasuredDurationAccepted(t *testing.T) {
	router, callID := newHangupFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/calls/"+callID.String()+"/hangup",
		strings.NewReader(`{"duration_seconds": 90}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body hangupResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 90, body.Data.Call.DurationSeconds)
}

func TestHangup_MalformedBodyRejected(t *testing.T) {
	router, callID := newHangupFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/calls/"+callID.String()+"/hangup",
		strings.NewReader(`{"duration_seconds":`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body hangupResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	assert.Equal(t, "VALIDATION_ERROR", body.Error.Code)
}
