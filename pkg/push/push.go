package push

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"voicelink-backend/pkg/logger"
	"voicelink-backend/pkg/metrics"
)

// Provider defines interface for sending push notifications
type Provider interface {
	Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error)
}

// SendResult contains the result of a push notification send operation
type SendResult struct {
	SuccessCount  int
	FailureCount  int
	InvalidTokens []string
}

// Notification represents a push notification
type Notification struct {
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
	Priority string            `json:"priority,omitempty"` // high, normal
	Sound    string            `json:"sound,omitempty"`
	Category string            `json:"category,omitempty"`
}

// TokenType represents the type of push notification token
type TokenType string

const (
	TokenTypeFCM  TokenType = "fcm"  // Firebase Cloud Messaging
	TokenTypeAPNs TokenType = "apns" // Apple Push Notification Service
)

// Token represents a push notification token for a user's device
type Token struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Token     string    `json:"token"`
	Type      TokenType `json:"type"`
	Platform  string    `json:"platform,omitempty"` // ios, android
	Active    bool      `json:"active"`
	CreatedAt int64     `json:"created_at"`
	UpdatedAt int64     `json:"updated_at"`
}

// TokenRepository defines interface for storing and retrieving push tokens
type TokenRepository interface {
	Store(ctx context.Context, token *Token) error
	GetByUserID(ctx context.Context, userID uuid.UUID) ([]*Token, error)
	Delete(ctx context.Context, userID uuid.UUID, tokenValue string) error
}

// Service handles push notification operations
type Service struct {
	provider Provider
	repo     TokenRepository
	metrics  *metrics.Metrics
}

// NewService creates a new push notification service
func NewService(provider Provider, repo TokenRepository) *Service {
	return &Service{
		provider: provider,
		repo:     repo,
	}
}

// SetMetrics wires the service's instrumentation. Optional.
func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// RegisterToken registers a device token for a user
func (s *Service) RegisterToken(ctx context.Context, token *Token) error {
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	now := time.Now().Unix()
	if token.CreatedAt == 0 {
		token.CreatedAt = now
	}
	token.UpdatedAt = now
	token.Active = true
	return s.repo.Store(ctx, token)
}

// UnregisterToken removes a device token
func (s *Service) UnregisterToken(ctx context.Context, userID uuid.UUID, tokenValue string) error {
	return s.repo.Delete(ctx, userID, tokenValue)
}

// SendToUser delivers a notification to every active device of a user
func (s *Service) SendToUser(ctx context.Context, userID uuid.UUID, notification *Notification) (*SendResult, error) {
	tokens, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	notifType := notification.Category
	if notifType == "" {
		notifType = "generic"
	}

	var values []string
	tokenPlatform := make(map[string]string)
	for _, t := range tokens {
		if t.Active {
			values = append(values, t.Token)
			tokenPlatform[t.Token] = string(t.Type)
		}
	}
	if len(values) == 0 {
		return &SendResult{}, nil
	}

	result, err := s.provider.Send(ctx, notification, values)
	if err != nil {
		if s.metrics != nil {
			for _, v := range values {
				s.metrics.RecordPushNotificationFailure(notifType, tokenPlatform[v], "transport")
			}
		}
		return nil, err
	}

	if s.metrics != nil {
		for _, v := range values {
			s.metrics.RecordPushNotification(notifType, tokenPlatform[v])
		}
	}

	// Drop tokens the provider reported as invalid
	for _, invalid := range result.InvalidTokens {
		if s.metrics != nil {
			s.metrics.RecordPushNotificationFailure(notifType, tokenPlatform[invalid], "invalid_token")
		}
		if delErr := s.repo.Delete(ctx, userID, invalid); delErr != nil {
			logger.Warn("failed to delete invalid push token",
				zap.String("user_id", userID.String()),
				zap.Error(delErr))
		}
	}

	return result, nil
}

// MockProvider is a no-op provider for development and testing
type MockProvider struct{}

// Send logs the notification instead of delivering it
func (m *MockProvider) Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error) {
	logger.Debug("mock push notification",
		zap.String("title", notification.Title),
		zap.Int("token_count", len(tokens)))
	return &SendResult{SuccessCount: len(tokens)}, nil
}
