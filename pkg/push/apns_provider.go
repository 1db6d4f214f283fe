package push

import (
	"context"
	"fmt"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"

	"go.uber.org/zap"

	"voicelink-backend/pkg/logger"
)

// APNsProvider implements Provider for Apple Push Notification Service
type APNsProvider struct {
	client   *apns2.Client
	bundleID string
}

// APNsConfig contains configuration for APNs provider (token-based auth)
type APNsConfig struct {
	KeyPath    string // Path to .p8 private key file
	KeyID      string // 10-character Key ID from Apple Developer Portal
	TeamID     string // 10-character Team ID from Apple Developer Portal
	BundleID   string // Bundle ID of the app (e.g. com.example.app)
	Production bool   // Use production APNs endpoint (true) or sandbox (false)
}

// NewAPNsProvider creates a new APNs provider
func NewAPNsProvider(config *APNsConfig) (*APNsProvider, error) {
	if config == nil {
		return nil, fmt.Errorf("APNs config is required")
	}
	if config.BundleID == "" {
		return nil, fmt.Errorf("BundleID is required")
	}

	authKey, err := token.AuthKeyFromFile(config.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   config.KeyID,
		TeamID:  config.TeamID,
	})
	if config.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	logger.Info("APNs provider initialized",
		zap.String("bundle_id", config.BundleID),
		zap.Bool("production", config.Production))

	return &APNsProvider{
		client:   client,
		bundleID: config.BundleID,
	}, nil
}

// Send delivers the notification to the given device tokens one by one
func (a *APNsProvider) Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error) {
	result := &SendResult{}

	body := payload.NewPayload().
		AlertTitle(notification.Title).
		AlertBody(notification.Body).
		Sound(notification.Sound)
	if notification.Category != "" {
		body = body.Category(notification.Category)
	}
	for k, v := range notification.Data {
		body = body.Custom(k, v)
	}

	for _, deviceToken := range tokens {
		apnsNotification := &apns2.Notification{
			DeviceToken: deviceToken,
			Topic:       a.bundleID,
			Payload:     body,
		}
		if notification.Priority == "high" {
			apnsNotification.Priority = apns2.PriorityHigh
		}

		resp, err := a.client.PushWithContext(ctx, apnsNotification)
		if err != nil {
			result.FailureCount++
			continue
		}
		if resp.Sent() {
			result.SuccessCount++
			continue
		}
		result.FailureCount++
		if resp.Reason == apns2.ReasonUnregistered || resp.Reason == apns2.ReasonBadDeviceToken {
			result.InvalidTokens = append(result.InvalidTokens, deviceToken)
		}
	}

	return result, nil
}
