package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"voicelink-backend/pkg/push"
)

// PushTokenRepository stores device push tokens in Redis. Tokens are keyed
// by value and indexed per user with a set, so registration from a new
// device and cleanup of invalidated tokens are both O(1).
type PushTokenRepository struct {
	client *redis.Client
}

// NewPushTokenRepository creates a new push token repository
func NewPushTokenRepository(client *redis.Client) *PushTokenRepository {
	return &PushTokenRepository{client: client}
}

func pushTokenKey(tokenValue string) string {
	return fmt.Sprintf("push:token:%s", tokenValue)
}

func userTokensKey(userID uuid.UUID) string {
	return fmt.Sprintf("push:user:%s:tokens", userID)
}

// Store saves a token and adds it to the owning user's token set
func (r *PushTokenRepository) Store(ctx context.Context, token *push.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal push token: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, pushTokenKey(token.Token), data, 0)
	pipe.SAdd(ctx, userTokensKey(token.UserID), token.Token)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store push token: %w", err)
	}
	return nil
}

// GetByUserID returns every registered token for a user. Set members whose
// token record has expired or been removed are skipped and pruned.
func (r *PushTokenRepository) GetByUserID(ctx context.Context, userID uuid.UUID) ([]*push.Token, error) {
	values, err := r.client.SMembers(ctx, userTokensKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list user tokens: %w", err)
	}

	tokens := make([]*push.Token, 0, len(values))
	for _, value := range values {
		data, err := r.client.Get(ctx, pushTokenKey(value)).Bytes()
		if err != nil {
			if err == redis.Nil {
				r.client.SRem(ctx, userTokensKey(userID), value)
				continue
			}
			return nil, fmt.Errorf("failed to get push token: %w", err)
		}

		var token push.Token
		if err := json.Unmarshal(data, &token); err != nil {
			continue
		}
		tokens = append(tokens, &token)
	}

	return tokens, nil
}

// Delete removes a token and its index entry
func (r *PushTokenRepository) Delete(ctx context.Context, userID uuid.UUID, tokenValue string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, pushTokenKey(tokenValue))
	pipe.SRem(ctx, userTokensKey(userID), tokenValue)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete push token: %w", err)
	}
	return nil
}
