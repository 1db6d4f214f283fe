package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	callsvc "voicelink-backend/internal/service/call"
)

// DirectoryRepository is the identity/roster collaborator: it resolves
// userId -> {displayName, avatarUrl} for snapshotting into sessions at
// creation time. The engine never re-resolves identities after that.
type DirectoryRepository struct {
	client *redis.Client
}

// NewDirectoryRepository creates a new directory repository
func NewDirectoryRepository(client *redis.Client) *DirectoryRepository {
	return &DirectoryRepository{client: client}
}

type directoryEntry struct {
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// SetIdentity stores a user's display snapshot
func (r *DirectoryRepository) SetIdentity(ctx context.Context, userID uuid.UUID, identity *callsvc.Identity) error {
	data, err := json.Marshal(directoryEntry{
		DisplayName: identity.DisplayName,
		AvatarURL:   identity.AvatarURL,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal identity: %w", err)
	}

	key := fmt.Sprintf("directory:user:%s", userID)
	if err := r.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set identity: %w", err)
	}
	return nil
}

// Lookup resolves a user's display snapshot
func (r *DirectoryRepository) Lookup(ctx context.Context, userID uuid.UUID) (*callsvc.Identity, error) {
	key := fmt.Sprintf("directory:user:%s", userID)

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("user not found in directory")
		}
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}

	var entry directoryEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("invalid directory entry: %w", err)
	}

	return &callsvc.Identity{
		DisplayName: entry.DisplayName,
		AvatarURL:   entry.AvatarURL,
	}, nil
}
