package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pipelinecrm/crm-auth-service/internal/security"
)

// RedisActionTokenStore keeps action tokens in Redis so every instance of
// the service sees the same pending verifications and resets. TTL handles
// expiry; GETDEL makes consumption single-use even under concurrent calls.
type RedisActionTokenStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisActionTokenStore(client redis.UniversalClient, prefix string) *RedisActionTokenStore {
	if prefix == "" {
		prefix = "action_token"
	}
	return &RedisActionTokenStore{client: client, prefix: prefix}
}

func (s *RedisActionTokenStore) Issue(ctx context.Context, purpose TokenPurpose, userID uint, email string, ttl time.Duration) (string, error) {
	token, err := security.NewActionToken()
	if err != nil {
		return "", err
	}
	record := ActionToken{
		Token:     token,
		UserID:    userID,
		Email:     email,
		Purpose:   purpose,
		ExpiresAt: time.Now().Add(ttl),
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return "", err
	}
	if err := s.client.Set(ctx, s.key(purpose, token), payload, ttl).Err(); err != nil {
		return "", fmt.Errorf("store action token: %w", err)
	}
	return token, nil
}

func (s *RedisActionTokenStore) Consume(ctx context.Context, purpose TokenPurpose, token string) (*ActionToken, error) {
	payload, err := s.client.GetDel(ctx, s.key(purpose, token)).Result()
	if err == redis.Nil {
		return nil, ErrInvalidActionToken
	}
	if err != nil {
		return nil, fmt.Errorf("consume action token: %w", err)
	}
	var record ActionToken
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		return nil, ErrInvalidActionToken
	}
	if time.Now().After(record.ExpiresAt) {
		return nil, ErrInvalidActionToken
	}
	return &record, nil
}

func (s *RedisActionTokenStore) key(purpose TokenPurpose, token string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, purpose, token)
}
